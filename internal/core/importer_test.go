package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csvFile(name, content string) ImportFile {
	return ImportFile{Name: name, Size: int64(len(content)), Reader: strings.NewReader(content)}
}

func kitRows(n int) string {
	var b strings.Builder
	b.WriteString("Title,Status,Tags\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Kit %d,stash,\n", i)
	}
	return b.String()
}

func userCtx(userID uuid.UUID) context.Context {
	return ContextWithUserID(context.Background(), userID)
}

// progressLog records every progress update in order.
type progressLog struct {
	mu      sync.Mutex
	updates []ImportProgress
}

func (l *progressLog) record(p ImportProgress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, p)
}

func (l *progressLog) all() []ImportProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ImportProgress(nil), l.updates...)
}

func TestImporter_ExistingAndNewTags(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	cute := store.seedTag(user, "Cute", "cute")

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv",
		"Title,Tags\nFox Garden,Cute;NewTag\nOwl Night,NewTag\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.Stats.Successful)
	assert.Equal(t, 0, result.Stats.Failed)
	assert.Equal(t, 2, result.Stats.Total)
	assert.Empty(t, result.Stats.TagWarnings)
	assert.Equal(t, 1, result.TagsCreated)

	tags := store.tagsFor(user)
	require.Len(t, tags, 2)
	newTag := tags[1]
	assert.Equal(t, "NewTag", newTag.Name)
	assert.Equal(t, "newtag", newTag.Slug)

	projects := store.projectsFor(user)
	require.Len(t, projects, 2)
	assert.Equal(t, []uuid.UUID{cute.ID, newTag.ID}, projects[0].TagIDs)
	assert.Equal(t, []uuid.UUID{newTag.ID}, projects[1].TagIDs)
}

func TestImporter_CleanRunNotifiesSuccess(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}

	im := NewImporter(store, notifier, ImportOptions{})
	result, err := im.Run(userCtx(uuid.New()), "", csvFile("kits.csv", kitRows(3)), nil)
	require.NoError(t, err)

	assert.True(t, result.AllSucceeded())
	assert.Len(t, notifier.succeeded, 1)
	assert.Empty(t, notifier.warned)
}

func TestImportResult_AllSucceeded(t *testing.T) {
	for outcome, want := range map[OutcomeKind]bool{
		OutcomeSuccess:             true,
		OutcomeSuccessWithWarnings: false,
		OutcomePartial:             false,
		OutcomeFailed:              false,
		OutcomeEmpty:               false,
	} {
		assert.Equal(t, want, (&ImportResult{Outcome: outcome}).AllSucceeded(), outcome)
	}
}

func TestImporter_TagCreationFailure(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	cute := store.seedTag(user, "Cute", "cute")
	store.createTagErr["NewTag"] = errBoom

	notifier := &recordingNotifier{}
	im := NewImporter(store, notifier, ImportOptions{})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv",
		"Title,Tags\nFox Garden,Cute;NewTag\nOwl Night,NewTag\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccessWithWarnings, result.Outcome)
	assert.Equal(t, 2, result.Stats.Successful)
	require.Len(t, result.Stats.TagWarnings, 1)
	assert.Contains(t, result.Stats.TagWarnings[0], "NewTag")
	assert.Equal(t, 2, result.TagsOmitted)

	projects := store.projectsFor(user)
	require.Len(t, projects, 2)
	assert.Equal(t, []uuid.UUID{cute.ID}, projects[0].TagIDs)
	assert.Empty(t, projects[1].TagIDs)

	assert.Len(t, notifier.warned, 1)
	assert.Empty(t, notifier.succeeded)
}

func TestImporter_ListTagsFailure(t *testing.T) {
	store := newFakeStore()
	store.listTagsErr = errBoom
	user := uuid.New()

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv",
		"Title,Tags\nFox Garden,Cute\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Successful)
	require.Len(t, result.Stats.TagWarnings, 1)
	assert.Zero(t, store.createTagCalls)
	assert.Empty(t, store.projectsFor(user)[0].TagIDs)
}

func TestImporter_RowFailureIsolated(t *testing.T) {
	store := newFakeStore()
	store.createProjErr["Kit 3"] = errBoom
	user := uuid.New()

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv", kitRows(10)), nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, 9, result.Stats.Successful)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 10, result.Stats.Total)
	require.Len(t, result.Stats.Errors, 1)
	assert.Contains(t, result.Stats.Errors[0], "row 4 (Kit 3)")
	assert.Contains(t, result.Stats.Errors[0], "boom")

	// Rows after the failure were still attempted
	projects := store.projectsFor(user)
	require.Len(t, projects, 9)
	assert.Equal(t, "Kit 10", projects[8].Title)
}

func TestImporter_AllRowsFail(t *testing.T) {
	store := newFakeStore()
	store.createProjErr["Kit 1"] = errBoom
	store.createProjErr["Kit 2"] = errBoom

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(uuid.New()), "", csvFile("kits.csv", kitRows(2)), nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, 2, result.Stats.Failed)
}

func TestImporter_TagLinkFailureIsWarning(t *testing.T) {
	store := newFakeStore()
	store.linkErr["Fox Garden"] = errBoom
	user := uuid.New()

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv",
		"Title,Tags\nFox Garden,Cute\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccessWithWarnings, result.Outcome)
	assert.Equal(t, 1, result.Stats.Successful)
	require.Len(t, result.Stats.TagWarnings, 1)
	assert.Contains(t, result.Stats.TagWarnings[0], "Fox Garden")
}

func TestImporter_SkipsTitlelessRows(t *testing.T) {
	store := newFakeStore()

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(uuid.New()), "", csvFile("kits.csv",
		"Title,Status\nFox Garden,stash\n,stash\n   ,done\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Total)
	assert.Equal(t, 2, result.SkippedRows)
}

func TestImporter_HeaderOnlyIsEmpty(t *testing.T) {
	notifier := &recordingNotifier{}
	im := NewImporter(newFakeStore(), notifier, ImportOptions{})
	result, err := im.Run(userCtx(uuid.New()), "", csvFile("kits.csv", "Title,Status\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeEmpty, result.Outcome)
	assert.Zero(t, result.Stats.Total)
	assert.NotNil(t, result.Stats.Errors)
	assert.Len(t, notifier.warned, 1)
}

func TestImporter_Preflight(t *testing.T) {
	im := NewImporter(newFakeStore(), nil, ImportOptions{MaxFileSize: 100})
	authed := userCtx(uuid.New())

	tests := []struct {
		name string
		ctx  context.Context
		file ImportFile
		want error
	}{
		{"not csv", authed, ImportFile{Name: "kits.xlsx", Size: 10}, ErrNotCSV},
		{"extension checked before size", authed, ImportFile{Name: "kits.txt", Size: 1000}, ErrNotCSV},
		{"too large", authed, ImportFile{Name: "kits.csv", Size: 101}, ErrFileTooLarge},
		{"size checked before auth", context.Background(), ImportFile{Name: "kits.csv", Size: 101}, ErrFileTooLarge},
		{"unauthenticated", context.Background(), ImportFile{Name: "kits.csv", Size: 10}, ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Preflight(tt.ctx, tt.file)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var pe *PreflightError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.file.Name, pe.FileName)
			assert.True(t, IsFatalInput(err))
		})
	}

	t.Run("upper case extension accepted", func(t *testing.T) {
		id, err := im.Preflight(authed, ImportFile{Name: "KITS.CSV", Size: 10})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
	})
}

func TestImporter_RejectedFileMutatesNothing(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	log := &progressLog{}

	im := NewImporter(store, notifier, ImportOptions{})
	result, err := im.Run(context.Background(), "", csvFile("kits.csv", kitRows(3)), log.record)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, store.createTagCalls)
	assert.Empty(t, notifier.succeeded)
	require.Len(t, notifier.failed, 1)

	updates := log.all()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, PhaseFailed, last.Phase)
	assert.NotEmpty(t, last.Error)
}

func TestImporter_EmptyFile(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()

	log := &progressLog{}

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv", "\n\n"), log.record)

	var empty *EmptyInputError
	require.ErrorAs(t, err, &empty)
	assert.Nil(t, result)
	assert.Equal(t, "kits.csv", empty.FileName)
	assert.True(t, IsFatalInput(err))
	assert.Empty(t, store.projectsFor(user))

	var phases []ImportPhase
	for _, p := range log.all() {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}
	require.GreaterOrEqual(t, len(phases), 2)
	assert.Equal(t, []ImportPhase{PhaseParsing, PhaseFailed}, phases[len(phases)-2:])
}

func TestImporter_ProgressMonotonic(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	log := &progressLog{}

	im := NewImporter(store, nil, ImportOptions{Workers: 3})
	_, err := im.Run(userCtx(user), "run-1", csvFile("kits.csv",
		"Title,Tags\nA,x\nB,y\nC,z\nD,x\nE,\n"), log.record)
	require.NoError(t, err)

	updates := log.all()
	require.NotEmpty(t, updates)

	prev := 0
	for i, p := range updates {
		assert.Equal(t, "run-1", p.ImportID)
		assert.GreaterOrEqual(t, p.Percent, prev, "update %d went backwards", i)
		if i < len(updates)-1 {
			assert.Less(t, p.Percent, 100, "update %d reached 100 early", i)
		}
		prev = p.Percent
	}

	last := updates[len(updates)-1]
	assert.Equal(t, PhaseCompleted, last.Phase)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, 5, last.Processed)
	assert.Equal(t, 5, last.Successful)

	phases := []ImportPhase{}
	for _, p := range updates {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}
	assert.Equal(t, []ImportPhase{
		PhaseValidating, PhaseParsing, PhaseResolvingTags, PhaseCreatingProjects, PhaseCompleted,
	}, phases)
}

func TestImporter_WorkerPool(t *testing.T) {
	store := newFakeStore()
	store.projectDelay = 20 * time.Millisecond
	store.createProjErr["Kit 2"] = errBoom
	store.createProjErr["Kit 7"] = errBoom
	user := uuid.New()

	im := NewImporter(store, nil, ImportOptions{Workers: 4})
	result, err := im.Run(userCtx(user), "", csvFile("kits.csv", kitRows(8)), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Stats.Successful)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Greater(t, store.maxInFlight, 1)
	assert.LessOrEqual(t, store.maxInFlight, 4)

	// Errors stay in file order regardless of completion order
	require.Len(t, result.Stats.Errors, 2)
	assert.Contains(t, result.Stats.Errors[0], "Kit 2")
	assert.Contains(t, result.Stats.Errors[1], "Kit 7")
}

func TestImporter_SequentialByDefault(t *testing.T) {
	store := newFakeStore()
	store.projectDelay = 5 * time.Millisecond

	im := NewImporter(store, nil, ImportOptions{})
	_, err := im.Run(userCtx(uuid.New()), "", csvFile("kits.csv", kitRows(4)), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.maxInFlight)
}

func TestImporter_RateLimited(t *testing.T) {
	store := newFakeStore()

	im := NewImporter(store, nil, ImportOptions{RowsPerSecond: 20, Burst: 1})
	start := time.Now()
	result, err := im.Run(userCtx(uuid.New()), "", csvFile("kits.csv", kitRows(5)), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Stats.Successful)
	// Four waits of 50ms after the initial token
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestImporter_CancelMidRun(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()

	ctx, cancel := context.WithCancel(userCtx(user))
	defer cancel()

	calls := 0
	store.onCreateProject = func(in ProjectInput) {
		calls++
		if calls == 3 {
			cancel()
		}
	}

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(ctx, "", csvFile("kits.csv", kitRows(10)), nil)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 3, result.Stats.Successful)
	assert.Equal(t, 7, result.Stats.Failed)
	assert.Equal(t, result.Stats.Total, result.Stats.Successful+result.Stats.Failed)
	for _, msg := range result.Stats.Errors {
		assert.Contains(t, msg, "import cancelled")
	}
	assert.Equal(t, OutcomePartial, result.Outcome)
}

func TestImporter_CancelledBeforeStart(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()

	ctx, cancel := context.WithCancel(userCtx(user))
	cancel()

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(ctx, "", csvFile("kits.csv", "Title,Tags\nA,x\nB,\n"), nil)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Zero(t, store.createTagCalls)
	assert.Empty(t, store.projectsFor(user))
	require.Len(t, result.Stats.TagWarnings, 1)
	assert.Contains(t, result.Stats.TagWarnings[0], "import cancelled")
}

func TestImporter_StoreContextErrorIsCancellation(t *testing.T) {
	store := newFakeStore()
	store.projectDelay = time.Second

	ctx, cancel := context.WithTimeout(userCtx(uuid.New()), 30*time.Millisecond)
	defer cancel()

	im := NewImporter(store, nil, ImportOptions{})
	result, err := im.Run(ctx, "", csvFile("kits.csv", kitRows(2)), nil)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Contains(t, result.Stats.Errors[0], "import cancelled")
}

func TestBuildProjectInput(t *testing.T) {
	w := 30.0
	p := PartialProject{Title: "Fox", Status: StatusStash, Width: &w, DateStarted: "2024-01-02"}

	in := BuildProjectInput(p, nil)
	assert.Equal(t, "Fox", in.Title)
	assert.Equal(t, StatusStash, in.Status)
	assert.Equal(t, &w, in.Width)
	assert.Equal(t, "2024-01-02", in.DateStarted)
	assert.NotNil(t, in.TagIDs)
	assert.Empty(t, in.TagIDs)
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name  string
		stats ImportStats
		want  OutcomeKind
	}{
		{"empty", ImportStats{}, OutcomeEmpty},
		{"all failed", ImportStats{Total: 2, Failed: 2}, OutcomeFailed},
		{"partial", ImportStats{Total: 2, Failed: 1, Successful: 1}, OutcomePartial},
		{"warnings", ImportStats{Total: 1, Successful: 1, TagWarnings: []string{"x"}}, OutcomeSuccessWithWarnings},
		{"success", ImportStats{Total: 1, Successful: 1}, OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeOf(tt.stats))
		})
	}
}
