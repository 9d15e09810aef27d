package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/kitstash/internal/logging"
)

// DefaultMaxFileSize is used when ImportOptions.MaxFileSize is zero (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

var errImportCancelled = errors.New("import cancelled")

// ImportOptions tunes an Importer.
type ImportOptions struct {
	// MaxFileSize rejects larger files before any work starts.
	MaxFileSize int64
	// Workers is the number of rows created concurrently. 1 keeps rows
	// strictly sequential.
	Workers int
	// RowsPerSecond caps project creation across all runs. 0 disables it.
	RowsPerSecond float64
	// Burst is the limiter burst; values below 1 are treated as 1.
	Burst int
	// MaxSlugAttempts bounds slug probing per new tag.
	MaxSlugAttempts int
}

// Importer runs CSV imports: pre-flight checks, parsing, tag resolution
// and per-row project creation.
type Importer struct {
	store    Store
	parser   *Parser
	tags     *TagResolver
	notifier Notifier
	limiter  *rate.Limiter
	opts     ImportOptions
}

// NewImporter creates an Importer. notifier may be nil.
func NewImporter(store Store, notifier Notifier, opts ImportOptions) *Importer {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	var limiter *rate.Limiter
	if opts.RowsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RowsPerSecond), opts.Burst)
	}

	return &Importer{
		store:    store,
		parser:   NewParser(opts.MaxFileSize),
		tags:     NewTagResolver(store, opts.MaxSlugAttempts),
		notifier: notifier,
		limiter:  limiter,
		opts:     opts,
	}
}

// MaxFileSize returns the effective size limit.
func (im *Importer) MaxFileSize() int64 {
	return im.opts.MaxFileSize
}

// Preflight validates a file before anything is read or written. Checks run
// in order: extension, size, then authentication. The returned error is a
// *PreflightError.
func (im *Importer) Preflight(ctx context.Context, file ImportFile) (uuid.UUID, error) {
	reject := func(err error) (uuid.UUID, error) {
		return uuid.Nil, &PreflightError{FileName: file.Name, Err: err}
	}

	if !strings.EqualFold(filepath.Ext(file.Name), ".csv") {
		return reject(ErrNotCSV)
	}
	if file.Size > im.opts.MaxFileSize {
		return reject(fmt.Errorf("%w: %d bytes exceeds the %d byte limit",
			ErrFileTooLarge, file.Size, im.opts.MaxFileSize))
	}
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return reject(ErrUnauthenticated)
	}
	return userID, nil
}

// RowResult is the outcome of one project creation attempt.
type RowResult struct {
	Line      int
	Title     string
	ProjectID uuid.UUID
	// Err is set when the project was not created.
	Err error
	// Warning is set when the project was created but some tags were not linked.
	Warning string
	// OmittedTags counts tag names that had no resolved id.
	OmittedTags int
}

// OK reports whether the project was created.
func (r RowResult) OK() bool {
	return r.Err == nil
}

// statsAccumulator folds row results into ImportStats.
type statsAccumulator struct {
	stats   ImportStats
	omitted int
}

func newStatsAccumulator(tagWarnings []string) *statsAccumulator {
	return &statsAccumulator{stats: ImportStats{
		Errors:      []string{},
		TagWarnings: append([]string{}, tagWarnings...),
	}}
}

func (a *statsAccumulator) add(r RowResult) {
	a.stats.Total++
	a.omitted += r.OmittedTags
	if !r.OK() {
		a.stats.Failed++
		a.stats.Errors = append(a.stats.Errors, fmt.Sprintf("row %d (%s): %v", r.Line, r.Title, r.Err))
		return
	}
	a.stats.Successful++
	if r.Warning != "" {
		a.stats.TagWarnings = append(a.stats.TagWarnings, fmt.Sprintf("row %d (%s): %s", r.Line, r.Title, r.Warning))
	}
}

// Run executes one import. importID labels progress and logs; an empty id
// gets a fresh one.
//
// A returned error means the file was rejected before any mutation
// (IsFatalInput reports true). Once rows are being created Run always
// returns a result: row and tag problems are folded into its stats, and a
// cancelled context marks every unattempted row as failed.
func (im *Importer) Run(ctx context.Context, importID string, file ImportFile, onProgress ProgressCallback) (*ImportResult, error) {
	if importID == "" {
		importID = uuid.NewString()
	}
	start := time.Now()
	tracker := newProgressTracker(importID, file.Name, onProgress)
	logger := logging.WithFields(ctx, "import_id", importID, "file", file.Name)

	tracker.setPhase(PhaseValidating, 0)
	userID, err := im.Preflight(ctx, file)
	if err != nil {
		return nil, im.reject(ctx, tracker, file.Name, err)
	}
	logger = logger.With("user_id", userID)

	// Parsing
	tracker.setPhase(PhaseParsing, 0)
	var projects []PartialProject
	skipped := 0
	parsed, err := im.parser.Stream(ctx, file.Reader, file.Size,
		func(rec Record) error {
			if p, ok := NormalizeRecord(rec); ok {
				projects = append(projects, p)
			} else {
				skipped++
			}
			return nil
		},
		func(pct int) {
			tracker.advance(bandPercent(0, parseBandEnd, pct, 100))
		},
	)
	cancelled := false
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		cancelled = true
	default:
		var empty *EmptyInputError
		if errors.As(err, &empty) && empty.FileName == "" {
			empty.FileName = file.Name
		}
		return nil, im.reject(ctx, tracker, file.Name, err)
	}
	tracker.advance(parseBandEnd)
	tracker.setTotal(len(projects))
	logger.Debug("csv parsed", "rows", len(projects), "skipped", skipped)

	// Tags
	tracker.setPhase(PhaseResolvingTags, parseBandEnd)
	var tags *TagResolution
	if cancelled {
		tags = &TagResolution{Map: make(TagNameMap)}
	} else {
		tags = im.tags.Resolve(ctx, userID, UniqueTagNames(projects), func(done, total int) {
			tracker.advance(bandPercent(parseBandEnd, tagsBandEnd, done, total))
		})
	}
	tracker.advance(tagsBandEnd)

	// Projects
	tracker.setPhase(PhaseCreatingProjects, tagsBandEnd)
	results := im.createProjects(ctx, userID, projects, tags.Map, tracker)

	acc := newStatsAccumulator(tags.Warnings)
	for _, r := range results {
		acc.add(r)
	}

	result := &ImportResult{
		ImportID:      importID,
		FileName:      file.Name,
		Stats:         acc.stats,
		SkippedRows:   skipped,
		ParseWarnings: []string{},
		TagsCreated:   len(tags.Created),
		TagsOmitted:   acc.omitted,
		Cancelled:     cancelled || ctx.Err() != nil,
		Duration:      time.Since(start),
	}
	if parsed != nil && parsed.Warnings != nil {
		result.ParseWarnings = parsed.Warnings
	}
	result.Outcome = outcomeOf(result.Stats)

	tracker.complete()

	logger.Info("import finished",
		"outcome", result.Outcome,
		"successful", result.Stats.Successful,
		"failed", result.Stats.Failed,
		"tags_created", result.TagsCreated,
		"tag_warnings", len(result.Stats.TagWarnings),
		"cancelled", result.Cancelled,
		"duration_ms", result.Duration.Milliseconds(),
	)
	im.notify(ctx, result)

	return result, nil
}

// createProjects attempts every row exactly once. Rows run on a bounded
// worker pool; results are stored by index so the caller folds them in
// file order.
func (im *Importer) createProjects(
	ctx context.Context,
	userID uuid.UUID,
	projects []PartialProject,
	tags TagNameMap,
	tracker *progressTracker,
) []RowResult {
	results := make([]RowResult, len(projects))

	var g errgroup.Group
	g.SetLimit(im.opts.Workers)

	for i := range projects {
		p := projects[i]
		if ctx.Err() != nil {
			results[i] = RowResult{Line: p.Line, Title: p.Title, Err: errImportCancelled}
			tracker.rowDone(false)
			continue
		}
		g.Go(func() error {
			results[i] = im.createRow(ctx, userID, p, tags)
			tracker.rowDone(results[i].OK())
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// createRow builds the creation request for one project and stores it.
// Tag names without an id are dropped from the request.
func (im *Importer) createRow(ctx context.Context, userID uuid.UUID, p PartialProject, tags TagNameMap) RowResult {
	res := RowResult{Line: p.Line, Title: p.Title}

	if im.limiter != nil {
		if err := im.limiter.Wait(ctx); err != nil {
			res.Err = errImportCancelled
			return res
		}
	}
	if ctx.Err() != nil {
		res.Err = errImportCancelled
		return res
	}

	tagIDs, missing := tags.Resolve(p.TagNames)
	res.OmittedTags = len(missing)

	project, err := im.store.CreateProject(ctx, userID, BuildProjectInput(p, tagIDs))

	var linkErr *TagLinkError
	switch {
	case err == nil:
		res.ProjectID = project.ID
	case errors.As(err, &linkErr):
		res.ProjectID = project.ID
		res.Warning = fmt.Sprintf("%d tags not linked: %v", len(linkErr.TagIDs), linkErr.Err)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		res.Err = errImportCancelled
	default:
		res.Err = err
	}
	return res
}

// BuildProjectInput converts a normalized row into a creation request.
func BuildProjectInput(p PartialProject, tagIDs []uuid.UUID) ProjectInput {
	if tagIDs == nil {
		tagIDs = []uuid.UUID{}
	}
	return ProjectInput{
		Title:         p.Title,
		Status:        p.Status,
		Company:       p.Company,
		Artist:        p.Artist,
		DrillShape:    p.DrillShape,
		CanvasType:    p.CanvasType,
		DrillType:     p.DrillType,
		KitCategory:   p.KitCategory,
		Width:         p.Width,
		Height:        p.Height,
		TotalDiamonds: p.TotalDiamonds,
		Notes:         p.Notes,
		SourceURL:     p.SourceURL,
		DatePurchased: p.DatePurchased,
		DateStarted:   p.DateStarted,
		DateCompleted: p.DateCompleted,
		DateReceived:  p.DateReceived,
		TagIDs:        tagIDs,
	}
}

func outcomeOf(stats ImportStats) OutcomeKind {
	switch {
	case stats.Total == 0:
		return OutcomeEmpty
	case stats.Failed == stats.Total:
		return OutcomeFailed
	case stats.Failed > 0:
		return OutcomePartial
	case len(stats.TagWarnings) > 0:
		return OutcomeSuccessWithWarnings
	default:
		return OutcomeSuccess
	}
}

func (im *Importer) reject(ctx context.Context, tracker *progressTracker, fileName string, err error) error {
	tracker.fail(err)
	logging.FromContext(ctx).Warn("import rejected", "file", fileName, "error", err)
	if im.notifier != nil {
		im.notifier.ImportFailed(ctx, fileName, err)
	}
	return err
}

func (im *Importer) notify(ctx context.Context, result *ImportResult) {
	if im.notifier == nil {
		return
	}
	if result.AllSucceeded() {
		im.notifier.ImportSucceeded(ctx, result)
	} else {
		im.notifier.ImportWarned(ctx, result)
	}
}
