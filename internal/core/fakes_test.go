package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store with failure hooks.
type fakeStore struct {
	mu       sync.Mutex
	tags     map[uuid.UUID][]Tag
	projects map[uuid.UUID][]Project

	listTagsErr     error
	createTagErr    map[string]error // by tag name
	createProjErr   map[string]error // by project title
	linkErr         map[string]error // by project title
	racedSlugs      map[string]bool  // CreateTag reports a conflict once
	projectDelay    time.Duration
	onCreateProject func(in ProjectInput)
	createTagCalls  int
	slugExistsCalls int

	// inFlight tracks concurrent CreateProject calls.
	inFlight    int
	maxInFlight int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tags:          make(map[uuid.UUID][]Tag),
		projects:      make(map[uuid.UUID][]Project),
		createTagErr:  make(map[string]error),
		createProjErr: make(map[string]error),
		linkErr:       make(map[string]error),
		racedSlugs:    make(map[string]bool),
	}
}

func (f *fakeStore) seedTag(userID uuid.UUID, name, slug string) Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := Tag{ID: uuid.New(), UserID: userID, Name: name, Slug: slug, CreatedAt: time.Now()}
	f.tags[userID] = append(f.tags[userID], t)
	return t
}

func (f *fakeStore) ListTags(ctx context.Context, userID uuid.UUID) ([]Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listTagsErr != nil {
		return nil, f.listTagsErr
	}
	return append([]Tag(nil), f.tags[userID]...), nil
}

func (f *fakeStore) TagSlugExists(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slugExistsCalls++
	for _, t := range f.tags[userID] {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateTag(ctx context.Context, userID uuid.UUID, in TagInput) (Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createTagCalls++
	if err := f.createTagErr[in.Name]; err != nil {
		return Tag{}, err
	}
	if f.racedSlugs[in.Slug] {
		delete(f.racedSlugs, in.Slug)
		f.tags[userID] = append(f.tags[userID], Tag{ID: uuid.New(), UserID: userID, Name: "other writer", Slug: in.Slug})
		return Tag{}, fmt.Errorf("insert tag: %w", ErrSlugConflict)
	}
	for _, t := range f.tags[userID] {
		if t.Slug == in.Slug {
			return Tag{}, fmt.Errorf("insert tag: %w", ErrSlugConflict)
		}
	}
	t := Tag{ID: uuid.New(), UserID: userID, Name: in.Name, Slug: in.Slug, CreatedAt: time.Now()}
	f.tags[userID] = append(f.tags[userID], t)
	return t, nil
}

func (f *fakeStore) CreateProject(ctx context.Context, userID uuid.UUID, in ProjectInput) (Project, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.projectDelay
	hook := f.onCreateProject
	f.mu.Unlock()

	if hook != nil {
		hook(in)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Project{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.createProjErr[in.Title]; err != nil {
		return Project{}, err
	}

	p := Project{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     in.Title,
		Status:    in.Status,
		TagIDs:    in.TagIDs,
		CreatedAt: time.Now(),
	}
	if err := f.linkErr[in.Title]; err != nil {
		p.TagIDs = []uuid.UUID{}
		f.projects[userID] = append(f.projects[userID], p)
		return p, &TagLinkError{ProjectID: p.ID, TagIDs: in.TagIDs, Err: err}
	}
	f.projects[userID] = append(f.projects[userID], p)
	return p, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, userID uuid.UUID) ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Project(nil), f.projects[userID]...), nil
}

func (f *fakeStore) tagsFor(userID uuid.UUID) []Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Tag(nil), f.tags[userID]...)
}

func (f *fakeStore) projectsFor(userID uuid.UUID) []Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Project(nil), f.projects[userID]...)
}

// recordingNotifier captures terminal notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	succeeded []*ImportResult
	warned    []*ImportResult
	failed    []error
}

func (n *recordingNotifier) ImportSucceeded(ctx context.Context, result *ImportResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, result)
}

func (n *recordingNotifier) ImportWarned(ctx context.Context, result *ImportResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warned = append(n.warned, result)
}

func (n *recordingNotifier) ImportFailed(ctx context.Context, fileName string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, err)
}

var errBoom = errors.New("boom")
