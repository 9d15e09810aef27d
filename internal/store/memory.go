package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/kitstash/internal/core"
)

// Memory is a mutex-guarded core.Store for local runs and tests. It
// enforces the same per-user slug uniqueness as the Postgres schema.
type Memory struct {
	mu       sync.RWMutex
	tags     map[uuid.UUID][]core.Tag
	projects map[uuid.UUID][]core.Project
	now      func() time.Time
}

var _ core.Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		tags:     make(map[uuid.UUID][]core.Tag),
		projects: make(map[uuid.UUID][]core.Project),
		now:      time.Now,
	}
}

func (m *Memory) ListTags(ctx context.Context, userID uuid.UUID) ([]core.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Tag{}, m.tags[userID]...), nil
}

func (m *Memory) TagSlugExists(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slugTaken(userID, slug), nil
}

func (m *Memory) CreateTag(ctx context.Context, userID uuid.UUID, in core.TagInput) (core.Tag, error) {
	if err := ctx.Err(); err != nil {
		return core.Tag{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slugTaken(userID, in.Slug) {
		return core.Tag{}, fmt.Errorf("insert tag %q: %w", in.Slug, core.ErrSlugConflict)
	}

	t := core.Tag{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      in.Name,
		Slug:      in.Slug,
		CreatedAt: m.now(),
	}
	m.tags[userID] = append(m.tags[userID], t)
	return t, nil
}

// CreateProject stores the project and links the tags the user owns. Any
// unknown tag leaves the project unlinked and returns a *core.TagLinkError
// with it.
func (m *Memory) CreateProject(ctx context.Context, userID uuid.UUID, in core.ProjectInput) (core.Project, error) {
	if err := ctx.Err(); err != nil {
		return core.Project{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := core.Project{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         in.Title,
		Status:        in.Status,
		Company:       in.Company,
		Artist:        in.Artist,
		DrillShape:    in.DrillShape,
		CanvasType:    in.CanvasType,
		DrillType:     in.DrillType,
		KitCategory:   in.KitCategory,
		Width:         in.Width,
		Height:        in.Height,
		TotalDiamonds: in.TotalDiamonds,
		Notes:         in.Notes,
		SourceURL:     in.SourceURL,
		DatePurchased: in.DatePurchased,
		DateStarted:   in.DateStarted,
		DateCompleted: in.DateCompleted,
		DateReceived:  in.DateReceived,
		TagIDs:        []uuid.UUID{},
		CreatedAt:     m.now(),
	}

	var linkErr error
	for _, id := range in.TagIDs {
		if !m.ownsTag(userID, id) {
			linkErr = fmt.Errorf("link tag %s: tag not found", id)
			break
		}
	}
	if linkErr == nil {
		p.TagIDs = append(p.TagIDs, in.TagIDs...)
	}

	m.projects[userID] = append(m.projects[userID], p)

	if linkErr != nil {
		return p, &core.TagLinkError{ProjectID: p.ID, TagIDs: in.TagIDs, Err: linkErr}
	}
	return p, nil
}

func (m *Memory) ListProjects(ctx context.Context, userID uuid.UUID) ([]core.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Project{}, m.projects[userID]...), nil
}

// slugTaken must be called with mu held.
func (m *Memory) slugTaken(userID uuid.UUID, slug string) bool {
	for _, t := range m.tags[userID] {
		if t.Slug == slug {
			return true
		}
	}
	return false
}

// ownsTag must be called with mu held.
func (m *Memory) ownsTag(userID, tagID uuid.UUID) bool {
	for _, t := range m.tags[userID] {
		if t.ID == tagID {
			return true
		}
	}
	return false
}
