package core

import (
	"context"

	"github.com/google/uuid"
)

// Store is the record-store collaborator used by imports. Every call is
// scoped to one user.
//
// Implementations must enforce slug uniqueness per user and report a
// violation as ErrSlugConflict. CreateProject links in.TagIDs as part of
// the create; if the project is saved but linking fails, it returns the
// project together with a *TagLinkError.
type Store interface {
	ListTags(ctx context.Context, userID uuid.UUID) ([]Tag, error)
	TagSlugExists(ctx context.Context, userID uuid.UUID, slug string) (bool, error)
	CreateTag(ctx context.Context, userID uuid.UUID, in TagInput) (Tag, error)
	CreateProject(ctx context.Context, userID uuid.UUID, in ProjectInput) (Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]Project, error)
}

// Notifier receives one terminal summary per import run.
type Notifier interface {
	ImportSucceeded(ctx context.Context, result *ImportResult)
	ImportWarned(ctx context.Context, result *ImportResult)
	ImportFailed(ctx context.Context, fileName string, err error)
}
