// Package core provides the business logic for CSV project imports.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusWishlist  ProjectStatus = "wishlist"
	StatusPurchased ProjectStatus = "purchased"
	StatusStash     ProjectStatus = "stash"
	StatusProgress  ProjectStatus = "progress"
	StatusCompleted ProjectStatus = "completed"
	StatusArchived  ProjectStatus = "archived"
	StatusDestashed ProjectStatus = "destashed"
)

// KitCategory classifies a kit by size. The zero value means unknown.
type KitCategory string

const (
	KitCategoryFull KitCategory = "full"
	KitCategoryMini KitCategory = "mini"
)

// RawRow maps a normalized (lower-cased, trimmed) header to the raw cell value.
type RawRow map[string]string

// Record is one parsed data line together with its 1-indexed source line.
type Record struct {
	Line   int
	Fields RawRow
}

// PartialProject is a normalized CSV row, ready to become a creation request.
// Empty strings and nil pointers mean the field was not supplied or could
// not be parsed.
type PartialProject struct {
	Line          int
	Title         string
	Status        ProjectStatus
	Company       string
	Artist        string
	DrillShape    string
	CanvasType    string
	DrillType     string
	KitCategory   KitCategory
	Width         *float64
	Height        *float64
	TotalDiamonds *int
	Notes         string
	SourceURL     string

	// Dates are date-only values in YYYY-MM-DD form.
	DatePurchased string
	DateStarted   string
	DateCompleted string
	DateReceived  string

	// TagNames is never nil.
	TagNames []string
}

// Tag is a user-scoped label. Slug is unique among one user's tags.
type Tag struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// TagInput is the creation request for a tag.
type TagInput struct {
	Name string
	Slug string
}

// ProjectInput is the creation request for a project.
type ProjectInput struct {
	Title         string
	Status        ProjectStatus
	Company       string
	Artist        string
	DrillShape    string
	CanvasType    string
	DrillType     string
	KitCategory   KitCategory
	Width         *float64
	Height        *float64
	TotalDiamonds *int
	Notes         string
	SourceURL     string
	DatePurchased string
	DateStarted   string
	DateCompleted string
	DateReceived  string
	TagIDs        []uuid.UUID
}

// Project is a persisted project.
type Project struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"userId"`
	Title         string        `json:"title"`
	Status        ProjectStatus `json:"status"`
	Company       string        `json:"company,omitempty"`
	Artist        string        `json:"artist,omitempty"`
	DrillShape    string        `json:"drillShape,omitempty"`
	CanvasType    string        `json:"canvasType,omitempty"`
	DrillType     string        `json:"drillType,omitempty"`
	KitCategory   KitCategory   `json:"kitCategory,omitempty"`
	Width         *float64      `json:"width,omitempty"`
	Height        *float64      `json:"height,omitempty"`
	TotalDiamonds *int          `json:"totalDiamonds,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	SourceURL     string        `json:"sourceUrl,omitempty"`
	DatePurchased string        `json:"datePurchased,omitempty"`
	DateStarted   string        `json:"dateStarted,omitempty"`
	DateCompleted string        `json:"dateCompleted,omitempty"`
	DateReceived  string        `json:"dateReceived,omitempty"`
	TagIDs        []uuid.UUID   `json:"tagIds"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ImportPhase indicates the current stage of an import run.
type ImportPhase string

const (
	PhaseIdle             ImportPhase = "idle"
	PhaseValidating       ImportPhase = "validating"
	PhaseParsing          ImportPhase = "parsing"
	PhaseResolvingTags    ImportPhase = "resolving_tags"
	PhaseCreatingProjects ImportPhase = "creating_projects"
	PhaseCompleted        ImportPhase = "completed"
	PhaseFailed           ImportPhase = "failed"
)

// ImportProgress represents the current state of an import run.
type ImportProgress struct {
	ImportID   string      `json:"importId,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	Phase      ImportPhase `json:"phase"`
	Percent    int         `json:"percent"`
	TotalRows  int         `json:"totalRows"`
	Processed  int         `json:"processed"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Error      string      `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// ProgressCallback is called whenever import progress changes.
type ProgressCallback func(ImportProgress)

// ImportStats is the per-run accounting returned to the caller.
type ImportStats struct {
	Successful  int      `json:"successful"`
	Failed      int      `json:"failed"`
	Total       int      `json:"total"`
	Errors      []string `json:"errors"`
	TagWarnings []string `json:"tagWarnings"`
}

// OutcomeKind summarizes how a completed run went.
type OutcomeKind string

const (
	OutcomeSuccess             OutcomeKind = "success"
	OutcomeSuccessWithWarnings OutcomeKind = "success_with_warnings"
	OutcomePartial             OutcomeKind = "partial"
	OutcomeFailed              OutcomeKind = "failed"
	OutcomeEmpty               OutcomeKind = "empty"
)

// ImportResult contains the final result of an import run.
type ImportResult struct {
	ImportID      string        `json:"importId,omitempty"`
	FileName      string        `json:"fileName"`
	Outcome       OutcomeKind   `json:"outcome"`
	Stats         ImportStats   `json:"stats"`
	SkippedRows   int           `json:"skippedRows"`
	ParseWarnings []string      `json:"parseWarnings"`
	TagsCreated   int           `json:"tagsCreated"`
	TagsOmitted   int           `json:"tagsOmitted"`
	Cancelled     bool          `json:"cancelled"`
	Duration      time.Duration `json:"duration"`
}

// AllSucceeded reports whether every row was created with no warnings.
func (r *ImportResult) AllSucceeded() bool {
	return r.Outcome == OutcomeSuccess
}

// ImportFile is the caller-supplied file handle for an import.
// Size may be 0 if unknown; the reader is then capped at the configured maximum.
type ImportFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}
