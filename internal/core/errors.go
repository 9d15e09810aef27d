package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Pre-flight failures. Each aborts a run before anything is written.
var (
	ErrNotCSV          = errors.New("not a csv file: expected a .csv extension")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnauthenticated = errors.New("not authenticated")
)

// ErrImportNotFound is returned when an import id is unknown or has expired.
var ErrImportNotFound = errors.New("import not found")

// ErrSlugConflict is returned by a Store when a tag slug is already taken
// for the user. The tag resolver treats it as "try the next slug".
var ErrSlugConflict = errors.New("tag slug already exists")

// EmptyInputError means the file had no header row.
type EmptyInputError struct {
	FileName string
}

func (e *EmptyInputError) Error() string {
	if e.FileName == "" {
		return "empty file: no header row found"
	}
	return fmt.Sprintf("empty file: no header row found in %s", e.FileName)
}

// UnreadableInputError means the file could not be read at all.
type UnreadableInputError struct {
	Err error
}

func (e *UnreadableInputError) Error() string {
	return fmt.Sprintf("unreadable input: %v", e.Err)
}

func (e *UnreadableInputError) Unwrap() error {
	return e.Err
}

// PreflightError marks a fatal input problem detected before any mutation.
type PreflightError struct {
	FileName string
	Err      error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("import %s rejected: %v", e.FileName, e.Err)
}

func (e *PreflightError) Unwrap() error {
	return e.Err
}

// IsFatalInput reports whether err aborted a run before any mutation.
func IsFatalInput(err error) bool {
	var pe *PreflightError
	var ee *EmptyInputError
	var ue *UnreadableInputError
	return errors.As(err, &pe) || errors.As(err, &ee) || errors.As(err, &ue)
}

// TagLinkError is returned by a Store when the project was created but some
// tag associations could not be written. The project is still persisted.
type TagLinkError struct {
	ProjectID uuid.UUID
	TagIDs    []uuid.UUID
	Err       error
}

func (e *TagLinkError) Error() string {
	return fmt.Sprintf("link %d tags to project %s: %v", len(e.TagIDs), e.ProjectID, e.Err)
}

func (e *TagLinkError) Unwrap() error {
	return e.Err
}
