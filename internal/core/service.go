package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/kitstash/internal/logging"
)

// DefaultImportTimeout bounds a single background import run.
const DefaultImportTimeout = 10 * time.Minute

// DefaultResultRetention is how long a finished import stays queryable.
const DefaultResultRetention = 5 * time.Minute

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Import          ImportOptions
	MaxConcurrent   int
	MaxWaitTime     time.Duration
	Timeout         time.Duration
	ResultRetention time.Duration
}

// Service runs imports in the background and tracks their progress so
// several clients can follow the same run.
type Service struct {
	store    Store
	importer *Importer
	limiter  *ImportLimiter
	opts     ServiceOptions

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	ID         string
	UserID     uuid.UUID
	FileName   string
	Cancel     context.CancelFunc
	Progress   ImportProgress
	Result     *ImportResult
	Err        error
	Done       chan struct{}
	Listeners  []chan ImportProgress
	ListenerMu sync.Mutex
}

// NewService creates a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, opts ServiceOptions) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultImportTimeout
	}
	if opts.ResultRetention <= 0 {
		opts.ResultRetention = DefaultResultRetention
	}

	return &Service{
		store:    store,
		importer: NewImporter(store, notifier, opts.Import),
		limiter:  NewImportLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		opts:     opts,
		imports:  make(map[string]*activeImport),
	}
}

// MaxFileSize returns the largest accepted file in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.importer.MaxFileSize()
}

// StartImport validates the file and begins an asynchronous import.
// Returns the import ID immediately; use SubscribeProgress or GetResult to
// follow it.
//
// Pre-flight failures are returned synchronously as *PreflightError. If
// the user already has an import running, StartImport waits for it up to
// the configured wait time. The Service takes ownership of file.Reader and
// closes it when the run ends if it implements io.Closer.
func (s *Service) StartImport(ctx context.Context, file ImportFile) (string, error) {
	userID, err := s.importer.Preflight(ctx, file)
	if err != nil {
		closeReader(file.Reader)
		return "", err
	}

	if err := s.limiter.Acquire(ctx, userID); err != nil {
		closeReader(file.Reader)
		return "", err
	}

	importID := uuid.NewString()

	// The run outlives the request but keeps its identity and request ID.
	runCtx := ContextWithUserID(context.WithoutCancel(ctx), userID)
	runCtx, cancel := context.WithTimeout(runCtx, s.opts.Timeout)

	imp := &activeImport{
		ID:       importID,
		UserID:   userID,
		FileName: file.Name,
		Cancel:   cancel,
		Progress: ImportProgress{
			ImportID: importID,
			FileName: file.Name,
			Phase:    PhaseIdle,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan ImportProgress, 0),
	}

	s.mu.Lock()
	s.imports[importID] = imp
	s.mu.Unlock()

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.limiter.Release(userID)
		defer cancel()
		defer closeReader(file.Reader)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import",
					"import_id", importID,
					"file", file.Name,
					"panic", r,
				)
				imp.finish(nil, fmt.Errorf("internal error: %v", r))
				s.cleanup(importID, s.opts.ResultRetention)
			}
		}()
		s.processImport(runCtx, imp, file)
	}()

	return importID, nil
}

func (s *Service) processImport(ctx context.Context, imp *activeImport, file ImportFile) {
	result, err := s.importer.Run(ctx, imp.ID, file, imp.update)
	if err != nil {
		logging.FromContext(ctx).Debug("background import rejected", "import_id", imp.ID, "error", err)
	}
	imp.finish(result, err)
	s.cleanup(imp.ID, s.opts.ResultRetention)
}

// ImportFromCSV runs an import synchronously and returns its result.
// It shares the concurrency limits with background imports.
func (s *Service) ImportFromCSV(ctx context.Context, file ImportFile, onProgress ProgressCallback) (*ImportResult, error) {
	userID, err := s.importer.Preflight(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx, userID); err != nil {
		return nil, err
	}
	defer s.limiter.Release(userID)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	return s.importer.Run(ctx, "", file, onProgress)
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	imp, err := s.get(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 10)

	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	// Send current progress immediately
	ch <- imp.Progress

	select {
	case <-imp.Done:
		close(ch)
	default:
		imp.Listeners = append(imp.Listeners, ch)
	}

	return ch, nil
}

// CancelImport cancels an in-progress import. Rows already created stay.
func (s *Service) CancelImport(importID string) error {
	imp, err := s.get(importID)
	if err != nil {
		return err
	}
	imp.Cancel()
	return nil
}

// GetResult returns the result of an import, blocking until it completes
// or ctx is done. A rejected file returns its pre-flight or input error.
func (s *Service) GetResult(ctx context.Context, importID string) (*ImportResult, error) {
	imp, err := s.get(importID)
	if err != nil {
		return nil, err
	}

	select {
	case <-imp.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return imp.Result, imp.Err
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(importID string) (ImportProgress, error) {
	imp, err := s.get(importID)
	if err != nil {
		return ImportProgress{}, err
	}

	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()
	return imp.Progress, nil
}

// ListTags returns the tags owned by the user in ctx.
func (s *Service) ListTags(ctx context.Context) ([]Tag, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.store.ListTags(ctx, userID)
}

// ListProjects returns the projects owned by the user in ctx.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.store.ListProjects(ctx, userID)
}

// ImportLimiterStatus returns the current limiter state for monitoring.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until every running import finishes or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every tracked import.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, imp := range s.imports {
		imp.Cancel()
	}
}

func (s *Service) get(importID string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return imp, nil
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}

// update stores p and forwards it to listeners.
func (imp *activeImport) update(p ImportProgress) {
	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()
	imp.Progress = p
	imp.notifyProgress()
}

// notifyProgress sends progress to all listeners without blocking.
// Must be called with ListenerMu held.
func (imp *activeImport) notifyProgress() {
	for _, ch := range imp.Listeners {
		select {
		case ch <- imp.Progress:
		default:
			// Skip if listener is slow
		}
	}
}

// finish records the outcome, closes listeners and releases GetResult
// waiters. Safe to call more than once; only the first call counts.
func (imp *activeImport) finish(result *ImportResult, err error) {
	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	select {
	case <-imp.Done:
		return
	default:
	}

	imp.Result = result
	imp.Err = err
	if err != nil && imp.Progress.Phase != PhaseFailed {
		imp.Progress.Phase = PhaseFailed
		imp.Progress.Error = err.Error()
		imp.notifyProgress()
	}

	for _, ch := range imp.Listeners {
		close(ch)
	}
	imp.Listeners = nil
	close(imp.Done)
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
