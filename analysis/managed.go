package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RyanBlaney/sonido-splice/logging"
	"github.com/RyanBlaney/sonido-splice/transcode"
)

// Backend is a higher-fidelity analyzer that can stand in for the basic
// extractor. Load is called once before the first Analyze.
type Backend interface {
	Name() string
	Load(ctx context.Context) error
	Analyze(ctx context.Context, audio *transcode.AudioData) (*Result, error)
}

// BackendState is the lifecycle state of a managed backend
type BackendState int

const (
	StateUninitialized BackendState = iota
	StateLoading
	StateReady
	StateFailed
)

func (s BackendState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BackendStatus is a snapshot of the backend lifecycle
type BackendStatus struct {
	Backend string       `json:"backend"`
	State   BackendState `json:"state"`
	Err     error        `json:"-"`
}

// ErrBackendUnavailable is reported when no backend is configured or it failed to load
var ErrBackendUnavailable = errors.New("analysis backend unavailable")

// ManagedExtractor owns an optional Backend and a fallback extractor. The
// backend is loaded lazily on first use; while it is not Ready, fails, or
// returns a result that breaks the Result contract, the fallback answers
// instead. Callers never see backend errors.
type ManagedExtractor struct {
	backend  Backend
	fallback Extractor

	mu      sync.Mutex
	state   BackendState
	loadErr error
	loaded  chan struct{}

	logger logging.Logger
}

// NewManagedExtractor wraps backend (may be nil) with fallback
func NewManagedExtractor(backend Backend, fallback Extractor) *ManagedExtractor {
	return &ManagedExtractor{
		backend:  backend,
		fallback: fallback,
		logger: logging.WithFields(logging.Fields{
			"component": "managed_extractor",
		}),
	}
}

// Status reports the backend lifecycle state
func (m *ManagedExtractor) Status() BackendStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := "none"
	if m.backend != nil {
		name = m.backend.Name()
	}
	return BackendStatus{Backend: name, State: m.state, Err: m.loadErr}
}

// Load loads the backend if it has not been attempted yet and waits for the
// outcome. Concurrent callers share one attempt. A failed load is final
// unless it failed because ctx was cancelled, in which case a waiting caller
// retries it.
func (m *ManagedExtractor) Load(ctx context.Context) error {
	if m.backend == nil {
		return ErrBackendUnavailable
	}

	m.mu.Lock()
	// a load abandoned by its caller leaves the state uninitialized; waiters
	// then take over the attempt
	for m.state == StateLoading {
		loaded := m.loaded
		m.mu.Unlock()
		select {
		case <-loaded:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
	}
	switch m.state {
	case StateReady:
		m.mu.Unlock()
		return nil
	case StateFailed:
		err := m.loadErr
		m.mu.Unlock()
		return err
	}

	m.state = StateLoading
	m.loaded = make(chan struct{})
	m.mu.Unlock()

	err := m.backend.Load(ctx)

	m.mu.Lock()
	if err != nil && ctx.Err() != nil {
		// the caller gave up; let the next request try again
		m.state = StateUninitialized
		close(m.loaded)
		m.mu.Unlock()
		return ctx.Err()
	}
	if err != nil {
		m.state = StateFailed
		m.loadErr = fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, m.backend.Name(), err)
		err = m.loadErr
	} else {
		m.state = StateReady
	}
	close(m.loaded)
	m.mu.Unlock()

	return err
}

// Analyze prefers the backend and degrades to the fallback
func (m *ManagedExtractor) Analyze(ctx context.Context, audio *transcode.AudioData) (*Result, error) {
	logger := m.logger.WithContext(ctx)

	if m.backend != nil {
		result, err := m.analyzeWithBackend(ctx, audio)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("analysis degraded", logging.Fields{
			"backend": m.backend.Name(),
			"reason":  err.Error(),
		})
	}

	return m.fallback.Analyze(ctx, audio)
}

func (m *ManagedExtractor) analyzeWithBackend(ctx context.Context, audio *transcode.AudioData) (result *Result, err error) {
	if err := m.Load(ctx); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("backend %s panicked: %v", m.backend.Name(), r)
		}
	}()

	result, err = m.backend.Analyze(ctx, audio)
	if err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("backend %s broke the result contract: %w", m.backend.Name(), err)
	}
	if result.Source == "" {
		result.Source = m.backend.Name()
	}
	return result, nil
}
