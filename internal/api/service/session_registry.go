package service

import (
	"context"
	"sync"

	"jobdef/internal/api/models"
	"jobdef/internal/api/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type registryEntry struct {
	mu      sync.Mutex
	session *JobSession
}

// SessionRegistry keeps the open edit sessions of the HTTP service. Sessions
// are used by one caller at a time.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*registryEntry

	store    store.Store
	notifier Notifier
	opts     []SessionOption
	logger   zerolog.Logger
}

func NewSessionRegistry(jobStore store.Store, notifier Notifier, logger zerolog.Logger, opts ...SessionOption) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[uuid.UUID]*registryEntry),
		store:    jobStore,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Open creates and loads a session and returns its id
func (slf *SessionRegistry) Open(ctx context.Context, jobCtx models.JobContext) (uuid.UUID, *JobSession, error) {
	opts := append([]SessionOption{WithLogger(slf.logger)}, slf.opts...)
	if slf.notifier != nil {
		opts = append(opts, WithNotifier(slf.notifier))
	}
	session, err := NewJobSession(jobCtx, slf.store, opts...)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if err := session.Load(ctx); err != nil {
		return uuid.Nil, nil, err
	}

	id := uuid.New()
	slf.mu.Lock()
	slf.sessions[id] = &registryEntry{session: session}
	slf.mu.Unlock()

	slf.logger.Info().Str("sessionId", id.String()).Str("mode", string(jobCtx.Mode)).Msg("Edit session opened")
	return id, session, nil
}

// With runs fn with exclusive use of the session
func (slf *SessionRegistry) With(id uuid.UUID, fn func(*JobSession) error) error {
	slf.mu.RLock()
	entry, ok := slf.sessions[id]
	slf.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session == nil {
		return ErrSessionNotFound
	}
	return fn(entry.session)
}

// Close abandons a session. Local changes that were not applied are dropped.
func (slf *SessionRegistry) Close(id uuid.UUID) error {
	slf.mu.Lock()
	entry, ok := slf.sessions[id]
	delete(slf.sessions, id)
	slf.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	entry.session = nil
	entry.mu.Unlock()

	slf.logger.Info().Str("sessionId", id.String()).Msg("Edit session closed")
	return nil
}

func (slf *SessionRegistry) Len() int {
	slf.mu.RLock()
	defer slf.mu.RUnlock()
	return len(slf.sessions)
}
