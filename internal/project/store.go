package project

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/montagehq/montage-engine/internal/apperr"
	"github.com/montagehq/montage-engine/internal/manifest"
)

// undoDepth bounds how many full snapshots are kept per session.
const undoDepth = 50

// ChangeListener is notified after a session's manifest changes, with the
// new revision counter.
type ChangeListener func(projectID string, m *manifest.Manifest, revision uint64)

type session struct {
	manifest  *manifest.Manifest
	revision  uint64
	appliedAt time.Time

	undo []*manifest.Manifest
	redo []*manifest.Manifest
}

// Store holds the live manifest session per project. It is the single
// mutation entry point: edits go through Apply, remote refreshes through
// ApplyRemote, and every change bumps a process-local revision counter used
// to re-key the renderer subtree (the counter is never persisted).
type Store struct {
	repo   Repository
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	active   string
	onChange ChangeListener
}

// NewStore creates a store over the given repository.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	return &Store{
		repo:     repo,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// OnChange registers the change listener. Must be called before sessions
// are opened.
func (s *Store) OnChange(fn ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Open loads a project's manifest into a live session. A project without a
// persisted manifest gets a fresh empty one.
func (s *Store) Open(ctx context.Context, projectID string) (*manifest.Manifest, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[projectID]; ok {
		m := sess.manifest
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	m, updatedAt, err := s.repo.GetManifest(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if m == nil {
		m = manifest.New()
		updatedAt = time.Now().UTC()
		if err := s.repo.SaveManifest(ctx, projectID, m, updatedAt); err != nil {
			return nil, fmt.Errorf("save initial manifest: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[projectID]; ok {
		return sess.manifest, nil
	}
	s.sessions[projectID] = &session{manifest: m, revision: 1, appliedAt: updatedAt}
	s.active = projectID
	return m, nil
}

// ActiveProject returns the most recently opened project, or "" when no
// session is live. The playback coordinator previews this project.
func (s *Store) ActiveProject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[s.active]; !ok {
		return ""
	}
	return s.active
}

// Close drops a project's session from memory.
func (s *Store) Close(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, projectID)
}

// OpenProjects lists the projects with live sessions.
func (s *Store) OpenProjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Current returns the session's manifest and revision counter.
func (s *Store) Current(projectID string) (*manifest.Manifest, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[projectID]
	if !ok {
		return nil, 0, fmt.Errorf("%w: project %s has no open session", apperr.ErrNotFound, projectID)
	}
	return sess.manifest, sess.revision, nil
}

// Apply runs a mutation op against the session's manifest, persists the
// result with a fresh updatedAt, bumps the revision, and notifies the
// change listener. A failed op leaves the session untouched.
func (s *Store) Apply(ctx context.Context, projectID string, op Op) (*manifest.Manifest, error) {
	s.mu.Lock()
	sess, ok := s.sessions[projectID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s has no open session", apperr.ErrNotFound, projectID)
	}
	prev := sess.manifest
	s.mu.Unlock()

	next, err := op(prev)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.SaveManifest(ctx, projectID, next, now); err != nil {
		return nil, fmt.Errorf("persist manifest: %w", err)
	}

	s.mu.Lock()
	sess.undo = append(sess.undo, prev)
	if len(sess.undo) > undoDepth {
		sess.undo = sess.undo[1:]
	}
	sess.redo = nil
	sess.manifest = next
	sess.revision++
	sess.appliedAt = now
	rev := sess.revision
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(projectID, next, rev)
	}
	return next, nil
}

// Undo restores the previous snapshot.
func (s *Store) Undo(ctx context.Context, projectID string) (*manifest.Manifest, error) {
	return s.restore(ctx, projectID, true)
}

// Redo reapplies an undone snapshot.
func (s *Store) Redo(ctx context.Context, projectID string) (*manifest.Manifest, error) {
	return s.restore(ctx, projectID, false)
}

func (s *Store) restore(ctx context.Context, projectID string, undo bool) (*manifest.Manifest, error) {
	s.mu.Lock()
	sess, ok := s.sessions[projectID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s has no open session", apperr.ErrNotFound, projectID)
	}

	var target *manifest.Manifest
	if undo {
		if len(sess.undo) == 0 {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: nothing to undo", apperr.ErrConflict)
		}
		target = sess.undo[len(sess.undo)-1]
	} else {
		if len(sess.redo) == 0 {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: nothing to redo", apperr.ErrConflict)
		}
		target = sess.redo[len(sess.redo)-1]
	}
	current := sess.manifest
	s.mu.Unlock()

	now := time.Now().UTC()
	if err := s.repo.SaveManifest(ctx, projectID, target, now); err != nil {
		return nil, fmt.Errorf("persist manifest: %w", err)
	}

	s.mu.Lock()
	if undo {
		sess.undo = sess.undo[:len(sess.undo)-1]
		sess.redo = append(sess.redo, current)
	} else {
		sess.redo = sess.redo[:len(sess.redo)-1]
		sess.undo = append(sess.undo, current)
	}
	sess.manifest = target
	sess.revision++
	sess.appliedAt = now
	rev := sess.revision
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(projectID, target, rev)
	}
	return target, nil
}

// ApplyRemote replaces the session manifest wholesale with a remote payload
// when its updatedAt is STRICTLY greater than the last applied timestamp.
// Equal or older payloads are discarded silently, which makes repeated
// deliveries of the same payload idempotent. Concurrent local and remote
// edits resolve last-applied-wins; there is no merge.
func (s *Store) ApplyRemote(ctx context.Context, projectID string, m *manifest.Manifest, updatedAt time.Time) (bool, error) {
	if m == nil {
		return false, nil
	}
	if err := m.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[projectID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: project %s has no open session", apperr.ErrNotFound, projectID)
	}
	if !updatedAt.After(sess.appliedAt) {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if err := s.repo.SaveManifest(ctx, projectID, m, updatedAt); err != nil {
		return false, fmt.Errorf("persist manifest: %w", err)
	}

	s.mu.Lock()
	// Re-check under lock: a local edit may have advanced appliedAt while
	// we were persisting.
	if !updatedAt.After(sess.appliedAt) {
		s.mu.Unlock()
		return false, nil
	}
	sess.undo = append(sess.undo, sess.manifest)
	if len(sess.undo) > undoDepth {
		sess.undo = sess.undo[1:]
	}
	sess.redo = nil
	sess.manifest = m
	sess.revision++
	sess.appliedAt = updatedAt
	rev := sess.revision
	fn := s.onChange
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("applied remote manifest", "project_id", projectID, "updated_at", updatedAt)
	}
	if fn != nil {
		fn(projectID, m, rev)
	}
	return true, nil
}
