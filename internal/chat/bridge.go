package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/montagehq/montage-engine/internal/apperr"
)

// Notifier receives incremental chat events for UI push. Implementations
// must not block.
type Notifier interface {
	ChatDelta(projectID, content string)
	ChatTool(projectID string, tc ToolCall)
	ChatMessage(projectID string, m Message)
}

// Bridge runs streamed chat exchanges: it opens the stream, drives a
// Session over the scanner, mirrors the transcript locally, and signals
// manifest refreshes when agent tool calls touched the timeline. At most
// one exchange per project is in flight at a time.
type Bridge struct {
	client   *Client
	repo     Repository
	notifier Notifier
	logger   *slog.Logger

	// onManifestTouched fires after an exchange whose tool results modified
	// the timeline server-side, so the caller can refresh immediately
	// instead of waiting for the reconciler tick.
	onManifestTouched func(projectID string)

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func NewBridge(client *Client, repo Repository, notifier Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		client:   client,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		inflight: make(map[string]context.CancelFunc),
	}
}

// OnManifestTouched registers the refresh callback.
func (b *Bridge) OnManifestTouched(fn func(projectID string)) {
	b.onManifestTouched = fn
}

// Busy reports whether an exchange is in flight for the project.
func (b *Bridge) Busy(projectID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.inflight[projectID]
	return ok
}

// Cancel aborts an in-flight exchange. A user cancel is silent: no error
// message lands in the transcript.
func (b *Bridge) Cancel(projectID string) bool {
	b.mu.Lock()
	cancel, ok := b.inflight[projectID]
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Send runs one full exchange and returns the finalized assistant message,
// nil when the stream accumulated nothing. It blocks until the stream
// completes, fails, or is cancelled.
func (b *Bridge) Send(ctx context.Context, projectID, message string) (*Message, error) {
	b.mu.Lock()
	if _, ok := b.inflight[projectID]; ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: chat stream in flight for project %s", apperr.ErrBusy, projectID)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	b.inflight[projectID] = cancel
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		delete(b.inflight, projectID)
		b.mu.Unlock()
	}()

	userMsg := Message{
		ID:        uuid.NewString(),
		Role:      "user",
		Content:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.repo.SaveMessage(ctx, projectID, &userMsg); err != nil {
		b.logger.Warn("failed to mirror user message", "project_id", projectID, "error", err)
	}

	session := NewSession()
	if b.notifier != nil {
		session.OnDelta(func(delta string) { b.notifier.ChatDelta(projectID, delta) })
		session.OnTool(func(tc ToolCall) { b.notifier.ChatTool(projectID, tc) })
	}

	body, err := b.client.OpenStream(streamCtx, projectID, message)
	if err != nil {
		if userCancelled(streamCtx, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	defer body.Close()

	session.Begin()
	scanner := NewScanner(body)

	for {
		ev, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if userCancelled(streamCtx, err) {
				// Silent: discard the partial turn entirely.
				session.Fail()
				return nil, nil
			}
			// Genuine transport failure: surface it inline and finalize
			// what was accumulated.
			b.logger.Warn("chat stream failed", "project_id", projectID, "error", err)
			session.AppendError(err.Error())
			break
		}
		session.Consume(ev)
	}

	assistant, ok := session.Finalize()
	if !ok {
		return nil, nil
	}

	if err := b.repo.SaveMessage(ctx, projectID, assistant); err != nil {
		b.logger.Warn("failed to mirror assistant message", "project_id", projectID, "error", err)
	}
	if b.notifier != nil {
		b.notifier.ChatMessage(projectID, *assistant)
	}
	if session.ManifestTouched() && b.onManifestTouched != nil {
		b.onManifestTouched(projectID)
	}
	return assistant, nil
}

// History returns the local transcript mirror, falling back to the remote
// endpoint when the mirror is empty.
func (b *Bridge) History(ctx context.Context, projectID string) ([]Message, error) {
	local, err := b.repo.ListMessages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		return local, nil
	}

	remote, err := b.client.History(ctx, projectID)
	if err != nil {
		b.logger.Warn("remote history fetch failed", "project_id", projectID, "error", err)
		return local, nil
	}
	for i := range remote {
		if err := b.repo.SaveMessage(ctx, projectID, &remote[i]); err != nil {
			b.logger.Warn("failed to mirror history message", "project_id", projectID, "error", err)
		}
	}
	return remote, nil
}

// Clear wipes both the local mirror and the remote transcript. A remote
// failure is logged and swallowed; the mirror is authoritative locally.
func (b *Bridge) Clear(ctx context.Context, projectID string) error {
	if err := b.repo.ClearMessages(ctx, projectID); err != nil {
		return err
	}
	if err := b.client.ClearHistory(ctx, projectID); err != nil {
		b.logger.Warn("remote history clear failed", "project_id", projectID, "error", err)
	}
	return nil
}

func userCancelled(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled)
}
