package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type countingRunner struct {
	mu     sync.Mutex
	probes int
	caps   *Capabilities
	err    error
}

func (r *countingRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes++
	if r.err != nil {
		return nil, r.err
	}
	caps := *r.caps
	caps.ProbedAt = time.Now()
	return &caps, nil
}

func (r *countingRunner) RenderVideo(ctx context.Context, planPath, outPath string) (RunResult, error) {
	return RunResult{}, errors.New("not implemented")
}

func (r *countingRunner) ValidateOutput(path string) error { return nil }

func (r *countingRunner) WorkDir() string { return "" }

func (r *countingRunner) probeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probes
}

func newTestDoctor() (*CachedDoctor, *countingRunner) {
	runner := &countingRunner{caps: &Capabilities{CanRender: true, RendererVersion: "2.1.0"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCachedDoctor(runner, logger), runner
}

func TestGetCachesWithinTTL(t *testing.T) {
	doctor, runner := newTestDoctor()
	ctx := context.Background()

	first, err := doctor.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := doctor.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if runner.probeCount() != 1 {
		t.Errorf("probes = %d, want 1", runner.probeCount())
	}
	if first != second {
		t.Errorf("second Get returned a different capabilities pointer")
	}
}

func TestGetReprobesAfterTTL(t *testing.T) {
	doctor, runner := newTestDoctor()
	doctor.ttl = 0
	ctx := context.Background()

	if _, err := doctor.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := doctor.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	if runner.probeCount() != 2 {
		t.Errorf("probes = %d, want 2", runner.probeCount())
	}
}

func TestRefreshReturnsStaleCacheOnProbeFailure(t *testing.T) {
	doctor, runner := newTestDoctor()
	ctx := context.Background()

	caps, err := doctor.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	runner.err = errors.New("renderer binary vanished")
	stale, err := doctor.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh with cache should fall back, got %v", err)
	}
	if stale != caps {
		t.Errorf("stale cache pointer differs")
	}
}

func TestGetFailsWithoutCache(t *testing.T) {
	doctor, runner := newTestDoctor()
	runner.err = errors.New("renderer not installed")

	if _, err := doctor.Get(context.Background()); err == nil {
		t.Fatalf("expected probe error with an empty cache")
	}
	if doctor.Peek() != nil {
		t.Errorf("Peek should stay nil after a failed probe")
	}
}

func TestInvalidateForcesReprobe(t *testing.T) {
	doctor, runner := newTestDoctor()
	ctx := context.Background()

	if _, err := doctor.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	doctor.Invalidate()
	if doctor.Peek() != nil {
		t.Errorf("Peek should be nil after Invalidate")
	}
	if _, err := doctor.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	if runner.probeCount() != 2 {
		t.Errorf("probes = %d, want 2", runner.probeCount())
	}
}

func TestPeekDoesNotProbe(t *testing.T) {
	doctor, runner := newTestDoctor()
	if doctor.Peek() != nil {
		t.Errorf("Peek before any probe should be nil")
	}
	if runner.probeCount() != 0 {
		t.Errorf("Peek triggered a probe")
	}
}
