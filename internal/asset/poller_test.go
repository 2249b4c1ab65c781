package asset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/montagehq/montage-engine/internal/generate"
)

type memoryRepo struct {
	mu     sync.Mutex
	assets map[string]*Asset
	jobs   map[string]*Job
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{assets: make(map[string]*Asset), jobs: make(map[string]*Job)}
}

func (r *memoryRepo) CreateAsset(_ context.Context, a *Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.ID] = a
	return nil
}

func (r *memoryRepo) GetAsset(_ context.Context, id string) (*Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assets[id], nil
}

func (r *memoryRepo) ListAssets(_ context.Context, projectID string) ([]*Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Asset
	for _, a := range r.assets {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteAsset(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, id)
	return nil
}

func (r *memoryRepo) CreateJob(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memoryRepo) GetJob(_ context.Context, id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *memoryRepo) ListJobs(_ context.Context, projectID string, _ int) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, j := range r.jobs {
		if j.ProjectID == projectID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPollableJobs(_ context.Context) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, j := range r.jobs {
		if j.Kind != JobKindExport && (j.Status == JobStatusPending || j.Status == JobStatusProcessing) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) CountActiveJobs(_ context.Context, projectID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, j := range r.jobs {
		if j.ProjectID == projectID && (j.Status == JobStatusPending || j.Status == JobStatusProcessing) {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) UpdateJobStatus(_ context.Context, id, status, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.Status = status
		j.Error = errorMsg
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *memoryRepo) UpdateJobProgress(_ context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.Progress = progress
	}
	return nil
}

func (r *memoryRepo) SetJobResult(_ context.Context, id, assetID, outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.AssetID = assetID
		j.OutputPath = outputPath
	}
	return nil
}

type scriptedProvider struct {
	mu       sync.Mutex
	statuses map[string][]*generate.JobStatus
	err      error
	polls    int
}

func (p *scriptedProvider) Submit(_ context.Context, _, _ string) (string, error) {
	return "remote-1", nil
}

func (p *scriptedProvider) Status(_ context.Context, remoteID string) (*generate.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.err != nil {
		return nil, p.err
	}
	queue := p.statuses[remoteID]
	if len(queue) == 0 {
		return &generate.JobStatus{Status: generate.StatusPending}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		p.statuses[remoteID] = queue[1:]
	}
	return next, nil
}

type countingNotifier struct {
	mu          sync.Mutex
	jobUpdates  []Job
	assetEvents []Asset
}

func (n *countingNotifier) JobUpdated(j *Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobUpdates = append(n.jobUpdates, *j)
}

func (n *countingNotifier) AssetCreated(a *Asset) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assetEvents = append(n.assetEvents, *a)
}

func intPtr(v int) *int { return &v }

func newTestPoller(t *testing.T, provider generate.Client) (*Poller, *memoryRepo, *countingNotifier) {
	t.Helper()
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(repo, provider, logger)
	notifier := &countingNotifier{}
	return NewPoller(repo, service, provider, notifier, time.Second, logger), repo, notifier
}

func seedJob(t *testing.T, repo *memoryRepo, kind string) *Job {
	t.Helper()
	now := time.Now().UTC()
	job := &Job{
		ID:        NewID(),
		ProjectID: "p1",
		Kind:      kind,
		Status:    JobStatusPending,
		RemoteID:  "remote-1",
		Prompt:    "a fox",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestTickProcessingUpdatesProgress(t *testing.T) {
	provider := &scriptedProvider{statuses: map[string][]*generate.JobStatus{
		"remote-1": {
			{Status: generate.StatusProcessing, Progress: intPtr(25)},
			{Status: generate.StatusProcessing, Progress: intPtr(70)},
		},
	}}
	poller, repo, notifier := newTestPoller(t, provider)
	job := seedJob(t, repo, JobKindGenerateVideo)

	poller.Tick(context.Background())
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusProcessing || got.Progress != 25 {
		t.Fatalf("after first tick: %+v", got)
	}

	poller.Tick(context.Background())
	got, _ = repo.GetJob(context.Background(), job.ID)
	if got.Progress != 70 {
		t.Fatalf("after second tick progress = %d, want 70", got.Progress)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.jobUpdates) != 2 {
		t.Fatalf("job updates = %d, want 2", len(notifier.jobUpdates))
	}
}

func TestTickCompletionRegistersAssetExactlyOnce(t *testing.T) {
	provider := &scriptedProvider{statuses: map[string][]*generate.JobStatus{
		"remote-1": {
			{Status: generate.StatusCompleted, OutputURL: "https://cdn.example.com/out.mp4", DurationSeconds: 4.2},
		},
	}}
	poller, repo, notifier := newTestPoller(t, provider)
	job := seedJob(t, repo, JobKindGenerateVideo)

	poller.Tick(context.Background())

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.AssetID == "" {
		t.Fatal("completed job has no asset id")
	}
	a, _ := repo.GetAsset(context.Background(), got.AssetID)
	if a == nil {
		t.Fatal("asset not registered")
	}
	if a.Type != TypeVideo || a.URL != "https://cdn.example.com/out.mp4" {
		t.Fatalf("asset = %+v", a)
	}
	if a.Prompt != "a fox" {
		t.Fatalf("asset prompt = %q", a.Prompt)
	}

	// terminal jobs leave the pollable set; further ticks never touch the
	// provider again and never duplicate the asset
	before := provider.polls
	poller.Tick(context.Background())
	poller.Tick(context.Background())
	if provider.polls != before {
		t.Fatalf("terminal job polled again: %d -> %d", before, provider.polls)
	}
	if len(repo.assets) != 1 {
		t.Fatalf("assets = %d, want 1", len(repo.assets))
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.assetEvents) != 1 {
		t.Fatalf("asset events = %d, want 1", len(notifier.assetEvents))
	}
}

func TestTickFailureRecordsError(t *testing.T) {
	provider := &scriptedProvider{statuses: map[string][]*generate.JobStatus{
		"remote-1": {{Status: generate.StatusFailed, Error: "nsfw filter"}},
	}}
	poller, repo, _ := newTestPoller(t, provider)
	job := seedJob(t, repo, JobKindGenerateImage)

	poller.Tick(context.Background())

	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusFailed || got.Error != "nsfw filter" {
		t.Fatalf("job = %+v", got)
	}
	if len(repo.assets) != 0 {
		t.Fatal("failed job registered an asset")
	}
}

func TestTickFailureWithoutMessageGetsDefault(t *testing.T) {
	provider := &scriptedProvider{statuses: map[string][]*generate.JobStatus{
		"remote-1": {{Status: generate.StatusFailed}},
	}}
	poller, repo, _ := newTestPoller(t, provider)
	job := seedJob(t, repo, JobKindGenerateImage)

	poller.Tick(context.Background())
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Error != "generation failed" {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestTickPollErrorSwallowedAndRetried(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	poller, repo, _ := newTestPoller(t, provider)
	job := seedJob(t, repo, JobKindGenerateAudio)

	poller.Tick(context.Background())
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusPending {
		t.Fatalf("status after failed poll = %q, want pending", got.Status)
	}

	// provider recovers; the next tick picks the job up again
	provider.mu.Lock()
	provider.err = nil
	provider.statuses = map[string][]*generate.JobStatus{
		"remote-1": {{Status: generate.StatusCompleted, OutputURL: "https://cdn.example.com/a.mp3"}},
	}
	provider.mu.Unlock()

	poller.Tick(context.Background())
	got, _ = repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusCompleted {
		t.Fatalf("status after recovery = %q, want completed", got.Status)
	}
}

func TestTickPendingLeavesJobUntouched(t *testing.T) {
	provider := &scriptedProvider{}
	poller, repo, notifier := newTestPoller(t, provider)
	job := seedJob(t, repo, JobKindGenerateVideo)

	poller.Tick(context.Background())
	got, _ := repo.GetJob(context.Background(), job.ID)
	if got.Status != JobStatusPending || got.Progress != 0 {
		t.Fatalf("job = %+v", got)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.jobUpdates) != 0 {
		t.Fatalf("pending poll emitted %d updates", len(notifier.jobUpdates))
	}
}

func TestExportJobsAreNotPolled(t *testing.T) {
	provider := &scriptedProvider{}
	poller, repo, _ := newTestPoller(t, provider)
	seedJob(t, repo, JobKindExport)

	poller.Tick(context.Background())
	if provider.polls != 0 {
		t.Fatalf("export job was polled %d times", provider.polls)
	}
}

func TestPauseResume(t *testing.T) {
	provider := &scriptedProvider{}
	poller, _, _ := newTestPoller(t, provider)

	if poller.IsPaused() {
		t.Fatal("new poller starts paused")
	}
	poller.Pause()
	if !poller.IsPaused() {
		t.Fatal("pause did not take")
	}
	poller.Resume()
	if poller.IsPaused() {
		t.Fatal("resume did not take")
	}
}
