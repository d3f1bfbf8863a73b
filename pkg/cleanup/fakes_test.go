package cleanup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cleanupd/pkg/analytics"
	"cleanupd/pkg/integrity"
	"cleanupd/pkg/models"
	"cleanupd/pkg/notify"
	"cleanupd/pkg/scheduler"
	"cleanupd/pkg/tuning"
)

type fakeStore struct {
	mu           sync.Mutex
	archiveCalls int
	batchSizes   []int
	optimized    int
	backups      int
	archived     int64
	archiveErr   error
	backupErr    error
	delay        time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeStore) ArchiveOlderThan(ctx context.Context, _ time.Time, batchSize int) (int64, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveCalls++
	f.batchSizes = append(f.batchSizes, batchSize)
	if f.archiveErr != nil {
		return 0, f.archiveErr
	}
	return f.archived, nil
}

func (f *fakeStore) Optimize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimized++
	return nil
}

func (f *fakeStore) CreateBackup(_ context.Context, dir string, _ bool) (models.BackupHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups++
	if f.backupErr != nil {
		return models.BackupHandle{}, f.backupErr
	}
	return models.BackupHandle{ID: "backup-1", Path: dir + "/backup_1.jsonl.gz", Rows: 10}, nil
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archiveCalls
}

type fakeVerifier struct {
	result integrity.VerificationResult
	err    error
}

func (v *fakeVerifier) Verify(context.Context, models.BackupHandle) (integrity.VerificationResult, error) {
	return v.result, v.err
}

func validResult() integrity.VerificationResult {
	return integrity.VerificationResult{ChecksumOK: true, SizeOK: true, RecoveryOK: true}
}

type fakeReplicator struct {
	handles []models.BackupHandle
	err     error
}

func (r *fakeReplicator) Replicate(_ context.Context, h models.BackupHandle) (string, error) {
	r.handles = append(r.handles, h)
	return "key", r.err
}

type fakeSource struct {
	mu        sync.Mutex
	snapshots []models.SystemMetrics // consumed in order, last one repeats
	err       error
}

func (s *fakeSource) Snapshot(context.Context) (models.SystemMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.SystemMetrics{}, s.err
	}
	if len(s.snapshots) == 0 {
		return models.SystemMetrics{CPUPercent: 10, MemoryPercent: 20}, nil
	}
	m := s.snapshots[0]
	if len(s.snapshots) > 1 {
		s.snapshots = s.snapshots[1:]
	}
	return m, nil
}

func (s *fakeSource) DiskUsage(context.Context) (models.DiskUsage, error) {
	return models.DiskUsage{Path: "/", Total: 100, Used: 40, Free: 60, Percent: 40}, nil
}

type fakeSink struct {
	mu      sync.Mutex
	reports []notify.Payload
	alerts  []string
}

func (s *fakeSink) SendReport(_ context.Context, p notify.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, p)
	return nil
}

func (s *fakeSink) SendAlert(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, title)
	return nil
}

type registration struct {
	name string
	kind scheduler.Kind
	spec string
}

type fakeEngine struct {
	jobs        []scheduler.Job
	registered  []registration
	rescheduled []string
}

func (e *fakeEngine) Register(name string, kind scheduler.Kind, spec string, _ scheduler.Callback) (scheduler.JobHandle, error) {
	e.registered = append(e.registered, registration{name, kind, spec})
	handle := scheduler.JobHandle(name)
	e.jobs = append(e.jobs, scheduler.Job{Handle: handle, Name: name, Kind: kind, Spec: spec})
	return handle, nil
}

func (e *fakeEngine) Reschedule(handle scheduler.JobHandle, spec string) error {
	for i := range e.jobs {
		if e.jobs[i].Handle == handle {
			e.jobs[i].Spec = spec
			e.rescheduled = append(e.rescheduled, spec)
			return nil
		}
	}
	return errors.New("not found")
}

func (e *fakeEngine) ListUpcoming() []scheduler.Job {
	return append([]scheduler.Job(nil), e.jobs...)
}

type memoryStore struct {
	mu      sync.Mutex
	samples []models.PerformanceSample
}

func (m *memoryStore) Load() ([]models.PerformanceSample, error) { return m.samples, nil }

func (m *memoryStore) Append(s models.PerformanceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *memoryStore) Close() error { return nil }

// clockStart is 05:00 UTC today, inside the analyzer's trailing window
func clockStart() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour).Add(5 * time.Hour)
}

// steppingClock advances by step on every call
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}

type harness struct {
	svc      *Service
	store    *fakeStore
	verifier *fakeVerifier
	source   *fakeSource
	sink     *fakeSink
	engine   *fakeEngine
	tuner    *tuning.Tuner
	analyzer *analytics.Analyzer
	samples  *memoryStore
}

func newHarness(t *testing.T, opts Options, preload ...models.PerformanceSample) *harness {
	t.Helper()

	h := &harness{
		store:    &fakeStore{archived: 250},
		verifier: &fakeVerifier{result: validResult()},
		source:   &fakeSource{},
		sink:     &fakeSink{},
		engine:   &fakeEngine{},
		tuner:    tuning.NewTuner(tuning.DefaultConfig(), nil),
		samples:  &memoryStore{samples: preload},
	}

	analyzer, err := analytics.NewAnalyzer(h.samples, nil)
	require.NoError(t, err)
	h.analyzer = analyzer

	if opts.BackupDir == "" {
		opts.BackupDir = t.TempDir()
	}

	svc, err := NewService(Deps{
		Store:    h.store,
		Verifier: h.verifier,
		Engine:   h.engine,
		Sink:     h.sink,
		Source:   h.source,
		Tuner:    h.tuner,
		Analyzer: h.analyzer,
	}, opts)
	require.NoError(t, err)
	svc.now = steppingClock(clockStart(), 10*time.Second)
	h.svc = svc
	return h
}

func dailyConfig() models.CleanupConfig {
	return models.CleanupConfig{
		JobType:       models.JobDaily,
		RetentionDays: 30,
		BatchSize:     1000,
	}
}
