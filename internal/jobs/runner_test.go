package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"adpilot/internal/config"
	"adpilot/internal/learning"
	"adpilot/internal/rules"
	"adpilot/internal/types"
)

// --- Test Doubles ---

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type mockAccountLister struct {
	accounts []types.AccountRef
}

func (m *mockAccountLister) ListAccounts(ctx context.Context, since time.Time) ([]types.AccountRef, error) {
	return m.accounts, nil
}

type mockScorer struct {
	mu      sync.Mutex
	scored  []string
	failFor map[string]error
	block   chan struct{} // when set, ScoreAccount waits until closed
	started chan struct{} // signals first entry when set
	once    sync.Once
}

func (m *mockScorer) ScoreAccount(ctx context.Context, ref types.AccountRef) (*types.AccountScore, error) {
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block != nil {
		<-m.block
	}
	if err := m.failFor[ref.AdAccountID]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.scored = append(m.scored, ref.AdAccountID)
	m.mu.Unlock()
	return &types.AccountScore{AdAccountID: ref.AdAccountID}, nil
}

type mockLearner struct {
	mu       sync.Mutex
	accounts []string
	seeded   bool
}

func (m *mockLearner) LearnAccount(ctx context.Context, ref types.AccountRef) (*learning.LearnSummary, error) {
	m.mu.Lock()
	m.accounts = append(m.accounts, ref.AdAccountID)
	m.mu.Unlock()
	return &learning.LearnSummary{PatternsLearned: 2, PassesSkipped: 1}, nil
}

func (m *mockLearner) SeedExpertPriors(ctx context.Context) (*learning.LearnSummary, error) {
	m.seeded = true
	return &learning.LearnSummary{PatternsLearned: 3}, nil
}

type mockEvaluator struct {
	summary *rules.EvalSummary
}

func (m *mockEvaluator) EvaluateAll(ctx context.Context) (*rules.EvalSummary, error) {
	return m.summary, nil
}

type mockLifecycle struct {
	expired int
}

func (m *mockLifecycle) ExpirePending(ctx context.Context, limit int) (int, error) {
	return m.expired, nil
}

type mockMetrics struct {
	mu          sync.Mutex
	jobRuns     []types.JobType
	jobFailures []types.JobType
	learned     int
	skipped     int
	scored      int
}

func (m *mockMetrics) RecordJobRun(ctx context.Context, job types.JobType, duration time.Duration, processed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobRuns = append(m.jobRuns, job)
}

func (m *mockMetrics) RecordJobFailure(ctx context.Context, job types.JobType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobFailures = append(m.jobFailures, job)
}

func (m *mockMetrics) RecordEvaluation(ctx context.Context, created, skippedCooldown, notifications int) {
}

func (m *mockMetrics) RecordLearning(ctx context.Context, learned, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learned, m.skipped = learned, skipped
}

func (m *mockMetrics) RecordScoring(ctx context.Context, computed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scored = computed
}

// --- Fixtures ---

func accounts(n int) []types.AccountRef {
	out := make([]types.AccountRef, n)
	for i := range out {
		out[i] = types.AccountRef{UserID: "user-1", AdAccountID: fmt.Sprintf("act_%d", i)}
	}
	return out
}

type runnerDeps struct {
	lister    *mockAccountLister
	learner   *mockLearner
	evaluator *mockEvaluator
	lifecycle *mockLifecycle
	scorer    *mockScorer
	metrics   *mockMetrics
}

func newTestRunner(d runnerDeps) *Runner {
	if d.lister == nil {
		d.lister = &mockAccountLister{}
	}
	if d.learner == nil {
		d.learner = &mockLearner{}
	}
	if d.evaluator == nil {
		d.evaluator = &mockEvaluator{summary: &rules.EvalSummary{}}
	}
	if d.lifecycle == nil {
		d.lifecycle = &mockLifecycle{}
	}
	if d.scorer == nil {
		d.scorer = &mockScorer{}
	}
	if d.metrics == nil {
		d.metrics = &mockMetrics{}
	}
	r := NewRunner(RunnerConfig{
		Accounts:  d.lister,
		Learner:   d.learner,
		Evaluator: d.evaluator,
		Lifecycle: d.lifecycle,
		Scorer:    d.scorer,
		Metrics:   d.metrics,
		Jobs:      config.JobsConfig{BatchSize: 25, BatchPause: time.Second},
		Clock:     fixedClock{t: time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	r.sleepFn = func(time.Duration) {}
	return r
}

// --- Single flight ---

func TestRun_SingleFlightPerJobType(t *testing.T) {
	scorer := &mockScorer{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	r := newTestRunner(runnerDeps{
		lister: &mockAccountLister{accounts: accounts(1)},
		scorer: scorer,
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), types.JobAccountScoring)
		done <- err
	}()
	<-scorer.started

	// Same job type while the first run is still in flight.
	_, err := r.Run(context.Background(), types.JobAccountScoring)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeJobAlreadyRunning {
		t.Errorf("concurrent run error = %v, want %s", err, types.ErrCodeJobAlreadyRunning)
	}

	// A different job type is not blocked.
	if _, err := r.Run(context.Background(), types.JobRuleEvaluation); err != nil {
		t.Errorf("rule evaluation blocked by scoring run: %v", err)
	}

	close(scorer.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Guard released after completion.
	if _, err := r.Run(context.Background(), types.JobAccountScoring); err != nil {
		t.Errorf("rerun after completion: %v", err)
	}
}

func TestRun_UnknownJobType(t *testing.T) {
	r := newTestRunner(runnerDeps{})
	_, err := r.Run(context.Background(), types.JobType("defragmentation"))
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidJobType {
		t.Errorf("error = %v, want %s", err, types.ErrCodeValidationInvalidJobType)
	}
}

// --- Batching and isolation ---

func TestRun_ScoringIsolatesAccountFailures(t *testing.T) {
	scorer := &mockScorer{failFor: map[string]error{
		"act_3": types.NewAppError(types.ErrCodeUpstreamCredential, "token revoked", nil),
	}}
	metrics := &mockMetrics{}
	r := newTestRunner(runnerDeps{
		lister:  &mockAccountLister{accounts: accounts(10)},
		scorer:  scorer,
		metrics: metrics,
	})

	summary, err := r.Run(context.Background(), types.JobAccountScoring)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 9 || summary.Failed != 1 {
		t.Errorf("summary = processed %d failed %d, want 9/1", summary.Processed, summary.Failed)
	}
	if metrics.scored != 9 {
		t.Errorf("scores recorded = %d, want 9", metrics.scored)
	}
	if len(metrics.jobRuns) != 1 {
		t.Errorf("job run metrics = %d, want 1", len(metrics.jobRuns))
	}
}

func TestRun_ScoringProcessesInBatches(t *testing.T) {
	pauses := 0
	scorer := &mockScorer{}
	r := newTestRunner(runnerDeps{
		lister: &mockAccountLister{accounts: accounts(60)},
		scorer: scorer,
	})
	r.sleepFn = func(time.Duration) { pauses++ }

	summary, err := r.Run(context.Background(), types.JobAccountScoring)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 60 {
		t.Errorf("processed = %d, want 60", summary.Processed)
	}
	// 60 accounts in batches of 25 pauses after the first two batches only.
	if pauses != 2 {
		t.Errorf("inter-batch pauses = %d, want 2", pauses)
	}
}

func TestRun_ScoringSkipsPauseWhenDisabled(t *testing.T) {
	pauses := 0
	r := newTestRunner(runnerDeps{
		lister: &mockAccountLister{accounts: accounts(60)},
	})
	r.cfg.BatchPause = 0
	r.sleepFn = func(time.Duration) { pauses++ }

	if _, err := r.Run(context.Background(), types.JobAccountScoring); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pauses != 0 {
		t.Errorf("inter-batch pauses = %d, want 0 with pause disabled", pauses)
	}
}

func TestRun_LearningSeedsPriorsAndVisitsEveryAccount(t *testing.T) {
	learner := &mockLearner{}
	metrics := &mockMetrics{}
	r := newTestRunner(runnerDeps{
		lister:  &mockAccountLister{accounts: accounts(4)},
		learner: learner,
		metrics: metrics,
	})

	summary, err := r.Run(context.Background(), types.JobPatternLearning)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !learner.seeded {
		t.Error("expert priors were not seeded")
	}
	if len(learner.accounts) != 4 || summary.Processed != 4 {
		t.Errorf("accounts learned = %d (processed %d), want 4", len(learner.accounts), summary.Processed)
	}
	// 3 priors + 2 patterns x 4 accounts.
	if metrics.learned != 11 || metrics.skipped != 4 {
		t.Errorf("learning metrics = learned %d skipped %d, want 11/4", metrics.learned, metrics.skipped)
	}
}

func TestRun_EvaluationReportsRuleTallies(t *testing.T) {
	evaluator := &mockEvaluator{summary: &rules.EvalSummary{
		RulesEvaluated: 7,
		RuleErrors:     2,
		ActionsCreated: 3,
	}}
	lifecycle := &mockLifecycle{expired: 1}
	r := newTestRunner(runnerDeps{evaluator: evaluator, lifecycle: lifecycle})

	summary, err := r.Run(context.Background(), types.JobRuleEvaluation)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 7 || summary.Failed != 2 {
		t.Errorf("summary = processed %d failed %d, want 7/2", summary.Processed, summary.Failed)
	}
}
