package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"adpilot/internal/types"
)

// mockLifecycleStore keeps actions in memory and enforces the same
// compare-and-swap the database repository does.
type mockLifecycleStore struct {
	actions  map[string]*types.AutomationAction
	feedback []*types.ActionFeedback
}

func newMockLifecycleStore(actions ...*types.AutomationAction) *mockLifecycleStore {
	m := &mockLifecycleStore{actions: make(map[string]*types.AutomationAction)}
	for _, a := range actions {
		m.actions[a.ID] = a
	}
	return m
}

func (m *mockLifecycleStore) Get(ctx context.Context, id string) (*types.AutomationAction, error) {
	a, ok := m.actions[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundAction, "action not found", nil)
	}
	cp := *a
	return &cp, nil
}

func (m *mockLifecycleStore) ListByState(ctx context.Context, state types.ActionState, limit int) ([]*types.AutomationAction, error) {
	var out []*types.AutomationAction
	for _, a := range m.actions {
		if a.State == state {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLifecycleStore) UpdateState(ctx context.Context, a *types.AutomationAction, from types.ActionState) error {
	stored, ok := m.actions[a.ID]
	if !ok || stored.State != from {
		return types.NewAppError(types.ErrCodeActionIllegalTransition, "stale action state", nil)
	}
	cp := *a
	m.actions[a.ID] = &cp
	return nil
}

func (m *mockLifecycleStore) AppendFeedback(ctx context.Context, f *types.ActionFeedback) error {
	m.feedback = append(m.feedback, f)
	return nil
}

var lifecycleNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestLifecycle(store *mockLifecycleStore, notifier *mockNotifier) *Lifecycle {
	return newTestLifecycleWithDispatcher(store, notifier, &mockDispatcher{})
}

func newTestLifecycleWithDispatcher(store *mockLifecycleStore, notifier *mockNotifier, dispatcher *mockDispatcher) *Lifecycle {
	return NewLifecycle(LifecycleConfig{
		Actions:    store,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Clock:      fixedClock{t: lifecycleNow},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func pendingAction(id string) *types.AutomationAction {
	ruleID := "rule-1"
	expires := lifecycleNow.Add(approvalExpiry)
	return &types.AutomationAction{
		ID:          id,
		RuleID:      &ruleID,
		UserID:      "user-1",
		AdAccountID: "act_123",
		EntityType:  types.EntityAdSet,
		EntityID:    "adset-1",
		ActionType:  types.ActionPause,
		State:       types.ActionPendingApproval,
		ExpiresAt:   &expires,
	}
}

// --- State machine ---

func TestTransition_LegalMoves(t *testing.T) {
	cases := []struct {
		from, to types.ActionState
		resolved bool
	}{
		{types.ActionPendingApproval, types.ActionApproved, false},
		{types.ActionPendingApproval, types.ActionRejected, true},
		{types.ActionPendingApproval, types.ActionExpired, true},
		{types.ActionApproved, types.ActionExecuted, true},
		{types.ActionApproved, types.ActionFailed, true},
	}
	for _, tc := range cases {
		a := &types.AutomationAction{State: tc.from}
		if err := Transition(a, tc.to, lifecycleNow); err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
			continue
		}
		if a.State != tc.to {
			t.Errorf("%s -> %s: state = %s", tc.from, tc.to, a.State)
		}
		if tc.resolved != (a.ResolvedAt != nil) {
			t.Errorf("%s -> %s: resolved_at set = %v, want %v", tc.from, tc.to, a.ResolvedAt != nil, tc.resolved)
		}
	}
}

func TestTransition_IllegalMoves(t *testing.T) {
	cases := []struct{ from, to types.ActionState }{
		{types.ActionPendingApproval, types.ActionExecuted},
		{types.ActionPendingApproval, types.ActionFailed},
		{types.ActionApproved, types.ActionRejected},
		{types.ActionApproved, types.ActionExpired},
		{types.ActionExecuted, types.ActionApproved},
		{types.ActionRejected, types.ActionApproved},
		{types.ActionExpired, types.ActionApproved},
		{types.ActionFailed, types.ActionExecuted},
		{types.ActionApproved, types.ActionApproved},
	}
	for _, tc := range cases {
		a := &types.AutomationAction{State: tc.from}
		err := Transition(a, tc.to, lifecycleNow)
		if err == nil {
			t.Errorf("%s -> %s: expected error", tc.from, tc.to)
			continue
		}
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeActionIllegalTransition {
			t.Errorf("%s -> %s: error = %v, want %s", tc.from, tc.to, err, types.ErrCodeActionIllegalTransition)
		}
		if a.State != tc.from {
			t.Errorf("%s -> %s: state mutated to %s on failed transition", tc.from, tc.to, a.State)
		}
	}
}

// --- Lifecycle service ---

func TestLifecycle_ApproveRecordsReviewerAndFeedback(t *testing.T) {
	store := newMockLifecycleStore(pendingAction("act-1"))
	l := newTestLifecycle(store, &mockNotifier{})

	a, err := l.Approve(context.Background(), "act-1", "reviewer@example.com")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if a.State != types.ActionApproved || a.ApprovedBy != "reviewer@example.com" {
		t.Errorf("action = state %s approved_by %q", a.State, a.ApprovedBy)
	}
	if len(store.feedback) != 1 || store.feedback[0].Label != types.FeedbackApproved {
		t.Fatalf("feedback = %+v, want one approved record", store.feedback)
	}
	if store.feedback[0].ActionID != "act-1" {
		t.Errorf("feedback action_id = %s", store.feedback[0].ActionID)
	}
}

func TestLifecycle_ApproveDispatchesToExecutionQueue(t *testing.T) {
	store := newMockLifecycleStore(pendingAction("act-1"))
	dispatcher := &mockDispatcher{}
	l := newTestLifecycleWithDispatcher(store, &mockNotifier{}, dispatcher)

	if _, err := l.Approve(context.Background(), "act-1", "reviewer@example.com"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if len(dispatcher.dispatched) != 1 || dispatcher.dispatched[0].ID != "act-1" {
		t.Fatalf("dispatched = %+v, want act-1 once", dispatcher.dispatched)
	}
	if dispatcher.dispatched[0].State != types.ActionApproved {
		t.Errorf("dispatched state = %s, want approved", dispatcher.dispatched[0].State)
	}
}

func TestLifecycle_ApproveDispatchFailureKeepsApproval(t *testing.T) {
	store := newMockLifecycleStore(pendingAction("act-1"))
	l := newTestLifecycleWithDispatcher(store, &mockNotifier{}, &mockDispatcher{failNext: true})

	a, err := l.Approve(context.Background(), "act-1", "reviewer@example.com")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if a.State != types.ActionApproved {
		t.Errorf("state = %s, want approved after dispatch failure", a.State)
	}
	if store.actions["act-1"].State != types.ActionApproved {
		t.Errorf("stored state = %s, want approved", store.actions["act-1"].State)
	}
}

func TestLifecycle_RejectIsNotDispatched(t *testing.T) {
	store := newMockLifecycleStore(pendingAction("act-1"))
	dispatcher := &mockDispatcher{}
	l := newTestLifecycleWithDispatcher(store, &mockNotifier{}, dispatcher)

	if _, err := l.Reject(context.Background(), "act-1", "too aggressive"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(dispatcher.dispatched) != 0 {
		t.Errorf("rejected action dispatched %d times, want 0", len(dispatcher.dispatched))
	}
}

func TestLifecycle_RejectIsTerminal(t *testing.T) {
	store := newMockLifecycleStore(pendingAction("act-1"))
	l := newTestLifecycle(store, &mockNotifier{})

	a, err := l.Reject(context.Background(), "act-1", "budget freeze this week")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if a.State != types.ActionRejected || a.RejectedReason == "" || a.ResolvedAt == nil {
		t.Errorf("rejected action = %+v", a)
	}

	// A resolved action accepts no further transitions.
	if _, err := l.Approve(context.Background(), "act-1", "reviewer"); err == nil {
		t.Fatal("expected approving a rejected action to fail")
	}
	if len(store.feedback) != 1 {
		t.Errorf("feedback records = %d, want 1", len(store.feedback))
	}
}

func TestLifecycle_MarkExecutedNotifiesOwner(t *testing.T) {
	a := pendingAction("act-1")
	a.State = types.ActionApproved
	store := newMockLifecycleStore(a)
	notifier := &mockNotifier{}
	l := newTestLifecycle(store, notifier)

	out, err := l.MarkExecuted(context.Background(), "act-1")
	if err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
	if out.State != types.ActionExecuted || out.ResolvedAt == nil {
		t.Errorf("executed action = %+v", out)
	}
	if len(notifier.published) != 1 || notifier.published[0].Type != types.NotifActionExecuted {
		t.Fatalf("expected one executed notification, got %+v", notifier.published)
	}
	if len(store.feedback) != 1 || store.feedback[0].Label != types.FeedbackExecuted {
		t.Errorf("feedback = %+v, want one executed record", store.feedback)
	}
}

func TestLifecycle_MarkFailedKeepsMessage(t *testing.T) {
	a := pendingAction("act-1")
	a.State = types.ActionApproved
	store := newMockLifecycleStore(a)
	notifier := &mockNotifier{}
	l := newTestLifecycle(store, notifier)

	out, err := l.MarkFailed(context.Background(), "act-1", "platform API returned 500")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if out.State != types.ActionFailed || out.FailureMessage != "platform API returned 500" {
		t.Errorf("failed action = %+v", out)
	}
	if len(notifier.published) != 1 || notifier.published[0].Type != types.NotifActionFailed {
		t.Fatalf("expected one failure notification, got %+v", notifier.published)
	}
}

func TestLifecycle_ExpirePendingSweepsOnlyLapsed(t *testing.T) {
	lapsed := pendingAction("act-lapsed")
	past := lifecycleNow.Add(-time.Hour)
	lapsed.ExpiresAt = &past

	fresh := pendingAction("act-fresh")

	store := newMockLifecycleStore(lapsed, fresh)
	l := newTestLifecycle(store, &mockNotifier{})

	n, err := l.ExpirePending(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if store.actions["act-lapsed"].State != types.ActionExpired {
		t.Errorf("lapsed action state = %s, want expired", store.actions["act-lapsed"].State)
	}
	if store.actions["act-fresh"].State != types.ActionPendingApproval {
		t.Errorf("fresh action state = %s, want pending_approval", store.actions["act-fresh"].State)
	}
	if len(store.feedback) != 1 || store.feedback[0].Label != types.FeedbackExpired {
		t.Errorf("feedback = %+v, want one expired record", store.feedback)
	}
}
