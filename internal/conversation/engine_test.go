package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trade-journal-bot/internal/domain"
)

type fakePresenter struct {
	mu            sync.Mutex
	steps         []StepView
	confirmations int
	notices       []string
	errs          []string
}

func (p *fakePresenter) ShowStep(userID int64, view StepView) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, view)
	return nil
}

func (p *fakePresenter) ShowConfirmation(userID int64, draft *domain.DraftEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmations++
	return nil
}

func (p *fakePresenter) ShowNotice(userID int64, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, text)
	return nil
}

func (p *fakePresenter) ShowError(userID int64, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, text)
	return nil
}

func (p *fakePresenter) lastStep(t *testing.T) StepView {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.steps) == 0 {
		t.Fatal("no step was shown")
	}
	return p.steps[len(p.steps)-1]
}

type fakeSuggester struct {
	options []domain.FieldOption
}

func (s *fakeSuggester) Suggestions(ctx context.Context, userID int64, field domain.Field, draft *domain.DraftEntry, topN int) []domain.FieldOption {
	return s.options
}

type fakeCommitter struct {
	err    error
	calls  int
	nextID int64
	drafts []*domain.DraftEntry
}

func (c *fakeCommitter) CommitDraft(ctx context.Context, draft *domain.DraftEntry) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	c.drafts = append(c.drafts, draft)
	c.nextID++
	return c.nextID, nil
}

type fakePendingStore struct {
	mu      sync.Mutex
	entries map[string]domain.PendingEntry
	parkErr error
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{entries: make(map[string]domain.PendingEntry)}
}

func (s *fakePendingStore) Park(ctx context.Context, p domain.PendingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parkErr != nil {
		return s.parkErr
	}
	s.entries[p.ID] = p
	return nil
}

func (s *fakePendingStore) List(ctx context.Context, userID int64) ([]domain.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingEntry
	for _, p := range s.entries {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePendingStore) Take(ctx context.Context, userID int64, id string) (*domain.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	if !ok || p.UserID != userID {
		return nil, errors.New("not found")
	}
	delete(s.entries, id)
	return &p, nil
}

func (s *fakePendingStore) Clear(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.entries {
		if p.UserID == userID {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

type fixture struct {
	engine    *Engine
	presenter *fakePresenter
	committer *fakeCommitter
	pending   *fakePendingStore
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		presenter: &fakePresenter{},
		committer: &fakeCommitter{},
		pending:   newFakePendingStore(),
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.engine = NewEngine(&fakeSuggester{}, fx.committer, fx.pending, fx.presenter, 30*time.Minute, 3)
	fx.engine.now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) handle(t *testing.T, in Input) {
	t.Helper()
	if err := fx.engine.Handle(context.Background(), 42, in); err != nil {
		t.Fatalf("handle %v: %v", in.Kind, err)
	}
}

// fillFlow submits a value or skip for every step up to the confirmation.
func (fx *fixture) fillFlow(t *testing.T) {
	t.Helper()
	fx.handle(t, Input{Kind: InputStart})
	inputs := map[domain.Field]string{
		domain.FieldTicker:    "BTCUSDT",
		domain.FieldDirection: "Long",
		domain.FieldPnL:       "12.5",
	}
	for range domain.FlowFields {
		step := fx.presenter.lastStep(t)
		if raw, ok := inputs[step.Field]; ok {
			fx.handle(t, Input{Kind: InputText, Text: raw})
		} else {
			fx.handle(t, Input{Kind: InputSkip})
		}
		if fx.presenter.confirmations > 0 {
			break
		}
	}
}

func TestStartShowsFirstStep(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	step := fx.presenter.lastStep(t)
	if step.Field != domain.FieldTicker || step.Step != 1 {
		t.Fatalf("expected ticker step 1, got %s step %d", step.Field.Key(), step.Step)
	}
	if step.Total != len(domain.FlowFields) {
		t.Fatalf("unexpected total: %d", step.Total)
	}
}

func TestStepOrderOnlyAdvancesByOne(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})
	if got := fx.presenter.lastStep(t); got.Step != 2 {
		t.Fatalf("expected step 2 after submit, got %d", got.Step)
	}
	fx.handle(t, Input{Kind: InputSkip})
	if got := fx.presenter.lastStep(t); got.Step != 3 {
		t.Fatalf("expected step 3 after skip, got %d", got.Step)
	}
}

func TestNonDestructiveBack(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})
	fx.handle(t, Input{Kind: InputText, Text: "Long"})

	fx.handle(t, Input{Kind: InputBack})
	step := fx.presenter.lastStep(t)
	if step.Field != domain.FieldDirection {
		t.Fatalf("expected direction after back, got %s", step.Field.Key())
	}
	if !step.HasCurrent || step.Current.Text != "Long" {
		t.Fatalf("back must preserve the entered value, got %+v", step.Current)
	}

	fx.handle(t, Input{Kind: InputBack})
	step = fx.presenter.lastStep(t)
	if step.Field != domain.FieldTicker || step.Current.Text != "BTCUSDT" {
		t.Fatalf("expected preserved ticker, got %+v", step)
	}

	// Forward again without re-entering: the value survives.
	fx.handle(t, Input{Kind: InputSkip})
	step = fx.presenter.lastStep(t)
	if step.Field != domain.FieldDirection || step.Current.Text != "Long" {
		t.Fatalf("forward after back must not erase values, got %+v", step)
	}
}

func TestBackAtFirstStep(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputBack})

	if len(fx.presenter.notices) == 0 {
		t.Fatal("expected a notice at first step")
	}
	if step := fx.presenter.lastStep(t); step.Step != 1 {
		t.Fatalf("expected to stay at step 1, got %d", step.Step)
	}
}

func TestMalformedInputRepromptsSameStep(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})
	fx.handle(t, Input{Kind: InputText, Text: "Long"})

	fx.handle(t, Input{Kind: InputText, Text: "not a number"})
	if len(fx.presenter.errs) != 1 {
		t.Fatalf("expected validation error shown, got %v", fx.presenter.errs)
	}
	if step := fx.presenter.lastStep(t); step.Field != domain.FieldPnL {
		t.Fatalf("expected re-prompt of pnl, got %s", step.Field.Key())
	}
}

func TestMaxErrorsAutoCancels(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})
	fx.handle(t, Input{Kind: InputText, Text: "Long"})

	fx.handle(t, Input{Kind: InputText, Text: "junk"})
	fx.handle(t, Input{Kind: InputText, Text: "junk"})
	fx.handle(t, Input{Kind: InputText, Text: "junk"})

	if fx.engine.ActiveSessions() != 0 {
		t.Fatal("expected auto-cancel after max errors")
	}
	last := fx.presenter.errs[len(fx.presenter.errs)-1]
	if !strings.Contains(last, "cancelled") {
		t.Fatalf("expected cancellation message, got %q", last)
	}
}

func TestFullFlowCommit(t *testing.T) {
	fx := newFixture(t)
	fx.fillFlow(t)

	if fx.presenter.confirmations == 0 {
		t.Fatal("expected confirmation preview after last step")
	}
	fx.handle(t, Input{Kind: InputConfirm})
	if fx.committer.calls != 1 {
		t.Fatalf("expected 1 commit, got %d", fx.committer.calls)
	}
	if fx.engine.ActiveSessions() != 0 {
		t.Fatal("expected session removed after commit")
	}
	draft := fx.committer.drafts[0]
	if v, _ := draft.Get(domain.FieldTicker); v.Text != "BTCUSDT" {
		t.Fatalf("unexpected committed draft: %+v", draft.Values)
	}
}

func TestCommitFailureKeepsSession(t *testing.T) {
	fx := newFixture(t)
	fx.fillFlow(t)
	fx.committer.err = errors.New("db down")

	if err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputConfirm}); err == nil {
		t.Fatal("expected commit error to propagate")
	}
	if fx.engine.ActiveSessions() != 1 {
		t.Fatal("session must survive a failed commit")
	}

	// Retry succeeds without re-entering any field.
	fx.committer.err = nil
	fx.handle(t, Input{Kind: InputConfirm})
	if fx.committer.calls != 2 || fx.engine.ActiveSessions() != 0 {
		t.Fatalf("expected successful retry, calls=%d sessions=%d", fx.committer.calls, fx.engine.ActiveSessions())
	}
}

func TestEditFromConfirmation(t *testing.T) {
	fx := newFixture(t)
	fx.fillFlow(t)

	fx.handle(t, Input{Kind: InputEdit, Field: domain.FieldDirection})
	step := fx.presenter.lastStep(t)
	if step.Field != domain.FieldDirection || step.Current.Text != "Long" {
		t.Fatalf("expected direction edit with current value, got %+v", step)
	}

	fx.handle(t, Input{Kind: InputText, Text: "Short"})
	if fx.presenter.confirmations != 2 {
		t.Fatalf("expected return to preview, got %d confirmations", fx.presenter.confirmations)
	}

	fx.handle(t, Input{Kind: InputConfirm})
	draft := fx.committer.drafts[0]
	if v, _ := draft.Get(domain.FieldDirection); v.Text != "Short" {
		t.Fatalf("edit was not applied: %+v", v)
	}
	if v, _ := draft.Get(domain.FieldTicker); v.Text != "BTCUSDT" {
		t.Fatal("editing one field must not reset others")
	}
}

func TestCancelAtAnyState(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})

	fx.handle(t, Input{Kind: InputCancel})
	if fx.engine.ActiveSessions() != 0 {
		t.Fatal("expected session discarded on cancel")
	}

	// Cancel with nothing active is idempotent.
	fx.handle(t, Input{Kind: InputCancel})
}

func TestBusyGuardRejectsSecondInput(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	// Simulate an in-flight input.
	fx.engine.mu.Lock()
	s := fx.engine.sessions[42]
	s.busy = true
	stepBefore := s.step
	fx.engine.mu.Unlock()

	err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputText, Text: "BTCUSDT"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(fx.presenter.notices) == 0 || !strings.Contains(fx.presenter.notices[len(fx.presenter.notices)-1], "Still processing") {
		t.Fatalf("expected still-processing notice, got %v", fx.presenter.notices)
	}
	fx.engine.mu.Lock()
	if s.step != stepBefore {
		t.Fatal("busy rejection must not advance the step")
	}
	s.busy = false
	fx.engine.mu.Unlock()
}

func TestCancelBypassesBusyGuard(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	fx.engine.mu.Lock()
	fx.engine.sessions[42].busy = true
	fx.engine.mu.Unlock()

	fx.handle(t, Input{Kind: InputCancel})
	if fx.engine.ActiveSessions() != 0 {
		t.Fatal("cancel must be honored even while busy")
	}
}

func TestIdleExpiryOnNextTouch(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})

	fx.now = fx.now.Add(31 * time.Minute)
	err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputText, Text: "Long"})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if fx.engine.ActiveSessions() != 0 {
		t.Fatal("expired session must be purged")
	}

	// A fresh start is possible immediately afterwards.
	fx.handle(t, Input{Kind: InputStart})
	if step := fx.presenter.lastStep(t); step.Step != 1 {
		t.Fatalf("expected fresh flow at step 1, got %d", step.Step)
	}
}

func TestStartWhileActiveRejected(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputStart})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestInputWithoutSessionRejected(t *testing.T) {
	fx := newFixture(t)
	err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputText, Text: "BTCUSDT"})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestConfirmDuringSteppingIsInvalid(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputConfirm})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if step := fx.presenter.lastStep(t); step.Step != 1 {
		t.Fatal("invalid action must not corrupt state")
	}
}

func TestParkAndResume(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputText, Text: "BTCUSDT"})

	fx.handle(t, Input{Kind: InputPark, Text: "msg-77"})
	if fx.engine.ActiveSessions() != 0 {
		t.Fatal("parked draft must leave the active flow")
	}

	list, err := fx.engine.ListPending(context.Background(), 42)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 pending draft, got %v %v", list, err)
	}
	if list[0].MessageRef != "msg-77" {
		t.Fatalf("expected message ref preserved, got %q", list[0].MessageRef)
	}

	fx.handle(t, Input{Kind: InputResume, Text: list[0].ID})
	if fx.engine.ActiveSessions() != 1 {
		t.Fatal("resume must reactivate the draft")
	}
	if remaining, _ := fx.engine.ListPending(context.Background(), 42); len(remaining) != 0 {
		t.Fatal("a resumed draft must not stay parked")
	}

	fx.handle(t, Input{Kind: InputConfirm})
	draft := fx.committer.drafts[0]
	if v, _ := draft.Get(domain.FieldTicker); v.Text != "BTCUSDT" {
		t.Fatalf("resumed draft lost values: %+v", draft.Values)
	}
}

func TestResumeWhileActiveRejected(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})
	fx.handle(t, Input{Kind: InputPark, Text: ""})
	list, _ := fx.engine.ListPending(context.Background(), 42)

	fx.handle(t, Input{Kind: InputStart})
	err := fx.engine.Handle(context.Background(), 42, Input{Kind: InputResume, Text: list[0].ID})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if remaining, _ := fx.engine.ListPending(context.Background(), 42); len(remaining) != 1 {
		t.Fatal("rejected resume must keep the draft parked")
	}
}

func TestClearPending(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 3; i++ {
		fx.handle(t, Input{Kind: InputStart})
		fx.handle(t, Input{Kind: InputPark, Text: fmt.Sprintf("msg-%d", i)})
	}
	n, err := fx.engine.ClearPending(context.Background(), 42)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 cleared, got %d %v", n, err)
	}
}

func TestSweepExpired(t *testing.T) {
	fx := newFixture(t)
	fx.handle(t, Input{Kind: InputStart})

	if removed := fx.engine.SweepExpired(); removed != 0 {
		t.Fatalf("fresh session must not be swept, removed %d", removed)
	}
	fx.now = fx.now.Add(31 * time.Minute)
	if removed := fx.engine.SweepExpired(); removed != 1 {
		t.Fatalf("expected 1 swept session, got %d", removed)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.engine.Handle(ctx, 1, Input{Kind: InputStart}); err != nil {
		t.Fatalf("user 1 start: %v", err)
	}
	if err := fx.engine.Handle(ctx, 2, Input{Kind: InputStart}); err != nil {
		t.Fatalf("user 2 start: %v", err)
	}
	if err := fx.engine.Handle(ctx, 1, Input{Kind: InputText, Text: "BTCUSDT"}); err != nil {
		t.Fatalf("user 1 input: %v", err)
	}
	if fx.engine.ActiveSessions() != 2 {
		t.Fatalf("expected 2 sessions, got %d", fx.engine.ActiveSessions())
	}
}
