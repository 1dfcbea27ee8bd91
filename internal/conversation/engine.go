package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"trade-journal-bot/internal/domain"
)

var (
	ErrBusy          = errors.New("conversation is busy")
	ErrExpired       = errors.New("conversation expired")
	ErrNoSession     = errors.New("no active conversation")
	ErrAlreadyActive = errors.New("conversation already active")
	ErrInvalidAction = errors.New("action not valid in current state")
)

type InputKind int

const (
	InputStart InputKind = iota
	InputText
	InputPick
	InputSkip
	InputBack
	InputCancel
	InputConfirm
	InputEdit
	InputPark
	InputResume
)

// Input is one user action. Text carries the entered value for InputText and
// InputPick, the pending draft id for InputResume, and the transport message
// reference for InputPark.
type Input struct {
	Kind  InputKind
	Field domain.Field
	Text  string
}

// StepView is the structured payload handed to the presenter for one step.
// Options carry the full ranking; truncation is the presenter's business.
type StepView struct {
	Field      domain.Field
	Step       int
	Total      int
	Current    domain.FieldValue
	HasCurrent bool
	Options    []domain.FieldOption
	Draft      *domain.DraftEntry
}

// Presenter renders structured screens. The engine never formats markup.
type Presenter interface {
	ShowStep(userID int64, view StepView) error
	ShowConfirmation(userID int64, draft *domain.DraftEntry) error
	ShowNotice(userID int64, text string) error
	ShowError(userID int64, text string) error
}

type Suggester interface {
	Suggestions(ctx context.Context, userID int64, field domain.Field, draft *domain.DraftEntry, topN int) []domain.FieldOption
}

type Committer interface {
	CommitDraft(ctx context.Context, draft *domain.DraftEntry) (int64, error)
}

type PendingStore interface {
	Park(ctx context.Context, p domain.PendingEntry) error
	List(ctx context.Context, userID int64) ([]domain.PendingEntry, error)
	Take(ctx context.Context, userID int64, id string) (*domain.PendingEntry, error)
	Clear(ctx context.Context, userID int64) (int64, error)
}

type sessionState int

const (
	stateStepping sessionState = iota
	stateConfirming
	stateEditing
)

type session struct {
	draft     *domain.DraftEntry
	state     sessionState
	step      int // index into domain.FlowFields
	nav       []int
	editField domain.Field
	busy      bool
	errCount  int
	lastInput time.Time
}

// Engine drives one conversation per user. The engine mutex only guards the
// session map and busy flags; step processing for one user runs outside it,
// serialized by that user's busy flag, so users never block each other.
type Engine struct {
	suggester Suggester
	committer Committer
	pending   PendingStore
	presenter Presenter

	idleThreshold time.Duration
	maxErrors     int
	now           func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewEngine(suggester Suggester, committer Committer, pending PendingStore, presenter Presenter, idleThreshold time.Duration, maxErrors int) *Engine {
	return &Engine{
		suggester:     suggester,
		committer:     committer,
		pending:       pending,
		presenter:     presenter,
		idleThreshold: idleThreshold,
		maxErrors:     maxErrors,
		now:           time.Now,
		sessions:      make(map[int64]*session),
	}
}

// Handle processes one input for one user. Cancel is exempt from the busy
// guard; every other input while a previous one is in flight is rejected with
// a "still processing" notice instead of being queued.
func (e *Engine) Handle(ctx context.Context, userID int64, in Input) error {
	now := e.now()

	e.mu.Lock()
	s := e.sessions[userID]

	if in.Kind == InputCancel {
		if s == nil {
			e.mu.Unlock()
			return e.presenter.ShowNotice(userID, "Nothing to cancel.")
		}
		delete(e.sessions, userID)
		e.mu.Unlock()
		return e.presenter.ShowNotice(userID, "Entry cancelled, draft discarded.")
	}

	if s != nil && now.Sub(s.lastInput) > e.idleThreshold {
		delete(e.sessions, userID)
		s = nil
		if in.Kind != InputStart && in.Kind != InputResume {
			e.mu.Unlock()
			_ = e.presenter.ShowError(userID, "Your entry session expired. Start a new one with /new.")
			return ErrExpired
		}
	}

	if s == nil {
		switch in.Kind {
		case InputStart:
			s = &session{draft: domain.NewDraftEntry(userID, now), busy: true, lastInput: now}
			e.sessions[userID] = s
			e.mu.Unlock()
		case InputResume:
			e.mu.Unlock()
			return e.resume(ctx, userID, in.Text, now)
		default:
			e.mu.Unlock()
			_ = e.presenter.ShowError(userID, "No entry in progress. Start one with /new.")
			return ErrNoSession
		}
	} else {
		if s.busy {
			e.mu.Unlock()
			_ = e.presenter.ShowNotice(userID, "Still processing your previous input, one moment.")
			return ErrBusy
		}
		if in.Kind == InputStart {
			e.mu.Unlock()
			_ = e.presenter.ShowNotice(userID, "You already have an entry in progress. Finish it or /cancel first.")
			return ErrAlreadyActive
		}
		if in.Kind == InputResume {
			e.mu.Unlock()
			_ = e.presenter.ShowNotice(userID, "Finish or /cancel the current entry before resuming another.")
			return ErrAlreadyActive
		}
		s.busy = true
		s.lastInput = now
		e.mu.Unlock()
	}

	defer e.release(userID, s)
	return e.dispatch(ctx, userID, s, in)
}

func (e *Engine) release(userID int64, s *session) {
	e.mu.Lock()
	if e.sessions[userID] == s {
		s.busy = false
	}
	e.mu.Unlock()
}

func (e *Engine) drop(userID int64, s *session) {
	e.mu.Lock()
	if e.sessions[userID] == s {
		delete(e.sessions, userID)
	}
	e.mu.Unlock()
}

func (e *Engine) dispatch(ctx context.Context, userID int64, s *session, in Input) error {
	switch s.state {
	case stateStepping:
		return e.dispatchStepping(ctx, userID, s, in)
	case stateConfirming:
		return e.dispatchConfirming(ctx, userID, s, in)
	case stateEditing:
		return e.dispatchEditing(ctx, userID, s, in)
	}
	return e.invalidAction(userID, s, in)
}

func (e *Engine) dispatchStepping(ctx context.Context, userID int64, s *session, in Input) error {
	switch in.Kind {
	case InputStart:
		return e.showCurrentStep(ctx, userID, s)
	case InputText, InputPick:
		field := domain.FlowFields[s.step]
		value, err := field.ParseValue(in.Text)
		if err != nil {
			return e.rejectInput(ctx, userID, s, err)
		}
		s.draft.Set(field, value)
		s.errCount = 0
		return e.advance(ctx, userID, s)
	case InputSkip:
		return e.advance(ctx, userID, s)
	case InputBack:
		if len(s.nav) == 0 {
			if err := e.presenter.ShowNotice(userID, "Already at the first step."); err != nil {
				return err
			}
			return e.showCurrentStep(ctx, userID, s)
		}
		s.step = s.nav[len(s.nav)-1]
		s.nav = s.nav[:len(s.nav)-1]
		return e.showCurrentStep(ctx, userID, s)
	case InputPark:
		return e.park(ctx, userID, s, in.Text)
	default:
		return e.invalidAction(userID, s, in)
	}
}

func (e *Engine) dispatchConfirming(ctx context.Context, userID int64, s *session, in Input) error {
	switch in.Kind {
	case InputConfirm:
		return e.commit(ctx, userID, s)
	case InputEdit:
		s.state = stateEditing
		s.editField = in.Field
		return e.showEditStep(ctx, userID, s)
	case InputBack:
		// Re-enter the flow at the last step; entered values stay put.
		s.state = stateStepping
		if len(s.nav) > 0 {
			s.step = s.nav[len(s.nav)-1]
			s.nav = s.nav[:len(s.nav)-1]
		}
		return e.showCurrentStep(ctx, userID, s)
	case InputPark:
		return e.park(ctx, userID, s, in.Text)
	default:
		return e.invalidAction(userID, s, in)
	}
}

func (e *Engine) dispatchEditing(ctx context.Context, userID int64, s *session, in Input) error {
	switch in.Kind {
	case InputText, InputPick:
		value, err := s.editField.ParseValue(in.Text)
		if err != nil {
			return e.rejectInput(ctx, userID, s, err)
		}
		s.draft.Set(s.editField, value)
		s.errCount = 0
		s.state = stateConfirming
		return e.presenter.ShowConfirmation(userID, s.draft)
	case InputSkip, InputBack:
		s.state = stateConfirming
		return e.presenter.ShowConfirmation(userID, s.draft)
	default:
		return e.invalidAction(userID, s, in)
	}
}

// rejectInput handles malformed field input: re-prompt without advancing,
// auto-cancel once the error budget is exhausted.
func (e *Engine) rejectInput(ctx context.Context, userID int64, s *session, cause error) error {
	s.errCount++
	if s.errCount >= e.maxErrors {
		e.drop(userID, s)
		return e.presenter.ShowError(userID, "Too many invalid inputs, entry cancelled. Start over with /new.")
	}
	if err := e.presenter.ShowError(userID, cause.Error()); err != nil {
		return err
	}
	if s.state == stateEditing {
		return e.showEditStep(ctx, userID, s)
	}
	return e.showCurrentStep(ctx, userID, s)
}

func (e *Engine) invalidAction(userID int64, s *session, in Input) error {
	log.Printf("invalid conversation action %d in state %d for user %d", in.Kind, s.state, userID)
	_ = e.presenter.ShowError(userID, "That action is not available right now.")
	return ErrInvalidAction
}

func (e *Engine) advance(ctx context.Context, userID int64, s *session) error {
	s.nav = append(s.nav, s.step)
	if s.step+1 >= len(domain.FlowFields) {
		s.state = stateConfirming
		return e.presenter.ShowConfirmation(userID, s.draft)
	}
	s.step++
	return e.showCurrentStep(ctx, userID, s)
}

func (e *Engine) showCurrentStep(ctx context.Context, userID int64, s *session) error {
	field := domain.FlowFields[s.step]
	current, has := s.draft.Get(field)
	return e.presenter.ShowStep(userID, StepView{
		Field:      field,
		Step:       s.step + 1,
		Total:      len(domain.FlowFields),
		Current:    current,
		HasCurrent: has && !current.IsZero(),
		Options:    e.suggester.Suggestions(ctx, userID, field, s.draft, 0),
		Draft:      s.draft,
	})
}

func (e *Engine) showEditStep(ctx context.Context, userID int64, s *session) error {
	current, has := s.draft.Get(s.editField)
	return e.presenter.ShowStep(userID, StepView{
		Field:      s.editField,
		Step:       stepOf(s.editField) + 1,
		Total:      len(domain.FlowFields),
		Current:    current,
		HasCurrent: has && !current.IsZero(),
		Options:    e.suggester.Suggestions(ctx, userID, s.editField, s.draft, 0),
		Draft:      s.draft,
	})
}

func stepOf(field domain.Field) int {
	for i, f := range domain.FlowFields {
		if f == field {
			return i
		}
	}
	return 0
}

// commit hands the draft to the trade store. On failure the session survives
// so the user can retry confirm without re-entering fields.
func (e *Engine) commit(ctx context.Context, userID int64, s *session) error {
	id, err := e.committer.CommitDraft(ctx, s.draft)
	if err != nil {
		_ = e.presenter.ShowError(userID, "Saving failed, nothing was lost. Hit Confirm to retry.")
		return fmt.Errorf("commit draft %s: %w", s.draft.ID, err)
	}
	e.drop(userID, s)
	return e.presenter.ShowNotice(userID, fmt.Sprintf("Trade #%d saved.", id))
}

func (e *Engine) park(ctx context.Context, userID int64, s *session, messageRef string) error {
	err := e.pending.Park(ctx, domain.PendingEntry{
		ID:         s.draft.ID,
		UserID:     userID,
		MessageRef: messageRef,
		CreatedAt:  e.now().UTC(),
		Draft:      s.draft,
	})
	if err != nil {
		_ = e.presenter.ShowError(userID, "Could not set the draft aside, it stays active.")
		return fmt.Errorf("park draft %s: %w", s.draft.ID, err)
	}
	e.drop(userID, s)
	return e.presenter.ShowNotice(userID, "Draft set aside. Resume it any time with /pending.")
}

func (e *Engine) resume(ctx context.Context, userID int64, draftID string, now time.Time) error {
	p, err := e.pending.Take(ctx, userID, draftID)
	if err != nil {
		_ = e.presenter.ShowError(userID, "That draft is no longer available.")
		return fmt.Errorf("resume draft %s: %w", draftID, err)
	}

	s := &session{draft: p.Draft, state: stateConfirming, busy: true, lastInput: now}
	s.draft.UserID = userID

	e.mu.Lock()
	if _, exists := e.sessions[userID]; exists {
		e.mu.Unlock()
		// Lost the race with another input; put the draft back.
		if parkErr := e.pending.Park(ctx, *p); parkErr != nil {
			log.Printf("failed to re-park draft %s: %v", draftID, parkErr)
		}
		_ = e.presenter.ShowNotice(userID, "Finish or /cancel the current entry before resuming another.")
		return ErrAlreadyActive
	}
	e.sessions[userID] = s
	e.mu.Unlock()

	defer e.release(userID, s)
	return e.presenter.ShowConfirmation(userID, s.draft)
}

// ListPending and ClearPending pass through to the pending store; they do not
// touch conversation state.
func (e *Engine) ListPending(ctx context.Context, userID int64) ([]domain.PendingEntry, error) {
	return e.pending.List(ctx, userID)
}

func (e *Engine) ClearPending(ctx context.Context, userID int64) (int64, error) {
	return e.pending.Clear(ctx, userID)
}

// SweepExpired drops idle sessions. Correctness does not depend on it (expiry
// is checked lazily on touch); it frees memory for abandoned conversations.
func (e *Engine) SweepExpired() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for userID, s := range e.sessions {
		if !s.busy && now.Sub(s.lastInput) > e.idleThreshold {
			delete(e.sessions, userID)
			removed++
		}
	}
	return removed
}

// ActiveSessions reports the number of live conversations.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
