package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"trade-journal-bot/internal/conversation"
	"trade-journal-bot/internal/domain"

	tele "gopkg.in/telebot.v3"
)

// EntryFlow is the conversation engine surface the transport drives.
type EntryFlow interface {
	Handle(ctx context.Context, userID int64, in conversation.Input) error
	ListPending(ctx context.Context, userID int64) ([]domain.PendingEntry, error)
	ClearPending(ctx context.Context, userID int64) (int64, error)
}

var (
	btnPick    = tele.Btn{Unique: "jr_pick"}
	btnSkip    = tele.Btn{Unique: "jr_skip", Text: "Skip"}
	btnBack    = tele.Btn{Unique: "jr_back", Text: "Back"}
	btnPark    = tele.Btn{Unique: "jr_park", Text: "Save for later"}
	btnCancel  = tele.Btn{Unique: "jr_cancel", Text: "Cancel"}
	btnConfirm = tele.Btn{Unique: "jr_confirm", Text: "Confirm"}
	btnEdit    = tele.Btn{Unique: "jr_edit"}
	btnResume  = tele.Btn{Unique: "jr_resume"}
	btnClear   = tele.Btn{Unique: "jr_clear", Text: "Clear all"}
)

// NewTelegramBot creates the bot without starting it, so a Presenter can be
// built from it before the entry flow exists. Returns nil when no token is
// configured.
func NewTelegramBot(token string) *tele.Bot {
	if token == "" {
		log.Println("no Telegram token configured, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	return b
}

// StartTelegramBot wires commands and inline buttons to the entry flow and
// starts long polling.
func StartTelegramBot(b *tele.Bot, flow EntryFlow) {
	if b == nil {
		return
	}
	RegisterHandlers(b, flow)

	log.Println("Telegram bot started")
	go b.Start()
}

func RegisterHandlers(b *tele.Bot, flow EntryFlow) {
	dispatch := func(c tele.Context, in conversation.Input) error {
		if c.Sender() == nil {
			return nil
		}
		if err := flow.Handle(context.Background(), c.Sender().ID, in); err != nil {
			// The engine already told the user what happened.
			log.Printf("entry flow input for user %d: %v", c.Sender().ID, err)
		}
		if c.Callback() != nil {
			return c.Respond()
		}
		return nil
	}

	b.Handle("/start", func(c tele.Context) error {
		return c.Send("Trade journal bot. /new starts an entry, /pending lists saved drafts, /cancel aborts the current one.")
	})

	b.Handle("/new", func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputStart})
	})

	b.Handle("/cancel", func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputCancel})
	})

	b.Handle("/skip", func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputSkip})
	})

	b.Handle("/back", func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputBack})
	})

	b.Handle("/pending", func(c tele.Context) error {
		if c.Sender() == nil {
			return nil
		}
		entries, err := flow.ListPending(context.Background(), c.Sender().ID)
		if err != nil {
			return c.Send(fmt.Sprintf("Could not load saved drafts: %v", err))
		}
		if len(entries) == 0 {
			return c.Send("No saved drafts.")
		}
		markup := &tele.ReplyMarkup{}
		rows := make([]tele.Row, 0, len(entries)+1)
		for _, p := range entries {
			rows = append(rows, markup.Row(markup.Data(formatPendingLabel(p), btnResume.Unique, p.ID)))
		}
		rows = append(rows, markup.Row(markup.Data(btnClear.Text, btnClear.Unique)))
		markup.Inline(rows...)
		return c.Send(fmt.Sprintf("Saved drafts (%d):", len(entries)), markup)
	})

	b.Handle(&btnResume, func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputResume, Text: c.Data()})
	})

	b.Handle(&btnClear, func(c tele.Context) error {
		if c.Sender() == nil {
			return nil
		}
		n, err := flow.ClearPending(context.Background(), c.Sender().ID)
		if err != nil {
			return c.Send(fmt.Sprintf("Could not clear drafts: %v", err))
		}
		if respErr := c.Respond(); respErr != nil {
			return respErr
		}
		return c.Send(fmt.Sprintf("Removed %d saved draft(s).", n))
	})

	b.Handle(&btnPick, func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputPick, Text: c.Data()})
	})

	b.Handle(&btnSkip, func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputSkip})
	})

	b.Handle(&btnBack, func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputBack})
	})

	b.Handle(&btnCancel, func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputCancel})
	})

	b.Handle(&btnConfirm, func(c tele.Context) error {
		return dispatch(c, conversation.Input{Kind: conversation.InputConfirm})
	})

	b.Handle(&btnEdit, func(c tele.Context) error {
		field, ok := domain.ParseField(c.Data())
		if !ok {
			return c.Respond()
		}
		return dispatch(c, conversation.Input{Kind: conversation.InputEdit, Field: field})
	})

	b.Handle(&btnPark, func(c tele.Context) error {
		var ref string
		if c.Message() != nil {
			ref = fmt.Sprintf("%d", c.Message().ID)
		}
		return dispatch(c, conversation.Input{Kind: conversation.InputPark, Text: ref})
	})

	b.Handle(tele.OnText, func(c tele.Context) error {
		text := strings.TrimSpace(c.Text())
		if text == "" {
			return nil
		}
		return dispatch(c, conversation.Input{Kind: conversation.InputText, Text: text})
	})
}

// Presenter renders engine screens through Telegram. It is the presentation
// boundary: rankings are cut to topN here, never earlier.
type Presenter struct {
	bot  *tele.Bot
	topN int
}

func NewPresenter(b *tele.Bot, topN int) *Presenter {
	return &Presenter{bot: b, topN: topN}
}

func (p *Presenter) send(userID int64, what any, opts ...any) error {
	if p.bot == nil {
		return nil
	}
	_, err := p.bot.Send(tele.ChatID(userID), what, opts...)
	return err
}

func (p *Presenter) ShowStep(userID int64, view conversation.StepView) error {
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row

	shown := view.Options
	if p.topN > 0 && len(shown) > p.topN {
		shown = shown[:p.topN]
	}
	for _, opt := range shown {
		rows = append(rows, markup.Row(markup.Data(optionLabel(opt), btnPick.Unique, opt.Value)))
	}
	rows = append(rows, markup.Row(
		markup.Data(btnBack.Text, btnBack.Unique),
		markup.Data(btnSkip.Text, btnSkip.Unique),
	))
	rows = append(rows, markup.Row(
		markup.Data(btnPark.Text, btnPark.Unique),
		markup.Data(btnCancel.Text, btnCancel.Unique),
	))
	markup.Inline(rows...)

	return p.send(userID, formatStepPrompt(view), markup)
}

func (p *Presenter) ShowConfirmation(userID int64, draft *domain.DraftEntry) error {
	markup := &tele.ReplyMarkup{}
	rows := []tele.Row{markup.Row(
		markup.Data(btnConfirm.Text, btnConfirm.Unique),
		markup.Data(btnBack.Text, btnBack.Unique),
	)}
	for _, f := range draft.Fields() {
		rows = append(rows, markup.Row(markup.Data("Edit "+f.Title(), btnEdit.Unique, f.Key())))
	}
	rows = append(rows, markup.Row(
		markup.Data(btnPark.Text, btnPark.Unique),
		markup.Data(btnCancel.Text, btnCancel.Unique),
	))
	markup.Inline(rows...)

	return p.send(userID, formatPreview(draft), markup)
}

func (p *Presenter) ShowNotice(userID int64, text string) error {
	return p.send(userID, text)
}

func (p *Presenter) ShowError(userID int64, text string) error {
	return p.send(userID, text)
}

func formatStepPrompt(view conversation.StepView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Step %d/%d: %s", view.Step, view.Total, view.Field.Title())
	if view.HasCurrent {
		fmt.Fprintf(&sb, "\nCurrent: %s", view.Current.Display())
	}
	switch view.Field.Kind() {
	case domain.KindDecimal:
		sb.WriteString("\nSend a number, pick a suggestion, or Skip.")
	case domain.KindMultiSelect:
		sb.WriteString("\nSend comma-separated values, pick a suggestion, or Skip.")
	default:
		sb.WriteString("\nSend a value, pick a suggestion, or Skip.")
	}
	return sb.String()
}

func formatPreview(draft *domain.DraftEntry) string {
	var sb strings.Builder
	sb.WriteString("Review your entry:\n")
	filled := draft.Fields()
	if len(filled) == 0 {
		sb.WriteString("(no fields set)")
		return sb.String()
	}
	for _, f := range filled {
		v, _ := draft.Get(f)
		fmt.Fprintf(&sb, "%s: %s\n", f.Title(), v.Display())
	}
	sb.WriteString("\nConfirm to save, or edit a field.")
	return sb.String()
}

func formatPendingLabel(p domain.PendingEntry) string {
	label := "draft"
	if p.Draft != nil {
		if v, ok := p.Draft.Get(domain.FieldTicker); ok && v.Text != "" {
			label = v.Text
		}
	}
	return fmt.Sprintf("%s (%s)", label, p.CreatedAt.UTC().Format("Jan 2 15:04"))
}

func optionLabel(opt domain.FieldOption) string {
	if opt.Boosted {
		return "* " + opt.Value
	}
	return opt.Value
}
