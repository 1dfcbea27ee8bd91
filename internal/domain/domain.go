package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldValue holds one entered value. Exactly one of Text or List is set;
// Number mirrors Text for decimal fields so callers never reparse.
type FieldValue struct {
	Text   string   `json:"text,omitempty"`
	Number float64  `json:"number,omitempty"`
	List   []string `json:"list,omitempty"`
}

func (v FieldValue) IsZero() bool {
	return v.Text == "" && len(v.List) == 0
}

// Values returns the strings the value contributes as ranking context.
func (v FieldValue) Values() []string {
	if len(v.List) > 0 {
		return v.List
	}
	if v.Text != "" {
		return []string{v.Text}
	}
	return nil
}

func (v FieldValue) Display() string {
	if len(v.List) > 0 {
		return strings.Join(v.List, ", ")
	}
	return v.Text
}

// DraftEntry is the trade being composed by an active conversation. It is
// mutated field by field and either committed to the trade store or discarded.
type DraftEntry struct {
	ID        string               `json:"id"`
	UserID    int64                `json:"user_id"`
	CreatedAt time.Time            `json:"created_at"`
	Values    map[Field]FieldValue `json:"values"`
}

func NewDraftEntry(userID int64, now time.Time) *DraftEntry {
	return &DraftEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now.UTC(),
		Values:    make(map[Field]FieldValue, len(FlowFields)),
	}
}

func (d *DraftEntry) Get(f Field) (FieldValue, bool) {
	v, ok := d.Values[f]
	return v, ok
}

func (d *DraftEntry) Set(f Field, v FieldValue) {
	if d.Values == nil {
		d.Values = make(map[Field]FieldValue, len(FlowFields))
	}
	d.Values[f] = v
}

// Fields lists the fields carrying a value, in flow order.
func (d *DraftEntry) Fields() []Field {
	out := make([]Field, 0, len(d.Values))
	for _, f := range FlowFields {
		if v, ok := d.Values[f]; ok && !v.IsZero() {
			out = append(out, f)
		}
	}
	return out
}

// ToTrade converts a draft into the persistent entry shape.
func (d *DraftEntry) ToTrade(now time.Time) TradeEntry {
	e := TradeEntry{
		UserID:    d.UserID,
		EnteredAt: now.UTC(),
	}
	if v, ok := d.Values[FieldTicker]; ok {
		e.Ticker = v.Text
	}
	if v, ok := d.Values[FieldDirection]; ok {
		e.Direction = v.Text
	}
	e.PnL = draftNumber(d, FieldPnL)
	e.OpenPrice = draftNumber(d, FieldOpenPrice)
	e.ClosePrice = draftNumber(d, FieldClosePrice)
	e.StopLoss = draftNumber(d, FieldStopLoss)
	e.TakeProfit = draftNumber(d, FieldTakeProfit)
	e.Volume = draftNumber(d, FieldVolume)
	if v, ok := d.Values[FieldTags]; ok {
		e.Tags = v.List
	}
	if v, ok := d.Values[FieldComment]; ok {
		e.Comment = v.Text
	}
	return e
}

func draftNumber(d *DraftEntry, f Field) *float64 {
	v, ok := d.Values[f]
	if !ok || v.Text == "" {
		return nil
	}
	n := v.Number
	return &n
}

// TradeEntry is a committed journal record as stored by the trade store.
// Optional decimals are pointers so an absent value survives round trips.
type TradeEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Ticker     string    `json:"ticker"`
	Direction  string    `json:"direction"`
	PnL        *float64  `json:"pnl,omitempty"`
	OpenPrice  *float64  `json:"open,omitempty"`
	ClosePrice *float64  `json:"close,omitempty"`
	StopLoss   *float64  `json:"sl,omitempty"`
	TakeProfit *float64  `json:"tp,omitempty"`
	Volume     *float64  `json:"volume,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	EnteredAt  time.Time `json:"entered_at"`
}

// FieldOption is one ranked candidate value for a field, with the score
// components that produced its position. Recomputed per ranking pass.
type FieldOption struct {
	Value    string  `json:"value"`
	Personal float64 `json:"personal"`
	Global   float64 `json:"global"`
	InSchema bool    `json:"in_schema"`
	Boosted  bool    `json:"boosted"`
}

func (o FieldOption) Combined() float64 {
	return o.Personal + o.Global
}

// PendingEntry is a draft parked for later resumption. MessageRef is the
// transport handle needed to re-render it.
type PendingEntry struct {
	ID         string      `json:"id"`
	UserID     int64       `json:"user_id"`
	MessageRef string      `json:"message_ref,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Draft      *DraftEntry `json:"draft"`
}
