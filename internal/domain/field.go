package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Field identifies one journal field collected by the entry flow. Adding a
// field means extending the constants below plus every switch in this file;
// the compiler flags any accessor left behind.
type Field int

const (
	FieldTicker Field = iota
	FieldDirection
	FieldPnL
	FieldOpenPrice
	FieldClosePrice
	FieldStopLoss
	FieldTakeProfit
	FieldVolume
	FieldTags
	FieldComment
)

// FlowFields is the ordered step sequence of the entry conversation.
var FlowFields = []Field{
	FieldTicker,
	FieldDirection,
	FieldPnL,
	FieldOpenPrice,
	FieldClosePrice,
	FieldStopLoss,
	FieldTakeProfit,
	FieldVolume,
	FieldTags,
	FieldComment,
}

type FieldKind int

const (
	KindText FieldKind = iota
	KindDecimal
	KindSelect
	KindMultiSelect
)

func (f Field) Key() string {
	switch f {
	case FieldTicker:
		return "ticker"
	case FieldDirection:
		return "direction"
	case FieldPnL:
		return "pnl"
	case FieldOpenPrice:
		return "open"
	case FieldClosePrice:
		return "close"
	case FieldStopLoss:
		return "sl"
	case FieldTakeProfit:
		return "tp"
	case FieldVolume:
		return "volume"
	case FieldTags:
		return "tags"
	case FieldComment:
		return "comment"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

func (f Field) Title() string {
	switch f {
	case FieldTicker:
		return "Ticker"
	case FieldDirection:
		return "Direction"
	case FieldPnL:
		return "PnL"
	case FieldOpenPrice:
		return "Open price"
	case FieldClosePrice:
		return "Close price"
	case FieldStopLoss:
		return "Stop loss"
	case FieldTakeProfit:
		return "Take profit"
	case FieldVolume:
		return "Volume"
	case FieldTags:
		return "Tags"
	case FieldComment:
		return "Comment"
	}
	return f.Key()
}

func (f Field) Kind() FieldKind {
	switch f {
	case FieldPnL, FieldOpenPrice, FieldClosePrice, FieldStopLoss, FieldTakeProfit, FieldVolume:
		return KindDecimal
	case FieldDirection:
		return KindSelect
	case FieldTags:
		return KindMultiSelect
	default:
		return KindText
	}
}

// ParseField resolves a field key as used in callback payloads and URLs.
func ParseField(key string) (Field, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, f := range FlowFields {
		if f.Key() == key {
			return f, true
		}
	}
	return 0, false
}

// MarshalText lets Field serve as a JSON map key in parked drafts.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.Key()), nil
}

func (f *Field) UnmarshalText(text []byte) error {
	parsed, ok := ParseField(string(text))
	if !ok {
		return fmt.Errorf("unknown field key: %q", string(text))
	}
	*f = parsed
	return nil
}

// ParseValue validates and normalizes raw user input for the field.
func (f Field) ParseValue(raw string) (FieldValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FieldValue{}, fmt.Errorf("%s must not be empty", f.Title())
	}
	switch f.Kind() {
	case KindDecimal:
		normalized := strings.ReplaceAll(raw, ",", ".")
		n, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			return FieldValue{}, fmt.Errorf("%s must be a number, got %q", f.Title(), raw)
		}
		return FieldValue{Text: strconv.FormatFloat(n, 'f', -1, 64), Number: n}, nil
	case KindMultiSelect:
		parts := strings.Split(raw, ",")
		list := make([]string, 0, len(parts))
		seen := make(map[string]struct{}, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[strings.ToLower(p)]; ok {
				continue
			}
			seen[strings.ToLower(p)] = struct{}{}
			list = append(list, p)
		}
		if len(list) == 0 {
			return FieldValue{}, fmt.Errorf("%s must contain at least one value", f.Title())
		}
		return FieldValue{List: list}, nil
	case KindSelect:
		return FieldValue{Text: normalizeSelect(raw)}, nil
	default:
		if f == FieldTicker {
			return FieldValue{Text: strings.ToUpper(raw)}, nil
		}
		return FieldValue{Text: raw}, nil
	}
}

func normalizeSelect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	return strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:])
}

// TradeValues returns the candidate strings a committed entry contributes to
// history scoring for the field. Multi-select fields contribute one value per
// element, unset fields contribute nothing.
func (f Field) TradeValues(e TradeEntry) []string {
	switch f {
	case FieldTicker:
		return singleton(e.Ticker)
	case FieldDirection:
		return singleton(e.Direction)
	case FieldPnL:
		return decimalValue(e.PnL)
	case FieldOpenPrice:
		return decimalValue(e.OpenPrice)
	case FieldClosePrice:
		return decimalValue(e.ClosePrice)
	case FieldStopLoss:
		return decimalValue(e.StopLoss)
	case FieldTakeProfit:
		return decimalValue(e.TakeProfit)
	case FieldVolume:
		return decimalValue(e.Volume)
	case FieldTags:
		return e.Tags
	case FieldComment:
		return singleton(e.Comment)
	}
	return nil
}

func singleton(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return []string{v}
}

func decimalValue(v *float64) []string {
	if v == nil {
		return nil
	}
	return []string{strconv.FormatFloat(*v, 'f', -1, 64)}
}
