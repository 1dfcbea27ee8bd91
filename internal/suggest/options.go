package suggest

import (
	"context"
	"strings"

	"trade-journal-bot/internal/domain"
)

// SchemaSource is the external system defining legal values for a field.
type SchemaSource interface {
	GetOptions(ctx context.Context, field domain.Field) ([]string, error)
}

// OptionSource normalizes raw schema option lists: trims whitespace, drops
// empties, and deduplicates case-insensitively while preserving order.
type OptionSource struct {
	source SchemaSource
}

func NewOptionSource(source SchemaSource) *OptionSource {
	return &OptionSource{source: source}
}

func (o *OptionSource) Options(ctx context.Context, field domain.Field) ([]string, error) {
	if o.source == nil {
		return nil, nil
	}
	raw, err := o.source.GetOptions(ctx, field)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

func Normalize(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DefaultOptions is the built-in fallback per field so the flow never dead-ends
// when the schema source has nothing.
func DefaultOptions(field domain.Field) []string {
	switch field {
	case domain.FieldDirection:
		return []string{"Long", "Short"}
	case domain.FieldTags:
		return []string{"breakout", "news", "reversal", "scalp", "swing", "trend"}
	default:
		return nil
	}
}
