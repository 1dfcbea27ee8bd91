package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trade-journal-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	notionBaseURL    = "https://api.notion.com"
	notionAPIVersion = "2022-06-28"
)

// NotionSchemaProvider reads select and multi-select property options from a
// Notion database. The database id is the schema identity used in cache keys.
type NotionSchemaProvider struct {
	tracer     trace.Tracer
	httpClient *http.Client
	baseURL    string
	token      string
	databaseID string
}

func NewNotionSchemaProvider(tracer trace.Tracer, token, databaseID string, timeout time.Duration) *NotionSchemaProvider {
	return &NotionSchemaProvider{
		tracer:     tracer,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    notionBaseURL,
		token:      token,
		databaseID: databaseID,
	}
}

// SchemaID identifies the schema source for cache keying.
func (p *NotionSchemaProvider) SchemaID() string {
	return p.databaseID
}

type notionDatabase struct {
	Properties map[string]notionProperty `json:"properties"`
}

type notionProperty struct {
	Type        string              `json:"type"`
	Select      *notionSelectConfig `json:"select,omitempty"`
	MultiSelect *notionSelectConfig `json:"multi_select,omitempty"`
}

type notionSelectConfig struct {
	Options []notionOption `json:"options"`
}

type notionOption struct {
	Name string `json:"name"`
}

// GetOptions returns the legal values Notion defines for the field, or nil
// when the property is absent or not a select kind. Errors are left to the
// caching layer, which falls back to stale data or built-in defaults.
func (p *NotionSchemaProvider) GetOptions(ctx context.Context, field domain.Field) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "notion-provider.get-options",
		trace.WithAttributes(attribute.String("field", field.Key())))
	defer span.End()

	if p.token == "" || p.databaseID == "" {
		return nil, fmt.Errorf("notion provider not configured")
	}

	db, err := p.fetchDatabase(ctx)
	if err != nil {
		return nil, err
	}

	prop, ok := db.Properties[field.Title()]
	if !ok {
		return nil, nil
	}

	var cfg *notionSelectConfig
	switch prop.Type {
	case "select":
		cfg = prop.Select
	case "multi_select":
		cfg = prop.MultiSelect
	default:
		return nil, nil
	}
	if cfg == nil {
		return nil, nil
	}

	options := make([]string, 0, len(cfg.Options))
	for _, o := range cfg.Options {
		options = append(options, o.Name)
	}
	return options, nil
}

func (p *NotionSchemaProvider) fetchDatabase(ctx context.Context) (*notionDatabase, error) {
	url := fmt.Sprintf("%s/v1/databases/%s", p.baseURL, p.databaseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Notion-Version", notionAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch notion database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notion database request failed: status %d", resp.StatusCode)
	}

	var db notionDatabase
	if err := json.NewDecoder(resp.Body).Decode(&db); err != nil {
		return nil, fmt.Errorf("decode notion database: %w", err)
	}
	return &db, nil
}
