package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// OpenRouterKeyURL reports cumulative spend for the calling API key
const OpenRouterKeyURL = "https://openrouter.ai/api/v1/key"

// UsageProbe reports cumulative account spend in USD. ok is false when the
// value is unavailable; a probe never fails an invocation.
type UsageProbe interface {
	Usage(ctx context.Context) (usd float64, ok bool)
}

// NoUsage is a probe that never reports spend
type NoUsage struct{}

func (NoUsage) Usage(context.Context) (float64, bool) { return 0, false }

// OpenRouterProbe queries the OpenRouter key endpoint
type OpenRouterProbe struct {
	APIKey string
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

// NewOpenRouterProbe creates a probe with a 10s request timeout
func NewOpenRouterProbe(apiKey string, logger *slog.Logger) *OpenRouterProbe {
	return &OpenRouterProbe{
		APIKey: apiKey,
		URL:    OpenRouterKeyURL,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger,
	}
}

type keyResponse struct {
	Data struct {
		Usage *float64 `json:"usage"`
	} `json:"data"`
}

func (p *OpenRouterProbe) Usage(ctx context.Context) (float64, bool) {
	if p.APIKey == "" {
		return 0, false
	}
	usage, err := p.fetch(ctx)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Debug("OpenRouter usage check failed", "error", err)
		}
		return 0, false
	}
	return usage, true
}

func (p *OpenRouterProbe) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("malformed response: %w", err)
	}
	if body.Data.Usage == nil {
		return 0, fmt.Errorf("response has no data.usage")
	}
	return *body.Data.Usage, nil
}
