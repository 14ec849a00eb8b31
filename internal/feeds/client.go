// Package feeds produces yield observations for the venues the agent watches.
// A REST client and a websocket stream feed the same cache; the Observer
// layers the live, cached, and synthetic fallbacks on top.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Client is the REST client for the yield feed API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a yield feed client for the given API root.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type yieldPayload struct {
	Venue       string  `json:"venue"`
	YieldPct    float64 `json:"yield_pct"`
	Confidence  float64 `json:"confidence"`
	StrategyTag string  `json:"strategy_tag"`
	ObservedAt  int64   `json:"observed_at"` // unix seconds
}

func (p yieldPayload) toDomain() domain.YieldOpportunity {
	observed := time.Unix(p.ObservedAt, 0)
	if p.ObservedAt == 0 {
		observed = time.Now()
	}
	conf := p.Confidence
	if conf == 0 {
		conf = 1
	}
	return domain.YieldOpportunity{
		Venue:       p.Venue,
		YieldPct:    p.YieldPct,
		Confidence:  conf,
		Source:      domain.SourceLive,
		StrategyTag: p.StrategyTag,
		ObservedAt:  observed,
	}
}

// GetYield fetches the current yield for a venue.
func (c *Client) GetYield(ctx context.Context, venue string) (domain.YieldOpportunity, error) {
	path := fmt.Sprintf("/yields/%s", url.PathEscape(venue))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("feeds: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("feeds: get yield %s: %w", venue, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("feeds: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.YieldOpportunity{}, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.YieldOpportunity{}, fmt.Errorf("feeds: get yield %s: unexpected status %d", venue, resp.StatusCode)
	}

	var payload yieldPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("feeds: decode yield: %w", err)
	}
	if payload.Venue == "" {
		payload.Venue = venue
	}
	return payload.toDomain(), nil
}
