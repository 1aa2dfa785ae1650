package sentry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"wastescan/internal/errors"
)

const defaultBaseURL = "https://sentry.io/api/0"

// Client is the upstream API boundary for the error tracker
type Client interface {
	// Usage returns the organization's plan, quota consumption and
	// native spend in one call
	Usage(ctx context.Context, orgSlug string) (*Usage, error)
}

type restClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a REST client authenticated with the given token
func NewClient(token string) Client {
	return &restClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

func (c *restClient) Usage(ctx context.Context, orgSlug string) (*Usage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/organizations/%s/usage/", c.baseURL, orgSlug), nil)
	if err != nil {
		return nil, errors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.TransientProvider("error tracker request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Auth(fmt.Sprintf("error tracker rejected credentials (%d)", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, errors.TransientProvider(fmt.Sprintf("error tracker returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf(errors.TypeTransientProvider, "unexpected error tracker status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransientProvider("failed to read error tracker response", err)
	}

	var raw struct {
		Plan           string     `json:"plan"`
		EventQuota     int64      `json:"event_quota"`
		EventsConsumed int64      `json:"events_consumed"`
		LastEventAt    *time.Time `json:"last_event_at"`
		MonthlySpend   string     `json:"monthly_spend"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Validation("malformed error tracker response: " + err.Error())
	}

	spend := decimal.Zero
	if raw.MonthlySpend != "" {
		spend, err = decimal.NewFromString(raw.MonthlySpend)
		if err != nil {
			return nil, errors.Validation("malformed spend figure: " + raw.MonthlySpend)
		}
	}

	return &Usage{
		Plan:           raw.Plan,
		EventQuota:     raw.EventQuota,
		EventsConsumed: raw.EventsConsumed,
		LastEventAt:    raw.LastEventAt,
		MonthlySpend:   spend,
	}, nil
}
