package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wastescan/internal/errors"
)

const defaultBaseURL = "https://api.github.com"

// Client is the upstream API boundary for the code host. Only the
// shape of the data matters here; transport details stay private.
type Client interface {
	// Account returns the authenticated account with plan detail
	Account(ctx context.Context) (*Account, error)

	// Repositories returns every repository visible to the account
	Repositories(ctx context.Context) ([]Repository, error)
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

func (c *restClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.TransientProvider("code host request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Auth(fmt.Sprintf("code host rejected credentials (%d)", resp.StatusCode))
	case resp.StatusCode >= 500:
		return errors.TransientProvider(fmt.Sprintf("code host returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return errors.Newf(errors.TypeTransientProvider, "unexpected code host status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.TransientProvider("failed to read code host response", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Validation("malformed code host response: " + err.Error())
	}
	return nil
}

func (c *restClient) Account(ctx context.Context) (*Account, error) {
	var raw struct {
		Login string `json:"login"`
		Plan  struct {
			Name        string `json:"name"`
			Seats       int    `json:"seats"`
			FilledSeats int    `json:"filled_seats"`
		} `json:"plan"`
	}
	if err := c.get(ctx, "/user", &raw); err != nil {
		return nil, err
	}
	return &Account{
		Login:       raw.Login,
		Plan:        raw.Plan.Name,
		Seats:       raw.Plan.Seats,
		FilledSeats: raw.Plan.FilledSeats,
	}, nil
}

func (c *restClient) Repositories(ctx context.Context) ([]Repository, error) {
	var raw []struct {
		Name     string    `json:"name"`
		Private  bool      `json:"private"`
		PushedAt time.Time `json:"pushed_at"`
	}
	if err := c.get(ctx, "/user/repos?per_page=100&sort=pushed", &raw); err != nil {
		return nil, err
	}

	repos := make([]Repository, 0, len(raw))
	for _, r := range raw {
		repos = append(repos, Repository{
			Name:     r.Name,
			Private:  r.Private,
			PushedAt: r.PushedAt,
		})
	}
	return repos, nil
}
