// Package github implements the code-hosting provider plugin.
package github

import (
	"time"

	"wastescan/core/types"
)

// Repository is one repository visible to the connected account
type Repository struct {
	Name     string    `json:"name"`
	Private  bool      `json:"private"`
	PushedAt time.Time `json:"pushed_at"`
}

// Account carries the plan and seat detail of the connected account
type Account struct {
	Login       string `json:"login"`
	Plan        string `json:"plan"`
	Seats       int    `json:"seats"`
	FilledSeats int    `json:"filled_seats"`
}

// Snapshot is the normalized usage snapshot handed to classification
type Snapshot struct {
	Plan         string
	Seats        int
	FilledSeats  int
	Repositories []Repository

	// Gated marks a free-tier restricted snapshot: public repositories
	// only, no seat detail
	Gated bool
}

// Provider implements types.UsageSnapshot
func (s Snapshot) Provider() types.Provider {
	return types.ProviderGitHub
}

// IsEmpty implements types.UsageSnapshot
func (s Snapshot) IsEmpty() bool {
	return s.Plan == "" && len(s.Repositories) == 0
}
