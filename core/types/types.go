// Package types defines core domain types shared across all layers.
// This package contains NO business logic - only type definitions.
package types

import "time"

// Provider identifies a connected third-party service
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderAWS     Provider = "aws"
	ProviderSentry  Provider = "sentry"
	ProviderUnknown Provider = "unknown"
)

// String returns the string representation of the provider
func (p Provider) String() string {
	return string(p)
}

// IsValid checks if the provider is a known provider
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGitHub, ProviderAWS, ProviderSentry:
		return true
	default:
		return false
	}
}

// Tier is the product subscription tier of a user. It gates how much
// detail an adapter is allowed to pull from a provider.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ConnectionStatus tracks the health of a provider connection
type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "active"
	ConnectionError        ConnectionStatus = "error"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// FindingStatus classifies a discovered resource group
type FindingStatus string

const (
	FindingActive    FindingStatus = "active"
	FindingZombie    FindingStatus = "zombie"
	FindingUnused    FindingStatus = "unused"
	FindingDowngrade FindingStatus = "downgrade_possible"
)

// Actionable reports whether the finding represents recoverable cost
func (s FindingStatus) Actionable() bool {
	return s != FindingActive
}

// User is the record of the scanning user. Loading it is the only
// failure that aborts a whole scan call.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Tier              Tier   `json:"tier"`
	ScanCount         int    `json:"scan_count"`
	ReferredBy        string `json:"referred_by,omitempty"`
	ReferralQualified bool   `json:"referral_qualified"`
}

// Connection links a user to one provider account. The credential
// itself lives in the vault; CredentialRef is an opaque handle.
type Connection struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Provider      Provider         `json:"provider"`
	CredentialRef string           `json:"credential_ref"`
	AccountLabel  string           `json:"account_label"`
	Environment   string           `json:"environment,omitempty"`
	IsDefault     bool             `json:"is_default"`
	Status        ConnectionStatus `json:"status"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	LastScannedAt *time.Time       `json:"last_scanned_at,omitempty"`
}

// UsageSnapshot is the normalized, provider-specific data an adapter
// hands to the classification engine. Snapshots are ephemeral and
// never persisted; concrete types live in each provider package.
type UsageSnapshot interface {
	// Provider returns the provider that produced the snapshot
	Provider() Provider

	// IsEmpty reports whether the snapshot carries no usage data,
	// e.g. the neutral snapshot used after an upstream failure
	IsEmpty() bool
}
