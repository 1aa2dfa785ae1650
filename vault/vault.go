// Package vault resolves connection credential references to their
// secret values. Scan code only ever sees an opaque reference until
// the moment an adapter needs the real credential.
package vault

import (
	"context"
	"os"
	"sync"

	"wastescan/core/types"
	"wastescan/internal/errors"
)

// Vault reveals the secret behind a connection's credential reference.
type Vault interface {
	Reveal(ctx context.Context, conn types.Connection) (string, error)
}

// Static serves secrets from an in-memory map keyed by credential
// reference. Used for tests and single-node deployments where secrets
// are loaded at startup.
type Static struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewStatic(secrets map[string]string) *Static {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &Static{secrets: secrets}
}

func (v *Static) Reveal(_ context.Context, conn types.Connection) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	secret, ok := v.secrets[conn.CredentialRef]
	if !ok {
		return "", errors.NotFound("credential", conn.CredentialRef)
	}
	return secret, nil
}

// Put stores or replaces a secret under ref.
func (v *Static) Put(ref, secret string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[ref] = secret
}

// Env resolves credential references as environment variable names.
type Env struct{}

func NewEnv() Env {
	return Env{}
}

func (Env) Reveal(_ context.Context, conn types.Connection) (string, error) {
	secret := os.Getenv(conn.CredentialRef)
	if secret == "" {
		return "", errors.NotFound("credential", conn.CredentialRef)
	}
	return secret, nil
}
