package secrets

import "context"

// Provider defines a generic secrets manager interface.
// Concrete implementations (AWS, GCP, etc.) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by name and returns its key-value map.
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// StaticProvider serves secrets from memory. It backs local runs and tests.
type StaticProvider map[string]map[string]string

// GetSecret implements Provider.
func (s StaticProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	v, ok := s[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return v, nil
}
