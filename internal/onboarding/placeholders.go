package onboarding

import (
	"context"
	"log/slog"
)

// TokenIsKeyResolver treats the credential token as the store key itself and
// loads whatever configuration is stored for it. Stand-in until the real
// auth service is wired in.
type TokenIsKeyResolver struct {
	Store ConfigStore
}

func (r *TokenIsKeyResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	cfg, err := r.Store.GetStoreConfig(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Identity{StoreKey: token, Config: cfg}, nil
}

// PlaceholderValidator accepts any non-empty credential set. Stand-in until
// the per-platform admin API checks are implemented.
type PlaceholderValidator struct {
	Logger *slog.Logger
}

func (v *PlaceholderValidator) Validate(ctx context.Context, platform string, credentials map[string]string) (bool, error) {
	log := v.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Warn("credential validation not implemented, accepting", "platform", platform)
	return len(credentials) > 0, nil
}
