// Package onboarding resolves onboarding requests against stored store
// configurations: first-time setups require a complete payload, while
// re-onboarding uses stored values as defaults and applies selective
// overrides. Persistence is an idempotent upsert.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/catosphere/catosphere-go/internal/models"
)

var (
	// ErrValidation indicates a missing or malformed onboarding field.
	// Nothing is persisted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials indicates the platform admin API rejected the
	// supplied credentials. Nothing is persisted and no job is started.
	ErrInvalidCredentials = errors.New("platform credentials rejected")
)

// Platforms this backend can onboard.
var supportedPlatforms = map[string]bool{
	"shopify":     true,
	"woocommerce": true,
	"bigcommerce": true,
	"magento":     true,
}

// Identity is the result of resolving a credential token.
type Identity struct {
	StoreKey string
	Config   *models.StoreConfig // nil if the store was never onboarded
}

// IdentityResolver maps an opaque credential token to a store identity.
// Implemented by the external auth collaborator. Returns (nil, nil) when
// the token resolves to no known identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// CredentialValidator checks platform credentials against the platform's
// admin API. Implemented by the external platform integration.
type CredentialValidator interface {
	Validate(ctx context.Context, platform string, credentials map[string]string) (bool, error)
}

// ConfigStore is the persistence surface onboarding needs.
type ConfigStore interface {
	GetStoreConfig(ctx context.Context, storeKey string) (*models.StoreConfig, error)
	UpsertStoreConfig(ctx context.Context, storeKey string, fields map[string]any) error
}

// Request is an onboarding payload. Pointer and nil-slice fields distinguish
// "absent" from "present but empty": absent fields keep their stored values
// on re-onboarding, present fields override them. Array fields replace, they
// never merge; the discovery engine is the only place categories are unioned.
type Request struct {
	StoreKey       *string           `json:"store_key,omitempty"`
	Platform       *string           `json:"platform,omitempty"`
	Credentials    map[string]string `json:"credentials,omitempty"`
	Categories     []string          `json:"categories,omitempty"`
	SoftCategories []string          `json:"soft_categories,omitempty"`
	Types          []string          `json:"types,omitempty"`
	SyncMode       *string           `json:"sync_mode,omitempty"`
}

// firstTimePayload is the completeness contract for first-time onboarding.
type firstTimePayload struct {
	StoreKey    string            `validate:"required"`
	Platform    string            `validate:"required"`
	Credentials map[string]string `validate:"required,min=1"`
	Categories  []string          `validate:"required,min=1"`
	Types       []string          `validate:"required,min=1"`
}

// Service performs onboarding and re-onboarding.
type Service struct {
	store     ConfigStore
	resolver  IdentityResolver
	validator CredentialValidator
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService creates an onboarding service.
func NewService(store ConfigStore, resolver IdentityResolver, credValidator CredentialValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		resolver:  resolver,
		validator: credValidator,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Onboard resolves the token and either creates a first-time configuration
// or applies overrides to the stored one. The upsert is idempotent and never
// clears fields absent from the request; onboarded_at is set exactly once.
func (s *Service) Onboard(ctx context.Context, token string, req Request) (*models.StoreConfig, error) {
	identity, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	var stored *models.StoreConfig
	if identity != nil {
		stored = identity.Config
		if stored == nil {
			stored, err = s.store.GetStoreConfig(ctx, identity.StoreKey)
			if err != nil {
				return nil, fmt.Errorf("load stored config: %w", err)
			}
		}
	}

	if stored == nil {
		return s.onboardFirstTime(ctx, req)
	}
	return s.reonboard(ctx, stored, req)
}

func (s *Service) onboardFirstTime(ctx context.Context, req Request) (*models.StoreConfig, error) {
	payload := firstTimePayload{
		Credentials: req.Credentials,
		Categories:  req.Categories,
		Types:       req.Types,
	}
	if req.StoreKey != nil {
		payload.StoreKey = *req.StoreKey
	}
	if req.Platform != nil {
		payload.Platform = *req.Platform
	}

	if err := s.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !supportedPlatforms[payload.Platform] {
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrValidation, payload.Platform)
	}

	if err := s.checkCredentials(ctx, payload.Platform, payload.Credentials); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"platform":    payload.Platform,
		"credentials": payload.Credentials,
		"categories":  payload.Categories,
		"types":       payload.Types,
	}
	if req.SoftCategories != nil {
		fields["soft_categories"] = req.SoftCategories
	}
	if req.SyncMode != nil {
		fields["sync_mode"] = *req.SyncMode
	}

	if err := s.store.UpsertStoreConfig(ctx, payload.StoreKey, fields); err != nil {
		return nil, fmt.Errorf("persist config: %w", err)
	}

	s.logger.Info("store onboarded", "store_key", payload.StoreKey, "platform", payload.Platform)
	return s.readBack(ctx, payload.StoreKey)
}

func (s *Service) reonboard(ctx context.Context, stored *models.StoreConfig, req Request) (*models.StoreConfig, error) {
	// Stored values are the defaults; only fields present in the request
	// land in the update document, so the upsert never clears the rest.
	fields := map[string]any{}

	platform := stored.Platform
	if req.Platform != nil {
		platform = *req.Platform
		if !supportedPlatforms[platform] {
			return nil, fmt.Errorf("%w: unsupported platform %q", ErrValidation, platform)
		}
		fields["platform"] = platform
	}
	if req.Credentials != nil {
		if err := s.checkCredentials(ctx, platform, req.Credentials); err != nil {
			return nil, err
		}
		fields["credentials"] = req.Credentials
	}
	if req.Categories != nil {
		fields["categories"] = req.Categories
	}
	if req.SoftCategories != nil {
		fields["soft_categories"] = req.SoftCategories
	}
	if req.Types != nil {
		fields["types"] = req.Types
	}
	if req.SyncMode != nil {
		fields["sync_mode"] = *req.SyncMode
	}

	if len(fields) > 0 {
		if err := s.store.UpsertStoreConfig(ctx, stored.StoreKey, fields); err != nil {
			return nil, fmt.Errorf("persist config: %w", err)
		}
	}

	s.logger.Info("store re-onboarded", "store_key", stored.StoreKey, "overridden_fields", len(fields))
	return s.readBack(ctx, stored.StoreKey)
}

func (s *Service) checkCredentials(ctx context.Context, platform string, creds map[string]string) error {
	ok, err := s.validator.Validate(ctx, platform, creds)
	if err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: platform %s", ErrInvalidCredentials, platform)
	}
	return nil
}

func (s *Service) readBack(ctx context.Context, storeKey string) (*models.StoreConfig, error) {
	cfg, err := s.store.GetStoreConfig(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("read back config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config vanished after upsert: %s", storeKey)
	}
	return cfg, nil
}
