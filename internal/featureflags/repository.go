package featureflags

import (
	"context"
	"errors"
)

var (
	// ErrFlagNotFound is returned by repositories for keys without a stored override.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrUnknownFlag is returned for keys that have no default.
	ErrUnknownFlag = errors.New("unknown feature flag")
)

// Repository stores flag overrides. A key without an override evaluates to
// its default.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)

	// GetAllFlags returns every stored override keyed by flag key.
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlags upserts flags in one transaction.
	SetFlags(ctx context.Context, flags []*Flag) error

	// DeleteFlag drops the override of key. Missing keys are not an error.
	DeleteFlag(ctx context.Context, key string) error
}
