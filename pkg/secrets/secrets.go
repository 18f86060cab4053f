// Package secrets resolves credential references found in configuration.
//
// A configuration value may name where a secret lives instead of holding it:
//
//	op://<vault>/<item>/<field>   1Password Connect
//	env:NAME                      environment variable
//	file:/path/to/secret          file contents, surrounding whitespace trimmed
//
// Any other value is returned unchanged. The 1Password backend is used in
// production; env and file references are served locally so development
// setups need no Connect server.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	prefixOnePassword = "op://"
	prefixEnv         = "env:"
	prefixFile        = "file:"
)

// ErrNotFound is returned when a reference points at nothing.
var ErrNotFound = errors.New("secret not found")

// Store fetches a secret by vault, item and field.
type Store interface {
	Get(ctx context.Context, vault, item, field string) (string, error)
}

// Resolver turns configuration values into secrets.
type Resolver struct {
	remote Store // nil when only local references can be served
	logger *slog.Logger
}

// NewResolver creates a resolver backed by remote for op:// references.
// remote may be nil.
func NewResolver(remote Store, logger *slog.Logger) *Resolver {
	return &Resolver{remote: remote, logger: logger.With("component", "secrets")}
}

// IsReference reports whether value names a secret rather than holding one.
func IsReference(value string) bool {
	return strings.HasPrefix(value, prefixOnePassword) ||
		strings.HasPrefix(value, prefixEnv) ||
		strings.HasPrefix(value, prefixFile)
}

// Resolve returns the secret value refers to, or value itself when it is a
// literal.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, prefixOnePassword):
		vault, item, field, err := parseOnePasswordRef(value)
		if err != nil {
			return "", err
		}
		if r.remote == nil {
			return "", fmt.Errorf("cannot resolve %s: 1Password is not configured", value)
		}
		secret, err := r.remote.Get(ctx, vault, item, field)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", value, err)
		}
		r.logger.Debug("resolved secret", "vault", vault, "item", item, "field", field)
		return secret, nil

	case strings.HasPrefix(value, prefixEnv):
		name := strings.TrimPrefix(value, prefixEnv)
		secret, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s", ErrNotFound, name)
		}
		return secret, nil

	case strings.HasPrefix(value, prefixFile):
		path := strings.TrimPrefix(value, prefixFile)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: file %s", ErrNotFound, path)
			}
			return "", fmt.Errorf("reading secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	default:
		return value, nil
	}
}

// parseOnePasswordRef splits op://vault/item/field.
func parseOnePasswordRef(ref string) (vault, item, field string, err error) {
	parts := strings.Split(strings.TrimPrefix(ref, prefixOnePassword), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid 1Password reference %q: want op://vault/item/field", ref)
	}
	return parts[0], parts[1], parts[2], nil
}
