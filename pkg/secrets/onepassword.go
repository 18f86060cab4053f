package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

// itemClient is the subset of connect.Client the store uses.
type itemClient interface {
	GetItemsByTitle(title string, vaultQuery string) ([]onepassword.Item, error)
	GetItem(itemQuery string, vaultQuery string) (*onepassword.Item, error)
}

// OnePasswordStore reads secrets from 1Password using the Connect API.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
type OnePasswordStore struct {
	client itemClient
	logger *slog.Logger

	// Cache to avoid repeated API calls
	mu    sync.RWMutex
	cache map[string]string
}

// NewOnePasswordStore creates a new 1Password-backed store.
func NewOnePasswordStore(host, token string, logger *slog.Logger) (*OnePasswordStore, error) {
	if host == "" || token == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host and token are required")
	}

	client := connect.NewClientWithUserAgent(host, token, "sdnlb")
	return newOnePasswordStore(client, logger), nil
}

func newOnePasswordStore(client itemClient, logger *slog.Logger) *OnePasswordStore {
	return &OnePasswordStore{
		client: client,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Get returns the value of field in the item titled item in vault.
func (s *OnePasswordStore) Get(ctx context.Context, vault, item, field string) (string, error) {
	key := vault + "/" + item + "/" + field

	// Check cache first
	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	items, err := s.client.GetItemsByTitle(item, vault)
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("%w: item %s in vault %s", ErrNotFound, item, vault)
		}
		return "", fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: item %s in vault %s", ErrNotFound, item, vault)
	}

	// Get the full item (including fields)
	full, err := s.client.GetItem(items[0].ID, vault)
	if err != nil {
		return "", fmt.Errorf("getting item: %w", err)
	}

	for _, f := range full.Fields {
		if strings.EqualFold(f.Label, field) || strings.EqualFold(f.ID, field) {
			s.mu.Lock()
			s.cache[key] = f.Value
			s.mu.Unlock()
			return f.Value, nil
		}
	}

	return "", fmt.Errorf("%w: field %s in item %s", ErrNotFound, field, item)
}

// isNotFoundError checks if an error is a "not found" error from 1Password.
// The SDK returns different error types, so check the message.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404") || strings.Contains(msg, "no items")
}
