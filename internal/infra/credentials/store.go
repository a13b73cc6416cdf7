package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"fundtrace/internal/infra"
	"fundtrace/internal/sqlinline"
)

const ProviderMidtrans = "midtrans"

const envProduction = "production"

// Store keeps integration secrets in the integration_tokens table.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// MidtransServerKey returns the stored gateway key and whether it was saved
// for production. The key is empty when none was stored.
func (s *Store) MidtransServerKey(ctx context.Context) (string, bool, error) {
	key, env, err := s.lookup(ctx, ProviderMidtrans)
	return key, env == envProduction, err
}

// Token returns the provider's token, empty when unset.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	token, _, err := s.lookup(ctx, provider)
	return token, err
}

func (s *Store) lookup(ctx context.Context, provider string) (string, string, error) {
	var token, env string
	err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token, &env)
	if err != nil {
		if infra.IsNoRows(err) {
			return "", "", nil
		}
		return "", "", err
	}
	return strings.TrimSpace(token), env, nil
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("provider is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New(provider + " token is required")
	}
	return s.upsert(ctx, provider, token, nil)
}

// SetMidtransServerKey stores the gateway key along with its environment.
func (s *Store) SetMidtransServerKey(ctx context.Context, key string, production bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("midtrans server key is required")
	}
	env := "sandbox"
	if production {
		env = envProduction
	}
	return s.upsert(ctx, ProviderMidtrans, key, map[string]any{"environment": env})
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
