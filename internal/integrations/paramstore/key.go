package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the expected JSON shape stored in SSM for an API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// Key is a provider API key. A static key is returned as is; a parameter
// backed key is fetched on first use and reused once a fetch succeeds.
// Failed fetches are retried on the next call.
type Key struct {
	getter Getter
	name   string

	mu     sync.RWMutex
	loaded bool
	value  string
}

// StaticKey returns a Key holding value.
func StaticKey(value string) *Key {
	return &Key{value: strings.TrimSpace(value), loaded: true}
}

// ParameterKey returns a Key read from the SSM parameter name.
func ParameterKey(getter Getter, name string) *Key {
	return &Key{getter: getter, name: strings.TrimSpace(name)}
}

// Resolve returns the key, fetching it from the parameter store if needed.
func (k *Key) Resolve(ctx context.Context) (string, error) {
	if k == nil {
		return "", errors.New("paramstore: key is nil")
	}
	k.mu.RLock()
	if k.loaded {
		v := k.value
		k.mu.RUnlock()
		if v == "" {
			return "", errors.New("paramstore: API token is empty")
		}
		return v, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.loaded {
		return k.value, nil
	}
	v, err := fetchToken(ctx, k.getter, k.name)
	if err != nil {
		return "", err
	}
	k.value = v
	k.loaded = true
	return v, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore: getter is nil")
	}
	if name == "" {
		return "", errors.New("paramstore: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("paramstore: API token is empty")
	}
	return strings.TrimSpace(tp.Token), nil
}
