package domain

import "time"

// Provider identifies which adapter produced a response.
type Provider string

const (
	ProviderPrimary  Provider = "primary"
	ProviderFallback Provider = "fallback"
)

// ProviderMetadata is attached to every generated response and cached with it.
type ProviderMetadata struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
}

// CacheEntry is a stored provider response.
type CacheEntry struct {
	Response  string           `json:"response"`
	Metadata  ProviderMetadata `json:"metadata"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// Expired reports whether the entry is no longer valid at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
