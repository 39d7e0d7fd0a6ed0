// Package cache holds the cache key derivation and the in-process and Redis
// backends of the response cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// NamespaceLLM prefixes keys of cached LLM responses.
const NamespaceLLM = "llm"

// Key derives a cache key from a namespace and a content string. The content
// is hashed so keys stay short regardless of message length.
func Key(namespace, content string) string {
	sum := sha256.Sum256([]byte(content))
	return namespace + ":" + hex.EncodeToString(sum[:])
}
