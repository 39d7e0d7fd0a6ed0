package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"voice-gateway/internal/domain"
)

const pkPrefixCache = "CACHE#"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client stores cached responses in a DynamoDB table keyed by PK. The table's
// TTL attribute is "ttl"; DynamoDB deletes expired items lazily, so reads
// also check it.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// cachePK returns the DynamoDB partition key for a cache key.
func cachePK(key string) string {
	return pkPrefixCache + key
}

// Get reads a cache entry. Missing and expired items are reported as not found.
func (c *Client) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: cachePK(key)},
		},
	})
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.CacheEntry{}, false, nil
	}

	entry, err := itemToEntry(out.Item)
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("repository: Get decode: %w", err)
	}
	if entry.Expired(c.now()) {
		return domain.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set writes or replaces a cache entry expiring after ttl.
func (c *Client) Set(ctx context.Context, key string, entry domain.CacheEntry, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("repository: Set: key is required")
	}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      entryItem(key, entry),
	})
	if err != nil {
		return fmt.Errorf("repository: Set: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return nil }

func entryItem(key string, entry domain.CacheEntry) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: cachePK(key)},
		"response": &types.AttributeValueMemberS{Value: entry.Response},
		"provider": &types.AttributeValueMemberS{Value: string(entry.Metadata.Provider)},
		"model":    &types.AttributeValueMemberS{Value: entry.Metadata.Model},
	}
	if !entry.ExpiresAt.IsZero() {
		item["ttl"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", entry.ExpiresAt.Unix())}
	}
	return item
}

// itemToEntry converts a DynamoDB attribute map to a CacheEntry.
func itemToEntry(item map[string]types.AttributeValue) (domain.CacheEntry, error) {
	response, err := strAttr(item, "response")
	if err != nil {
		return domain.CacheEntry{}, err
	}
	provider, err := strAttr(item, "provider")
	if err != nil {
		return domain.CacheEntry{}, err
	}
	model, _ := strAttr(item, "model") // allow empty

	entry := domain.CacheEntry{
		Response: response,
		Metadata: domain.ProviderMetadata{Provider: domain.Provider(provider), Model: model},
	}
	if _, ok := item["ttl"]; ok {
		ttl, err := int64Attr(item, "ttl")
		if err != nil {
			return domain.CacheEntry{}, err
		}
		entry.ExpiresAt = time.Unix(ttl, 0)
	}
	return entry, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
