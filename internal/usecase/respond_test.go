package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voice-gateway/internal/cache"
	"voice-gateway/internal/domain"
)

type invokeResult struct {
	text string
	meta domain.ProviderMetadata
	err  error
}

type fakeProvider struct {
	mu       sync.Mutex
	result   invokeResult
	calls    int
	captured []domain.ChatMessage
}

func (f *fakeProvider) Invoke(_ context.Context, msgs []domain.ChatMessage) (string, domain.ProviderMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.captured = msgs
	return f.result.text, f.result.meta, f.result.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func primaryOK(text string) *fakeProvider {
	return &fakeProvider{result: invokeResult{text: text, meta: domain.ProviderMetadata{Provider: domain.ProviderPrimary, Model: "mistral-large-latest"}}}
}

func fallbackOK(text string) *fakeProvider {
	return &fakeProvider{result: invokeResult{text: text, meta: domain.ProviderMetadata{Provider: domain.ProviderFallback, Model: "llama-3.3-70b-versatile"}}}
}

func failing(provider domain.Provider, msg string) *fakeProvider {
	return &fakeProvider{result: invokeResult{err: &domain.ProviderUnavailableError{Provider: provider, Attempts: 1, Err: errors.New(msg)}}}
}

// countingStore wraps a Memory store and counts calls.
type countingStore struct {
	*cache.Memory
	gets, sets int
}

func (s *countingStore) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	s.gets++
	return s.Memory.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, entry domain.CacheEntry, ttl time.Duration) error {
	s.sets++
	return s.Memory.Set(ctx, key, entry, ttl)
}

type brokenStore struct {
	sets int
}

func (b *brokenStore) Get(context.Context, string) (domain.CacheEntry, bool, error) {
	return domain.CacheEntry{}, false, errors.New("redis: connection refused")
}

func (b *brokenStore) Set(context.Context, string, domain.CacheEntry, time.Duration) error {
	b.sets++
	return errors.New("redis: connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, primary, fallback Provider, opts ...GatewayOption) *ResponseGateway {
	t.Helper()
	opts = append([]GatewayOption{WithLogger(discardLogger())}, opts...)
	g, err := NewResponseGateway(primary, fallback, opts...)
	require.NoError(t, err)
	return g
}

func userTurn(content string) []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleUser, Content: content}}
}

func expectGatewayError(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, code, gwErr.Code)
	return gwErr
}

func TestNewResponseGateway_ValidatesDependencies(t *testing.T) {
	_, err := NewResponseGateway(nil, fallbackOK("x"))
	require.Error(t, err)

	_, err = NewResponseGateway(primaryOK("x"), nil)
	require.Error(t, err)
}

func TestGenerateResponse_EmptyHistory(t *testing.T) {
	primary, fallback := primaryOK("x"), fallbackOK("y")
	g := newTestGateway(t, primary, fallback)

	_, err := g.GenerateResponse(context.Background(), GenerateInput{UseCache: true})
	gwErr := expectGatewayError(t, err, ErrorInvalidInput)
	require.Equal(t, "empty_history", gwErr.Reason)
	require.Zero(t, primary.callCount())
	require.Zero(t, fallback.callCount())
}

func TestGenerateResponse_PrimarySuccessWritesCache(t *testing.T) {
	store := &countingStore{Memory: cache.NewMemory()}
	primary, fallback := primaryOK("Hello!"), fallbackOK("unused")
	g := newTestGateway(t, primary, fallback, WithCache(store, time.Hour))

	out, err := g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("Hi"), UseCache: true})
	require.NoError(t, err)
	require.Equal(t, "Hello!", out.Text)
	require.Equal(t, domain.ProviderPrimary, out.Metadata.Provider)
	require.False(t, out.CacheHit)
	require.Equal(t, 1, store.sets)
	require.Zero(t, fallback.callCount())
}

func TestGenerateResponse_PassesPreparedMessagesToProviders(t *testing.T) {
	primary, fallback := failing(domain.ProviderPrimary, "down"), fallbackOK("ok")
	g := newTestGateway(t, primary, fallback, WithPersonaPrompt("custom persona"))

	history := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "caller system"},
		{Role: domain.RoleUser, Content: "q"},
	}
	_, err := g.GenerateResponse(context.Background(), GenerateInput{History: history})
	require.NoError(t, err)

	want := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "custom persona"},
		{Role: domain.RoleUser, Content: "q"},
	}
	require.Equal(t, want, primary.captured)
	require.Equal(t, want, fallback.captured)
	require.Equal(t, "caller system", history[0].Content)
}

func TestGenerateResponse_CacheIdempotence(t *testing.T) {
	store := &countingStore{Memory: cache.NewMemory()}
	primary, fallback := primaryOK("Answer"), fallbackOK("unused")
	g := newTestGateway(t, primary, fallback, WithCache(store, time.Hour))
	in := GenerateInput{History: userTurn("Tell me about yourself"), UseCache: true}

	first, err := g.GenerateResponse(context.Background(), in)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := g.GenerateResponse(context.Background(), in)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Text, second.Text)
	require.Equal(t, first.Metadata, second.Metadata)
	require.Equal(t, 1, primary.callCount(), "no provider call on cache hit")
	require.Equal(t, 1, store.sets, "no write-through on cache hit")
}

func TestGenerateResponse_CacheKeyUsesOnlyLastMessage(t *testing.T) {
	store := cache.NewMemory()
	primary, fallback := primaryOK("Okay!"), fallbackOK("unused")
	g := newTestGateway(t, primary, fallback, WithCache(store, time.Hour))

	_, err := g.GenerateResponse(context.Background(), GenerateInput{
		History: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "Do you like Go?"},
			{Role: domain.RoleAssistant, Content: "Yes."},
			{Role: domain.RoleUser, Content: "okay"},
		},
		UseCache: true,
	})
	require.NoError(t, err)

	out, err := g.GenerateResponse(context.Background(), GenerateInput{
		History: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "Completely different conversation"},
			{Role: domain.RoleAssistant, Content: "Sure."},
			{Role: domain.RoleUser, Content: "okay"},
		},
		UseCache: true,
	})
	require.NoError(t, err)
	require.True(t, out.CacheHit)
	require.Equal(t, "Okay!", out.Text)
	require.Equal(t, 1, primary.callCount())
}

func TestGenerateResponse_UseCacheFalseBypassesCache(t *testing.T) {
	store := &countingStore{Memory: cache.NewMemory()}
	primary, fallback := primaryOK("fresh"), fallbackOK("unused")
	g := newTestGateway(t, primary, fallback, WithCache(store, time.Hour))
	in := GenerateInput{History: userTurn("hi"), UseCache: false}

	_, err := g.GenerateResponse(context.Background(), in)
	require.NoError(t, err)
	out, err := g.GenerateResponse(context.Background(), in)
	require.NoError(t, err)
	require.False(t, out.CacheHit)
	require.Equal(t, 2, primary.callCount())
	require.Zero(t, store.gets)
	require.Zero(t, store.sets)
}

func TestGenerateResponse_NoCacheConfigured(t *testing.T) {
	primary := primaryOK("fresh")
	g := newTestGateway(t, primary, fallbackOK("unused"))
	in := GenerateInput{History: userTurn("hi"), UseCache: true}

	_, err := g.GenerateResponse(context.Background(), in)
	require.NoError(t, err)
	out, err := g.GenerateResponse(context.Background(), in)
	require.NoError(t, err)
	require.False(t, out.CacheHit)
	require.Equal(t, 2, primary.callCount())
}

func TestGenerateResponse_FallbackInvokedOnceOnPrimaryFailure(t *testing.T) {
	store := &countingStore{Memory: cache.NewMemory()}
	primary, fallback := failing(domain.ProviderPrimary, "all shapes failed"), fallbackOK("Rapid prototyping.")
	g := newTestGateway(t, primary, fallback, WithCache(store, time.Hour))

	out, err := g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("What's your superpower?"), UseCache: true})
	require.NoError(t, err)
	require.Equal(t, "Rapid prototyping.", out.Text)
	require.Equal(t, domain.ProviderFallback, out.Metadata.Provider)
	require.False(t, out.CacheHit)
	require.Equal(t, 1, fallback.callCount())
	require.Equal(t, 1, store.sets)

	again, err := g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("What's your superpower?"), UseCache: true})
	require.NoError(t, err)
	require.True(t, again.CacheHit)
	require.Equal(t, "Rapid prototyping.", again.Text)
	require.Equal(t, domain.ProviderFallback, again.Metadata.Provider)
	require.Equal(t, 1, primary.callCount())
	require.Equal(t, 1, fallback.callCount())
}

func TestGenerateResponse_AllProvidersFailed(t *testing.T) {
	store := &countingStore{Memory: cache.NewMemory()}
	primaryErr := &domain.ProviderUnavailableError{Provider: domain.ProviderPrimary, Attempts: 25, Err: errors.New("503")}
	fallbackErr := &domain.ProviderUnavailableError{Provider: domain.ProviderFallback, Attempts: 1, Err: errors.New("429")}
	primary := &fakeProvider{result: invokeResult{err: primaryErr}}
	fallback := &fakeProvider{result: invokeResult{err: fallbackErr}}
	g := newTestGateway(t, primary, fallback, WithCache(store, time.Hour))

	_, err := g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("hi"), UseCache: true})
	gwErr := expectGatewayError(t, err, ErrorAllProvidersFailed)
	require.Same(t, primaryErr, gwErr.Primary)
	require.Same(t, fallbackErr, gwErr.Fallback)
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.Contains(t, err.Error(), "503")
	require.Contains(t, err.Error(), "429")
	require.Zero(t, store.sets, "no cache write on total failure")
	require.Zero(t, store.Len())
}

func TestGenerateResponse_CacheOutageIsAMiss(t *testing.T) {
	store := &brokenStore{}
	primary := primaryOK("still works")
	g := newTestGateway(t, primary, fallbackOK("unused"), WithCache(store, time.Hour))

	out, err := g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("hi"), UseCache: true})
	require.NoError(t, err)
	require.Equal(t, "still works", out.Text)
	require.False(t, out.CacheHit)
	require.Equal(t, 1, primary.callCount())
	require.Equal(t, 1, store.sets)
}

func TestGenerateResponse_UsesConfiguredTTL(t *testing.T) {
	rec := &ttlRecorder{CacheStore: cache.NewMemory()}
	g := newTestGateway(t, primaryOK("x"), fallbackOK("y"), WithCache(rec, 10*time.Minute))

	_, err := g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("hi"), UseCache: true})
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, rec.lastTTL)
}

type ttlRecorder struct {
	CacheStore
	lastTTL time.Duration
}

func (r *ttlRecorder) Set(ctx context.Context, key string, entry domain.CacheEntry, ttl time.Duration) error {
	r.lastTTL = ttl
	return r.CacheStore.Set(ctx, key, entry, ttl)
}

func TestGenerateResponse_DefaultTTL(t *testing.T) {
	g := newTestGateway(t, primaryOK("x"), fallbackOK("y"), WithCache(cache.NewMemory(), 0))
	require.Equal(t, time.Hour, g.ttl)
}

func TestGenerateResponse_ConcurrentCallsShareCache(t *testing.T) {
	store := cache.NewMemory()
	primary := primaryOK("shared")
	g := newTestGateway(t, primary, fallbackOK("unused"), WithCache(store, time.Hour))

	var wg sync.WaitGroup
	outs := make([]GenerateOutput, 16)
	errs := make([]error, 16)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = g.GenerateResponse(context.Background(), GenerateInput{History: userTurn("same question"), UseCache: true})
		}(i)
	}
	wg.Wait()
	for i := range outs {
		require.NoError(t, errs[i])
		require.Equal(t, "shared", outs[i].Text)
	}
	require.GreaterOrEqual(t, primary.callCount(), 1)
	require.Equal(t, 1, store.Len())
}
