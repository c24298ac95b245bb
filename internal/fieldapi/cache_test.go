package fieldapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int
	def   json.RawMessage
	err   error
}

func (f *countingFetcher) GetFormDefinition(_ context.Context, _ int64) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.def, nil
}

func TestFormCacheFetchesOnceWithinTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	fetcher := &countingFetcher{def: json.RawMessage(`{
		"choices": {"location_list": [{"name": "STATUS_RECEIVED", "label": {"English": "Distribution Point"}}]}
	}`)}
	cache := NewFormCache(client, fetcher, time.Minute)
	ctx := context.Background()

	def, err := cache.Definition(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Distribution Point", ResolveScanLabel(def, "STATUS_RECEIVED"))
	require.Equal(t, 1, fetcher.calls)

	_, err = cache.Definition(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)
}

func TestFormCacheRefetchesAfterExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	fetcher := &countingFetcher{def: json.RawMessage(`{"choices": {}}`)}
	cache := NewFormCache(client, fetcher, time.Second)
	ctx := context.Background()

	_, err := cache.Definition(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = cache.Definition(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.calls)
}

func TestFormCachePropagatesClientError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	fetcher := &countingFetcher{err: &ClientError{StatusCode: 404, Message: "no such form"}}
	cache := NewFormCache(client, fetcher, time.Minute)

	_, err := cache.Definition(context.Background(), 9)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 404, ce.StatusCode)
}
