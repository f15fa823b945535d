package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uuzor/predictx/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/spot/BTC", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"asset_id":"BTC","price":"64250.12"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	price, err := c.CurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, 64250.12, price)
}

func TestCurrentPriceEscapesAssetID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/spot/BTC%2FUSD", r.URL.EscapedPath())
		w.Write([]byte(`{"asset_id":"BTC/USD","price":"1.0"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.CurrentPrice(context.Background(), "BTC/USD")
	require.NoError(t, err)
}

func TestCurrentPriceUnknownAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such asset", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.CurrentPrice(context.Background(), "DOGE2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCurrentPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.CurrentPrice(context.Background(), "BTC")
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestCurrentPriceUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.CurrentPrice(context.Background(), "BTC")
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestCurrentPriceRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"unparseable price", `{"asset_id":"BTC","price":"many"}`},
		{"zero price", `{"asset_id":"BTC","price":"0"}`},
		{"negative price", `{"asset_id":"BTC","price":"-5"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second)
			_, err := c.CurrentPrice(context.Background(), "BTC")
			require.Error(t, err)
		})
	}
}

type memCache struct {
	price  float64
	ts     time.Time
	getErr error
	sets   int
}

func (m *memCache) GetPrice(_ context.Context, _ string) (float64, time.Time, error) {
	if m.getErr != nil {
		return 0, time.Time{}, m.getErr
	}
	return m.price, m.ts, nil
}

func (m *memCache) SetPrice(_ context.Context, _ string, price float64, ts time.Time) error {
	m.price, m.ts = price, ts
	m.sets++
	return nil
}

type stubOracle struct {
	price float64
	err   error
	calls int
}

func (s *stubOracle) CurrentPrice(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestCachedReturnsFreshEntry(t *testing.T) {
	upstream := &stubOracle{price: 100}
	cache := &memCache{price: 99, ts: time.Now()}
	c := NewCached(upstream, cache, 5*time.Second, testLogger())

	price, err := c.CurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, 99.0, price)
	require.Zero(t, upstream.calls)
}

func TestCachedRefreshesStaleEntry(t *testing.T) {
	upstream := &stubOracle{price: 100}
	cache := &memCache{price: 99, ts: time.Now().Add(-time.Minute)}
	c := NewCached(upstream, cache, 5*time.Second, testLogger())

	price, err := c.CurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, 100.0, price)
	require.Equal(t, 1, upstream.calls)
	require.Equal(t, 1, cache.sets)
}

func TestCachedFallsThroughOnCacheMiss(t *testing.T) {
	upstream := &stubOracle{price: 100}
	cache := &memCache{getErr: domain.ErrNotFound}
	c := NewCached(upstream, cache, 5*time.Second, testLogger())

	price, err := c.CurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, 100.0, price)
}

func TestCachedUpstreamFailurePropagates(t *testing.T) {
	upstream := &stubOracle{err: errors.New("503")}
	cache := &memCache{getErr: domain.ErrNotFound}
	c := NewCached(upstream, cache, 5*time.Second, testLogger())

	_, err := c.CurrentPrice(context.Background(), "BTC")
	require.Error(t, err)
}
