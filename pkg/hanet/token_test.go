package hanet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, calls *int64, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenCachedValueSkipsNetwork(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok-a","expires_in":3600}`)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	first, err := tc.Token(context.Background())
	require.NoError(t, err)
	second, err := tc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-a", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "cached token must not trigger a network call")
}

func TestTokenRefreshesWhenInsideMargin(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		// 61s minus the 60s storage buffer leaves the token inside the 10s
		// read margin immediately.
		fmt.Fprint(w, `{"access_token":"tok-b","expires_in":61}`)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	_, err := tc.Token(context.Background())
	require.NoError(t, err)
	_, err = tc.Token(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestTokenConcurrentExpirationsSingleRefresh(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"tok-c","expires_in":3600}`)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := tc.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	for _, tok := range tokens {
		assert.Equal(t, "tok-c", tok)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "concurrent expirations must coalesce into one refresh")
}

func TestTokenFailureClearsCacheAndRetriesNextCall(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt64(&calls) == 1 {
			fmt.Fprint(w, `{"returnMessage":"invalid refresh token"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok-d","expires_in":3600}`)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	_, err := tc.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "invalid refresh token")

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-d", tok)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestTokenRefreshWithoutJSONContentType(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		// Some token endpoints ship JSON bodies without the header; the
		// decode must not depend on it.
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, `{"access_token":"tok-e","expires_in":3600}`)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-e", tok)
}

func TestTokenGarbageBodyIsAuthError(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	_, err := tc.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "undecodable")
}

func TestTokenHTTPErrorIsAuthError(t *testing.T) {
	var calls int64
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	tc := NewTokenCache(srv.URL, "id", "secret", "refresh", zerolog.Nop())

	_, err := tc.Token(context.Background())
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestTokenIncompleteCredentials(t *testing.T) {
	tc := NewTokenCache("http://localhost:1", "id", "", "refresh", zerolog.Nop())

	_, err := tc.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "incomplete")
}
