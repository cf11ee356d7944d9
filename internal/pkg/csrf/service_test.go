package csrf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	svc := NewService(NewRedisStore(client), Config{MaxAge: time.Hour}, nil, WithClock(clock.Now))
	return svc, mr, clock
}

func TestIssueProducesHighEntropyTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)
	b, err := svc.Issue(ctx, "sid", FormScope("profile"))
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	_, err = svc.Issue(ctx, "", GlobalScope)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = svc.Issue(ctx, "sid", FormScope(""))
	assert.Error(t, err)
}

func TestGlobalTokenIsReusable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)

	assert.True(t, svc.Validate(ctx, "sid", tok, GlobalScope))
	assert.True(t, svc.Validate(ctx, "sid", tok, GlobalScope))
	assert.False(t, svc.Validate(ctx, "other-sid", tok, GlobalScope), "tokens are bound to their session")
}

func TestValidateWithoutIssuedTokenFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.Validate(ctx, "sid", "deadbeef", GlobalScope))
	assert.False(t, svc.Validate(ctx, "sid", "deadbeef", FormScope("login")))
	assert.False(t, svc.Validate(ctx, "sid", "", GlobalScope))
}

func TestFormTokenIsSingleUse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	scope := FormScope("equipment")

	tok, err := svc.Issue(ctx, "sid", scope)
	require.NoError(t, err)

	assert.True(t, svc.Validate(ctx, "sid", tok, scope))
	assert.False(t, svc.Validate(ctx, "sid", tok, scope))
}

func TestFormTokenNotConsumedByMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	scope := FormScope("equipment")

	tok, err := svc.Issue(ctx, "sid", scope)
	require.NoError(t, err)

	assert.False(t, svc.Validate(ctx, "sid", strings.Repeat("0", 64), scope))
	assert.False(t, svc.Validate(ctx, "sid", tok, FormScope("other")))
	assert.True(t, svc.Validate(ctx, "sid", tok, scope))
}

func TestReissueInvalidatesPreviousToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)

	assert.False(t, svc.Validate(ctx, "sid", first, GlobalScope))
	assert.True(t, svc.Validate(ctx, "sid", second, GlobalScope))
}

func TestExpiredTokenFailsAndIsPurged(t *testing.T) {
	svc, mr, clock := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.True(t, svc.Validate(ctx, "sid", tok, GlobalScope), "a token exactly max-age old is still valid")

	clock.Advance(time.Second)
	assert.False(t, svc.Validate(ctx, "sid", tok, GlobalScope))
	assert.Empty(t, mr.HGet("csrf:sid", string(GlobalScope)), "expired token should be purged")
}

func TestValidateFailsClosedOnStoreError(t *testing.T) {
	svc, mr, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)

	mr.SetError("LOADING redis is loading")
	assert.False(t, svc.Validate(ctx, "sid", tok, GlobalScope))

	mr.SetError("")
	assert.True(t, svc.Validate(ctx, "sid", tok, GlobalScope))
}

func TestCleanExpiredIsIdempotent(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "sid", FormScope("a"))
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "sid", FormScope("b"))
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	live, err := svc.Issue(ctx, "sid", GlobalScope)
	require.NoError(t, err)
	clock.Advance(40 * time.Minute)

	n, err := svc.CleanExpired(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.CleanExpired(ctx, "sid")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.True(t, svc.Validate(ctx, "sid", live, GlobalScope))
}

func TestIssuePrunesAgedOutTokens(t *testing.T) {
	svc, mr, clock := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.Issue(ctx, "sid", FormScope(name))
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Hour)

	tok, err := svc.Issue(ctx, "sid", FormScope("d"))
	require.NoError(t, err)

	fields, err := mr.HKeys("csrf:sid")
	require.NoError(t, err)
	assert.Equal(t, []string{string(FormScope("d"))}, fields)
	assert.Equal(t, time.Hour, mr.TTL("csrf:sid"))
	assert.True(t, svc.Validate(ctx, "sid", tok, FormScope("d")))
}

func TestFieldReusesLiveGlobalToken(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	f1, err := svc.Field(ctx, "sid")
	require.NoError(t, err)
	f2, err := svc.Field(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, f1.Token, f2.Token)
	assert.Equal(t, "X-CSRF-Token", f1.HeaderName)
	assert.Equal(t, "csrf_token", f1.FieldName)

	clock.Advance(2 * time.Hour)
	f3, err := svc.Field(ctx, "sid")
	require.NoError(t, err)
	assert.NotEqual(t, f1.Token, f3.Token)
}

func TestMoveAndForget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "old", GlobalScope)
	require.NoError(t, err)

	require.NoError(t, svc.Move(ctx, "old", "new"))
	assert.False(t, svc.Validate(ctx, "old", tok, GlobalScope))
	assert.True(t, svc.Validate(ctx, "new", tok, GlobalScope))

	require.NoError(t, svc.Move(ctx, "missing", "elsewhere"))

	require.NoError(t, svc.Forget(ctx, "new"))
	assert.False(t, svc.Validate(ctx, "new", tok, GlobalScope))
}

func TestRequiresValidation(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		assert.True(t, RequiresValidation(m), m)
	}
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		assert.False(t, RequiresValidation(m), m)
	}
}

func TestTokenRoundTripThroughCarriers(t *testing.T) {
	carriers := map[string]func(tok string) *http.Request{
		"form body": func(tok string) *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(url.Values{"csrf_token": {tok}}.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return r
		},
		"header": func(tok string) *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/x", nil)
			r.Header.Set("X-CSRF-Token", tok)
			return r
		},
		"query": func(tok string) *http.Request {
			return httptest.NewRequest(http.MethodDelete, "/x?csrf_token="+tok, nil)
		},
		"json body": func(tok string) *http.Request {
			r := httptest.NewRequest(http.MethodPatch, "/x", strings.NewReader(`{"csrf_token":"`+tok+`"}`))
			r.Header.Set("Content-Type", "application/json; charset=utf-8")
			return r
		},
	}

	for name, build := range carriers {
		t.Run(name, func(t *testing.T) {
			svc, _, clock := newTestService(t)
			ctx := context.Background()
			scope := FormScope("profile")
			ex := svc.Extractor()

			tok, err := svc.Issue(ctx, "sid", scope)
			require.NoError(t, err)

			assert.True(t, svc.Validate(ctx, "sid", ex.Extract(build(tok)), scope))
			assert.False(t, svc.Validate(ctx, "sid", ex.Extract(build(tok)), scope))

			tok, err = svc.Issue(ctx, "sid", scope)
			require.NoError(t, err)
			clock.Advance(time.Hour + time.Second)
			assert.False(t, svc.Validate(ctx, "sid", ex.Extract(build(tok)), scope))
		})
	}
}
