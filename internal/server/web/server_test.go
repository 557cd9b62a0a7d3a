package web

import (
	"context"
	"errors"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_CreatesUserCartAndMail(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.post("/signup", url.Values{
		"email":           {"a@b.com"},
		"password":        {"secret1"},
		"confirmPassword": {"secret1"},
	})

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Equal(t, 1, tc.store.UserCount())
	assert.Equal(t, 1, tc.store.CartCount())

	msgs := tc.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@b.com", msgs[0].To)
	assert.Equal(t, "Signup succeeded!", msgs[0].Subject)
}

func TestSignup_DuplicateEmailFlashesOnce(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")

	w := tc.post("/signup", url.Values{
		"email":           {"a@b.com"},
		"password":        {"other99"},
		"confirmPassword": {"other99"},
	})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/signup", w.Header().Get("Location"))
	assert.Equal(t, 1, tc.store.UserCount())

	page := tc.get("/signup")
	assert.Contains(t, page.Body.String(), html.EscapeString(msgEmailTaken))

	again := tc.get("/signup")
	assert.NotContains(t, again.Body.String(), html.EscapeString(msgEmailTaken))
}

func TestSignup_ValidationFailure(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.post("/signup", url.Values{
		"email":           {"a@b.com"},
		"password":        {"secret1"},
		"confirmPassword": {"secret2"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Passwords have to match!")
	assert.Contains(t, body, `value="a@b.com"`)
	assert.NotContains(t, body, "secret1")
	assert.Equal(t, 0, tc.store.UserCount())
	assert.Empty(t, tc.mail.messages())
}

func TestSignup_PasswordTooLong(t *testing.T) {
	tc := newTestClient(t, nil)
	long := strings.Repeat("a", 73)

	w := tc.post("/signup", url.Values{
		"email":           {"a@b.com"},
		"password":        {long},
		"confirmPassword": {long},
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no longer than 72 bytes")
	assert.Equal(t, 0, tc.store.UserCount())
	assert.Empty(t, tc.mail.messages())
}

func TestLogin_WrongPasswordTwiceIsIdentical(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")

	first := tc.login("a@b.com", "nope")
	second := tc.login("a@b.com", "nope")

	require.Equal(t, http.StatusUnprocessableEntity, first.Code)
	require.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.Contains(t, first.Body.String(), msgInvalidLogin)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")

	wrong := tc.login("a@b.com", "nope")
	unknown := tc.login("x@b.com", "nope")

	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Contains(t, unknown.Body.String(), msgInvalidLogin)
}

func TestLogin_InvalidEmail(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.login("not-an-email", "secret1")

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter a valid email.")
}

func TestLogin_RekeysSession(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")

	before := tc.session()
	require.NotNil(t, before)
	require.False(t, before.Data.IsLoggedIn)

	w := tc.login("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	after := tc.session()
	require.NotNil(t, after)
	assert.NotEqual(t, before.ID, after.ID)
	assert.NotEqual(t, before.Data.CSRFToken, after.Data.CSRFToken)
	assert.True(t, after.Data.IsLoggedIn)
	assert.Equal(t, tc.userID("a@b.com"), after.Data.UserID)

	_, err := tc.store.Sessions(nil).Find(context.Background(), before.ID, time.Now())
	assert.Error(t, err, "anonymous session must be gone")

	cart := tc.get("/cart")
	require.Equal(t, http.StatusOK, cart.Code)
	assert.Contains(t, cart.Body.String(), "Your Cart")
}

func TestSessionCookieAttributes(t *testing.T) {
	tc := newTestClient(t, nil)

	tc.get("/login")

	require.NotNil(t, tc.cookie)
	assert.True(t, tc.cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, tc.cookie.SameSite)
	assert.False(t, tc.cookie.Secure)
	assert.Equal(t, int(tc.cfg.SessionTTL.Seconds()), tc.cookie.MaxAge)
}

func TestSession_ActivityKeepsLoginAlive(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the session TTL")
	}
	tc := newTestClientWith(t, nil, func(cfg *config.Config) { cfg.SessionTTL = 2 * time.Second })
	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code)

	for i := 0; i < 4; i++ {
		time.Sleep(900 * time.Millisecond)
		w := tc.get("/cart")
		require.Equal(t, http.StatusOK, w.Code, "request %d after %v of activity", i+1, time.Duration(i+1)*900*time.Millisecond)
	}

	time.Sleep(2100 * time.Millisecond)
	w := tc.get("/cart")
	require.Equal(t, http.StatusFound, w.Code, "idle past the TTL")
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestLogout_ThenCartRedirectsToLogin(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code)

	stale := tc.cookie

	w := tc.post("/logout", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Nil(t, tc.cookie)

	cart := tc.get("/cart")
	require.Equal(t, http.StatusFound, cart.Code)
	assert.Equal(t, "/login", cart.Header().Get("Location"))

	tc.cookie = stale
	replay := tc.get("/cart")
	require.Equal(t, http.StatusFound, replay.Code)
	assert.Equal(t, "/login", replay.Header().Get("Location"))
}

func TestCart_AnonymousRedirects(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.get("/cart")

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestDeletedUserBecomesAnonymous(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code)

	tc.store.DeleteUser(tc.userID("a@b.com"))

	w := tc.get("/cart")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestCSRF(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.get("/login")

	t.Run("missing token", func(t *testing.T) {
		w := tc.postRaw("/login", url.Values{"email": {"a@b.com"}, "password": {"x"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		w := tc.postRaw("/login", url.Values{"email": {"a@b.com"}, "password": {"x"}, "_csrf": {"forged"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("header token", func(t *testing.T) {
		req := newFormRequest("/login", url.Values{"email": {"a@b.com"}, "password": {"x"}})
		req.Header.Set("X-CSRF-Token", tc.csrfToken())
		w := tc.do(req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("no session", func(t *testing.T) {
		tc.cookie = nil
		w := tc.postRaw("/login", url.Values{"email": {"a@b.com"}, "password": {"x"}, "_csrf": {"anything"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestLogout_WithoutSessionRedirectsHome(t *testing.T) {
	t.Run("no cookie", func(t *testing.T) {
		tc := newTestClient(t, nil)

		w := tc.postRaw("/logout", nil)

		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
		assert.Equal(t, 0, tc.store.SessionCount())
	})

	t.Run("expired cookie", func(t *testing.T) {
		tc := newTestClient(t, nil)
		tc.signup("a@b.com", "secret1")
		require.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code)
		stale := tc.cookie

		require.Equal(t, http.StatusFound, tc.post("/logout", nil).Code)

		tc.cookie = stale
		w := tc.postRaw("/logout", url.Values{"_csrf": {"stale"}})
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	})

	t.Run("session with bad token", func(t *testing.T) {
		tc := newTestClient(t, nil)
		tc.signup("a@b.com", "secret1")
		require.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code)

		w := tc.postRaw("/logout", url.Values{"_csrf": {"forged"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, http.StatusOK, tc.get("/cart").Code, "still logged in")
	})
}

func TestPasswordReset_FullFlow(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")

	w := tc.post("/reset", url.Values{"email": {"a@b.com"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	token := tc.lastResetToken()
	assert.Contains(t, tc.mail.messages()[1].HTML, "http://shop.test/reset/"+token)

	form := tc.get("/reset/" + token)
	require.Equal(t, http.StatusOK, form.Code)
	assert.Contains(t, form.Body.String(), `value="`+token+`"`)

	submit := url.Values{
		"userId":        {formatID(tc.userID("a@b.com"))},
		"passwordToken": {token},
		"password":      {"newpass1"},
	}
	done := tc.post("/new-password", submit)
	require.Equal(t, http.StatusFound, done.Code)
	assert.Equal(t, "/login", done.Header().Get("Location"))

	assert.Equal(t, http.StatusUnprocessableEntity, tc.login("a@b.com", "secret1").Code)
	assert.Equal(t, http.StatusFound, tc.login("a@b.com", "newpass1").Code)

	replay := tc.post("/new-password", submit)
	require.Equal(t, http.StatusFound, replay.Code)
	assert.Equal(t, "/reset", replay.Header().Get("Location"))
	assert.Contains(t, tc.get("/reset").Body.String(), msgBadResetLink)
}

func TestPasswordReset_UnknownEmail(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.post("/reset", url.Values{"email": {"ghost@b.com"}})

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/reset", w.Header().Get("Location"))
	assert.Contains(t, tc.get("/reset").Body.String(), msgUnknownEmail)
	assert.Empty(t, tc.mail.messages())
}

func TestPasswordReset_ExpiredLink(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.post("/reset", url.Values{"email": {"a@b.com"}}).Code)
	token := tc.lastResetToken()

	err := tc.store.Users(nil).SetResetToken(context.Background(), tc.userID("a@b.com"), token, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	w := tc.get("/reset/" + token)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/reset", w.Header().Get("Location"))
	assert.Contains(t, tc.get("/reset").Body.String(), msgBadResetLink)
}

func TestPasswordReset_UnknownLink(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.get("/reset/deadbeef")

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/reset", w.Header().Get("Location"))
}

func TestNewPassword_TooShort(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.post("/reset", url.Values{"email": {"a@b.com"}}).Code)
	token := tc.lastResetToken()

	w := tc.post("/new-password", url.Values{
		"userId":        {formatID(tc.userID("a@b.com"))},
		"passwordToken": {token},
		"password":      {"abc"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "at least 5 characters")
	assert.Contains(t, w.Body.String(), `value="`+token+`"`)
	assert.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code, "old password still works")
}

func TestNewPassword_TooLong(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.post("/reset", url.Values{"email": {"a@b.com"}}).Code)
	token := tc.lastResetToken()

	w := tc.post("/new-password", url.Values{
		"userId":        {formatID(tc.userID("a@b.com"))},
		"passwordToken": {token},
		"password":      {strings.Repeat("a", 73)},
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no longer than 72 bytes")
	assert.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code, "old password still works")
}

func TestNewPassword_ForeignUserID(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.signup("a@b.com", "secret1")
	tc.signup("c@d.com", "secret2")
	require.Equal(t, http.StatusFound, tc.post("/reset", url.Values{"email": {"a@b.com"}}).Code)

	w := tc.post("/new-password", url.Values{
		"userId":        {formatID(tc.userID("c@d.com"))},
		"passwordToken": {tc.lastResetToken()},
		"password":      {"hijack1"},
	})

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/reset", w.Header().Get("Location"))
}

func TestThrottle_Login(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tc := newTestClient(t, ratelimit.NewRedisLimiter(rdb, "test", 2, time.Minute))

	assert.Equal(t, http.StatusUnprocessableEntity, tc.login("a@b.com", "x").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, tc.login("a@b.com", "x").Code)

	w := tc.login("a@b.com", "x")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), msgTooManyAttempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(tc.metrics.RateLimited.WithLabelValues("login")))

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusUnprocessableEntity, tc.login("a@b.com", "x").Code)
}

func TestThrottle_FailsOpen(t *testing.T) {
	tc := newTestClient(t, errLimiter{err: errors.New("redis down")})

	w := tc.login("a@b.com", "x")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthz(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.get("/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Nil(t, tc.cookie, "health checks do not start sessions")
}

func TestMetricsEndpoint(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.get("/login")

	w := tc.get("/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storefront_http_requests_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(tc.metrics.HTTPRequests.WithLabelValues("GET", "/login", "200")))
}

func TestNotFound(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.get("/nowhere")

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Page Not Found!")
}

func TestPanicRendersErrorPage(t *testing.T) {
	tc := newTestClient(t, nil)
	tc.server.router.GET("/boom", func(*gin.Context) { panic("kaput") })

	w := tc.get("/boom")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Error!")
}

func TestRequestIDHeader(t *testing.T) {
	tc := newTestClient(t, nil)

	w := tc.get("/healthz")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	assert.Equal(t, "fixed-id", tc.do(req).Header().Get("X-Request-ID"))
}

func TestIndexShowsAuthState(t *testing.T) {
	tc := newTestClient(t, nil)

	anon := tc.get("/").Body.String()
	assert.Contains(t, anon, `href="/login"`)
	assert.NotContains(t, anon, `action="/logout"`)

	tc.signup("a@b.com", "secret1")
	require.Equal(t, http.StatusFound, tc.login("a@b.com", "secret1").Code)

	authed := tc.get("/").Body.String()
	assert.Contains(t, authed, `action="/logout"`)
	assert.True(t, strings.Contains(authed, "a@b.com"))
}
