package web

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/ratelimit"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/memory"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

const testSecret = "test-secret"

type fakeNotifier struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (n *fakeNotifier) Dispatch(_ context.Context, msg mailer.Message) <-chan error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}

func (n *fakeNotifier) messages() []mailer.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]mailer.Message(nil), n.sent...)
}

type errLimiter struct{ err error }

func (l errLimiter) Allow(context.Context, string) (bool, error) { return false, l.err }

// testClient drives the server through httptest and carries the session
// cookie between requests the way a browser would.
type testClient struct {
	t       *testing.T
	cfg     *config.Config
	store   *memory.Manager
	mail    *fakeNotifier
	metrics *metrics.Metrics
	server  *Server
	cookie  *http.Cookie
}

func newTestClient(t *testing.T, limiter ratelimit.Limiter) *testClient {
	t.Helper()
	return newTestClientWith(t, limiter, nil)
}

// newTestClientWith lets tweak adjust the configuration before the server
// is built.
func newTestClientWith(t *testing.T, limiter ratelimit.Limiter, tweak func(*config.Config)) *testClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Transactions need a real *sql.DB; the in-memory repositories ignore it.
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BaseURL = "http://shop.test"
	cfg.SecretKey = testSecret
	if tweak != nil {
		tweak(cfg)
	}

	store := memory.NewManager()
	mail := &fakeNotifier{}
	tokens := auth.NewHexTokenGenerator()
	as := services.NewAuthService(db, store, cfg, auth.NewBcryptHasherWithCost(bcrypt.MinCost), tokens, mail)
	ss := services.NewSessionService(db, store, cfg, tokens)
	m := metrics.New()

	return &testClient{
		t:       t,
		cfg:     cfg,
		store:   store,
		mail:    mail,
		metrics: m,
		server:  NewServer(cfg, as, ss, limiter, m, logging.Discard()),
	}
}

func (tc *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	tc.t.Helper()
	req.RemoteAddr = "192.0.2.10:4242"
	if tc.cookie != nil {
		req.AddCookie(tc.cookie)
	}

	w := httptest.NewRecorder()
	tc.server.Handler().ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name != cookieName {
			continue
		}
		if c.MaxAge < 0 {
			tc.cookie = nil
		} else {
			tc.cookie = c
		}
	}
	return w
}

func (tc *testClient) get(path string) *httptest.ResponseRecorder {
	tc.t.Helper()
	return tc.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func newFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// postRaw sends form exactly as given.
func (tc *testClient) postRaw(path string, form url.Values) *httptest.ResponseRecorder {
	tc.t.Helper()
	return tc.do(newFormRequest(path, form))
}

// post adds the session's CSRF token to form.
func (tc *testClient) post(path string, form url.Values) *httptest.ResponseRecorder {
	tc.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("_csrf", tc.csrfToken())
	return tc.postRaw(path, form)
}

func (tc *testClient) session() *models.Session {
	tc.t.Helper()
	if tc.cookie == nil {
		return nil
	}
	id, err := auth.ParseSessionID(tc.cookie.Value, []byte(testSecret))
	if err != nil {
		tc.t.Fatalf("parse session cookie: %v", err)
	}
	sess, err := tc.store.Sessions(nil).Find(context.Background(), id, time.Now())
	if err != nil {
		return nil
	}
	return sess
}

func (tc *testClient) csrfToken() string {
	tc.t.Helper()
	sess := tc.session()
	if sess == nil || sess.Data.CSRFToken == "" {
		tc.get("/reset")
		sess = tc.session()
	}
	if sess == nil {
		tc.t.Fatalf("no session after rendering a form")
	}
	return sess.Data.CSRFToken
}

func (tc *testClient) signup(email, password string) {
	tc.t.Helper()
	w := tc.post("/signup", url.Values{
		"email":           {email},
		"password":        {password},
		"confirmPassword": {password},
	})
	if w.Code != http.StatusFound {
		tc.t.Fatalf("signup status = %d, body: %s", w.Code, w.Body.String())
	}
}

func (tc *testClient) login(email, password string) *httptest.ResponseRecorder {
	tc.t.Helper()
	return tc.post("/login", url.Values{"email": {email}, "password": {password}})
}

func (tc *testClient) userID(email string) int64 {
	tc.t.Helper()
	u, err := tc.store.Users(nil).GetByEmail(context.Background(), email)
	if err != nil {
		tc.t.Fatalf("lookup %s: %v", email, err)
	}
	return u.ID
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var resetLinkRe = regexp.MustCompile(`/reset/([0-9a-f]+)`)

func (tc *testClient) lastResetToken() string {
	tc.t.Helper()
	msgs := tc.mail.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m := resetLinkRe.FindStringSubmatch(msgs[i].HTML); m != nil {
			return m[1]
		}
	}
	tc.t.Fatalf("no reset mail sent")
	return ""
}
