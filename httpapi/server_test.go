package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/store/memstore"
)

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]{43})`)

type harness struct {
	server *Server
	mailer *notify.Recorder
	store  *memstore.Store
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goIdentity.DefaultConfig()
	cfg.JWT.Secret = strings.Repeat("k", 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	store := memstore.New()
	mailer := notify.NewRecorder()
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	opts := DefaultOptions()
	opts.SecureCookies = false
	srv, err := New(engine, opts, nil)
	require.NoError(t, err)

	return &harness{server: srv, mailer: mailer, store: store, redis: mr}
}

func (h *harness) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookieName)
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func signup(t *testing.T, h *harness, email string) (string, *http.Cookie) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/auth/signup", signupRequest{
		Name:     "Ada",
		Email:    email,
		Password: "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cookie := findCookie(t, rec)
	var res authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.NotEmpty(t, res.AccessToken)
	return res.AccessToken, cookie
}

func TestSignupSetsRefreshCookie(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/auth/signup", signupRequest{
		Name:     "Ada",
		Email:    "Ada@Example.com",
		Password: "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	c := findCookie(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "/auth", c.Path)
	assert.Equal(t, int((30 * 24 * 60 * 60)), c.MaxAge)

	var res authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.NotNil(t, res.User)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, "USD", res.User.CurrencyCode)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	signup(t, h, "ada@example.com")

	rec := h.do(t, http.MethodPost, "/auth/signup", signupRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct-horse-battery",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Kind)

	rec = h.do(t, http.MethodPost, "/auth/signup", signupRequest{
		Name: "Ada", Email: "not-an-email", Password: "correct-horse-battery",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Kind)

	rec = h.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ada@example.com", Password: "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, rec).Message)

	rec = h.do(t, http.MethodPost, "/auth/verify-email", tokenRequest{Token: strings.Repeat("A", 43)}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired token", decodeError(t, rec).Message)
}

func TestUnknownFieldsRejected(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.co", "password": "x", "admin": "1"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMeRequiresBearer(t *testing.T) {
	h := newHarness(t)
	access, _ := signup(t, h, "ada@example.com")

	rec := h.do(t, http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/auth/me", nil, bearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/auth/me", nil, bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User goIdentity.UserProjection `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ada@example.com", body.User.Email)
}

func TestRefreshRotatesCookie(t *testing.T) {
	h := newHarness(t)
	_, cookie := signup(t, h, "ada@example.com")

	rec := h.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := findCookie(t, rec)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	// the old token was consumed by the rotation
	rec = h.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, -1, findCookie(t, rec).MaxAge)

	rec = h.do(t, http.MethodPost, "/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	access, cookie := signup(t, h, "ada@example.com")

	rec := h.do(t, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		bearer(access)(r)
		r.AddCookie(cookie)
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, -1, findCookie(t, rec).MaxAge)

	rec = h.do(t, http.MethodPost, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// repeated logout is still a success
	rec = h.do(t, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		bearer(access)(r)
		r.AddCookie(cookie)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVerifyEmailFlow(t *testing.T) {
	h := newHarness(t)
	access, _ := signup(t, h, "ada@example.com")

	msgs := h.mailer.To("ada@example.com")
	require.Len(t, msgs, 1)
	m := tokenPattern.FindStringSubmatch(msgs[0].Body)
	require.Len(t, m, 2)

	rec := h.do(t, http.MethodPost, "/auth/verify-email", tokenRequest{Token: m[1]}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/resend-verification", nil, bearer(access))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Kind)
}

func TestForgotPasswordIsAlwaysAccepted(t *testing.T) {
	h := newHarness(t)
	signup(t, h, "ada@example.com")

	rec := h.do(t, http.MethodPost, "/auth/forgot-password", emailRequest{Email: "ada@example.com"}, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	known := rec.Body.String()

	rec = h.do(t, http.MethodPost, "/auth/forgot-password", emailRequest{Email: "nobody@example.com"}, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, known, rec.Body.String())
	assert.Empty(t, h.mailer.To("nobody@example.com"))

	msgs := h.mailer.To("ada@example.com")
	require.Len(t, msgs, 2)
	m := tokenPattern.FindStringSubmatch(msgs[1].Body)
	require.Len(t, m, 2)

	rec = h.do(t, http.MethodPost, "/auth/reset-password", resetRequest{Token: m[1], NewPassword: "another-good-one"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ada@example.com", Password: "another-good-one"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsSessionStoreOutage(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.redis.Close()
	rec = h.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessionStore":"down"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	signup(t, h, "ada@example.com")

	rec := h.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goidentity_signup_success_total 1")
}

func TestStatusFor(t *testing.T) {
	cases := map[goIdentity.ErrorKind]int{
		goIdentity.KindValidation:   http.StatusUnprocessableEntity,
		goIdentity.KindBadRequest:   http.StatusBadRequest,
		goIdentity.KindUnauthorized: http.StatusUnauthorized,
		goIdentity.KindConflict:     http.StatusConflict,
		goIdentity.KindTransient:    http.StatusServiceUnavailable,
		goIdentity.KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}
