package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/config"
	"github.com/lucasfragadev/gym-dev/internal/handlers"
	"github.com/lucasfragadev/gym-dev/internal/metrics"
	"github.com/lucasfragadev/gym-dev/internal/security"
	"github.com/lucasfragadev/gym-dev/internal/server"
	"github.com/lucasfragadev/gym-dev/internal/service"
	"github.com/lucasfragadev/gym-dev/internal/testutil"
)

type testApp struct {
	t       *testing.T
	router  *gin.Engine
	clock   *testutil.Clock
	users   *testutil.Users
	objects *testutil.Objects
}

func newApp(t *testing.T, environment string, checks map[string]handlers.Pinger) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{Environment: environment, Security: testutil.SecurityConfig()}
	clock := testutil.NewClock()
	codec := testutil.Codec(t, security.WithClock(clock.Now))
	users := testutil.NewUsers("gym-1", "gym-2")
	objects := testutil.NewObjects()
	publisher := &testutil.Publisher{}
	hasher := testutil.Hasher()
	log := zerolog.Nop()
	m := metrics.New()

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Config:   cfg,
		Log:      log,
		Codec:    codec,
		Auth:     service.NewAuthService(users, hasher, codec, publisher, m, log),
		Users:    service.NewUserService(users, hasher, publisher, log),
		CheckIns: service.NewCheckInService(testutil.NewCheckIns(), users, log),
		Photos:   service.NewPhotoService(users, objects, 1<<10, log),
		Metrics:  m,
		Checks:   checks,
	})

	router := server.NewRouter(cfg, log, handlerSet, m)
	gin.SetMode(gin.TestMode)
	return &testApp{t: t, router: router, clock: clock, users: users, objects: objects}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type authData struct {
	User struct {
		ID    string `json:"id"`
		GymID string `json:"gymId"`
		Role  string `json:"role"`
		Email string `json:"email"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type request struct {
	method  string
	path    string
	body    any
	cookies []*http.Cookie
	bearer  string
}

func (a *testApp) do(r request) *httptest.ResponseRecorder {
	a.t.Helper()
	var body *bytes.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("invalid data %s: %v", env.Data, err)
		}
	}
	return env
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (a *testApp) register(name, email, gymID, role string) authData {
	a.t.Helper()
	body := map[string]any{"name": name, "email": email, "password": "password-123", "gymId": gymID}
	if role != "" {
		body["role"] = role
	}
	rec := a.do(request{method: http.MethodPost, path: "/api/v1/auth/register", body: body})
	expectStatus(a.t, rec, http.StatusCreated)
	var data authData
	decodeEnvelope(a.t, rec, &data)
	return data
}

func TestRegisterLoginAndCookies(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)

	rec := app.do(request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"name": "Ana", "email": "ana@gym.com", "password": "password-123", "gymId": "gym-1",
	}})
	expectStatus(t, rec, http.StatusCreated)
	var data authData
	if env := decodeEnvelope(t, rec, &data); env.Status != "success" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if data.User.Role != "MEMBER" || data.User.GymID != "gym-1" || data.AccessToken == "" || data.RefreshToken == "" {
		t.Fatalf("unexpected data %+v", data)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks password material: %s", rec.Body.String())
	}

	accessCookie := cookieNamed(rec, access.AccessTokenCookie)
	refreshCookie := cookieNamed(rec, access.RefreshTokenCookie)
	if accessCookie == nil || refreshCookie == nil {
		t.Fatalf("auth cookies missing")
	}
	if accessCookie.MaxAge != 900 || refreshCookie.MaxAge != 7*24*3600 {
		t.Fatalf("unexpected cookie lifetimes %d %d", accessCookie.MaxAge, refreshCookie.MaxAge)
	}
	if !accessCookie.HttpOnly || accessCookie.Secure || accessCookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected development cookie flags %+v", accessCookie)
	}

	// Same email in the same gym conflicts; another gym is fine.
	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"name": "Ana", "email": "ana@gym.com", "password": "password-123", "gymId": "gym-1",
	}})
	expectStatus(t, rec, http.StatusConflict)
	if env := decodeEnvelope(t, rec, nil); env.Status != "error" || env.Message == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	app.register("Ana", "ana@gym.com", "gym-2", "")

	unknown := app.do(request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "nobody@gym.com", "password": "password-123", "gymId": "gym-1",
	}})
	wrong := app.do(request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "ana@gym.com", "password": "password-999", "gymId": "gym-1",
	}})
	expectStatus(t, unknown, http.StatusUnauthorized)
	expectStatus(t, wrong, http.StatusUnauthorized)
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("login failures differ: %s vs %s", unknown.Body.String(), wrong.Body.String())
	}

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "ANA@gym.com", "password": "password-123", "gymId": "gym-1",
	}})
	expectStatus(t, rec, http.StatusOK)
	if cookieNamed(rec, access.AccessTokenCookie) == nil {
		t.Fatalf("login did not set cookies")
	}
}

func TestProductionCookiesAreStrict(t *testing.T) {
	app := newApp(t, "production", nil)
	rec := app.do(request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"name": "Bo", "email": "bo@gym.com", "password": "password-123", "gymId": "gym-1",
	}})
	expectStatus(t, rec, http.StatusCreated)
	for _, name := range []string{access.AccessTokenCookie, access.RefreshTokenCookie} {
		c := cookieNamed(rec, name)
		if c == nil || !c.Secure || !c.HttpOnly || c.SameSite != http.SameSiteStrictMode {
			t.Fatalf("unexpected production cookie %+v", c)
		}
	}
}

func TestExpiredAccessTokenThenRefresh(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)
	member := app.register("Cy", "cy@gym.com", "gym-1", "")

	rec := app.do(request{method: http.MethodGet, path: "/api/v1/auth/me", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusOK)

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/auth/me"})
	expectStatus(t, rec, http.StatusUnauthorized)
	if env := decodeEnvelope(t, rec, nil); env.Message != "no token supplied" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	app.clock.Advance(16 * time.Minute)
	rec = app.do(request{method: http.MethodGet, path: "/api/v1/auth/me", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusUnauthorized)
	if env := decodeEnvelope(t, rec, nil); env.Message != "invalid or expired token" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	rec = app.do(request{
		method:  http.MethodPost,
		path:    "/api/v1/auth/refresh",
		cookies: []*http.Cookie{{Name: access.RefreshTokenCookie, Value: member.RefreshToken}},
	})
	expectStatus(t, rec, http.StatusOK)
	var refreshed struct {
		AccessToken string `json:"accessToken"`
	}
	decodeEnvelope(t, rec, &refreshed)
	if refreshed.AccessToken == "" || cookieNamed(rec, access.AccessTokenCookie) == nil {
		t.Fatalf("refresh did not return a new access token")
	}
	if cookieNamed(rec, access.RefreshTokenCookie) != nil {
		t.Fatalf("refresh token must not be reissued")
	}

	rec = app.do(request{
		method:  http.MethodGet,
		path:    "/api/v1/auth/me",
		cookies: []*http.Cookie{{Name: access.AccessTokenCookie, Value: refreshed.AccessToken}},
	})
	expectStatus(t, rec, http.StatusOK)

	// Body fallback for clients without cookies.
	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refreshToken": member.RefreshToken}})
	expectStatus(t, rec, http.StatusOK)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/refresh"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refreshToken": member.AccessToken}})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestTenantAndRoleEnforcement(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)
	admin := app.register("Admin", "admin@gym.com", "gym-1", "admin")
	member := app.register("Member", "member@gym.com", "gym-1", "")
	app.register("Other", "other@gym.com", "gym-2", "")

	rec := app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-1/users", bearer: admin.AccessToken})
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	}
	decodeEnvelope(t, rec, &list)
	if len(list.Users) != 2 {
		t.Fatalf("expected only gym-1 users, got %+v", list.Users)
	}

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-2/users", bearer: admin.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-1/users", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)
	if env := decodeEnvelope(t, rec, nil); env.Message != "access denied: requires one of ADMIN, INSTRUCTOR" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	rec = app.do(request{method: http.MethodPatch, path: "/api/v1/gyms/gym-1/users/" + admin.User.ID + "/deactivate", bearer: admin.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodDelete, path: "/api/v1/gyms/gym-1/users/" + admin.User.ID, bearer: admin.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodPatch, path: "/api/v1/gyms/gym-1/users/" + member.User.ID, bearer: admin.AccessToken, body: map[string]any{
		"role": "instructor",
	}})
	expectStatus(t, rec, http.StatusOK)

	rec = app.do(request{method: http.MethodPatch, path: "/api/v1/gyms/gym-1/users/" + member.User.ID, bearer: admin.AccessToken, body: map[string]any{
		"role": "OWNER",
	}})
	expectStatus(t, rec, http.StatusBadRequest)
	if env := decodeEnvelope(t, rec, nil); !strings.Contains(env.Message, "role must be one of") {
		t.Fatalf("unexpected message %q", env.Message)
	}

	rec = app.do(request{method: http.MethodPatch, path: "/api/v1/gyms/gym-1/users/" + member.User.ID + "/deactivate", bearer: admin.AccessToken})
	expectStatus(t, rec, http.StatusOK)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "member@gym.com", "password": "password-123", "gymId": "gym-1",
	}})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/auth/me", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)
}

func TestCheckIns(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)
	instructor := app.register("Ivy", "ivy@gym.com", "gym-1", "INSTRUCTOR")
	member := app.register("Mo", "mo@gym.com", "gym-1", "")
	other := app.register("Ned", "ned@gym.com", "gym-1", "")

	rec := app.do(request{method: http.MethodPost, path: "/api/v1/gyms/gym-1/checkins", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusCreated)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/gyms/gym-1/checkins", bearer: member.AccessToken, body: map[string]string{"userId": other.User.ID}})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/gyms/gym-1/checkins", bearer: instructor.AccessToken, body: map[string]string{"userId": other.User.ID}})
	expectStatus(t, rec, http.StatusCreated)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/gyms/gym-2/checkins", bearer: instructor.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-1/checkins", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-1/checkins", bearer: instructor.AccessToken})
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		CheckIns []struct {
			UserID string `json:"userId"`
		} `json:"checkIns"`
	}
	decodeEnvelope(t, rec, &list)
	if len(list.CheckIns) != 2 {
		t.Fatalf("expected 2 check-ins, got %+v", list.CheckIns)
	}

	rec = app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-1/users/" + member.User.ID + "/checkins", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusOK)
	rec = app.do(request{method: http.MethodGet, path: "/api/v1/gyms/gym-1/users/" + other.User.ID + "/checkins", bearer: member.AccessToken})
	expectStatus(t, rec, http.StatusForbidden)
}

func TestOwnProfileAndPassword(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)
	member := app.register("Pat", "pat@gym.com", "gym-1", "")

	rec := app.do(request{method: http.MethodPatch, path: "/api/v1/users/me", bearer: member.AccessToken, body: map[string]any{
		"name": "Patricia", "birthDate": "1992-02-29",
	}})
	expectStatus(t, rec, http.StatusOK)
	var updated struct {
		User struct {
			Name      string `json:"name"`
			BirthDate string `json:"birthDate"`
		} `json:"user"`
	}
	decodeEnvelope(t, rec, &updated)
	if updated.User.Name != "Patricia" || updated.User.BirthDate != "1992-02-29" {
		t.Fatalf("unexpected profile %+v", updated.User)
	}

	rec = app.do(request{method: http.MethodPatch, path: "/api/v1/users/me", bearer: member.AccessToken, body: map[string]any{"birthDate": "29/02/1992"}})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = app.do(request{method: http.MethodPut, path: "/api/v1/users/me/password", bearer: member.AccessToken, body: map[string]any{
		"currentPassword": "nope-nope", "newPassword": "password-456",
	}})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = app.do(request{method: http.MethodPut, path: "/api/v1/users/me/password", bearer: member.AccessToken, body: map[string]any{
		"currentPassword": "password-123", "newPassword": "password-456",
	}})
	expectStatus(t, rec, http.StatusOK)

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]any{
		"email": "pat@gym.com", "password": "password-456", "gymId": "gym-1",
	}})
	expectStatus(t, rec, http.StatusOK)
}

func TestPhotoUpload(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)
	member := app.register("Quin", "quin@gym.com", "gym-1", "")

	upload := func(contentType string, payload []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = part.Write(payload)
		_ = w.Close()

		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/me/photo", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+member.AccessToken)
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, req)
		return rec
	}

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}
	rec := upload("image/png", png)
	expectStatus(t, rec, http.StatusOK)
	var data struct {
		URL string `json:"url"`
	}
	decodeEnvelope(t, rec, &data)
	if !strings.HasPrefix(data.URL, "http://objects.test/photos/gym-1/"+member.User.ID+"/") {
		t.Fatalf("unexpected url %s", data.URL)
	}

	rec = upload("image/jpeg", png)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = upload("image/png", append(png, make([]byte, 2<<10)...))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestLogoutClearsCookies(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)
	member := app.register("Rae", "rae@gym.com", "gym-1", "")

	rec := app.do(request{
		method:  http.MethodPost,
		path:    "/api/v1/auth/logout",
		cookies: []*http.Cookie{{Name: access.AccessTokenCookie, Value: member.AccessToken}},
	})
	expectStatus(t, rec, http.StatusOK)
	for _, name := range []string{access.AccessTokenCookie, access.RefreshTokenCookie} {
		c := cookieNamed(rec, name)
		if c == nil || c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not cleared: %+v", name, c)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, nil)

	rec := app.do(request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"name": "Sam", "email": "not-an-email", "password": "short", "gymId": "gym-1", "role": "owner",
	}})
	expectStatus(t, rec, http.StatusBadRequest)
	env := decodeEnvelope(t, rec, nil)
	for _, want := range []string{"email must be a valid email", "password must be at least 8 characters", "role must be one of"} {
		if !strings.Contains(env.Message, want) {
			t.Fatalf("message %q missing %q", env.Message, want)
		}
	}

	rec = app.do(request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]any{
		"name": "Sam", "email": "sam@gym.com", "password": "password-123", "gymId": "gym-404",
	}})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newApp(t, config.EnvDevelopment, map[string]handlers.Pinger{
		"postgres": handlers.PingFunc(func(context.Context) error { return nil }),
	})
	rec := app.do(request{method: http.MethodGet, path: "/api/healthz"})
	expectStatus(t, rec, http.StatusOK)

	app.register("Tia", "tia@gym.com", "gym-1", "")
	rec = app.do(request{method: http.MethodGet, path: "/api/metrics"})
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `auth_operations_total{operation="register",outcome="success"} 1`) {
		t.Fatalf("metrics missing auth counter:\n%s", rec.Body.String())
	}

	down := newApp(t, config.EnvDevelopment, map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	rec = down.do(request{method: http.MethodGet, path: "/api/healthz"})
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("health leaks error detail: %s", rec.Body.String())
	}
}
