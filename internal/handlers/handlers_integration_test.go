package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/app"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/config"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/geo"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"
	"github.com/eti-roma/verte-culture-connect-sub000/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCode = "123456"

type fixedCity string

func (f fixedCity) CityFor(context.Context, *geo.Coordinates, string) string { return string(f) }

// setupApp builds the service on in-memory SQLite and the in-process broker.
func setupApp(t *testing.T) *app.App {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("JWT_SECRET", "test_jwt_secret")
	cfg, err := config.FromViper(v)
	require.NoError(t, err)

	db, err := repositories.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Background consumers write too; one connection keeps SQLite from reporting locks.
	sqlDB.SetMaxOpenConns(1)

	broker := rabbitmq.NewInProcess(256)
	a, err := app.New(app.Options{
		Config:     cfg,
		DB:         db,
		Broker:     broker,
		PhotoStore: services.NewMemoryPhotoStore(),
		Analyzer:   services.NewSimulatedAnalyzer(rand.New(rand.NewSource(3)), 0),
		Cities:     fixedCity("Saint-Louis"),
	})
	require.NoError(t, err)

	local, ok := a.Provider.(*provider.LocalProvider)
	require.True(t, ok)
	local.GenerateCode = func() (string, error) { return testCode, nil }

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = broker.Close()
		_ = a.Shutdown()
		_ = sqlDB.Close()
	})
	return a
}

func call(t *testing.T, a *app.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		var list []any
		require.NoError(t, json.Unmarshal(raw, &list))
		out["items"] = list
	}
	return resp.StatusCode, out
}

func accessToken(t *testing.T, body map[string]any) string {
	t.Helper()
	sess, ok := body["session"].(map[string]any)
	require.True(t, ok, "no session in %v", body)
	token, _ := sess["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// phoneUser signs a user in by passcode and completes the profile.
func phoneUser(t *testing.T, a *app.App, phone string) string {
	t.Helper()
	status, body := call(t, a, "POST", "/api/v1/auth/otp", "", fiber.Map{"phone": phone})
	require.Equal(t, fiber.StatusOK, status, body)
	status, body = call(t, a, "POST", "/api/v1/auth/otp/verify", "", fiber.Map{"phone": phone, "token": testCode})
	require.Equal(t, fiber.StatusOK, status, body)
	token := accessToken(t, body)
	status, body = call(t, a, "PUT", "/api/v1/profile", token, fiber.Map{"username": "Producteur"})
	require.Equal(t, fiber.StatusOK, status, body)
	return token
}

func TestHealthAndNotFound(t *testing.T) {
	a := setupApp(t)

	status, body := call(t, a, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = call(t, a, "GET", "/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Page introuvable", body["message"])
}

func TestClassify(t *testing.T) {
	a := setupApp(t)

	cases := map[string][2]string{
		"0612345678":          {"phone", "+33612345678"},
		"+33 6 12 34 56 78":   {"phone", "+33612345678"},
		" amina@example.org ": {"email", "amina@example.org"},
	}
	for input, want := range cases {
		status, body := call(t, a, "POST", "/api/v1/auth/classify", "", fiber.Map{"identity": input})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["valid"], input)
		assert.Equal(t, want[0], body["kind"], input)
		assert.Equal(t, want[1], body["value"], input)
	}

	_, body := call(t, a, "POST", "/api/v1/auth/classify", "", fiber.Map{"identity": "bonjour"})
	assert.Equal(t, false, body["valid"])

	status, body := call(t, a, "GET", "/api/v1/auth/status", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["loading"])
	assert.Equal(t, "+33", body["calling_code"])
}

func TestAuthEndpoints(t *testing.T) {
	a := setupApp(t)

	status, body := call(t, a, "POST", "/api/v1/auth/signup", "", fiber.Map{"identity": "hello", "password": "secret1"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Veuillez saisir un email ou un numéro de téléphone valide", body["message"])

	status, body = call(t, a, "POST", "/api/v1/auth/signup", "", fiber.Map{"identity": "06 98 76 54 32", "password": "secret1", "username": "Moussa"})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, body["requires_verification"])
	assert.Equal(t, "+33698765432", body["phone"])

	status, body = call(t, a, "POST", "/api/v1/auth/signup", "", fiber.Map{"identity": "0698765432", "password": "secret1"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, services.MsgAlreadyRegistered, body["message"])

	status, body = call(t, a, "POST", "/api/v1/auth/login", "", fiber.Map{"identity": "0698765432", "password": "secret1"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["requires_verification"], "unconfirmed phone falls back to a passcode")

	status, body = call(t, a, "POST", "/api/v1/auth/otp/verify", "", fiber.Map{"phone": "0698765432", "token": "000000"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, services.MsgInvalidOTP, body["message"])

	status, body = call(t, a, "POST", "/api/v1/auth/otp/verify", "", fiber.Map{"phone": "0698765432", "token": testCode})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Nil(t, body["is_new_user"], "the profile was created at sign-up")

	status, body = call(t, a, "POST", "/api/v1/auth/login", "", fiber.Map{"identity": "+33698765432", "password": "secret1"})
	require.Equal(t, fiber.StatusOK, status, body)
	token := accessToken(t, body)

	status, body = call(t, a, "POST", "/api/v1/auth/login", "", fiber.Map{"identity": "+33698765432", "password": "wrong1"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, services.MsgInvalidCredentials, body["message"])

	status, body = call(t, a, "GET", "/api/v1/me", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, "Moussa", profile["username"])
	assert.Equal(t, "+33698765432", profile["phone"])

	status, body = call(t, a, "POST", "/api/v1/auth/password/reset", "", fiber.Map{"email": "nobody@example.org"})
	assert.Equal(t, fiber.StatusOK, status, body)
	status, _ = call(t, a, "POST", "/api/v1/auth/password/reset", "", fiber.Map{"email": "0698765432"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, a, "GET", "/api/v1/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestPhoneFlow(t *testing.T) {
	a := setupApp(t)

	status, body := call(t, a, "POST", "/api/v1/auth/flows", "", fiber.Map{"kind": "phone"})
	require.Equal(t, fiber.StatusCreated, status, body)
	f := body["flow"].(map[string]any)
	id := f["id"].(string)
	assert.Equal(t, "phone", f["step"])

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/phone", "", fiber.Map{"phone": "0612345678"})
	require.Equal(t, fiber.StatusOK, status, body)
	f = body["flow"].(map[string]any)
	assert.Equal(t, "otp", f["step"])
	assert.Equal(t, "+33612345678", f["phone"])
	assert.Equal(t, float64(60), body["resend_in"])

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/resend", "", nil)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Contains(t, body["message"], "secondes")

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/code", "", fiber.Map{"code": "999999"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "otp", body["flow"].(map[string]any)["step"])
	assert.Equal(t, services.MsgInvalidOTP, body["message"])

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/code", "", fiber.Map{"code": testCode})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "profile", body["flow"].(map[string]any)["step"])

	status, body = call(t, a, "GET", "/api/v1/auth/flows/"+id, "", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotContains(t, body["flow"], "session")

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/back", "", nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/profile", "", fiber.Map{"username": "Awa"})
	require.Equal(t, fiber.StatusOK, status, body)
	f = body["flow"].(map[string]any)
	assert.Equal(t, "done", f["step"])
	token := accessToken(t, f)

	status, _ = call(t, a, "GET", "/api/v1/auth/flows/"+id, "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = call(t, a, "GET", "/api/v1/profile", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "Awa", body["username"])
	assert.Equal(t, "+33612345678", body["phone"])
	assert.Equal(t, "Saint-Louis", body["location"])
}

func TestEmailSignupFlowReturnsToLogin(t *testing.T) {
	a := setupApp(t)

	_, body := call(t, a, "POST", "/api/v1/auth/flows", "", fiber.Map{"kind": "signup"})
	id := body["flow"].(map[string]any)["id"].(string)

	status, body := call(t, a, "POST", "/api/v1/auth/flows/"+id+"/signup", "", fiber.Map{
		"identity": "amina@example.org", "password": "secret1", "username": "Amina",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	f := body["flow"].(map[string]any)
	assert.Equal(t, "login", f["step"])
	assert.Equal(t, "amina@example.org", f["email"])

	status, body = call(t, a, "POST", "/api/v1/auth/flows/"+id+"/login", "", fiber.Map{"identity": "amina@example.org", "password": "secret1"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, services.MsgNotConfirmed, body["message"])
	assert.Equal(t, "login", body["flow"].(map[string]any)["step"])

	status, _ = call(t, a, "GET", "/api/v1/auth/flows/missing", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestRecordsAndNotifications(t *testing.T) {
	a := setupApp(t)
	token := phoneUser(t, a, "0611111111")

	status, body := call(t, a, "POST", "/api/v1/records/producers", token, fiber.Map{
		"name": "Ferme Ndiaye", "location": "Thiès", "specialty": "orge",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["user_id"])

	status, body = call(t, a, "GET", "/api/v1/records/producers?specialty=orge", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["items"], 1)

	status, _ = call(t, a, "GET", "/api/v1/records/producers?phone=1", token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, a, "GET", "/api/v1/records/secrets", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = call(t, a, "POST", "/api/v1/records/producers", token, fiber.Map{"name": "X"})
	assert.Equal(t, fiber.StatusBadRequest, status, body)

	status, body = call(t, a, "POST", "/api/v1/records/problem_reports", token, fiber.Map{
		"title": "Moisissure", "description": "Plateau 3", "severity": "high",
	})
	require.Equal(t, fiber.StatusCreated, status, body)

	var items []any
	require.Eventually(t, func() bool {
		_, body := call(t, a, "GET", "/api/v1/notifications?unread=true", token, nil)
		items, _ = body["items"].([]any)
		return len(items) == 1
	}, 2*time.Second, 20*time.Millisecond)

	id := items[0].(map[string]any)["id"].(string)
	status, _ = call(t, a, "POST", "/api/v1/notifications/"+id+"/read", token, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	_, body = call(t, a, "GET", "/api/v1/notifications?unread=true", token, nil)
	assert.Empty(t, body["items"])

	status, _ = call(t, a, "GET", "/api/v1/records/producers", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestPhotoUpload(t *testing.T) {
	a := setupApp(t)
	token := phoneUser(t, a, "0622222222")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("culture_type", "orge"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="plateau.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/photos", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var row map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&row))
	assert.Equal(t, services.AnalysisCompleted, row["status"])
	assert.Equal(t, "orge", row["culture_type"])

	assert.Equal(t, "memory://"+row["storage_key"].(string), row["image_url"])

	status, body := call(t, a, "GET", "/api/v1/records/photo_analyses", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, row["image_url"], items[0].(map[string]any)["image_url"])
}

func TestAccountState(t *testing.T) {
	a := setupApp(t)
	token := phoneUser(t, a, "0633333333")

	status, body := call(t, a, "PUT", "/api/v1/locale", token, fiber.Map{"locale": "ar"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "ar", body["locale"])

	status, _ = call(t, a, "PUT", "/api/v1/locale", token, fiber.Map{"locale": "de"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = call(t, a, "POST", "/api/v1/geo/city", token, fiber.Map{"latitude": 16.03, "longitude": -16.5})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Saint-Louis", body["city"])

	status, body = call(t, a, "GET", "/api/v1/errors", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["items"])

	status, body = call(t, a, "POST", "/api/v1/logout", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)

	_, body = call(t, a, "GET", "/api/v1/me", token, nil)
	state := body["state"].(map[string]any)
	assert.Equal(t, "ar", state["locale"], "logout keeps the language")
}
