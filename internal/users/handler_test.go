package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenIssuerMock struct {
	token string
	err   error
}

func (m *tokenIssuerMock) Issue(_ auth.Identity, _ time.Time) (string, error) {
	return m.token, m.err
}

type planCachePurgerMock struct {
	purgeCalls int
}

func (m *planCachePurgerMock) PurgePublicCache() {
	m.purgeCalls++
}

func getTestHandlerAndRepo(t *testing.T) (*Handler, *repoMock) {
	t.Helper()
	handler, repo, _ := getTestHandlerRepoAndPurger(t)
	return handler, repo
}

func getTestHandlerRepoAndPurger(t *testing.T) (*Handler, *repoMock, *planCachePurgerMock) {
	t.Helper()

	repo := newRepoMock()
	purger := &planCachePurgerMock{}
	handler := NewHandler(repo, &tokenIssuerMock{token: "test-token"}, purger, metrics.NewTestManager())
	require.NotNil(t, handler)
	return handler, repo, purger
}

func addTestUser(t *testing.T, repo *repoMock, username string, role auth.Role) *User {
	t.Helper()

	passwordHash, err := pkg.HashPassword("testpass123")
	require.NoError(t, err)

	user, err := repo.Add(context.Background(), User{
		Email:        fmt.Sprintf("%s@test.com", username),
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     "Test " + username,
		Role:         role,
	})
	require.NoError(t, err)
	return user
}

func TestHandler_HandleRegister(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)

	body := `{"email":"mila@test.com","username":"mila","password":"secret1","full_name":"Mila T"}`
	req, err := http.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	handler.HandleRegister(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "mila", created.Username)
	assert.Equal(t, auth.RoleUser, created.Role)
	assert.Empty(t, created.PasswordHash)

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, pkg.CheckPasswordHash("secret1", stored.PasswordHash))
}

func TestHandler_HandleRegister_invalidParams(t *testing.T) {
	handler, _ := getTestHandlerAndRepo(t)

	for name, body := range map[string]string{
		"bad email":      `{"email":"nope","username":"mila","password":"secret1"}`,
		"short username": `{"email":"mila@test.com","username":"mi","password":"secret1"}`,
		"short password": `{"email":"mila@test.com","username":"mila","password":"abc"}`,
		"not json":       `<not json>`,
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
			require.NoError(t, err)
			rr := httptest.NewRecorder()
			handler.HandleRegister(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_HandleRegister_duplicate(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	addTestUser(t, repo, "mila", auth.RoleUser)

	body := `{"email":"other@test.com","username":"mila","password":"secret1"}`
	req, err := http.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	handler.HandleRegister(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "username")
}

func TestHandler_HandleLogin(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	addTestUser(t, repo, "mila", auth.RoleUser)

	body := `{"username":"mila","password":"testpass123"}`
	req, err := http.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.HandleLogin(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var tokenResp TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tokenResp))
	assert.Equal(t, "test-token", tokenResp.AccessToken)
	assert.Equal(t, "bearer", tokenResp.TokenType)
}

func TestHandler_HandleLogin_form(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	addTestUser(t, repo, "mila", auth.RoleUser)

	req, err := http.NewRequest("POST", "/api/auth/login", strings.NewReader("username=mila&password=testpass123"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	handler.HandleLogin(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "test-token")
}

func TestHandler_HandleLogin_wrongCredentials(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	addTestUser(t, repo, "mila", auth.RoleUser)

	for name, body := range map[string]string{
		"wrong password": `{"username":"mila","password":"wrongpass"}`,
		"unknown user":   `{"username":"ghost","password":"testpass123"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			handler.HandleLogin(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "wrong credentials")
		})
	}
}

func TestHandler_HandleGetMe(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	user := addTestUser(t, repo, "mila", auth.RoleUser)

	req, err := http.NewRequest("GET", "/api/users/me", nil)
	require.NoError(t, err)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), user.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleGetMe(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var gotten User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotten))
	assert.Equal(t, user.ID, gotten.ID)
	assert.Equal(t, "mila", gotten.Username)
}

func TestHandler_HandleGetMe_noIdentity(t *testing.T) {
	handler, _ := getTestHandlerAndRepo(t)

	req, err := http.NewRequest("GET", "/api/users/me", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	handler.HandleGetMe(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_HandleUpdateMe(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	user := addTestUser(t, repo, "mila", auth.RoleUser)

	body := `{"full_name":"Mila Updated","password":"newpass123"}`
	req, err := http.NewRequest("PUT", "/api/users/me", strings.NewReader(body))
	require.NoError(t, err)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), user.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleUpdateMe(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	updated, err := repo.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mila Updated", updated.FullName)
	assert.True(t, pkg.CheckPasswordHash("newpass123", updated.PasswordHash))
	// untouched fields stay
	assert.Equal(t, "mila", updated.Username)
}

func TestHandler_HandleUpdateMe_takenUsername(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	user := addTestUser(t, repo, "mila", auth.RoleUser)
	addTestUser(t, repo, "drago", auth.RoleUser)

	body := `{"username":"drago"}`
	req, err := http.NewRequest("PUT", "/api/users/me", strings.NewReader(body))
	require.NoError(t, err)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), user.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleUpdateMe(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_HandleAdminList(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	addTestUser(t, repo, "mila", auth.RoleUser)
	addTestUser(t, repo, "drago", auth.RoleUser)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	req, err := http.NewRequest("GET", "/api/admin/users", nil)
	require.NoError(t, err)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminList(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var listed []User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	assert.Len(t, listed, 3)
}

func TestHandler_HandleAdminChangeRole(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	user := addTestUser(t, repo, "mila", auth.RoleUser)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	body := `{"role":"admin"}`
	req, err := http.NewRequest("PUT", fmt.Sprintf("/api/admin/users/%d/role", user.ID), strings.NewReader(body))
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", user.ID)})
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminChangeRole(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	updated, err := repo.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, updated.Role)
}

func TestHandler_HandleAdminChangeRole_ownRole(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	body := `{"role":"user"}`
	req, err := http.NewRequest("PUT", fmt.Sprintf("/api/admin/users/%d/role", admin.ID), strings.NewReader(body))
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", admin.ID)})
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminChangeRole(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "cannot change own role")
}

func TestHandler_HandleAdminChangeRole_invalidRole(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	user := addTestUser(t, repo, "mila", auth.RoleUser)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	body := `{"role":"superuser"}`
	req, err := http.NewRequest("PUT", fmt.Sprintf("/api/admin/users/%d/role", user.ID), strings.NewReader(body))
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", user.ID)})
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminChangeRole(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_HandleAdminDelete(t *testing.T) {
	handler, repo, purger := getTestHandlerRepoAndPurger(t)
	user := addTestUser(t, repo, "mila", auth.RoleUser)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	req, err := http.NewRequest("DELETE", fmt.Sprintf("/api/admin/users/%d", user.ID), nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", user.ID)})
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminDelete(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = repo.Get(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	// the cascade may have removed public plans, cached listings must go
	assert.Equal(t, 1, purger.purgeCalls)
}

func TestHandler_HandleAdminDelete_self(t *testing.T) {
	handler, repo, purger := getTestHandlerRepoAndPurger(t)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	req, err := http.NewRequest("DELETE", fmt.Sprintf("/api/admin/users/%d", admin.ID), nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", admin.ID)})
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminDelete(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	_, err = repo.Get(context.Background(), admin.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, purger.purgeCalls)
}

func TestHandler_HandleAdminDelete_notFound(t *testing.T) {
	handler, repo := getTestHandlerAndRepo(t)
	admin := addTestUser(t, repo, "boss", auth.RoleAdmin)

	req, err := http.NewRequest("DELETE", "/api/admin/users/999", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": "999"})
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), admin.Identity()))
	rr := httptest.NewRecorder()

	handler.HandleAdminDelete(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
