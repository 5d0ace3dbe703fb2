package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/exercises"
	"github.com/2beens/fittrack/internal/plans"
	"github.com/2beens/fittrack/internal/stats"
	"github.com/2beens/fittrack/internal/users"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type usersServiceMock struct {
	byLogin map[string]*users.User
	nextID  int
}

func (m *usersServiceMock) Add(_ context.Context, user users.User) (*users.User, error) {
	for _, u := range m.byLogin {
		if u.Email == user.Email {
			return nil, users.ErrEmailTaken
		}
		if u.Username == user.Username {
			return nil, users.ErrUsernameTaken
		}
	}
	m.nextID++
	user.ID = m.nextID
	m.byLogin[user.Username] = &user
	return &user, nil
}

func (m *usersServiceMock) GetByLogin(_ context.Context, login string) (*users.User, error) {
	for _, u := range m.byLogin {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return nil, users.ErrUserNotFound
}

type plansServiceMock struct {
	plans map[int]*plans.WorkoutPlan
}

func (m *plansServiceMock) Get(_ context.Context, id int) (*plans.WorkoutPlan, error) {
	if p, ok := m.plans[id]; ok {
		return p, nil
	}
	return nil, plans.ErrPlanNotFound
}

func (m *plansServiceMock) ListForOwner(_ context.Context, ownerID, _, _ int) ([]plans.WorkoutPlan, error) {
	var found []plans.WorkoutPlan
	for _, p := range m.plans {
		if p.OwnerID == ownerID {
			found = append(found, *p)
		}
	}
	return found, nil
}

func (m *plansServiceMock) ListPublic(_ context.Context, _, _ int) ([]plans.WorkoutPlan, error) {
	var found []plans.WorkoutPlan
	for _, p := range m.plans {
		if p.IsPublic {
			found = append(found, *p)
		}
	}
	return found, nil
}

type exercisesServiceMock struct {
	byPlan map[int][]exercises.Exercise
}

func (m *exercisesServiceMock) ListForPlan(_ context.Context, planID int) ([]exercises.Exercise, error) {
	return m.byPlan[planID], nil
}

type statsServiceMock struct{}

func (m *statsServiceMock) Admin(_ context.Context) (*stats.AdminStats, error) {
	return &stats.AdminStats{
		TotalUsers:     2,
		TotalPlans:     3,
		TotalExercises: 9,
		PublicPlans:    1,
		UsersByRole:    map[string]int{"user": 1, "admin": 1},
	}, nil
}

type sessionStoreMock struct {
	sessions map[string]*auth.Identity
	nextID   int
}

func (m *sessionStoreMock) Add(_ context.Context, identity auth.Identity, _ time.Time) (string, error) {
	m.nextID++
	token := fmt.Sprintf("session-%d", m.nextID)
	m.sessions[token] = &identity
	return token, nil
}

func (m *sessionStoreMock) Get(_ context.Context, token string) (*auth.Identity, error) {
	if identity, ok := m.sessions[token]; ok {
		return identity, nil
	}
	return nil, auth.ErrSessionNotFound
}

func (m *sessionStoreMock) Remove(_ context.Context, token string) (bool, error) {
	if _, ok := m.sessions[token]; !ok {
		return false, nil
	}
	delete(m.sessions, token)
	return true, nil
}

type tokenIssuerMock struct{}

func (m *tokenIssuerMock) Issue(_ auth.Identity, _ time.Time) (string, error) {
	return "test-jwt", nil
}

type testDeps struct {
	handler  *Handler
	users    *usersServiceMock
	sessions *sessionStoreMock
}

func getTestHandler(t *testing.T) testDeps {
	t.Helper()

	templates, err := LoadTemplates()
	require.NoError(t, err)

	passwordHash, err := pkg.HashPassword("testpass123")
	require.NoError(t, err)

	usersSvc := &usersServiceMock{
		byLogin: map[string]*users.User{
			"mila": {ID: 1, Email: "mila@test.com", Username: "mila", PasswordHash: passwordHash, Role: auth.RoleUser},
			"boss": {ID: 2, Email: "boss@test.com", Username: "boss", PasswordHash: passwordHash, Role: auth.RoleAdmin},
		},
		nextID: 10,
	}
	plansSvc := &plansServiceMock{
		plans: map[int]*plans.WorkoutPlan{
			1: {ID: 1, OwnerID: 1, Title: "Push Pull Legs", IsPublic: true, CreatedAt: time.Now()},
			2: {ID: 2, OwnerID: 2, Title: "Bosses Only", CreatedAt: time.Now()},
		},
	}
	exercisesSvc := &exercisesServiceMock{
		byPlan: map[int][]exercises.Exercise{
			1: {{ID: 1, WorkoutPlanID: 1, Name: "Bench Press", Sets: 3, Reps: "8-12", Order: 1}},
		},
	}
	sessions := &sessionStoreMock{sessions: make(map[string]*auth.Identity)}

	handler := NewHandler(templates, usersSvc, plansSvc, exercisesSvc, &statsServiceMock{}, sessions, &tokenIssuerMock{})
	require.NotNil(t, handler)

	return testDeps{handler: handler, users: usersSvc, sessions: sessions}
}

func withSession(t *testing.T, deps testDeps, req *http.Request, identity auth.Identity) {
	t.Helper()
	token, err := deps.sessions.Add(req.Context(), identity, time.Now())
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
}

func TestHandler_HandleIndex(t *testing.T) {
	deps := getTestHandler(t)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	deps.handler.HandleIndex(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Push Pull Legs")
	assert.NotContains(t, rr.Body.String(), "Bosses Only")
	// logged out nav
	assert.Contains(t, rr.Body.String(), "/login")
}

func TestHandler_HandleLoginSubmit(t *testing.T) {
	deps := getTestHandler(t)

	form := url.Values{"username": {"mila"}, "password": {"testpass123"}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	deps.handler.HandleLoginSubmit(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	cookies := rr.Result().Cookies()
	var gotSession, gotAPIToken bool
	for _, c := range cookies {
		switch c.Name {
		case SessionCookieName:
			gotSession = true
			assert.True(t, c.HttpOnly)
			assert.NotEmpty(t, c.Value)
		case APITokenCookieName:
			gotAPIToken = true
			assert.False(t, c.HttpOnly)
			assert.Equal(t, "test-jwt", c.Value)
		}
	}
	assert.True(t, gotSession)
	assert.True(t, gotAPIToken)
}

func TestHandler_HandleLoginSubmit_wrongCredentials(t *testing.T) {
	deps := getTestHandler(t)

	form := url.Values{"username": {"mila"}, "password": {"wrong"}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	deps.handler.HandleLoginSubmit(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login?error=1", rr.Header().Get("Location"))
	assert.Empty(t, rr.Result().Cookies())
}

func TestHandler_HandleRegisterSubmit(t *testing.T) {
	deps := getTestHandler(t)

	form := url.Values{
		"email":    {"drago@test.com"},
		"username": {"drago"},
		"password": {"secret1"},
	}
	req := httptest.NewRequest("POST", "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	deps.handler.HandleRegisterSubmit(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	added, err := deps.users.GetByLogin(context.Background(), "drago")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, added.Role)
}

func TestHandler_HandleRegisterSubmit_taken(t *testing.T) {
	deps := getTestHandler(t)

	form := url.Values{
		"email":    {"other@test.com"},
		"username": {"mila"},
		"password": {"secret1"},
	}
	req := httptest.NewRequest("POST", "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	deps.handler.HandleRegisterSubmit(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/register?error=taken", rr.Header().Get("Location"))
}

func TestHandler_HandleDashboard(t *testing.T) {
	deps := getTestHandler(t)

	// logged out callers land on the login page
	req := httptest.NewRequest("GET", "/dashboard", nil)
	rr := httptest.NewRecorder()
	deps.handler.HandleDashboard(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	req = httptest.NewRequest("GET", "/dashboard", nil)
	withSession(t, deps, req, auth.Identity{ID: 1, Username: "mila", Role: auth.RoleUser})
	rr = httptest.NewRecorder()
	deps.handler.HandleDashboard(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Push Pull Legs")
	assert.NotContains(t, rr.Body.String(), "Bosses Only")
}

func TestHandler_HandleAdminPage(t *testing.T) {
	deps := getTestHandler(t)

	// regular users bounce to the index page
	req := httptest.NewRequest("GET", "/admin", nil)
	withSession(t, deps, req, auth.Identity{ID: 1, Username: "mila", Role: auth.RoleUser})
	rr := httptest.NewRecorder()
	deps.handler.HandleAdminPage(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	req = httptest.NewRequest("GET", "/admin", nil)
	withSession(t, deps, req, auth.Identity{ID: 2, Username: "boss", Role: auth.RoleAdmin})
	rr = httptest.NewRecorder()
	deps.handler.HandleAdminPage(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Admin Panel")
}

func TestHandler_HandlePlanPage(t *testing.T) {
	deps := getTestHandler(t)

	planRequest := func(identity auth.Identity, planID int) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", fmt.Sprintf("/plan/%d", planID), nil)
		req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", planID)})
		withSession(t, deps, req, identity)
		rr := httptest.NewRecorder()
		deps.handler.HandlePlanPage(rr, req)
		return rr
	}

	mila := auth.Identity{ID: 1, Username: "mila", Role: auth.RoleUser}
	boss := auth.Identity{ID: 2, Username: "boss", Role: auth.RoleAdmin}

	rr := planRequest(mila, 1)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Push Pull Legs")
	assert.Contains(t, rr.Body.String(), "Bench Press")

	// foreign plan and missing plan look the same
	rr = planRequest(mila, 2)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = planRequest(mila, 999)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// admins see any plan
	rr = planRequest(boss, 1)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandler_HandleLogout(t *testing.T) {
	deps := getTestHandler(t)

	token, err := deps.sessions.Add(context.Background(), auth.Identity{ID: 1, Username: "mila", Role: auth.RoleUser}, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rr := httptest.NewRecorder()

	deps.handler.HandleLogout(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	// session is gone
	_, err = deps.sessions.Get(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	// both cookies are expired
	for _, c := range rr.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
	}
}
