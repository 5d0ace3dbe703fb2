package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/exercises"
	"github.com/2beens/fittrack/internal/plans"
	"github.com/2beens/fittrack/internal/stats"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/internal/users"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	// SessionCookieName carries the server side session token, httpOnly.
	SessionCookieName = "session_token"
	// APITokenCookieName carries the JWT for page-embedded API calls,
	// readable from page scripts on purpose.
	APITokenCookieName = "api_token"

	publicPlansPageSize = 12
	dashboardPageSize   = 100
)

type usersService interface {
	Add(ctx context.Context, user users.User) (*users.User, error)
	GetByLogin(ctx context.Context, login string) (*users.User, error)
}

type plansService interface {
	Get(ctx context.Context, id int) (*plans.WorkoutPlan, error)
	ListForOwner(ctx context.Context, ownerID, skip, limit int) ([]plans.WorkoutPlan, error)
	ListPublic(ctx context.Context, skip, limit int) ([]plans.WorkoutPlan, error)
}

type exercisesService interface {
	ListForPlan(ctx context.Context, planID int) ([]exercises.Exercise, error)
}

type statsService interface {
	Admin(ctx context.Context) (*stats.AdminStats, error)
}

type sessionStore interface {
	Add(ctx context.Context, identity auth.Identity, createdAt time.Time) (string, error)
	Get(ctx context.Context, token string) (*auth.Identity, error)
	Remove(ctx context.Context, token string) (bool, error)
}

type tokenIssuer interface {
	Issue(identity auth.Identity, now time.Time) (string, error)
}

type Handler struct {
	templates *Templates
	users     usersService
	plans     plansService
	exercises exercisesService
	stats     statsService
	sessions  sessionStore
	tokens    tokenIssuer
}

func NewHandler(
	templates *Templates,
	usersSvc usersService,
	plansSvc plansService,
	exercisesSvc exercisesService,
	statsSvc statsService,
	sessions sessionStore,
	tokens tokenIssuer,
) *Handler {
	return &Handler{
		templates: templates,
		users:     usersSvc,
		plans:     plansSvc,
		exercises: exercisesSvc,
		stats:     statsSvc,
		sessions:  sessions,
		tokens:    tokens,
	}
}

// currentIdentity resolves the caller from the session cookie, nil when
// not logged in (or the session expired).
func (handler *Handler) currentIdentity(r *http.Request) *auth.Identity {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	identity, err := handler.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, auth.ErrSessionNotFound) {
			log.Errorf("web, get session: %s", err)
		}
		return nil
	}
	return identity
}

func (handler *Handler) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", pkg.ContentType.HTML)
	if err := handler.templates.Render(w, page, data); err != nil {
		log.Errorf("web, render %s page: %s", page, err)
	}
}

type indexPageData struct {
	Identity *auth.Identity
	Plans    []plans.WorkoutPlan
}

func (handler *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.index")
	defer span.End()

	publicPlans, err := handler.plans.ListPublic(ctx, 0, publicPlansPageSize)
	if err != nil {
		log.Errorf("web, list public plans: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.render(w, "index", indexPageData{
		Identity: handler.currentIdentity(r),
		Plans:    publicPlans,
	})
}

type loginPageData struct {
	Identity *auth.Identity
	Error    bool
}

func (handler *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if handler.currentIdentity(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	handler.render(w, "login", loginPageData{
		Error: r.URL.Query().Get("error") != "",
	})
}

func (handler *Handler) HandleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.login")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}

	login := strings.TrimSpace(r.Form.Get("username"))
	password := r.Form.Get("password")

	user, err := handler.users.GetByLogin(ctx, login)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		log.Errorf("web login, get user [%s]: %s", login, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil || !pkg.CheckPasswordHash(password, user.PasswordHash) {
		log.Tracef("web, failed login attempt for user: %s", login)
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}

	if err := handler.startSession(ctx, w, user.Identity()); err != nil {
		log.Errorf("web login, start session: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

type registerPageData struct {
	Identity *auth.Identity
	Error    string
}

func (handler *Handler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if handler.currentIdentity(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	var errMsg string
	switch r.URL.Query().Get("error") {
	case "taken":
		errMsg = "Email or username already taken."
	case "invalid":
		errMsg = "Please check the entered values."
	}
	handler.render(w, "register", registerPageData{Error: errMsg})
}

func (handler *Handler) HandleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.register")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/register?error=invalid", http.StatusFound)
		return
	}

	email := strings.TrimSpace(r.Form.Get("email"))
	username := strings.TrimSpace(r.Form.Get("username"))
	fullName := strings.TrimSpace(r.Form.Get("full_name"))
	password := r.Form.Get("password")

	if !strings.Contains(email, "@") ||
		len(username) < 3 || len(username) > 50 ||
		len(fullName) > 100 ||
		len(password) < 6 {
		http.Redirect(w, r, "/register?error=invalid", http.StatusFound)
		return
	}

	passwordHash, err := pkg.HashPassword(password)
	if err != nil {
		log.Errorf("web register, hash password: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	addedUser, err := handler.users.Add(ctx, users.User{
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Role:         auth.RoleUser,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) || errors.Is(err, users.ErrUsernameTaken) {
			http.Redirect(w, r, "/register?error=taken", http.StatusFound)
			return
		}
		log.Errorf("web register user [%s]: %s", username, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := handler.startSession(ctx, w, addedUser.Identity()); err != nil {
		log.Errorf("web register, start session: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

type dashboardPageData struct {
	Identity *auth.Identity
	Plans    []plans.WorkoutPlan
}

func (handler *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.dashboard")
	defer span.End()

	identity := handler.currentIdentity(r)
	if identity == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	ownPlans, err := handler.plans.ListForOwner(ctx, identity.ID, 0, dashboardPageSize)
	if err != nil {
		log.Errorf("web, list plans for user %d: %s", identity.ID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.render(w, "dashboard", dashboardPageData{
		Identity: identity,
		Plans:    ownPlans,
	})
}

type adminPageData struct {
	Identity *auth.Identity
	Stats    *stats.AdminStats
}

func (handler *Handler) HandleAdminPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.admin")
	defer span.End()

	identity := handler.currentIdentity(r)
	if identity == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if !identity.IsAdmin() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	adminStats, err := handler.stats.Admin(ctx)
	if err != nil {
		log.Errorf("web, gather admin stats: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.render(w, "admin", adminPageData{
		Identity: identity,
		Stats:    adminStats,
	})
}

type planPageData struct {
	Identity  *auth.Identity
	Plan      *plans.WorkoutPlan
	Exercises []exercises.Exercise
}

func (handler *Handler) HandlePlanPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.plan")
	defer span.End()

	identity := handler.currentIdentity(r)
	if identity == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	planID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	plan, err := handler.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Errorf("web, get plan %d: %s", planID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if plan.OwnerID != identity.ID && !identity.IsAdmin() {
		// same 404 for foreign plans
		http.NotFound(w, r)
		return
	}

	planExercises, err := handler.exercises.ListForPlan(ctx, planID)
	if err != nil {
		log.Errorf("web, list exercises for plan %d: %s", planID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.render(w, "plan", planPageData{
		Identity:  identity,
		Plan:      plan,
		Exercises: planExercises,
	})
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "web.logout")
	defer span.End()

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := handler.sessions.Remove(ctx, cookie.Value); err != nil {
			log.Errorf("web logout, remove session: %s", err)
		}
	}

	expireCookie(w, SessionCookieName, true)
	expireCookie(w, APITokenCookieName, false)
	http.Redirect(w, r, "/", http.StatusFound)
}

// startSession stores a new session and sets both cookies.
func (handler *Handler) startSession(ctx context.Context, w http.ResponseWriter, identity auth.Identity) error {
	now := time.Now()
	sessionToken, err := handler.sessions.Add(ctx, identity, now)
	if err != nil {
		return err
	}

	apiToken, err := handler.tokens.Issue(identity, now)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     APITokenCookieName,
		Value:    apiToken,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})

	log.Tracef("web, new session for user: %s", identity.Username)
	return nil
}

func expireCookie(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: httpOnly,
	})
}
