package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type usersRepo interface {
	Add(ctx context.Context, user User) (*User, error)
	Get(ctx context.Context, id int) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id int, params UpdateParams) error
	UpdateRole(ctx context.Context, id int, role auth.Role) error
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)
}

type tokenIssuer interface {
	Issue(identity auth.Identity, now time.Time) (string, error)
}

// planCachePurger invalidates cached public plan listings. Deleting a
// user cascades over their plans, which otherwise stay cached until the
// cache TTL runs out.
type planCachePurger interface {
	PurgePublicCache()
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Handler struct {
	repo           usersRepo
	tokens         tokenIssuer
	planCaches     planCachePurger
	metricsManager *metrics.Manager
}

func NewHandler(repo usersRepo, tokens tokenIssuer, planCaches planCachePurger, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:           repo,
		tokens:         tokens,
		planCaches:     planCaches,
		metricsManager: metricsManager,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (req *RegisterRequest) validate() string {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return "invalid email"
	case len(req.Username) < 3 || len(req.Username) > 50:
		return "username must be between 3 and 50 characters"
	case len(req.Password) < 6:
		return "password must have at least 6 characters"
	case len(req.FullName) > 100:
		return "full name too long"
	default:
		return ""
	}
}

func (handler *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.register")
	defer span.End()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("register, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	if errMsg := req.validate(); errMsg != "" {
		pkg.WriteJSONError(w, errMsg, http.StatusBadRequest)
		return
	}

	passwordHash, err := pkg.HashPassword(req.Password)
	if err != nil {
		log.Errorf("register, hash password: %s", err)
		pkg.WriteJSONError(w, "registration failed", http.StatusInternalServerError)
		return
	}

	addedUser, err := handler.repo.Add(ctx, User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: passwordHash,
		FullName:     req.FullName,
		Role:         auth.RoleUser,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			pkg.WriteJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		log.Errorf("register user [%s]: %s", req.Username, err)
		pkg.WriteJSONError(w, "registration failed", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterRegistrations.Inc()
	log.Debugf("new user registered: %s [id %d]", addedUser.Username, addedUser.ID)

	userJson, err := json.Marshal(addedUser)
	if err != nil {
		log.Errorf("register, marshal user: %s", err)
		pkg.WriteJSONError(w, "registration failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, userJson, http.StatusCreated)
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.login")
	defer span.End()

	type loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	var loginReq loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
			log.Tracef("login, unmarshal json params: %s", err)
			pkg.WriteJSONError(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			pkg.WriteJSONError(w, "parse form error", http.StatusBadRequest)
			return
		}
		loginReq = loginRequest{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}
	}

	if loginReq.Username == "" || loginReq.Password == "" {
		pkg.WriteJSONError(w, "username or password empty", http.StatusBadRequest)
		return
	}

	user, err := handler.repo.GetByLogin(ctx, loginReq.Username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		log.Errorf("login, get user [%s]: %s", loginReq.Username, err)
		pkg.WriteJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}
	if user == nil || !pkg.CheckPasswordHash(loginReq.Password, user.PasswordHash) {
		log.Tracef("failed login attempt for user: %s", loginReq.Username)
		pkg.WriteJSONError(w, "wrong credentials", http.StatusUnauthorized)
		return
	}

	token, err := handler.tokens.Issue(user.Identity(), time.Now())
	if err != nil {
		log.Errorf("login failed, generate token error: %s", err)
		pkg.WriteJSONError(w, "generate token error", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterLogins.Inc()
	log.Tracef("new login success: %s", user.Username)

	respJson, err := json.Marshal(TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
	if err != nil {
		log.Errorf("login, marshal response: %s", err)
		pkg.WriteJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.me")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := handler.repo.Get(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("get user %d: %s", identity.ID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("marshal user: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, userJson)
}

type UpdateMeRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

func (handler *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.updateMe")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("update me, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		pkg.WriteJSONError(w, "invalid email", http.StatusBadRequest)
		return
	}
	if req.Username != nil && (len(*req.Username) < 3 || len(*req.Username) > 50) {
		pkg.WriteJSONError(w, "username must be between 3 and 50 characters", http.StatusBadRequest)
		return
	}

	params := UpdateParams{
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			pkg.WriteJSONError(w, "password must have at least 6 characters", http.StatusBadRequest)
			return
		}
		passwordHash, err := pkg.HashPassword(*req.Password)
		if err != nil {
			log.Errorf("update me, hash password: %s", err)
			pkg.WriteJSONError(w, "update failed", http.StatusInternalServerError)
			return
		}
		params.PasswordHash = &passwordHash
	}

	if err := handler.repo.Update(ctx, identity.ID, params); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken):
			pkg.WriteJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrUserNotFound):
			pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
		default:
			log.Errorf("update user %d: %s", identity.ID, err)
			pkg.WriteJSONError(w, "update failed", http.StatusInternalServerError)
		}
		return
	}

	user, err := handler.repo.Get(ctx, identity.ID)
	if err != nil {
		log.Errorf("get updated user %d: %s", identity.ID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("marshal user: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, userJson)
}

func (handler *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.adminList")
	defer span.End()

	allUsers, err := handler.repo.List(ctx)
	if err != nil {
		log.Errorf("admin list users: %s", err)
		pkg.WriteJSONError(w, "failed to list users", http.StatusInternalServerError)
		return
	}

	usersJson, err := json.Marshal(allUsers)
	if err != nil {
		log.Errorf("marshal users: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, usersJson)
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

type ChangeRoleResponse struct {
	UserID int       `json:"user_id"`
	Role   auth.Role `json:"role"`
}

func (handler *Handler) HandleAdminChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.adminChangeRole")
	defer span.End()

	admin, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	// admins cannot touch their own role
	if userID == admin.ID {
		pkg.WriteJSONError(w, "cannot change own role", http.StatusBadRequest)
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("admin change role for user %d: %s", userID, err)
		pkg.WriteJSONError(w, "failed to change role", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(ChangeRoleResponse{
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		log.Errorf("marshal change role response: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.Debugf("admin %d changed role of user %d to %s", admin.ID, userID, role)
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

type DeleteUserResponse struct {
	DeletedID int `json:"deleted_id"`
}

func (handler *Handler) HandleAdminDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.adminDelete")
	defer span.End()

	admin, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	// admins cannot delete their own account
	if userID == admin.ID {
		pkg.WriteJSONError(w, "cannot delete own account", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			pkg.WriteJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("admin delete user %d: %s", userID, err)
		pkg.WriteJSONError(w, "failed to delete user", http.StatusInternalServerError)
		return
	}

	// the cascade can take public plans with it
	handler.planCaches.PurgePublicCache()

	respJson, err := json.Marshal(DeleteUserResponse{DeletedID: userID})
	if err != nil {
		log.Errorf("marshal delete response: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.Debugf("admin %d deleted user %d", admin.ID, userID)
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
