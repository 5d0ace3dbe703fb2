package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	ownListDefaultLimit    = 100
	ownListMaxLimit        = 100
	publicListDefaultLimit = 12
	publicListMaxLimit     = 50

	publicListCacheExpireSeconds = 30
)

type plansRepo interface {
	Add(ctx context.Context, plan WorkoutPlan) (*WorkoutPlan, error)
	Get(ctx context.Context, id int) (*WorkoutPlan, error)
	ListForOwner(ctx context.Context, ownerID, skip, limit int) ([]WorkoutPlan, error)
	ListAll(ctx context.Context, skip, limit int) ([]WorkoutPlan, error)
	ListPublic(ctx context.Context, skip, limit int) ([]WorkoutPlan, error)
	Update(ctx context.Context, id int, params UpdateParams) error
	Delete(ctx context.Context, id int) error
}

type Handler struct {
	repo           plansRepo
	publicCache    *freecache.Cache
	metricsManager *metrics.Manager
}

func NewHandler(repo plansRepo, metricsManager *metrics.Manager) *Handler {
	megabyte := 1024 * 1024
	return &Handler{
		repo:           repo,
		publicCache:    freecache.NewCache(1 * megabyte),
		metricsManager: metricsManager,
	}
}

type NewPlanRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Difficulty    string `json:"difficulty"`
	DurationWeeks int    `json:"duration_weeks"`
	IsPublic      bool   `json:"is_public"`
}

func (req *NewPlanRequest) validate() error {
	if err := validateTitle(req.Title); err != nil {
		return err
	}
	if err := validateDifficulty(req.Difficulty); err != nil {
		return err
	}
	if req.DurationWeeks != 0 {
		if err := validateDurationWeeks(req.DurationWeeks); err != nil {
			return err
		}
	}
	return nil
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.create")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req NewPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("create plan, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	if err := req.validate(); err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	addedPlan, err := handler.repo.Add(ctx, WorkoutPlan{
		OwnerID:       identity.ID,
		Title:         req.Title,
		Description:   req.Description,
		Difficulty:    req.Difficulty,
		DurationWeeks: req.DurationWeeks,
		IsPublic:      req.IsPublic,
	})
	if err != nil {
		log.Errorf("create plan for user %d: %s", identity.ID, err)
		pkg.WriteJSONError(w, "failed to create workout plan", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterPlansCreated.Inc()
	handler.publicCache.Clear()
	log.Debugf("user %d created plan %d [%s]", identity.ID, addedPlan.ID, addedPlan.Title)

	planJson, err := json.Marshal(addedPlan)
	if err != nil {
		log.Errorf("marshal plan: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, planJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.list")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	skip, limit, err := paginationParams(r, ownListDefaultLimit, ownListMaxLimit)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var listed []WorkoutPlan
	if identity.IsAdmin() {
		listed, err = handler.repo.ListAll(ctx, skip, limit)
	} else {
		listed, err = handler.repo.ListForOwner(ctx, identity.ID, skip, limit)
	}
	if err != nil {
		log.Errorf("list plans for user %d: %s", identity.ID, err)
		pkg.WriteJSONError(w, "failed to list workout plans", http.StatusInternalServerError)
		return
	}
	if listed == nil {
		listed = []WorkoutPlan{}
	}

	plansJson, err := json.Marshal(listed)
	if err != nil {
		log.Errorf("marshal plans: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, plansJson)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.get")
	defer span.End()

	plan, ok := handler.ownedPlan(ctx, w, r)
	if !ok {
		return
	}

	planJson, err := json.Marshal(plan)
	if err != nil {
		log.Errorf("marshal plan: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, planJson)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.update")
	defer span.End()

	plan, ok := handler.ownedPlan(ctx, w, r)
	if !ok {
		return
	}

	var params UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Tracef("update plan, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	if err := params.validate(); err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(ctx, plan.ID, params); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("update plan %d: %s", plan.ID, err)
		pkg.WriteJSONError(w, "failed to update workout plan", http.StatusInternalServerError)
		return
	}

	handler.publicCache.Clear()

	updated, err := handler.repo.Get(ctx, plan.ID)
	if err != nil {
		log.Errorf("get updated plan %d: %s", plan.ID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	planJson, err := json.Marshal(updated)
	if err != nil {
		log.Errorf("marshal plan: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, planJson)
}

type DeletePlanResponse struct {
	DeletedID int `json:"deleted_id"`
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.delete")
	defer span.End()

	plan, ok := handler.ownedPlan(ctx, w, r)
	if !ok {
		return
	}

	if err := handler.repo.Delete(ctx, plan.ID); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete plan %d: %s", plan.ID, err)
		pkg.WriteJSONError(w, "failed to delete workout plan", http.StatusInternalServerError)
		return
	}

	handler.publicCache.Clear()

	respJson, err := json.Marshal(DeletePlanResponse{DeletedID: plan.ID})
	if err != nil {
		log.Errorf("marshal delete response: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandlePublicList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.publicList")
	defer span.End()

	skip, limit, err := paginationParams(r, publicListDefaultLimit, publicListMaxLimit)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	cacheKey := []byte(fmt.Sprintf("public-plans::%d::%d", skip, limit))
	if cachedBytes, err := handler.publicCache.Get(cacheKey); err == nil {
		log.Tracef("public plans [skip %d, limit %d] served from cache", skip, limit)
		pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, cachedBytes)
		return
	}

	listed, err := handler.repo.ListPublic(ctx, skip, limit)
	if err != nil {
		log.Errorf("list public plans: %s", err)
		pkg.WriteJSONError(w, "failed to list public workout plans", http.StatusInternalServerError)
		return
	}
	if listed == nil {
		listed = []WorkoutPlan{}
	}

	plansJson, err := json.Marshal(listed)
	if err != nil {
		log.Errorf("marshal public plans: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := handler.publicCache.Set(cacheKey, plansJson, publicListCacheExpireSeconds); err != nil {
		log.Errorf("failed to write public plans cache: %s", err)
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, plansJson)
}

func (handler *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.adminList")
	defer span.End()

	skip, limit, err := paginationParams(r, ownListDefaultLimit, ownListMaxLimit)
	if err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	listed, err := handler.repo.ListAll(ctx, skip, limit)
	if err != nil {
		log.Errorf("admin list plans: %s", err)
		pkg.WriteJSONError(w, "failed to list workout plans", http.StatusInternalServerError)
		return
	}
	if listed == nil {
		listed = []WorkoutPlan{}
	}

	plansJson, err := json.Marshal(listed)
	if err != nil {
		log.Errorf("marshal plans: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, plansJson)
}

func (handler *Handler) HandleAdminDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.adminDelete")
	defer span.End()

	planID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, planID); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("admin delete plan %d: %s", planID, err)
		pkg.WriteJSONError(w, "failed to delete workout plan", http.StatusInternalServerError)
		return
	}

	handler.publicCache.Clear()

	respJson, err := json.Marshal(DeletePlanResponse{DeletedID: planID})
	if err != nil {
		log.Errorf("marshal delete response: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// PurgePublicCache drops all cached public listings. Called from outside
// this package when plans disappear through other paths, e.g. a user
// deletion cascading over their plans.
func (handler *Handler) PurgePublicCache() {
	handler.publicCache.Clear()
}

// ownedPlan resolves the {id} path var to a plan visible to the caller.
// Both a missing plan and another user's plan come back as 404.
func (handler *Handler) ownedPlan(ctx context.Context, w http.ResponseWriter, r *http.Request) (*WorkoutPlan, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	planID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return nil, false
	}

	plan, err := handler.repo.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
			return nil, false
		}
		log.Errorf("get plan %d: %s", planID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	if plan.OwnerID != identity.ID && !identity.IsAdmin() {
		pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
		return nil, false
	}

	return plan, true
}

func paginationParams(r *http.Request, defaultLimit, maxLimit int) (skip, limit int, err error) {
	skip, limit = 0, defaultLimit
	if skipParam := r.URL.Query().Get("skip"); skipParam != "" {
		parsed, parseErr := strconv.Atoi(skipParam)
		if parseErr != nil || parsed < 0 {
			return 0, 0, errors.New("skip must be a non-negative number")
		}
		skip = parsed
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, parseErr := strconv.Atoi(limitParam)
		if parseErr != nil || parsed < 1 || parsed > maxLimit {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		limit = parsed
	}
	return skip, limit, nil
}
