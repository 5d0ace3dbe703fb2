package exercises

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/plans"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type exercisesRepo interface {
	Add(ctx context.Context, exercise Exercise) (*Exercise, error)
	Get(ctx context.Context, id int) (*Exercise, error)
	ListForPlan(ctx context.Context, planID int) ([]Exercise, error)
	Update(ctx context.Context, id int, params UpdateParams) error
	Delete(ctx context.Context, id int) error
}

// plansService resolves parent plans for ownership checks.
type plansService interface {
	Get(ctx context.Context, id int) (*plans.WorkoutPlan, error)
}

type Handler struct {
	repo           exercisesRepo
	plans          plansService
	metricsManager *metrics.Manager
}

func NewHandler(repo exercisesRepo, plansSvc plansService, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:           repo,
		plans:          plansSvc,
		metricsManager: metricsManager,
	}
}

type NewExerciseRequest struct {
	WorkoutPlanID int    `json:"workout_plan_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Sets          int    `json:"sets"`
	Reps          string `json:"reps"`
	RestSeconds   int    `json:"rest_seconds"`
	Order         int    `json:"order"`
}

func (req *NewExerciseRequest) validate() error {
	if err := validateName(req.Name); err != nil {
		return err
	}
	if req.Sets != 0 {
		if err := validateSets(req.Sets); err != nil {
			return err
		}
	}
	if err := validateReps(req.Reps); err != nil {
		return err
	}
	if err := validateRestSeconds(req.RestSeconds); err != nil {
		return err
	}
	return validateOrder(req.Order)
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.create")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req NewExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("create exercise, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	if err := req.validate(); err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !handler.planVisible(ctx, w, req.WorkoutPlanID, identity) {
		return
	}

	addedExercise, err := handler.repo.Add(ctx, Exercise{
		WorkoutPlanID: req.WorkoutPlanID,
		Name:          req.Name,
		Description:   req.Description,
		Sets:          req.Sets,
		Reps:          req.Reps,
		RestSeconds:   req.RestSeconds,
		Order:         req.Order,
	})
	if err != nil {
		if errors.Is(err, ErrWorkoutPlanMissing) {
			pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("create exercise for plan %d: %s", req.WorkoutPlanID, err)
		pkg.WriteJSONError(w, "failed to create exercise", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterExercisesCreated.Inc()
	log.Debugf("user %d added exercise %d [%s] to plan %d", identity.ID, addedExercise.ID, addedExercise.Name, req.WorkoutPlanID)

	exerciseJson, err := json.Marshal(addedExercise)
	if err != nil {
		log.Errorf("marshal exercise: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, exerciseJson, http.StatusCreated)
}

func (handler *Handler) HandleListForPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.listForPlan")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	planID, err := strconv.Atoi(mux.Vars(r)["planID"])
	if err != nil {
		pkg.WriteJSONError(w, "error, plan id NaN", http.StatusBadRequest)
		return
	}

	if !handler.planVisible(ctx, w, planID, identity) {
		return
	}

	listed, err := handler.repo.ListForPlan(ctx, planID)
	if err != nil {
		log.Errorf("list exercises for plan %d: %s", planID, err)
		pkg.WriteJSONError(w, "failed to list exercises", http.StatusInternalServerError)
		return
	}
	if listed == nil {
		listed = []Exercise{}
	}

	exercisesJson, err := json.Marshal(listed)
	if err != nil {
		log.Errorf("marshal exercises: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, exercisesJson)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.update")
	defer span.End()

	exercise, ok := handler.ownedExercise(ctx, w, r)
	if !ok {
		return
	}

	var params UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Tracef("update exercise, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	if err := params.validate(); err != nil {
		pkg.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(ctx, exercise.ID, params); err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			pkg.WriteJSONError(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("update exercise %d: %s", exercise.ID, err)
		pkg.WriteJSONError(w, "failed to update exercise", http.StatusInternalServerError)
		return
	}

	updated, err := handler.repo.Get(ctx, exercise.ID)
	if err != nil {
		log.Errorf("get updated exercise %d: %s", exercise.ID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	exerciseJson, err := json.Marshal(updated)
	if err != nil {
		log.Errorf("marshal exercise: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, exerciseJson)
}

type DeleteExerciseResponse struct {
	DeletedID int `json:"deleted_id"`
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.delete")
	defer span.End()

	exercise, ok := handler.ownedExercise(ctx, w, r)
	if !ok {
		return
	}

	if err := handler.repo.Delete(ctx, exercise.ID); err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			pkg.WriteJSONError(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete exercise %d: %s", exercise.ID, err)
		pkg.WriteJSONError(w, "failed to delete exercise", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(DeleteExerciseResponse{DeletedID: exercise.ID})
	if err != nil {
		log.Errorf("marshal delete response: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// planVisible checks the parent plan exists and belongs to the caller.
// A missing plan and a foreign plan both write the same 404.
func (handler *Handler) planVisible(ctx context.Context, w http.ResponseWriter, planID int, identity auth.Identity) bool {
	plan, err := handler.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
			return false
		}
		log.Errorf("get plan %d: %s", planID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return false
	}
	if plan.OwnerID != identity.ID && !identity.IsAdmin() {
		pkg.WriteJSONError(w, "workout plan not found", http.StatusNotFound)
		return false
	}
	return true
}

func (handler *Handler) ownedExercise(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Exercise, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	exerciseID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return nil, false
	}

	exercise, err := handler.repo.Get(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			pkg.WriteJSONError(w, "exercise not found", http.StatusNotFound)
			return nil, false
		}
		log.Errorf("get exercise %d: %s", exerciseID, err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	if !handler.planVisible(ctx, w, exercise.WorkoutPlanID, identity) {
		return nil, false
	}

	return exercise, true
}
