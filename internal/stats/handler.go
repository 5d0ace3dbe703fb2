package stats

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	log "github.com/sirupsen/logrus"
)

type statsRepo interface {
	ForOwner(ctx context.Context, ownerID int) (*Stats, error)
	System(ctx context.Context) (*Stats, error)
	Admin(ctx context.Context) (*AdminStats, error)
}

type Handler struct {
	repo statsRepo
}

func NewHandler(repo statsRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.get")
	defer span.End()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var gathered *Stats
	var err error
	if identity.IsAdmin() {
		gathered, err = handler.repo.System(ctx)
	} else {
		gathered, err = handler.repo.ForOwner(ctx, identity.ID)
	}
	if err != nil {
		log.Errorf("gather stats for user %d: %s", identity.ID, err)
		pkg.WriteJSONError(w, "failed to gather stats", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(gathered)
	if err != nil {
		log.Errorf("marshal stats: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statsJson)
}

func (handler *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.admin")
	defer span.End()

	gathered, err := handler.repo.Admin(ctx)
	if err != nil {
		log.Errorf("gather admin stats: %s", err)
		pkg.WriteJSONError(w, "failed to gather stats", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(gathered)
	if err != nil {
		log.Errorf("marshal admin stats: %s", err)
		pkg.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statsJson)
}
