package stats

import (
	"context"

	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// ForOwner gathers the stats of a single user.
func (r *Repo) ForOwner(ctx context.Context, ownerID int) (_ *Stats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.stats.forOwner")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("owner.id", ownerID))

	var s Stats
	if err := r.db.QueryRow(
		ctx,
		`SELECT
			(SELECT COUNT(*) FROM workout_plan WHERE owner_id = $1),
			(SELECT COUNT(*) FROM exercise e
				JOIN workout_plan wp ON wp.id = e.workout_plan_id
				WHERE wp.owner_id = $1),
			(SELECT COUNT(*) FROM workout_plan WHERE owner_id = $1 AND is_public = TRUE);`,
		ownerID,
	).Scan(&s.TotalPlans, &s.TotalExercises, &s.PublicPlans); err != nil {
		return nil, err
	}
	return &s, nil
}

// System gathers the stats across all users.
func (r *Repo) System(ctx context.Context) (_ *Stats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.stats.system")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var s Stats
	if err := r.db.QueryRow(
		ctx,
		`SELECT
			(SELECT COUNT(*) FROM workout_plan),
			(SELECT COUNT(*) FROM exercise),
			(SELECT COUNT(*) FROM workout_plan WHERE is_public = TRUE);`,
	).Scan(&s.TotalPlans, &s.TotalExercises, &s.PublicPlans); err != nil {
		return nil, err
	}
	return &s, nil
}

// Admin gathers the system stats plus the per-role user breakdown.
func (r *Repo) Admin(ctx context.Context) (_ *AdminStats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.stats.admin")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	system, err := r.System(ctx)
	if err != nil {
		return nil, err
	}

	adminStats := &AdminStats{
		TotalPlans:     system.TotalPlans,
		TotalExercises: system.TotalExercises,
		PublicPlans:    system.PublicPlans,
		UsersByRole:    make(map[string]int),
	}

	rows, err := r.db.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		adminStats.UsersByRole[role] = count
		adminStats.TotalUsers += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return adminStats, nil
}
