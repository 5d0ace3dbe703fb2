package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
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

func (r *Repo) Add(ctx context.Context, plan WorkoutPlan) (_ *WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO workout_plan (title, description, difficulty, duration_weeks, is_public, owner_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at;`,
		plan.Title, nullableString(plan.Description), nullableString(plan.Difficulty),
		nullableInt(plan.DurationWeeks), plan.IsPublic, plan.OwnerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, rowsErr
		}
		return nil, errors.New("unexpected error [no rows next]")
	}
	if err := rows.Scan(&plan.ID, &plan.CreatedAt); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("plan.id", plan.ID))
	return &plan, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, owner_id, title, description, difficulty, duration_weeks, is_public, created_at, updated_at
			FROM workout_plan WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return onePlan(rows)
}

// ListForOwner returns the owner's plans, newest first.
func (r *Repo) ListForOwner(ctx context.Context, ownerID, skip, limit int) (_ []WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.listForOwner")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("owner.id", ownerID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, owner_id, title, description, difficulty, duration_weeks, is_public, created_at, updated_at
			FROM workout_plan
			WHERE owner_id = $1
			ORDER BY created_at DESC
			OFFSET $2 LIMIT $3;`,
		ownerID, skip, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2plans(rows)
}

// ListAll returns plans of all owners, newest first.
func (r *Repo) ListAll(ctx context.Context, skip, limit int) (_ []WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.listAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, owner_id, title, description, difficulty, duration_weeks, is_public, created_at, updated_at
			FROM workout_plan
			ORDER BY created_at DESC
			OFFSET $1 LIMIT $2;`,
		skip, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2plans(rows)
}

// ListPublic returns plans marked public, newest first.
func (r *Repo) ListPublic(ctx context.Context, skip, limit int) (_ []WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.listPublic")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, owner_id, title, description, difficulty, duration_weeks, is_public, created_at, updated_at
			FROM workout_plan
			WHERE is_public = TRUE
			ORDER BY created_at DESC
			OFFSET $1 LIMIT $2;`,
		skip, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2plans(rows)
}

// Update applies the non-nil fields of params and stamps updated_at.
func (r *Repo) Update(ctx context.Context, id int, params UpdateParams) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	if params.IsEmpty() {
		return nil
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workout_plan SET
			title = COALESCE($1, title),
			description = COALESCE($2, description),
			difficulty = COALESCE($3, difficulty),
			duration_weeks = COALESCE($4, duration_weeks),
			is_public = COALESCE($5, is_public),
			updated_at = now()
		WHERE id = $6;`,
		params.Title, params.Description, params.Difficulty,
		params.DurationWeeks, params.IsPublic, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// Delete removes the plan and its exercises in a single transaction.
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM exercise WHERE workout_plan_id = $1;`, id); err != nil {
		return fmt.Errorf("delete exercises: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM workout_plan WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete workout plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}

	return tx.Commit(ctx)
}

func onePlan(rows pgx.Rows) (*WorkoutPlan, error) {
	if err := rows.Err(); err != nil {
		return nil, err
	}

	found, err := rows2plans(rows)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, ErrPlanNotFound
	}
	return &found[0], nil
}

func rows2plans(rows pgx.Rows) ([]WorkoutPlan, error) {
	var found []WorkoutPlan
	for rows.Next() {
		var p WorkoutPlan
		var description, difficulty *string
		var durationWeeks *int
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Title, &description, &difficulty,
			&durationWeeks, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if description != nil {
			p.Description = *description
		}
		if difficulty != nil {
			p.Difficulty = *difficulty
		}
		if durationWeeks != nil {
			p.DurationWeeks = *durationWeeks
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
