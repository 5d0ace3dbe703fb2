package exercises

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

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

func (r *Repo) Add(ctx context.Context, exercise Exercise) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO exercise (name, description, sets, reps, rest_seconds, ord, workout_plan_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at;`,
		exercise.Name, nullableString(exercise.Description), nullableInt(exercise.Sets),
		nullableString(exercise.Reps), exercise.RestSeconds, exercise.Order, exercise.WorkoutPlanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			// the parent plan can vanish between the ownership check and the insert
			if pkg.IsForeignKeyViolationError(rowsErr) {
				return nil, ErrWorkoutPlanMissing
			}
			return nil, rowsErr
		}
		return nil, errors.New("unexpected error [no rows next]")
	}
	if err := rows.Scan(&exercise.ID, &exercise.CreatedAt); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("exercise.id", exercise.ID))
	return &exercise, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, workout_plan_id, name, description, sets, reps, rest_seconds, ord, created_at
			FROM exercise WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return oneExercise(rows)
}

// ListForPlan returns the plan's exercises in their workout order.
func (r *Repo) ListForPlan(ctx context.Context, planID int) (_ []Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.listForPlan")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("plan.id", planID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, workout_plan_id, name, description, sets, reps, rest_seconds, ord, created_at
			FROM exercise
			WHERE workout_plan_id = $1
			ORDER BY ord ASC, id ASC;`,
		planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2exercises(rows)
}

// Update applies the non-nil fields of params to the exercise.
func (r *Repo) Update(ctx context.Context, id int, params UpdateParams) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	if params.IsEmpty() {
		return nil
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE exercise SET
			name = COALESCE($1, name),
			description = COALESCE($2, description),
			sets = COALESCE($3, sets),
			reps = COALESCE($4, reps),
			rest_seconds = COALESCE($5, rest_seconds),
			ord = COALESCE($6, ord)
		WHERE id = $7;`,
		params.Name, params.Description, params.Sets,
		params.Reps, params.RestSeconds, params.Order, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExerciseNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM exercise WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExerciseNotFound
	}
	return nil
}

func oneExercise(rows pgx.Rows) (*Exercise, error) {
	if err := rows.Err(); err != nil {
		return nil, err
	}

	found, err := rows2exercises(rows)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, ErrExerciseNotFound
	}
	return &found[0], nil
}

func rows2exercises(rows pgx.Rows) ([]Exercise, error) {
	var found []Exercise
	for rows.Next() {
		var e Exercise
		var description, reps *string
		var sets, restSeconds *int
		if err := rows.Scan(
			&e.ID, &e.WorkoutPlanID, &e.Name, &description, &sets,
			&reps, &restSeconds, &e.Order, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if description != nil {
			e.Description = *description
		}
		if sets != nil {
			e.Sets = *sets
		}
		if reps != nil {
			e.Reps = *reps
		}
		if restSeconds != nil {
			e.RestSeconds = *restSeconds
		}
		found = append(found, e)
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
