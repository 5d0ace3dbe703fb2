package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

func (r *Repo) Add(ctx context.Context, user User) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO users (email, username, password_hash, full_name, role)
			VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at;`,
		user.Email, user.Username, user.PasswordHash, nullableString(user.FullName), user.Role,
	)
	if err != nil {
		return nil, uniqueViolationToSentinel(err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, uniqueViolationToSentinel(err)
	}

	if !rows.Next() {
		// unique violations on insert surface through the rows error
		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, uniqueViolationToSentinel(rowsErr)
		}
		return nil, errors.New("unexpected error [no rows next]")
	}
	if err := rows.Scan(&user.ID, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("user.id", user.ID))
	return &user, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, email, username, password_hash, full_name, role, created_at
			FROM users WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return oneUser(rows)
}

// GetByLogin finds a user by username or email (login forms accept both).
func (r *Repo) GetByLogin(ctx context.Context, login string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.getByLogin")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, email, username, password_hash, full_name, role, created_at
			FROM users WHERE username = $1 OR email = $1;`,
		login,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return oneUser(rows)
}

// List returns all users ordered by creation time, newest first.
func (r *Repo) List(ctx context.Context) (_ []User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, email, username, password_hash, full_name, role, created_at
			FROM users ORDER BY created_at DESC;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2users(rows)
}

// Update applies the non-nil fields of params to the user.
func (r *Repo) Update(ctx context.Context, id int, params UpdateParams) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	if params.IsEmpty() {
		return nil
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE users SET
			email = COALESCE($1, email),
			username = COALESCE($2, username),
			full_name = COALESCE($3, full_name),
			password_hash = COALESCE($4, password_hash)
		WHERE id = $5;`,
		params.Email, params.Username, params.FullName, params.PasswordHash, id,
	)
	if err != nil {
		return uniqueViolationToSentinel(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repo) UpdateRole(ctx context.Context, id int, role auth.Role) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.updateRole")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))
	span.SetAttributes(attribute.String("role", string(role)))

	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2;`, role, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user together with all owned plans and their
// exercises, in a single transaction.
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.delete")
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

	if _, err := tx.Exec(
		ctx,
		`DELETE FROM exercise WHERE workout_plan_id IN
			(SELECT id FROM workout_plan WHERE owner_id = $1);`,
		id,
	); err != nil {
		return fmt.Errorf("delete exercises: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workout_plan WHERE owner_id = $1;`, id); err != nil {
		return fmt.Errorf("delete workout plans: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return tx.Commit(ctx)
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users;`).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

func oneUser(rows pgx.Rows) (*User, error) {
	if err := rows.Err(); err != nil {
		return nil, err
	}

	found, err := rows2users(rows)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, ErrUserNotFound
	}
	return &found[0], nil
}

func rows2users(rows pgx.Rows) ([]User, error) {
	var found []User
	for rows.Next() {
		var u User
		var fullName *string
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.PasswordHash, &fullName, &u.Role, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		if fullName != nil {
			u.FullName = *fullName
		}
		found = append(found, u)
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

func uniqueViolationToSentinel(err error) error {
	if !pkg.IsUniqueViolationError(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return ErrEmailTaken
	case "users_username_key":
		return ErrUsernameTaken
	default:
		return err
	}
}
