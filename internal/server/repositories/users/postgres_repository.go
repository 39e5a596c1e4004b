package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/dmitrijs2005/videohub/internal/dbx"
	"github.com/dmitrijs2005/videohub/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at`

// SQLSTATE codes. 22P02 is raised for an id that is not a valid uuid.
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage,
		&u.PasswordHash, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: username or email already exists", common.ErrorConflict)
		case invalidTextRepresentation:
			return common.ErrorNotFound
		}
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (username, email, full_name, avatar, cover_image, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query,
		strings.ToLower(user.Username), strings.ToLower(user.Email), user.FullName,
		user.Avatar, user.CoverImage, user.PasswordHash)

	created, err := scanUser(row)
	if err != nil {
		return nil, mapError(err)
	}

	return created, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *PostgresRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE username = lower($1) OR email = lower($2)
		 ORDER BY created_at
		 LIMIT 1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, username, email))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *PostgresRepository) UpdateByID(ctx context.Context, id string, patch Patch, opts UpdateOptions) (*models.User, error) {
	if !opts.SkipValidation {
		if err := patch.Validate(); err != nil {
			return nil, err
		}
	}
	if patch.Empty() {
		return r.FindByID(ctx, id)
	}

	sets := make([]string, 0, 8)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.Username != nil {
		add("username", strings.ToLower(*patch.Username))
	}
	if patch.Email != nil {
		add("email", strings.ToLower(*patch.Email))
	}
	if patch.Avatar != nil {
		add("avatar", *patch.Avatar)
	}
	if patch.CoverImage != nil {
		add("cover_image", *patch.CoverImage)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.SetRefreshToken {
		add("refresh_token", patch.RefreshToken)
	}
	sets = append(sets, "updated_at = now()")

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + `
		 WHERE id = $1
		 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// SwapRefreshToken is a single conditional UPDATE; concurrent callers
// presenting the same expected value are serialized by the row lock and only
// the first one matches.
func (r *PostgresRepository) SwapRefreshToken(ctx context.Context, id string, expected, next *string) error {
	query :=
		`UPDATE users SET refresh_token = $3, updated_at = now()
		 WHERE id = $1 AND refresh_token IS NOT DISTINCT FROM $2::text`

	res, err := r.db.ExecContext(ctx, query, id, expected, next)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}
