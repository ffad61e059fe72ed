package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wallmag/wallmag-api/internal/data/pgxutil"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
)

// UserRepo provides database operations for users. It is the credential store
// consulted by the session manager on every validation.
type UserRepo struct {
	DB  *sql.DB
	now func() time.Time
}

// NewUserRepo creates a UserRepo on the system clock.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, now: time.Now}
}

// NewUserRepoWithClock creates a UserRepo whose default timestamps come from now.
func NewUserRepoWithClock(db *sql.DB, now func() time.Time) *UserRepo {
	return &UserRepo{DB: db, now: now}
}

// userRow mirrors the users table for pgx.RowToStructByName.
type userRow struct {
	ID          string     `db:"id"`
	GoogleID    *string    `db:"google_id"`
	Email       string     `db:"email"`
	Name        string     `db:"name"`
	PictureURL  *string    `db:"picture_url"`
	Roles       []string   `db:"roles"`
	Active      bool       `db:"active"`
	LastLoginAt *time.Time `db:"last_login_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

type upsertRow struct {
	userRow
	Inserted bool `db:"inserted"`
}

func (r userRow) toModel() *model.User {
	u := &model.User{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		Roles:       domainauth.RolesFromStrings(r.Roles),
		Active:      r.Active,
		LastLoginAt: r.LastLoginAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.GoogleID != nil {
		u.GoogleID = *r.GoogleID
	}
	if r.PictureURL != nil {
		u.PictureURL = *r.PictureURL
	}
	return u
}

const userColumns = `id, google_id, email, name, picture_url, roles, active, last_login_at, created_at, updated_at`

// SQL query constants for static queries.
const (
	userGetByIDQuery = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	userGetByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	userGetByGoogleIDQuery = `SELECT ` + userColumns + ` FROM users WHERE google_id = $1`

	// The ON CONFLICT branch links an existing email-only account to the provider
	// subject; an already linked subject is never overwritten.
	userUpsertFromProviderQuery = `
		INSERT INTO users (email, google_id, name, picture_url, roles)
		VALUES ($1, $2, $3, NULLIF($4, ''), ARRAY['user']::TEXT[])
		ON CONFLICT (email) DO UPDATE SET
			google_id   = COALESCE(users.google_id, EXCLUDED.google_id),
			name        = CASE WHEN users.name = '' THEN EXCLUDED.name ELSE users.name END,
			picture_url = COALESCE(EXCLUDED.picture_url, users.picture_url)
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted`

	userInsertQuery = `
		INSERT INTO users (email, name, roles)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	userUpdateRolesQuery = `UPDATE users SET roles = $2 WHERE id = $1 RETURNING ` + userColumns

	userSetActiveQuery = `UPDATE users SET active = $2 WHERE id = $1 RETURNING ` + userColumns

	userUpdateLastLoginQuery = `UPDATE users SET last_login_at = $2 WHERE id = $1`

	userListQuery = `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1::TEXT[] IS NULL OR roles && $1::TEXT[])
		  AND ($2 OR active)
		ORDER BY email ASC
		LIMIT $3`

	userSearchQuery = `
		SELECT ` + userColumns + `
		FROM users
		WHERE active AND (email ILIKE $1 ESCAPE '\' OR name ILIKE $1 ESCAPE '\')
		ORDER BY email ASC
		LIMIT $2`
)

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	return r.getOne(ctx, userGetByIDQuery, id)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, userGetByEmailQuery, strings.ToLower(strings.TrimSpace(email)))
}

// FindOrCreateFromProvider resolves the user for an IdP identity: by provider
// subject first, then by email (linking the subject), else a new user with the
// default role set. created reports whether a row was inserted.
func (r *UserRepo) FindOrCreateFromProvider(
	ctx context.Context,
	ident domainauth.Identity,
) (user *model.User, created bool, err error) {
	if ident.Subject == "" {
		return nil, false, apperrors.ValidationField("subject", "provider subject is required")
	}
	email, err := model.NormalizeEmail(ident.Email)
	if err != nil {
		return nil, false, apperrors.ValidationField("email", err.Error())
	}

	existing, err := r.getOne(ctx, userGetByGoogleIDQuery, ident.Subject)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	out, err := pgxutil.QueryOne[upsertRow](ctx, r.DB, userUpsertFromProviderQuery,
		email, ident.Subject, strings.TrimSpace(ident.Name), strings.TrimSpace(ident.PictureURL))
	if err != nil {
		return nil, false, apperrors.MapDBError(err)
	}
	return out.toModel(), out.Inserted, nil
}

// Create inserts a user outside the OAuth flow.
func (r *UserRepo) Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid user")
	}
	return r.getOne(ctx, userInsertQuery, req.Email, req.Name, domainauth.RoleStrings(req.Roles))
}

// UpdateRoles replaces the role set of a user in a single statement.
func (r *UserRepo) UpdateRoles(ctx context.Context, id string, roles []domainauth.Role) (*model.User, error) {
	if err := domainauth.ValidateRoleSet(roles); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid role set")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	return r.getOne(ctx, userUpdateRolesQuery, id, domainauth.RoleStrings(roles))
}

// SetActive activates or deactivates a user.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	return r.getOne(ctx, userSetActiveQuery, id, active)
}

// UpdateLastLogin records a successful sign-in.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if at.IsZero() {
		at = r.now()
	}
	affected, err := pgxutil.Exec(ctx, r.DB, userUpdateLastLoginQuery, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", apperrors.MapDBError(err))
	}
	if affected == 0 {
		return apperrors.NotFoundf("user %s not found", id)
	}
	return nil
}

// List returns users filtered by role membership and active flag.
func (r *UserRepo) List(ctx context.Context, opts model.UserListOptions) ([]*model.User, error) {
	opts.Normalize()
	var roles []string
	if len(opts.Roles) > 0 {
		roles = domainauth.RoleStrings(opts.Roles)
	}
	return r.getMany(ctx, userListQuery, roles, opts.IncludeInactive, opts.Limit)
}

// Search matches active users whose email or name contains query.
func (r *UserRepo) Search(ctx context.Context, query string, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return r.getMany(ctx, userSearchQuery, pattern, limit)
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	row, err := pgxutil.QueryOne[userRow](ctx, r.DB, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return row.toModel(), nil
}

func (r *UserRepo) getMany(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := pgxutil.QueryAll[userRow](ctx, r.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", apperrors.MapDBError(err))
	}
	res := make([]*model.User, len(rows))
	for i := range rows {
		res[i] = rows[i].toModel()
	}
	return res, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
