package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
)

const userColumns = `id, name, email, photo, role, password_hash,
	password_changed_at, reset_token_hash, reset_token_expires, active,
	created_at, updated_at`

// userListColumns is the allow-list for filtering and sorting users.
var userListColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"created_at": "created_at",
}

// UserRepo is the sqlite credential store. Every lookup is scoped to
// active users; deactivated accounts behave as absent.
type UserRepo struct {
	store *Store
}

// NewUserRepo creates the user repository over the shared store.
func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	var (
		changedAt    sql.NullTime
		resetHash    sql.NullString
		resetExpires sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Photo,
		&user.Role,
		&user.PasswordHash,
		&changedAt,
		&resetHash,
		&resetExpires,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if changedAt.Valid {
		user.PasswordChangedAt = &changedAt.Time
	}
	if resetHash.Valid {
		user.ResetTokenHash = resetHash.String
	}
	if resetExpires.Valid {
		user.ResetTokenExpires = &resetExpires.Time
	}
	return user, nil
}

// List returns active users matching the directive.
func (r *UserRepo) List(ctx context.Context, d *query.Directive) ([]models.User, error) {
	where, args, err := d.Where(userListColumns)
	if err != nil {
		return nil, err
	}
	order, err := d.OrderBy(userListColumns)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + userColumns + ` FROM users WHERE active = 1`
	if where != "" {
		q += " AND " + where
	}
	q += " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, d.Limit, d.Offset())

	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// Get retrieves an active user by id.
func (r *UserRepo) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND active = 1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves an active user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND active = 1`,
		models.NormalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// Create validates and inserts a new user. The caller is responsible
// for having hashed the password.
func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Email = models.NormalizeEmail(user.Email)
	user.Active = true
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := user.Validate(); err != nil {
		return err
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, photo, role, password_hash,
			password_changed_at, reset_token_hash, reset_token_expires,
			active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.Photo, user.Role,
		user.PasswordHash, user.PasswordChangedAt, nullString(user.ResetTokenHash),
		user.ResetTokenExpires, user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return mapUnique(err, user.Email)
	}
	return nil
}

// Update applies a partial update of the profile fields. Password and
// reset-token fields are deliberately not patchable here. Role is
// patchable, only checked for being a known role: keeping role changes
// admin-only is the job of the route gating, not the repository.
func (r *UserRepo) Update(ctx context.Context, id string, patch map[string]any) (*models.User, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "name":
			user.Name = s
		case "email":
			user.Email = models.NormalizeEmail(s)
		case "photo":
			user.Photo = s
		case "role":
			user.Role = models.Role(s)
		}
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	user.UpdatedAt = time.Now()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, photo = ?, role = ?, updated_at = ?
		WHERE id = ? AND active = 1`,
		user.Name, user.Email, user.Photo, user.Role, user.UpdatedAt, id)
	if err != nil {
		return nil, mapUnique(err, user.Email)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

// Delete removes a user record entirely.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Save persists the full record including credential fields. Used by
// the password-change paths where validation has already run.
func (r *UserRepo) Save(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, photo = ?, role = ?,
			password_hash = ?, password_changed_at = ?,
			reset_token_hash = ?, reset_token_expires = ?, updated_at = ?
		WHERE id = ?`,
		user.Name, user.Email, user.Photo, user.Role,
		user.PasswordHash, user.PasswordChangedAt,
		nullString(user.ResetTokenHash), user.ResetTokenExpires,
		user.UpdatedAt, user.ID)
	if err != nil {
		return mapUnique(err, user.Email)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetResetToken stores only the token's hash plus its expiry.
func (r *UserRepo) SetResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE users SET reset_token_hash = ?, reset_token_expires = ?, updated_at = ?
		WHERE id = ? AND active = 1`,
		tokenHash, expires, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearResetToken removes the stored hash and expiry, e.g. after a
// failed delivery of the reset mail.
func (r *UserRepo) ClearResetToken(ctx context.Context, userID string) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE users SET reset_token_hash = NULL, reset_token_expires = NULL, updated_at = ?
		WHERE id = ?`, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}
	return nil
}

// GetByResetTokenHash finds the active user holding the given hash.
func (r *UserRepo) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = ? AND active = 1`,
		tokenHash)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoResetToken
		}
		return nil, fmt.Errorf("failed to get user by reset token: %w", err)
	}
	return user, nil
}

// ConsumeResetToken is a compare-and-swap: it only succeeds while the
// stored hash still matches, so a concurrent second consumption of the
// same token sees zero rows and fails.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, changedAt time.Time) error {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_changed_at = ?,
			reset_token_hash = NULL, reset_token_expires = NULL, updated_at = ?
		WHERE id = ? AND reset_token_hash = ? AND active = 1`,
		passwordHash, changedAt, time.Now(), userID, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNoResetToken
	}
	return nil
}

// Deactivate flips the active flag off without deleting the record.
func (r *UserRepo) Deactivate(ctx context.Context, userID string) error {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE users SET active = 0, updated_at = ? WHERE id = ? AND active = 1`,
		time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
