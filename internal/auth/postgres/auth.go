package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/frahmantamala/employee-management/internal/auth"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// FindCredentialByEmail matches the email case-insensitively. Unlike a
// profile lookup it returns the row whatever the account status is, so the
// caller can tell a blocked account from an unknown one.
func (r *Repository) FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	query := `SELECT id, email, password_hash, status FROM users WHERE LOWER(email) = ? LIMIT 1`

	var cred auth.Credential
	row := datastore.Conn(ctx, r.db).Raw(query, strings.ToLower(strings.TrimSpace(email))).Row()
	if err := row.Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}
