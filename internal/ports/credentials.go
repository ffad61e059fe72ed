package ports

import (
	"context"
	"time"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
)

// IdentityStore is the narrow slice of the credential store the session
// manager needs: a read by id and the last-login bookkeeping write.
// Missing users are reported with an errors.IsNotFound error.
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// CredentialStore persists user identity records.
type CredentialStore interface {
	IdentityStore
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	FindOrCreateFromProvider(ctx context.Context, ident domainauth.Identity) (*model.User, bool, error)
	Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error)
	UpdateRoles(ctx context.Context, id string, roles []domainauth.Role) (*model.User, error)
	SetActive(ctx context.Context, id string, active bool) (*model.User, error)
	List(ctx context.Context, opts model.UserListOptions) ([]*model.User, error)
	Search(ctx context.Context, query string, limit int) ([]*model.User, error)
}

// AuditLog records security-relevant events. Writers treat failures as
// best-effort.
type AuditLog interface {
	Record(ctx context.Context, ev model.AuditEvent) error
	List(ctx context.Context, kind model.AuditKind, limit int) ([]model.AuditEvent, error)
}
