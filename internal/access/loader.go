package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrPrincipalNotFound = errors.New("principal not found")

// Identity is the user row a principal is built from.
type Identity struct {
	UserID       int64
	Email        string
	Name         string
	Status       string
	DepartmentID *int64
}

type RepositoryAPI interface {
	GetIdentity(ctx context.Context, userID int64) (*Identity, error)
	ListGrants(ctx context.Context, userID int64) ([]Grant, error)
	PermissionActions(ctx context.Context, roleIDs []int64) ([]string, error)
}

// Loader assembles principals from the store.
type Loader struct {
	repo RepositoryAPI
}

func NewLoader(repo RepositoryAPI) *Loader {
	return &Loader{repo: repo}
}

// Load builds the principal for userID with the grants in force at `at`.
func (l *Loader) Load(ctx context.Context, userID int64, at time.Time) (*Principal, error) {
	identity, err := l.repo.GetIdentity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if identity == nil {
		return nil, ErrPrincipalNotFound
	}

	grants, err := l.repo.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}

	active := make([]Grant, 0, len(grants))
	roleIDs := make([]int64, 0, len(grants))
	seen := make(map[int64]bool)
	for _, g := range grants {
		if !g.ActiveAt(at) {
			continue
		}
		active = append(active, g)
		if !seen[g.RoleID] {
			seen[g.RoleID] = true
			roleIDs = append(roleIDs, g.RoleID)
		}
	}

	var permissions []string
	if len(roleIDs) > 0 {
		actions, err := l.repo.PermissionActions(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("load permissions: %w", err)
		}
		permissions = dedupe(actions)
	}
	if permissions == nil {
		permissions = []string{}
	}

	return &Principal{
		UserID:       identity.UserID,
		Email:        identity.Email,
		Name:         identity.Name,
		Status:       identity.Status,
		DepartmentID: identity.DepartmentID,
		Roles:        active,
		Permissions:  permissions,
	}, nil
}

func dedupe(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
