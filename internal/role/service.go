package role

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	"github.com/frahmantamala/employee-management/internal/core/common/validation"
	roleDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/role"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
)

var permissionActionPattern = regexp.MustCompile(`^[a-z][a-z_]*:[a-z][a-z_]*$`)

type RepositoryAPI interface {
	ListRoles(ctx context.Context) ([]*roleDatamodel.Role, error)
	GetRole(ctx context.Context, id int64) (*roleDatamodel.Role, error)
	FindRoleByName(ctx context.Context, name string) (*roleDatamodel.Role, error)
	CreateRole(ctx context.Context, role *roleDatamodel.Role) error
	UpdateRole(ctx context.Context, role *roleDatamodel.Role) error
	DeleteRole(ctx context.Context, id int64) error
	PermissionActionsByRole(ctx context.Context, roleIDs []int64) (map[int64][]string, error)
	CountActiveAssignments(ctx context.Context, roleIDs []int64, day time.Time) (map[int64]int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	CountAssignments(ctx context.Context, roleID int64) (int64, error)

	ListPermissions(ctx context.Context) ([]*roleDatamodel.Permission, error)
	GetPermissionsByIDs(ctx context.Context, ids []int64) ([]*roleDatamodel.Permission, error)
	FindPermission(ctx context.Context, name, action string) (*roleDatamodel.Permission, error)
	CreatePermission(ctx context.Context, permission *roleDatamodel.Permission) error

	GetUserName(ctx context.Context, userID int64) (string, bool, error)
	FindOpenAssignment(ctx context.Context, userID, roleID int64) (*roleDatamodel.UserRole, error)
	CreateAssignment(ctx context.Context, assignment *roleDatamodel.UserRole) error
	CloseAssignment(ctx context.Context, id int64, validTo time.Time) error
	ListAssignments(ctx context.Context, userID int64) ([]*AssignmentRow, error)
}

type AuditRecorder interface {
	RecordAudit(ctx context.Context, in audit.Input) (*audit.Entry, error)
}

type Service struct {
	repo     RepositoryAPI
	tx       datastore.Transactor
	recorder AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryAPI, tx datastore.Transactor, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assign grants roleID to userID from today. A second open assignment of the
// same role is rejected with ErrRoleAlreadyGranted.
func (s *Service) Assign(ctx context.Context, userID, roleID int64, grantedBy *int64) (*Assignment, error) {
	if err := validation.Struct(AssignRoleDTO{UserID: userID, RoleID: roleID}); err != nil {
		return nil, err
	}

	var result *Assignment
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		userName, ok, err := s.repo.GetUserName(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return internal.ErrUserNotFound
		}

		role, err := s.repo.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role == nil {
			return internal.ErrRoleNotFound
		}

		open, err := s.repo.FindOpenAssignment(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if open != nil {
			return internal.ErrRoleAlreadyGranted
		}

		now := s.now()
		row := &roleDatamodel.UserRole{
			UserID:    userID,
			RoleID:    roleID,
			ValidFrom: dates.Day(now),
			GrantedBy: grantedBy,
		}
		if err := s.repo.CreateAssignment(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return internal.ErrRoleAlreadyGranted
			}
			return err
		}
		result = AssignmentFromRow(&AssignmentRow{UserRole: *row, RoleName: role.Name}, now)

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:      grantedBy,
			Action:       audit.ActionRoleAssigned,
			TargetUserID: &userID,
			TargetTable:  "user_roles",
			TargetID:     &row.ID,
			After:        result,
			Details:      fmt.Sprintf("Role %s assigned to %s", role.Name, userName),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to assign role", "user_id", userID, "role_id", roleID)
	}

	s.logger.Info("role assigned", "user_id", userID, "role_id", roleID, "assignment_id", result.ID)
	return result, nil
}

// Revoke closes the open assignment with valid_to = today. It returns nil
// without error when there is nothing to revoke.
func (s *Service) Revoke(ctx context.Context, userID, roleID int64, actor *int64) (*Assignment, error) {
	var result *Assignment
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		open, err := s.repo.FindOpenAssignment(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if open == nil {
			return nil
		}

		roleName := ""
		if role, err := s.repo.GetRole(ctx, roleID); err != nil {
			return err
		} else if role != nil {
			roleName = role.Name
		}

		now := s.now()
		before := AssignmentFromRow(&AssignmentRow{UserRole: *open, RoleName: roleName}, now)

		today := dates.Day(now)
		if err := s.repo.CloseAssignment(ctx, open.ID, today); err != nil {
			return err
		}
		closed := *open
		closed.ValidTo = &today
		result = AssignmentFromRow(&AssignmentRow{UserRole: closed, RoleName: roleName}, now)

		userName, _, err := s.repo.GetUserName(ctx, userID)
		if err != nil {
			return err
		}
		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:      actor,
			Action:       audit.ActionRoleRevoked,
			TargetUserID: &userID,
			TargetTable:  "user_roles",
			TargetID:     &open.ID,
			Before:       before,
			After:        result,
			Details:      fmt.Sprintf("Role %s revoked from %s", roleName, userName),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to revoke role", "user_id", userID, "role_id", roleID)
	}

	if result != nil {
		s.logger.Info("role revoked", "user_id", userID, "role_id", roleID, "assignment_id", result.ID)
	}
	return result, nil
}

// UserRoles lists the assignments in force today.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]*Assignment, error) {
	all, err := s.assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]*Assignment, 0, len(all))
	for _, a := range all {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

// AssignmentHistory lists every assignment of the user, newest first.
func (s *Service) AssignmentHistory(ctx context.Context, userID int64) ([]*Assignment, error) {
	return s.assignments(ctx, userID)
}

func (s *Service) assignments(ctx context.Context, userID int64) ([]*Assignment, error) {
	_, ok, err := s.repo.GetUserName(ctx, userID)
	if err != nil {
		return nil, s.fail(err, "failed to load user", "user_id", userID)
	}
	if !ok {
		return nil, internal.ErrUserNotFound
	}

	rows, err := s.repo.ListAssignments(ctx, userID)
	if err != nil {
		return nil, s.fail(err, "failed to load role assignments", "user_id", userID)
	}
	now := s.now()
	result := make([]*Assignment, 0, len(rows))
	for _, row := range rows {
		result = append(result, AssignmentFromRow(row, now))
	}
	return result, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, s.fail(err, "failed to list roles")
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	actions, err := s.repo.PermissionActionsByRole(ctx, ids)
	if err != nil {
		return nil, s.fail(err, "failed to list role permissions")
	}
	counts, err := s.repo.CountActiveAssignments(ctx, ids, dates.Day(s.now()))
	if err != nil {
		return nil, s.fail(err, "failed to count role assignments")
	}

	roles := make([]*Role, 0, len(rows))
	for _, r := range rows {
		role := FromDataModel(r)
		if a := actions[r.ID]; a != nil {
			role.Permissions = a
		}
		role.ActiveUsers = counts[r.ID]
		roles = append(roles, role)
	}
	return roles, nil
}

func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	role, err := s.loadRole(ctx, id)
	if err != nil {
		return nil, s.fail(err, "failed to load role", "role_id", id)
	}
	return role, nil
}

func (s *Service) loadRole(ctx context.Context, id int64) (*Role, error) {
	row, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, internal.ErrRoleNotFound
	}

	role := FromDataModel(row)
	actions, err := s.repo.PermissionActionsByRole(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if a := actions[id]; a != nil {
		role.Permissions = a
	}
	counts, err := s.repo.CountActiveAssignments(ctx, []int64{id}, dates.Day(s.now()))
	if err != nil {
		return nil, err
	}
	role.ActiveUsers = counts[id]
	return role, nil
}

func (s *Service) CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	dto.Description = strings.TrimSpace(dto.Description)
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	var created *Role
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureRoleNameFree(ctx, dto.Name, 0); err != nil {
			return err
		}

		row := &roleDatamodel.Role{Name: dto.Name, Description: dto.Description}
		if err := s.repo.CreateRole(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return roleNameTaken()
			}
			return err
		}

		if len(dto.PermissionIDs) > 0 {
			if _, err := s.replacePermissions(ctx, row.ID, dto.PermissionIDs); err != nil {
				return err
			}
		}

		role, err := s.loadRole(ctx, row.ID)
		if err != nil {
			return err
		}
		created = role

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionRoleCreated,
			TargetTable: "roles",
			TargetID:    &row.ID,
			After:       role,
			Details:     "Role created: " + role.Name,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to create role", "name", dto.Name)
	}

	s.logger.Info("role created", "role_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *Service) UpdateRole(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error) {
	if dto.Name != nil {
		name := strings.TrimSpace(*dto.Name)
		dto.Name = &name
	}
	if dto.Description != nil {
		description := strings.TrimSpace(*dto.Description)
		dto.Description = &description
	}
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	var updated *Role
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.loadRole(ctx, id)
		if err != nil {
			return err
		}

		row, err := s.repo.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if dto.Name != nil && *dto.Name != row.Name {
			if err := s.ensureRoleNameFree(ctx, *dto.Name, id); err != nil {
				return err
			}
			row.Name = *dto.Name
		}
		if dto.Description != nil {
			row.Description = *dto.Description
		}
		if err := s.repo.UpdateRole(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return roleNameTaken()
			}
			return err
		}

		if dto.PermissionIDs != nil {
			if _, err := s.SetRolePermissions(ctx, id, *dto.PermissionIDs, nil); err != nil {
				return err
			}
		}

		after, err := s.loadRole(ctx, id)
		if err != nil {
			return err
		}
		updated = after

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionRoleUpdated,
			TargetTable: "roles",
			TargetID:    &id,
			Before:      before,
			After:       after,
			Details:     "Role updated: " + after.Name,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to update role", "role_id", id)
	}

	s.logger.Info("role updated", "role_id", id)
	return updated, nil
}

// DeleteRole refuses while the role has any assignment, in force or closed.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.loadRole(ctx, id)
		if err != nil {
			return err
		}
		if before.ActiveUsers > 0 {
			return internal.ErrRoleInUse
		}

		// closed assignments are history and are never removed
		history, err := s.repo.CountAssignments(ctx, id)
		if err != nil {
			return err
		}
		if history > 0 {
			return internal.ErrRoleHasHistory
		}
		if err := s.repo.DeleteRole(ctx, id); err != nil {
			return err
		}

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionRoleDeleted,
			TargetTable: "roles",
			TargetID:    &id,
			Before:      before,
			Details:     "Role deleted: " + before.Name,
		})
		return err
	})
	if err != nil {
		return s.fail(err, "failed to delete role", "role_id", id)
	}

	s.logger.Info("role deleted", "role_id", id)
	return nil
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, actor *int64) (*Role, error) {
	var updated *Role
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.loadRole(ctx, roleID)
		if err != nil {
			return err
		}

		actions, err := s.replacePermissions(ctx, roleID, permissionIDs)
		if err != nil {
			return err
		}

		after := *before
		after.Permissions = actions
		updated = &after

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:     actor,
			Action:      audit.ActionRolePermissionsUpdated,
			TargetTable: "role_permissions",
			TargetID:    &roleID,
			Before:      map[string][]string{"permissions": before.Permissions},
			After:       map[string][]string{"permissions": actions},
			Details:     fmt.Sprintf("Permissions of role %s set to %d actions", before.Name, len(actions)),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to set role permissions", "role_id", roleID)
	}
	return updated, nil
}

func (s *Service) replacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]string, error) {
	unique := make([]int64, 0, len(permissionIDs))
	seen := make(map[int64]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	actions := []string{}
	if len(unique) > 0 {
		permissions, err := s.repo.GetPermissionsByIDs(ctx, unique)
		if err != nil {
			return nil, err
		}
		if len(permissions) != len(unique) {
			return nil, internal.ErrPermissionNotFound
		}
		for _, p := range permissions {
			actions = append(actions, p.Action)
		}
		sort.Strings(actions)
	}

	if err := s.repo.ReplaceRolePermissions(ctx, roleID, unique); err != nil {
		return nil, err
	}
	return actions, nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	rows, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, s.fail(err, "failed to list permissions")
	}
	permissions := make([]*Permission, 0, len(rows))
	for _, row := range rows {
		permissions = append(permissions, PermissionFromDataModel(row))
	}
	return permissions, nil
}

func (s *Service) CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	dto.Action = strings.ToLower(strings.TrimSpace(dto.Action))
	dto.Description = strings.TrimSpace(dto.Description)
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}
	if !permissionActionPattern.MatchString(dto.Action) {
		return nil, internal.NewValidationFieldError("action", "action must look like resource:verb", internal.ErrCodeInvalidFormat)
	}

	var created *Permission
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindPermission(ctx, dto.Name, dto.Action)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Action == dto.Action {
				return internal.NewConflictFieldError("action", "action already exists")
			}
			return internal.NewConflictFieldError("name", "name already exists")
		}

		row := &roleDatamodel.Permission{Name: dto.Name, Action: dto.Action, Description: dto.Description}
		if err := s.repo.CreatePermission(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return internal.NewConflictFieldError("action", "action already exists")
			}
			return err
		}
		created = PermissionFromDataModel(row)

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionPermissionCreated,
			TargetTable: "permissions",
			TargetID:    &row.ID,
			After:       created,
			Details:     "Permission created: " + row.Action,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to create permission", "action", dto.Action)
	}
	return created, nil
}

func (s *Service) ensureRoleNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.FindRoleByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return roleNameTaken()
	}
	return nil
}

func roleNameTaken() error {
	return internal.NewConflictFieldError("name", "name already exists")
}

// fail passes AppErrors through and turns anything else into an internal error.
func (s *Service) fail(err error, message string, kv ...any) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	s.logger.Error(message, append(kv, "error", err)...)
	return internal.NewInternalError(message, err)
}
