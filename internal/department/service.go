package department

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
)

type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*departmentDatamodel.Department, error)
	GetByID(ctx context.Context, id int64) (*departmentDatamodel.Department, error)
	FindByCode(ctx context.Context, code string) (*departmentDatamodel.Department, error)
	FindByName(ctx context.Context, name string) (*departmentDatamodel.Department, error)
	UserCounts(ctx context.Context) (map[int64]int64, error)
	CountUsers(ctx context.Context, id int64) (int64, error)
	Create(ctx context.Context, department *departmentDatamodel.Department) error
	Update(ctx context.Context, department *departmentDatamodel.Department) error
	Delete(ctx context.Context, id int64) error
}

type AuditRecorder interface {
	RecordAudit(ctx context.Context, in audit.Input) (*audit.Entry, error)
}

type Service struct {
	repo     RepositoryAPI
	tx       datastore.Transactor
	recorder AuditRecorder
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, tx datastore.Transactor, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		recorder: recorder,
		logger:   logger,
	}
}

func (s *Service) List(ctx context.Context) ([]*Department, error) {
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get departments from repository", "error", err)
		return nil, internal.NewInternalError("failed to list departments", err)
	}
	counts, err := s.repo.UserCounts(ctx)
	if err != nil {
		s.logger.Error("failed to count department users", "error", err)
		return nil, internal.NewInternalError("failed to list departments", err)
	}

	departments := make([]*Department, 0, len(rows))
	for _, row := range rows {
		d := FromDataModel(row)
		d.UserCount = counts[row.ID]
		departments = append(departments, d)
	}
	s.logger.Debug("retrieved departments", "count", len(departments))
	return departments, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Department, error) {
	d, err := s.load(ctx, id)
	if err != nil {
		return nil, s.fail(err, "failed to get department", "department_id", id)
	}
	return d, nil
}

func (s *Service) load(ctx context.Context, id int64) (*Department, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, internal.ErrDepartmentNotFound
	}
	d := FromDataModel(row)
	d.UserCount, err = s.repo.CountUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Create stores a department after the case-insensitive code and name checks.
func (s *Service) Create(ctx context.Context, dto CreateDepartmentDTO) (*Department, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	var created *Department
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureUnique(ctx, &dto.Code, &dto.Name, 0); err != nil {
			return err
		}

		row := ToDataModel(NewDepartment(dto.Name, dto.Code, dto.Description))
		if err := s.repo.Create(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return internal.NewConflictFieldError("code", "code already exists")
			}
			return err
		}
		created = FromDataModel(row)

		_, err := s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionDepartmentCreated,
			TargetTable: "departments",
			TargetID:    &row.ID,
			After:       created,
			Details:     "Department created: " + created.Name + " (" + created.Code + ")",
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to create department", "code", dto.Code)
	}

	s.logger.Info("department created", "department_id", created.ID, "code", created.Code)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateDepartmentDTO) (*Department, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	var updated *Department
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.ensureUnique(ctx, dto.Code, dto.Name, id); err != nil {
			return err
		}

		after := *before
		if dto.Name != nil {
			after.Name = *dto.Name
		}
		if dto.Code != nil {
			after.Code = *dto.Code
		}
		if dto.Description != nil {
			after.Description = *dto.Description
		}

		row := ToDataModel(&after)
		if err := s.repo.Update(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return internal.NewConflictFieldError("code", "code already exists")
			}
			return err
		}
		after.UpdatedAt = row.UpdatedAt
		updated = &after

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionDepartmentUpdated,
			TargetTable: "departments",
			TargetID:    &id,
			Before:      before,
			After:       updated,
			Details:     "Department updated: " + updated.Name,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to update department", "department_id", id)
	}

	s.logger.Info("department updated", "department_id", id)
	return updated, nil
}

// Delete is refused while any user still references the department.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if before.UserCount > 0 {
			return internal.ErrDepartmentInUse
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			Action:      audit.ActionDepartmentDeleted,
			TargetTable: "departments",
			TargetID:    &id,
			Before:      before,
			Details:     "Department deleted: " + before.Name + " (" + before.Code + ")",
		})
		return err
	})
	if err != nil {
		return s.fail(err, "failed to delete department", "department_id", id)
	}

	s.logger.Info("department deleted", "department_id", id)
	return nil
}

func (s *Service) ensureUnique(ctx context.Context, code, name *string, selfID int64) error {
	if code != nil {
		existing, err := s.repo.FindByCode(ctx, *code)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return internal.NewConflictFieldError("code", "code already exists")
		}
	}
	if name != nil {
		existing, err := s.repo.FindByName(ctx, *name)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return internal.NewConflictFieldError("name", "name already exists")
		}
	}
	return nil
}

func (s *Service) fail(err error, message string, kv ...any) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	s.logger.Error(message, append(kv, "error", err)...)
	return internal.NewInternalError(message, err)
}
