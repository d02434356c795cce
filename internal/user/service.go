package user

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/core/common/dates"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/core/events"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

type RepositoryAPI interface {
	List(ctx context.Context, filter Filter) ([]*Row, error)
	GetByID(ctx context.Context, id int64) (*Row, error)
	FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	FindByEmployeeNumber(ctx context.Context, number string) (*userDatamodel.User, error)
	DepartmentExists(ctx context.Context, id int64) (bool, error)
	Create(ctx context.Context, user *userDatamodel.User) error
	Update(ctx context.Context, user *userDatamodel.User) error
	// UpdateStatus moves id from one status to another and reports false when
	// the row no longer has status from.
	UpdateStatus(ctx context.Context, id int64, from, to string) (bool, error)
	Delete(ctx context.Context, id int64) error

	GetEmployment(ctx context.Context, userID int64) (*userDatamodel.Employment, error)
	SaveEmployment(ctx context.Context, employment *userDatamodel.Employment) error
	DeleteEmployment(ctx context.Context, userID int64) (int64, error)
	DeleteRoleAssignments(ctx context.Context, userID int64) (int64, error)
	ActiveRoleNames(ctx context.Context, userIDs []int64, day time.Time) (map[int64][]string, error)

	PendingStartedBy(ctx context.Context, day time.Time) ([]int64, error)
	ContractsEndedBefore(ctx context.Context, day time.Time) ([]int64, error)
}

type AuditRecorder interface {
	RecordAudit(ctx context.Context, in audit.Input) (*audit.Entry, error)
}

type Config struct {
	BCryptCost  int
	SweepOnRead bool
}

type Service struct {
	repo     RepositoryAPI
	tx       datastore.Transactor
	recorder AuditRecorder
	bus      events.Publisher
	metrics  *metrics.Registry
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(repo RepositoryAPI, tx datastore.Transactor, recorder AuditRecorder, bus events.Publisher, cfg Config, logger *slog.Logger) *Service {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:     repo,
		tx:       tx,
		recorder: recorder,
		bus:      bus,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithMetrics(m *metrics.Registry) *Service {
	s.metrics = m
	return s
}

// List returns users matching filter. With sweep-on-read enabled the lifecycle
// checks run first so the listing reflects today's statuses.
func (s *Service) List(ctx context.Context, filter Filter) ([]*User, error) {
	if s.cfg.SweepOnRead {
		if _, err := s.RunAllChecks(ctx, s.now()); err != nil {
			s.logger.Warn("lifecycle checks before listing failed", "error", err)
		}
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return nil, internal.NewInternalError("failed to list users", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	roles, err := s.repo.ActiveRoleNames(ctx, ids, dates.Day(s.now()))
	if err != nil {
		s.logger.Error("failed to load user roles", "error", err)
		return nil, internal.NewInternalError("failed to list users", err)
	}

	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		u := FromRow(row)
		if names, ok := roles[row.ID]; ok {
			u.Roles = names
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, s.fail(err, "failed to get user", "user_id", id)
	}
	return u, nil
}

// load reads a user with department name, employment and active role names.
func (s *Service) load(ctx context.Context, id int64) (*User, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, internal.ErrUserNotFound
	}
	u := FromRow(row)

	employment, err := s.repo.GetEmployment(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Employment = EmploymentFromDataModel(employment)

	roles, err := s.repo.ActiveRoleNames(ctx, []int64{id}, dates.Day(s.now()))
	if err != nil {
		return nil, err
	}
	if names, ok := roles[id]; ok {
		u.Roles = names
	}
	return u, nil
}

// Create stores the user, its employment record and the user_created audit
// entry in one transaction. Without an explicit status the user starts active
// when the start date is today or earlier and pending otherwise.
func (s *Service) Create(ctx context.Context, dto CreateUserDTO, actor *int64) (*User, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	today := dates.Day(s.now())
	start := today
	if dto.StartDate != "" {
		start, _ = dates.Parse(dto.StartDate)
	}
	var end *time.Time
	if dto.EndDate != "" {
		e, _ := dates.Parse(dto.EndDate)
		end = &e
	}

	status := StatusPending
	if dates.OnOrBefore(start, today) {
		status = StatusActive
	}
	if dto.Status != "" {
		status = Status(dto.Status)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.cfg.BCryptCost)
	if err != nil {
		return nil, s.fail(err, "failed to hash password")
	}

	var created *User
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ensureUnique(ctx, &dto.Email, &dto.EmployeeNumber, 0); err != nil {
			return err
		}
		if err := s.ensureDepartment(ctx, dto.DepartmentID); err != nil {
			return err
		}

		row := &userDatamodel.User{
			EmployeeNumber: dto.EmployeeNumber,
			Name:           dto.Name,
			Email:          dto.Email,
			PasswordHash:   string(hash),
			Status:         string(status),
			DepartmentID:   dto.DepartmentID,
		}
		if err := s.repo.Create(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return internal.NewConflictFieldError("email", "email already exists")
			}
			return err
		}

		employment := &userDatamodel.Employment{
			UserID:       row.ID,
			StartDate:    start,
			EndDate:      end,
			ContractType: dto.ContractType,
		}
		if err := s.repo.SaveEmployment(ctx, employment); err != nil {
			return err
		}

		created, err = s.load(ctx, row.ID)
		if err != nil {
			return err
		}

		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:      actor,
			Action:       audit.ActionUserCreated,
			TargetUserID: &row.ID,
			TargetTable:  "users",
			TargetID:     &row.ID,
			After:        created.snapshot(),
			Details:      "User created: " + created.Name + " (" + created.Email + ")",
		})
		return err
	})
	if err != nil {
		return nil, s.fail(err, "failed to create user", "email", dto.Email)
	}

	s.logger.Info("user created", "user_id", created.ID, "status", created.Status)
	return created, nil
}

// Update applies profile changes and an optional status change. A status
// change goes through the lifecycle table and picks the audit action of the
// transition; plain profile edits are audited as user_updated.
func (s *Service) Update(ctx context.Context, id int64, dto UpdateUserDTO, actor *int64) (*User, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	var hash []byte
	if dto.Password != nil {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(*dto.Password), s.cfg.BCryptCost)
		if err != nil {
			return nil, s.fail(err, "failed to hash password")
		}
	}

	var (
		updated *User
		from    Status
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		from = before.Status

		to := before.Status
		reason := ""
		if dto.Status != nil && Status(*dto.Status) != before.Status {
			to = Status(*dto.Status)
			if dto.Reason != nil {
				reason = *dto.Reason
			}
			if err := checkTransition(before.Status, to, reason); err != nil {
				return err
			}
		}

		if err := s.ensureUnique(ctx, dto.Email, dto.EmployeeNumber, id); err != nil {
			return err
		}
		if to != from {
			moved, err := s.repo.UpdateStatus(ctx, id, string(from), string(to))
			if err != nil {
				return err
			}
			if !moved {
				return internal.ErrStatusChanged
			}
		}

		row := ToDataModel(before)
		if dto.EmployeeNumber != nil {
			row.EmployeeNumber = *dto.EmployeeNumber
		}
		if dto.Name != nil {
			row.Name = *dto.Name
		}
		if dto.Email != nil {
			row.Email = *dto.Email
		}
		if hash != nil {
			row.PasswordHash = string(hash)
		}
		if dto.DepartmentID != nil {
			if *dto.DepartmentID == 0 {
				row.DepartmentID = nil
			} else {
				if err := s.ensureDepartment(ctx, dto.DepartmentID); err != nil {
					return err
				}
				row.DepartmentID = dto.DepartmentID
			}
		}
		row.Status = string(to)

		if err := s.repo.Update(ctx, row); err != nil {
			if datastore.IsDuplicateKey(err) {
				return internal.NewConflictFieldError("email", "email already exists")
			}
			return err
		}

		if dto.touchesEmployment() {
			if err := s.updateEmployment(ctx, id, dto); err != nil {
				return err
			}
		}

		updated, err = s.load(ctx, id)
		if err != nil {
			return err
		}

		action, details := audit.ActionUserUpdated, "User updated: "+updated.Name
		if to != from {
			action, details = describeTransition(updated, from, to, reason)
		}
		_, err = s.recorder.RecordAudit(ctx, audit.Input{
			ActorID:      actor,
			Action:       action,
			TargetUserID: &id,
			TargetTable:  "users",
			TargetID:     &id,
			Before:       before.snapshot(),
			After:        updated.snapshot(),
			Details:      details,
		})
		if err != nil {
			return err
		}

		if to != from {
			s.publishAfterCommit(ctx, events.NewUserStatusChangedEvent(id, string(from), string(to)))
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "failed to update user", "user_id", id)
	}

	s.logger.Info("user updated", "user_id", id, "from_status", from, "to_status", updated.Status)
	return updated, nil
}

func (s *Service) updateEmployment(ctx context.Context, userID int64, dto UpdateUserDTO) error {
	employment, err := s.repo.GetEmployment(ctx, userID)
	if err != nil {
		return err
	}
	if employment == nil {
		employment = &userDatamodel.Employment{
			UserID:       userID,
			StartDate:    dates.Day(s.now()),
			ContractType: ContractFullTime,
		}
	}

	if dto.StartDate != nil {
		employment.StartDate, _ = dates.Parse(*dto.StartDate)
	}
	if dto.EndDate != nil {
		if *dto.EndDate == "" {
			employment.EndDate = nil
		} else {
			end, _ := dates.Parse(*dto.EndDate)
			employment.EndDate = &end
		}
	}
	if dto.ContractType != nil {
		employment.ContractType = *dto.ContractType
	}
	if employment.EndDate != nil && dates.Before(*employment.EndDate, employment.StartDate) {
		return internal.NewValidationFieldError("endDate", "endDate must not be before startDate", internal.ErrCodeInvalidDate)
	}
	return s.repo.SaveEmployment(ctx, employment)
}

func (s *Service) ensureUnique(ctx context.Context, email, number *string, selfID int64) error {
	if email != nil {
		existing, err := s.repo.FindByEmail(ctx, *email)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return internal.NewConflictFieldError("email", "email already exists")
		}
	}
	if number != nil {
		existing, err := s.repo.FindByEmployeeNumber(ctx, *number)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != selfID {
			return internal.NewConflictFieldError("employeeNumber", "employee number already exists")
		}
	}
	return nil
}

func (s *Service) ensureDepartment(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := s.repo.DepartmentExists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return internal.NewValidationFieldError("departmentId", "Department not found", internal.ErrCodeDepartmentNotFound)
	}
	return nil
}

func (s *Service) publishAfterCommit(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	datastore.AfterCommit(ctx, func() {
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish user event", "event_type", event.EventType(), "error", err)
		}
	})
}

func (s *Service) fail(err error, message string, kv ...any) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	s.logger.Error(message, append(kv, "error", err)...)
	return internal.NewInternalError(message, err)
}
