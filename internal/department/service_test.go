package department_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	"github.com/frahmantamala/employee-management/internal/department"
)

func TestDepartment(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Department Suite")
}

// MockRepository implements department.RepositoryAPI for testing
type MockRepository struct {
	departments map[int64]*departmentDatamodel.Department
	userCounts  map[int64]int64
	nextID      int64
	shouldFail  bool
	failError   error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		departments: make(map[int64]*departmentDatamodel.Department),
		userCounts:  make(map[int64]int64),
	}
}

func (m *MockRepository) GetAll(_ context.Context) ([]*departmentDatamodel.Department, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var result []*departmentDatamodel.Department
	for _, d := range m.departments {
		result = append(result, d)
	}
	return result, nil
}

func (m *MockRepository) GetByID(_ context.Context, id int64) (*departmentDatamodel.Department, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	d, ok := m.departments[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (m *MockRepository) FindByCode(_ context.Context, code string) (*departmentDatamodel.Department, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	for _, d := range m.departments {
		if strings.EqualFold(d.Code, code) {
			return d, nil
		}
	}
	return nil, nil
}

func (m *MockRepository) FindByName(_ context.Context, name string) (*departmentDatamodel.Department, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	for _, d := range m.departments {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, nil
}

func (m *MockRepository) UserCounts(_ context.Context) (map[int64]int64, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	return m.userCounts, nil
}

func (m *MockRepository) CountUsers(_ context.Context, id int64) (int64, error) {
	if m.shouldFail {
		return 0, m.failError
	}
	return m.userCounts[id], nil
}

func (m *MockRepository) Create(_ context.Context, d *departmentDatamodel.Department) error {
	if m.shouldFail {
		return m.failError
	}
	m.nextID++
	d.ID = m.nextID
	m.departments[d.ID] = d
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *departmentDatamodel.Department) error {
	if m.shouldFail {
		return m.failError
	}
	m.departments[d.ID] = d
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id int64) error {
	if m.shouldFail {
		return m.failError
	}
	delete(m.departments, id)
	return nil
}

func (m *MockRepository) SetShouldFail(shouldFail bool, err error) {
	m.shouldFail = shouldFail
	m.failError = err
}

type passthroughTransactor struct{}

func (passthroughTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MockRecorder struct {
	inputs []audit.Input
}

func (m *MockRecorder) RecordAudit(_ context.Context, in audit.Input) (*audit.Entry, error) {
	m.inputs = append(m.inputs, in)
	return &audit.Entry{ID: int64(len(m.inputs)), Action: in.Action}, nil
}

var _ = Describe("Department Service", func() {
	var (
		mockRepo *MockRepository
		recorder *MockRecorder
		service  *department.Service
		ctx      context.Context
	)

	BeforeEach(func() {
		mockRepo = NewMockRepository()
		recorder = &MockRecorder{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = department.NewService(mockRepo, passthroughTransactor{}, recorder, logger)
		ctx = context.Background()
	})

	Describe("Create", func() {
		It("upper-cases the code and audits the creation", func() {
			d, err := service.Create(ctx, department.CreateDepartmentDTO{Name: " Finance ", Code: "fin"})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Name).To(Equal("Finance"))
			Expect(d.Code).To(Equal("FIN"))

			Expect(recorder.inputs).To(HaveLen(1))
			Expect(recorder.inputs[0].Action).To(Equal(audit.ActionDepartmentCreated))
			Expect(recorder.inputs[0].Details).To(Equal("Department created: Finance (FIN)"))
		})

		It("rejects codes outside the allowed pattern", func() {
			_, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Legal", Code: "L-1"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldErrors()).To(HaveLen(1))
			Expect(appErr.FieldErrors()[0].Field).To(Equal("code"))
			Expect(recorder.inputs).To(BeEmpty())
		})

		It("reports every invalid field", func() {
			_, err := service.Create(ctx, department.CreateDepartmentDTO{})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			fields := []string{}
			for _, fe := range appErr.FieldErrors() {
				fields = append(fields, fe.Field)
			}
			Expect(fields).To(ConsistOf("name", "code"))
		})

		It("reports a duplicate name as a field conflict", func() {
			_, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Human Resources", Code: "HR"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, department.CreateDepartmentDTO{Name: "human resources", Code: "HRX"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(409))
			Expect(appErr.FieldErrors()[0].Field).To(Equal("name"))
			Expect(appErr.FieldErrors()[0].Message).To(Equal("name already exists"))
		})

		It("hides repository failures behind an internal error", func() {
			mockRepo.SetShouldFail(true, errors.New("connection reset"))
			_, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Legal", Code: "LEG"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeInternal))
		})
	})

	Describe("Update", func() {
		It("allows keeping the own code and rejects another department's code", func() {
			hr, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Human Resources", Code: "HR"})
			Expect(err).NotTo(HaveOccurred())
			it, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Information Technology", Code: "IT"})
			Expect(err).NotTo(HaveOccurred())

			code := "hr"
			description := "People"
			updated, err := service.Update(ctx, hr.ID, department.UpdateDepartmentDTO{Code: &code, Description: &description})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Code).To(Equal("HR"))
			Expect(updated.Description).To(Equal("People"))

			_, err = service.Update(ctx, it.ID, department.UpdateDepartmentDTO{Code: &code})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldErrors()[0].Message).To(Equal("code already exists"))
		})

		It("returns not found for unknown ids", func() {
			name := "Nobody"
			_, err := service.Update(ctx, 99, department.UpdateDepartmentDTO{Name: &name})
			Expect(errors.Is(err, internal.ErrDepartmentNotFound)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("is refused while users reference the department", func() {
			d, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Finance", Code: "FIN"})
			Expect(err).NotTo(HaveOccurred())
			mockRepo.userCounts[d.ID] = 2

			err = service.Delete(ctx, d.ID)
			Expect(errors.Is(err, internal.ErrDepartmentInUse)).To(BeTrue())
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Message).To(Equal("Cannot delete department with assigned users"))
			Expect(mockRepo.departments).To(HaveKey(d.ID))
		})

		It("deletes and audits an unused department", func() {
			d, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Finance", Code: "FIN"})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, d.ID)).To(Succeed())
			Expect(mockRepo.departments).NotTo(HaveKey(d.ID))
			Expect(recorder.inputs[len(recorder.inputs)-1].Action).To(Equal(audit.ActionDepartmentDeleted))
		})
	})

	Describe("List", func() {
		It("attaches user counts", func() {
			d, err := service.Create(ctx, department.CreateDepartmentDTO{Name: "Finance", Code: "FIN"})
			Expect(err).NotTo(HaveOccurred())
			mockRepo.userCounts[d.ID] = 3

			departments, err := service.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(departments).To(HaveLen(1))
			Expect(departments[0].UserCount).To(Equal(int64(3)))
		})
	})
})
