package department_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	auditPostgres "github.com/frahmantamala/employee-management/internal/audit/postgres"
	departmentDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/department"
	userDatamodel "github.com/frahmantamala/employee-management/internal/core/datamodel/user"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/core/datastore/datastoretest"
	"github.com/frahmantamala/employee-management/internal/department"
	departmentPostgres "github.com/frahmantamala/employee-management/internal/department/postgres"
	"github.com/frahmantamala/employee-management/internal/transport"
)

var _ = Describe("Department Handler Integration", func() {
	var (
		db      *gorm.DB
		handler *department.Handler
	)

	BeforeEach(func() {
		var err error
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = datastoretest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		recorder := audit.NewRecorder(auditPostgres.NewAuditRepository(db), nil, nil, slogger)
		service := department.NewService(departmentPostgres.NewDepartmentRepository(db), datastore.NewTransactor(db), recorder, slogger)
		handler = department.NewHandler(&transport.BaseHandler{Logger: slogger}, service)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/data?endpoint=departments", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.CreateDepartment(w, req)
		return w
	}

	It("rejects a second department whose code differs only in case", func() {
		first := post(`{"name":"Human Resources","code":"HR"}`)
		Expect(first.Code).To(Equal(http.StatusCreated))

		var created department.Department
		Expect(json.NewDecoder(first.Body).Decode(&created)).To(Succeed())
		Expect(created.Code).To(Equal("HR"))

		second := post(`{"name":"Human Resources 2","code":"hr"}`)
		Expect(second.Code).To(Equal(http.StatusConflict))

		var body internal.Response
		Expect(json.NewDecoder(second.Body).Decode(&body)).To(Succeed())
		Expect(body.Error).To(Equal("code already exists"))
		Expect(body.Fields).To(ConsistOf(internal.ValidationError{
			Field: "code", Message: "code already exists", Code: string(internal.ErrCodeDuplicate),
		}))

		var stored []departmentDatamodel.Department
		Expect(db.Find(&stored).Error).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(1))
		Expect(stored[0].Name).To(Equal("Human Resources"))
		Expect(stored[0].Code).To(Equal("HR"))
	})

	It("answers 409 when deleting a department with users", func() {
		w := post(`{"name":"Finance","code":"FIN"}`)
		Expect(w.Code).To(Equal(http.StatusCreated))
		var created department.Department
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())

		Expect(db.Create(&userDatamodel.User{
			EmployeeNumber: "EMP100", Name: "Dana", Email: "dana@company.com",
			PasswordHash: "x", Status: "active", DepartmentID: &created.ID,
		}).Error).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodDelete, "/api/data?endpoint=departments&id="+jsonID(created.ID), nil)
		rec := httptest.NewRecorder()
		handler.DeleteDepartment(rec, req)

		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(rec.Body.String()).To(ContainSubstring("Cannot delete department with assigned users"))
	})

	It("lists departments with user counts", func() {
		Expect(post(`{"name":"Finance","code":"FIN"}`).Code).To(Equal(http.StatusCreated))

		req := httptest.NewRequest(http.MethodGet, "/api/data?endpoint=departments", nil)
		w := httptest.NewRecorder()
		handler.GetDepartments(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var list []department.Department
		Expect(json.NewDecoder(w.Body).Decode(&list)).To(Succeed())
		Expect(list).To(HaveLen(1))
		Expect(list[0].UserCount).To(BeZero())
	})
})

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
