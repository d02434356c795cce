package user_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/transport"
	"github.com/frahmantamala/employee-management/internal/user"
)

var _ = Describe("User Handler Integration", func() {
	var (
		f       *fixture
		handler *user.Handler
	)

	BeforeEach(func() {
		f = newFixture()
		handler = user.NewHandler(transport.NewBaseHandler(quietLogger()), f.service)
		handler.Now = func() time.Time { return *f.clock }
	})

	request := func(method, target, body string) *http.Request {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, target, nil)
		} else {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
		}
		return req.WithContext(internal.ContextWithUserID(req.Context(), 1))
	}

	It("creates a user and hides the password hash", func() {
		w := httptest.NewRecorder()
		handler.CreateUser(w, request(http.MethodPost, "/api/data?endpoint=users",
			`{"employeeNumber":"EMP010","name":"Grace Hall","email":"grace@company.com","password":"password123"}`))

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).NotTo(ContainSubstring("password"))

		var body map[string]interface{}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body["status"]).To(Equal("active"))
		Expect(body["employeeNumber"]).To(Equal("EMP010"))
	})

	It("answers 400 with the field when blocking without a reason", func() {
		alice := f.create("EMP001", "Alice Smith", "alice@company.com")

		w := httptest.NewRecorder()
		req := request(http.MethodPut, "/api/data?endpoint=users&id="+itoa(alice.ID), `{"status":"blocked","reason":"  "}`)
		handler.UpdateUser(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		var body internal.Response
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Code).To(Equal(internal.ErrCodeValidationFailed))
		Expect(body.Fields).To(HaveLen(1))
		Expect(body.Fields[0].Field).To(Equal("reason"))
	})

	It("deactivates on DELETE and removes the user with permanent=true", func() {
		alice := f.create("EMP001", "Alice Smith", "alice@company.com")

		w := httptest.NewRecorder()
		handler.DeleteUser(w, request(http.MethodDelete, "/api/data?endpoint=users&id="+itoa(alice.ID), ""))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(f.status(alice.ID)).To(Equal(user.StatusInactive))

		entries := f.entries(audit.ActionUserDeactivated)
		Expect(entries).To(HaveLen(1))
		Expect(*entries[0].UserID).To(Equal(int64(1)))

		w = httptest.NewRecorder()
		handler.DeleteUser(w, request(http.MethodDelete, "/api/data?endpoint=users&permanent=true&id="+itoa(alice.ID), ""))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(f.entries(audit.ActionUserPermanentlyDeleted)).To(HaveLen(1))

		w = httptest.NewRecorder()
		handler.GetUsers(w, request(http.MethodGet, "/api/data?endpoint=users&id="+itoa(alice.ID), ""))
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("runs the requested contract check", func() {
		f.create("EMP003", "Carol White", "carol@company.com", func(d *user.CreateUserDTO) {
			d.StartDate = "2024-01-01"
			d.EndDate = "2024-05-31"
		})

		w := httptest.NewRecorder()
		handler.RunContractAction(w, request(http.MethodPost, "/api/data?endpoint=contracts", `{"action":"run_all_checks"}`))
		Expect(w.Code).To(Equal(http.StatusOK))

		var body struct {
			Success bool             `json:"success"`
			Result  user.SweepResult `json:"result"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Success).To(BeTrue())
		Expect(body.Result.Deactivated).To(Equal(1))

		w = httptest.NewRecorder()
		handler.RunContractAction(w, request(http.MethodPost, "/api/data?endpoint=contracts", `{"action":"purge"}`))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("filters the listing by status", func() {
		f.create("EMP001", "Alice Smith", "alice@company.com")
		f.create("EMP002", "Bob Jones", "bob@company.com", func(d *user.CreateUserDTO) {
			d.StartDate = "2024-09-01"
		})

		w := httptest.NewRecorder()
		handler.GetUsers(w, request(http.MethodGet, "/api/data?endpoint=users&status=pending", ""))
		Expect(w.Code).To(Equal(http.StatusOK))

		var users []user.User
		Expect(json.NewDecoder(w.Body).Decode(&users)).To(Succeed())
		Expect(users).To(HaveLen(1))
		Expect(users[0].Name).To(Equal("Bob Jones"))
	})
})

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
