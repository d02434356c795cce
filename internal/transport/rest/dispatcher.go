package rest

import (
	"net/http"
	"sort"
	"strings"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/auth"
	"github.com/frahmantamala/employee-management/internal/dashboard"
	"github.com/frahmantamala/employee-management/internal/department"
	"github.com/frahmantamala/employee-management/internal/role"
	"github.com/frahmantamala/employee-management/internal/transport"
	"github.com/frahmantamala/employee-management/internal/transport/middleware"
	"github.com/frahmantamala/employee-management/internal/user"
)

var errUnknownEndpoint = internal.NewNotFoundError("Unknown endpoint", internal.ErrCodeEndpointNotFound)

// Route is one verb of an endpoint. An empty Permission on a non-public route
// only requires a signed-in caller.
type Route struct {
	Handler    http.HandlerFunc
	Permission string
	Public     bool
}

// Dispatcher serves /api/data, selecting the handler by the endpoint query
// parameter and the HTTP method.
type Dispatcher struct {
	*transport.BaseHandler
	endpoints    map[string]map[string]Route
	authenticate func(http.Handler) http.Handler
	authz        *access.Authorization
}

func NewDispatcher(base *transport.BaseHandler, authenticate func(http.Handler) http.Handler, authz *access.Authorization) *Dispatcher {
	return &Dispatcher{
		BaseHandler:  base,
		endpoints:    make(map[string]map[string]Route),
		authenticate: authenticate,
		authz:        authz,
	}
}

// Handle registers route for endpoint and method, wrapping it in
// authentication and the permission check it needs.
func (d *Dispatcher) Handle(endpoint, method string, route Route) {
	methods, ok := d.endpoints[endpoint]
	if !ok {
		methods = make(map[string]Route)
		d.endpoints[endpoint] = methods
	}

	if !route.Public {
		var next http.Handler = route.Handler
		if route.Permission != "" {
			next = d.authz.Require(route.Permission)(next)
		}
		route.Handler = d.authenticate(next).ServeHTTP
	}
	methods[method] = route
}

// Permission reports what a registered route requires.
func (d *Dispatcher) Permission(endpoint, method string) (string, bool) {
	route, ok := d.endpoints[endpoint][method]
	return route.Permission, ok
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	methods, ok := d.endpoints[r.URL.Query().Get("endpoint")]
	if !ok {
		d.WriteAppError(w, r, errUnknownEndpoint)
		return
	}
	route, ok := methods[r.Method]
	if !ok {
		w.Header().Set("Allow", allowed(methods))
		d.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	route.Handler(w, r)
}

func allowed(methods map[string]Route) string {
	names := make([]string, 0, len(methods))
	for m := range methods {
		names = append(names, m)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

type Handlers struct {
	Auth         *auth.Handler
	Users        *user.Handler
	Departments  *department.Handler
	Roles        *role.Handler
	Audit        *audit.Handler
	Dashboard    *dashboard.Handler
	Navigation   *NavigationHandler
	LoginLimiter *middleware.IPRateLimiter
}

// RegisterEndpoints installs the endpoint table.
func RegisterEndpoints(d *Dispatcher, h Handlers) {
	login := h.Auth.Login
	if h.LoginLimiter != nil {
		login = h.LoginLimiter.Wrap(login)
	}
	d.Handle("auth", http.MethodPost, Route{Handler: login, Public: true})
	d.Handle("auth", http.MethodGet, Route{Handler: h.Auth.CurrentSession})
	d.Handle("auth", http.MethodPut, Route{Handler: h.Auth.CurrentSession})
	d.Handle("auth", http.MethodDelete, Route{Handler: h.Auth.Logout})

	d.Handle("users", http.MethodGet, Route{Handler: h.Users.GetUsers, Permission: "user:read"})
	d.Handle("users", http.MethodPost, Route{Handler: h.Users.CreateUser, Permission: "user:create"})
	d.Handle("users", http.MethodPut, Route{Handler: h.Users.UpdateUser, Permission: "user:update"})
	d.Handle("users", http.MethodDelete, Route{Handler: h.Users.DeleteUser, Permission: "user:delete"})
	d.Handle("contracts", http.MethodPost, Route{Handler: h.Users.RunContractAction, Permission: "user:update"})

	d.Handle("departments", http.MethodGet, Route{Handler: h.Departments.GetDepartments, Permission: "department:read"})
	d.Handle("departments", http.MethodPost, Route{Handler: h.Departments.CreateDepartment, Permission: "department:create"})
	d.Handle("departments", http.MethodPut, Route{Handler: h.Departments.UpdateDepartment, Permission: "department:update"})
	d.Handle("departments", http.MethodDelete, Route{Handler: h.Departments.DeleteDepartment, Permission: "department:delete"})

	d.Handle("roles", http.MethodGet, Route{Handler: h.Roles.GetRoles, Permission: "role:read"})
	d.Handle("roles", http.MethodPost, Route{Handler: h.Roles.CreateRole, Permission: "role:create"})
	d.Handle("roles", http.MethodPut, Route{Handler: h.Roles.UpdateRole, Permission: "role:update"})
	d.Handle("roles", http.MethodDelete, Route{Handler: h.Roles.DeleteRole, Permission: "role:delete"})
	d.Handle("permissions", http.MethodGet, Route{Handler: h.Roles.GetPermissions, Permission: "role:read"})
	d.Handle("permissions", http.MethodPost, Route{Handler: h.Roles.CreatePermission, Permission: "role:create"})
	d.Handle("user-roles", http.MethodGet, Route{Handler: h.Roles.GetUserRoles, Permission: "role:read"})
	d.Handle("user-roles", http.MethodPost, Route{Handler: h.Roles.AssignRole, Permission: "role:assign"})
	d.Handle("user-roles", http.MethodDelete, Route{Handler: h.Roles.RevokeRole, Permission: "role:revoke"})

	d.Handle("audit-logs", http.MethodGet, Route{Handler: h.Audit.ListAuditLogs, Permission: "audit:read"})
	d.Handle("login-events", http.MethodGet, Route{Handler: h.Audit.ListLoginEvents, Permission: "audit:read"})
	d.Handle("recent-activity", http.MethodGet, Route{Handler: h.Audit.RecentActivity, Permission: "audit:read"})
	d.Handle("security-alerts", http.MethodGet, Route{Handler: h.Audit.SecurityAlerts, Permission: "audit:read"})
	d.Handle("audit-export", http.MethodGet, Route{Handler: h.Audit.Export, Permission: "audit:export"})

	d.Handle("dashboard-stats", http.MethodGet, Route{Handler: h.Dashboard.GetStats, Permission: "dashboard:read"})
	d.Handle("navigation", http.MethodGet, Route{Handler: h.Navigation.GetNavigation})
}
