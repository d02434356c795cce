package access

import "strings"

// Evaluator answers permission and role questions about a principal. It has no
// side effects and never fails: unauthenticated principals are denied everything.
type Evaluator struct{}

func NewEvaluator() Evaluator {
	return Evaluator{}
}

// HasPermission matches action exactly; admin:all matches every action.
func (Evaluator) HasPermission(p *Principal, action string) bool {
	if !p.Authenticated() {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == PermissionAdminAll || granted == action {
			return true
		}
	}
	return false
}

func (e Evaluator) HasAnyPermission(p *Principal, actions ...string) bool {
	for _, action := range actions {
		if e.HasPermission(p, action) {
			return true
		}
	}
	return false
}

// HasRole compares role names case-insensitively.
func (Evaluator) HasRole(p *Principal, roleName string) bool {
	if !p.Authenticated() {
		return false
	}
	for _, g := range p.Roles {
		if strings.EqualFold(g.RoleName, roleName) {
			return true
		}
	}
	return false
}

type NavItem struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Path       string `json:"path"`
	Permission string `json:"permission"`
}

var navigation = []NavItem{
	{Key: "users", Label: "Users", Path: "/users", Permission: "user:read"},
	{Key: "departments", Label: "Departments", Path: "/departments", Permission: "department:read"},
	{Key: "roles", Label: "Roles & Permissions", Path: "/roles", Permission: "role:read"},
	{Key: "audit", Label: "Audit Log", Path: "/audit", Permission: "audit:read"},
}

// Navigation returns the menu entries the principal may open.
func (e Evaluator) Navigation(p *Principal) []NavItem {
	items := make([]NavItem, 0, len(navigation))
	for _, item := range navigation {
		if e.HasPermission(p, item.Permission) {
			items = append(items, item)
		}
	}
	return items
}
