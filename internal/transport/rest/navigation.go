package rest

import (
	"net/http"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/transport"
)

type NavigationHandler struct {
	*transport.BaseHandler
	evaluator access.Evaluator
}

func NewNavigationHandler(base *transport.BaseHandler, evaluator access.Evaluator) *NavigationHandler {
	return &NavigationHandler{BaseHandler: base, evaluator: evaluator}
}

// GetNavigation lists the menu entries the caller's permissions open up.
func (h *NavigationHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	principal, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrAuthRequired)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": h.evaluator.Navigation(principal),
	})
}
