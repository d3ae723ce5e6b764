package httpapi

import (
	"net/http"
	"strings"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// handleRoles serves POST /v1/roles: grant one role to a principal.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	granter, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := principal.Parse(req.Target)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := a.svc.GrantRole(r.Context(), granter, target, req.Role); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"target": target.String(),
		"role":   strings.ToLower(strings.TrimSpace(req.Role)),
	})
}

// handleRolesReconcile serves POST /v1/roles/reconcile: merge a batch
// of externally sourced labels for one principal.
func (a *API) handleRolesReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	granter, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req struct {
		Target string   `json:"target"`
		Roles  []string `json:"roles"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := principal.Parse(req.Target)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	labels, err := a.svc.ReconcileRoles(r.Context(), granter, target, req.Roles)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"target": target.String(),
		"roles":  labels,
	})
}

// handlePrincipalRoles serves GET /v1/principals/{address}/roles and
// GET /v1/principals/{address}/roles?role=ngo for a single membership
// check.
func (a *API) handlePrincipalRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/principals/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "roles" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	p, err := principal.Parse(parts[0])
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("role"); raw != "" {
		held, err := a.svc.HasRole(r.Context(), p, raw)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{
			"principal": p.String(),
			"role":      strings.ToLower(strings.TrimSpace(raw)),
			"held":      held,
		})
		return
	}
	labels, err := a.svc.GetRoles(r.Context(), p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"principal": p.String(),
		"roles":     labels,
	})
}
