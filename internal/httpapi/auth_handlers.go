package httpapi

import (
	"net/http"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/audit"
	"github.com/Sakshee21/SafeHavenWS/internal/auth"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

const tokenTTL = 15 * time.Minute

// handleAuthToken issues a short-lived token for a principal address.
// Identity proofing happens upstream; this endpoint only binds the
// session to an address the rest of the API can authorize against.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Address string   `json:"address"`
		Roles   []string `json:"roles,omitempty"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := principal.Parse(req.Address)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	token, err := auth.GenerateToken(p, req.Roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token_issued", map[string]any{
		"principal": p.String(),
	})
	writeSuccess(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
	})
}
