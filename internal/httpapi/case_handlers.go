package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Sakshee21/SafeHavenWS/internal/auth"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// requirePrincipal pulls the authenticated principal or writes 401.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (principal.Address, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return principal.Address{}, false
	}
	return p, true
}

// handleCasesCollection serves POST /v1/cases (open a case) and
// GET /v1/cases (active cases).
func (a *API) handleCasesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createCase(w, r)
	case http.MethodGet:
		list, err := a.svc.ActiveCases(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"cases": list})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Latitude) == "" || strings.TrimSpace(req.Longitude) == "" {
		writeError(w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	view, err := a.svc.CreateCase(r.Context(), p, req.Latitude, req.Longitude, idemKey)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"case": view})
}

// handleNearby serves GET /v1/cases/nearby?lat=&lon=&radius_km=.
func (a *API) handleNearby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, r, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}
	radius := 10.0
	if raw := q.Get("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, r, http.StatusBadRequest, "radius_km must be a positive number")
			return
		}
		radius = v
	}
	list, err := a.svc.NearbyOpenCases(r.Context(), lat, lon, radius)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"cases":     list,
		"radius_km": radius,
	})
}

// handleCaseResource dispatches /v1/cases/{id} and /v1/cases/{id}/{action}.
func (a *API) handleCaseResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cases/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "case id must be a positive integer")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		view, err := a.svc.GetCase(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view})
		return
	}

	switch parts[1] {
	case "history":
		a.caseHistory(w, r, id)
	case "logs":
		a.caseLogs(w, r, id)
	case "volunteers":
		a.caseVolunteers(w, r, id)
	case "acknowledge", "escalate", "resolve", "false-alarm", "assign", "accept", "report", "query":
		a.caseAction(w, r, id, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

// caseAction applies one state change or engagement to a case.
func (a *API) caseAction(w http.ResponseWriter, r *http.Request, id int64, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch action {
	case "acknowledge":
		view, err := a.svc.AcknowledgeCase(ctx, p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view})
	case "escalate":
		view, changed, err := a.svc.EscalateCase(ctx, p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view, "changed": changed})
	case "resolve":
		view, err := a.svc.ResolveCase(ctx, p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view})
	case "false-alarm":
		view, err := a.svc.MarkFalseAlarm(ctx, p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view})
	case "assign":
		var req struct {
			Volunteer string `json:"volunteer"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		volunteer, err := principal.Parse(req.Volunteer)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		view, err := a.svc.AssignVolunteer(ctx, p, id, volunteer)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view})
	case "accept":
		if err := a.svc.AcceptCase(ctx, p, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case_id": id, "accepted": true})
	case "report":
		if err := a.svc.SubmitReport(ctx, p, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case_id": id, "reported": true})
	case "query":
		if err := a.svc.QueryCase(ctx, p, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		view, err := a.svc.GetCase(ctx, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"case": view})
	}
}

func (a *API) caseHistory(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	records, err := a.svc.CaseHistory(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"case_id": id, "history": records})
}

func (a *API) caseLogs(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	entries, err := a.svc.EngagementLog(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"case_id": id, "logs": entries})
}

func (a *API) caseVolunteers(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	volunteers, err := a.svc.AcceptedVolunteers(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]string, 0, len(volunteers))
	for _, v := range volunteers {
		out = append(out, v.String())
	}
	writeSuccess(w, http.StatusOK, map[string]any{"case_id": id, "volunteers": out})
}

// handleVictimCases serves GET /v1/victims/{address}/cases.
func (a *API) handleVictimCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/victims/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "cases" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	victim, err := principal.Parse(parts[0])
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	list, err := a.svc.GetCasesByVictim(r.Context(), victim)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"victim": victim.String(),
		"cases":  list,
	})
}

// handleStats serves GET /v1/stats.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	stats, err := a.svc.CaseStats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"stats": stats})
}
