package http

import (
	"net/http"

	"presupuesto/internal/core"
	applog "presupuesto/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// TODO: probe the repository once it grows a Ping method.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleProjectRubros returns the unified rubro list built from a project's
// allocations and pre-invoices.
func (s *Server) handleProjectRubros(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")

	rubros, err := s.service.ProjectRubros(r.Context(), projectID)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Project rubros error",
			applog.FieldError, err, applog.FieldProjectID, projectID)
		InternalServerError("failed to build rubros").Write(w)
		return
	}

	NewJSONResponse().Body(rubros).Write(w)
}

// handleProjectTotals returns per-month and overall totals. Without a months
// parameter the snapshot (or a cached live aggregation) is served; with an
// explicit months list totals are always computed fresh.
func (s *Server) handleProjectTotals(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")
	logger := applog.FromContext(r.Context())

	months, err := parseMonths(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if months != nil {
		totals, err := s.service.ProjectTotals(r.Context(), projectID, months)
		if err != nil {
			logger.ErrorContext(r.Context(), "Project totals error",
				applog.FieldError, err, applog.FieldProjectID, projectID)
			InternalServerError("failed to compute totals").Write(w)
			return
		}
		NewJSONResponse().Body(totals).Write(w)
		return
	}

	if totals, found := s.totalsCache.Get(projectID); found {
		logger.DebugContext(r.Context(), "Totals cache hit", applog.FieldProjectID, projectID)
		NewJSONResponse().Body(totals).Write(w)
		return
	}

	totals, err := s.service.TotalsSnapshot(r.Context(), projectID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Project totals error",
			applog.FieldError, err, applog.FieldProjectID, projectID)
		InternalServerError("failed to compute totals").Write(w)
		return
	}

	s.totalsCache.Set(projectID, totals)
	NewJSONResponse().Body(totals).Write(w)
}

// handleProjectVariance returns the month-ordered variance series. An
// optional budget parameter supplies a per-month baseline.
func (s *Server) handleProjectVariance(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")

	budget, err := parseBudget(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	points, err := s.service.VarianceSeries(r.Context(), projectID, budget)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Project variance error",
			applog.FieldError, err, applog.FieldProjectID, projectID)
		InternalServerError("failed to compute variance").Write(w)
		return
	}

	NewJSONResponse().Body(points).Write(w)
}

type forecastRequest struct {
	Rows []core.ForecastRow `json:"rows"`
}

// handleSaveForecast normalizes and stores a batch of forecast rows. The
// normalized rows are echoed back so callers see the canonical ids.
func (s *Server) handleSaveForecast(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")
	logger := applog.FromContext(r.Context())

	var req forecastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	if len(req.Rows) == 0 {
		UnprocessableEntityError("rows must not be empty").Write(w)
		return
	}

	rows, err := s.service.SaveForecastRows(r.Context(), projectID, req.Rows)
	if err != nil {
		logger.ErrorContext(r.Context(), "Save forecast error",
			applog.FieldError, err, applog.FieldProjectID, projectID)
		InternalServerError("failed to save forecast rows").Write(w)
		return
	}

	logger.InfoContext(r.Context(), "Forecast rows saved",
		applog.FieldProjectID, projectID, applog.FieldRowCount, len(rows))

	s.totalsCache.Delete(projectID)
	NewJSONResponse().Body(forecastRequest{Rows: rows}).Write(w)
}

// handleSaveAllocation normalizes and stores one allocation payload.
func (s *Server) handleSaveAllocation(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")

	var payload core.AllocationPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	normalized, err := s.service.SaveAllocation(r.Context(), projectID, payload)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Save allocation error",
			applog.FieldError, err, applog.FieldProjectID, projectID)
		InternalServerError("failed to save allocation").Write(w)
		return
	}

	s.totalsCache.Delete(projectID)
	NewJSONResponse().Status(http.StatusCreated).Body(normalized).Write(w)
}

// handleSavePrefactura stores one pre-invoice record.
func (s *Server) handleSavePrefactura(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")

	var payload core.PrefacturaInput
	if err := decodeJSON(w, r, &payload); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	id, err := s.service.SavePrefactura(r.Context(), projectID, payload)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Save prefactura error",
			applog.FieldError, err, applog.FieldProjectID, projectID)
		InternalServerError("failed to save prefactura").Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(map[string]int64{"id": id}).Write(w)
}
