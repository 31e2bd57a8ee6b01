package server

import (
	"net/http"

	"github.com/sukhchana/jira-tool/tracker"
)

// handleExecutions covers POST /api/executions.
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		EpicKey           string `json:"epic_key"`
		ExecutionPlanFile string `json:"execution_plan_file"`
		ProposedPlanFile  string `json:"proposed_plan_file"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	exec, err := s.tracker.StartExecution(r.Context(), req.EpicKey, tracker.PlanFileRefs{
		ExecutionPlanFile: req.ExecutionPlanFile,
		ProposedPlanFile:  req.ProposedPlanFile,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, exec)
}

// handleExecutionByID covers:
//
//	GET  /api/executions/{id}
//	POST /api/executions/{id}/status
//	GET  /api/executions/{id}/revisions
//	POST /api/executions/{id}/revisions
func (s *Server) handleExecutionByID(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing execution id")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		s.getExecution(w, r, id)
	case len(parts) == 2 && parts[1] == "status":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		s.setExecutionStatus(w, r, id)
	case len(parts) == 2 && parts[1] == "revisions":
		switch r.Method {
		case http.MethodGet:
			s.listRevisions(w, r, id)
		case http.MethodPost:
			s.requestRevision(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request, id string) {
	exec, err := s.tracker.GetExecution(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// setExecutionStatus settles an IN_PROGRESS execution.
func (s *Server) setExecutionStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	var err error
	switch tracker.ExecutionStatus(req.Status) {
	case tracker.ExecutionActive:
		err = s.tracker.MarkActive(r.Context(), id)
	case tracker.ExecutionFailed:
		err = s.tracker.MarkFailed(r.Context(), id)
	case tracker.ExecutionFatal:
		err = s.tracker.MarkFatal(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "status must be ACTIVE, FAILED, or FATAL_ERROR")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	exec, err := s.tracker.GetExecution(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request, id string) {
	// Surface NotFound for an absent execution rather than an empty list
	if _, err := s.tracker.GetExecution(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	revisions, err := s.tracker.Store().ListRevisionsForExecution(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if revisions == nil {
		revisions = []*tracker.Revision{}
	}
	writeJSON(w, http.StatusOK, revisions)
}

// requestRevision runs the LLM interpretation synchronously, bounded by the
// request context.
func (s *Server) requestRevision(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ChangesRequested string `json:"changes_requested"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	rev, err := s.workflow.RequestRevision(r.Context(), id, req.ChangesRequested)
	if err != nil {
		s.logger.Warnw("Revision request failed", "execution_id", shortID(id), "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rev)
}

// handleRevisionByID covers:
//
//	GET  /api/revisions/{id}
//	POST /api/revisions/{id}/confirm
//	POST /api/revisions/{id}/apply
func (s *Server) handleRevisionByID(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/revisions/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing revision id")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		s.getRevision(w, r, id)
	case len(parts) == 2 && parts[1] == "confirm":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		s.confirmRevision(w, r, id)
	case len(parts) == 2 && parts[1] == "apply":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		s.applyRevision(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) getRevision(w http.ResponseWriter, r *http.Request, id string) {
	rev, err := s.tracker.Store().GetRevision(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) confirmRevision(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Accept *bool `json:"accept"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Accept == nil {
		writeError(w, http.StatusBadRequest, "accept is required")
		return
	}

	rev, err := s.workflow.ConfirmRevision(r.Context(), id, *req.Accept)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) applyRevision(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ExecutionPlanFile string `json:"execution_plan_file"`
		ProposedPlanFile  string `json:"proposed_plan_file"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	child, err := s.workflow.ApplyRevision(r.Context(), id, tracker.PlanFileRefs{
		ExecutionPlanFile: req.ExecutionPlanFile,
		ProposedPlanFile:  req.ProposedPlanFile,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}
