package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stxlabs/tracker-api/internal/api/shared"
	"github.com/stxlabs/tracker-api/internal/domain"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/redact"
	"github.com/stxlabs/tracker-api/internal/service"
)

// IssueHandler handles issue requests.
type IssueHandler struct {
	issues IssueService
	logger *slog.Logger
}

// NewIssueHandler creates a new IssueHandler.
func NewIssueHandler(issues IssueService, logger *slog.Logger) *IssueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueHandler{
		issues: issues,
		logger: logger.With(slog.String("component", "issue_handler")),
	}
}

// Create handles POST /api/issues.
func (h *IssueHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}
	var req CreateIssueRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	issue, err := h.issues.Create(r.Context(), userID, service.NewIssueInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if !h.savedOrRespond(w, r, issue, err, "Failed to create issue") {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, issueToResponse(issue))
}

// List handles GET /api/issues.
func (h *IssueHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	issues, err := h.issues.List(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list issues")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, mapSlice(issues, issueToResponse))
}

// Get handles GET /api/issues/{id}.
func (h *IssueHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, issueID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	issue, err := h.issues.Get(r.Context(), userID, issueID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get issue")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, issueToResponse(issue))
}

// Update handles PATCH /api/issues/{id}.
func (h *IssueHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, issueID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	var req UpdateIssueRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	upd := service.IssueUpdate{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		AssigneeSet: req.AssigneeID.Set,
		AssigneeID:  req.AssigneeID.Value,
	}
	if req.Status != nil {
		status := domain.IssueStatus(*req.Status)
		upd.Status = &status
	}

	issue, err := h.issues.Update(r.Context(), userID, issueID, upd)
	if !h.savedOrRespond(w, r, issue, err, "Failed to update issue") {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, issueToResponse(issue))
}

// Delete handles DELETE /api/issues/{id}.
func (h *IssueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, issueID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	if err := h.issues.Delete(r.Context(), userID, issueID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete issue")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// savedOrRespond reports whether the issue write succeeded. A reminder that
// could not be scheduled does not fail the request: the issue is saved and
// the failure is only logged.
func (h *IssueHandler) savedOrRespond(
	w http.ResponseWriter,
	r *http.Request,
	issue *domain.Issue,
	err error,
	fallback string,
) bool {
	if err == nil {
		return true
	}
	if issue != nil && errors.Is(err, service.ErrScheduleFailed) {
		logger.FromContextOrDefault(r.Context(), h.logger).Warn("issue saved without deadline reminder",
			slog.String("issue_id", issue.ID.String()),
			slog.String("error", redact.Error(err)))
		return true
	}
	HandleAPIError(w, r, err, fallback)
	return false
}
