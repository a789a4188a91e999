package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stxlabs/tracker-api/internal/api/shared"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
	"github.com/stxlabs/tracker-api/internal/redact"
	"github.com/stxlabs/tracker-api/internal/storage"
)

// attachmentFormField is the multipart field carrying the uploaded file.
const attachmentFormField = "file"

// multipartOverhead allows for the multipart framing around the file.
const multipartOverhead = 64 << 10

// AttachmentHandler handles attachment requests.
type AttachmentHandler struct {
	attachments AttachmentService
	maxSize     int64
	logger      *slog.Logger
}

// NewAttachmentHandler creates a new AttachmentHandler accepting files of up
// to maxSize bytes.
func NewAttachmentHandler(attachments AttachmentService, maxSize int64, logger *slog.Logger) *AttachmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentHandler{
		attachments: attachments,
		maxSize:     maxSize,
		logger:      logger.With(slog.String("component", "attachment_handler")),
	}
}

// Upload handles POST /api/issues/{id}/attachments.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, issueID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	file, header, err := r.FormFile(attachmentFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAPIError(w, r, storage.ErrFileTooLarge, "")
			return
		}
		log.Debug("invalid multipart upload", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "A file is required in the \"file\" form field")
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := h.attachments.Upload(r.Context(), userID, issueID, header.Filename, contentType, file)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to upload attachment")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, attachmentToResponse(attachment))
}

// List handles GET /api/issues/{id}/attachments.
func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, issueID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	attachments, err := h.attachments.List(r.Context(), userID, issueID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list attachments")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, mapSlice(attachments, attachmentToResponse))
}

// Delete handles DELETE /api/attachments/{id}.
func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, attachmentID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	if err := h.attachments.Delete(r.Context(), userID, attachmentID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete attachment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
