package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stxlabs/tracker-api/internal/api/shared"
	"github.com/stxlabs/tracker-api/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// serve routes a single request through a chi router so path parameters
// resolve. A non-nil userID marks the request as authenticated.
func serve(
	t *testing.T,
	method, pattern, target, body string,
	userID uuid.UUID,
	handler http.HandlerFunc,
) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req = req.WithContext(shared.WithUserID(req.Context(), userID))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[shared.ErrorResponse](t, rec).Error
}

func testIssue(projectID, ownerID uuid.UUID) *domain.Issue {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Issue{
		ID:        uuid.New(),
		ProjectID: projectID,
		OwnerID:   ownerID,
		Title:     "Broken login",
		Status:    domain.IssueStatusTodo,
		DueDate:   now.Add(72 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
