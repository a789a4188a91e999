package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stxlabs/tracker-api/internal/domain"
)

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by login and token refresh.
type AuthResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	// ExpiresAt is the RFC 3339 time the access token expires.
	ExpiresAt string `json:"expires_at"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserResponse describes a user account.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProjectRequest defines the payload for creating a project.
type CreateProjectRequest struct {
	Name      string      `json:"name"       validate:"required,max=100"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// UpdateProjectRequest defines the payload for changing a project.
// Absent fields are left unchanged.
type UpdateProjectRequest struct {
	Name      *string      `json:"name"       validate:"omitempty,min=1,max=100"`
	MemberIDs *[]uuid.UUID `json:"member_ids"`
}

// ProjectResponse describes a project.
type ProjectResponse struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	OwnerID   uuid.UUID   `json:"owner_id"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

// CreateIssueRequest defines the payload for creating an issue.
type CreateIssueRequest struct {
	ProjectID   uuid.UUID  `json:"project_id"  validate:"required"`
	Title       string     `json:"title"       validate:"required,max=100"`
	Description string     `json:"description"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
	DueDate     time.Time  `json:"due_date"`
}

// UpdateIssueRequest defines the payload of an issue PATCH. Absent fields
// are left unchanged; "assignee_id": null unassigns the issue.
type UpdateIssueRequest struct {
	Title       *string      `json:"title"       validate:"omitempty,min=1,max=100"`
	Description *string      `json:"description"`
	Status      *string      `json:"status"      validate:"omitempty,oneof=todo 'in progress' review done"`
	DueDate     *time.Time   `json:"due_date"`
	AssigneeID  OptionalUUID `json:"assignee_id"`
}

// OptionalUUID is a JSON field that tells an absent value apart from null.
type OptionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

// UnmarshalJSON implements json.Unmarshaler. It is only called for fields
// present in the document.
func (o *OptionalUUID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// IssueResponse describes an issue.
type IssueResponse struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     time.Time  `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AttachmentResponse describes an uploaded file.
type AttachmentResponse struct {
	ID          uuid.UUID `json:"id"`
	IssueID     uuid.UUID `json:"issue_id"`
	UploaderID  uuid.UUID `json:"uploader_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, IsActive: u.IsActive, CreatedAt: u.CreatedAt}
}

func projectToResponse(p *domain.Project) ProjectResponse {
	members := p.MemberIDs
	if members == nil {
		members = []uuid.UUID{}
	}
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		MemberIDs: members,
		CreatedAt: p.CreatedAt,
	}
}

func issueToResponse(i *domain.Issue) IssueResponse {
	return IssueResponse{
		ID:          i.ID,
		ProjectID:   i.ProjectID,
		OwnerID:     i.OwnerID,
		AssigneeID:  i.AssigneeID,
		Title:       i.Title,
		Description: i.Description,
		Status:      string(i.Status),
		DueDate:     i.DueDate,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func attachmentToResponse(a *domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:          a.ID,
		IssueID:     a.IssueID,
		UploaderID:  a.UploaderID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Size:        a.Size,
		CreatedAt:   a.CreatedAt,
	}
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}
