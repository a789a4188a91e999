package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Attachment
var (
	ErrEmptyAttachmentID      = errors.New("attachment ID cannot be empty")
	ErrEmptyAttachmentIssueID = errors.New("attachment issue ID cannot be empty")
	ErrEmptyFileName          = errors.New("attachment file name cannot be empty")
)

// Attachment is a file uploaded to an issue. The bytes live in attachment
// storage under StoragePath.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	IssueID     uuid.UUID `json:"issue_id"`
	UploaderID  uuid.UUID `json:"uploader_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAttachment creates a new Attachment. Only the base of fileName is kept.
func NewAttachment(issueID, uploaderID uuid.UUID, fileName, contentType string, size int64) (*Attachment, error) {
	a := &Attachment{
		ID:          uuid.New(),
		IssueID:     issueID,
		UploaderID:  uploaderID,
		FileName:    sanitizeFileName(fileName),
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	a.StoragePath = filepath.Join(issueID.String(), a.ID.String()+"_"+a.FileName)

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks if the Attachment has valid data.
func (a *Attachment) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyAttachmentID
	}
	if a.IssueID == uuid.Nil {
		return ErrEmptyAttachmentIssueID
	}
	if a.FileName == "" {
		return ErrEmptyFileName
	}
	return nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
