package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength bounds project names and issue titles.
const MaxNameLength = 100

// Common validation errors for Project
var (
	ErrEmptyProjectID      = errors.New("project ID cannot be empty")
	ErrEmptyProjectOwnerID = errors.New("project owner ID cannot be empty")
	ErrEmptyProjectName    = errors.New("project name cannot be empty")
	ErrProjectNameTooLong  = errors.New("project name must be at most 100 characters long")
)

// Project groups issues. The owner manages the project; members may read it
// and work on its issues.
type Project struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	OwnerID   uuid.UUID   `json:"owner_id"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewProject creates a new Project owned by ownerID.
func NewProject(ownerID uuid.UUID, name string, memberIDs []uuid.UUID) (*Project, error) {
	p := &Project{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
	p.SetMembers(memberIDs)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks if the Project has valid data.
func (p *Project) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyProjectID
	}
	if p.OwnerID == uuid.Nil {
		return ErrEmptyProjectOwnerID
	}
	if p.Name == "" {
		return ErrEmptyProjectName
	}
	if utf8.RuneCountInString(p.Name) > MaxNameLength {
		return ErrProjectNameTooLong
	}
	return nil
}

// SetMembers replaces the member list, dropping duplicates, nil IDs and the owner.
func (p *Project) SetMembers(ids []uuid.UUID) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	members := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == p.OwnerID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	p.MemberIDs = members
}

// IsOwner reports whether userID owns the project.
func (p *Project) IsOwner(userID uuid.UUID) bool {
	return p.OwnerID == userID
}

// IsParticipant reports whether userID is the owner or a member of the project.
func (p *Project) IsParticipant(userID uuid.UUID) bool {
	if p.IsOwner(userID) {
		return true
	}
	for _, id := range p.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
