package entities

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmissionKind identifies which public form produced a submission
type SubmissionKind string

const (
	SubmissionKindContact  SubmissionKind = "contact"
	SubmissionKindWaitlist SubmissionKind = "waitlist"
	SubmissionKindDemo     SubmissionKind = "demo"
)

// SubmissionStatus is the back-office workflow state of a submission
type SubmissionStatus string

const (
	// contact
	StatusNew       SubmissionStatus = "new"
	StatusResponded SubmissionStatus = "responded"
	StatusClosed    SubmissionStatus = "closed"

	// waitlist
	StatusPending  SubmissionStatus = "pending"
	StatusInvited  SubmissionStatus = "invited"
	StatusDeclined SubmissionStatus = "declined"

	// demo
	StatusRequested SubmissionStatus = "requested"
	StatusScheduled SubmissionStatus = "scheduled"
	StatusCompleted SubmissionStatus = "completed"
	StatusCancelled SubmissionStatus = "cancelled"
)

var kindStatuses = map[SubmissionKind][]SubmissionStatus{
	SubmissionKindContact:  {StatusNew, StatusResponded, StatusClosed},
	SubmissionKindWaitlist: {StatusPending, StatusInvited, StatusDeclined},
	SubmissionKindDemo:     {StatusRequested, StatusScheduled, StatusCompleted, StatusCancelled},
}

// Submission is a contact message, waitlist signup or demo request
type Submission struct {
	ID            string           `json:"id" bson:"_id" db:"id"`
	Kind          SubmissionKind   `json:"kind" bson:"kind" db:"kind"`
	Name          string           `json:"name" bson:"name" db:"name"`
	Email         string           `json:"email" bson:"email" db:"email"`
	Phone         string           `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`
	Organization  string           `json:"organization,omitempty" bson:"organization,omitempty" db:"organization"`
	Role          string           `json:"role,omitempty" bson:"role,omitempty" db:"role"`
	Message       string           `json:"message,omitempty" bson:"message,omitempty" db:"message"`
	PreferredTime *time.Time       `json:"preferred_time,omitempty" bson:"preferred_time,omitempty" db:"preferred_time"`
	Status        SubmissionStatus `json:"status" bson:"status" db:"status"`
	Notes         string           `json:"notes,omitempty" bson:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time        `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// NewSubmission creates a submission with a generated id and the kind's initial status
func NewSubmission(kind SubmissionKind) *Submission {
	now := time.Now().UTC()
	return &Submission{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    InitialStatus(kind),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InitialStatus returns the status a new submission of kind starts in
func InitialStatus(kind SubmissionKind) SubmissionStatus {
	if statuses, ok := kindStatuses[kind]; ok {
		return statuses[0]
	}
	return ""
}

// IsValidKind reports whether kind is a known submission kind
func IsValidKind(kind SubmissionKind) bool {
	_, ok := kindStatuses[kind]
	return ok
}

// AllowsStatus reports whether status belongs to kind's workflow
func (k SubmissionKind) AllowsStatus(status SubmissionStatus) bool {
	for _, s := range kindStatuses[k] {
		if s == status {
			return true
		}
	}
	return false
}

// Statuses returns the workflow of kind
func (k SubmissionKind) Statuses() []SubmissionStatus {
	return append([]SubmissionStatus(nil), kindStatuses[k]...)
}

// Normalize trims user input and lowercases the email
func (s *Submission) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	s.Organization = strings.TrimSpace(s.Organization)
	s.Role = strings.TrimSpace(s.Role)
	s.Message = strings.TrimSpace(s.Message)
}

// Validate checks required fields per kind
func (s *Submission) Validate() error {
	if !IsValidKind(s.Kind) {
		return fmt.Errorf("unknown submission kind %q", s.Kind)
	}
	if s.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s.Email); err != nil {
		return errors.New("email is invalid")
	}
	if !s.Kind.AllowsStatus(s.Status) {
		return fmt.Errorf("status %q is not valid for %s submissions", s.Status, s.Kind)
	}

	switch s.Kind {
	case SubmissionKindContact:
		if s.Name == "" {
			return errors.New("name is required")
		}
		if s.Message == "" {
			return errors.New("message is required")
		}
	case SubmissionKindDemo:
		if s.Name == "" {
			return errors.New("name is required")
		}
		if s.Organization == "" {
			return errors.New("organization is required")
		}
	}
	return nil
}
