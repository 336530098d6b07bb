package application

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Statuses
const (
	StatusPending           = "pending"
	StatusInitiallyApproved = "initially_approved"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
)

// Document types
var DocumentTypes = []string{"id_document", "transcript", "photo", "recommendation", "other"}

type Application struct {
	ID                string     `json:"id"`
	ReferenceNumber   string     `json:"reference_number"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	DateOfBirth       *time.Time `json:"date_of_birth"`
	Address           string     `json:"address"`
	ProgramID         *string    `json:"program_id"`
	LMSProgramID      string     `json:"lms_program_id"`
	LMSIntakeID       string     `json:"lms_intake_id"`
	Status            string     `json:"status"`
	RejectionReason   string     `json:"rejection_reason"`
	ReviewedBy        *string    `json:"reviewed_by"`
	InitialApprovedAt *time.Time `json:"initial_approved_at"`
	ApprovedAt        *time.Time `json:"approved_at"`
	RejectedAt        *time.Time `json:"rejected_at"`
	LMSUserID         string     `json:"lms_user_id"`
	LMSStudentID      string     `json:"lms_student_id"`
	LMSStudentNumber  string     `json:"lms_student_number"`
	LMSError          string     `json:"lms_error"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Documents []Document `json:"documents"`
}

func (a Application) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// HasLMSAccount reports whether the learning account of the applicant was created.
func (a Application) HasLMSAccount() bool { return a.LMSUserID != "" }

type Document struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	DocumentType  string    `json:"document_type"`
	Path          string    `json:"path"`
	OriginalName  string    `json:"original_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// StatusView is what applicants see when following their application.
type StatusView struct {
	ReferenceNumber string    `json:"reference_number"`
	FullName        string    `json:"full_name"`
	Status          string    `json:"status"`
	Reason          string    `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DocumentUpload is a document sent along with an application.
type DocumentUpload struct {
	Type     string
	Filename string
	Content  io.Reader
}

type NewApplication struct {
	FirstName    string `json:"first_name" form:"first_name" validate:"required,notblank,max=100"`
	LastName     string `json:"last_name" form:"last_name" validate:"required,notblank,max=100"`
	Email        string `json:"email" form:"email" validate:"required,email,max=255"`
	Phone        string `json:"phone" form:"phone" validate:"max=32"`
	DateOfBirth  string `json:"date_of_birth" form:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address      string `json:"address" form:"address"`
	ProgramID    string `json:"program_id" form:"program_id" validate:"omitempty,uuid"`
	LMSProgramID string `json:"lms_program_id" form:"lms_program_id" validate:"required,max=64"`
	LMSIntakeID  string `json:"lms_intake_id" form:"lms_intake_id" validate:"required,max=64"`
}

var errUnknownIntake = errors.New("intake not found or closed")

func (na *NewApplication) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
	na.Email = core.CleanString(na.Email, true)
	na.Phone = core.CleanString(na.Phone)
	na.Address = core.CleanString(na.Address)
	na.LMSProgramID = core.CleanString(na.LMSProgramID)
	na.LMSIntakeID = core.CleanString(na.LMSIntakeID)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.ProgramID != "" {
		if _, err := svc.Programs.GetProgram(ctx, na.ProgramID); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "program_id", Error: err.Error()})
			}
			return errors.Wrap(err, "getting program")
		}
	}
	if intake := svc.LMS.Intake(ctx, na.LMSIntakeID); intake == nil || !intake.IsOpen {
		return core.NewValidationError(errUnknownIntake, core.FieldError{Field: "lms_intake_id", Error: errUnknownIntake.Error()})
	}
	return nil
}

func (na NewApplication) birthDate() *time.Time {
	if na.DateOfBirth == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", na.DateOfBirth)
	if err != nil {
		return nil
	}
	return &d
}

type QueryFilter struct {
	Status    string `query:"status"`
	ProgramID string `query:"program_id"`
}

type CountFilter struct {
	Status       string
	CreatedAfter time.Time
}

// Stats are the application counters of the admin dashboard.
type Stats struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	InitiallyApproved int `json:"initially_approved"`
	Approved          int `json:"approved"`
	Rejected          int `json:"rejected"`
	NewThisMonth      int `json:"new_this_month"`
}
