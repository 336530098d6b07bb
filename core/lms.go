package core

import (
	"context"
	"time"
)

type (
	LMSProgram struct {
		ID          string `json:"id"`
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	LMSIntake struct {
		ID        string    `json:"id"`
		ProgramID string    `json:"program_id,omitempty"`
		Name      string    `json:"name"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
		IsOpen    bool      `json:"is_open"`
	}

	LMSNewStudent struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Email       string `json:"email"`
		Phone       string `json:"phone,omitempty"`
		ProgramID   string `json:"program_id"`
		IntakeID    string `json:"intake_id"`
		ExternalRef string `json:"external_reference,omitempty"`
	}

	LMSStudentResult struct {
		Success       bool   `json:"success"`
		Error         string `json:"error,omitempty"`
		UserID        string `json:"user_id,omitempty"`
		StudentID     string `json:"student_id,omitempty"`
		StudentNumber string `json:"student_number,omitempty"`
	}

	LMSSSORequest struct {
		LMSUserID  string `json:"lms_user_id"`
		Email      string `json:"email"`
		RedirectTo string `json:"redirect_to,omitempty"`
	}

	LMSSSOResult struct {
		Success     bool      `json:"success"`
		Error       string    `json:"error,omitempty"`
		AccessToken string    `json:"access_token,omitempty"`
		ExpiresAt   time.Time `json:"expires_at,omitempty"`
		RedirectTo  string    `json:"redirect_to,omitempty"`
	}

	// LMSClient talks to the external learning platform. Failures are logged and degrade to
	// empty lists, nil objects or unsuccessful results; no call is retried.
	LMSClient interface {
		Programs(ctx context.Context) []LMSProgram
		Program(ctx context.Context, id string) *LMSProgram
		Intakes(ctx context.Context) []LMSIntake
		Intake(ctx context.Context, id string) *LMSIntake
		CreateStudent(ctx context.Context, ns LMSNewStudent) LMSStudentResult
		IssueSSOToken(ctx context.Context, req LMSSSORequest) LMSSSOResult
	}
)
