package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/department"
)

var (
	ErrNotFound = core.NewNotFoundError("application not found")

	errNotPending            = core.NewRuleError("Only pending applications can be initially approved")
	errNotInitiallyApproved  = core.NewRuleError("Only initially approved applications can be approved")
	errNotRejectable         = core.NewRuleError("Only pending or initially approved applications can be rejected")
	errNoLMSAccount          = core.NewRuleError("No learning account is linked to your email")
	errLMSUnavailable        = core.NewRuleError("The learning platform is unavailable, please try again later")
	errReasonRequired        = errors.New("a rejection reason is required")
	errDocumentType          = errors.New("unknown document type")
	errDocumentExt           = errors.New("documents must be .pdf, .jpg, .jpeg or .png files")
	errLMSAccountNotApproved = errors.New("application is not approved")

	Orderings = map[string]string{
		"reference_number": "reference_number",
		"last_name":        "last_name",
		"email":            "email",
		"status":           "status",
		"created_at":       "created_at",
	}

	documentExts = map[string]bool{".pdf": true, ".jpg": true, ".jpeg": true, ".png": true}
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application) (Application, error)
		UpdateApplication(ctx context.Context, app Application) (Application, error)
		// GetApplication and GetApplicationByReference load the documents.
		GetApplication(ctx context.Context, id string) (Application, error)
		GetApplicationByReference(ctx context.Context, ref string) (Application, error)
		// GetLinkedApplication returns the latest approved application of email with an LMS account.
		GetLinkedApplication(ctx context.Context, email string) (Application, error)
		QueryApplications(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Application], error)
		CountApplications(ctx context.Context, filter CountFilter) (int, error)
		AddDocument(ctx context.Context, doc Document) (Document, error)
	}

	ProgramReader interface {
		GetProgram(ctx context.Context, id string) (department.Program, error)
	}

	Deps struct {
		Repo     Repository
		Programs ProgramReader
		LMS      core.LMSClient
		Jobs     core.JobDispatcher
		Tx       core.Transactor
		Storage  core.FileStorage
		Cache    core.Cache
		Inv      *core.Invalidator
		MailSvc  core.EmailService
		Logger   core.Logger
		StatsTTL time.Duration
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// NewReferenceNumber returns a reference like APP-20240131-9F86D081.
func NewReferenceNumber(now time.Time) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		copy(b, strings.ReplaceAll(core.NewID(), "-", ""))
	}
	return fmt.Sprintf("APP-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}

func checkDocuments(docs []DocumentUpload) error {
	for _, doc := range docs {
		var known bool
		for _, t := range DocumentTypes {
			if doc.Type == t {
				known = true
				break
			}
		}
		if !known {
			return core.NewValidationError(errDocumentType, core.FieldError{Field: doc.Type, Error: errDocumentType.Error()})
		}
		if !documentExts[strings.ToLower(path.Ext(doc.Filename))] {
			return core.NewValidationError(errDocumentExt, core.FieldError{Field: doc.Type, Error: errDocumentExt.Error()})
		}
	}
	return nil
}

// Submit records a validated application and stores its documents under applications/{ref}/.
func (svc *Service) Submit(ctx context.Context, na NewApplication, docs []DocumentUpload) (Application, error) {
	if err := checkDocuments(docs); err != nil {
		return Application{}, err
	}

	now := core.Now()
	app := Application{
		ID:              core.NewID(),
		ReferenceNumber: NewReferenceNumber(now),
		FirstName:       na.FirstName,
		LastName:        na.LastName,
		Email:           na.Email,
		Phone:           na.Phone,
		DateOfBirth:     na.birthDate(),
		Address:         na.Address,
		LMSProgramID:    na.LMSProgramID,
		LMSIntakeID:     na.LMSIntakeID,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		Documents:       []Document{},
	}
	if na.ProgramID != "" {
		pid := na.ProgramID
		app.ProgramID = &pid
	}

	var stored []string
	err := svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		created, err := svc.Repo.CreateApplication(ctx, app)
		if err != nil {
			return errors.Wrap(err, "creating application")
		}
		created.Documents = []Document{}
		for _, up := range docs {
			ext := strings.ToLower(path.Ext(up.Filename))
			file, err := svc.Storage.Save(ctx, path.Join(core.ApplicationsDir, app.ReferenceNumber, up.Type+ext), up.Content)
			if err != nil {
				return errors.Wrap(err, "saving document")
			}
			stored = append(stored, file.Path)
			doc, err := svc.Repo.AddDocument(ctx, Document{
				ID:            core.NewID(),
				ApplicationID: created.ID,
				DocumentType:  up.Type,
				Path:          file.Path,
				OriginalName:  path.Base(up.Filename),
				CreatedAt:     now,
			})
			if err != nil {
				return errors.Wrap(err, "adding document")
			}
			created.Documents = append(created.Documents, doc)
		}
		app = created
		return nil
	})
	if err != nil {
		for _, p := range stored {
			if derr := svc.Storage.Delete(ctx, p); derr != nil {
				svc.Logger.Warn(fmt.Sprintf("deleting orphan document %q: %v", p, derr), derr)
			}
		}
		return Application{}, err
	}

	svc.Inv.Emit(ctx, core.ApplicationsChanged{})
	svc.notify(app, "Application received", "application_received", applicantData{
		FullName:        app.FullName(),
		ReferenceNumber: app.ReferenceNumber,
	})
	return app, nil
}

type applicantData struct {
	FullName        string
	ReferenceNumber string
	Reason          string
	StudentNumber   string
}

func (svc *Service) notify(app Application, subject, tmpl string, data applicantData) {
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: app.FullName(), Address: app.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
}

func (svc *Service) save(ctx context.Context, app Application) (Application, error) {
	app.UpdatedAt = core.Now()
	docs := app.Documents
	app, err := svc.Repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "updating application")
	}
	app.Documents = docs
	svc.Inv.Emit(ctx, core.ApplicationsChanged{})
	return app, nil
}

// InitialApprove is the first review step of a pending application.
func (svc *Service) InitialApprove(ctx context.Context, actor core.Actor, id string) (Application, error) {
	app, err := svc.Repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusPending {
		return Application{}, errNotPending
	}
	now := core.Now()
	app.Status = StatusInitiallyApproved
	app.InitialApprovedAt = &now
	app.ReviewedBy = actor.AuditID()
	return svc.save(ctx, app)
}

// FinalApprove approves the application and queues the creation of the applicant's learning account.
func (svc *Service) FinalApprove(ctx context.Context, actor core.Actor, id string) (Application, error) {
	app, err := svc.Repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusInitiallyApproved {
		return Application{}, errNotInitiallyApproved
	}
	now := core.Now()
	app.Status = StatusApproved
	app.ApprovedAt = &now
	app.ReviewedBy = actor.AuditID()
	if app, err = svc.save(ctx, app); err != nil {
		return Application{}, err
	}
	svc.Jobs.Dispatch(svc.LMSAccountJob(app.ID))
	return app, nil
}

func (svc *Service) Reject(ctx context.Context, actor core.Actor, id, reason string) (Application, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return Application{}, core.NewValidationError(errReasonRequired, core.FieldError{Field: "reason", Error: errReasonRequired.Error()})
	}
	app, err := svc.Repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusPending && app.Status != StatusInitiallyApproved {
		return Application{}, errNotRejectable
	}
	now := core.Now()
	app.Status = StatusRejected
	app.RejectionReason = reason
	app.RejectedAt = &now
	app.ReviewedBy = actor.AuditID()
	if app, err = svc.save(ctx, app); err != nil {
		return Application{}, err
	}
	svc.notify(app, "Your application", "application_rejected", applicantData{
		FullName:        app.FullName(),
		ReferenceNumber: app.ReferenceNumber,
		Reason:          reason,
	})
	return app, nil
}

// LMSAccountJob returns the job creating the learning account of an approved application.
func (svc *Service) LMSAccountJob(applicationID string) core.Job {
	return core.JobFunc{
		JobName: "lms-account:" + applicationID,
		Fn: func(ctx context.Context) error {
			return svc.CreateLMSAccount(ctx, applicationID)
		},
	}
}

// CreateLMSAccount creates the applicant's learning account and records its identifiers.
// Accounts are created once: an application already linked is left as is.
func (svc *Service) CreateLMSAccount(ctx context.Context, applicationID string) error {
	app, err := svc.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != StatusApproved {
		return errors.Wrap(errLMSAccountNotApproved, app.ReferenceNumber)
	}
	if app.HasLMSAccount() {
		return nil
	}

	res := svc.LMS.CreateStudent(ctx, core.LMSNewStudent{
		FirstName:   app.FirstName,
		LastName:    app.LastName,
		Email:       app.Email,
		Phone:       app.Phone,
		ProgramID:   app.LMSProgramID,
		IntakeID:    app.LMSIntakeID,
		ExternalRef: app.ReferenceNumber,
	})
	if !res.Success {
		app.LMSError = res.Error
		if _, err := svc.save(ctx, app); err != nil {
			return err
		}
		return errors.Errorf("creating LMS account of %s: %s", app.ReferenceNumber, res.Error)
	}

	app.LMSUserID = res.UserID
	app.LMSStudentID = res.StudentID
	app.LMSStudentNumber = res.StudentNumber
	app.LMSError = ""
	if app, err = svc.save(ctx, app); err != nil {
		return err
	}
	svc.notify(app, "Your application was approved", "application_approved", applicantData{
		FullName:        app.FullName(),
		ReferenceNumber: app.ReferenceNumber,
		StudentNumber:   app.LMSStudentNumber,
	})
	return nil
}

// SSO issues a sign-in token to the learning platform for the account linked to email.
func (svc *Service) SSO(ctx context.Context, email, redirectTo string) (core.LMSSSOResult, error) {
	app, err := svc.Repo.GetLinkedApplication(ctx, core.CleanString(email, true))
	if err != nil {
		if core.IsNotFound(err) {
			return core.LMSSSOResult{}, errNoLMSAccount
		}
		return core.LMSSSOResult{}, err
	}
	res := svc.LMS.IssueSSOToken(ctx, core.LMSSSORequest{
		LMSUserID:  app.LMSUserID,
		Email:      app.Email,
		RedirectTo: redirectTo,
	})
	if !res.Success {
		return res, errLMSUnavailable
	}
	return res, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Application, error) {
	return svc.Repo.GetApplication(ctx, id)
}

func (svc *Service) GetByReference(ctx context.Context, ref string) (Application, error) {
	return svc.Repo.GetApplicationByReference(ctx, strings.ToUpper(core.CleanString(ref)))
}

// Status returns the public status of the application with reference ref.
func (svc *Service) Status(ctx context.Context, ref string) (StatusView, error) {
	app, err := svc.GetByReference(ctx, ref)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		ReferenceNumber: app.ReferenceNumber,
		FullName:        app.FullName(),
		Status:          app.Status,
		Reason:          app.RejectionReason,
		SubmittedAt:     app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Application], error) {
	pq.Clean(Orderings)
	return svc.Repo.QueryApplications(ctx, filter, pq)
}

// Recent returns the latest applications with the given status (any when empty).
func (svc *Service) Recent(ctx context.Context, status string, limit int) ([]Application, error) {
	page, err := svc.Repo.QueryApplications(ctx, QueryFilter{Status: status}, core.PageQuery{
		Limit:     limit,
		Orderings: []core.DBOrdering{{Field: "created_at"}},
	})
	return page.Items, err
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.ApplicationStatsKey, svc.StatsTTL, svc.countStats)
}

func (svc *Service) countStats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		err   error
	)
	counts := []struct {
		dest   *int
		filter CountFilter
	}{
		{&stats.Total, CountFilter{}},
		{&stats.Pending, CountFilter{Status: StatusPending}},
		{&stats.InitiallyApproved, CountFilter{Status: StatusInitiallyApproved}},
		{&stats.Approved, CountFilter{Status: StatusApproved}},
		{&stats.Rejected, CountFilter{Status: StatusRejected}},
		{&stats.NewThisMonth, CountFilter{CreatedAfter: core.StartOfMonth(core.Now())}},
	}
	for _, c := range counts {
		if *c.dest, err = svc.Repo.CountApplications(ctx, c.filter); err != nil {
			return Stats{}, errors.Wrap(err, "counting applications")
		}
	}
	return stats, nil
}
