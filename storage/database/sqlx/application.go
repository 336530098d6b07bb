package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
)

type applicationRow struct {
	ID                string      `db:"id"`
	ReferenceNumber   string      `db:"reference_number"`
	FirstName         string      `db:"first_name"`
	LastName          string      `db:"last_name"`
	Email             string      `db:"email"`
	Phone             string      `db:"phone"`
	DateOfBirth       null.Time   `db:"date_of_birth"`
	Address           string      `db:"address"`
	ProgramID         null.String `db:"program_id"`
	LMSProgramID      string      `db:"lms_program_id"`
	LMSIntakeID       string      `db:"lms_intake_id"`
	Status            string      `db:"status"`
	RejectionReason   string      `db:"rejection_reason"`
	ReviewedBy        null.String `db:"reviewed_by"`
	InitialApprovedAt null.Time   `db:"initial_approved_at"`
	ApprovedAt        null.Time   `db:"approved_at"`
	RejectedAt        null.Time   `db:"rejected_at"`
	LMSUserID         string      `db:"lms_user_id"`
	LMSStudentID      string      `db:"lms_student_id"`
	LMSStudentNumber  string      `db:"lms_student_number"`
	LMSError          string      `db:"lms_error"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func (r applicationRow) toApplication() application.Application {
	return application.Application{
		ID:                r.ID,
		ReferenceNumber:   r.ReferenceNumber,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		Phone:             r.Phone,
		DateOfBirth:       r.DateOfBirth.Ptr(),
		Address:           r.Address,
		ProgramID:         r.ProgramID.Ptr(),
		LMSProgramID:      r.LMSProgramID,
		LMSIntakeID:       r.LMSIntakeID,
		Status:            r.Status,
		RejectionReason:   r.RejectionReason,
		ReviewedBy:        r.ReviewedBy.Ptr(),
		InitialApprovedAt: r.InitialApprovedAt.Ptr(),
		ApprovedAt:        r.ApprovedAt.Ptr(),
		RejectedAt:        r.RejectedAt.Ptr(),
		LMSUserID:         r.LMSUserID,
		LMSStudentID:      r.LMSStudentID,
		LMSStudentNumber:  r.LMSStudentNumber,
		LMSError:          r.LMSError,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		Documents:         []application.Document{},
	}
}

type documentRow struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	DocumentType  string    `db:"document_type"`
	Path          string    `db:"path"`
	OriginalName  string    `db:"original_name"`
	CreatedAt     time.Time `db:"created_at"`
}

var (
	applicationColumns = []string{
		"id", "reference_number", "first_name", "last_name", "email", "phone", "date_of_birth", "address",
		"program_id", "lms_program_id", "lms_intake_id", "status", "rejection_reason", "reviewed_by",
		"initial_approved_at", "approved_at", "rejected_at", "lms_user_id", "lms_student_id",
		"lms_student_number", "lms_error", "created_at", "updated_at",
	}
	documentColumns     = []string{"id", "application_id", "document_type", "path", "original_name", "created_at"}
	applicationSortable = map[string]string{
		"reference_number": "reference_number",
		"last_name":        "last_name",
		"email":            "email",
		"status":           "status",
		"created_at":       "created_at",
	}
)

type applicationRepository struct {
	base
}

func NewApplicationRepository(db *sqlx.DB) application.Repository {
	return &applicationRepository{base{db: db}}
}

func applicationValues(app application.Application) map[string]interface{} {
	return map[string]interface{}{
		"first_name":          app.FirstName,
		"last_name":           app.LastName,
		"email":               app.Email,
		"phone":               app.Phone,
		"date_of_birth":       null.TimeFromPtr(app.DateOfBirth),
		"address":             app.Address,
		"program_id":          nullableID(app.ProgramID),
		"lms_program_id":      app.LMSProgramID,
		"lms_intake_id":       app.LMSIntakeID,
		"status":              app.Status,
		"rejection_reason":    app.RejectionReason,
		"reviewed_by":         nullableID(app.ReviewedBy),
		"initial_approved_at": null.TimeFromPtr(app.InitialApprovedAt),
		"approved_at":         null.TimeFromPtr(app.ApprovedAt),
		"rejected_at":         null.TimeFromPtr(app.RejectedAt),
		"lms_user_id":         app.LMSUserID,
		"lms_student_id":      app.LMSStudentID,
		"lms_student_number":  app.LMSStudentNumber,
		"lms_error":           app.LMSError,
		"updated_at":          app.UpdatedAt,
	}
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	values := applicationValues(app)
	values["id"] = app.ID
	values["reference_number"] = app.ReferenceNumber
	values["created_at"] = app.CreatedAt
	if _, err := repo.exec(ctx, psql.Insert("application").SetMap(values)); err != nil {
		return application.Application{}, err
	}
	app.Documents = []application.Document{}
	return app, nil
}

func (repo *applicationRepository) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	stmt := psql.Update("application").SetMap(applicationValues(app)).Where(sq.Eq{"id": app.ID})
	err := repo.execOne(ctx, stmt, application.ErrNotFound)
	return app, err
}

func (repo *applicationRepository) documents(ctx context.Context, appIDs ...string) (map[string][]application.Document, error) {
	byApp := make(map[string][]application.Document, len(appIDs))
	if len(appIDs) == 0 {
		return byApp, nil
	}
	var rows []documentRow
	stmt := psql.Select(documentColumns...).From("application_document").Where(sq.Eq{"application_id": appIDs}).OrderBy("created_at")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "selecting documents")
	}
	for _, row := range rows {
		byApp[row.ApplicationID] = append(byApp[row.ApplicationID], application.Document{
			ID:            row.ID,
			ApplicationID: row.ApplicationID,
			DocumentType:  row.DocumentType,
			Path:          row.Path,
			OriginalName:  row.OriginalName,
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return byApp, nil
}

func (repo *applicationRepository) withDocuments(ctx context.Context, rows []applicationRow) ([]application.Application, error) {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	docs, err := repo.documents(ctx, ids...)
	if err != nil {
		return nil, err
	}
	apps := make([]application.Application, len(rows))
	for i, row := range rows {
		apps[i] = row.toApplication()
		if d, ok := docs[row.ID]; ok {
			apps[i].Documents = d
		}
	}
	return apps, nil
}

func (repo *applicationRepository) getApplication(ctx context.Context, stmt sq.SelectBuilder) (application.Application, error) {
	var rows []applicationRow
	if err := repo.selectRows(ctx, &rows, stmt.Limit(1)); err != nil {
		return application.Application{}, err
	}
	if len(rows) == 0 {
		return application.Application{}, application.ErrNotFound
	}
	apps, err := repo.withDocuments(ctx, rows)
	if err != nil {
		return application.Application{}, err
	}
	return apps[0], nil
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id string) (application.Application, error) {
	return repo.getApplication(ctx, psql.Select(applicationColumns...).From("application").Where(sq.Eq{"id": id}))
}

func (repo *applicationRepository) GetApplicationByReference(ctx context.Context, ref string) (application.Application, error) {
	return repo.getApplication(ctx, psql.Select(applicationColumns...).From("application").Where(sq.Eq{"reference_number": ref}))
}

func (repo *applicationRepository) GetLinkedApplication(ctx context.Context, email string) (application.Application, error) {
	stmt := psql.Select(applicationColumns...).From("application").
		Where(sq.Eq{"email": email, "status": application.StatusApproved}).
		Where(sq.NotEq{"lms_user_id": ""}).
		OrderBy("created_at DESC")
	return repo.getApplication(ctx, stmt)
}

func (repo *applicationRepository) QueryApplications(ctx context.Context, filter application.QueryFilter, pq core.PageQuery) (core.Page[application.Application], error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.ProgramID != "" {
		where = append(where, sq.Eq{"program_id": filter.ProgramID})
	}

	var rows []applicationRow
	total, filtered, err := repo.paginate(ctx, listing{
		from: func(columns ...string) sq.SelectBuilder {
			return psql.Select(columns...).From("application").Where(where)
		},
		search:   searchAny(pq.Search, "reference_number", "first_name", "last_name", "email"),
		columns:  applicationColumns,
		sortable: applicationSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[application.Application]{}, err
	}
	apps, err := repo.withDocuments(ctx, rows)
	if err != nil {
		return core.Page[application.Application]{}, err
	}
	return core.Page[application.Application]{Items: apps, Total: total, Filtered: filtered}, nil
}

func (repo *applicationRepository) CountApplications(ctx context.Context, filter application.CountFilter) (int, error) {
	stmt := psql.Select("COUNT(*)").From("application")
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.CreatedAfter.IsZero() {
		stmt = stmt.Where(sq.GtOrEq{"created_at": filter.CreatedAfter})
	}
	return repo.count(ctx, stmt)
}

func (repo *applicationRepository) AddDocument(ctx context.Context, doc application.Document) (application.Document, error) {
	_, err := repo.exec(ctx, psql.Insert("application_document").Columns(documentColumns...).Values(
		doc.ID, doc.ApplicationID, doc.DocumentType, doc.Path, doc.OriginalName, doc.CreatedAt,
	))
	return doc, err
}
