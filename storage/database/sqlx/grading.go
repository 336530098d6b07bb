package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/grading"
)

type submissionRow struct {
	ID           string    `db:"id"`
	AssignmentID string    `db:"assignment_id"`
	StudentID    string    `db:"student_id"`
	Content      string    `db:"content"`
	FilePath     string    `db:"file_path"`
	Status       string    `db:"status"`
	SubmittedAt  time.Time `db:"submitted_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r submissionRow) toSubmission() grading.Submission {
	return grading.Submission{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		StudentID:    r.StudentID,
		Content:      r.Content,
		FilePath:     r.FilePath,
		Status:       r.Status,
		SubmittedAt:  r.SubmittedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type gradeRow struct {
	ID           string      `db:"id"`
	SubmissionID string      `db:"submission_id"`
	AssignmentID string      `db:"assignment_id"`
	StudentID    string      `db:"student_id"`
	Score        float64     `db:"score"`
	MaxScore     float64     `db:"max_score"`
	Percentage   float64     `db:"percentage"`
	Letter       string      `db:"letter"`
	Feedback     string      `db:"feedback"`
	Version      int         `db:"version"`
	Published    bool        `db:"published"`
	PublishedAt  null.Time   `db:"published_at"`
	GradedBy     null.String `db:"graded_by"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r gradeRow) toGrade() grading.Grade {
	return grading.Grade{
		ID:           r.ID,
		SubmissionID: r.SubmissionID,
		AssignmentID: r.AssignmentID,
		StudentID:    r.StudentID,
		Score:        r.Score,
		MaxScore:     r.MaxScore,
		Percentage:   r.Percentage,
		Letter:       r.Letter,
		Feedback:     r.Feedback,
		Version:      r.Version,
		Published:    r.Published,
		PublishedAt:  r.PublishedAt.Ptr(),
		GradedBy:     r.GradedBy.Ptr(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type historyRow struct {
	ID        string      `db:"id"`
	GradeID   string      `db:"grade_id"`
	Version   int         `db:"version"`
	Score     float64     `db:"score"`
	Feedback  string      `db:"feedback"`
	GradedBy  null.String `db:"graded_by"`
	CreatedAt time.Time   `db:"created_at"`
}

var (
	submissionColumns = []string{"id", "assignment_id", "student_id", "content", "file_path", "status", "submitted_at", "updated_at"}
	gradeColumns      = []string{"id", "submission_id", "assignment_id", "student_id", "score", "max_score", "percentage", "letter", "feedback", "version", "published", "published_at", "graded_by", "created_at", "updated_at"}
	historyColumns    = []string{"id", "grade_id", "version", "score", "feedback", "graded_by", "created_at"}
)

type gradingRepository struct {
	base
}

func NewGradingRepository(db *sqlx.DB) grading.Repository {
	return &gradingRepository{base{db: db}}
}

// submissions

func (repo *gradingRepository) CreateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	_, err := repo.exec(ctx, psql.Insert("submission").Columns(submissionColumns...).Values(
		sub.ID, sub.AssignmentID, sub.StudentID, sub.Content, sub.FilePath, sub.Status, sub.SubmittedAt, sub.UpdatedAt,
	))
	return sub, err
}

func (repo *gradingRepository) UpdateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	stmt := psql.Update("submission").SetMap(map[string]interface{}{
		"content":      sub.Content,
		"file_path":    sub.FilePath,
		"status":       sub.Status,
		"submitted_at": sub.SubmittedAt,
		"updated_at":   sub.UpdatedAt,
	}).Where(sq.Eq{"id": sub.ID})
	err := repo.execOne(ctx, stmt, grading.ErrSubmissionNotFound)
	return sub, err
}

func (repo *gradingRepository) listSubmissions(ctx context.Context, where sq.Sqlizer) ([]grading.Submission, error) {
	var rows []submissionRow
	stmt := psql.Select(submissionColumns...).From("submission").Where(where).OrderBy("submitted_at")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	list := make([]grading.Submission, len(rows))
	for i, row := range rows {
		list[i] = row.toSubmission()
	}
	return list, nil
}

func (repo *gradingRepository) getSubmission(ctx context.Context, where sq.Sqlizer) (grading.Submission, error) {
	list, err := repo.listSubmissions(ctx, where)
	if err != nil {
		return grading.Submission{}, err
	}
	if len(list) == 0 {
		return grading.Submission{}, grading.ErrSubmissionNotFound
	}
	return list[0], nil
}

func (repo *gradingRepository) GetSubmission(ctx context.Context, id string) (grading.Submission, error) {
	return repo.getSubmission(ctx, sq.Eq{"id": id})
}

func (repo *gradingRepository) GetStudentSubmission(ctx context.Context, assignmentID, userID string) (grading.Submission, error) {
	return repo.getSubmission(ctx, sq.Eq{"assignment_id": assignmentID, "student_id": userID})
}

func (repo *gradingRepository) ListSubmissions(ctx context.Context, assignmentID string) ([]grading.Submission, error) {
	return repo.listSubmissions(ctx, sq.Eq{"assignment_id": assignmentID})
}

func (repo *gradingRepository) CountUngraded(ctx context.Context, assignmentIDs ...string) (int, error) {
	if len(assignmentIDs) == 0 {
		return 0, nil
	}
	stmt := psql.Select("COUNT(*)").From("submission").
		Where(sq.Eq{"assignment_id": assignmentIDs}).
		Where(sq.NotEq{"status": grading.SubmissionGraded})
	return repo.count(ctx, stmt)
}

// grades

func gradeValues(g grading.Grade) map[string]interface{} {
	return map[string]interface{}{
		"score":        g.Score,
		"max_score":    g.MaxScore,
		"percentage":   g.Percentage,
		"letter":       g.Letter,
		"feedback":     g.Feedback,
		"version":      g.Version,
		"published":    g.Published,
		"published_at": null.TimeFromPtr(g.PublishedAt),
		"graded_by":    nullableID(g.GradedBy),
		"updated_at":   g.UpdatedAt,
	}
}

func (repo *gradingRepository) CreateGrade(ctx context.Context, g grading.Grade) (grading.Grade, error) {
	values := gradeValues(g)
	values["id"] = g.ID
	values["submission_id"] = g.SubmissionID
	values["assignment_id"] = g.AssignmentID
	values["student_id"] = g.StudentID
	values["created_at"] = g.CreatedAt
	_, err := repo.exec(ctx, psql.Insert("grade").SetMap(values))
	return g, err
}

func (repo *gradingRepository) UpdateGrade(ctx context.Context, g grading.Grade) (grading.Grade, error) {
	err := repo.execOne(ctx, psql.Update("grade").SetMap(gradeValues(g)).Where(sq.Eq{"id": g.ID}), grading.ErrGradeNotFound)
	return g, err
}

func (repo *gradingRepository) listGrades(ctx context.Context, where sq.Sqlizer) ([]grading.Grade, error) {
	var rows []gradeRow
	stmt := psql.Select(gradeColumns...).From("grade").Where(where).OrderBy("created_at")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	list := make([]grading.Grade, len(rows))
	for i, row := range rows {
		list[i] = row.toGrade()
	}
	return list, nil
}

func (repo *gradingRepository) getGrade(ctx context.Context, where sq.Sqlizer) (grading.Grade, error) {
	list, err := repo.listGrades(ctx, where)
	if err != nil {
		return grading.Grade{}, err
	}
	if len(list) == 0 {
		return grading.Grade{}, grading.ErrGradeNotFound
	}
	return list[0], nil
}

func (repo *gradingRepository) GetGrade(ctx context.Context, id string) (grading.Grade, error) {
	return repo.getGrade(ctx, sq.Eq{"id": id})
}

func (repo *gradingRepository) GetSubmissionGrade(ctx context.Context, submissionID string) (grading.Grade, error) {
	return repo.getGrade(ctx, sq.Eq{"submission_id": submissionID})
}

func (repo *gradingRepository) ListPublishedGrades(ctx context.Context, userID string) ([]grading.Grade, error) {
	return repo.listGrades(ctx, sq.Eq{"student_id": userID, "published": true})
}

func (repo *gradingRepository) AddHistory(ctx context.Context, h grading.HistoryEntry) error {
	_, err := repo.exec(ctx, psql.Insert("grade_history").Columns(historyColumns...).Values(
		h.ID, h.GradeID, h.Version, h.Score, h.Feedback, nullableID(h.GradedBy), h.CreatedAt,
	))
	return err
}

func (repo *gradingRepository) ListHistory(ctx context.Context, gradeID string) ([]grading.HistoryEntry, error) {
	var rows []historyRow
	stmt := psql.Select(historyColumns...).From("grade_history").Where(sq.Eq{"grade_id": gradeID}).OrderBy("version")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	list := make([]grading.HistoryEntry, len(rows))
	for i, row := range rows {
		list[i] = grading.HistoryEntry{
			ID:        row.ID,
			GradeID:   row.GradeID,
			Version:   row.Version,
			Score:     row.Score,
			Feedback:  row.Feedback,
			GradedBy:  row.GradedBy.Ptr(),
			CreatedAt: row.CreatedAt.UTC(),
		}
	}
	return list, nil
}
