package grading

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/mail"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
	ErrGradeNotFound      = core.NewNotFoundError("grade not found")

	errAlreadyGraded   = core.NewRuleError("This submission was already graded")
	errDeadlinePassed  = core.NewRuleError("The submission deadline has passed")
	errEmptySubmission = core.NewRuleError("A submission needs content or a file")
	errAlreadyPublic   = core.NewRuleError("This grade is already published")
	errScoreTooHigh    = errors.New("score cannot exceed the assignment total points")
	errScoreMissing    = errors.New("score is required and cannot be negative")
)

type (
	Repository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		GetStudentSubmission(ctx context.Context, assignmentID, userID string) (Submission, error)
		ListSubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
		// CountUngraded counts the submissions of the assignments still waiting for a grade.
		CountUngraded(ctx context.Context, assignmentIDs ...string) (int, error)

		CreateGrade(ctx context.Context, g Grade) (Grade, error)
		UpdateGrade(ctx context.Context, g Grade) (Grade, error)
		GetGrade(ctx context.Context, id string) (Grade, error)
		GetSubmissionGrade(ctx context.Context, submissionID string) (Grade, error)
		ListPublishedGrades(ctx context.Context, userID string) ([]Grade, error)
		AddHistory(ctx context.Context, h HistoryEntry) error
		// ListHistory returns the history of a grade, oldest version first.
		ListHistory(ctx context.Context, gradeID string) ([]HistoryEntry, error)
	}

	CourseReader interface {
		GetCourse(ctx context.Context, id string) (course.Course, error)
		GetAssignment(ctx context.Context, id string) (course.Assignment, error)
	}

	InstructorReader interface {
		GetByUserID(ctx context.Context, userID string) (instructor.Instructor, error)
	}

	UserReader interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ProgressUpdater interface {
		UpdateProgressForGradedAssignment(ctx context.Context, userID string, a course.Assignment, percentage float64) error
	}

	Deps struct {
		Repo        Repository
		Courses     CourseReader
		Instructors InstructorReader
		Users       UserReader
		Progress    ProgressUpdater
		Scale       *Scale
		Tx          core.Transactor
		Storage     core.FileStorage
		Inv         *core.Invalidator
		MailSvc     core.EmailService
		Logger      core.Logger
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// Upload is a file sent along with a submission.
type Upload struct {
	Filename string
	Content  io.Reader
}

// authorize lets admins and the instructors of the assignment's course through.
func (svc *Service) authorize(ctx context.Context, actor core.Actor, a course.Assignment) error {
	if actor.HasRole(user.RoleAdmin) || actor.HasRole(user.RoleAdminSuper) {
		return nil
	}
	ins, err := svc.Instructors.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.ErrForbidden
		}
		return errors.Wrap(err, "getting instructor")
	}
	c, err := svc.Courses.GetCourse(ctx, a.CourseID)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	if !c.HasInstructor(ins.ID) {
		return core.ErrForbidden
	}
	return nil
}

// Submit records the student's work. Students may resubmit until the submission is graded.
func (svc *Service) Submit(ctx context.Context, userID, assignmentID string, data SubmissionData, file *Upload) (Submission, error) {
	a, err := svc.Courses.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	if !a.IsPublished() {
		return Submission{}, course.ErrAssignmentNotFound
	}
	now := core.Now()
	if a.DueAt != nil && now.After(*a.DueAt) {
		return Submission{}, errDeadlinePassed
	}
	content := core.CleanString(data.Content)
	if content == "" && file == nil {
		return Submission{}, errEmptySubmission
	}

	sub, err := svc.Repo.GetStudentSubmission(ctx, assignmentID, userID)
	exists := err == nil
	if err != nil && !core.IsNotFound(err) {
		return Submission{}, errors.Wrap(err, "getting submission")
	}
	if exists && sub.Status == SubmissionGraded {
		return Submission{}, errAlreadyGraded
	}
	if !exists {
		sub = Submission{ID: core.NewID(), AssignmentID: assignmentID, StudentID: userID, Status: SubmissionSubmitted}
	}

	if file != nil {
		ext := strings.ToLower(path.Ext(file.Filename))
		stored, err := svc.Storage.Save(ctx, path.Join(core.SubmissionsDir, assignmentID, userID+ext), file.Content)
		if err != nil {
			return Submission{}, errors.Wrap(err, "saving submission file")
		}
		sub.FilePath = stored.Path
	}
	sub.Content = content
	sub.SubmittedAt = now
	sub.UpdatedAt = now

	if exists {
		sub, err = svc.Repo.UpdateSubmission(ctx, sub)
	} else {
		sub, err = svc.Repo.CreateSubmission(ctx, sub)
	}
	if err != nil {
		return Submission{}, errors.Wrap(err, "saving submission")
	}
	svc.Inv.Emit(ctx, core.GradesChanged{UserID: userID})
	return sub, nil
}

func (svc *Service) ListSubmissions(ctx context.Context, actor core.Actor, assignmentID string) ([]Submission, error) {
	a, err := svc.Courses.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err = svc.authorize(ctx, actor, a); err != nil {
		return nil, err
	}
	return svc.Repo.ListSubmissions(ctx, assignmentID)
}

func (svc *Service) CountUngraded(ctx context.Context, assignmentIDs ...string) (int, error) {
	if len(assignmentIDs) == 0 {
		return 0, nil
	}
	return svc.Repo.CountUngraded(ctx, assignmentIDs...)
}

func percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Round(score/max*10000) / 100
}

// GradeSubmission grades or regrades a submission. Regrading a published grade updates the student's progress.
func (svc *Service) GradeSubmission(ctx context.Context, actor core.Actor, submissionID string, data GradeData) (Grade, error) {
	sub, err := svc.Repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Grade{}, err
	}
	a, err := svc.Courses.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return Grade{}, err
	}
	if err = svc.authorize(ctx, actor, a); err != nil {
		return Grade{}, err
	}
	if data.Score == nil || *data.Score < 0 {
		return Grade{}, core.NewValidationError(errScoreMissing, core.FieldError{Field: "score", Error: errScoreMissing.Error()})
	}
	score := *data.Score
	if score > float64(a.TotalPoints) {
		return Grade{}, core.NewValidationError(errScoreTooHigh, core.FieldError{Field: "score", Error: errScoreTooHigh.Error()})
	}

	var g Grade
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		existing, err := svc.Repo.GetSubmissionGrade(ctx, sub.ID)
		switch {
		case err == nil:
			g = existing
			g.Version++
		case core.IsNotFound(err):
			g = Grade{
				ID:           core.NewID(),
				SubmissionID: sub.ID,
				AssignmentID: a.ID,
				StudentID:    sub.StudentID,
				Version:      1,
				CreatedAt:    now,
			}
		default:
			return errors.Wrap(err, "getting grade")
		}

		g.Score = score
		g.MaxScore = float64(a.TotalPoints)
		g.Percentage = percentage(score, g.MaxScore)
		g.Letter = svc.Scale.Letter(g.Percentage)
		g.Feedback = data.Feedback
		g.GradedBy = actor.AuditID()
		g.UpdatedAt = now
		if g.Version == 1 {
			g, err = svc.Repo.CreateGrade(ctx, g)
		} else {
			g, err = svc.Repo.UpdateGrade(ctx, g)
		}
		if err != nil {
			return errors.Wrap(err, "saving grade")
		}

		err = svc.Repo.AddHistory(ctx, HistoryEntry{
			ID:        core.NewID(),
			GradeID:   g.ID,
			Version:   g.Version,
			Score:     g.Score,
			Feedback:  g.Feedback,
			GradedBy:  g.GradedBy,
			CreatedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "adding grade history")
		}

		sub.Status = SubmissionGraded
		sub.UpdatedAt = now
		if _, err = svc.Repo.UpdateSubmission(ctx, sub); err != nil {
			return errors.Wrap(err, "updating submission")
		}
		if g.Published {
			return errors.Wrap(
				svc.Progress.UpdateProgressForGradedAssignment(ctx, g.StudentID, a, g.Percentage),
				"updating progress",
			)
		}
		return nil
	})
	if err != nil {
		return Grade{}, err
	}
	svc.Inv.Emit(ctx, core.GradesChanged{UserID: g.StudentID})
	return g, nil
}

// PublishGrade makes the grade visible to the student, updates their progress and notifies them.
func (svc *Service) PublishGrade(ctx context.Context, actor core.Actor, gradeID string) (Grade, error) {
	g, err := svc.Repo.GetGrade(ctx, gradeID)
	if err != nil {
		return Grade{}, err
	}
	if g.Published {
		return Grade{}, errAlreadyPublic
	}
	a, err := svc.Courses.GetAssignment(ctx, g.AssignmentID)
	if err != nil {
		return Grade{}, err
	}
	if err = svc.authorize(ctx, actor, a); err != nil {
		return Grade{}, err
	}

	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		g.Published = true
		g.PublishedAt = &now
		g.UpdatedAt = now
		var err error
		if g, err = svc.Repo.UpdateGrade(ctx, g); err != nil {
			return errors.Wrap(err, "publishing grade")
		}
		return errors.Wrap(
			svc.Progress.UpdateProgressForGradedAssignment(ctx, g.StudentID, a, g.Percentage),
			"updating progress",
		)
	})
	if err != nil {
		return Grade{}, err
	}
	svc.Inv.Emit(ctx, core.GradesChanged{UserID: g.StudentID})
	svc.notifyPublished(ctx, g, a)
	return g, nil
}

type gradePublishedData struct {
	StudentName     string
	AssignmentTitle string
	Score           string
	MaxScore        string
	Percentage      string
	Letter          string
	Feedback        string
}

func (svc *Service) notifyPublished(ctx context.Context, g Grade, a course.Assignment) {
	usr, err := svc.Users.GetByID(ctx, g.StudentID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("grading.notifyPublished: getting user %s: %v", g.StudentID, err), err)
		return
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Your grade for %s", a.Title),
		TemplateName: "grade_published",
		TemplateData: gradePublishedData{
			StudentName:     usr.Name,
			AssignmentTitle: a.Title,
			Score:           formatScore(g.Score),
			MaxScore:        formatScore(g.MaxScore),
			Percentage:      formatScore(g.Percentage),
			Letter:          g.Letter,
			Feedback:        g.Feedback,
		},
	})
}

func formatScore(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func (svc *Service) GetGrade(ctx context.Context, id string) (Grade, error) {
	return svc.Repo.GetGrade(ctx, id)
}

func (svc *Service) History(ctx context.Context, actor core.Actor, gradeID string) ([]HistoryEntry, error) {
	g, err := svc.Repo.GetGrade(ctx, gradeID)
	if err != nil {
		return nil, err
	}
	a, err := svc.Courses.GetAssignment(ctx, g.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err = svc.authorize(ctx, actor, a); err != nil {
		return nil, err
	}
	return svc.Repo.ListHistory(ctx, gradeID)
}

// Report lists the student's published grades along with their GPA.
func (svc *Service) Report(ctx context.Context, userID string) (Report, error) {
	grades, err := svc.Repo.ListPublishedGrades(ctx, userID)
	if err != nil {
		return Report{}, errors.Wrap(err, "listing grades")
	}
	report := Report{Entries: make([]ReportEntry, 0, len(grades))}
	letters := make([]string, 0, len(grades))
	for _, g := range grades {
		entry := ReportEntry{
			AssignmentID: g.AssignmentID,
			Score:        g.Score,
			MaxScore:     g.MaxScore,
			Percentage:   g.Percentage,
			Letter:       g.Letter,
			PublishedAt:  g.PublishedAt,
		}
		if a, err := svc.Courses.GetAssignment(ctx, g.AssignmentID); err == nil {
			entry.AssignmentTitle = a.Title
			entry.CourseID = a.CourseID
		} else if !core.IsNotFound(err) {
			return Report{}, errors.Wrap(err, "getting assignment")
		}
		report.Entries = append(report.Entries, entry)
		letters = append(letters, g.Letter)
	}
	report.GPA = svc.Scale.GPA(letters)
	return report, nil
}
