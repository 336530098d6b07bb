// Package quiz runs student attempts at quizzes and exams.
package quiz

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/progress"
)

var errAlreadySubmitted = core.NewRuleError("This attempt was already submitted")

type (
	QuizReader interface {
		GetQuiz(ctx context.Context, id string) (course.Quiz, error)
		GetModule(ctx context.Context, id string) (course.Module, error)
	}

	GatingService interface {
		IsModuleAccessible(ctx context.Context, userID, moduleID string) (progress.Access, error)
		IsExamVisible(ctx context.Context, userID string, quiz course.Quiz) (bool, error)
		CanTakeExam(ctx context.Context, userID string, quiz course.Quiz) (progress.ExamDecision, error)
		HandleExamResult(ctx context.Context, userID string, quiz course.Quiz, passed bool, score float64) (progress.ModuleProgress, error)
	}

	ProgressTracker interface {
		AutoCompleteForQuiz(ctx context.Context, userID string, quiz course.Quiz, percentage float64) error
	}

	Deps struct {
		Attempts course.AttemptRepository
		Quizzes  QuizReader
		Gating   GatingService
		Progress ProgressTracker
		Tx       core.Transactor
		Logger   core.Logger
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// Question is a quiz question without its answer key.
type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Points   int      `json:"points"`
	Position int      `json:"position"`
}

// StudentQuiz is a quiz as shown to a student.
type StudentQuiz struct {
	ID               string                `json:"id"`
	ModuleID         *string               `json:"module_id"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	IsExam           bool                  `json:"is_exam"`
	ExamRole         string                `json:"exam_role"`
	PassingScore     float64               `json:"passing_score"`
	TotalPoints      int                   `json:"total_points"`
	TimeLimitMinutes int                   `json:"time_limit_minutes"`
	Questions        []Question            `json:"questions,omitempty"`
	Attempts         []course.QuizAttempt  `json:"attempts"`
	Decision         progress.ExamDecision `json:"decision"`
}

func newStudentQuiz(q course.Quiz, withQuestions bool) StudentQuiz {
	sq := StudentQuiz{
		ID:               q.ID,
		ModuleID:         q.ModuleID,
		Title:            q.Title,
		Description:      q.Description,
		IsExam:           q.IsExam,
		ExamRole:         q.ExamRole,
		PassingScore:     q.PassingScore,
		TotalPoints:      q.TotalPoints,
		TimeLimitMinutes: q.TimeLimitMinutes,
		Attempts:         []course.QuizAttempt{},
	}
	if withQuestions {
		sq.Questions = make([]Question, len(q.Questions))
		for i, qq := range q.Questions {
			sq.Questions[i] = Question{ID: qq.ID, Text: qq.Text, Options: qq.Options, Points: qq.Points, Position: qq.Position}
		}
	}
	return sq
}

// AttemptView is an open attempt along with the questions to answer.
type AttemptView struct {
	Attempt course.QuizAttempt `json:"attempt"`
	Quiz    StudentQuiz        `json:"quiz"`
}

// loadForStudent returns the quiz when the student can see it; hidden quizzes are reported as not found.
func (svc *Service) loadForStudent(ctx context.Context, userID, quizID string) (course.Quiz, error) {
	q, err := svc.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return course.Quiz{}, err
	}
	if !q.IsPublished() {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	if q.ModuleID == nil {
		return q, nil
	}

	m, err := svc.Quizzes.GetModule(ctx, *q.ModuleID)
	if err != nil {
		return course.Quiz{}, err
	}
	if !m.IsPublished() {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	access, err := svc.Gating.IsModuleAccessible(ctx, userID, m.ID)
	if err != nil {
		return course.Quiz{}, errors.Wrap(err, "checking module access")
	}
	if !access.Accessible {
		return course.Quiz{}, core.NewRuleError(access.Reason)
	}
	visible, err := svc.Gating.IsExamVisible(ctx, userID, q)
	if err != nil {
		return course.Quiz{}, errors.Wrap(err, "checking exam visibility")
	}
	if !visible {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	return q, nil
}

// StudentView returns the quiz without its answer keys, along with the student's attempts.
func (svc *Service) StudentView(ctx context.Context, userID, quizID string) (StudentQuiz, error) {
	q, err := svc.loadForStudent(ctx, userID, quizID)
	if err != nil {
		return StudentQuiz{}, err
	}
	sq := newStudentQuiz(q, false)
	if sq.Attempts, err = svc.Attempts.ListAttempts(ctx, q.ID, userID); err != nil {
		return StudentQuiz{}, errors.Wrap(err, "listing attempts")
	}
	if sq.Decision, err = svc.Gating.CanTakeExam(ctx, userID, q); err != nil {
		return StudentQuiz{}, errors.Wrap(err, "checking exam eligibility")
	}
	return sq, nil
}

// StartAttempt opens an attempt at the quiz. An attempt still in progress is returned as is.
func (svc *Service) StartAttempt(ctx context.Context, userID, quizID string) (AttemptView, error) {
	q, err := svc.loadForStudent(ctx, userID, quizID)
	if err != nil {
		return AttemptView{}, err
	}

	attempts, err := svc.Attempts.ListAttempts(ctx, q.ID, userID)
	if err != nil {
		return AttemptView{}, errors.Wrap(err, "listing attempts")
	}
	for _, att := range attempts {
		if att.Status == course.AttemptInProgress {
			return AttemptView{Attempt: att, Quiz: newStudentQuiz(q, true)}, nil
		}
	}

	if q.IsExam {
		decision, err := svc.Gating.CanTakeExam(ctx, userID, q)
		if err != nil {
			return AttemptView{}, errors.Wrap(err, "checking exam eligibility")
		}
		if !decision.Allowed {
			return AttemptView{}, core.NewRuleError(decision.Reason)
		}
	}

	att, err := svc.Attempts.CreateAttempt(ctx, course.QuizAttempt{
		ID:        core.NewID(),
		QuizID:    q.ID,
		StudentID: userID,
		Status:    course.AttemptInProgress,
		Answers:   map[string]int{},
		MaxScore:  float64(q.TotalPoints),
		StartedAt: core.Now(),
	})
	if err != nil {
		return AttemptView{}, errors.Wrap(err, "creating attempt")
	}
	return AttemptView{Attempt: att, Quiz: newStudentQuiz(q, true)}, nil
}

// Grade scores the answers of a multiple-choice quiz: {question_id: option index}.
func Grade(q course.Quiz, answers map[string]int) (score, maxScore, percentage float64) {
	for _, qq := range q.Questions {
		maxScore += float64(qq.Points)
		if ans, ok := answers[qq.ID]; ok && ans == qq.CorrectOption {
			score += float64(qq.Points)
		}
	}
	if maxScore > 0 {
		percentage = math.Round(score/maxScore*10000) / 100
	}
	return score, maxScore, percentage
}

// SubmitAttempt grades the attempt, then records the result in the student's progress.
func (svc *Service) SubmitAttempt(ctx context.Context, userID, attemptID string, answers map[string]int) (course.QuizAttempt, error) {
	att, err := svc.Attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return course.QuizAttempt{}, err
	}
	if att.StudentID != userID {
		return course.QuizAttempt{}, course.ErrAttemptNotFound
	}
	if att.Status != course.AttemptInProgress {
		return course.QuizAttempt{}, errAlreadySubmitted
	}
	q, err := svc.Quizzes.GetQuiz(ctx, att.QuizID)
	if err != nil {
		return course.QuizAttempt{}, err
	}

	if answers == nil {
		answers = map[string]int{}
	}
	now := core.Now()
	att.Answers = answers
	att.Score, att.MaxScore, att.Percentage = Grade(q, answers)
	att.Status = course.AttemptGraded
	att.SubmittedAt = &now
	att.GradedAt = &now
	passed := q.Passed(att.Percentage)

	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if att, err = svc.Attempts.UpdateAttempt(ctx, att); err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		if q.IsModuleExam() {
			if _, err = svc.Gating.HandleExamResult(ctx, userID, q, passed, att.Percentage); err != nil {
				return errors.Wrap(err, "handling exam result")
			}
		}
		return errors.Wrap(svc.Progress.AutoCompleteForQuiz(ctx, userID, q, att.Percentage), "completing quiz item")
	})
	if err != nil {
		return course.QuizAttempt{}, err
	}
	return att, nil
}
