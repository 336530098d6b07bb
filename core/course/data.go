package course

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// CourseData is used to create or update a Course.
type CourseData struct {
	ProgramID   string `json:"program_id" validate:"required,uuid"`
	Code        string `json:"code" validate:"required,max=20,code"`
	Name        string `json:"name" validate:"required,notblank,max=255"`
	Description string `json:"description"`
	CreditHours int    `json:"credit_hours" validate:"gte=0,lte=60"`
}

func (d *CourseData) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excludedID ...string) error {
	d.Code = strings.ToUpper(core.CleanString(d.Code))
	d.Name = core.CleanString(d.Name)
	d.Description = core.CleanString(d.Description)
	if err := validate.Struct(d); err != nil {
		return err
	}
	if err := svc.checkProgram(ctx, d.ProgramID); err != nil {
		return err
	}
	exists, err := svc.Repo.CourseCodeExists(ctx, d.Code, excludedID...)
	if err != nil {
		return errors.Wrap(err, "checking course code")
	}
	if exists {
		return core.NewValidationError(errCourseCodeExists, core.FieldError{Field: "code", Error: errCourseCodeExists.Error()})
	}
	return nil
}

type ModuleData struct {
	Title            string `json:"title" validate:"required,notblank,max=255"`
	Description      string `json:"description"`
	OrderIndex       *int   `json:"order_index" validate:"omitempty,gte=0"`
	RequiresExamPass bool   `json:"requires_exam_pass"`
}

func (d *ModuleData) Validate(validate *validator.Validate) error {
	d.Title = core.CleanString(d.Title)
	d.Description = core.CleanString(d.Description)
	return validate.Struct(d)
}

type LessonData struct {
	Title           string `json:"title" validate:"required,notblank,max=255"`
	Content         string `json:"content"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	Publish         bool   `json:"publish"`
}

func (d *LessonData) Validate(validate *validator.Validate) error {
	d.Title = core.CleanString(d.Title)
	return validate.Struct(d)
}

type QuestionData struct {
	Text          string   `json:"text" validate:"required,notblank"`
	Options       []string `json:"options" validate:"required,min=2,dive,required"`
	CorrectOption int      `json:"correct_option" validate:"gte=0"`
	Points        int      `json:"points" validate:"gte=1"`
}

type QuizData struct {
	Title            string         `json:"title" validate:"required,notblank,max=255"`
	Description      string         `json:"description"`
	IsExam           bool           `json:"is_exam"`
	ExamRole         string         `json:"exam_role" validate:"omitempty,oneof=primary retake"`
	PassingScore     float64        `json:"passing_score" validate:"gte=0,lte=100"`
	TimeLimitMinutes int            `json:"time_limit_minutes" validate:"gte=0"`
	Publish          bool           `json:"publish"`
	Questions        []QuestionData `json:"questions" validate:"required,min=1,dive"`
}

func (d *QuizData) Validate(validate *validator.Validate) error {
	d.Title = core.CleanString(d.Title)
	d.Description = core.CleanString(d.Description)
	if !d.IsExam {
		d.ExamRole = ""
	}
	if err := validate.Struct(d); err != nil {
		return err
	}
	for i, q := range d.Questions {
		if q.CorrectOption >= len(q.Options) {
			return core.NewValidationError(errCorrectOption, core.FieldError{
				Field: "questions[" + strconv.Itoa(i) + "].correct_option",
				Error: errCorrectOption.Error(),
			})
		}
	}
	return nil
}

func (d QuizData) totalPoints() int {
	var total int
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

type AssignmentData struct {
	Title        string     `json:"title" validate:"required,notblank,max=255"`
	Description  string     `json:"description"`
	TotalPoints  int        `json:"total_points" validate:"gte=1"`
	PassingScore float64    `json:"passing_score" validate:"gte=0,lte=100"`
	DueAt        *time.Time `json:"due_at"`
	Publish      bool       `json:"publish"`
}

func (d *AssignmentData) Validate(validate *validator.Validate) error {
	d.Title = core.CleanString(d.Title)
	d.Description = core.CleanString(d.Description)
	return validate.Struct(d)
}

type QueryFilter struct {
	ProgramID    string `query:"program_id"`
	InstructorID string `query:"instructor_id"`
	Status       string `query:"status"`
}

type CountFilter struct {
	Status       string
	CreatedAfter time.Time
}
