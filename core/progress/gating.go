package progress

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

// Gating decides which modules and exams a student may enter.
type Gating struct {
	Deps
}

func NewGating(deps Deps) *Gating {
	return &Gating{Deps: deps}
}

// gatesBefore returns the published modules placed before moduleID that must be passed to enter it.
func gatesBefore(outlines []course.ModuleOutline, moduleID string) []course.Module {
	var gates []course.Module
	for _, o := range outlines {
		if o.Module.ID == moduleID {
			return gates
		}
		if o.Module.IsPublished() && o.RequiresExamToUnlockNext() {
			gates = append(gates, o.Module)
		}
	}
	return nil
}

// checkGates walks the gates in order and stops at the first one the student has not passed.
func checkGates(gates []course.Module, progress map[string]ModuleProgress) Access {
	for _, gate := range gates {
		gate := gate
		p, ok := progress[gate.ID]
		switch {
		case !ok:
			return Access{
				Reason:         fmt.Sprintf("You must complete the exam of %q to unlock this module", gate.Title),
				BlockingModule: &gate,
			}
		case p.IsBlockedFromProgression():
			return Access{
				Reason:         fmt.Sprintf("You have used all exam attempts of %q. Please contact your instructor", gate.Title),
				BlockingModule: &gate,
			}
		case !p.IsCompleted():
			return Access{
				Reason:         fmt.Sprintf("You must pass the exam of %q to unlock this module", gate.Title),
				BlockingModule: &gate,
			}
		}
	}
	return Access{Accessible: true}
}

func (g *Gating) IsModuleAccessible(ctx context.Context, userID, moduleID string) (Access, error) {
	m, err := g.Courses.GetModule(ctx, moduleID)
	if err != nil {
		return Access{}, err
	}
	outlines, err := g.Courses.Outline(ctx, m.CourseID)
	if err != nil {
		return Access{}, errors.Wrap(err, "getting course outline")
	}
	gates := gatesBefore(outlines, moduleID)
	if len(gates) == 0 {
		return Access{Accessible: true}, nil
	}

	ids := make([]string, len(gates))
	for i, gate := range gates {
		ids[i] = gate.ID
	}
	progress, err := g.moduleProgressByID(ctx, userID, ids)
	if err != nil {
		return Access{}, err
	}
	return checkGates(gates, progress), nil
}

// failedExam reports whether the latest finished attempt of the exam scored below its passing score.
// A student without a finished attempt has not failed.
func (g *Gating) failedExam(ctx context.Context, userID string, exam course.Quiz) (bool, error) {
	att, err := g.lastFinishedAttempt(ctx, userID, exam.ID)
	if err != nil || att == nil {
		return false, err
	}
	return !exam.Passed(att.Percentage), nil
}

func (g *Gating) examVisibleIn(ctx context.Context, userID string, outline course.ModuleOutline, quiz course.Quiz) (bool, error) {
	exams := outline.Exams()
	for i, exam := range exams {
		if exam.ID != quiz.ID {
			continue
		}
		if i == 0 {
			return true, nil
		}
		return g.failedExam(ctx, userID, exams[i-1])
	}
	return true, nil
}

// IsExamVisible reports whether the student can see the quiz. Only module exams are ever hidden:
// each exam after the first shows once the student failed the exam right before it.
func (g *Gating) IsExamVisible(ctx context.Context, userID string, quiz course.Quiz) (bool, error) {
	if !quiz.IsModuleExam() {
		return true, nil
	}
	outline, err := g.Courses.ModuleOutline(ctx, *quiz.ModuleID)
	if err != nil {
		return false, errors.Wrap(err, "getting module outline")
	}
	return g.examVisibleIn(ctx, userID, outline, quiz)
}

// CanTakeExam reports whether the student may start an attempt at the exam.
func (g *Gating) CanTakeExam(ctx context.Context, userID string, quiz course.Quiz) (ExamDecision, error) {
	if !quiz.IsModuleExam() {
		return ExamDecision{Allowed: true}, nil
	}
	outline, err := g.Courses.ModuleOutline(ctx, *quiz.ModuleID)
	if err != nil {
		return ExamDecision{}, errors.Wrap(err, "getting module outline")
	}

	var taken bool
	for _, exam := range outline.Exams() {
		att, err := g.lastFinishedAttempt(ctx, userID, exam.ID)
		if err != nil {
			return ExamDecision{}, err
		}
		if att == nil {
			continue
		}
		if exam.Passed(att.Percentage) {
			return ExamDecision{Reason: "You have already passed the exam of this module"}, nil
		}
		if exam.ID == quiz.ID {
			taken = true
		}
	}
	if taken {
		return ExamDecision{Reason: "You have already taken this exam"}, nil
	}

	visible, err := g.examVisibleIn(ctx, userID, outline, quiz)
	if err != nil {
		return ExamDecision{}, err
	}
	if !visible {
		return ExamDecision{Reason: "This exam is not available yet"}, nil
	}
	return ExamDecision{Allowed: true}, nil
}

// HandleExamResult records a graded module exam in the student's module progress.
func (g *Gating) HandleExamResult(ctx context.Context, userID string, quiz course.Quiz, passed bool, score float64) (ModuleProgress, error) {
	if !quiz.IsModuleExam() {
		return ModuleProgress{}, nil
	}
	moduleID := *quiz.ModuleID
	p, err := g.getOrCreateModuleProgress(ctx, userID, moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}
	if p.IsCompleted() {
		return p, nil
	}

	p.applyExamResult(quiz.ExamRole, passed, score, core.Now())
	if p, err = g.Repo.UpdateModuleProgress(ctx, p); err != nil {
		return ModuleProgress{}, errors.Wrap(err, "updating module progress")
	}
	g.Inv.Emit(ctx, core.ProgressChanged{UserID: userID, CourseID: quiz.CourseID, ModuleID: moduleID})
	return p, nil
}
