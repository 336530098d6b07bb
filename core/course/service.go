package course

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/department"
	"github.com/trezcool/academia/core/instructor"
)

var (
	ErrNotFound           = core.NewNotFoundError("course not found")
	ErrModuleNotFound     = core.NewNotFoundError("module not found")
	ErrItemNotFound       = core.NewNotFoundError("module item not found")
	ErrLessonNotFound     = core.NewNotFoundError("lesson not found")
	ErrQuizNotFound       = core.NewNotFoundError("quiz not found")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment not found")
	ErrAttemptNotFound    = core.NewNotFoundError("quiz attempt not found")

	errCourseCodeExists  = errors.New("a course with this code already exists")
	errUnknownProgram    = errors.New("program not found")
	errUnknownInstructor = errors.New("instructor not found")
	errCorrectOption     = errors.New("correct option must be one of the options")

	errPrimaryExists   = core.NewRuleError("This module already has a primary exam")
	errRetakeExists    = core.NewRuleError("This module already has a retake exam")
	errRetakeNoPrimary = core.NewRuleError("Add the primary exam before its retake")
	errQuizAttempted   = core.NewRuleError("Quizzes with submitted attempts cannot be edited")
	errItemOrder       = core.NewRuleError("The new order must list every item of the module exactly once")
	errExamOrder       = core.NewRuleError("The retake exam must come after the primary exam")
	errModuleOrder     = core.NewRuleError("The new order must list every module of the course exactly once")
	errMediaType       = core.NewRuleError("Lesson media must be a video, audio, PDF or image file")

	Orderings = map[string]string{
		"code":         "code",
		"name":         "name",
		"status":       "status",
		"credit_hours": "credit_hours",
		"created_at":   "created_at",
	}

	mediaExts = map[string]bool{
		".mp4": true, ".webm": true, ".mp3": true, ".pdf": true,
		".png": true, ".jpg": true, ".jpeg": true,
	}

	// allowed lifecycle moves: {target: sources}
	transitions = map[string][]string{
		StatusPublished: {StatusDraft, StatusArchived},
		StatusArchived:  {StatusDraft, StatusPublished},
	}
)

type (
	AttemptRepository interface {
		CreateAttempt(ctx context.Context, att QuizAttempt) (QuizAttempt, error)
		UpdateAttempt(ctx context.Context, att QuizAttempt) (QuizAttempt, error)
		GetAttempt(ctx context.Context, id string) (QuizAttempt, error)
		// ListAttempts returns the attempts of a user at a quiz, most recent first.
		ListAttempts(ctx context.Context, quizID, userID string) ([]QuizAttempt, error)
		CountFinishedAttempts(ctx context.Context, quizID string) (int, error)
	}

	Repository interface {
		AttemptRepository

		CourseCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error)
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// UpdateCourse also replaces the course instructors.
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		// GetCourse ignores soft deleted courses.
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Course], error)
		CountCourses(ctx context.Context, filter CountFilter) (int, error)

		CreateModule(ctx context.Context, m Module) (Module, error)
		UpdateModule(ctx context.Context, m Module) (Module, error)
		DeleteModule(ctx context.Context, id string) error
		GetModule(ctx context.Context, id string) (Module, error)
		// ListModules returns the modules of a course ordered by order index.
		ListModules(ctx context.Context, courseID string) ([]Module, error)
		CountModulesByCourse(ctx context.Context, courseIDs ...string) (map[string]int, error)

		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error
		GetLesson(ctx context.Context, id string) (Lesson, error)

		// CreateQuiz and UpdateQuiz also write the quiz questions.
		CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
		DeleteQuiz(ctx context.Context, id string) error
		GetQuiz(ctx context.Context, id string) (Quiz, error)

		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		ListAssignments(ctx context.Context, courseIDs ...string) ([]Assignment, error)

		CreateModuleItem(ctx context.Context, it ModuleItem) (ModuleItem, error)
		DeleteModuleItem(ctx context.Context, id string) error
		// SetItemPositions sets the order position of each item: {item_id: position}.
		SetItemPositions(ctx context.Context, positions map[string]int) error
		// GetModuleItem, GetItemByContent and ListModuleItems load the item content.
		GetModuleItem(ctx context.Context, id string) (ModuleItem, error)
		GetItemByContent(ctx context.Context, itemType ItemType, contentID string) (ModuleItem, error)
		// ListModuleItems returns the items of the given modules ordered by position.
		ListModuleItems(ctx context.Context, moduleIDs ...string) ([]ModuleItem, error)
	}

	ProgramReader interface {
		GetProgram(ctx context.Context, id string) (department.Program, error)
		GetPrograms(ctx context.Context, ids ...string) (map[string]department.Program, error)
	}

	InstructorReader interface {
		GetMany(ctx context.Context, ids ...string) (map[string]instructor.Instructor, error)
	}

	StudentCounter interface {
		CountByProgram(ctx context.Context, programIDs ...string) (map[string]int, error)
	}

	Deps struct {
		Repo        Repository
		Programs    ProgramReader
		Instructors InstructorReader
		Students    StudentCounter
		Tx          core.Transactor
		Storage     core.FileStorage
		Cache       core.Cache
		Inv         *core.Invalidator
		Logger      core.Logger
		StatsTTL    time.Duration
	}

	// Service manages courses, their modules and the module contents.
	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

func (svc *Service) checkProgram(ctx context.Context, programID string) error {
	if _, err := svc.Programs.GetProgram(ctx, programID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(errUnknownProgram, core.FieldError{Field: "program_id", Error: errUnknownProgram.Error()})
		}
		return errors.Wrap(err, "getting program")
	}
	return nil
}

func checkTransition(kind, from, to string) error {
	if from == to {
		return core.NewRuleError(fmt.Sprintf("The %s is already %s", kind, to))
	}
	for _, src := range transitions[to] {
		if src == from {
			return nil
		}
	}
	return core.NewRuleError(fmt.Sprintf("A %s %s cannot be %s", from, kind, to))
}

// Courses

func (svc *Service) CreateCourse(ctx context.Context, actor core.Actor, data CourseData) (Course, error) {
	now := core.Now()
	c, err := svc.Repo.CreateCourse(ctx, Course{
		ID:            core.NewID(),
		ProgramID:     data.ProgramID,
		Code:          data.Code,
		Name:          data.Name,
		Description:   data.Description,
		CreditHours:   data.CreditHours,
		Status:        StatusDraft,
		InstructorIDs: []string{},
		CreatedBy:     actor.AuditID(),
		UpdatedBy:     actor.AuditID(),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: c.ID})
	return c, nil
}

func (svc *Service) UpdateCourse(ctx context.Context, actor core.Actor, id string, data CourseData) (Course, error) {
	c, err := svc.Repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.ProgramID = data.ProgramID
	c.Code = data.Code
	c.Name = data.Name
	c.Description = data.Description
	c.CreditHours = data.CreditHours
	return svc.saveCourse(ctx, actor, c)
}

func (svc *Service) saveCourse(ctx context.Context, actor core.Actor, c Course) (Course, error) {
	c.UpdatedBy = actor.AuditID()
	c.UpdatedAt = core.Now()
	c, err := svc.Repo.UpdateCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: c.ID})
	return c, nil
}

func (svc *Service) PublishCourse(ctx context.Context, actor core.Actor, id string) (Course, error) {
	return svc.moveCourse(ctx, actor, id, StatusPublished)
}

func (svc *Service) ArchiveCourse(ctx context.Context, actor core.Actor, id string) (Course, error) {
	return svc.moveCourse(ctx, actor, id, StatusArchived)
}

func (svc *Service) moveCourse(ctx context.Context, actor core.Actor, id, status string) (Course, error) {
	c, err := svc.Repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if err = checkTransition("course", c.Status, status); err != nil {
		return Course{}, err
	}
	c.Status = status
	return svc.saveCourse(ctx, actor, c)
}

// DeleteCourse soft deletes the course.
func (svc *Service) DeleteCourse(ctx context.Context, actor core.Actor, id string) error {
	c, err := svc.Repo.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	now := core.Now()
	c.DeletedAt = &now
	c.Status = StatusArchived
	_, err = svc.saveCourse(ctx, actor, c)
	return err
}

// AssignInstructors replaces the instructors teaching the course.
func (svc *Service) AssignInstructors(ctx context.Context, actor core.Actor, id string, instructorIDs []string) (Course, error) {
	c, err := svc.Repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	ids := dedupe(instructorIDs)
	found, err := svc.Instructors.GetMany(ctx, ids...)
	if err != nil {
		return Course{}, errors.Wrap(err, "getting instructors")
	}
	for _, iid := range ids {
		if _, ok := found[iid]; !ok {
			return Course{}, core.NewValidationError(errUnknownInstructor, core.FieldError{Field: "instructor_ids", Error: errUnknownInstructor.Error()})
		}
	}
	c.InstructorIDs = ids
	c, err = svc.saveCourse(ctx, actor, c)
	if err != nil {
		return Course{}, err
	}
	svc.Inv.Emit(ctx, core.InstructorsChanged{})
	return c, nil
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.Repo.GetCourse(ctx, id)
}

func (svc *Service) QueryCourses(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Course], error) {
	pq.Clean(Orderings)
	return svc.Repo.QueryCourses(ctx, filter, pq)
}

// CoursesForInstructor lists every course taught by the instructor.
func (svc *Service) CoursesForInstructor(ctx context.Context, instructorID string) ([]Course, error) {
	page, err := svc.Repo.QueryCourses(ctx, QueryFilter{InstructorID: instructorID}, core.PageQuery{})
	return page.Items, err
}

// PublishedCoursesForProgram lists the published courses of a program.
func (svc *Service) PublishedCoursesForProgram(ctx context.Context, programID string) ([]Course, error) {
	page, err := svc.Repo.QueryCourses(
		ctx,
		QueryFilter{ProgramID: programID, Status: StatusPublished},
		core.PageQuery{Orderings: []core.DBOrdering{{Field: "code", Ascending: true}}},
	)
	return page.Items, err
}

func (svc *Service) Stats(ctx context.Context) (core.CountStats, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.CourseStatsKey, svc.StatsTTL,
		func(ctx context.Context) (core.CountStats, error) {
			var stats core.CountStats
			var err error
			if stats.Total, err = svc.Repo.CountCourses(ctx, CountFilter{}); err != nil {
				return stats, errors.Wrap(err, "counting courses")
			}
			if stats.Active, err = svc.Repo.CountCourses(ctx, CountFilter{Status: StatusPublished}); err != nil {
				return stats, errors.Wrap(err, "counting published courses")
			}
			stats.NewThisMonth, err = svc.Repo.CountCourses(ctx, CountFilter{CreatedAfter: core.StartOfMonth(core.Now())})
			return stats, errors.Wrap(err, "counting new courses")
		},
	)
}

// Modules

func (svc *Service) CreateModule(ctx context.Context, actor core.Actor, courseID string, data ModuleData) (Module, error) {
	if _, err := svc.Repo.GetCourse(ctx, courseID); err != nil {
		return Module{}, err
	}
	modules, err := svc.Repo.ListModules(ctx, courseID)
	if err != nil {
		return Module{}, errors.Wrap(err, "listing modules")
	}
	order := len(modules)
	if n := len(modules); n > 0 && modules[n-1].OrderIndex >= order {
		order = modules[n-1].OrderIndex + 1
	}
	if data.OrderIndex != nil {
		order = *data.OrderIndex
	}

	now := core.Now()
	m, err := svc.Repo.CreateModule(ctx, Module{
		ID:               core.NewID(),
		CourseID:         courseID,
		Title:            data.Title,
		Description:      data.Description,
		OrderIndex:       order,
		RequiresExamPass: data.RequiresExamPass,
		Status:           StatusDraft,
		CreatedBy:        actor.AuditID(),
		UpdatedBy:        actor.AuditID(),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Module{}, errors.Wrap(err, "creating module")
	}
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: courseID, ModuleIDs: []string{m.ID}})
	return m, nil
}

func (svc *Service) UpdateModule(ctx context.Context, actor core.Actor, id string, data ModuleData) (Module, error) {
	m, err := svc.Repo.GetModule(ctx, id)
	if err != nil {
		return Module{}, err
	}
	m.Title = data.Title
	m.Description = data.Description
	m.RequiresExamPass = data.RequiresExamPass
	if data.OrderIndex != nil {
		m.OrderIndex = *data.OrderIndex
	}
	return svc.saveModule(ctx, actor, m)
}

func (svc *Service) saveModule(ctx context.Context, actor core.Actor, m Module) (Module, error) {
	m.UpdatedBy = actor.AuditID()
	m.UpdatedAt = core.Now()
	m, err := svc.Repo.UpdateModule(ctx, m)
	if err != nil {
		return Module{}, errors.Wrap(err, "updating module")
	}
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: m.CourseID, ModuleIDs: []string{m.ID}})
	return m, nil
}

func (svc *Service) PublishModule(ctx context.Context, actor core.Actor, id string) (Module, error) {
	return svc.moveModule(ctx, actor, id, StatusPublished)
}

func (svc *Service) ArchiveModule(ctx context.Context, actor core.Actor, id string) (Module, error) {
	return svc.moveModule(ctx, actor, id, StatusArchived)
}

func (svc *Service) moveModule(ctx context.Context, actor core.Actor, id, status string) (Module, error) {
	m, err := svc.Repo.GetModule(ctx, id)
	if err != nil {
		return Module{}, err
	}
	if err = checkTransition("module", m.Status, status); err != nil {
		return Module{}, err
	}
	m.Status = status
	return svc.saveModule(ctx, actor, m)
}

// DeleteModule deletes the module along with its items and their contents.
func (svc *Service) DeleteModule(ctx context.Context, actor core.Actor, id string) error {
	m, err := svc.Repo.GetModule(ctx, id)
	if err != nil {
		return err
	}
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		items, err := svc.Repo.ListModuleItems(ctx, id)
		if err != nil {
			return errors.Wrap(err, "listing module items")
		}
		for _, it := range items {
			if err = svc.removeItem(ctx, it); err != nil {
				return err
			}
		}
		return errors.Wrap(svc.Repo.DeleteModule(ctx, id), "deleting module")
	})
	if err != nil {
		return err
	}
	svc.Logger.Info(fmt.Sprintf("module %s (%s) deleted", m.ID, m.Title), actor)
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: m.CourseID, ModuleIDs: []string{m.ID}})
	return nil
}

// ReorderModules sets the module order of a course to the order of moduleIDs.
func (svc *Service) ReorderModules(ctx context.Context, actor core.Actor, courseID string, moduleIDs []string) ([]Module, error) {
	modules, err := svc.Repo.ListModules(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing modules")
	}
	ids := make([]string, len(modules))
	for i, m := range modules {
		ids[i] = m.ID
	}
	if !samePermutation(ids, moduleIDs) {
		return nil, errModuleOrder
	}

	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		for i, mid := range moduleIDs {
			m, err := svc.Repo.GetModule(ctx, mid)
			if err != nil {
				return err
			}
			m.OrderIndex = i
			m.UpdatedBy = actor.AuditID()
			m.UpdatedAt = core.Now()
			if _, err = svc.Repo.UpdateModule(ctx, m); err != nil {
				return errors.Wrap(err, "updating module order")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: courseID, ModuleIDs: moduleIDs})
	return svc.Repo.ListModules(ctx, courseID)
}

func (svc *Service) GetModule(ctx context.Context, id string) (Module, error) {
	return svc.Repo.GetModule(ctx, id)
}

func (svc *Service) ListModules(ctx context.Context, courseID string) ([]Module, error) {
	return svc.Repo.ListModules(ctx, courseID)
}

// Outlines

// Outline returns every module of the course along with its items.
func (svc *Service) Outline(ctx context.Context, courseID string) ([]ModuleOutline, error) {
	modules, err := svc.Repo.ListModules(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing modules")
	}
	if len(modules) == 0 {
		return []ModuleOutline{}, nil
	}
	ids := make([]string, len(modules))
	for i, m := range modules {
		ids[i] = m.ID
	}
	items, err := svc.Repo.ListModuleItems(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "listing module items")
	}

	byModule := make(map[string][]ModuleItem, len(modules))
	for _, it := range items {
		byModule[it.ModuleID] = append(byModule[it.ModuleID], it)
	}
	outlines := make([]ModuleOutline, len(modules))
	for i, m := range modules {
		outlines[i] = ModuleOutline{Module: m, Items: byModule[m.ID]}
		sortItems(outlines[i].Items)
	}
	return outlines, nil
}

func (svc *Service) ModuleOutline(ctx context.Context, moduleID string) (ModuleOutline, error) {
	m, err := svc.Repo.GetModule(ctx, moduleID)
	if err != nil {
		return ModuleOutline{}, err
	}
	items, err := svc.Repo.ListModuleItems(ctx, moduleID)
	if err != nil {
		return ModuleOutline{}, errors.Wrap(err, "listing module items")
	}
	sortItems(items)
	return ModuleOutline{Module: m, Items: items}, nil
}

// ModuleOutlines returns the outlines of the given modules, in the given order.
func (svc *Service) ModuleOutlines(ctx context.Context, moduleIDs ...string) ([]ModuleOutline, error) {
	ids := dedupe(moduleIDs)
	if len(ids) == 0 {
		return []ModuleOutline{}, nil
	}
	items, err := svc.Repo.ListModuleItems(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "listing module items")
	}
	byModule := make(map[string][]ModuleItem, len(ids))
	for _, it := range items {
		byModule[it.ModuleID] = append(byModule[it.ModuleID], it)
	}
	outlines := make([]ModuleOutline, 0, len(ids))
	for _, id := range ids {
		m, err := svc.Repo.GetModule(ctx, id)
		if err != nil {
			return nil, err
		}
		o := ModuleOutline{Module: m, Items: byModule[id]}
		sortItems(o.Items)
		outlines = append(outlines, o)
	}
	return outlines, nil
}

func (svc *Service) GetModuleItem(ctx context.Context, id string) (ModuleItem, error) {
	return svc.Repo.GetModuleItem(ctx, id)
}

func (svc *Service) GetItemByContent(ctx context.Context, itemType ItemType, contentID string) (ModuleItem, error) {
	return svc.Repo.GetItemByContent(ctx, itemType, contentID)
}

func (svc *Service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.Repo.GetLesson(ctx, id)
}

func (svc *Service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return svc.Repo.GetQuiz(ctx, id)
}

func (svc *Service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.Repo.GetAssignment(ctx, id)
}

func (svc *Service) ListAssignments(ctx context.Context, courseIDs ...string) ([]Assignment, error) {
	return svc.Repo.ListAssignments(ctx, courseIDs...)
}

func (svc *Service) ListAttempts(ctx context.Context, quizID, userID string) ([]QuizAttempt, error) {
	return svc.Repo.ListAttempts(ctx, quizID, userID)
}

// Items

// addItem creates the content with create, then appends it to the module.
func (svc *Service) addItem(ctx context.Context, actor core.Actor, m Module, create func(ctx context.Context) (ItemContent, error)) (ModuleItem, error) {
	var item ModuleItem
	err := svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		content, err := create(ctx)
		if err != nil {
			return err
		}
		items, err := svc.Repo.ListModuleItems(ctx, m.ID)
		if err != nil {
			return errors.Wrap(err, "listing module items")
		}
		pos := 0
		for _, it := range items {
			if it.OrderPosition >= pos {
				pos = it.OrderPosition + 1
			}
		}
		item, err = svc.Repo.CreateModuleItem(ctx, ModuleItem{
			ID:            core.NewID(),
			ModuleID:      m.ID,
			OrderPosition: pos,
			CreatedAt:     core.Now(),
			Content:       content,
		})
		if err != nil {
			return errors.Wrap(err, "creating module item")
		}
		m.UpdatedBy = actor.AuditID()
		m.UpdatedAt = core.Now()
		_, err = svc.Repo.UpdateModule(ctx, m)
		return errors.Wrap(err, "updating module")
	})
	if err != nil {
		return ModuleItem{}, err
	}
	svc.Inv.Emit(ctx, core.CoursesChanged{CourseID: m.CourseID, ModuleIDs: []string{m.ID}})
	return item, nil
}

func (svc *Service) AddLesson(ctx context.Context, actor core.Actor, moduleID string, data LessonData) (ModuleItem, error) {
	m, err := svc.Repo.GetModule(ctx, moduleID)
	if err != nil {
		return ModuleItem{}, err
	}
	return svc.addItem(ctx, actor, m, func(ctx context.Context) (ItemContent, error) {
		now := core.Now()
		l := Lesson{
			ID:              core.NewID(),
			ModuleID:        m.ID,
			Title:           data.Title,
			Content:         data.Content,
			DurationMinutes: data.DurationMinutes,
			Status:          StatusDraft,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if data.Publish {
			l.Status = StatusPublished
		}
		l, err := svc.Repo.CreateLesson(ctx, l)
		return l, errors.Wrap(err, "creating lesson")
	})
}

// checkExamRole resolves the role of a new exam of the module. Modules hold at most one primary
// exam and one retake, the retake coming after the primary.
func checkExamRole(outline ModuleOutline, role string) (string, error) {
	_, hasPrimary := outline.PrimaryExam()
	_, hasRetake := outline.RetakeExam()
	if role == "" {
		role = ExamRolePrimary
		if hasPrimary {
			role = ExamRoleRetake
		}
	}
	switch {
	case role == ExamRolePrimary && hasPrimary:
		return "", errPrimaryExists
	case role == ExamRoleRetake && hasRetake:
		return "", errRetakeExists
	case role == ExamRoleRetake && !hasPrimary:
		return "", errRetakeNoPrimary
	}
	return role, nil
}

func buildQuestions(quizID string, data []QuestionData) []Question {
	questions := make([]Question, len(data))
	for i, qd := range data {
		questions[i] = Question{
			ID:            core.NewID(),
			QuizID:        quizID,
			Text:          core.CleanString(qd.Text),
			Options:       qd.Options,
			CorrectOption: qd.CorrectOption,
			Points:        qd.Points,
			Position:      i,
		}
	}
	return questions
}

func (svc *Service) AddQuiz(ctx context.Context, actor core.Actor, moduleID string, data QuizData) (ModuleItem, error) {
	outline, err := svc.ModuleOutline(ctx, moduleID)
	if err != nil {
		return ModuleItem{}, err
	}
	role := ""
	if data.IsExam {
		if role, err = checkExamRole(outline, data.ExamRole); err != nil {
			return ModuleItem{}, err
		}
	}

	m := outline.Module
	return svc.addItem(ctx, actor, m, func(ctx context.Context) (ItemContent, error) {
		now := core.Now()
		mid := m.ID
		q := Quiz{
			ID:               core.NewID(),
			CourseID:         m.CourseID,
			ModuleID:         &mid,
			Title:            data.Title,
			Description:      data.Description,
			IsExam:           data.IsExam,
			ExamRole:         role,
			PassingScore:     data.PassingScore,
			TotalPoints:      data.totalPoints(),
			Published:        data.Publish,
			TimeLimitMinutes: data.TimeLimitMinutes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		q.Questions = buildQuestions(q.ID, data.Questions)
		q, err := svc.Repo.CreateQuiz(ctx, q)
		return q, errors.Wrap(err, "creating quiz")
	})
}

func (svc *Service) AddAssignment(ctx context.Context, actor core.Actor, moduleID string, data AssignmentData) (ModuleItem, error) {
	m, err := svc.Repo.GetModule(ctx, moduleID)
	if err != nil {
		return ModuleItem{}, err
	}
	return svc.addItem(ctx, actor, m, func(ctx context.Context) (ItemContent, error) {
		now := core.Now()
		mid := m.ID
		a, err := svc.Repo.CreateAssignment(ctx, Assignment{
			ID:           core.NewID(),
			CourseID:     m.CourseID,
			ModuleID:     &mid,
			Title:        data.Title,
			Description:  data.Description,
			TotalPoints:  data.TotalPoints,
			PassingScore: data.PassingScore,
			DueAt:        data.DueAt,
			Published:    data.Publish,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return a, errors.Wrap(err, "creating assignment")
	})
}

func (svc *Service) UpdateLesson(ctx context.Context, actor core.Actor, id string, data LessonData) (Lesson, error) {
	l, err := svc.Repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	l.Title = data.Title
	l.Content = data.Content
	l.DurationMinutes = data.DurationMinutes
	l.UpdatedAt = core.Now()
	if l, err = svc.Repo.UpdateLesson(ctx, l); err != nil {
		return Lesson{}, errors.Wrap(err, "updating lesson")
	}
	svc.touchModule(ctx, actor, l.ModuleID)
	return l, nil
}

// UpdateQuiz replaces the quiz settings and questions. The exam role cannot change.
func (svc *Service) UpdateQuiz(ctx context.Context, actor core.Actor, id string, data QuizData) (Quiz, error) {
	q, err := svc.Repo.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	finished, err := svc.Repo.CountFinishedAttempts(ctx, q.ID)
	if err != nil {
		return Quiz{}, errors.Wrap(err, "counting attempts")
	}
	if finished > 0 {
		return Quiz{}, errQuizAttempted
	}
	q.Title = data.Title
	q.Description = data.Description
	q.PassingScore = data.PassingScore
	q.TimeLimitMinutes = data.TimeLimitMinutes
	q.TotalPoints = data.totalPoints()
	q.Questions = buildQuestions(q.ID, data.Questions)
	q.UpdatedAt = core.Now()
	if q, err = svc.Repo.UpdateQuiz(ctx, q); err != nil {
		return Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if q.ModuleID != nil {
		svc.touchModule(ctx, actor, *q.ModuleID)
	}
	return q, nil
}

func (svc *Service) UpdateAssignment(ctx context.Context, actor core.Actor, id string, data AssignmentData) (Assignment, error) {
	a, err := svc.Repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	a.Title = data.Title
	a.Description = data.Description
	a.TotalPoints = data.TotalPoints
	a.PassingScore = data.PassingScore
	a.DueAt = data.DueAt
	a.UpdatedAt = core.Now()
	if a, err = svc.Repo.UpdateAssignment(ctx, a); err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if a.ModuleID != nil {
		svc.touchModule(ctx, actor, *a.ModuleID)
	}
	return a, nil
}

// touchModule records actor as the last editor of the module whose content changed.
func (svc *Service) touchModule(ctx context.Context, actor core.Actor, moduleID string) {
	m, err := svc.Repo.GetModule(ctx, moduleID)
	if err == nil {
		_, err = svc.saveModule(ctx, actor, m)
	}
	if err != nil {
		svc.Logger.Warn(fmt.Sprintf("touching module %s: %v", moduleID, err), err, actor)
		svc.Inv.Emit(ctx, core.CoursesChanged{ModuleIDs: []string{moduleID}})
	}
}

// SetItemPublished publishes or unpublishes the content of an item.
func (svc *Service) SetItemPublished(ctx context.Context, actor core.Actor, itemID string, published bool) (ModuleItem, error) {
	it, err := svc.Repo.GetModuleItem(ctx, itemID)
	if err != nil {
		return ModuleItem{}, err
	}
	now := core.Now()
	switch content := it.Content.(type) {
	case Lesson:
		content.Status = StatusDraft
		if published {
			content.Status = StatusPublished
		}
		content.UpdatedAt = now
		it.Content, err = svc.Repo.UpdateLesson(ctx, content)
	case Quiz:
		content.Published = published
		content.UpdatedAt = now
		it.Content, err = svc.Repo.UpdateQuiz(ctx, content)
	case Assignment:
		content.Published = published
		content.UpdatedAt = now
		it.Content, err = svc.Repo.UpdateAssignment(ctx, content)
	default:
		return ModuleItem{}, ErrItemNotFound
	}
	if err != nil {
		return ModuleItem{}, errors.Wrap(err, "updating item content")
	}
	svc.touchModule(ctx, actor, it.ModuleID)
	return it, nil
}

// removeItem deletes the item and its content. Assignments are soft deleted to keep their grades.
func (svc *Service) removeItem(ctx context.Context, it ModuleItem) error {
	if err := svc.Repo.DeleteModuleItem(ctx, it.ID); err != nil {
		return errors.Wrap(err, "deleting module item")
	}
	var err error
	switch content := it.Content.(type) {
	case Lesson:
		err = svc.Repo.DeleteLesson(ctx, content.ID)
	case Quiz:
		err = svc.Repo.DeleteQuiz(ctx, content.ID)
	case Assignment:
		now := core.Now()
		content.DeletedAt = &now
		content.UpdatedAt = now
		_, err = svc.Repo.UpdateAssignment(ctx, content)
	}
	return errors.Wrap(err, "deleting item content")
}

func (svc *Service) RemoveItem(ctx context.Context, actor core.Actor, itemID string) error {
	it, err := svc.Repo.GetModuleItem(ctx, itemID)
	if err != nil {
		return err
	}
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := svc.removeItem(ctx, it); err != nil {
			return err
		}
		rest, err := svc.Repo.ListModuleItems(ctx, it.ModuleID)
		if err != nil {
			return errors.Wrap(err, "listing module items")
		}
		sortItems(rest)
		positions := make(map[string]int, len(rest))
		for i, r := range rest {
			positions[r.ID] = i
		}
		return errors.Wrap(svc.Repo.SetItemPositions(ctx, positions), "compacting positions")
	})
	if err != nil {
		return err
	}
	svc.touchModule(ctx, actor, it.ModuleID)
	return nil
}

// ReorderItems sets the item order of a module to the order of itemIDs.
func (svc *Service) ReorderItems(ctx context.Context, actor core.Actor, moduleID string, itemIDs []string) (ModuleOutline, error) {
	outline, err := svc.ModuleOutline(ctx, moduleID)
	if err != nil {
		return ModuleOutline{}, err
	}
	ids := make([]string, len(outline.Items))
	for i, it := range outline.Items {
		ids[i] = it.ID
	}
	if !samePermutation(ids, itemIDs) {
		return ModuleOutline{}, errItemOrder
	}
	positions := make(map[string]int, len(itemIDs))
	for i, id := range itemIDs {
		positions[id] = i
	}
	if primary, retake := examItems(outline); primary != "" && retake != "" && positions[retake] < positions[primary] {
		return ModuleOutline{}, errExamOrder
	}
	if err = svc.Repo.SetItemPositions(ctx, positions); err != nil {
		return ModuleOutline{}, errors.Wrap(err, "setting item positions")
	}
	svc.touchModule(ctx, actor, moduleID)
	return svc.ModuleOutline(ctx, moduleID)
}

// UploadLessonMedia stores the lesson media under lessons/{module_id}/.
func (svc *Service) UploadLessonMedia(ctx context.Context, actor core.Actor, lessonID, filename string, r io.Reader) (Lesson, error) {
	l, err := svc.Repo.GetLesson(ctx, lessonID)
	if err != nil {
		return Lesson{}, err
	}
	ext := strings.ToLower(path.Ext(filename))
	if !mediaExts[ext] {
		return Lesson{}, errMediaType
	}
	stored, err := svc.Storage.Save(ctx, path.Join(core.LessonsDir, l.ModuleID, l.ID+ext), r)
	if err != nil {
		return Lesson{}, errors.Wrap(err, "saving lesson media")
	}
	old := l.MediaPath
	l.MediaPath = stored.Path
	l.UpdatedAt = core.Now()
	if l, err = svc.Repo.UpdateLesson(ctx, l); err != nil {
		return Lesson{}, errors.Wrap(err, "updating lesson")
	}
	svc.touchModule(ctx, actor, l.ModuleID)
	if old != "" && old != stored.Path {
		if err := svc.Storage.Delete(ctx, old); err != nil {
			svc.Logger.Warn(fmt.Sprintf("deleting old lesson media %q: %v", old, err), err)
		}
	}
	return l, nil
}

// examItems returns the item IDs of the primary and retake exams of the module.
func examItems(outline ModuleOutline) (primary, retake string) {
	for _, it := range outline.Items {
		q, ok := it.Quiz()
		if !ok || !q.IsExam {
			continue
		}
		switch q.ExamRole {
		case ExamRolePrimary:
			primary = it.ID
		case ExamRoleRetake:
			retake = it.ID
		}
	}
	return primary, retake
}

func sortItems(items []ModuleItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].OrderPosition < items[j].OrderPosition })
}

func samePermutation(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	seen := make(map[string]int, len(want))
	for _, id := range want {
		seen[id]++
	}
	for _, id := range got {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = core.CleanString(id); id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
