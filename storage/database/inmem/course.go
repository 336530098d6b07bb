package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseRepository struct {
	db *DB
}

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func cloneQuiz(q course.Quiz) course.Quiz {
	questions := make([]course.Question, len(q.Questions))
	for i, qu := range q.Questions {
		qu.Options = cloneStrings(qu.Options)
		questions[i] = qu
	}
	q.Questions = questions
	return q
}

func cloneAttempt(att course.QuizAttempt) course.QuizAttempt {
	answers := make(map[string]int, len(att.Answers))
	for k, v := range att.Answers {
		answers[k] = v
	}
	att.Answers = answers
	return att
}

// courses

func (repo *courseRepository) CourseCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error) {
	excluded := idSet(excludedIDs)
	var exists bool
	repo.db.read(func(t *tables) {
		for _, c := range t.courses {
			if c.Code == code && !excluded[c.ID] {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.InstructorIDs = cloneStrings(c.InstructorIDs)
	if c.InstructorIDs == nil {
		c.InstructorIDs = []string{}
	}
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.programs[c.ProgramID]; !ok {
			return errors.New("program does not exist")
		}
		t.courses[c.ID] = c
		return nil
	})
	return c, err
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.InstructorIDs = cloneStrings(c.InstructorIDs)
	if c.InstructorIDs == nil {
		c.InstructorIDs = []string{}
	}
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.courses[c.ID]; !ok {
			return course.ErrNotFound
		}
		t.courses[c.ID] = c
		return nil
	})
	return c, err
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var (
		c  course.Course
		ok bool
	)
	repo.db.read(func(t *tables) { c, ok = t.courses[id] })
	if !ok || c.DeletedAt != nil {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func courseField(c course.Course, col string) interface{} {
	switch col {
	case "code":
		return c.Code
	case "name":
		return c.Name
	case "status":
		return c.Status
	case "credit_hours":
		return c.CreditHours
	case "created_at":
		return c.CreatedAt
	}
	return nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter, pq core.PageQuery) (core.Page[course.Course], error) {
	var total int
	rows := make([]course.Course, 0)
	repo.db.read(func(t *tables) {
		for _, c := range t.courses {
			if c.DeletedAt != nil {
				continue
			}
			if filter.ProgramID != "" && c.ProgramID != filter.ProgramID {
				continue
			}
			if filter.InstructorID != "" && !c.HasInstructor(filter.InstructorID) {
				continue
			}
			if filter.Status != "" && c.Status != filter.Status {
				continue
			}
			total++
			if matchesAny(pq.Search, c.Code, c.Name) {
				rows = append(rows, c)
			}
		}
	})
	sortRows(rows, pq.Orderings, courseField)
	return page(total, rows, pq), nil
}

func (repo *courseRepository) CountCourses(ctx context.Context, filter course.CountFilter) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, c := range t.courses {
			if c.DeletedAt != nil {
				continue
			}
			if filter.Status != "" && c.Status != filter.Status {
				continue
			}
			if !filter.CreatedAfter.IsZero() && c.CreatedAt.Before(filter.CreatedAfter) {
				continue
			}
			count++
		}
	})
	return count, nil
}

// modules

func (repo *courseRepository) CreateModule(ctx context.Context, m course.Module) (course.Module, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.courses[m.CourseID]; !ok {
			return course.ErrNotFound
		}
		t.modules[m.ID] = m
		return nil
	})
	return m, err
}

func (repo *courseRepository) UpdateModule(ctx context.Context, m course.Module) (course.Module, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.modules[m.ID]; !ok {
			return course.ErrModuleNotFound
		}
		t.modules[m.ID] = m
		return nil
	})
	return m, err
}

func (repo *courseRepository) DeleteModule(ctx context.Context, id string) error {
	return repo.db.write(func(t *tables) error {
		delete(t.modules, id)
		for itemID, it := range t.items {
			if it.ModuleID == id {
				delete(t.items, itemID)
			}
		}
		for pid, p := range t.modProgress {
			if p.ModuleID == id {
				delete(t.modProgress, pid)
			}
		}
		return nil
	})
}

func (repo *courseRepository) GetModule(ctx context.Context, id string) (course.Module, error) {
	var (
		m  course.Module
		ok bool
	)
	repo.db.read(func(t *tables) { m, ok = t.modules[id] })
	if !ok {
		return course.Module{}, course.ErrModuleNotFound
	}
	return m, nil
}

func (repo *courseRepository) ListModules(ctx context.Context, courseID string) ([]course.Module, error) {
	modules := make([]course.Module, 0)
	repo.db.read(func(t *tables) {
		for _, m := range t.modules {
			if m.CourseID == courseID {
				modules = append(modules, m)
			}
		}
	})
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].OrderIndex != modules[j].OrderIndex {
			return modules[i].OrderIndex < modules[j].OrderIndex
		}
		return modules[i].CreatedAt.Before(modules[j].CreatedAt)
	})
	return modules, nil
}

func (repo *courseRepository) CountModulesByCourse(ctx context.Context, courseIDs ...string) (map[string]int, error) {
	wanted := idSet(courseIDs)
	counts := make(map[string]int, len(courseIDs))
	repo.db.read(func(t *tables) {
		for _, m := range t.modules {
			if wanted[m.CourseID] {
				counts[m.CourseID]++
			}
		}
	})
	return counts, nil
}

// lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.modules[l.ModuleID]; !ok {
			return course.ErrModuleNotFound
		}
		t.lessons[l.ID] = l
		return nil
	})
	return l, err
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.lessons[l.ID]; !ok {
			return course.ErrLessonNotFound
		}
		t.lessons[l.ID] = l
		return nil
	})
	return l, err
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	return repo.db.write(func(t *tables) error {
		delete(t.lessons, id)
		return nil
	})
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var (
		l  course.Lesson
		ok bool
	)
	repo.db.read(func(t *tables) { l, ok = t.lessons[id] })
	if !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return l, nil
}

// quizzes

func (repo *courseRepository) CreateQuiz(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	q = cloneQuiz(q)
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.courses[q.CourseID]; !ok {
			return course.ErrNotFound
		}
		t.quizzes[q.ID] = q
		return nil
	})
	return cloneQuiz(q), err
}

func (repo *courseRepository) UpdateQuiz(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	q = cloneQuiz(q)
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.quizzes[q.ID]; !ok {
			return course.ErrQuizNotFound
		}
		t.quizzes[q.ID] = q
		return nil
	})
	return cloneQuiz(q), err
}

func (repo *courseRepository) DeleteQuiz(ctx context.Context, id string) error {
	return repo.db.write(func(t *tables) error {
		delete(t.quizzes, id)
		for aid, att := range t.attempts {
			if att.QuizID == id {
				delete(t.attempts, aid)
			}
		}
		return nil
	})
}

func (repo *courseRepository) GetQuiz(ctx context.Context, id string) (course.Quiz, error) {
	var (
		q  course.Quiz
		ok bool
	)
	repo.db.read(func(t *tables) { q, ok = t.quizzes[id] })
	if !ok {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	return cloneQuiz(q), nil
}

// assignments

func (repo *courseRepository) CreateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.courses[a.CourseID]; !ok {
			return course.ErrNotFound
		}
		t.assignments[a.ID] = a
		return nil
	})
	return a, err
}

func (repo *courseRepository) UpdateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.assignments[a.ID]; !ok {
			return course.ErrAssignmentNotFound
		}
		t.assignments[a.ID] = a
		return nil
	})
	return a, err
}

// GetAssignment also returns soft deleted assignments: their grades outlive them.
func (repo *courseRepository) GetAssignment(ctx context.Context, id string) (course.Assignment, error) {
	var (
		a  course.Assignment
		ok bool
	)
	repo.db.read(func(t *tables) { a, ok = t.assignments[id] })
	if !ok {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	return a, nil
}

func (repo *courseRepository) ListAssignments(ctx context.Context, courseIDs ...string) ([]course.Assignment, error) {
	wanted := idSet(courseIDs)
	list := make([]course.Assignment, 0)
	repo.db.read(func(t *tables) {
		for _, a := range t.assignments {
			if a.DeletedAt == nil && wanted[a.CourseID] {
				list = append(list, a)
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// module items

func (t *tables) content(row itemRow) (course.ItemContent, bool) {
	switch row.ItemType {
	case course.ItemLesson:
		l, ok := t.lessons[row.ContentID]
		return l, ok
	case course.ItemQuiz:
		q, ok := t.quizzes[row.ContentID]
		return cloneQuiz(q), ok
	case course.ItemAssignment:
		a, ok := t.assignments[row.ContentID]
		return a, ok
	}
	return nil, false
}

func (t *tables) hydrate(row itemRow) (course.ModuleItem, bool) {
	content, ok := t.content(row)
	if !ok {
		return course.ModuleItem{}, false
	}
	return course.ModuleItem{
		ID:            row.ID,
		ModuleID:      row.ModuleID,
		OrderPosition: row.OrderPosition,
		CreatedAt:     row.CreatedAt,
		Content:       content,
	}, true
}

func (repo *courseRepository) CreateModuleItem(ctx context.Context, it course.ModuleItem) (course.ModuleItem, error) {
	if it.Content == nil {
		return course.ModuleItem{}, errors.New("module item without content")
	}
	row := itemRow{
		ID:            it.ID,
		ModuleID:      it.ModuleID,
		ItemType:      it.Content.ItemType(),
		ContentID:     it.Content.ContentID(),
		OrderPosition: it.OrderPosition,
		CreatedAt:     it.CreatedAt,
	}
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.modules[row.ModuleID]; !ok {
			return course.ErrModuleNotFound
		}
		for _, other := range t.items {
			if other.ItemType == row.ItemType && other.ContentID == row.ContentID {
				return errors.New("content already bound to an item")
			}
		}
		t.items[row.ID] = row
		return nil
	})
	return it, err
}

func (repo *courseRepository) DeleteModuleItem(ctx context.Context, id string) error {
	return repo.db.write(func(t *tables) error {
		delete(t.items, id)
		for pid, p := range t.itemProgress {
			if p.ModuleItemID == id {
				delete(t.itemProgress, pid)
			}
		}
		return nil
	})
}

func (repo *courseRepository) SetItemPositions(ctx context.Context, positions map[string]int) error {
	return repo.db.write(func(t *tables) error {
		for id, pos := range positions {
			row, ok := t.items[id]
			if !ok {
				return course.ErrItemNotFound
			}
			row.OrderPosition = pos
			t.items[id] = row
		}
		return nil
	})
}

func (repo *courseRepository) GetModuleItem(ctx context.Context, id string) (course.ModuleItem, error) {
	var (
		it course.ModuleItem
		ok bool
	)
	repo.db.read(func(t *tables) {
		var row itemRow
		if row, ok = t.items[id]; ok {
			it, ok = t.hydrate(row)
		}
	})
	if !ok {
		return course.ModuleItem{}, course.ErrItemNotFound
	}
	return it, nil
}

func (repo *courseRepository) GetItemByContent(ctx context.Context, itemType course.ItemType, contentID string) (course.ModuleItem, error) {
	var (
		it course.ModuleItem
		ok bool
	)
	repo.db.read(func(t *tables) {
		for _, row := range t.items {
			if row.ItemType == itemType && row.ContentID == contentID {
				it, ok = t.hydrate(row)
				return
			}
		}
	})
	if !ok {
		return course.ModuleItem{}, course.ErrItemNotFound
	}
	return it, nil
}

func (repo *courseRepository) ListModuleItems(ctx context.Context, moduleIDs ...string) ([]course.ModuleItem, error) {
	wanted := idSet(moduleIDs)
	items := make([]course.ModuleItem, 0)
	repo.db.read(func(t *tables) {
		for _, row := range t.items {
			if !wanted[row.ModuleID] {
				continue
			}
			if it, ok := t.hydrate(row); ok {
				items = append(items, it)
			}
		}
	})
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ModuleID != items[j].ModuleID {
			return items[i].ModuleID < items[j].ModuleID
		}
		if items[i].OrderPosition != items[j].OrderPosition {
			return items[i].OrderPosition < items[j].OrderPosition
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// attempts

func (repo *courseRepository) CreateAttempt(ctx context.Context, att course.QuizAttempt) (course.QuizAttempt, error) {
	att = cloneAttempt(att)
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.quizzes[att.QuizID]; !ok {
			return course.ErrQuizNotFound
		}
		t.attempts[att.ID] = att
		return nil
	})
	return cloneAttempt(att), err
}

func (repo *courseRepository) UpdateAttempt(ctx context.Context, att course.QuizAttempt) (course.QuizAttempt, error) {
	att = cloneAttempt(att)
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.attempts[att.ID]; !ok {
			return course.ErrAttemptNotFound
		}
		t.attempts[att.ID] = att
		return nil
	})
	return cloneAttempt(att), err
}

func (repo *courseRepository) GetAttempt(ctx context.Context, id string) (course.QuizAttempt, error) {
	var (
		att course.QuizAttempt
		ok  bool
	)
	repo.db.read(func(t *tables) { att, ok = t.attempts[id] })
	if !ok {
		return course.QuizAttempt{}, course.ErrAttemptNotFound
	}
	return cloneAttempt(att), nil
}

func (repo *courseRepository) ListAttempts(ctx context.Context, quizID, userID string) ([]course.QuizAttempt, error) {
	list := make([]course.QuizAttempt, 0)
	repo.db.read(func(t *tables) {
		for _, att := range t.attempts {
			if att.QuizID == quizID && att.StudentID == userID {
				list = append(list, cloneAttempt(att))
			}
		}
	})
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	return list, nil
}

func (repo *courseRepository) CountFinishedAttempts(ctx context.Context, quizID string) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, att := range t.attempts {
			if att.QuizID == quizID && att.IsFinished() {
				count++
			}
		}
	})
	return count, nil
}
