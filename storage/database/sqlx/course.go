package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseRow struct {
	ID            string         `db:"id"`
	ProgramID     string         `db:"program_id"`
	Code          string         `db:"code"`
	Name          string         `db:"name"`
	Description   string         `db:"description"`
	CreditHours   int            `db:"credit_hours"`
	Status        string         `db:"status"`
	InstructorIDs pq.StringArray `db:"instructor_ids"`
	CreatedBy     null.String    `db:"created_by"`
	UpdatedBy     null.String    `db:"updated_by"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	DeletedAt     null.Time      `db:"deleted_at"`
}

func (r courseRow) toCourse() course.Course {
	ids := []string(r.InstructorIDs)
	if ids == nil {
		ids = []string{}
	}
	return course.Course{
		ID:            r.ID,
		ProgramID:     r.ProgramID,
		Code:          r.Code,
		Name:          r.Name,
		Description:   r.Description,
		CreditHours:   r.CreditHours,
		Status:        r.Status,
		InstructorIDs: ids,
		CreatedBy:     r.CreatedBy.Ptr(),
		UpdatedBy:     r.UpdatedBy.Ptr(),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		DeletedAt:     r.DeletedAt.Ptr(),
	}
}

type quizRow struct {
	ID               string      `db:"id"`
	CourseID         string      `db:"course_id"`
	ModuleID         null.String `db:"module_id"`
	Title            string      `db:"title"`
	Description      string      `db:"description"`
	IsExam           bool        `db:"is_exam"`
	ExamRole         string      `db:"exam_role"`
	PassingScore     float64     `db:"passing_score"`
	TotalPoints      int         `db:"total_points"`
	Published        bool        `db:"published"`
	TimeLimitMinutes int         `db:"time_limit_minutes"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r quizRow) toQuiz(questions []course.Question) course.Quiz {
	if questions == nil {
		questions = []course.Question{}
	}
	return course.Quiz{
		ID:               r.ID,
		CourseID:         r.CourseID,
		ModuleID:         r.ModuleID.Ptr(),
		Title:            r.Title,
		Description:      r.Description,
		IsExam:           r.IsExam,
		ExamRole:         r.ExamRole,
		PassingScore:     r.PassingScore,
		TotalPoints:      r.TotalPoints,
		Published:        r.Published,
		TimeLimitMinutes: r.TimeLimitMinutes,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
		Questions:        questions,
	}
}

type questionRow struct {
	ID            string         `db:"id"`
	QuizID        string         `db:"quiz_id"`
	Text          string         `db:"text"`
	Options       pq.StringArray `db:"options"`
	CorrectOption int            `db:"correct_option"`
	Points        int            `db:"points"`
	Position      int            `db:"position"`
}

type assignmentRow struct {
	ID           string      `db:"id"`
	CourseID     string      `db:"course_id"`
	ModuleID     null.String `db:"module_id"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	TotalPoints  int         `db:"total_points"`
	PassingScore float64     `db:"passing_score"`
	DueAt        null.Time   `db:"due_at"`
	Published    bool        `db:"is_published"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	DeletedAt    null.Time   `db:"deleted_at"`
}

func (r assignmentRow) toAssignment() course.Assignment {
	return course.Assignment{
		ID:           r.ID,
		CourseID:     r.CourseID,
		ModuleID:     r.ModuleID.Ptr(),
		Title:        r.Title,
		Description:  r.Description,
		TotalPoints:  r.TotalPoints,
		PassingScore: r.PassingScore,
		DueAt:        r.DueAt.Ptr(),
		Published:    r.Published,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		DeletedAt:    r.DeletedAt.Ptr(),
	}
}

type moduleRow struct {
	ID               string      `db:"id"`
	CourseID         string      `db:"course_id"`
	Title            string      `db:"title"`
	Description      string      `db:"description"`
	OrderIndex       int         `db:"order_index"`
	RequiresExamPass bool        `db:"requires_exam_pass"`
	Status           string      `db:"status"`
	CreatedBy        null.String `db:"created_by"`
	UpdatedBy        null.String `db:"updated_by"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r moduleRow) toModule() course.Module {
	return course.Module{
		ID:               r.ID,
		CourseID:         r.CourseID,
		Title:            r.Title,
		Description:      r.Description,
		OrderIndex:       r.OrderIndex,
		RequiresExamPass: r.RequiresExamPass,
		Status:           r.Status,
		CreatedBy:        r.CreatedBy.Ptr(),
		UpdatedBy:        r.UpdatedBy.Ptr(),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type lessonRow struct {
	ID              string    `db:"id"`
	ModuleID        string    `db:"module_id"`
	Title           string    `db:"title"`
	Content         string    `db:"content"`
	MediaPath       string    `db:"media_path"`
	DurationMinutes int       `db:"duration_minutes"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r lessonRow) toLesson() course.Lesson {
	return course.Lesson{
		ID:              r.ID,
		ModuleID:        r.ModuleID,
		Title:           r.Title,
		Content:         r.Content,
		MediaPath:       r.MediaPath,
		DurationMinutes: r.DurationMinutes,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type moduleItemRow struct {
	ID            string          `db:"id"`
	ModuleID      string          `db:"module_id"`
	ItemType      course.ItemType `db:"item_type"`
	ContentID     string          `db:"content_id"`
	OrderPosition int             `db:"order_position"`
	CreatedAt     time.Time       `db:"created_at"`
}

type attemptRow struct {
	ID          string         `db:"id"`
	QuizID      string         `db:"quiz_id"`
	StudentID   string         `db:"student_id"`
	Status      string         `db:"status"`
	Answers     types.JSONText `db:"answers"`
	Score       float64        `db:"score"`
	MaxScore    float64        `db:"max_score"`
	Percentage  float64        `db:"percentage"`
	StartedAt   time.Time      `db:"started_at"`
	SubmittedAt null.Time      `db:"submitted_at"`
	GradedAt    null.Time      `db:"graded_at"`
}

func (r attemptRow) toAttempt() (course.QuizAttempt, error) {
	answers := make(map[string]int)
	if len(r.Answers) > 0 {
		if err := r.Answers.Unmarshal(&answers); err != nil {
			return course.QuizAttempt{}, errors.Wrap(err, "decoding answers")
		}
	}
	return course.QuizAttempt{
		ID:          r.ID,
		QuizID:      r.QuizID,
		StudentID:   r.StudentID,
		Status:      r.Status,
		Answers:     answers,
		Score:       r.Score,
		MaxScore:    r.MaxScore,
		Percentage:  r.Percentage,
		StartedAt:   r.StartedAt.UTC(),
		SubmittedAt: r.SubmittedAt.Ptr(),
		GradedAt:    r.GradedAt.Ptr(),
	}, nil
}

var (
	courseColumns = []string{
		"c.id", "c.program_id", "c.code", "c.name", "c.description", "c.credit_hours", "c.status",
		"ARRAY(SELECT ci.instructor_id::text FROM course_instructor ci WHERE ci.course_id = c.id) AS instructor_ids",
		"c.created_by", "c.updated_by", "c.created_at", "c.updated_at", "c.deleted_at",
	}
	courseSortable = map[string]string{
		"code":         "c.code",
		"name":         "c.name",
		"status":       "c.status",
		"credit_hours": "c.credit_hours",
		"created_at":   "c.created_at",
	}
	moduleColumns     = []string{"id", "course_id", "title", "description", "order_index", "requires_exam_pass", "status", "created_by", "updated_by", "created_at", "updated_at"}
	lessonColumns     = []string{"id", "module_id", "title", "content", "media_path", "duration_minutes", "status", "created_at", "updated_at"}
	quizColumns       = []string{"id", "course_id", "module_id", "title", "description", "is_exam", "exam_role", "passing_score", "total_points", "published", "time_limit_minutes", "created_at", "updated_at"}
	questionColumns   = []string{"id", "quiz_id", "text", "options", "correct_option", "points", "position"}
	assignmentColumns = []string{"id", "course_id", "module_id", "title", "description", "total_points", "passing_score", "due_at", "is_published", "created_at", "updated_at", "deleted_at"}
	itemColumns       = []string{"id", "module_id", "item_type", "content_id", "order_position", "created_at"}
	attemptColumns    = []string{"id", "quiz_id", "student_id", "status", "answers", "score", "max_score", "percentage", "started_at", "submitted_at", "graded_at"}
)

type courseRepository struct {
	base
}

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{base{db: db}}
}

// courses

func (repo *courseRepository) CourseCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error) {
	stmt := psql.Select("1").From("course").Where("UPPER(code) = UPPER(?)", code)
	if len(excludedIDs) > 0 {
		stmt = stmt.Where(sq.NotEq{"id": excludedIDs})
	}
	return repo.exists(ctx, stmt)
}

func courseValues(c course.Course) map[string]interface{} {
	return map[string]interface{}{
		"program_id":   c.ProgramID,
		"code":         c.Code,
		"name":         c.Name,
		"description":  c.Description,
		"credit_hours": c.CreditHours,
		"status":       c.Status,
		"updated_by":   nullableID(c.UpdatedBy),
		"updated_at":   c.UpdatedAt,
		"deleted_at":   null.TimeFromPtr(c.DeletedAt),
	}
}

func (repo *courseRepository) setInstructors(ctx context.Context, courseID string, instructorIDs []string) error {
	if _, err := repo.exec(ctx, psql.Delete("course_instructor").Where(sq.Eq{"course_id": courseID})); err != nil {
		return errors.Wrap(err, "clearing course instructors")
	}
	if len(instructorIDs) == 0 {
		return nil
	}
	stmt := psql.Insert("course_instructor").Columns("course_id", "instructor_id")
	for _, id := range instructorIDs {
		stmt = stmt.Values(courseID, id)
	}
	_, err := repo.exec(ctx, stmt.Suffix("ON CONFLICT DO NOTHING"))
	return errors.Wrap(err, "adding course instructors")
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	values := courseValues(c)
	values["id"] = c.ID
	values["created_by"] = nullableID(c.CreatedBy)
	values["created_at"] = c.CreatedAt
	if _, err := repo.exec(ctx, psql.Insert("course").SetMap(values)); err != nil {
		return course.Course{}, err
	}
	if err := repo.setInstructors(ctx, c.ID, c.InstructorIDs); err != nil {
		return course.Course{}, err
	}
	if c.InstructorIDs == nil {
		c.InstructorIDs = []string{}
	}
	return c, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if err := repo.execOne(ctx, psql.Update("course").SetMap(courseValues(c)).Where(sq.Eq{"id": c.ID}), course.ErrNotFound); err != nil {
		return course.Course{}, err
	}
	if err := repo.setInstructors(ctx, c.ID, c.InstructorIDs); err != nil {
		return course.Course{}, err
	}
	if c.InstructorIDs == nil {
		c.InstructorIDs = []string{}
	}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	stmt := psql.Select(courseColumns...).From("course c").Where(sq.Eq{"c.id": id, "c.deleted_at": nil})
	if err := repo.get(ctx, &row, stmt); err != nil {
		if isNoRows(err) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, err
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter, pq core.PageQuery) (core.Page[course.Course], error) {
	where := sq.And{sq.Eq{"c.deleted_at": nil}}
	if filter.ProgramID != "" {
		where = append(where, sq.Eq{"c.program_id": filter.ProgramID})
	}
	if filter.InstructorID != "" {
		where = append(where, sq.Expr(
			"EXISTS (SELECT 1 FROM course_instructor ci WHERE ci.course_id = c.id AND ci.instructor_id = ?)", filter.InstructorID,
		))
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"c.status": filter.Status})
	}

	var rows []courseRow
	total, filtered, err := repo.paginate(ctx, listing{
		from: func(columns ...string) sq.SelectBuilder {
			return psql.Select(columns...).From("course c").Where(where)
		},
		search:   searchAny(pq.Search, "c.code", "c.name"),
		columns:  courseColumns,
		sortable: courseSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[course.Course]{}, err
	}
	items := make([]course.Course, len(rows))
	for i, row := range rows {
		items[i] = row.toCourse()
	}
	return core.Page[course.Course]{Items: items, Total: total, Filtered: filtered}, nil
}

func (repo *courseRepository) CountCourses(ctx context.Context, filter course.CountFilter) (int, error) {
	stmt := psql.Select("COUNT(*)").From("course").Where(sq.Eq{"deleted_at": nil})
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.CreatedAfter.IsZero() {
		stmt = stmt.Where(sq.GtOrEq{"created_at": filter.CreatedAfter})
	}
	return repo.count(ctx, stmt)
}

// modules

func (repo *courseRepository) CreateModule(ctx context.Context, m course.Module) (course.Module, error) {
	_, err := repo.exec(ctx, psql.Insert("course_module").SetMap(map[string]interface{}{
		"id":                 m.ID,
		"course_id":          m.CourseID,
		"title":              m.Title,
		"description":        m.Description,
		"order_index":        m.OrderIndex,
		"requires_exam_pass": m.RequiresExamPass,
		"status":             m.Status,
		"created_by":         nullableID(m.CreatedBy),
		"updated_by":         nullableID(m.UpdatedBy),
		"created_at":         m.CreatedAt,
		"updated_at":         m.UpdatedAt,
	}))
	return m, err
}

func (repo *courseRepository) UpdateModule(ctx context.Context, m course.Module) (course.Module, error) {
	err := repo.execOne(ctx, psql.Update("course_module").SetMap(map[string]interface{}{
		"title":              m.Title,
		"description":        m.Description,
		"order_index":        m.OrderIndex,
		"requires_exam_pass": m.RequiresExamPass,
		"status":             m.Status,
		"updated_by":         nullableID(m.UpdatedBy),
		"updated_at":         m.UpdatedAt,
	}).Where(sq.Eq{"id": m.ID}), course.ErrModuleNotFound)
	return m, err
}

// DeleteModule relies on ON DELETE CASCADE for the module content, items and progress.
func (repo *courseRepository) DeleteModule(ctx context.Context, id string) error {
	_, err := repo.exec(ctx, psql.Delete("course_module").Where(sq.Eq{"id": id}))
	return err
}

func (repo *courseRepository) GetModule(ctx context.Context, id string) (course.Module, error) {
	var row moduleRow
	if err := repo.get(ctx, &row, psql.Select(moduleColumns...).From("course_module").Where(sq.Eq{"id": id})); err != nil {
		if isNoRows(err) {
			return course.Module{}, course.ErrModuleNotFound
		}
		return course.Module{}, err
	}
	return row.toModule(), nil
}

func (repo *courseRepository) ListModules(ctx context.Context, courseID string) ([]course.Module, error) {
	var rows []moduleRow
	stmt := psql.Select(moduleColumns...).From("course_module").Where(sq.Eq{"course_id": courseID}).OrderBy("order_index", "created_at")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	modules := make([]course.Module, len(rows))
	for i, row := range rows {
		modules[i] = row.toModule()
	}
	return modules, nil
}

func (repo *courseRepository) CountModulesByCourse(ctx context.Context, courseIDs ...string) (map[string]int, error) {
	counts := make(map[string]int, len(courseIDs))
	if len(courseIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		CourseID string `db:"course_id"`
		Count    int    `db:"count"`
	}
	stmt := psql.Select("course_id", "COUNT(*) AS count").From("course_module").Where(sq.Eq{"course_id": courseIDs}).GroupBy("course_id")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.CourseID] = row.Count
	}
	return counts, nil
}

// lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	_, err := repo.exec(ctx, psql.Insert("lesson").SetMap(map[string]interface{}{
		"id":               l.ID,
		"module_id":        l.ModuleID,
		"title":            l.Title,
		"content":          l.Content,
		"media_path":       l.MediaPath,
		"duration_minutes": l.DurationMinutes,
		"status":           l.Status,
		"created_at":       l.CreatedAt,
		"updated_at":       l.UpdatedAt,
	}))
	return l, err
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	err := repo.execOne(ctx, psql.Update("lesson").SetMap(map[string]interface{}{
		"title":            l.Title,
		"content":          l.Content,
		"media_path":       l.MediaPath,
		"duration_minutes": l.DurationMinutes,
		"status":           l.Status,
		"updated_at":       l.UpdatedAt,
	}).Where(sq.Eq{"id": l.ID}), course.ErrLessonNotFound)
	return l, err
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	_, err := repo.exec(ctx, psql.Delete("lesson").Where(sq.Eq{"id": id}))
	return err
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var row lessonRow
	if err := repo.get(ctx, &row, psql.Select(lessonColumns...).From("lesson").Where(sq.Eq{"id": id})); err != nil {
		if isNoRows(err) {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, err
	}
	return row.toLesson(), nil
}

// quizzes

func quizValues(q course.Quiz) map[string]interface{} {
	return map[string]interface{}{
		"module_id":          nullableID(q.ModuleID),
		"title":              q.Title,
		"description":        q.Description,
		"is_exam":            q.IsExam,
		"exam_role":          q.ExamRole,
		"passing_score":      q.PassingScore,
		"total_points":       q.TotalPoints,
		"published":          q.Published,
		"time_limit_minutes": q.TimeLimitMinutes,
		"updated_at":         q.UpdatedAt,
	}
}

func (repo *courseRepository) writeQuestions(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	if _, err := repo.exec(ctx, psql.Delete("question").Where(sq.Eq{"quiz_id": q.ID})); err != nil {
		return course.Quiz{}, errors.Wrap(err, "clearing questions")
	}
	questions := make([]course.Question, len(q.Questions))
	if len(q.Questions) > 0 {
		stmt := psql.Insert("question").Columns(questionColumns...)
		for i, qu := range q.Questions {
			if qu.ID == "" {
				qu.ID = core.NewID()
			}
			qu.QuizID = q.ID
			stmt = stmt.Values(qu.ID, qu.QuizID, qu.Text, pq.StringArray(qu.Options), qu.CorrectOption, qu.Points, qu.Position)
			questions[i] = qu
		}
		if _, err := repo.exec(ctx, stmt); err != nil {
			return course.Quiz{}, errors.Wrap(err, "inserting questions")
		}
	}
	q.Questions = questions
	return q, nil
}

func (repo *courseRepository) CreateQuiz(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	values := quizValues(q)
	values["id"] = q.ID
	values["course_id"] = q.CourseID
	values["created_at"] = q.CreatedAt
	if _, err := repo.exec(ctx, psql.Insert("quiz").SetMap(values)); err != nil {
		return course.Quiz{}, err
	}
	return repo.writeQuestions(ctx, q)
}

func (repo *courseRepository) UpdateQuiz(ctx context.Context, q course.Quiz) (course.Quiz, error) {
	if err := repo.execOne(ctx, psql.Update("quiz").SetMap(quizValues(q)).Where(sq.Eq{"id": q.ID}), course.ErrQuizNotFound); err != nil {
		return course.Quiz{}, err
	}
	return repo.writeQuestions(ctx, q)
}

func (repo *courseRepository) DeleteQuiz(ctx context.Context, id string) error {
	_, err := repo.exec(ctx, psql.Delete("quiz").Where(sq.Eq{"id": id}))
	return err
}

// loadQuizzes returns the quizzes with their questions, keyed by ID.
func (repo *courseRepository) loadQuizzes(ctx context.Context, ids ...string) (map[string]course.Quiz, error) {
	quizzes := make(map[string]course.Quiz, len(ids))
	if len(ids) == 0 {
		return quizzes, nil
	}
	var rows []quizRow
	if err := repo.selectRows(ctx, &rows, psql.Select(quizColumns...).From("quiz").Where(sq.Eq{"id": ids})); err != nil {
		return nil, errors.Wrap(err, "selecting quizzes")
	}
	var qrows []questionRow
	stmt := psql.Select(questionColumns...).From("question").Where(sq.Eq{"quiz_id": ids}).OrderBy("position", "id")
	if err := repo.selectRows(ctx, &qrows, stmt); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	byQuiz := make(map[string][]course.Question, len(rows))
	for _, qr := range qrows {
		opts := []string(qr.Options)
		if opts == nil {
			opts = []string{}
		}
		byQuiz[qr.QuizID] = append(byQuiz[qr.QuizID], course.Question{
			ID:            qr.ID,
			QuizID:        qr.QuizID,
			Text:          qr.Text,
			Options:       opts,
			CorrectOption: qr.CorrectOption,
			Points:        qr.Points,
			Position:      qr.Position,
		})
	}
	for _, row := range rows {
		quizzes[row.ID] = row.toQuiz(byQuiz[row.ID])
	}
	return quizzes, nil
}

func (repo *courseRepository) GetQuiz(ctx context.Context, id string) (course.Quiz, error) {
	quizzes, err := repo.loadQuizzes(ctx, id)
	if err != nil {
		return course.Quiz{}, err
	}
	q, ok := quizzes[id]
	if !ok {
		return course.Quiz{}, course.ErrQuizNotFound
	}
	return q, nil
}

// assignments

func assignmentValues(a course.Assignment) map[string]interface{} {
	return map[string]interface{}{
		"module_id":     nullableID(a.ModuleID),
		"title":         a.Title,
		"description":   a.Description,
		"total_points":  a.TotalPoints,
		"passing_score": a.PassingScore,
		"due_at":        null.TimeFromPtr(a.DueAt),
		"is_published":  a.Published,
		"updated_at":    a.UpdatedAt,
		"deleted_at":    null.TimeFromPtr(a.DeletedAt),
	}
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	values := assignmentValues(a)
	values["id"] = a.ID
	values["course_id"] = a.CourseID
	values["created_at"] = a.CreatedAt
	_, err := repo.exec(ctx, psql.Insert("assignment").SetMap(values))
	return a, err
}

func (repo *courseRepository) UpdateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	err := repo.execOne(ctx, psql.Update("assignment").SetMap(assignmentValues(a)).Where(sq.Eq{"id": a.ID}), course.ErrAssignmentNotFound)
	return a, err
}

func (repo *courseRepository) selectAssignments(ctx context.Context, where sq.Sqlizer) ([]course.Assignment, error) {
	var rows []assignmentRow
	stmt := psql.Select(assignmentColumns...).From("assignment").Where(where).OrderBy("created_at")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	list := make([]course.Assignment, len(rows))
	for i, row := range rows {
		list[i] = row.toAssignment()
	}
	return list, nil
}

// GetAssignment also returns soft deleted assignments: their grades stay readable.
func (repo *courseRepository) GetAssignment(ctx context.Context, id string) (course.Assignment, error) {
	list, err := repo.selectAssignments(ctx, sq.Eq{"id": id})
	if err != nil {
		return course.Assignment{}, err
	}
	if len(list) == 0 {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	return list[0], nil
}

func (repo *courseRepository) ListAssignments(ctx context.Context, courseIDs ...string) ([]course.Assignment, error) {
	if len(courseIDs) == 0 {
		return []course.Assignment{}, nil
	}
	return repo.selectAssignments(ctx, sq.Eq{"course_id": courseIDs, "deleted_at": nil})
}

// module items

type contentKey struct {
	itemType course.ItemType
	id       string
}

// loadContents loads the content of every item row, in three queries at most.
func (repo *courseRepository) loadContents(ctx context.Context, rows []moduleItemRow) (map[contentKey]course.ItemContent, error) {
	ids := make(map[course.ItemType][]string)
	for _, row := range rows {
		ids[row.ItemType] = append(ids[row.ItemType], row.ContentID)
	}
	contents := make(map[contentKey]course.ItemContent, len(rows))

	if lessonIDs := ids[course.ItemLesson]; len(lessonIDs) > 0 {
		var lessons []lessonRow
		if err := repo.selectRows(ctx, &lessons, psql.Select(lessonColumns...).From("lesson").Where(sq.Eq{"id": lessonIDs})); err != nil {
			return nil, errors.Wrap(err, "selecting lessons")
		}
		for _, l := range lessons {
			contents[contentKey{course.ItemLesson, l.ID}] = l.toLesson()
		}
	}
	quizzes, err := repo.loadQuizzes(ctx, ids[course.ItemQuiz]...)
	if err != nil {
		return nil, err
	}
	for id, q := range quizzes {
		contents[contentKey{course.ItemQuiz, id}] = q
	}
	if assignmentIDs := ids[course.ItemAssignment]; len(assignmentIDs) > 0 {
		list, err := repo.selectAssignments(ctx, sq.Eq{"id": assignmentIDs})
		if err != nil {
			return nil, errors.Wrap(err, "selecting assignments")
		}
		for _, a := range list {
			contents[contentKey{course.ItemAssignment, a.ID}] = a
		}
	}
	return contents, nil
}

// hydrate drops the items whose content no longer exists.
func (repo *courseRepository) hydrate(ctx context.Context, rows []moduleItemRow) ([]course.ModuleItem, error) {
	contents, err := repo.loadContents(ctx, rows)
	if err != nil {
		return nil, err
	}
	items := make([]course.ModuleItem, 0, len(rows))
	for _, row := range rows {
		content, ok := contents[contentKey{row.ItemType, row.ContentID}]
		if !ok {
			continue
		}
		items = append(items, course.ModuleItem{
			ID:            row.ID,
			ModuleID:      row.ModuleID,
			OrderPosition: row.OrderPosition,
			CreatedAt:     row.CreatedAt.UTC(),
			Content:       content,
		})
	}
	return items, nil
}

func (repo *courseRepository) CreateModuleItem(ctx context.Context, it course.ModuleItem) (course.ModuleItem, error) {
	if it.Content == nil {
		return course.ModuleItem{}, errors.New("module item without content")
	}
	_, err := repo.exec(ctx, psql.Insert("module_item").SetMap(map[string]interface{}{
		"id":             it.ID,
		"module_id":      it.ModuleID,
		"item_type":      string(it.Content.ItemType()),
		"content_id":     it.Content.ContentID(),
		"order_position": it.OrderPosition,
		"created_at":     it.CreatedAt,
	}))
	return it, err
}

func (repo *courseRepository) DeleteModuleItem(ctx context.Context, id string) error {
	_, err := repo.exec(ctx, psql.Delete("module_item").Where(sq.Eq{"id": id}))
	return err
}

func (repo *courseRepository) SetItemPositions(ctx context.Context, positions map[string]int) error {
	for id, pos := range positions {
		stmt := psql.Update("module_item").Set("order_position", pos).Where(sq.Eq{"id": id})
		if err := repo.execOne(ctx, stmt, course.ErrItemNotFound); err != nil {
			return err
		}
	}
	return nil
}

func (repo *courseRepository) getItem(ctx context.Context, where sq.Sqlizer) (course.ModuleItem, error) {
	var rows []moduleItemRow
	if err := repo.selectRows(ctx, &rows, psql.Select(itemColumns...).From("module_item").Where(where)); err != nil {
		return course.ModuleItem{}, err
	}
	items, err := repo.hydrate(ctx, rows)
	if err != nil {
		return course.ModuleItem{}, err
	}
	if len(items) == 0 {
		return course.ModuleItem{}, course.ErrItemNotFound
	}
	return items[0], nil
}

func (repo *courseRepository) GetModuleItem(ctx context.Context, id string) (course.ModuleItem, error) {
	return repo.getItem(ctx, sq.Eq{"id": id})
}

func (repo *courseRepository) GetItemByContent(ctx context.Context, itemType course.ItemType, contentID string) (course.ModuleItem, error) {
	return repo.getItem(ctx, sq.Eq{"item_type": string(itemType), "content_id": contentID})
}

func (repo *courseRepository) ListModuleItems(ctx context.Context, moduleIDs ...string) ([]course.ModuleItem, error) {
	if len(moduleIDs) == 0 {
		return []course.ModuleItem{}, nil
	}
	var rows []moduleItemRow
	stmt := psql.Select(itemColumns...).From("module_item").Where(sq.Eq{"module_id": moduleIDs}).
		OrderBy("module_id", "order_position", "created_at")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	return repo.hydrate(ctx, rows)
}

// attempts

func attemptValues(att course.QuizAttempt) (map[string]interface{}, error) {
	answers := att.Answers
	if answers == nil {
		answers = map[string]int{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, errors.Wrap(err, "encoding answers")
	}
	return map[string]interface{}{
		"status":       att.Status,
		"answers":      types.JSONText(raw),
		"score":        att.Score,
		"max_score":    att.MaxScore,
		"percentage":   att.Percentage,
		"submitted_at": null.TimeFromPtr(att.SubmittedAt),
		"graded_at":    null.TimeFromPtr(att.GradedAt),
	}, nil
}

func (repo *courseRepository) CreateAttempt(ctx context.Context, att course.QuizAttempt) (course.QuizAttempt, error) {
	values, err := attemptValues(att)
	if err != nil {
		return course.QuizAttempt{}, err
	}
	values["id"] = att.ID
	values["quiz_id"] = att.QuizID
	values["student_id"] = att.StudentID
	values["started_at"] = att.StartedAt
	_, err = repo.exec(ctx, psql.Insert("quiz_attempt").SetMap(values))
	return att, err
}

func (repo *courseRepository) UpdateAttempt(ctx context.Context, att course.QuizAttempt) (course.QuizAttempt, error) {
	values, err := attemptValues(att)
	if err != nil {
		return course.QuizAttempt{}, err
	}
	err = repo.execOne(ctx, psql.Update("quiz_attempt").SetMap(values).Where(sq.Eq{"id": att.ID}), course.ErrAttemptNotFound)
	return att, err
}

func (repo *courseRepository) selectAttempts(ctx context.Context, where sq.Sqlizer) ([]course.QuizAttempt, error) {
	var rows []attemptRow
	stmt := psql.Select(attemptColumns...).From("quiz_attempt").Where(where).OrderBy("started_at DESC")
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	list := make([]course.QuizAttempt, len(rows))
	for i, row := range rows {
		att, err := row.toAttempt()
		if err != nil {
			return nil, err
		}
		list[i] = att
	}
	return list, nil
}

func (repo *courseRepository) GetAttempt(ctx context.Context, id string) (course.QuizAttempt, error) {
	list, err := repo.selectAttempts(ctx, sq.Eq{"id": id})
	if err != nil {
		return course.QuizAttempt{}, err
	}
	if len(list) == 0 {
		return course.QuizAttempt{}, course.ErrAttemptNotFound
	}
	return list[0], nil
}

func (repo *courseRepository) ListAttempts(ctx context.Context, quizID, userID string) ([]course.QuizAttempt, error) {
	return repo.selectAttempts(ctx, sq.Eq{"quiz_id": quizID, "student_id": userID})
}

func (repo *courseRepository) CountFinishedAttempts(ctx context.Context, quizID string) (int, error) {
	stmt := psql.Select("COUNT(*)").From("quiz_attempt").
		Where(sq.Eq{"quiz_id": quizID, "status": []string{course.AttemptSubmitted, course.AttemptGraded}})
	return repo.count(ctx, stmt)
}
