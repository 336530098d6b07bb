// Package testutil builds in-memory application environments and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/apps/api/di"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/department"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/student"
	"github.com/trezcool/academia/core/user"
	cachesvc "github.com/trezcool/academia/services/cache"
	emailsvc "github.com/trezcool/academia/services/email"
	jobsvc "github.com/trezcool/academia/services/jobs"
	storagesvc "github.com/trezcool/academia/services/storage"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

// Password satisfies the password policy; use it for every fixture account.
const Password = "Xq7#kLm9!wTz"

var (
	seq           int64
	loadPasswords sync.Once
)

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// NopLogger discards every entry.
var NopLogger core.Logger = nopLogger{}

// NewConfig returns the TEST configuration with files stored under a temporary directory.
func NewConfig(t *testing.T) *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "test-secret-key"
	conf.StorageRoot = t.TempDir()
	conf.Redis.Address = ""
	conf.GradingScale = ""
	if conf.AppName == "" {
		conf.AppName = "Academia"
	}
	if conf.Server.JWTExpirationDelta == 0 {
		conf.Server.JWTExpirationDelta = time.Hour
	}
	if conf.Server.JWTRefreshExpirationDelta == 0 {
		conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	}
	return conf
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	loadPasswords.Do(func() { user.LoadCommonPasswords(NopLogger) })
	return validate, translator
}

// Env is a complete application running on the in-memory store.
type Env struct {
	*di.Container
	DB         *inmemdb.DB
	FakeLMS    *FakeLMS
	SyncJobs   *jobsvc.SyncDispatcher
	Validate   *validator.Validate
	Translator ut.Translator
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := NewConfig(t)
	core.ParseEmailTemplates(conf, NopLogger)
	emailsvc.ResetSentMessages()

	storage, err := storagesvc.NewLocalStorage(conf.StorageRoot, "/media")
	if err != nil {
		t.Fatalf("NewLocalStorage(): %v", err)
	}

	db := inmemdb.Open()
	fakeLMS := NewFakeLMS()
	jobs := jobsvc.NewSyncDispatcher(NopLogger)
	c, err := di.NewContainer(di.Infra{
		Conf:    conf,
		Logger:  NopLogger,
		Repos:   di.InmemRepositories(db),
		Tx:      db,
		Cache:   cachesvc.NewMemoryCache(),
		Storage: storage,
		LMS:     fakeLMS,
		Jobs:    jobs,
		MailSvc: emailsvc.NewConsoleServiceMock(conf, NopLogger),
	})
	if err != nil {
		t.Fatalf("di.NewContainer(): %v", err)
	}

	validate, translator := NewValidator()
	return &Env{
		Container:  c,
		DB:         db,
		FakeLMS:    fakeLMS,
		SyncJobs:   jobs,
		Validate:   validate,
		Translator: translator,
	}
}

// Fixtures

func CreateUser(t *testing.T, svc *user.Service, name, email string, roles []string, isActive bool) user.User {
	t.Helper()
	ctx := context.Background()
	usr, err := svc.Create(ctx, user.NewUser{Name: name, Email: email, Password: Password, Roles: roles})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if !isActive {
		if usr, err = svc.SetActive(ctx, usr.ID, false); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	return usr
}

func CreateAdmin(t *testing.T, env *Env, super bool) user.User {
	t.Helper()
	roles := []string{user.RoleAdmin}
	if super {
		roles = append(roles, user.RoleAdminSuper)
	}
	n := next()
	return CreateUser(t, env.UserSvc, fmt.Sprintf("Admin %d", n), fmt.Sprintf("admin%d@test.cd", n), roles, true)
}

func CreateProgram(t *testing.T, env *Env) department.Program {
	t.Helper()
	ctx := context.Background()
	n := next()
	dept, err := env.DepartmentSvc.CreateDepartment(ctx, core.SystemActor, department.DepartmentData{
		Code: fmt.Sprintf("D%d", n),
		Name: fmt.Sprintf("Department %d", n),
	})
	if err != nil {
		t.Fatalf("CreateProgram() failed: %v", err)
	}
	prog, err := env.DepartmentSvc.CreateProgram(ctx, core.SystemActor, department.ProgramData{
		DepartmentID: dept.ID,
		Code:         fmt.Sprintf("P%d", n),
		Name:         fmt.Sprintf("Program %d", n),
		LMSProgramID: "lms-p1",
	})
	if err != nil {
		t.Fatalf("CreateProgram() failed: %v", err)
	}
	return prog
}

func CreateStudent(t *testing.T, env *Env, programID string) student.Student {
	t.Helper()
	n := next()
	std, err := env.StudentSvc.Create(context.Background(), core.SystemActor, student.NewStudent{
		NewUser: user.NewUser{
			Name:     fmt.Sprintf("Student %d", n),
			Email:    fmt.Sprintf("student%d@test.cd", n),
			Password: Password,
		},
		ProgramID:      programID,
		EnrollmentDate: core.Now(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func CreateInstructor(t *testing.T, env *Env) instructor.Instructor {
	t.Helper()
	n := next()
	ins, err := env.InstructorSvc.Create(context.Background(), core.SystemActor, instructor.NewInstructor{
		NewUser: user.NewUser{
			Name:     fmt.Sprintf("Instructor %d", n),
			Email:    fmt.Sprintf("instructor%d@test.cd", n),
			Password: Password,
		},
	})
	if err != nil {
		t.Fatalf("CreateInstructor() failed: %v", err)
	}
	return ins
}

// CreateCourse creates a published course of the program.
func CreateCourse(t *testing.T, env *Env, programID string, instructorIDs ...string) course.Course {
	t.Helper()
	ctx := context.Background()
	n := next()
	crs, err := env.CourseSvc.CreateCourse(ctx, core.SystemActor, course.CourseData{
		ProgramID:   programID,
		Code:        fmt.Sprintf("C%d", n),
		Name:        fmt.Sprintf("Course %d", n),
		CreditHours: 3,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	if len(instructorIDs) > 0 {
		if crs, err = env.CourseSvc.AssignInstructors(ctx, core.SystemActor, crs.ID, instructorIDs); err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
	}
	if crs, err = env.CourseSvc.PublishCourse(ctx, core.SystemActor, crs.ID); err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// CreateModule creates a published module at the end of the course.
func CreateModule(t *testing.T, env *Env, courseID string, requiresExamPass bool) course.Module {
	t.Helper()
	ctx := context.Background()
	m, err := env.CourseSvc.CreateModule(ctx, core.SystemActor, courseID, course.ModuleData{
		Title:            fmt.Sprintf("Module %d", next()),
		RequiresExamPass: requiresExamPass,
	})
	if err != nil {
		t.Fatalf("CreateModule() failed: %v", err)
	}
	if m, err = env.CourseSvc.PublishModule(ctx, core.SystemActor, m.ID); err != nil {
		t.Fatalf("CreateModule() failed: %v", err)
	}
	return m
}

func AddLesson(t *testing.T, env *Env, moduleID string) course.ModuleItem {
	t.Helper()
	it, err := env.CourseSvc.AddLesson(context.Background(), core.SystemActor, moduleID, course.LessonData{
		Title:   fmt.Sprintf("Lesson %d", next()),
		Content: "Read me.",
		Publish: true,
	})
	if err != nil {
		t.Fatalf("AddLesson() failed: %v", err)
	}
	return it
}

// AddQuiz adds a published single-question quiz worth points; option 0 is the right answer.
// examRole is empty for plain quizzes.
func AddQuiz(t *testing.T, env *Env, moduleID, examRole string, points int) course.ModuleItem {
	t.Helper()
	it, err := env.CourseSvc.AddQuiz(context.Background(), core.SystemActor, moduleID, course.QuizData{
		Title:        fmt.Sprintf("Quiz %d", next()),
		IsExam:       examRole != "",
		ExamRole:     examRole,
		PassingScore: 50,
		Publish:      true,
		Questions: []course.QuestionData{
			{Text: "2 + 2 = ?", Options: []string{"4", "5"}, CorrectOption: 0, Points: points},
		},
	})
	if err != nil {
		t.Fatalf("AddQuiz() failed: %v", err)
	}
	return it
}

func AddAssignment(t *testing.T, env *Env, moduleID string, totalPoints int) course.ModuleItem {
	t.Helper()
	it, err := env.CourseSvc.AddAssignment(context.Background(), core.SystemActor, moduleID, course.AssignmentData{
		Title:        fmt.Sprintf("Assignment %d", next()),
		TotalPoints:  totalPoints,
		PassingScore: 50,
		Publish:      true,
	})
	if err != nil {
		t.Fatalf("AddAssignment() failed: %v", err)
	}
	return it
}

// TakeQuiz starts then submits an attempt, answering right when pass is true.
func TakeQuiz(t *testing.T, env *Env, userID string, quiz course.Quiz, pass bool) course.QuizAttempt {
	t.Helper()
	ctx := context.Background()
	view, err := env.QuizSvc.StartAttempt(ctx, userID, quiz.ID)
	if err != nil {
		t.Fatalf("TakeQuiz() failed: %v", err)
	}
	answer := 1
	if pass {
		answer = 0
	}
	answers := make(map[string]int, len(quiz.Questions))
	for _, q := range quiz.Questions {
		answers[q.ID] = answer
	}
	att, err := env.QuizSvc.SubmitAttempt(ctx, userID, view.Attempt.ID, answers)
	if err != nil {
		t.Fatalf("TakeQuiz() failed: %v", err)
	}
	return att
}

// FakeLMS is an in-memory learning platform.
type FakeLMS struct {
	mu       sync.Mutex
	programs []core.LMSProgram
	intakes  []core.LMSIntake
	Created  []core.LMSNewStudent
	SSO      []core.LMSSSORequest
	Down     bool
}

var _ core.LMSClient = (*FakeLMS)(nil)

// NewFakeLMS returns a platform with program "lms-p1" and the open intake "intake-open".
func NewFakeLMS() *FakeLMS {
	now := core.Now()
	return &FakeLMS{
		programs: []core.LMSProgram{{ID: "lms-p1", Code: "BSC-CS", Name: "BSc Computer Science"}},
		intakes: []core.LMSIntake{
			{ID: "intake-open", ProgramID: "lms-p1", Name: "September", StartDate: now, EndDate: now.AddDate(0, 4, 0), IsOpen: true},
			{ID: "intake-closed", ProgramID: "lms-p1", Name: "January", StartDate: now.AddDate(-1, 0, 0), EndDate: now.AddDate(0, -8, 0)},
		},
	}
}

func (f *FakeLMS) SetDown(down bool) {
	f.mu.Lock()
	f.Down = down
	f.mu.Unlock()
}

func (f *FakeLMS) Programs(context.Context) []core.LMSProgram {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return []core.LMSProgram{}
	}
	return append([]core.LMSProgram(nil), f.programs...)
}

func (f *FakeLMS) Program(_ context.Context, id string) *core.LMSProgram {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.programs {
		if p.ID == id && !f.Down {
			p := p
			return &p
		}
	}
	return nil
}

func (f *FakeLMS) Intakes(context.Context) []core.LMSIntake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return []core.LMSIntake{}
	}
	return append([]core.LMSIntake(nil), f.intakes...)
}

func (f *FakeLMS) Intake(_ context.Context, id string) *core.LMSIntake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.intakes {
		if in.ID == id && !f.Down {
			in := in
			return &in
		}
	}
	return nil
}

func (f *FakeLMS) CreateStudent(_ context.Context, ns core.LMSNewStudent) core.LMSStudentResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return core.LMSStudentResult{Error: "LMS unavailable"}
	}
	f.Created = append(f.Created, ns)
	n := len(f.Created)
	return core.LMSStudentResult{
		Success:       true,
		UserID:        fmt.Sprintf("lms-user-%d", n),
		StudentID:     fmt.Sprintf("lms-student-%d", n),
		StudentNumber: fmt.Sprintf("LMS%05d", n),
	}
}

func (f *FakeLMS) IssueSSOToken(_ context.Context, req core.LMSSSORequest) core.LMSSSOResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return core.LMSSSOResult{Error: "LMS unavailable"}
	}
	f.SSO = append(f.SSO, req)
	return core.LMSSSOResult{
		Success:     true,
		AccessToken: "sso-" + req.LMSUserID,
		ExpiresAt:   core.Now().Add(5 * time.Minute),
		RedirectTo:  req.RedirectTo,
	}
}
