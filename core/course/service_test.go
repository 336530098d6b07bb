package course_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	testutil "github.com/trezcool/academia/tests"
)

func TestService_ExportCSV(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	ins := testutil.CreateInstructor(t, env)
	testutil.CreateStudent(t, env, prog.ID)
	testutil.CreateStudent(t, env, prog.ID)

	algo, err := env.CourseSvc.CreateCourse(ctx, core.SystemActor, course.CourseData{ProgramID: prog.ID, Code: "CS101", Name: "Algorithms, part 1", CreditHours: 3})
	require.NoError(t, err)
	_, err = env.CourseSvc.AssignInstructors(ctx, core.SystemActor, algo.ID, []string{ins.ID})
	require.NoError(t, err)
	testutil.CreateModule(t, env, algo.ID, false)
	testutil.CreateModule(t, env, algo.ID, false)

	intro, err := env.CourseSvc.CreateCourse(ctx, core.SystemActor, course.CourseData{ProgramID: prog.ID, Code: "CS050", Name: "Intro", CreditHours: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, env.CourseSvc.ExportCSV(ctx, &buf, course.QueryFilter{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, course.ExportHeader, records[0])
	assert.Equal(t, []string{
		"CS050", "Intro", prog.Name, course.StatusDraft, "", "0", "2",
		intro.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}, records[1])
	assert.Equal(t, "Algorithms, part 1", records[2][1])
	assert.Equal(t, ins.User.Name, records[2][4])
	assert.Equal(t, "2", records[2][5])

	buf.Reset()
	require.NoError(t, env.CourseSvc.ExportCSV(ctx, &buf, course.QueryFilter{Status: course.StatusPublished}))
	records, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{course.ExportHeader}, records)
}

func TestService_ExportToStorage(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateCourse(t, env, testutil.CreateProgram(t, env).ID)

	stored, err := env.CourseSvc.ExportToStorage(ctx, core.SystemActor, course.QueryFilter{})
	require.NoError(t, err)
	assert.Regexp(t, `^exports/courses-\d{8}-\d{6}\.csv$`, stored.Path)

	files, err := env.Storage.List(ctx, core.ExportsDir)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	deleted, err := env.CourseSvc.CleanupExports(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = env.CourseSvc.CleanupExports(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestService_examRoles(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	crs := testutil.CreateCourse(t, env, testutil.CreateProgram(t, env).ID)
	m := testutil.CreateModule(t, env, crs.ID, true)

	exam := func(role string) error {
		_, err := env.CourseSvc.AddQuiz(ctx, core.SystemActor, m.ID, course.QuizData{
			Title: "Exam", IsExam: true, ExamRole: role, PassingScore: 50, Publish: true,
			Questions: []course.QuestionData{{Text: "?", Options: []string{"a", "b"}, Points: 1}},
		})
		return err
	}

	err := exam(course.ExamRoleRetake)
	assert.True(t, core.IsRuleError(err))
	require.NoError(t, exam(""))
	assert.True(t, core.IsRuleError(exam(course.ExamRolePrimary)))
	require.NoError(t, exam(""))
	assert.True(t, core.IsRuleError(exam("")))

	outline, err := env.CourseSvc.ModuleOutline(ctx, m.ID)
	require.NoError(t, err)
	exams := outline.Exams()
	require.Len(t, exams, 2)
	assert.Equal(t, course.ExamRolePrimary, exams[0].ExamRole)
	assert.Equal(t, course.ExamRoleRetake, exams[1].ExamRole)
	assert.True(t, outline.RequiresExamToUnlockNext())
}

func TestService_ReorderModules(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	crs := testutil.CreateCourse(t, env, testutil.CreateProgram(t, env).ID)
	m1 := testutil.CreateModule(t, env, crs.ID, false)
	m2 := testutil.CreateModule(t, env, crs.ID, false)

	_, err := env.CourseSvc.ReorderModules(ctx, core.SystemActor, crs.ID, []string{m2.ID})
	assert.True(t, core.IsRuleError(err))

	modules, err := env.CourseSvc.ReorderModules(ctx, core.SystemActor, crs.ID, []string{m2.ID, m1.ID})
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, m2.ID, modules[0].ID)
	assert.Equal(t, m1.ID, modules[1].ID)
}

func TestService_ReorderItems(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	crs := testutil.CreateCourse(t, env, testutil.CreateProgram(t, env).ID)
	m := testutil.CreateModule(t, env, crs.ID, true)
	lesson := testutil.AddLesson(t, env, m.ID)
	primary := testutil.AddQuiz(t, env, m.ID, course.ExamRolePrimary, 10)
	retake := testutil.AddQuiz(t, env, m.ID, course.ExamRoleRetake, 10)

	_, err := env.CourseSvc.ReorderItems(ctx, core.SystemActor, m.ID, []string{lesson.ID, primary.ID})
	assert.True(t, core.IsRuleError(err))

	// the retake never comes first
	_, err = env.CourseSvc.ReorderItems(ctx, core.SystemActor, m.ID, []string{retake.ID, primary.ID, lesson.ID})
	assert.True(t, core.IsRuleError(err))
	_, err = env.CourseSvc.ReorderItems(ctx, core.SystemActor, m.ID, []string{lesson.ID, retake.ID, primary.ID})
	assert.True(t, core.IsRuleError(err))

	outline, err := env.CourseSvc.ModuleOutline(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, outline.Items, 3)
	assert.Equal(t, lesson.ID, outline.Items[0].ID)

	outline, err = env.CourseSvc.ReorderItems(ctx, core.SystemActor, m.ID, []string{primary.ID, lesson.ID, retake.ID})
	require.NoError(t, err)
	require.Len(t, outline.Items, 3)
	assert.Equal(t, primary.ID, outline.Items[0].ID)
	assert.Equal(t, lesson.ID, outline.Items[1].ID)
	assert.Equal(t, retake.ID, outline.Items[2].ID)
	exams := outline.Exams()
	require.Len(t, exams, 2)
	assert.Equal(t, course.ExamRolePrimary, exams[0].ExamRole)
}

func TestService_moduleAudit(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	crs := testutil.CreateCourse(t, env, testutil.CreateProgram(t, env).ID)
	author := testutil.CreateAdmin(t, env, false)
	editor := testutil.CreateAdmin(t, env, false)

	m, err := env.CourseSvc.CreateModule(ctx, core.Actor{UserID: author.ID}, crs.ID, course.ModuleData{Title: "Graphs"})
	require.NoError(t, err)
	require.NotNil(t, m.CreatedBy)
	assert.Equal(t, author.ID, *m.CreatedBy)
	assert.Equal(t, author.ID, *m.UpdatedBy)

	it, err := env.CourseSvc.AddLesson(ctx, core.Actor{UserID: editor.ID}, m.ID, course.LessonData{Title: "BFS", Content: "Queue it."})
	require.NoError(t, err)
	m, err = env.CourseSvc.GetModule(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, author.ID, *m.CreatedBy)
	require.NotNil(t, m.UpdatedBy)
	assert.Equal(t, editor.ID, *m.UpdatedBy)

	_, err = env.CourseSvc.SetItemPublished(ctx, core.SystemActor, it.ID, true)
	require.NoError(t, err)
	m, err = env.CourseSvc.GetModule(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, m.UpdatedBy)
	assert.Equal(t, author.ID, *m.CreatedBy)
}
