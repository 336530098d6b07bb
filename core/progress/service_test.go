package progress_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	testutil "github.com/trezcool/academia/tests"
)

func TestItemService_weightedProgress(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID)
	m := testutil.CreateModule(t, env, crs.ID, false)
	l1 := testutil.AddLesson(t, env, m.ID)
	l2 := testutil.AddLesson(t, env, m.ID)
	qi := testutil.AddQuiz(t, env, m.ID, "", 50)
	hero := testutil.CreateStudent(t, env, prog.ID)
	qz, ok := qi.Quiz()
	require.True(t, ok)

	s, err := env.ItemSvc.GetCourseProgress(ctx, hero.UserID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalItems)
	assert.Equal(t, 52, s.TotalWeight)
	assert.Equal(t, 0, s.Percentage)

	// complete, incomplete, complete counts once
	_, err = env.ItemSvc.MarkComplete(ctx, hero.UserID, l1.ID)
	require.NoError(t, err)
	_, err = env.ItemSvc.MarkIncomplete(ctx, hero.UserID, l1.ID)
	require.NoError(t, err)
	p, err := env.ItemSvc.MarkComplete(ctx, hero.UserID, l1.ID)
	require.NoError(t, err)
	assert.True(t, p.IsCompleted())
	_, err = env.ItemSvc.MarkComplete(ctx, hero.UserID, l1.ID)
	require.NoError(t, err)

	s, err = env.ItemSvc.GetCourseProgress(ctx, hero.UserID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CompletedItems)
	assert.Equal(t, 1, s.CompletedWeight)
	assert.Equal(t, 2, s.Percentage)

	_, err = env.ItemSvc.MarkComplete(ctx, hero.UserID, l2.ID)
	require.NoError(t, err)
	s, err = env.ItemSvc.GetCourseProgress(ctx, hero.UserID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Percentage)

	testutil.TakeQuiz(t, env, hero.UserID, qz, true)
	s, err = env.ItemSvc.GetCourseProgress(ctx, hero.UserID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.CompletedItems)
	assert.Equal(t, 100, s.Percentage)

	ms, err := env.ItemSvc.GetModuleProgress(ctx, hero.UserID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, s, ms)

	// a failed grade un-completes the quiz
	require.NoError(t, env.ItemSvc.AutoCompleteForQuiz(ctx, hero.UserID, qz, 10))
	s, err = env.ItemSvc.GetCourseProgress(ctx, hero.UserID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Percentage)
}

func TestItemService_emptyCourse(t *testing.T) {
	env := testutil.NewEnv(t)
	prog := testutil.CreateProgram(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID)
	hero := testutil.CreateStudent(t, env, prog.ID)

	s, err := env.ItemSvc.GetCourseProgress(context.Background(), hero.UserID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalWeight)
	assert.Equal(t, 0, s.Percentage)
}

func TestItemService_GetBatchModuleProgress(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID)
	mA := testutil.CreateModule(t, env, crs.ID, false)
	la := testutil.AddLesson(t, env, mA.ID)
	testutil.AddAssignment(t, env, mA.ID, 20)
	mB := testutil.CreateModule(t, env, crs.ID, false)
	testutil.AddLesson(t, env, mB.ID)
	testutil.AddQuiz(t, env, mB.ID, "", 30)
	draft := testutil.AddLesson(t, env, mB.ID)
	_, err := env.CourseSvc.SetItemPublished(ctx, core.SystemActor, draft.ID, false)
	require.NoError(t, err)
	hero := testutil.CreateStudent(t, env, prog.ID)

	_, err = env.ItemSvc.MarkComplete(ctx, hero.UserID, la.ID)
	require.NoError(t, err)

	batch, err := env.ItemSvc.GetBatchModuleProgress(ctx, hero.UserID, mA.ID, mB.ID)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 2, batch[mA.ID].TotalItems)
	assert.Equal(t, 21, batch[mA.ID].TotalWeight)
	assert.Equal(t, 1, batch[mA.ID].CompletedWeight)
	// the draft lesson does not count
	assert.Equal(t, 2, batch[mB.ID].TotalItems)
	assert.Equal(t, 31, batch[mB.ID].TotalWeight)
	assert.Equal(t, 0, batch[mB.ID].CompletedWeight)

	single, err := env.ItemSvc.GetModuleProgress(ctx, hero.UserID, mA.ID)
	require.NoError(t, err)
	assert.Equal(t, single, batch[mA.ID])

	overview, err := env.ModuleSvc.CourseOverview(ctx, hero.UserID, crs.ID)
	require.NoError(t, err)
	require.Len(t, overview, 2)
	assert.Equal(t, batch[mA.ID], overview[0].Progress)
	assert.Equal(t, batch[mB.ID], overview[1].Progress)
}

func TestGating_IsModuleAccessible(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID)

	mA := testutil.CreateModule(t, env, crs.ID, true)
	examA := testutil.AddQuiz(t, env, mA.ID, course.ExamRolePrimary, 10)
	mB := testutil.CreateModule(t, env, crs.ID, true)
	testutil.AddQuiz(t, env, mB.ID, course.ExamRolePrimary, 10)
	mC := testutil.CreateModule(t, env, crs.ID, true) // flagged without any exam
	mD := testutil.CreateModule(t, env, crs.ID, false)
	hero := testutil.CreateStudent(t, env, prog.ID)

	access, err := env.Gating.IsModuleAccessible(ctx, hero.UserID, mA.ID)
	require.NoError(t, err)
	assert.True(t, access.Accessible)

	qA, _ := examA.Quiz()
	testutil.TakeQuiz(t, env, hero.UserID, qA, true)

	access, err = env.Gating.IsModuleAccessible(ctx, hero.UserID, mB.ID)
	require.NoError(t, err)
	assert.True(t, access.Accessible)

	for _, m := range []course.Module{mC, mD} {
		access, err = env.Gating.IsModuleAccessible(ctx, hero.UserID, m.ID)
		require.NoError(t, err)
		assert.False(t, access.Accessible, m.Title)
		assert.NotEmpty(t, access.Reason)
		if assert.NotNil(t, access.BlockingModule, m.Title) {
			assert.Equal(t, mB.ID, access.BlockingModule.ID)
		}
	}

	_, err = env.Gating.IsModuleAccessible(ctx, hero.UserID, "lol")
	assert.Error(t, err)
}
