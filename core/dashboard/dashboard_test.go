package dashboard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/grading"
	testutil "github.com/trezcool/academia/tests"
)

func TestService_Admin(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	testutil.CreateStudent(t, env, prog.ID)

	dash := env.DashboardSvc.Admin(ctx)
	assert.Equal(t, 1, dash.Students.Total)
	assert.Equal(t, 1, dash.Students.Active)
	assert.NotNil(t, dash.PendingReview)
	assert.Empty(t, dash.RecentApplications)

	// cached until the students change
	testutil.CreateStudent(t, env, prog.ID)
	assert.Equal(t, 2, env.DashboardSvc.Admin(ctx).Students.Total)
}

func TestService_Instructor(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	ins := testutil.CreateInstructor(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID, ins.ID)
	m := testutil.CreateModule(t, env, crs.ID, false)
	item := testutil.AddAssignment(t, env, m.ID, 20)
	hero := testutil.CreateStudent(t, env, prog.ID)

	dash := env.DashboardSvc.Instructor(ctx, ins.UserID)
	require.Len(t, dash.Courses, 1)
	assert.Equal(t, crs.ID, dash.Courses[0].Course.ID)
	assert.Equal(t, 1, dash.Courses[0].Assignments)
	assert.Equal(t, 0, dash.PendingGrading)

	_, err := env.GradingSvc.Submit(ctx, hero.UserID, item.Content.ContentID(), grading.SubmissionData{Content: "done"}, nil)
	require.NoError(t, err)
	dash = env.DashboardSvc.Instructor(ctx, ins.UserID)
	assert.Equal(t, 1, dash.PendingGrading)

	// not an instructor: empty, never an error
	assert.Empty(t, env.DashboardSvc.Instructor(ctx, hero.UserID).Courses)
}

func TestService_Student(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID)
	m := testutil.CreateModule(t, env, crs.ID, false)
	lesson := testutil.AddLesson(t, env, m.ID)
	hero := testutil.CreateStudent(t, env, prog.ID)

	dash := env.DashboardSvc.Student(ctx, hero.UserID)
	require.Len(t, dash.Courses, 1)
	assert.Equal(t, 0, dash.OverallProgress)
	require.Len(t, dash.Courses[0].Modules, 1)
	assert.True(t, dash.Courses[0].Modules[0].Access.Accessible)

	_, err := env.ItemSvc.MarkComplete(ctx, hero.UserID, lesson.ID)
	require.NoError(t, err)
	dash = env.DashboardSvc.Student(ctx, hero.UserID)
	assert.Equal(t, 100, dash.OverallProgress)
	assert.Equal(t, 100, dash.Courses[0].Progress.Percentage)
}
