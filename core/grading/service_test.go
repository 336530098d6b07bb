package grading_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/grading"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	testutil "github.com/trezcool/academia/tests"
)

func actorOf(usr user.User) core.Actor {
	return core.Actor{UserID: usr.ID, Name: usr.Name, Email: usr.Email, Roles: usr.Roles}
}

func score(f float64) *float64 { return &f }

func TestService_gradingFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	ins := testutil.CreateInstructor(t, env)
	stranger := testutil.CreateInstructor(t, env)
	crs := testutil.CreateCourse(t, env, prog.ID, ins.ID)
	m := testutil.CreateModule(t, env, crs.ID, false)
	testutil.AddLesson(t, env, m.ID)
	item := testutil.AddAssignment(t, env, m.ID, 20)
	hero := testutil.CreateStudent(t, env, prog.ID)
	grader := actorOf(ins.User)

	assignmentID := item.Content.ContentID()

	progressOf := func(t *testing.T) int {
		p, err := env.ItemSvc.GetCourseProgress(ctx, hero.UserID, crs.ID)
		require.NoError(t, err)
		return p.Percentage
	}

	_, err := env.GradingSvc.Submit(ctx, hero.UserID, assignmentID, grading.SubmissionData{Content: "  "}, nil)
	assert.True(t, core.IsRuleError(err))

	sub, err := env.GradingSvc.Submit(ctx, hero.UserID, assignmentID, grading.SubmissionData{Content: "draft"}, nil)
	require.NoError(t, err)
	resub, err := env.GradingSvc.Submit(ctx, hero.UserID, assignmentID, grading.SubmissionData{Content: "final"}, &grading.Upload{
		Filename: "Essay.PDF", Content: strings.NewReader("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, sub.ID, resub.ID)
	assert.Equal(t, "final", resub.Content)
	assert.Equal(t, core.SubmissionsDir+"/"+assignmentID+"/"+hero.UserID+".pdf", resub.FilePath)

	t.Run("only the course instructors grade", func(t *testing.T) {
		_, err := env.GradingSvc.GradeSubmission(ctx, actorOf(stranger.User), sub.ID, grading.GradeData{Score: score(10)})
		assert.Equal(t, core.ErrForbidden, errors.Cause(err))
	})

	t.Run("score is required", func(t *testing.T) {
		for _, data := range []grading.GradeData{{Feedback: "no score"}, {Score: score(-1)}} {
			_, err := env.GradingSvc.GradeSubmission(ctx, grader, sub.ID, data)
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr), err)
			assert.Equal(t, "score", verr.Fields[0].Field)
		}
	})

	t.Run("score is capped by total points", func(t *testing.T) {
		_, err := env.GradingSvc.GradeSubmission(ctx, grader, sub.ID, grading.GradeData{Score: score(25)})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), err)
		assert.Equal(t, "score", verr.Fields[0].Field)
	})

	g, err := env.GradingSvc.GradeSubmission(ctx, grader, sub.ID, grading.GradeData{Score: score(9), Feedback: "thin"})
	require.NoError(t, err)
	assert.Equal(t, 45.0, g.Percentage)
	assert.Equal(t, grading.LetterF, g.Letter)
	assert.Equal(t, 1, g.Version)
	assert.Zero(t, progressOf(t), "unpublished grades do not count")

	_, err = env.GradingSvc.Submit(ctx, hero.UserID, assignmentID, grading.SubmissionData{Content: "again"}, nil)
	assert.True(t, core.IsRuleError(err))

	g, err = env.GradingSvc.GradeSubmission(ctx, grader, sub.ID, grading.GradeData{Score: score(19)})
	require.NoError(t, err)
	assert.Equal(t, 95.0, g.Percentage)
	assert.Equal(t, "A", g.Letter)
	assert.Equal(t, 2, g.Version)

	history, err := env.GradingSvc.History(ctx, grader, g.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 9.0, history[0].Score)
	assert.Equal(t, 19.0, history[1].Score)

	emailsvc.ResetSentMessages()
	g, err = env.GradingSvc.PublishGrade(ctx, grader, g.ID)
	require.NoError(t, err)
	assert.True(t, g.Published)
	assert.NotNil(t, g.PublishedAt)
	// 20 of the 21 weighted points
	assert.Equal(t, 95, progressOf(t))

	sent := emailsvc.Sent()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, hero.User.Email, sent[0].To[0].Address)
		assert.Equal(t, "grade_published", sent[0].TemplateName)
	}

	_, err = env.GradingSvc.PublishGrade(ctx, grader, g.ID)
	assert.True(t, core.IsRuleError(err))

	report, err := env.GradingSvc.Report(ctx, hero.UserID)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, crs.ID, report.Entries[0].CourseID)
	assert.Equal(t, 4.0, report.GPA)

	// a failing regrade of a published grade withdraws the completion
	_, err = env.GradingSvc.GradeSubmission(ctx, grader, sub.ID, grading.GradeData{Score: score(5)})
	require.NoError(t, err)
	assert.Zero(t, progressOf(t))

	report, err = env.GradingSvc.Report(ctx, hero.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.GPA)
}

func TestService_Submit_unpublished(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	crs := testutil.CreateCourse(t, env, testutil.CreateProgram(t, env).ID)
	m := testutil.CreateModule(t, env, crs.ID, false)
	it, err := env.CourseSvc.AddAssignment(ctx, core.SystemActor, m.ID, course.AssignmentData{Title: "Draft", TotalPoints: 10})
	require.NoError(t, err)

	_, err = env.GradingSvc.Submit(ctx, "u1", it.Content.ContentID(), grading.SubmissionData{Content: "x"}, nil)
	assert.True(t, core.IsNotFound(err))
}
