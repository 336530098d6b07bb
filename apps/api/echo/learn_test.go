package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/progress"
	"github.com/trezcool/academia/core/quiz"
	"github.com/trezcool/academia/core/user"
	testutil "github.com/trezcool/academia/tests"
)

func Test_learnApi_enrollment(t *testing.T) {
	app := setup(t)
	prog := testutil.CreateProgram(t, app.Env)
	other := testutil.CreateProgram(t, app.Env)
	crs := testutil.CreateCourse(t, app.Env, prog.ID)
	hero := testutil.CreateStudent(t, app.Env, prog.ID)
	outsider := testutil.CreateStudent(t, app.Env, other.ID)
	admin := testutil.CreateUser(t, app.UserSvc, "Admin", "admin@test.cd", []string{user.RoleAdmin}, true)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/api/learn/courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Student required", path: "/api/learn/courses", token: app.getToken(t, admin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "program courses", path: "/api/learn/courses", token: app.getToken(t, hero.User), wantData: marchallObj(t, []course.Course{crs})},
		{name: "other program courses", path: "/api/learn/courses", token: app.getToken(t, outsider.User), wantData: []byte(`[]`)},
		{
			name: "not enrolled", path: "/api/learn/courses/" + crs.ID, token: app.getToken(t, outsider.User),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you are not enrolled in this course"}),
		},
		{name: "unknown course", path: "/api/learn/courses/lol", token: app.getToken(t, hero.User), wantCode: http.StatusNotFound},
		{name: "enrolled", path: "/api/learn/courses/" + crs.ID, token: app.getToken(t, hero.User)},
	})
}

func Test_learnApi_examGating(t *testing.T) {
	app := setup(t)
	prog := testutil.CreateProgram(t, app.Env)
	crs := testutil.CreateCourse(t, app.Env, prog.ID)

	m1 := testutil.CreateModule(t, app.Env, crs.ID, true)
	m1Lesson := testutil.AddLesson(t, app.Env, m1.ID)
	exam := testutil.AddQuiz(t, app.Env, m1.ID, course.ExamRolePrimary, 10)
	m2 := testutil.CreateModule(t, app.Env, crs.ID, false)
	m2Lesson := testutil.AddLesson(t, app.Env, m2.ID)

	hero := testutil.CreateStudent(t, app.Env, prog.ID)
	token := app.getToken(t, hero.User)
	examQuiz, ok := exam.Quiz()
	require.True(t, ok)

	courseProgress := func(t *testing.T) echoapi.CourseOverviewResponse {
		req, rec := newAuthRequest(http.MethodGet, "/api/learn/courses/"+crs.ID, token)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res echoapi.CourseOverviewResponse
		decode(t, rec, &res)
		return res
	}

	t.Run("next module is locked", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/learn/items/"+m2Lesson.ID+"/complete", token)
		app.do(req, rec)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/api/learn/modules/"+m2.ID, token)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var detail progress.ModuleDetail
		decode(t, rec, &detail)
		assert.False(t, detail.Access.Accessible)
		assert.Empty(t, detail.Items)
		if assert.NotNil(t, detail.Access.BlockingModule) {
			assert.Equal(t, m1.ID, detail.Access.BlockingModule.ID)
		}

		res := courseProgress(t)
		require.Len(t, res.Modules, 2)
		assert.True(t, res.Modules[0].Access.Accessible)
		assert.False(t, res.Modules[1].Access.Accessible)
	})

	t.Run("first module is open", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/learn/items/"+m1Lesson.ID+"/complete", token)
		app.do(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("passing the exam unlocks the next module", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/learn/quizzes/"+examQuiz.ID+"/attempts", token)
		app.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var view quiz.AttemptView
		decode(t, rec, &view)
		require.Len(t, view.Quiz.Questions, 1)

		answers := map[string]int{view.Quiz.Questions[0].ID: 0}
		body := marchallObj(t, echoapi.SubmitAttemptRequest{Answers: answers})
		req, rec = newAuthRequest(http.MethodPost, "/api/learn/attempts/"+view.Attempt.ID+"/submit", token, body)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var att course.QuizAttempt
		decode(t, rec, &att)
		assert.Equal(t, float64(100), att.Percentage)
		assert.Equal(t, course.AttemptGraded, att.Status)

		// already passed
		req, rec = newAuthRequest(http.MethodPost, "/api/learn/quizzes/"+examQuiz.ID+"/attempts", token)
		app.do(req, rec)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		req, rec = newAuthRequest(http.MethodPost, "/api/learn/items/"+m2Lesson.ID+"/complete", token)
		app.do(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := courseProgress(t)
		assert.Equal(t, 100, res.Progress.Percentage)
		assert.Equal(t, 3, res.Progress.CompletedItems)
		require.Len(t, res.Modules, 2)
		assert.Equal(t, progress.StatusCompleted, res.Modules[0].Status)
		assert.True(t, res.Modules[1].Access.Accessible)
	})

	t.Run("submitted attempts cannot be resubmitted", func(t *testing.T) {
		attempts, err := app.CourseSvc.ListAttempts(context.Background(), examQuiz.ID, hero.UserID)
		require.NoError(t, err)
		require.Len(t, attempts, 1)

		body := marchallObj(t, echoapi.SubmitAttemptRequest{Answers: map[string]int{}})
		req, rec := newAuthRequest(http.MethodPost, "/api/learn/attempts/"+attempts[0].ID+"/submit", token, body)
		app.do(req, rec)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func Test_learnApi_retakeExam(t *testing.T) {
	app := setup(t)
	prog := testutil.CreateProgram(t, app.Env)
	crs := testutil.CreateCourse(t, app.Env, prog.ID)
	m1 := testutil.CreateModule(t, app.Env, crs.ID, true)
	primary := testutil.AddQuiz(t, app.Env, m1.ID, course.ExamRolePrimary, 10)
	retake := testutil.AddQuiz(t, app.Env, m1.ID, course.ExamRoleRetake, 10)
	hero := testutil.CreateStudent(t, app.Env, prog.ID)
	token := app.getToken(t, hero.User)

	primaryQuiz, _ := primary.Quiz()
	retakeQuiz, _ := retake.Quiz()

	// the retake stays hidden until the primary is failed
	app.run(t, []httpTest{
		{name: "retake hidden", path: "/api/learn/quizzes/" + retakeQuiz.ID, token: token, wantCode: http.StatusNotFound},
		{name: "primary visible", path: "/api/learn/quizzes/" + primaryQuiz.ID, token: token},
	})

	testutil.TakeQuiz(t, app.Env, hero.UserID, primaryQuiz, false)

	app.run(t, []httpTest{
		{name: "retake visible", path: "/api/learn/quizzes/" + retakeQuiz.ID, token: token},
		{
			name: "primary taken", method: http.MethodPost, path: "/api/learn/quizzes/" + primaryQuiz.ID + "/attempts",
			token: token, wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: "You have already taken this exam"}),
		},
	})

	testutil.TakeQuiz(t, app.Env, hero.UserID, retakeQuiz, false)

	mp, err := app.ModuleSvc.GetOrCreate(context.Background(), hero.UserID, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusExamLocked, mp.Status)
	assert.Equal(t, progress.MaxExamAttempts, mp.ExamAttemptsUsed)
	assert.True(t, mp.IsBlockedFromProgression())
}
