package student_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/student"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	testutil "github.com/trezcool/academia/tests"
)

type failingRepo struct {
	student.Repository
}

func (failingRepo) CreateStudent(context.Context, student.Student) (student.Student, error) {
	return student.Student{}, errors.New("disk full")
}

func newStudent(email, programID string) student.NewStudent {
	return student.NewStudent{
		NewUser:   user.NewUser{Name: "Jane Doe", Email: email, Password: testutil.Password},
		ProgramID: programID,
	}
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prog := testutil.CreateProgram(t, env)
	year := core.Now().Year()

	first, err := env.StudentSvc.Create(ctx, core.SystemActor, newStudent("jane@test.cd", prog.ID))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("STU-%d-00001", year), first.StudentNumber)
	assert.Equal(t, student.StatusActive, first.Status)
	assert.Equal(t, []string{user.RoleStudent}, first.User.Roles)
	if assert.NotNil(t, first.ProgramID) {
		assert.Equal(t, prog.ID, *first.ProgramID)
	}
	assert.Nil(t, first.CreatedBy)

	second, err := env.StudentSvc.Create(ctx, core.SystemActor, newStudent("john@test.cd", ""))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("STU-%d-00002", year), second.StudentNumber)
	assert.Nil(t, second.ProgramID)

	sent := emailsvc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "jane@test.cd", sent[0].To[0].Address)
	assert.Equal(t, "Your student account", sent[0].Subject)
}

func TestService_Create_unknownProgram(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, err := env.StudentSvc.Create(ctx, core.SystemActor, newStudent("jane@test.cd", core.NewID()))
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), err)
	assert.Equal(t, []core.FieldError{{Field: "program_id", Error: "program not found"}}, verr.Fields)

	_, err = env.UserSvc.GetByEmail(ctx, "jane@test.cd")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Create_rollback(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	deps := env.StudentSvc.Deps
	deps.Repo = failingRepo{Repository: deps.Repo}
	svc := student.NewService(deps)

	_, err := svc.Create(ctx, core.SystemActor, newStudent("jane@test.cd", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// the user account went away with the failed student
	_, err = env.UserSvc.GetByEmail(ctx, "jane@test.cd")
	assert.True(t, core.IsNotFound(err))
	assert.Empty(t, emailsvc.Sent())
}

func TestService_Stats(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	stats, err := env.StudentSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.CountStats{}, stats)

	std := testutil.CreateStudent(t, env, "")
	testutil.CreateStudent(t, env, "")

	// creations drop the cached counters
	stats, err = env.StudentSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 2, stats.NewThisMonth)

	require.NoError(t, env.StudentSvc.Delete(ctx, core.SystemActor, std.ID))
	stats, err = env.StudentSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	usr, err := env.UserSvc.GetByID(ctx, std.UserID)
	require.NoError(t, err)
	assert.False(t, usr.IsActive)
}
