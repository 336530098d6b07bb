package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/department"
	"github.com/trezcool/academia/core/progress"
)

func TestDB_RunInTx(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewDepartmentRepository(db)

	t.Run("rollback", func(t *testing.T) {
		errBoom := errors.New("boom")
		err := db.RunInTx(ctx, func(ctx context.Context) error {
			_, ok := core.TxFromContext(ctx)
			assert.True(t, ok)
			_, err := repo.CreateDepartment(ctx, department.Department{ID: "d1", Code: "CS"})
			require.NoError(t, err)
			return errBoom
		})
		assert.Equal(t, errBoom, err)

		_, err = repo.GetDepartment(ctx, "d1")
		assert.Equal(t, department.ErrNotFound, err)
	})

	t.Run("commit with nested tx", func(t *testing.T) {
		err := db.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := repo.CreateDepartment(ctx, department.Department{ID: "d2", Code: "MATH"}); err != nil {
				return err
			}
			return db.RunInTx(ctx, func(ctx context.Context) error {
				_, err := repo.CreateDepartment(ctx, department.Department{ID: "d3", Code: "PHY"})
				return err
			})
		})
		require.NoError(t, err)

		for _, id := range []string{"d2", "d3"} {
			_, err := repo.GetDepartment(ctx, id)
			assert.NoError(t, err, id)
		}
	})

	t.Run("nested failure rolls back the outer tx", func(t *testing.T) {
		err := db.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := repo.CreateDepartment(ctx, department.Department{ID: "d4", Code: "BIO"}); err != nil {
				return err
			}
			return db.RunInTx(ctx, func(ctx context.Context) error { return errors.New("nope") })
		})
		assert.Error(t, err)
		_, err = repo.GetDepartment(ctx, "d4")
		assert.Equal(t, department.ErrNotFound, err)
	})

	db.Reset()
	_, err := repo.GetDepartment(ctx, "d2")
	assert.Equal(t, department.ErrNotFound, err)
}

func TestSortRows(t *testing.T) {
	now := time.Now()
	rows := []department.Department{
		{ID: "1", Code: "b", Name: "Beta", CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Code: "a", Name: "alpha", CreatedAt: now},
		{ID: "3", Code: "C", Name: "alpha", CreatedAt: now.Add(-2 * time.Hour)},
	}
	ids := func() []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.ID
		}
		return out
	}

	sortRows(rows, nil, departmentField)
	assert.Equal(t, []string{"2", "1", "3"}, ids())

	sortRows(rows, []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "code"}}, departmentField)
	assert.Equal(t, []string{"3", "2", "1"}, ids())

	// unknown columns keep the current order
	sortRows(rows, []core.DBOrdering{{Field: "password"}}, departmentField)
	assert.Equal(t, []string{"3", "2", "1"}, ids())
}

func TestCloneStrings(t *testing.T) {
	assert.Nil(t, cloneStrings(nil))
	assert.Equal(t, []string{}, cloneStrings([]string{}))

	in := []string{"a"}
	out := cloneStrings(in)
	out[0] = "b"
	assert.Equal(t, "a", in[0])
}

func TestProgressRepository_CreateModuleProgress(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewProgressRepository(db)
	first := progress.ModuleProgress{ID: "p1", UserID: "u1", ModuleID: "m1", Status: progress.StatusInProgress}

	err := db.RunInTx(ctx, func(ctx context.Context) error {
		p, err := repo.CreateModuleProgress(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)

		// a second creation returns the stored progress and keeps the tx usable
		dup := first
		dup.ID = "p2"
		p, err = repo.CreateModuleProgress(ctx, dup)
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
		_, err = repo.GetModuleProgress(ctx, "u1", "m1")
		return err
	})
	require.NoError(t, err)

	list, err := repo.ListModuleProgress(ctx, "u1", "m1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)
}
