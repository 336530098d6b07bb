package sqlxrepos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/progress"
)

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name string
		ords []core.DBOrdering
		want []string
	}{
		{name: "default", ords: nil, want: []string{"s.created_at DESC"}},
		{name: "unknown fields are skipped", ords: []core.DBOrdering{{Field: "password"}}, want: []string{"s.created_at DESC"}},
		{
			name: "mapped",
			ords: []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "status"}},
			want: []string{"u.name ASC", "s.status DESC"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, orderBy(tc.ords, studentSortable))
		})
	}
}

func TestSearchAny(t *testing.T) {
	assert.Nil(t, searchAny("", "name"))

	query, args, err := searchAny("50%_off", "code", "name").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(code ILIKE ? OR name ILIKE ?)", query)
	assert.Equal(t, []interface{}{`%50\%\_off%`, `%50\%\_off%`}, args)
}

func TestListingQueries(t *testing.T) {
	query, args, err := psql.Select("COUNT(*)").From("application").
		Where(searchAny("ref", "reference_number")).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM application WHERE (reference_number ILIKE $1)", query)
	assert.Equal(t, []interface{}{"%ref%"}, args)
}

func TestPrefixedUserColumns(t *testing.T) {
	cols := prefixed("u", "user")
	require.Len(t, cols, len(userColumns))
	assert.Equal(t, `u.id AS "user.id"`, cols[0])
	assert.Equal(t, `u.last_login AS "user.last_login"`, cols[len(cols)-1])
}

func TestInsertModuleProgress(t *testing.T) {
	now := core.Now()
	query, args, err := insertModuleProgress(progress.ModuleProgress{
		ID: "p1", UserID: "u1", ModuleID: "m1", Status: progress.StatusInProgress, CreatedAt: now, UpdatedAt: now,
	}).ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(query, "INSERT INTO module_progress ("), query)
	assert.True(t, strings.HasSuffix(query, "ON CONFLICT (student_id, module_id) DO NOTHING"), query)
	assert.Len(t, args, len(moduleProgressColumns))
}
