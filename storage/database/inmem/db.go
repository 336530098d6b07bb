// Package inmemdb is an in-memory implementation of every repository, used by tests and demo mode.
package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/admin"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/department"
	"github.com/trezcool/academia/core/grading"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/progress"
	"github.com/trezcool/academia/core/student"
	"github.com/trezcool/academia/core/user"
)

// itemRow is the stored form of a course.ModuleItem: the content is loaded on read.
type itemRow struct {
	ID            string
	ModuleID      string
	ItemType      course.ItemType
	ContentID     string
	OrderPosition int
	CreatedAt     time.Time
}

type tables struct {
	users        map[string]user.User
	departments  map[string]department.Department
	programs     map[string]department.Program
	students     map[string]student.Student
	instructors  map[string]instructor.Instructor
	admins       map[string]admin.Admin
	courses      map[string]course.Course
	modules      map[string]course.Module
	lessons      map[string]course.Lesson
	quizzes      map[string]course.Quiz
	assignments  map[string]course.Assignment
	items        map[string]itemRow
	attempts     map[string]course.QuizAttempt
	modProgress  map[string]progress.ModuleProgress
	itemProgress map[string]progress.ItemProgress
	submissions  map[string]grading.Submission
	grades       map[string]grading.Grade
	history      map[string]grading.HistoryEntry
	applications map[string]application.Application
	documents    map[string]application.Document
}

func newTables() tables {
	return tables{
		users:        make(map[string]user.User),
		departments:  make(map[string]department.Department),
		programs:     make(map[string]department.Program),
		students:     make(map[string]student.Student),
		instructors:  make(map[string]instructor.Instructor),
		admins:       make(map[string]admin.Admin),
		courses:      make(map[string]course.Course),
		modules:      make(map[string]course.Module),
		lessons:      make(map[string]course.Lesson),
		quizzes:      make(map[string]course.Quiz),
		assignments:  make(map[string]course.Assignment),
		items:        make(map[string]itemRow),
		attempts:     make(map[string]course.QuizAttempt),
		modProgress:  make(map[string]progress.ModuleProgress),
		itemProgress: make(map[string]progress.ItemProgress),
		submissions:  make(map[string]grading.Submission),
		grades:       make(map[string]grading.Grade),
		history:      make(map[string]grading.HistoryEntry),
		applications: make(map[string]application.Application),
		documents:    make(map[string]application.Document),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the tables. Rows are never mutated in place, so sharing their slices is safe.
func (t tables) clone() tables {
	return tables{
		users:        cloneMap(t.users),
		departments:  cloneMap(t.departments),
		programs:     cloneMap(t.programs),
		students:     cloneMap(t.students),
		instructors:  cloneMap(t.instructors),
		admins:       cloneMap(t.admins),
		courses:      cloneMap(t.courses),
		modules:      cloneMap(t.modules),
		lessons:      cloneMap(t.lessons),
		quizzes:      cloneMap(t.quizzes),
		assignments:  cloneMap(t.assignments),
		items:        cloneMap(t.items),
		attempts:     cloneMap(t.attempts),
		modProgress:  cloneMap(t.modProgress),
		itemProgress: cloneMap(t.itemProgress),
		submissions:  cloneMap(t.submissions),
		grades:       cloneMap(t.grades),
		history:      cloneMap(t.history),
		applications: cloneMap(t.applications),
		documents:    cloneMap(t.documents),
	}
}

type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	t    tables
}

func Open() *DB {
	return &DB{t: newTables()}
}

// Reset drops all the data.
func (db *DB) Reset() {
	db.mu.Lock()
	db.t = newTables()
	db.mu.Unlock()
}

func (db *DB) read(fn func(t *tables)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(&db.t)
}

func (db *DB) write(fn func(t *tables) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(&db.t)
}

type txMarker struct{}

// RunInTx snapshots the tables and restores them when fn fails.
// Transactions are serialized; nested calls join the outer transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := core.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.t.clone()
	db.mu.RUnlock()

	if err := fn(core.ContextWithTx(ctx, txMarker{})); err != nil {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

var _ core.Transactor = (*DB)(nil)

// helpers

func values[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matchesAny(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	for _, f := range fields {
		if containsFold(f, search) {
			return true
		}
	}
	return false
}

func less(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		return strings.ToLower(av) < strings.ToLower(b.(string))
	case int:
		return av < b.(int)
	case float64:
		return av < b.(float64)
	case bool:
		return !av && b.(bool)
	case time.Time:
		return av.Before(b.(time.Time))
	}
	return false
}

// sortRows orders rows by the given orderings; field returns the value of a column, nil when unknown.
// Rows without explicit ordering are sorted newest first.
func sortRows[T any](rows []T, ords []core.DBOrdering, field func(row T, col string) interface{}) {
	if len(ords) == 0 {
		ords = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ords {
			a, b := field(rows[i], ord.Field), field(rows[j], ord.Field)
			if a == nil || b == nil {
				continue
			}
			if less(a, b) {
				return ord.Ascending
			}
			if less(b, a) {
				return !ord.Ascending
			}
		}
		return false
	})
}

// page cuts a page of the searched rows; total is the row count before search.
func page[T any](total int, searched []T, pq core.PageQuery) core.Page[T] {
	return core.Page[T]{
		Items:    core.Paginate(searched, pq),
		Total:    total,
		Filtered: len(searched),
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
