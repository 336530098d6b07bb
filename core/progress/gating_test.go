package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/course"
)

func outline(id string, requiresExam, published bool, exams ...string) course.ModuleOutline {
	status := course.StatusPublished
	if !published {
		status = course.StatusDraft
	}
	o := course.ModuleOutline{Module: course.Module{ID: id, Title: "Module " + id, RequiresExamPass: requiresExam, Status: status}}
	for i, role := range exams {
		moduleID := id
		o.Items = append(o.Items, course.ModuleItem{
			ID:            id + "-item" + string(rune('a'+i)),
			ModuleID:      id,
			OrderPosition: i,
			Content:       course.Quiz{ID: id + "-" + role, ModuleID: &moduleID, IsExam: true, ExamRole: role, Published: true, PassingScore: 50},
		})
	}
	return o
}

func Test_gatesBefore(t *testing.T) {
	outlines := []course.ModuleOutline{
		outline("m1", true, true, course.ExamRolePrimary),
		outline("m2", true, true), // flag without an exam
		outline("m3", false, true, course.ExamRolePrimary),
		outline("m4", true, false, course.ExamRolePrimary), // draft
		outline("m5", true, true, course.ExamRolePrimary, course.ExamRoleRetake),
		outline("m6", false, true),
	}

	ids := func(mods []course.Module) []string {
		out := make([]string, 0, len(mods))
		for _, m := range mods {
			out = append(out, m.ID)
		}
		return out
	}

	assert.Empty(t, gatesBefore(outlines, "m1"))
	assert.Equal(t, []string{"m1"}, ids(gatesBefore(outlines, "m2")))
	assert.Equal(t, []string{"m1"}, ids(gatesBefore(outlines, "m5")))
	assert.Equal(t, []string{"m1", "m5"}, ids(gatesBefore(outlines, "m6")))
	assert.Nil(t, gatesBefore(outlines, "unknown"))
}

func Test_checkGates(t *testing.T) {
	gates := []course.Module{{ID: "m1", Title: "Intro"}, {ID: "m2", Title: "Basics"}}

	tests := []struct {
		name         string
		progress     map[string]ModuleProgress
		wantOK       bool
		wantBlocking string
		wantReason   string
	}{
		{
			name:         "no progress",
			wantBlocking: "m1",
			wantReason:   `You must complete the exam of "Intro" to unlock this module`,
		},
		{
			name: "first gate failed",
			progress: map[string]ModuleProgress{
				"m1": {Status: StatusExamFailed, ExamAttemptsUsed: 1},
			},
			wantBlocking: "m1",
			wantReason:   `You must pass the exam of "Intro" to unlock this module`,
		},
		{
			name: "second gate locked",
			progress: map[string]ModuleProgress{
				"m1": {Status: StatusCompleted},
				"m2": {Status: StatusExamLocked, ExamAttemptsUsed: 2},
			},
			wantBlocking: "m2",
			wantReason:   `You have used all exam attempts of "Basics". Please contact your instructor`,
		},
		{
			name: "all passed",
			progress: map[string]ModuleProgress{
				"m1": {Status: StatusCompleted},
				"m2": {Status: StatusCompleted, ExamAttemptsUsed: 2},
			},
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkGates(gates, tt.progress)
			assert.Equal(t, tt.wantOK, got.Accessible)
			assert.Equal(t, tt.wantReason, got.Reason)
			if tt.wantBlocking == "" {
				assert.Nil(t, got.BlockingModule)
				return
			}
			require.NotNil(t, got.BlockingModule)
			assert.Equal(t, tt.wantBlocking, got.BlockingModule.ID)
		})
	}
}

func TestModuleProgress_applyExamResult(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("primary failed then retake passed", func(t *testing.T) {
		p := ModuleProgress{Status: StatusInProgress}
		p.applyExamResult(course.ExamRolePrimary, false, 30, now)
		assert.Equal(t, StatusExamFailed, p.Status)
		assert.Equal(t, 1, p.ExamAttemptsUsed)
		assert.False(t, p.IsBlockedFromProgression())

		p.applyExamResult(course.ExamRoleRetake, true, 80, now)
		assert.Equal(t, StatusCompleted, p.Status)
		assert.Equal(t, 2, p.ExamAttemptsUsed)
		assert.Equal(t, 80.0, *p.ExamBestScore)
		assert.Equal(t, &now, p.CompletedAt)
		assert.False(t, p.IsBlockedFromProgression())
	})

	t.Run("retake failed locks", func(t *testing.T) {
		p := ModuleProgress{Status: StatusNotStarted}
		p.applyExamResult(course.ExamRolePrimary, false, 40, now)
		p.applyExamResult(course.ExamRoleRetake, false, 20, now)
		assert.Equal(t, StatusExamLocked, p.Status)
		assert.Equal(t, 40.0, *p.ExamBestScore)
		assert.True(t, p.IsBlockedFromProgression())

		// attempts never exceed the cap
		p.applyExamResult(course.ExamRolePrimary, false, 10, now)
		assert.Equal(t, MaxExamAttempts, p.ExamAttemptsUsed)
	})

	t.Run("completed is final", func(t *testing.T) {
		p := ModuleProgress{Status: StatusNotStarted}
		p.applyExamResult(course.ExamRolePrimary, true, 90, now)
		later := now.Add(time.Hour)
		p.applyExamResult(course.ExamRoleRetake, false, 10, later)
		assert.Equal(t, StatusCompleted, p.Status)
		assert.Equal(t, 1, p.ExamAttemptsUsed)
		assert.Equal(t, now, p.UpdatedAt)
	})
}

func Test_summarize(t *testing.T) {
	items := []course.ModuleItem{
		{ID: "lesson", Content: course.Lesson{Status: course.StatusPublished}},
		{ID: "quiz", Content: course.Quiz{TotalPoints: 10, Published: true}},
		{ID: "assignment", Content: course.Assignment{TotalPoints: 0, Published: true}},
	}
	done := time.Now()

	assert.Equal(t, Summary{TotalItems: 3, TotalWeight: 12}, summarize(items, nil))

	got := summarize(items, map[string]ItemProgress{
		"quiz":       {CompletedAt: &done},
		"assignment": {LastAccessedAt: &done},
	})
	assert.Equal(t, Summary{TotalItems: 3, CompletedItems: 1, TotalWeight: 12, CompletedWeight: 10, Percentage: 83}, got)

	assert.Equal(t, Summary{}, summarize(nil, nil))
}
