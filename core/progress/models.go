package progress

import (
	"math"
	"time"

	"github.com/trezcool/academia/core/course"
)

// Module progress statuses
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusExamFailed = "exam_failed"
	StatusExamLocked = "exam_locked"
	StatusCompleted  = "completed"
)

// MaxExamAttempts is the number of exams a student may sit per module: the primary and its retake.
const MaxExamAttempts = 2

// ModuleProgress is the exam standing of a student in a module.
type ModuleProgress struct {
	ID               string     `json:"id"`
	UserID           string     `json:"student_id"`
	ModuleID         string     `json:"module_id"`
	Status           string     `json:"status"`
	ExamAttemptsUsed int        `json:"exam_attempts_used"`
	ExamBestScore    *float64   `json:"exam_best_score"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (p ModuleProgress) IsCompleted() bool { return p.Status == StatusCompleted }

// IsBlockedFromProgression reports whether the student can no longer pass the module on their own.
func (p ModuleProgress) IsBlockedFromProgression() bool {
	if p.Status == StatusExamLocked {
		return true
	}
	return p.ExamAttemptsUsed >= MaxExamAttempts && !p.IsCompleted()
}

func (p *ModuleProgress) recordScore(score float64) {
	if p.ExamBestScore == nil || score > *p.ExamBestScore {
		s := score
		p.ExamBestScore = &s
	}
}

// applyExamResult moves the progress according to an exam result. Completed progress never changes.
func (p *ModuleProgress) applyExamResult(role string, passed bool, score float64, now time.Time) {
	if p.IsCompleted() {
		return
	}
	if p.ExamAttemptsUsed < MaxExamAttempts {
		p.ExamAttemptsUsed++
	}
	p.recordScore(score)
	switch {
	case passed:
		p.Status = StatusCompleted
		p.CompletedAt = &now
	case role == course.ExamRoleRetake:
		p.Status = StatusExamLocked
	default:
		p.Status = StatusExamFailed
	}
	p.UpdatedAt = now
}

// ItemProgress tracks one user's completion and last access of a module item.
type ItemProgress struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ModuleItemID   string     `json:"module_item_id"`
	CompletedAt    *time.Time `json:"completed_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (p ItemProgress) IsCompleted() bool { return p.CompletedAt != nil }

// Summary is the weighted completion of a set of items.
type Summary struct {
	TotalItems      int `json:"total_items"`
	CompletedItems  int `json:"completed_items"`
	TotalWeight     int `json:"total_weight"`
	CompletedWeight int `json:"completed_weight"`
	Percentage      int `json:"percentage"`
}

func summarize(items []course.ModuleItem, done map[string]ItemProgress) Summary {
	var s Summary
	for _, it := range items {
		s.TotalItems++
		s.TotalWeight += it.Weight()
		if p, ok := done[it.ID]; ok && p.IsCompleted() {
			s.CompletedItems++
			s.CompletedWeight += it.Weight()
		}
	}
	if s.TotalWeight > 0 {
		s.Percentage = int(math.Round(100 * float64(s.CompletedWeight) / float64(s.TotalWeight)))
	}
	return s
}

// Access tells whether a student may enter a module.
type Access struct {
	Accessible     bool           `json:"accessible"`
	Reason         string         `json:"reason,omitempty"`
	BlockingModule *course.Module `json:"blocking_module,omitempty"`
}

// ExamDecision tells whether a student may start an exam.
type ExamDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ModuleOverview is a module as seen by one student.
type ModuleOverview struct {
	Module   course.Module `json:"module"`
	Status   string        `json:"status"`
	Access   Access        `json:"access"`
	Progress Summary       `json:"progress"`
	Blocked  bool          `json:"blocked"`
}
