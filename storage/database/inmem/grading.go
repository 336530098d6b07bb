package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/grading"
)

type gradingRepository struct {
	db *DB
}

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db}
}

func (repo *gradingRepository) CreateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	err := repo.db.write(func(t *tables) error {
		for _, other := range t.submissions {
			if other.AssignmentID == sub.AssignmentID && other.StudentID == sub.StudentID {
				return errors.New("duplicate submission")
			}
		}
		t.submissions[sub.ID] = sub
		return nil
	})
	return sub, err
}

func (repo *gradingRepository) UpdateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.submissions[sub.ID]; !ok {
			return grading.ErrSubmissionNotFound
		}
		t.submissions[sub.ID] = sub
		return nil
	})
	return sub, err
}

func (repo *gradingRepository) GetSubmission(ctx context.Context, id string) (grading.Submission, error) {
	var (
		sub grading.Submission
		ok  bool
	)
	repo.db.read(func(t *tables) { sub, ok = t.submissions[id] })
	if !ok {
		return grading.Submission{}, grading.ErrSubmissionNotFound
	}
	return sub, nil
}

func (repo *gradingRepository) GetStudentSubmission(ctx context.Context, assignmentID, userID string) (grading.Submission, error) {
	var (
		found grading.Submission
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, sub := range t.submissions {
			if sub.AssignmentID == assignmentID && sub.StudentID == userID {
				found, ok = sub, true
				return
			}
		}
	})
	if !ok {
		return grading.Submission{}, grading.ErrSubmissionNotFound
	}
	return found, nil
}

func (repo *gradingRepository) ListSubmissions(ctx context.Context, assignmentID string) ([]grading.Submission, error) {
	list := make([]grading.Submission, 0)
	repo.db.read(func(t *tables) {
		for _, sub := range t.submissions {
			if sub.AssignmentID == assignmentID {
				list = append(list, sub)
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].SubmittedAt.Before(list[j].SubmittedAt) })
	return list, nil
}

func (repo *gradingRepository) CountUngraded(ctx context.Context, assignmentIDs ...string) (int, error) {
	wanted := idSet(assignmentIDs)
	var count int
	repo.db.read(func(t *tables) {
		for _, sub := range t.submissions {
			if wanted[sub.AssignmentID] && sub.Status != grading.SubmissionGraded {
				count++
			}
		}
	})
	return count, nil
}

func (repo *gradingRepository) CreateGrade(ctx context.Context, g grading.Grade) (grading.Grade, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.submissions[g.SubmissionID]; !ok {
			return grading.ErrSubmissionNotFound
		}
		for _, other := range t.grades {
			if other.SubmissionID == g.SubmissionID {
				return errors.New("duplicate grade")
			}
		}
		t.grades[g.ID] = g
		return nil
	})
	return g, err
}

func (repo *gradingRepository) UpdateGrade(ctx context.Context, g grading.Grade) (grading.Grade, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.grades[g.ID]; !ok {
			return grading.ErrGradeNotFound
		}
		t.grades[g.ID] = g
		return nil
	})
	return g, err
}

func (repo *gradingRepository) GetGrade(ctx context.Context, id string) (grading.Grade, error) {
	var (
		g  grading.Grade
		ok bool
	)
	repo.db.read(func(t *tables) { g, ok = t.grades[id] })
	if !ok {
		return grading.Grade{}, grading.ErrGradeNotFound
	}
	return g, nil
}

func (repo *gradingRepository) GetSubmissionGrade(ctx context.Context, submissionID string) (grading.Grade, error) {
	var (
		found grading.Grade
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, g := range t.grades {
			if g.SubmissionID == submissionID {
				found, ok = g, true
				return
			}
		}
	})
	if !ok {
		return grading.Grade{}, grading.ErrGradeNotFound
	}
	return found, nil
}

func (repo *gradingRepository) ListPublishedGrades(ctx context.Context, userID string) ([]grading.Grade, error) {
	list := make([]grading.Grade, 0)
	repo.db.read(func(t *tables) {
		for _, g := range t.grades {
			if g.StudentID == userID && g.Published {
				list = append(list, g)
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (repo *gradingRepository) AddHistory(ctx context.Context, h grading.HistoryEntry) error {
	return repo.db.write(func(t *tables) error {
		if _, ok := t.grades[h.GradeID]; !ok {
			return grading.ErrGradeNotFound
		}
		t.history[h.ID] = h
		return nil
	})
}

func (repo *gradingRepository) ListHistory(ctx context.Context, gradeID string) ([]grading.HistoryEntry, error) {
	list := make([]grading.HistoryEntry, 0)
	repo.db.read(func(t *tables) {
		for _, h := range t.history {
			if h.GradeID == gradeID {
				list = append(list, h)
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}
