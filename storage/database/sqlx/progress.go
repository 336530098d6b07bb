package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/progress"
)

type moduleProgressRow struct {
	ID               string       `db:"id"`
	UserID           string       `db:"student_id"`
	ModuleID         string       `db:"module_id"`
	Status           string       `db:"status"`
	ExamAttemptsUsed int          `db:"exam_attempts_used"`
	ExamBestScore    null.Float64 `db:"exam_best_score"`
	CompletedAt      null.Time    `db:"completed_at"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r moduleProgressRow) toProgress() progress.ModuleProgress {
	return progress.ModuleProgress{
		ID:               r.ID,
		UserID:           r.UserID,
		ModuleID:         r.ModuleID,
		Status:           r.Status,
		ExamAttemptsUsed: r.ExamAttemptsUsed,
		ExamBestScore:    r.ExamBestScore.Ptr(),
		CompletedAt:      r.CompletedAt.Ptr(),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type itemProgressRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	ModuleItemID   string    `db:"module_item_id"`
	CompletedAt    null.Time `db:"completed_at"`
	LastAccessedAt null.Time `db:"last_accessed_at"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r itemProgressRow) toProgress() progress.ItemProgress {
	return progress.ItemProgress{
		ID:             r.ID,
		UserID:         r.UserID,
		ModuleItemID:   r.ModuleItemID,
		CompletedAt:    r.CompletedAt.Ptr(),
		LastAccessedAt: r.LastAccessedAt.Ptr(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

var (
	moduleProgressColumns = []string{"id", "student_id", "module_id", "status", "exam_attempts_used", "exam_best_score", "completed_at", "created_at", "updated_at"}
	itemProgressColumns   = []string{"id", "user_id", "module_item_id", "completed_at", "last_accessed_at", "created_at", "updated_at"}
)

type progressRepository struct {
	base
}

func NewProgressRepository(db *sqlx.DB) progress.Repository {
	return &progressRepository{base{db: db}}
}

func (repo *progressRepository) listModuleProgress(ctx context.Context, where sq.Sqlizer) ([]progress.ModuleProgress, error) {
	var rows []moduleProgressRow
	if err := repo.selectRows(ctx, &rows, psql.Select(moduleProgressColumns...).From("module_progress").Where(where)); err != nil {
		return nil, err
	}
	list := make([]progress.ModuleProgress, len(rows))
	for i, row := range rows {
		list[i] = row.toProgress()
	}
	return list, nil
}

func (repo *progressRepository) GetModuleProgress(ctx context.Context, userID, moduleID string) (progress.ModuleProgress, error) {
	list, err := repo.listModuleProgress(ctx, sq.Eq{"student_id": userID, "module_id": moduleID})
	if err != nil {
		return progress.ModuleProgress{}, err
	}
	if len(list) == 0 {
		return progress.ModuleProgress{}, progress.ErrNotFound
	}
	return list[0], nil
}

func (repo *progressRepository) ListModuleProgress(ctx context.Context, userID string, moduleIDs ...string) ([]progress.ModuleProgress, error) {
	if len(moduleIDs) == 0 {
		return []progress.ModuleProgress{}, nil
	}
	return repo.listModuleProgress(ctx, sq.Eq{"student_id": userID, "module_id": moduleIDs})
}

func moduleProgressValues(p progress.ModuleProgress) map[string]interface{} {
	return map[string]interface{}{
		"status":             p.Status,
		"exam_attempts_used": p.ExamAttemptsUsed,
		"exam_best_score":    null.Float64FromPtr(p.ExamBestScore),
		"completed_at":       null.TimeFromPtr(p.CompletedAt),
		"updated_at":         p.UpdatedAt,
	}
}

// insertModuleProgress leaves the existing progress of (student, module) untouched.
func insertModuleProgress(p progress.ModuleProgress) sq.InsertBuilder {
	values := moduleProgressValues(p)
	values["id"] = p.ID
	values["student_id"] = p.UserID
	values["module_id"] = p.ModuleID
	values["created_at"] = p.CreatedAt
	return psql.Insert("module_progress").SetMap(values).Suffix("ON CONFLICT (student_id, module_id) DO NOTHING")
}

func (repo *progressRepository) CreateModuleProgress(ctx context.Context, p progress.ModuleProgress) (progress.ModuleProgress, error) {
	if _, err := repo.exec(ctx, insertModuleProgress(p)); err != nil {
		return progress.ModuleProgress{}, err
	}
	return repo.GetModuleProgress(ctx, p.UserID, p.ModuleID)
}

func (repo *progressRepository) UpdateModuleProgress(ctx context.Context, p progress.ModuleProgress) (progress.ModuleProgress, error) {
	stmt := psql.Update("module_progress").SetMap(moduleProgressValues(p)).Where(sq.Eq{"id": p.ID})
	err := repo.execOne(ctx, stmt, progress.ErrNotFound)
	return p, err
}

func (repo *progressRepository) listItemProgress(ctx context.Context, where sq.Sqlizer) ([]progress.ItemProgress, error) {
	var rows []itemProgressRow
	if err := repo.selectRows(ctx, &rows, psql.Select(itemProgressColumns...).From("module_item_progress").Where(where)); err != nil {
		return nil, err
	}
	list := make([]progress.ItemProgress, len(rows))
	for i, row := range rows {
		list[i] = row.toProgress()
	}
	return list, nil
}

func (repo *progressRepository) GetItemProgress(ctx context.Context, userID, itemID string) (progress.ItemProgress, error) {
	list, err := repo.listItemProgress(ctx, sq.Eq{"user_id": userID, "module_item_id": itemID})
	if err != nil {
		return progress.ItemProgress{}, err
	}
	if len(list) == 0 {
		return progress.ItemProgress{}, progress.ErrItemNotFound
	}
	return list[0], nil
}

func (repo *progressRepository) ListItemProgress(ctx context.Context, userID string, itemIDs ...string) ([]progress.ItemProgress, error) {
	if len(itemIDs) == 0 {
		return []progress.ItemProgress{}, nil
	}
	return repo.listItemProgress(ctx, sq.Eq{"user_id": userID, "module_item_id": itemIDs})
}

func (repo *progressRepository) SaveItemProgress(ctx context.Context, p progress.ItemProgress) (progress.ItemProgress, error) {
	stmt := psql.Insert("module_item_progress").
		Columns(itemProgressColumns...).
		Values(p.ID, p.UserID, p.ModuleItemID, null.TimeFromPtr(p.CompletedAt), null.TimeFromPtr(p.LastAccessedAt), p.CreatedAt, p.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, module_item_id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			last_accessed_at = EXCLUDED.last_accessed_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + joinColumns(itemProgressColumns))

	var row itemProgressRow
	if err := repo.get(ctx, &row, stmt); err != nil {
		return progress.ItemProgress{}, err
	}
	return row.toProgress(), nil
}
