package inmemdb

import (
	"context"

	"github.com/trezcool/academia/core/progress"
)

type progressRepository struct {
	db *DB
}

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetModuleProgress(ctx context.Context, userID, moduleID string) (progress.ModuleProgress, error) {
	var (
		found progress.ModuleProgress
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, p := range t.modProgress {
			if p.UserID == userID && p.ModuleID == moduleID {
				found, ok = p, true
				return
			}
		}
	})
	if !ok {
		return progress.ModuleProgress{}, progress.ErrNotFound
	}
	return found, nil
}

func (repo *progressRepository) ListModuleProgress(ctx context.Context, userID string, moduleIDs ...string) ([]progress.ModuleProgress, error) {
	wanted := idSet(moduleIDs)
	list := make([]progress.ModuleProgress, 0)
	repo.db.read(func(t *tables) {
		for _, p := range t.modProgress {
			if p.UserID == userID && wanted[p.ModuleID] {
				list = append(list, p)
			}
		}
	})
	return list, nil
}

func (repo *progressRepository) CreateModuleProgress(ctx context.Context, p progress.ModuleProgress) (progress.ModuleProgress, error) {
	err := repo.db.write(func(t *tables) error {
		for _, other := range t.modProgress {
			if other.UserID == p.UserID && other.ModuleID == p.ModuleID {
				p = other
				return nil
			}
		}
		t.modProgress[p.ID] = p
		return nil
	})
	return p, err
}

func (repo *progressRepository) UpdateModuleProgress(ctx context.Context, p progress.ModuleProgress) (progress.ModuleProgress, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.modProgress[p.ID]; !ok {
			return progress.ErrNotFound
		}
		t.modProgress[p.ID] = p
		return nil
	})
	return p, err
}

func (repo *progressRepository) GetItemProgress(ctx context.Context, userID, itemID string) (progress.ItemProgress, error) {
	var (
		found progress.ItemProgress
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, p := range t.itemProgress {
			if p.UserID == userID && p.ModuleItemID == itemID {
				found, ok = p, true
				return
			}
		}
	})
	if !ok {
		return progress.ItemProgress{}, progress.ErrItemNotFound
	}
	return found, nil
}

func (repo *progressRepository) ListItemProgress(ctx context.Context, userID string, itemIDs ...string) ([]progress.ItemProgress, error) {
	wanted := idSet(itemIDs)
	list := make([]progress.ItemProgress, 0)
	repo.db.read(func(t *tables) {
		for _, p := range t.itemProgress {
			if p.UserID == userID && wanted[p.ModuleItemID] {
				list = append(list, p)
			}
		}
	})
	return list, nil
}

func (repo *progressRepository) SaveItemProgress(ctx context.Context, p progress.ItemProgress) (progress.ItemProgress, error) {
	err := repo.db.write(func(t *tables) error {
		for id, other := range t.itemProgress {
			if other.UserID == p.UserID && other.ModuleItemID == p.ModuleItemID {
				p.ID = id
				p.CreatedAt = other.CreatedAt
				break
			}
		}
		t.itemProgress[p.ID] = p
		return nil
	})
	return p, err
}
