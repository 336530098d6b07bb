package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

var (
	ErrNotFound     = core.NewNotFoundError("module progress not found")
	ErrItemNotFound = core.NewNotFoundError("item progress not found")
)

type (
	Repository interface {
		GetModuleProgress(ctx context.Context, userID, moduleID string) (ModuleProgress, error)
		ListModuleProgress(ctx context.Context, userID string, moduleIDs ...string) ([]ModuleProgress, error)
		// CreateModuleProgress returns the stored progress of (user, module) when there already is one.
		CreateModuleProgress(ctx context.Context, p ModuleProgress) (ModuleProgress, error)
		UpdateModuleProgress(ctx context.Context, p ModuleProgress) (ModuleProgress, error)

		GetItemProgress(ctx context.Context, userID, itemID string) (ItemProgress, error)
		ListItemProgress(ctx context.Context, userID string, itemIDs ...string) ([]ItemProgress, error)
		// SaveItemProgress inserts or updates the progress of (user, item).
		SaveItemProgress(ctx context.Context, p ItemProgress) (ItemProgress, error)
	}

	// CourseReader reads the course structure progress is computed over.
	CourseReader interface {
		GetModule(ctx context.Context, id string) (course.Module, error)
		Outline(ctx context.Context, courseID string) ([]course.ModuleOutline, error)
		ModuleOutline(ctx context.Context, moduleID string) (course.ModuleOutline, error)
		ModuleOutlines(ctx context.Context, moduleIDs ...string) ([]course.ModuleOutline, error)
		GetModuleItem(ctx context.Context, id string) (course.ModuleItem, error)
		GetItemByContent(ctx context.Context, itemType course.ItemType, contentID string) (course.ModuleItem, error)
		ListAttempts(ctx context.Context, quizID, userID string) ([]course.QuizAttempt, error)
	}

	Deps struct {
		Repo        Repository
		Courses     CourseReader
		Cache       core.Cache
		Inv         *core.Invalidator
		Logger      core.Logger
		ProgressTTL time.Duration
	}
)

// getOrCreateModuleProgress returns the progress of the user in the module, creating it on first use.
func (d Deps) getOrCreateModuleProgress(ctx context.Context, userID, moduleID string) (ModuleProgress, error) {
	p, err := d.Repo.GetModuleProgress(ctx, userID, moduleID)
	if err == nil || !core.IsNotFound(err) {
		return p, err
	}

	now := core.Now()
	p, err = d.Repo.CreateModuleProgress(ctx, ModuleProgress{
		ID:        core.NewID(),
		UserID:    userID,
		ModuleID:  moduleID,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return p, errors.Wrap(err, "creating module progress")
}

// emitModuleChange invalidates the cached progress of the user in the module and its course.
func (d Deps) emitModuleChange(ctx context.Context, userID, moduleID string) {
	m, err := d.Courses.GetModule(ctx, moduleID)
	if err != nil {
		d.Logger.Warn(fmt.Sprintf("getting module %s for invalidation: %v", moduleID, err), err)
	}
	d.Inv.Emit(ctx, core.ProgressChanged{UserID: userID, CourseID: m.CourseID, ModuleID: moduleID})
}

// lastFinishedAttempt returns the most recent submitted or graded attempt, nil if there is none.
func (d Deps) lastFinishedAttempt(ctx context.Context, userID, quizID string) (*course.QuizAttempt, error) {
	attempts, err := d.Courses.ListAttempts(ctx, quizID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing attempts")
	}
	for _, att := range attempts {
		if att.IsFinished() {
			att := att
			return &att, nil
		}
	}
	return nil, nil
}

func (d Deps) moduleProgressByID(ctx context.Context, userID string, moduleIDs []string) (map[string]ModuleProgress, error) {
	byModule := make(map[string]ModuleProgress, len(moduleIDs))
	if len(moduleIDs) == 0 {
		return byModule, nil
	}
	list, err := d.Repo.ListModuleProgress(ctx, userID, moduleIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "listing module progress")
	}
	for _, p := range list {
		byModule[p.ModuleID] = p
	}
	return byModule, nil
}

func (d Deps) itemProgressByID(ctx context.Context, userID string, items []course.ModuleItem) (map[string]ItemProgress, error) {
	byItem := make(map[string]ItemProgress, len(items))
	if len(items) == 0 {
		return byItem, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	list, err := d.Repo.ListItemProgress(ctx, userID, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "listing item progress")
	}
	for _, p := range list {
		byItem[p.ModuleItemID] = p
	}
	return byItem, nil
}

// summarizeModules computes the progress of each outline's module with a single item progress lookup.
func (d Deps) summarizeModules(ctx context.Context, userID string, outlines []course.ModuleOutline) (map[string]Summary, error) {
	var items []course.ModuleItem
	for _, o := range outlines {
		items = append(items, o.PublishedItems()...)
	}
	done, err := d.itemProgressByID(ctx, userID, items)
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]Summary, len(outlines))
	for _, o := range outlines {
		summaries[o.Module.ID] = summarize(o.PublishedItems(), done)
	}
	return summaries, nil
}
