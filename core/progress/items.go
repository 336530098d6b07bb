package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

// ItemService tracks item completion and computes weighted progress.
type ItemService struct {
	Deps
}

func NewItemService(deps Deps) *ItemService {
	return &ItemService{Deps: deps}
}

func (svc *ItemService) GetCourseProgress(ctx context.Context, userID, courseID string) (Summary, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.CourseProgressKey(userID, courseID), svc.ProgressTTL,
		func(ctx context.Context) (Summary, error) {
			outlines, err := svc.Courses.Outline(ctx, courseID)
			if err != nil {
				return Summary{}, errors.Wrap(err, "getting course outline")
			}
			var items []course.ModuleItem
			for _, o := range outlines {
				items = append(items, o.PublishedItems()...)
			}
			done, err := svc.itemProgressByID(ctx, userID, items)
			if err != nil {
				return Summary{}, err
			}
			return summarize(items, done), nil
		},
	)
}

func (svc *ItemService) GetModuleProgress(ctx context.Context, userID, moduleID string) (Summary, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.ModuleProgressKey(userID, moduleID), svc.ProgressTTL,
		func(ctx context.Context) (Summary, error) {
			outline, err := svc.Courses.ModuleOutline(ctx, moduleID)
			if err != nil {
				return Summary{}, err
			}
			items := outline.PublishedItems()
			done, err := svc.itemProgressByID(ctx, userID, items)
			if err != nil {
				return Summary{}, err
			}
			return summarize(items, done), nil
		},
	)
}

// GetBatchModuleProgress computes the progress of several modules with a single progress lookup.
func (svc *ItemService) GetBatchModuleProgress(ctx context.Context, userID string, moduleIDs ...string) (map[string]Summary, error) {
	outlines, err := svc.Courses.ModuleOutlines(ctx, moduleIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "getting module outlines")
	}
	return svc.summarizeModules(ctx, userID, outlines)
}

// update applies change to the user's progress on the item, creating the record when needed.
func (svc *ItemService) update(ctx context.Context, userID string, it course.ModuleItem, change func(p *ItemProgress, now time.Time)) (ItemProgress, error) {
	now := core.Now()
	p, err := svc.Repo.GetItemProgress(ctx, userID, it.ID)
	if err != nil {
		if !core.IsNotFound(err) {
			return ItemProgress{}, errors.Wrap(err, "getting item progress")
		}
		p = ItemProgress{ID: core.NewID(), UserID: userID, ModuleItemID: it.ID, CreatedAt: now}
	}
	change(&p, now)
	p.UpdatedAt = now
	if p, err = svc.Repo.SaveItemProgress(ctx, p); err != nil {
		return ItemProgress{}, errors.Wrap(err, "saving item progress")
	}
	svc.emitModuleChange(ctx, userID, it.ModuleID)
	return p, nil
}

func complete(p *ItemProgress, now time.Time) {
	if p.CompletedAt == nil {
		p.CompletedAt = &now
	}
}

func uncomplete(p *ItemProgress, _ time.Time) {
	p.CompletedAt = nil
}

// MarkComplete completes the item. Completing a completed item keeps its original completion time.
func (svc *ItemService) MarkComplete(ctx context.Context, userID, itemID string) (ItemProgress, error) {
	it, err := svc.Courses.GetModuleItem(ctx, itemID)
	if err != nil {
		return ItemProgress{}, err
	}
	return svc.update(ctx, userID, it, complete)
}

func (svc *ItemService) MarkIncomplete(ctx context.Context, userID, itemID string) (ItemProgress, error) {
	it, err := svc.Courses.GetModuleItem(ctx, itemID)
	if err != nil {
		return ItemProgress{}, err
	}
	return svc.update(ctx, userID, it, uncomplete)
}

// TrackAccess records the user's visit of the item and starts their module progress.
func (svc *ItemService) TrackAccess(ctx context.Context, userID, itemID string) (ItemProgress, error) {
	it, err := svc.Courses.GetModuleItem(ctx, itemID)
	if err != nil {
		return ItemProgress{}, err
	}
	if _, err = svc.getOrCreateModuleProgress(ctx, userID, it.ModuleID); err != nil {
		return ItemProgress{}, err
	}
	return svc.update(ctx, userID, it, func(p *ItemProgress, now time.Time) {
		p.LastAccessedAt = &now
	})
}

// setCompletion completes the item holding the content when passed, and un-completes it otherwise.
// Contents outside of any module are ignored.
func (svc *ItemService) setCompletion(ctx context.Context, userID string, itemType course.ItemType, contentID string, passed bool) error {
	it, err := svc.Courses.GetItemByContent(ctx, itemType, contentID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "getting module item")
	}
	change := uncomplete
	if passed {
		change = complete
	}
	_, err = svc.update(ctx, userID, it, change)
	return err
}

func (svc *ItemService) AutoCompleteForQuiz(ctx context.Context, userID string, quiz course.Quiz, percentage float64) error {
	return svc.setCompletion(ctx, userID, course.ItemQuiz, quiz.ID, quiz.Passed(percentage))
}

func (svc *ItemService) UpdateProgressForGradedAssignment(ctx context.Context, userID string, a course.Assignment, percentage float64) error {
	return svc.setCompletion(ctx, userID, course.ItemAssignment, a.ID, a.Passed(percentage))
}
