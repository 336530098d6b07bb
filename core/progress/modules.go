package progress

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

// ModuleService serves the per-student view of modules.
type ModuleService struct {
	Deps
	gating *Gating
}

func NewModuleService(deps Deps, gating *Gating) *ModuleService {
	return &ModuleService{Deps: deps, gating: gating}
}

func (svc *ModuleService) GetOrCreate(ctx context.Context, userID, moduleID string) (ModuleProgress, error) {
	return svc.getOrCreateModuleProgress(ctx, userID, moduleID)
}

// CourseOverview lists the published modules of the course with the student's standing in each.
func (svc *ModuleService) CourseOverview(ctx context.Context, userID, courseID string) ([]ModuleOverview, error) {
	outlines, err := svc.Courses.Outline(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "getting course outline")
	}

	moduleIDs := make([]string, len(outlines))
	for i, o := range outlines {
		moduleIDs[i] = o.Module.ID
	}
	modProgress, err := svc.moduleProgressByID(ctx, userID, moduleIDs)
	if err != nil {
		return nil, err
	}
	summaries, err := svc.summarizeModules(ctx, userID, outlines)
	if err != nil {
		return nil, err
	}

	overview := make([]ModuleOverview, 0, len(outlines))
	var gates []course.Module
	for _, o := range outlines {
		if !o.Module.IsPublished() {
			continue
		}
		ov := ModuleOverview{
			Module:   o.Module,
			Status:   StatusNotStarted,
			Access:   checkGates(gates, modProgress),
			Progress: summaries[o.Module.ID],
		}
		if p, ok := modProgress[o.Module.ID]; ok {
			ov.Status = p.Status
			ov.Blocked = p.IsBlockedFromProgression()
		}
		overview = append(overview, ov)
		if o.RequiresExamToUnlockNext() {
			gates = append(gates, o.Module)
		}
	}
	return overview, nil
}

// ItemView is a module item as shown to a student.
type ItemView struct {
	Item      course.ModuleItem `json:"item"`
	Completed bool              `json:"completed"`
}

// ModuleDetail is a module as shown to a student. Items are empty while the module is locked.
type ModuleDetail struct {
	Module   course.Module `json:"module"`
	Status   string        `json:"status"`
	Access   Access        `json:"access"`
	Progress Summary       `json:"progress"`
	Items    []ItemView    `json:"items"`
}

// ModuleDetail returns the published items of the module the student can see.
// Quiz questions are left out: they come with an attempt.
func (svc *ModuleService) ModuleDetail(ctx context.Context, userID, moduleID string) (ModuleDetail, error) {
	outline, err := svc.Courses.ModuleOutline(ctx, moduleID)
	if err != nil {
		return ModuleDetail{}, err
	}
	access, err := svc.gating.IsModuleAccessible(ctx, userID, moduleID)
	if err != nil {
		return ModuleDetail{}, err
	}

	published := outline.PublishedItems()
	done, err := svc.itemProgressByID(ctx, userID, published)
	if err != nil {
		return ModuleDetail{}, err
	}
	detail := ModuleDetail{
		Module:   outline.Module,
		Status:   StatusNotStarted,
		Access:   access,
		Progress: summarize(published, done),
		Items:    []ItemView{},
	}
	p, err := svc.Repo.GetModuleProgress(ctx, userID, moduleID)
	switch {
	case err == nil:
		detail.Status = p.Status
	case !core.IsNotFound(err):
		return ModuleDetail{}, errors.Wrap(err, "getting module progress")
	}
	if !access.Accessible {
		return detail, nil
	}

	for _, it := range published {
		if q, ok := it.Quiz(); ok {
			visible, err := svc.gating.examVisibleIn(ctx, userID, outline, q)
			if err != nil {
				return ModuleDetail{}, err
			}
			if !visible {
				continue
			}
			q.Questions = nil
			it.Content = q
		}
		detail.Items = append(detail.Items, ItemView{Item: it, Completed: done[it.ID].IsCompleted()})
	}
	return detail, nil
}
