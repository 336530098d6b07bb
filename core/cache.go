package core

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Cache is a key/value store for JSON-serializable values.
type Cache interface {
	// Get loads the value stored at key into dest. It reports false when the key does not exist.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache keys
const (
	StudentStatsKey     = "stats:students"
	InstructorStatsKey  = "stats:instructors"
	AdminStatsKey       = "stats:admins"
	CourseStatsKey      = "stats:courses"
	ApplicationStatsKey = "stats:applications"
	AdminDashboardKey   = "dashboard:admin"

	instructorDashboardPrefix = "dashboard:instructor:"
	studentDashboardPrefix    = "dashboard:student:"
)

func InstructorDashboardKey(userID string) string { return instructorDashboardPrefix + userID }
func StudentDashboardKey(userID string) string    { return studentDashboardPrefix + userID }

func CourseProgressKey(userID, courseID string) string {
	return fmt.Sprintf("progress:course:%s:user:%s", courseID, userID)
}

func ModuleProgressKey(userID, moduleID string) string {
	return fmt.Sprintf("progress:module:%s:user:%s", moduleID, userID)
}

func courseProgressPrefix(courseID string) string { return fmt.Sprintf("progress:course:%s:", courseID) }
func moduleProgressPrefix(moduleID string) string { return fmt.Sprintf("progress:module:%s:", moduleID) }

// Remember returns the value cached at key, or loads, caches and returns it.
// Cache failures are logged and never fail the call.
func Remember[T any](
	ctx context.Context,
	cache Cache,
	logger Logger,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var val T
	if found, err := cache.Get(ctx, key, &val); err != nil {
		logger.Warn(fmt.Sprintf("reading cache key %q: %v", key, err), err)
	} else if found {
		return val, nil
	}

	val, err := load(ctx)
	if err != nil {
		return val, err
	}
	if err = cache.Set(ctx, key, val, ttl); err != nil {
		logger.Warn(fmt.Sprintf("writing cache key %q: %v", key, err), err)
	}
	return val, nil
}

// CacheEvent is a data change that makes cached values stale.
type CacheEvent interface {
	// StaleKeys returns the exact keys and the key prefixes to drop.
	StaleKeys() (keys []string, prefixes []string)
}

type (
	StudentsChanged     struct{}
	InstructorsChanged  struct{}
	AdminsChanged       struct{}
	ApplicationsChanged struct{}

	CoursesChanged struct {
		CourseID  string
		ModuleIDs []string
	}

	ProgressChanged struct {
		UserID   string
		CourseID string
		ModuleID string
	}

	GradesChanged struct {
		UserID string
	}
)

func (StudentsChanged) StaleKeys() ([]string, []string) {
	return []string{StudentStatsKey, AdminDashboardKey}, nil
}

func (InstructorsChanged) StaleKeys() ([]string, []string) {
	return []string{InstructorStatsKey, AdminDashboardKey}, []string{instructorDashboardPrefix}
}

func (AdminsChanged) StaleKeys() ([]string, []string) {
	return []string{AdminStatsKey, AdminDashboardKey}, nil
}

func (ApplicationsChanged) StaleKeys() ([]string, []string) {
	return []string{ApplicationStatsKey, AdminDashboardKey}, nil
}

func (e CoursesChanged) StaleKeys() ([]string, []string) {
	keys := []string{CourseStatsKey, AdminDashboardKey}
	prefixes := []string{instructorDashboardPrefix, studentDashboardPrefix}
	if e.CourseID != "" {
		prefixes = append(prefixes, courseProgressPrefix(e.CourseID))
	}
	for _, id := range e.ModuleIDs {
		prefixes = append(prefixes, moduleProgressPrefix(id))
	}
	return keys, prefixes
}

func (e ProgressChanged) StaleKeys() ([]string, []string) {
	keys := []string{StudentDashboardKey(e.UserID)}
	if e.CourseID != "" {
		keys = append(keys, CourseProgressKey(e.UserID, e.CourseID))
	}
	if e.ModuleID != "" {
		keys = append(keys, ModuleProgressKey(e.UserID, e.ModuleID))
	}
	return keys, nil
}

func (e GradesChanged) StaleKeys() ([]string, []string) {
	return []string{StudentDashboardKey(e.UserID)}, []string{instructorDashboardPrefix}
}

// Invalidator owns the mapping between data changes and cache keys.
// Services emit events after their writes; they never delete cache keys themselves.
type Invalidator struct {
	cache  Cache
	logger Logger
}

func NewInvalidator(cache Cache, logger Logger) *Invalidator {
	return &Invalidator{cache: cache, logger: logger}
}

func (inv *Invalidator) Emit(ctx context.Context, events ...CacheEvent) {
	for _, evt := range events {
		keys, prefixes := evt.StaleKeys()
		if len(keys) > 0 {
			if err := inv.cache.Delete(ctx, keys...); err != nil {
				inv.logger.Warn(fmt.Sprintf("invalidating %T: %v", evt, err), errors.Wrap(err, "deleting keys"))
			}
		}
		for _, prefix := range prefixes {
			if err := inv.cache.DeletePrefix(ctx, prefix); err != nil {
				inv.logger.Warn(fmt.Sprintf("invalidating %T: %v", evt, err), errors.Wrap(err, "deleting prefix"))
			}
		}
	}
}
