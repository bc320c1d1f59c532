package gc

import (
	"context"

	"github.com/teresy/marathon/internal/logging"
	"github.com/teresy/marathon/internal/state"
	"github.com/teresy/marathon/internal/storage"
)

// compactor executes a deletion set. Deletes run one at a time per stage,
// full app histories first and root snapshots last, so the stages that are
// cheapest to redo on the next cycle fail earliest. Individual delete
// failures are logged and skipped; the next cycle rediscovers the leftovers.
type compactor struct {
	apps   storage.AppRepository
	pods   storage.PodRepository
	groups storage.GroupRepository
	logger *logging.Logger
}

func (c *compactor) run(ctx context.Context, deletes state.ScanResult) {
	for _, id := range deletes.AppsToDelete.Sorted() {
		if err := c.apps.Delete(ctx, id); err != nil {
			c.logger.Warnf("gc delete app failed", map[string]any{
				"app":   id.String(),
				"error": err.Error(),
			})
		}
	}
	for _, id := range deletes.AppVersionsToDelete.Keys().Sorted() {
		for _, v := range deletes.AppVersionsToDelete[id].Sorted() {
			if err := c.apps.DeleteVersion(ctx, id, v); err != nil {
				c.logger.Warnf("gc delete app version failed", map[string]any{
					"app":     id.String(),
					"version": v.String(),
					"error":   err.Error(),
				})
			}
		}
	}
	for _, id := range deletes.PodsToDelete.Sorted() {
		if err := c.pods.Delete(ctx, id); err != nil {
			c.logger.Warnf("gc delete pod failed", map[string]any{
				"pod":   id.String(),
				"error": err.Error(),
			})
		}
	}
	for _, id := range deletes.PodVersionsToDelete.Keys().Sorted() {
		for _, v := range deletes.PodVersionsToDelete[id].Sorted() {
			if err := c.pods.DeleteVersion(ctx, id, v); err != nil {
				c.logger.Warnf("gc delete pod version failed", map[string]any{
					"pod":     id.String(),
					"version": v.String(),
					"error":   err.Error(),
				})
			}
		}
	}
	for _, v := range deletes.RootsToDelete.Sorted() {
		if err := c.groups.DeleteRootVersion(ctx, v); err != nil {
			c.logger.Warnf("gc delete root failed", map[string]any{
				"root":  v.String(),
				"error": err.Error(),
			})
		}
	}
}
