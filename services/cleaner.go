package services

import (
	"fmt"

	"camera-tracker/models"
	"camera-tracker/storage"
	"camera-tracker/utils"
)

// Cleaner purges inactive stored listings that no longer correspond to
// any active listing of the same model and source. Deactivated records
// accumulate under the deactivate stale policy; this removes the ones
// whose ad is genuinely gone.
type Cleaner struct {
	store  storage.ListingStore
	logger *utils.Logger
}

// NewCleaner creates a Cleaner over the given store.
func NewCleaner(store storage.ListingStore, logger *utils.Logger) *Cleaner {
	return &Cleaner{store: store, logger: logger}
}

// CleanupResult reports what one cleanup pass found.
type CleanupResult struct {
	Active   int
	Inactive int
	// Candidates are the inactive listings with no matching active
	// listing. In dry-run mode they are reported but kept.
	Candidates []*models.Listing
	Deleted    int64
}

// Cleanup removes inactive listings for one model whose external id
// (raw or normalized) matches no active listing. With dryRun set it
// only reports what would be removed.
func (c *Cleaner) Cleanup(model *models.CameraModel, source string, dryRun bool) (*CleanupResult, error) {
	active, err := c.store.ActiveListings(model.ID, source)
	if err != nil {
		return nil, fmt.Errorf("cleanup %s: %w", source, err)
	}
	inactive, err := c.store.InactiveListings(model.ID, source)
	if err != nil {
		return nil, fmt.Errorf("cleanup %s: %w", source, err)
	}

	result := &CleanupResult{Active: len(active), Inactive: len(inactive)}

	activeIDs := make(map[string]struct{}, len(active)*2)
	for _, l := range active {
		if l.ExternalID == "" {
			continue
		}
		activeIDs[l.ExternalID] = struct{}{}
		if norm, ok := models.ExtractExternalID(l.ExternalID); ok {
			activeIDs[norm] = struct{}{}
		}
	}

	for _, l := range inactive {
		found := false
		if l.ExternalID != "" {
			if _, ok := activeIDs[l.ExternalID]; ok {
				found = true
			} else if norm, ok := models.ExtractExternalID(l.ExternalID); ok {
				_, found = activeIDs[norm]
			}
		}
		if !found {
			result.Candidates = append(result.Candidates, l)
		}
	}

	if dryRun || len(result.Candidates) == 0 {
		c.logger.Info("[cleanup] %s — active=%d inactive=%d removable=%d (dry-run=%v)",
			model, result.Active, result.Inactive, len(result.Candidates), dryRun)
		return result, nil
	}

	ids := make([]int64, 0, len(result.Candidates))
	for _, l := range result.Candidates {
		ids = append(ids, l.ID)
	}
	n, err := c.store.DeleteListings(ids)
	if err != nil {
		return result, fmt.Errorf("cleanup %s: %w", source, err)
	}
	result.Deleted = n

	c.logger.Info("[cleanup] %s — removed %d of %d inactive listings",
		model, n, result.Inactive)
	return result, nil
}
