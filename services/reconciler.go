package services

import (
	"fmt"
	"time"

	"camera-tracker/models"
	"camera-tracker/storage"
	"camera-tracker/utils"
)

// StalePolicy selects what happens to stored listings that a fresh
// scrape did not re-sight.
type StalePolicy string

const (
	// StaleDelete removes stale records outright (the default).
	StaleDelete StalePolicy = "delete"
	// StaleDeactivate keeps stale records but clears is_active.
	StaleDeactivate StalePolicy = "deactivate"
)

// ParseStalePolicy validates a policy name from config or a CLI flag.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case StaleDelete, StaleDeactivate:
		return StalePolicy(s), nil
	case "":
		return StaleDelete, nil
	default:
		return "", fmt.Errorf("unknown stale policy %q (want %q or %q)",
			s, StaleDelete, StaleDeactivate)
	}
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Created     int
	Updated     int
	Snapshots   int
	Stale       int
	Deleted     int64
	Deactivated int
}

// Reconciler aligns the stored listing set of one tracked model with
// the outcome of a fresh scrape. It is the sole writer of is_active
// transitions and deletions. Re-running it with an identical scrape
// result is a no-op apart from refreshed last_seen_at stamps.
type Reconciler struct {
	store  storage.ListingStore
	logger *utils.Logger
	policy StalePolicy
}

// NewReconciler creates a Reconciler applying the given stale policy.
func NewReconciler(store storage.ListingStore, logger *utils.Logger, policy StalePolicy) *Reconciler {
	if policy == "" {
		policy = StaleDelete
	}
	return &Reconciler{store: store, logger: logger, policy: policy}
}

// Reconcile upserts every scraped item for the model and then applies
// the stale policy to stored records the scrape did not re-sight. A
// price snapshot is appended whenever a listing is first seen or its
// price changed since the last sighting.
func (r *Reconciler) Reconcile(model *models.CameraModel, source string, items []models.ScrapedItem) (*ReconcileResult, error) {
	now := time.Now().UTC()
	result := &ReconcileResult{}

	for i := range items {
		it := &items[i]
		seen := now
		l := &models.Listing{
			CameraModelID: model.ID,
			Source:        source,
			ExternalID:    it.ExternalID,
			Title:         it.Title,
			URL:           it.URL,
			Price:         it.Price,
			Currency:      models.DefaultCurrency,
			Region:        it.Region,
			IsActive:      true,
			LastSeenAt:    &seen,
		}

		up, err := r.store.UpsertListing(l)
		if err != nil {
			return result, fmt.Errorf("reconcile %s/%s: %w", source, it.ExternalID, err)
		}
		if up.Created {
			result.Created++
		} else {
			result.Updated++
		}

		if up.Created || up.PreviousPrice != it.Price {
			if err := r.store.AddPriceSnapshot(up.ID, it.Price, models.DefaultCurrency, now); err != nil {
				return result, fmt.Errorf("reconcile %s/%s: %w", source, it.ExternalID, err)
			}
			result.Snapshots++
		}
	}

	stored, err := r.store.ListingsByModelSource(model.ID, source)
	if err != nil {
		return result, fmt.Errorf("reconcile %s: %w", source, err)
	}

	staleIDs := staleListingIDs(stored, items)
	result.Stale = len(staleIDs)

	if len(staleIDs) > 0 {
		switch r.policy {
		case StaleDeactivate:
			if err := r.store.DeactivateListings(staleIDs); err != nil {
				return result, fmt.Errorf("reconcile %s: %w", source, err)
			}
			result.Deactivated = len(staleIDs)
		default:
			n, err := r.store.DeleteListings(staleIDs)
			if err != nil {
				return result, fmt.Errorf("reconcile %s: %w", source, err)
			}
			result.Deleted = n
		}
	}

	r.logger.Info("[reconcile] %s — created=%d updated=%d snapshots=%d stale=%d (policy=%s)",
		model, result.Created, result.Updated, result.Snapshots, result.Stale, r.policy)

	return result, nil
}

// staleListingIDs returns the ids of stored records not re-sighted by
// the scrape. Stored records may carry a raw URL from an earlier
// scraper version while new items carry a bare digit id, so both sides
// are compared in raw and normalized form; a record is stale only when
// none of the four combinations match. A record with an empty stored
// identifier is always stale.
func staleListingIDs(stored []*models.Listing, items []models.ScrapedItem) []int64 {
	scraped := make(map[string]struct{}, len(items)*2)
	for _, it := range items {
		if it.ExternalID == "" {
			continue
		}
		scraped[it.ExternalID] = struct{}{}
		if norm, ok := models.ExtractExternalID(it.ExternalID); ok {
			scraped[norm] = struct{}{}
		}
	}

	var stale []int64
	for _, l := range stored {
		if l.ExternalID == "" {
			stale = append(stale, l.ID)
			continue
		}

		if _, ok := scraped[l.ExternalID]; ok {
			continue
		}
		if norm, ok := models.ExtractExternalID(l.ExternalID); ok {
			if _, hit := scraped[norm]; hit {
				continue
			}
		}
		stale = append(stale, l.ID)
	}
	return stale
}
