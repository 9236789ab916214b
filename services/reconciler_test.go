package services

import (
	"sort"
	"testing"
	"time"

	"camera-tracker/models"
	"camera-tracker/storage"
	"camera-tracker/utils"
)

// memStore is an in-memory ListingStore for reconciliation tests.
type memStore struct {
	nextID    int64
	listings  map[int64]*models.Listing
	snapshots []models.PriceSnapshot
}

func newMemStore() *memStore {
	return &memStore{listings: make(map[int64]*models.Listing)}
}

func (m *memStore) UpsertListing(l *models.Listing) (storage.UpsertResult, error) {
	for _, existing := range m.listings {
		if existing.Source == l.Source && existing.ExternalID == l.ExternalID {
			res := storage.UpsertResult{ID: existing.ID, PreviousPrice: existing.Price}
			existing.CameraModelID = l.CameraModelID
			existing.Title = l.Title
			existing.URL = l.URL
			existing.Price = l.Price
			existing.Region = l.Region
			existing.IsActive = true
			existing.LastSeenAt = l.LastSeenAt
			return res, nil
		}
	}

	m.nextID++
	stored := *l
	stored.ID = m.nextID
	stored.FetchedAt = time.Now()
	m.listings[stored.ID] = &stored
	return storage.UpsertResult{ID: stored.ID, Created: true}, nil
}

func (m *memStore) filter(cameraModelID int64, source string, keep func(*models.Listing) bool) []*models.Listing {
	var out []*models.Listing
	for _, l := range m.listings {
		if l.CameraModelID == cameraModelID && l.Source == source && keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListingsByModelSource(id int64, source string) ([]*models.Listing, error) {
	return m.filter(id, source, func(*models.Listing) bool { return true }), nil
}

func (m *memStore) ActiveListings(id int64, source string) ([]*models.Listing, error) {
	return m.filter(id, source, func(l *models.Listing) bool { return l.IsActive }), nil
}

func (m *memStore) InactiveListings(id int64, source string) ([]*models.Listing, error) {
	return m.filter(id, source, func(l *models.Listing) bool { return !l.IsActive }), nil
}

func (m *memStore) DeactivateListings(ids []int64) error {
	for _, id := range ids {
		if l, ok := m.listings[id]; ok {
			l.IsActive = false
		}
	}
	return nil
}

func (m *memStore) DeleteListings(ids []int64) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.listings[id]; ok {
			delete(m.listings, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) AddPriceSnapshot(listingID int64, price int, currency string, checkedAt time.Time) error {
	m.snapshots = append(m.snapshots, models.PriceSnapshot{
		ListingID: listingID, Price: price, Currency: currency, CheckedAt: checkedAt,
	})
	return nil
}

func (m *memStore) PricePoints(id int64, source string) ([]models.PricePoint, error) {
	var points []models.PricePoint
	for _, s := range m.snapshots {
		l, ok := m.listings[s.ListingID]
		if !ok || l.CameraModelID != id || l.Source != source || !l.IsActive || s.Price <= 0 {
			continue
		}
		points = append(points, models.PricePoint{Price: s.Price, Region: l.Region, ObservedAt: s.CheckedAt})
	}
	return points, nil
}

// seed inserts a stored listing directly, bypassing the reconciler.
func (m *memStore) seed(modelID int64, externalID, title string, price int, active bool) *models.Listing {
	m.nextID++
	l := &models.Listing{
		ID:            m.nextID,
		CameraModelID: modelID,
		Source:        models.SourceAvito,
		ExternalID:    externalID,
		Title:         title,
		Price:         price,
		Currency:      models.DefaultCurrency,
		IsActive:      active,
		FetchedAt:     time.Now().Add(-24 * time.Hour),
	}
	m.listings[l.ID] = l
	return l
}

var testModel = &models.CameraModel{ID: 1, Brand: "Canon", Name: "5D"}

func item(externalID, title string, price int) models.ScrapedItem {
	return models.ScrapedItem{
		ExternalID: externalID,
		URL:        "https://www.avito.ru/items/item_" + externalID,
		Price:      price,
		Title:      title,
		Region:     "Москва",
	}
}

func TestReconcileEndToEnd(t *testing.T) {
	store := newMemStore()
	store.seed(1, "1000001", "Canon 5D first", 25000, true)
	store.seed(1, "1000002", "Canon 5D second", 30000, true)
	store.seed(1, "1000003", "Canon 5D third", 35000, true)

	items := []models.ScrapedItem{
		item("1000001", "Canon 5D first", 24000),
		item("1000002", "Canon 5D second", 30000),
		item("1000004", "Canon 5D brand new", 50000),
	}

	r := NewReconciler(store, utils.NewLogger(), StaleDelete)
	result, err := r.Reconcile(testModel, models.SourceAvito, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Created != 1 || result.Updated != 2 {
		t.Errorf("created=%d updated=%d; want 1 and 2", result.Created, result.Updated)
	}
	if result.Deleted != 1 {
		t.Errorf("deleted=%d; want 1", result.Deleted)
	}

	stored, _ := store.ListingsByModelSource(1, models.SourceAvito)
	if len(stored) != 3 {
		t.Fatalf("store holds %d records; want 3", len(stored))
	}
	byExt := make(map[string]*models.Listing)
	for _, l := range stored {
		byExt[l.ExternalID] = l
	}
	if _, gone := byExt["1000003"]; gone {
		t.Error("unseen record 1000003 should have been hard-deleted")
	}
	if l, ok := byExt["1000001"]; !ok || l.Price != 24000 {
		t.Error("record 1000001 should carry the updated price")
	}
	if _, ok := byExt["1000004"]; !ok {
		t.Error("new record 1000004 missing")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.seed(1, "1000001", "Canon 5D first", 25000, true)
	store.seed(1, "1000002", "Canon 5D second", 30000, true)

	items := []models.ScrapedItem{
		item("1000001", "Canon 5D first", 25000),
		item("1000003", "Canon 5D third", 40000),
	}

	r := NewReconciler(store, utils.NewLogger(), StaleDelete)
	if _, err := r.Reconcile(testModel, models.SourceAvito, items); err != nil {
		t.Fatalf("first run: %v", err)
	}

	afterFirst, _ := store.ListingsByModelSource(1, models.SourceAvito)
	snapshotsAfterFirst := len(store.snapshots)

	second, err := r.Reconcile(testModel, models.SourceAvito, items)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.Created != 0 || second.Deleted != 0 {
		t.Errorf("second run created=%d deleted=%d; want a no-op", second.Created, second.Deleted)
	}
	if len(store.snapshots) != snapshotsAfterFirst {
		t.Errorf("second run added %d snapshots; prices did not change",
			len(store.snapshots)-snapshotsAfterFirst)
	}

	afterSecond, _ := store.ListingsByModelSource(1, models.SourceAvito)
	if len(afterSecond) != len(afterFirst) {
		t.Fatalf("record count changed: %d → %d", len(afterFirst), len(afterSecond))
	}
	for i := range afterFirst {
		a, b := afterFirst[i], afterSecond[i]
		if a.ExternalID != b.ExternalID || a.Price != b.Price || a.Title != b.Title || a.IsActive != b.IsActive {
			t.Errorf("record %s changed on the second run", a.ExternalID)
		}
	}
}

func TestReconcileMatchesAcrossIdentifierFormats(t *testing.T) {
	store := newMemStore()
	// Legacy record stores the full URL instead of the bare id.
	store.seed(1, "https://x/item/999999", "Canon 5D legacy", 25000, true)

	items := []models.ScrapedItem{item("999999", "Canon 5D", 25000)}

	r := NewReconciler(store, utils.NewLogger(), StaleDelete)
	result, err := r.Reconcile(testModel, models.SourceAvito, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stale != 0 {
		t.Errorf("legacy URL record counted stale; normalized forms should match")
	}
}

func TestReconcileEmptyStoredIDIsStale(t *testing.T) {
	store := newMemStore()
	store.seed(1, "", "Canon 5D broken", 25000, true)

	r := NewReconciler(store, utils.NewLogger(), StaleDelete)
	result, err := r.Reconcile(testModel, models.SourceAvito, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stale != 1 || result.Deleted != 1 {
		t.Errorf("stale=%d deleted=%d; want 1 and 1", result.Stale, result.Deleted)
	}
}

func TestReconcileDeactivatePolicy(t *testing.T) {
	store := newMemStore()
	stale := store.seed(1, "1000001", "Canon 5D old", 25000, true)

	items := []models.ScrapedItem{item("1000002", "Canon 5D new", 30000)}

	r := NewReconciler(store, utils.NewLogger(), StaleDeactivate)
	result, err := r.Reconcile(testModel, models.SourceAvito, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Deactivated != 1 || result.Deleted != 0 {
		t.Errorf("deactivated=%d deleted=%d; want soft transition only", result.Deactivated, result.Deleted)
	}
	if kept, ok := store.listings[stale.ID]; !ok {
		t.Fatal("soft policy must keep the record")
	} else if kept.IsActive {
		t.Error("stale record still active")
	}
}

func TestReconcileRecordsSnapshotOnPriceChange(t *testing.T) {
	store := newMemStore()
	store.seed(1, "1000001", "Canon 5D", 25000, true)

	r := NewReconciler(store, utils.NewLogger(), StaleDelete)

	// Same price: no snapshot.
	if _, err := r.Reconcile(testModel, models.SourceAvito,
		[]models.ScrapedItem{item("1000001", "Canon 5D", 25000)}); err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 0 {
		t.Fatalf("snapshot written for unchanged price")
	}

	// Price drop: one snapshot.
	if _, err := r.Reconcile(testModel, models.SourceAvito,
		[]models.ScrapedItem{item("1000001", "Canon 5D", 23000)}); err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 1 || store.snapshots[0].Price != 23000 {
		t.Errorf("snapshots = %+v; want one snapshot at the new price", store.snapshots)
	}
}

func TestParseStalePolicy(t *testing.T) {
	if p, err := ParseStalePolicy(""); err != nil || p != StaleDelete {
		t.Errorf("empty policy = (%q, %v); want the delete default", p, err)
	}
	if p, err := ParseStalePolicy("deactivate"); err != nil || p != StaleDeactivate {
		t.Errorf("deactivate = (%q, %v)", p, err)
	}
	if _, err := ParseStalePolicy("archive"); err == nil {
		t.Error("unknown policy accepted")
	}
}
