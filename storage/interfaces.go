package storage

import (
	"time"

	"camera-tracker/models"
)

// UpsertResult reports what an upsert did to the stored record.
type UpsertResult struct {
	ID      int64
	Created bool
	// PreviousPrice is the price stored before the upsert. Only
	// meaningful when Created is false.
	PreviousPrice int
}

// ListingStore is the record-oriented interface the reconciliation
// pipeline reads and writes listings through.
type ListingStore interface {
	// UpsertListing writes one sighting, keyed on the unique
	// (source, external_id) pair: created on first sighting,
	// otherwise mutable fields are updated while identity and
	// fetched_at are preserved.
	UpsertListing(l *models.Listing) (UpsertResult, error)

	// ListingsByModelSource returns all stored listings for one
	// tracked model and source, active or not.
	ListingsByModelSource(cameraModelID int64, source string) ([]*models.Listing, error)

	// ActiveListings and InactiveListings filter by the is_active flag.
	ActiveListings(cameraModelID int64, source string) ([]*models.Listing, error)
	InactiveListings(cameraModelID int64, source string) ([]*models.Listing, error)

	// DeactivateListings clears is_active for the given ids.
	DeactivateListings(ids []int64) error

	// DeleteListings removes the given ids and reports how many rows went away.
	DeleteListings(ids []int64) (int64, error)

	// AddPriceSnapshot appends one observed price point for a listing.
	AddPriceSnapshot(listingID int64, price int, currency string, checkedAt time.Time) error

	// PricePoints projects the observed price history of a model's
	// active, positive-priced listings for the analytics layer.
	PricePoints(cameraModelID int64, source string) ([]models.PricePoint, error)
}

// CameraModelStore manages the tracked camera models.
type CameraModelStore interface {
	CameraModels() ([]*models.CameraModel, error)
	CameraModelByID(id int64) (*models.CameraModel, error)
	AddCameraModel(m *models.CameraModel) (int64, error)
}

// ItemWriter dumps one run's scraped items, e.g. to CSV.
type ItemWriter interface {
	WriteItems(items []models.ScrapedItem) error
	Close() error
}
