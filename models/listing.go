package models

import "time"

// SourceAvito is the only marketplace source supported right now.
const SourceAvito = "avito"

// DefaultCurrency is the currency all Avito prices are quoted in.
const DefaultCurrency = "RUB"

// ScrapedItem is one normalized listing extracted from a search results
// page. It is the unit of exchange between the scraper and the
// reconciliation engine; it is never stored directly.
type ScrapedItem struct {
	ExternalID string
	URL        string
	Price      int
	Title      string
	Region     string
}

// CameraModel is one tracked camera model. Each model carries the Avito
// search URL its listings are fetched from.
type CameraModel struct {
	ID          int64
	Brand       string
	Name        string
	ReleaseYear int
	Mount       string
	SensorType  string
	SearchURL   string
}

func (m *CameraModel) String() string {
	return m.Brand + " " + m.Name
}

// Listing is a persisted marketplace advertisement, keyed by the unique
// (source, external_id) pair. The reconciliation engine is the sole
// writer of is_active transitions and deletions.
type Listing struct {
	ID            int64
	CameraModelID int64
	Source        string
	ExternalID    string
	Title         string
	URL           string
	Price         int
	Currency      string
	Region        string
	SellerType    string
	PostedDate    *time.Time
	FetchedAt     time.Time
	IsActive      bool
	LastSeenAt    *time.Time
}

// PriceSnapshot is one observed price point for a listing. Rows are
// append-only; history is never rewritten.
type PriceSnapshot struct {
	ID        int64
	ListingID int64
	Price     int
	Currency  string
	CheckedAt time.Time
}

// PricePoint is the row-oriented projection consumed by the analytics
// layer: one observed price with its observation time and region.
type PricePoint struct {
	Price      int
	Region     string
	ObservedAt time.Time
}
