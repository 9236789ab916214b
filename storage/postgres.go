package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"camera-tracker/models"
)

// Postgres implements ListingStore and CameraModelStore on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection, runs schema migrations, and returns
// a ready-to-use store.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return p, nil
}

func (p *Postgres) migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS camera_models (
			id           SERIAL PRIMARY KEY,
			brand        VARCHAR(100) NOT NULL,
			name         VARCHAR(150) NOT NULL,
			release_year SMALLINT     NOT NULL DEFAULT 0,
			mount        VARCHAR(50)  NOT NULL DEFAULT '',
			sensor_type  VARCHAR(50)  NOT NULL DEFAULT '',
			search_url   TEXT         NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS listings (
			id              SERIAL PRIMARY KEY,
			camera_model_id INTEGER      NOT NULL REFERENCES camera_models(id) ON DELETE CASCADE,
			source          VARCHAR(20)  NOT NULL,
			external_id     VARCHAR(100) NOT NULL,
			title           VARCHAR(255) NOT NULL,
			url             TEXT         NOT NULL,
			price           INTEGER      NOT NULL,
			currency        VARCHAR(10)  NOT NULL DEFAULT 'RUB',
			region          VARCHAR(120) NOT NULL DEFAULT '',
			seller_type     VARCHAR(50)  NOT NULL DEFAULT '',
			posted_date     DATE,
			fetched_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			is_active       BOOLEAN      NOT NULL DEFAULT TRUE,
			last_seen_at    TIMESTAMPTZ,
			CONSTRAINT uniq_listing_source_external_id UNIQUE (source, external_id)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_model_source ON listings(camera_model_id, source);
		CREATE INDEX IF NOT EXISTS idx_listings_active       ON listings(is_active);

		CREATE TABLE IF NOT EXISTS price_snapshots (
			id         SERIAL PRIMARY KEY,
			listing_id INTEGER     NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			price      INTEGER     NOT NULL,
			currency   VARCHAR(10) NOT NULL DEFAULT 'RUB',
			checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_listing ON price_snapshots(listing_id);
	`)
	return err
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// UpsertListing writes one sighting keyed on (source, external_id).
// The uniqueness constraint is enforced atomically by the database, not
// by the caller.
func (p *Postgres) UpsertListing(l *models.Listing) (UpsertResult, error) {
	var res UpsertResult

	// Previous price is read first so callers can decide whether a
	// sighting warrants a new price snapshot. Each model+source
	// partition has a single writer, so this is not racy in practice.
	var prev sql.NullInt64
	err := p.db.QueryRow(`
		SELECT price FROM listings WHERE source = $1 AND external_id = $2
	`, l.Source, l.ExternalID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return res, fmt.Errorf("postgres: select previous price: %w", err)
	}
	res.Created = err == sql.ErrNoRows
	if prev.Valid {
		res.PreviousPrice = int(prev.Int64)
	}

	err = p.db.QueryRow(`
		INSERT INTO listings
			(camera_model_id, source, external_id, title, url, price, currency,
			 region, seller_type, posted_date, is_active, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
		ON CONFLICT (source, external_id) DO UPDATE SET
			camera_model_id = EXCLUDED.camera_model_id,
			title           = EXCLUDED.title,
			url             = EXCLUDED.url,
			price           = EXCLUDED.price,
			region          = EXCLUDED.region,
			is_active       = TRUE,
			last_seen_at    = EXCLUDED.last_seen_at
		RETURNING id
	`, l.CameraModelID, l.Source, l.ExternalID, l.Title, l.URL, l.Price,
		l.Currency, l.Region, l.SellerType, l.PostedDate, l.LastSeenAt,
	).Scan(&res.ID)
	if err != nil {
		return res, fmt.Errorf("postgres: upsert listing: %w", err)
	}

	return res, nil
}

const listingColumns = `
	id, camera_model_id, source, external_id, title, url, price, currency,
	region, seller_type, posted_date, fetched_at, is_active, last_seen_at`

func (p *Postgres) queryListings(query string, args ...any) ([]*models.Listing, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(
			&l.ID, &l.CameraModelID, &l.Source, &l.ExternalID, &l.Title,
			&l.URL, &l.Price, &l.Currency, &l.Region, &l.SellerType,
			&l.PostedDate, &l.FetchedAt, &l.IsActive, &l.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (p *Postgres) ListingsByModelSource(cameraModelID int64, source string) ([]*models.Listing, error) {
	return p.queryListings(`
		SELECT `+listingColumns+`
		FROM listings
		WHERE camera_model_id = $1 AND source = $2
		ORDER BY id
	`, cameraModelID, source)
}

func (p *Postgres) ActiveListings(cameraModelID int64, source string) ([]*models.Listing, error) {
	return p.queryListings(`
		SELECT `+listingColumns+`
		FROM listings
		WHERE camera_model_id = $1 AND source = $2 AND is_active
		ORDER BY id
	`, cameraModelID, source)
}

func (p *Postgres) InactiveListings(cameraModelID int64, source string) ([]*models.Listing, error) {
	return p.queryListings(`
		SELECT `+listingColumns+`
		FROM listings
		WHERE camera_model_id = $1 AND source = $2 AND NOT is_active
		ORDER BY id
	`, cameraModelID, source)
}

func (p *Postgres) DeactivateListings(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.Exec(`
		UPDATE listings SET is_active = FALSE WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("postgres: deactivate listings: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteListings(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := p.db.Exec(`
		DELETE FROM listings WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("postgres: delete listings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: delete listings: %w", err)
	}
	return n, nil
}

func (p *Postgres) AddPriceSnapshot(listingID int64, price int, currency string, checkedAt time.Time) error {
	_, err := p.db.Exec(`
		INSERT INTO price_snapshots (listing_id, price, currency, checked_at)
		VALUES ($1, $2, $3, $4)
	`, listingID, price, currency, checkedAt)
	if err != nil {
		return fmt.Errorf("postgres: add price snapshot: %w", err)
	}
	return nil
}

// PricePoints projects the observed price history of a model's active,
// positive-priced listings, ordered by observation time.
func (p *Postgres) PricePoints(cameraModelID int64, source string) ([]models.PricePoint, error) {
	rows, err := p.db.Query(`
		SELECT s.price, l.region, s.checked_at
		FROM price_snapshots s
		JOIN listings l ON l.id = s.listing_id
		WHERE l.camera_model_id = $1 AND l.source = $2
		  AND l.is_active AND s.price > 0
		ORDER BY s.checked_at
	`, cameraModelID, source)
	if err != nil {
		return nil, fmt.Errorf("postgres: price points: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var pt models.PricePoint
		if err := rows.Scan(&pt.Price, &pt.Region, &pt.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

func (p *Postgres) CameraModels() ([]*models.CameraModel, error) {
	rows, err := p.db.Query(`
		SELECT id, brand, name, release_year, mount, sensor_type, search_url
		FROM camera_models
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: camera models: %w", err)
	}
	defer rows.Close()

	var out []*models.CameraModel
	for rows.Next() {
		m := &models.CameraModel{}
		if err := rows.Scan(&m.ID, &m.Brand, &m.Name, &m.ReleaseYear,
			&m.Mount, &m.SensorType, &m.SearchURL); err != nil {
			return nil, fmt.Errorf("postgres: scan camera model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CameraModelByID(id int64) (*models.CameraModel, error) {
	m := &models.CameraModel{}
	err := p.db.QueryRow(`
		SELECT id, brand, name, release_year, mount, sensor_type, search_url
		FROM camera_models WHERE id = $1
	`, id).Scan(&m.ID, &m.Brand, &m.Name, &m.ReleaseYear,
		&m.Mount, &m.SensorType, &m.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: camera model %d: %w", id, err)
	}
	return m, nil
}

func (p *Postgres) AddCameraModel(m *models.CameraModel) (int64, error) {
	var id int64
	err := p.db.QueryRow(`
		INSERT INTO camera_models (brand, name, release_year, mount, sensor_type, search_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.Brand, m.Name, m.ReleaseYear, m.Mount, m.SensorType, m.SearchURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: add camera model: %w", err)
	}
	return id, nil
}
