// Package sqlite persists enrichment records. The insert path is an
// atomic insert-if-absent keyed by source URL, which is what makes
// re-runs and concurrent workers idempotent.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/patrasense/article-enricher/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const timeLayout = time.RFC3339
const dateLayout = "2006-01-02"

// Store is the SQLite-backed record set of enriched articles.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies pending
// migrations. A failure here is a startup failure.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertIfAbsent writes a record unless one already exists for its source
// URL. It returns false when the URL was already present. The main row
// and its sensor/date child rows are written in one transaction, so a
// concurrent insert of the same URL either wins entirely or not at all.
func (s *Store) InsertIfAbsent(ctx context.Context, rec domain.EnrichedArticle) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO enriched_articles (
			source_url, title, description, published_at, scraped_at,
			relevancy, primary_tag, secondary_tag, location_text,
			lat, lon, area, enriched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_url) DO NOTHING
	`,
		rec.SourceURL, rec.Title, rec.Description,
		rec.PublishedAt.UTC().Format(timeLayout),
		rec.ScrapedAt.UTC().Format(timeLayout),
		string(rec.Relevancy),
		tagOrNull(rec.PrimaryTag), subTagOrNull(rec.SecondaryTag),
		stringOrNull(rec.LocationText),
		latOrNull(rec.Geo), lonOrNull(rec.Geo),
		stringOrNull(rec.Area),
		rec.EnrichedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert enriched article: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, id := range rec.SensorIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO article_sensors (source_url, sensor_id) VALUES (?, ?)`,
			rec.SourceURL, id,
		); err != nil {
			return false, fmt.Errorf("insert sensor assignment: %w", err)
		}
	}
	for _, d := range rec.EventDates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO article_event_dates (source_url, event_date) VALUES (?, ?)`,
			rec.SourceURL, d.UTC().Format(dateLayout),
		); err != nil {
			return false, fmt.Errorf("insert event date: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// Exists reports whether a record exists for the source URL.
func (s *Store) Exists(ctx context.Context, sourceURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM enriched_articles WHERE source_url = ?`, sourceURL,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check existing article: %w", err)
	}
	return true, nil
}

// Filter narrows read queries. Zero values mean "no constraint".
type Filter struct {
	Area         string
	SensorID     string
	PrimaryTag   string
	SecondaryTag string
	From         time.Time // inclusive, matched against event dates
	To           time.Time // inclusive
	Limit        int
}

const defaultListLimit = 500

// List returns records matching the filter, newest enrichment first.
func (s *Store) List(ctx context.Context, f Filter) ([]domain.EnrichedArticle, error) {
	var conds []string
	var args []any

	if f.Area != "" {
		conds = append(conds, "a.area = ?")
		args = append(args, f.Area)
	}
	if f.SensorID != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM article_sensors s WHERE s.source_url = a.source_url AND s.sensor_id = ?)")
		args = append(args, f.SensorID)
	}
	if f.PrimaryTag != "" {
		conds = append(conds, "a.primary_tag = ?")
		args = append(args, f.PrimaryTag)
	}
	if f.SecondaryTag != "" {
		conds = append(conds, "a.secondary_tag = ?")
		args = append(args, f.SecondaryTag)
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		from, to := "0001-01-01", "9999-12-31"
		if !f.From.IsZero() {
			from = f.From.UTC().Format(dateLayout)
		}
		if !f.To.IsZero() {
			to = f.To.UTC().Format(dateLayout)
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM article_event_dates d WHERE d.source_url = a.source_url AND d.event_date >= ? AND d.event_date <= ?)")
		args = append(args, from, to)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT a.source_url, a.title, a.description, a.published_at, a.scraped_at,
		       a.relevancy, a.primary_tag, a.secondary_tag, a.location_text,
		       a.lat, a.lon, a.area, a.enriched_at,
		       (SELECT group_concat(s.sensor_id) FROM
		          (SELECT sensor_id FROM article_sensors WHERE source_url = a.source_url ORDER BY sensor_id) s),
		       (SELECT group_concat(d.event_date) FROM
		          (SELECT event_date FROM article_event_dates WHERE source_url = a.source_url ORDER BY event_date) d)
		FROM enriched_articles a
		%s
		ORDER BY a.enriched_at DESC, a.source_url
		LIMIT ?
	`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enriched articles: %w", err)
	}
	defer rows.Close()

	var out []domain.EnrichedArticle
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enriched articles: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (domain.EnrichedArticle, error) {
	var (
		rec                      domain.EnrichedArticle
		publishedAt, scrapedAt   string
		enrichedAt               string
		relevancy                string
		primaryTag, secondaryTag sql.NullString
		locationText, area       sql.NullString
		lat, lon                 sql.NullFloat64
		sensorIDs, eventDates    sql.NullString
	)

	err := rows.Scan(
		&rec.SourceURL, &rec.Title, &rec.Description, &publishedAt, &scrapedAt,
		&relevancy, &primaryTag, &secondaryTag, &locationText,
		&lat, &lon, &area, &enrichedAt,
		&sensorIDs, &eventDates,
	)
	if err != nil {
		return domain.EnrichedArticle{}, fmt.Errorf("scan enriched article: %w", err)
	}

	rec.Relevancy = domain.Relevancy(relevancy)
	rec.PublishedAt, _ = time.Parse(timeLayout, publishedAt)
	rec.ScrapedAt, _ = time.Parse(timeLayout, scrapedAt)
	rec.EnrichedAt, _ = time.Parse(timeLayout, enrichedAt)

	if primaryTag.Valid {
		tag := domain.PrimaryTag(primaryTag.String)
		rec.PrimaryTag = &tag
	}
	if secondaryTag.Valid {
		tag := domain.SecondaryTag(secondaryTag.String)
		rec.SecondaryTag = &tag
	}
	if locationText.Valid {
		rec.LocationText = &locationText.String
	}
	if area.Valid {
		rec.Area = &area.String
	}
	if lat.Valid && lon.Valid {
		rec.Geo = &domain.Geo{Lat: lat.Float64, Lon: lon.Float64}
	}
	if sensorIDs.Valid && sensorIDs.String != "" {
		rec.SensorIDs = strings.Split(sensorIDs.String, ",")
	}
	if eventDates.Valid && eventDates.String != "" {
		for _, d := range strings.Split(eventDates.String, ",") {
			parsed, err := time.ParseInLocation(dateLayout, d, time.UTC)
			if err != nil {
				continue
			}
			rec.EventDates = append(rec.EventDates, parsed)
		}
	}

	return rec, nil
}

func stringOrNull(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func tagOrNull(t *domain.PrimaryTag) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func subTagOrNull(t *domain.SecondaryTag) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func latOrNull(g *domain.Geo) any {
	if g == nil {
		return nil
	}
	return g.Lat
}

func lonOrNull(g *domain.Geo) any {
	if g == nil {
		return nil
	}
	return g.Lon
}
