package business

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied to every pooled connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at path in WAL mode.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		dsn += sep + "_pragma=" + p
		sep = "&"
	}
	dsn += "&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	business_name TEXT NOT NULL,
	city          TEXT NOT NULL,
	website_url   TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	sources       TEXT NOT NULL DEFAULT '[]',
	content_hash  TEXT NOT NULL,
	unique_key    TEXT NOT NULL UNIQUE,
	score         INTEGER NOT NULL DEFAULT 0 CHECK (score BETWEEN 0 AND 100),
	analysis      TEXT NOT NULL DEFAULT '{}',
	needed_roles  TEXT NOT NULL DEFAULT '[]',
	issues        TEXT NOT NULL DEFAULT '[]',
	name_norm     TEXT NOT NULL DEFAULT '',
	city_norm     TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	phone_norm    TEXT NOT NULL DEFAULT '',
	address_norm  TEXT NOT NULL DEFAULT '',
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL,
	last_seen_at  DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_city_norm ON entities(city_norm);
CREATE INDEX IF NOT EXISTS idx_entities_domain ON entities(domain);
CREATE INDEX IF NOT EXISTS idx_entities_phone_norm ON entities(phone_norm);
CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at, id);
`

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the entities table and its indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByNameCity returns entities in city whose normalized name contains or
// is contained in name. Exact matches sort first.
func (s *SQLiteStore) FindByNameCity(ctx context.Context, name, city string, limit int) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE city_norm = ? AND name_norm <> ''
		AND (instr(name_norm, ?) > 0 OR instr(?, name_norm) > 0)
		ORDER BY (name_norm = ?) DESC, created_at, id LIMIT ?`,
		city, name, name, name, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by name+city")
	}
	return collectSQLiteEntities(rows)
}

// FindByDomain returns entities whose domain contains or is contained in
// domain. Exact matches sort first.
func (s *SQLiteStore) FindByDomain(ctx context.Context, domain string, limit int) ([]Entity, error) {
	return s.findContaining(ctx, "domain", domain, limit)
}

// FindByPhone returns entities whose normalized phone contains or is
// contained in phone.
func (s *SQLiteStore) FindByPhone(ctx context.Context, phone string, limit int) ([]Entity, error) {
	return s.findContaining(ctx, "phone_norm", phone, limit)
}

// FindByAddress returns entities whose normalized address contains or is
// contained in address.
func (s *SQLiteStore) FindByAddress(ctx context.Context, address string, limit int) ([]Entity, error) {
	return s.findContaining(ctx, "address_norm", address, limit)
}

func (s *SQLiteStore) findContaining(ctx context.Context, column, value string, limit int) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE `+column+` <> ''
		AND (instr(`+column+`, ?) > 0 OR instr(?, `+column+`) > 0)
		ORDER BY (`+column+` = ?) DESC, created_at, id LIMIT ?`,
		value, value, value, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find by %s", column)
	}
	return collectSQLiteEntities(rows)
}

// GetEntity fetches an entity by ID.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return e, nil
}

// GetByUniqueKey fetches an entity by its unique key.
func (s *SQLiteStore) GetByUniqueKey(ctx context.Context, key string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE unique_key = ?`, key)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity by key %q", key)
	}
	return e, nil
}

// CreateEntity inserts e as version 1.
func (s *SQLiteStore) CreateEntity(ctx context.Context, e *Entity) error {
	enc, err := encodeEntity(e)
	if err != nil {
		return err
	}
	sc := searchColumnsOf(e)
	_, err = s.db.ExecContext(ctx, `INSERT INTO entities (
			id, business_name, city, website_url, phone, address,
			sources, content_hash, unique_key, score, analysis, needed_roles, issues,
			name_norm, city_norm, domain, phone_norm, address_norm,
			version, created_at, last_seen_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		e.ID, e.BusinessName, e.City, e.WebsiteURL, e.Phone, e.Address,
		string(enc.sources), e.ContentHash, e.UniqueKey, e.Score, string(enc.analysis),
		string(enc.neededRoles), string(enc.issues),
		sc.name, sc.city, sc.domain, sc.phone, sc.address,
		e.CreatedAt, e.LastSeenAt, e.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrDuplicateKey, "sqlite: create %q", e.UniqueKey)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: create entity %s", e.ID)
	}
	e.Version = 1
	return nil
}

// UpdateEntity writes e if its stored version equals expectedVersion.
func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *Entity, expectedVersion int64) error {
	enc, err := encodeEntity(e)
	if err != nil {
		return err
	}
	sc := searchColumnsOf(e)
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET
			business_name = ?, website_url = ?, phone = ?, address = ?,
			sources = ?, content_hash = ?, score = ?, analysis = ?, needed_roles = ?, issues = ?,
			name_norm = ?, domain = ?, phone_norm = ?, address_norm = ?,
			last_seen_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		e.BusinessName, e.WebsiteURL, e.Phone, e.Address,
		string(enc.sources), e.ContentHash, e.Score, string(enc.analysis),
		string(enc.neededRoles), string(enc.issues),
		sc.name, sc.domain, sc.phone, sc.address,
		e.LastSeenAt, e.UpdatedAt,
		e.ID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	if n == 0 {
		return eris.Wrapf(ErrStaleEntity, "sqlite: update entity %s at version %d", e.ID, expectedVersion)
	}
	e.Version = expectedVersion + 1
	return nil
}

func isSQLiteUnique(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: entities.unique_key")
}

func collectSQLiteEntities(rows *sql.Rows) ([]Entity, error) {
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate entities")
}
