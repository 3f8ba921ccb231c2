package business

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/drilonhametaj25/client-sniper/internal/db"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgresStore wraps an existing pool. The caller owns the pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgres opens a connection pool and returns a store that closes it.
func NewPostgres(ctx context.Context, connString string, poolCfg PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg.MaxConns > 0 {
		pgxCfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		pgxCfg.MinConns = poolCfg.MinConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	business_name TEXT NOT NULL,
	city          TEXT NOT NULL,
	website_url   TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	sources       JSONB NOT NULL DEFAULT '[]',
	content_hash  TEXT NOT NULL,
	unique_key    TEXT NOT NULL,
	score         INTEGER NOT NULL DEFAULT 0 CHECK (score BETWEEN 0 AND 100),
	analysis      JSONB NOT NULL DEFAULT '{}',
	needed_roles  JSONB NOT NULL DEFAULT '[]',
	issues        JSONB NOT NULL DEFAULT '[]',
	name_norm     TEXT NOT NULL DEFAULT '',
	city_norm     TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	phone_norm    TEXT NOT NULL DEFAULT '',
	address_norm  TEXT NOT NULL DEFAULT '',
	version       BIGINT NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT entities_unique_key UNIQUE (unique_key),
	CONSTRAINT entities_last_seen CHECK (last_seen_at >= created_at)
);

CREATE INDEX IF NOT EXISTS idx_entities_city_norm ON entities(city_norm);
CREATE INDEX IF NOT EXISTS idx_entities_domain ON entities(domain) WHERE domain <> '';
CREATE INDEX IF NOT EXISTS idx_entities_phone_norm ON entities(phone_norm) WHERE phone_norm <> '';
CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at, id);
`

const entityColumns = `id, business_name, city, website_url, phone, address,
	sources, content_hash, unique_key, score, analysis, needed_roles, issues,
	version, created_at, last_seen_at, updated_at`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate creates the entities table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// FindByNameCity returns entities in city whose normalized name contains or
// is contained in name. Exact matches sort first.
func (s *PostgresStore) FindByNameCity(ctx context.Context, name, city string, limit int) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE city_norm = $2 AND name_norm <> ''
		AND (strpos(name_norm, $1) > 0 OR strpos($1, name_norm) > 0)
		ORDER BY (name_norm = $1) DESC, created_at, id LIMIT $3`,
		name, city, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by name+city")
	}
	return collectEntities(rows)
}

// FindByDomain returns entities whose domain contains or is contained in
// domain. Exact matches sort first.
func (s *PostgresStore) FindByDomain(ctx context.Context, domain string, limit int) ([]Entity, error) {
	return s.findContaining(ctx, "domain", domain, limit)
}

// FindByPhone returns entities whose normalized phone contains or is
// contained in phone.
func (s *PostgresStore) FindByPhone(ctx context.Context, phone string, limit int) ([]Entity, error) {
	return s.findContaining(ctx, "phone_norm", phone, limit)
}

// FindByAddress returns entities whose normalized address contains or is
// contained in address.
func (s *PostgresStore) FindByAddress(ctx context.Context, address string, limit int) ([]Entity, error) {
	return s.findContaining(ctx, "address_norm", address, limit)
}

// findContaining runs a two-way containment lookup on column, exact matches
// first. column is always one of the fixed search columns.
func (s *PostgresStore) findContaining(ctx context.Context, column, value string, limit int) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE `+column+` <> ''
		AND (strpos(`+column+`, $1) > 0 OR strpos($1, `+column+`) > 0)
		ORDER BY (`+column+` = $1) DESC, created_at, id LIMIT $2`,
		value, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find by %s", column)
	}
	return collectEntities(rows)
}

// GetEntity fetches an entity by ID.
func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return e, nil
}

// GetByUniqueKey fetches an entity by its unique key.
func (s *PostgresStore) GetByUniqueKey(ctx context.Context, key string) (*Entity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE unique_key = $1`, key)
	e, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity by key %q", key)
	}
	return e, nil
}

// CreateEntity inserts e as version 1.
func (s *PostgresStore) CreateEntity(ctx context.Context, e *Entity) error {
	enc, err := encodeEntity(e)
	if err != nil {
		return err
	}
	sc := searchColumnsOf(e)
	_, err = s.pool.Exec(ctx, `INSERT INTO entities (
			id, business_name, city, website_url, phone, address,
			sources, content_hash, unique_key, score, analysis, needed_roles, issues,
			name_norm, city_norm, domain, phone_norm, address_norm,
			version, created_at, last_seen_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			1, $19, $20, $21
		)`,
		e.ID, e.BusinessName, e.City, e.WebsiteURL, e.Phone, e.Address,
		enc.sources, e.ContentHash, e.UniqueKey, e.Score, enc.analysis, enc.neededRoles, enc.issues,
		sc.name, sc.city, sc.domain, sc.phone, sc.address,
		e.CreatedAt, e.LastSeenAt, e.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrDuplicateKey, "postgres: create %q", e.UniqueKey)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: create entity %s", e.ID)
	}
	e.Version = 1
	return nil
}

// UpdateEntity writes e if its stored version equals expectedVersion.
func (s *PostgresStore) UpdateEntity(ctx context.Context, e *Entity, expectedVersion int64) error {
	enc, err := encodeEntity(e)
	if err != nil {
		return err
	}
	sc := searchColumnsOf(e)
	tag, err := s.pool.Exec(ctx, `UPDATE entities SET
			business_name=$2, website_url=$3, phone=$4, address=$5,
			sources=$6, content_hash=$7, score=$8, analysis=$9, needed_roles=$10, issues=$11,
			name_norm=$12, domain=$13, phone_norm=$14, address_norm=$15,
			last_seen_at=$16, updated_at=$17,
			version = version + 1
		WHERE id=$1 AND version=$18`,
		e.ID,
		e.BusinessName, e.WebsiteURL, e.Phone, e.Address,
		enc.sources, e.ContentHash, e.Score, enc.analysis, enc.neededRoles, enc.issues,
		sc.name, sc.domain, sc.phone, sc.address,
		e.LastSeenAt, e.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleEntity, "postgres: update entity %s at version %d", e.ID, expectedVersion)
	}
	e.Version = expectedVersion + 1
	return nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var enc encodedEntity
	err := row.Scan(
		&e.ID, &e.BusinessName, &e.City, &e.WebsiteURL, &e.Phone, &e.Address,
		&enc.sources, &e.ContentHash, &e.UniqueKey, &e.Score, &enc.analysis, &enc.neededRoles, &enc.issues,
		&e.Version, &e.CreatedAt, &e.LastSeenAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := enc.decodeInto(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntities(rows pgx.Rows) ([]Entity, error) {
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate entities")
}
