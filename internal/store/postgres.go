package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/colmap/internal/core"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS saved_mappings (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL,
	version         TEXT NOT NULL,
	schema_file     TEXT NOT NULL DEFAULT '',
	data_file       TEXT NOT NULL DEFAULT '',
	pair_key        TEXT,
	fingerprint_key TEXT NOT NULL,
	schema_columns  JSONB NOT NULL,
	data_columns    JSONB NOT NULL,
	mappings        JSONB NOT NULL,
	created_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS saved_mappings_pair_key_idx ON saved_mappings (pair_key);
CREATE INDEX IF NOT EXISTS saved_mappings_fingerprint_key_idx ON saved_mappings (fingerprint_key);
`

const selectColumns = `id::text, name, version, schema_file, data_file,
	schema_columns, data_columns, mappings, created_by, created_at`

// Postgres stores saved mappings in a single table with JSONB columns.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres wraps an open pool. Call Migrate before first use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

var _ core.MappingStore = (*Postgres)(nil)

// Migrate creates the table and indexes if they do not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate saved_mappings: %w", err)
	}
	return nil
}

// Save implements core.MappingStore. Replacing mappings under the same keys
// and inserting the new row happen in one transaction.
func (s *Postgres) Save(ctx context.Context, m core.SavedMapping) (core.SavedMapping, error) {
	m = prepare(m, s.now())

	id, err := uuid.Parse(m.ID)
	if err != nil {
		return core.SavedMapping{}, fmt.Errorf("invalid mapping id %q: %w", m.ID, err)
	}
	createdAt, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		createdAt = s.now()
	}

	schemaCols, err := json.Marshal(nonNil(m.SchemaColumns))
	if err != nil {
		return core.SavedMapping{}, fmt.Errorf("marshal schema columns: %w", err)
	}
	dataCols, err := json.Marshal(nonNil(m.DataColumns))
	if err != nil {
		return core.SavedMapping{}, fmt.Errorf("marshal data columns: %w", err)
	}
	mappings, err := json.Marshal(m.Mappings)
	if err != nil {
		return core.SavedMapping{}, fmt.Errorf("marshal mappings: %w", err)
	}

	var pairKey *string
	if m.SchemaFile != "" || m.DataFile != "" {
		k := m.PairKey()
		pairKey = &k
	}
	fpKey := m.FingerprintKey()

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM saved_mappings WHERE id = $1 OR fingerprint_key = $2 OR ($3::text IS NOT NULL AND pair_key = $3)`,
			id, fpKey, pairKey,
		); err != nil {
			return fmt.Errorf("replace existing: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO saved_mappings (
				id, name, version, schema_file, data_file, pair_key, fingerprint_key,
				schema_columns, data_columns, mappings, created_by, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			id, m.Name, m.Version, m.SchemaFile, m.DataFile, pairKey, fpKey,
			schemaCols, dataCols, mappings, m.CreatedBy, createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.SavedMapping{}, fmt.Errorf("save mapping: %w", err)
	}

	m.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return m, nil
}

// FindCompatible implements core.MappingStore.
func (s *Postgres) FindCompatible(ctx context.Context, schemaFile, dataFile string, schemaCols, dataCols []string) (*core.SavedMapping, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM saved_mappings
		WHERE pair_key = $1 OR fingerprint_key = $2
		ORDER BY (pair_key = $1) DESC NULLS LAST, created_at DESC
		LIMIT 1`,
		core.PairKey(schemaFile, dataFile), core.FingerprintKey(schemaCols, dataCols),
	)
	return scanMapping(row)
}

// Get implements core.MappingStore.
func (s *Postgres) Get(ctx context.Context, id string) (*core.SavedMapping, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, core.ErrMappingNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM saved_mappings WHERE id = $1`, uid)
	return scanMapping(row)
}

// List implements core.MappingStore.
func (s *Postgres) List(ctx context.Context) ([]core.SavedMapping, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM saved_mappings ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out := []core.SavedMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}

// Delete implements core.MappingStore.
func (s *Postgres) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return core.ErrMappingNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_mappings WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrMappingNotFound
	}
	return nil
}

func scanMapping(row pgx.Row) (*core.SavedMapping, error) {
	var (
		m                              core.SavedMapping
		schemaCols, dataCols, mappings []byte
		createdAt                      time.Time
	)
	err := row.Scan(&m.ID, &m.Name, &m.Version, &m.SchemaFile, &m.DataFile,
		&schemaCols, &dataCols, &mappings, &m.CreatedBy, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan mapping: %w", err)
	}

	if err := json.Unmarshal(schemaCols, &m.SchemaColumns); err != nil {
		return nil, fmt.Errorf("decode schema columns: %w", err)
	}
	if err := json.Unmarshal(dataCols, &m.DataColumns); err != nil {
		return nil, fmt.Errorf("decode data columns: %w", err)
	}
	if err := json.Unmarshal(mappings, &m.Mappings); err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	m.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return &m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
