package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"

	"github.com/tableformat/snapshotmerge/manifest"
)

// Queryer is satisfied by *pgx.Conn, a *pgxpool.Pool, or a pgx.Tx, the same
// narrow seam a database/sql-backed store would expose over its connection.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Postgres is a TableOperations backed by a fixed schema of four tables:
// table_properties, partition_spec_fields, snapshots and
// snapshot_manifests. It is a reference
// collaborator for integration tests exercising CommitRetry against a real
// database; the commit protocol itself stays an external collaborator
// (see pgCommitter in postgres_integration_test.go), not something this
// type implements.
type Postgres struct {
	db      Queryer
	tableID int64
}

// NewPostgres binds a Postgres-backed TableOperations to one table row.
func NewPostgres(db Queryer, tableID int64) *Postgres {
	return &Postgres{db: db, tableID: tableID}
}

// Current loads the table's properties, partition specs and current
// snapshot pointer in one round trip per table.
func (p *Postgres) Current(ctx context.Context) (TableMetadata, error) {
	props, err := p.loadProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading table properties: %w", err)
	}

	specs, currentSpecID, err := p.loadSpecs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading partition specs: %w", err)
	}
	currentSpec, ok := specs[currentSpecID]
	if !ok {
		return nil, fmt.Errorf("table %d: current partition spec %d not found", p.tableID, currentSpecID)
	}

	snapshot, err := p.loadCurrentSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading current snapshot: %w", err)
	}

	return &memoryMetadata{
		spec:       currentSpec,
		specs:      specs,
		properties: props,
		snapshot:   snapshot,
	}, nil
}

func (p *Postgres) loadProperties(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.Query(ctx, `SELECT key, value FROM table_properties WHERE table_id = $1`, p.tableID)
	if err != nil {
		return nil, wrapPgError(err)
	}
	defer rows.Close()

	props := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		props[k] = v
	}
	return props, rows.Err()
}

func (p *Postgres) loadSpecs(ctx context.Context) (map[int32]*manifest.PartitionSpec, int32, error) {
	rows, err := p.db.Query(ctx, `
		SELECT spec_id, source_column, transform, field_name, is_current
		FROM partition_spec_fields
		WHERE table_id = $1
		ORDER BY spec_id, field_index`, p.tableID)
	if err != nil {
		return nil, 0, wrapPgError(err)
	}
	defer rows.Close()

	specs := map[int32]*manifest.PartitionSpec{}
	var currentSpecID int32
	for rows.Next() {
		var specID int32
		var sourceColumn, transform, fieldName string
		var isCurrent bool
		if err := rows.Scan(&specID, &sourceColumn, &transform, &fieldName, &isCurrent); err != nil {
			return nil, 0, err
		}
		spec, ok := specs[specID]
		if !ok {
			spec = &manifest.PartitionSpec{SpecID: specID}
			specs[specID] = spec
		}
		txform, err := parseTransform(transform)
		if err != nil {
			return nil, 0, fmt.Errorf("table %d spec %d: %w", p.tableID, specID, err)
		}
		spec.Fields = append(spec.Fields, manifest.Field{
			SourceColumn: sourceColumn,
			Transform:    txform,
			Name:         fieldName,
		})
		if isCurrent {
			currentSpecID = specID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return specs, currentSpecID, nil
}

func (p *Postgres) loadCurrentSnapshot(ctx context.Context) (*manifest.Snapshot, error) {
	var snapshotID, parentID, timestampMs int64
	row := p.db.QueryRow(ctx, `
		SELECT snapshot_id, parent_id, timestamp_ms
		FROM snapshots
		WHERE table_id = $1 AND is_current = true`, p.tableID)
	if err := row.Scan(&snapshotID, &parentID, &timestampMs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapPgError(err)
	}

	rows, err := p.db.Query(ctx, `
		SELECT path, length_bytes, partition_spec_id, digest
		FROM snapshot_manifests
		WHERE table_id = $1 AND snapshot_id = $2
		ORDER BY manifest_index`, p.tableID, snapshotID)
	if err != nil {
		return nil, wrapPgError(err)
	}
	defer rows.Close()

	var manifests []*manifest.File
	for rows.Next() {
		var path, dig string
		var length int64
		var specID int32
		if err := rows.Scan(&path, &length, &specID, &dig); err != nil {
			return nil, err
		}
		manifests = append(manifests, &manifest.File{Path: path, LengthBytes: length, PartitionSpecID: specID, Digest: dig})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &manifest.Snapshot{
		SnapshotID:  snapshotID,
		ParentID:    parentID,
		TimestampMs: timestampMs,
		Manifests:   manifests,
		Summary:     manifest.Summarize(manifests),
	}, nil
}

// parseTransform decodes a partition_spec_fields.transform column value
// back into a manifest.Transform. identity and bucket[N]/truncate[N] are
// the only encodings Transform.Name produces; anything else means the schema
// and this package have drifted, which must fail loudly rather than
// silently misroute every row through IdentityTransform.
func parseTransform(name string) (manifest.Transform, error) {
	if name == "identity" {
		return manifest.IdentityTransform{}, nil
	}
	if n, ok := parseBracketedArg(name, "bucket"); ok {
		return manifest.BucketTransform{N: n}, nil
	}
	if n, ok := parseBracketedArg(name, "truncate"); ok {
		return manifest.TruncateTransform{Width: n}, nil
	}
	return nil, fmt.Errorf("unrecognized partition transform %q", name)
}

// parseBracketedArg parses the "name[N]" encoding Transform.Name produces
// for bucket and truncate transforms.
func parseBracketedArg(s, name string) (int, bool) {
	prefix := name + "["
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, "]") {
		return 0, false
	}
	n, err := strconv.Atoi(s[len(prefix) : len(s)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// wrapPgError marks a Postgres unique-violation failure as a constraint
// violation, distinguishing it from transport failures; every other error
// is returned unchanged.
func wrapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("constraint violation: %w", err)
	}
	return err
}
