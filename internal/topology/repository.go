package topology

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/database"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Repository is the persistence gateway for the hierarchy and its telemetry.
//
// Every method is independently atomic at row level; no transaction spans
// several calls.
type Repository interface {
	// Exists reports whether a node of the given kind carries uniqueID.
	Exists(ctx context.Context, kind Kind, uniqueID string) (bool, error)

	// Insert writes a node. It returns false without error when storage
	// rejected the row as a duplicate, which callers treat as success.
	Insert(ctx context.Context, node Node) (bool, error)

	// LookupID returns the numeric id storage assigned to a node.
	// Returns ErrNotFound if no row carries uniqueID.
	LookupID(ctx context.Context, kind Kind, uniqueID string) (int64, error)

	// InsertTelemetry appends a reading to the data table of a device kind.
	InsertTelemetry(ctx context.Context, kind DeviceKind, rec TelemetryRecord) error
}

// table describes the storage layout of one kind.
type table struct {
	name     string
	idColumn string
	keyCol   string
}

var tables = map[Kind]table{
	KindGreenhouse:       {name: "greenhouse", idColumn: "greenhouse_id", keyCol: "greenhouse_unique_id"},
	KindGreenhouseDevice: {name: "greenhouse_device", idColumn: "greenhouse_device_id", keyCol: "greenhouse_device_unique_id"},
	KindBay:              {name: "bay", idColumn: "bay_id", keyCol: "bay_unique_id"},
	KindBayDevice:        {name: "bay_device", idColumn: "bay_device_id", keyCol: "bay_device_unique_id"},
	KindBayLine:          {name: "bay_line", idColumn: "bay_line_id", keyCol: "bay_line_unique_id"},
	KindBayLineDevice:    {name: "bay_line_device", idColumn: "bay_line_device_id", keyCol: "bay_line_device_unique_id"},
	KindBayRack:          {name: "bay_rack", idColumn: "bay_rack_id", keyCol: "bay_rack_unique_id"},
}

var telemetryTables = map[DeviceKind]string{
	DeviceKindGreenhouse: "greenhouse_device_data",
	DeviceKindBay:        "bay_device_data",
	DeviceKindBayLine:    "bay_line_device_data",
}

// SQLRepository implements Repository on SQLite or PostgreSQL.
//
// Uniqueness is enforced by the schema; inserts use the dialect's
// insert-or-ignore form so concurrent registrations of the same node
// cannot both write a row.
type SQLRepository struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	timeout time.Duration
	now     func() time.Time
}

// NewSQLRepository creates a repository on an open database.
// Each storage call is bounded by timeout.
func NewSQLRepository(db *database.DB, timeout time.Duration) *SQLRepository {
	return &SQLRepository{
		db:      db.DB,
		dialect: db.Dialect(),
		timeout: timeout,
		now:     time.Now,
	}
}

// Exists reports whether a node of the given kind carries uniqueID.
func (r *SQLRepository) Exists(ctx context.Context, kind Kind, uniqueID string) (bool, error) {
	t, ok := tables[kind]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}

	query, args, err := r.dialect.From(t.name).
		Select(goqu.COUNT("*")).
		Where(goqu.C(t.keyCol).Eq(uniqueID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("building %s existence query: %w", kind, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, r.storageError(ctx, fmt.Sprintf("checking %s existence", kind), err)
	}
	return count > 0, nil
}

// Insert writes a node, ignoring a duplicate unique id.
func (r *SQLRepository) Insert(ctx context.Context, node Node) (bool, error) {
	t, ok := tables[node.Kind()]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownKind, node.Kind())
	}

	record, err := r.record(node)
	if err != nil {
		return false, err
	}

	query, args, err := r.dialect.Insert(t.name).
		Rows(record).
		OnConflict(goqu.DoNothing()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("building %s insert: %w", node.Kind(), err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, r.storageError(ctx, fmt.Sprintf("inserting %s", node.Kind()), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting %s: %w", node.Kind(), err)
	}
	return affected > 0, nil
}

// LookupID returns the numeric id storage assigned to a node.
func (r *SQLRepository) LookupID(ctx context.Context, kind Kind, uniqueID string) (int64, error) {
	t, ok := tables[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}

	query, args, err := r.dialect.From(t.name).
		Select(t.idColumn).
		Where(goqu.C(t.keyCol).Eq(uniqueID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building %s id query: %w", kind, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s %s", ErrNotFound, kind, uniqueID)
		}
		return 0, r.storageError(ctx, fmt.Sprintf("looking up %s id", kind), err)
	}
	return id, nil
}

// InsertTelemetry appends a reading to the data table of a device kind.
func (r *SQLRepository) InsertTelemetry(ctx context.Context, kind DeviceKind, rec TelemetryRecord) error {
	name, ok := telemetryTables[kind]
	if !ok {
		return fmt.Errorf("%w: device kind %d", ErrUnknownKind, kind.Code())
	}

	query, args, err := r.dialect.Insert(name).
		Rows(goqu.Record{
			"device_unique_id": rec.DeviceUniqueID,
			"received_time":    rec.ReceivedTime.UTC(),
			"data":             rec.Value,
			"data_unit":        rec.Unit,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building %s insert: %w", name, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return r.storageError(ctx, "inserting into "+name, err)
	}
	return nil
}

// record maps a node onto its table columns.
func (r *SQLRepository) record(node Node) (goqu.Record, error) {
	switch n := node.(type) {
	case Greenhouse:
		now := r.now().UTC()
		return goqu.Record{
			"greenhouse_unique_id": n.UniqueID,
			"greenhouse_name":      n.Name,
			"owner_user_id":        nullableID(n.OwnerUserID),
			"location_id":          nullableID(n.LocationID),
			"created_date_time":    now,
			"last_updated_date":    now,
		}, nil
	case GreenhouseDevice:
		return deviceRecord("greenhouse_device", n.UniqueID, n.Name, n.DeviceAttributes, "greenhouse_id", n.GreenhouseID), nil
	case Bay:
		return goqu.Record{"bay_unique_id": n.UniqueID, "greenhouse_id": nullableID(n.GreenhouseID)}, nil
	case BayDevice:
		return deviceRecord("bay_device", n.UniqueID, n.Name, n.DeviceAttributes, "bay_id", n.BayID), nil
	case BayLine:
		return goqu.Record{"bay_line_unique_id": n.UniqueID, "bay_id": nullableID(n.BayID)}, nil
	case BayLineDevice:
		return deviceRecord("bay_line_device", n.UniqueID, n.Name, n.DeviceAttributes, "bay_line_id", n.BayLineID), nil
	case BayRack:
		return goqu.Record{"bay_rack_unique_id": n.UniqueID, "bay_id": nullableID(n.BayID)}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, node)
	}
}

// deviceRecord builds the columns shared by the three device tables.
func deviceRecord(prefix, uniqueID, name string, attrs DeviceAttributes, parentCol string, parentID int64) goqu.Record {
	return goqu.Record{
		prefix + "_unique_id": uniqueID,
		prefix + "_name":      name,
		"device_type":         attrs.DeviceType,
		"io_type":             attrs.IOType,
		"default_unit":        attrs.DefaultUnit,
		"status":              attrs.Status,
		parentCol:             nullableID(parentID),
	}
}

// nullableID stores an unset parent reference as NULL.
func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

// withTimeout bounds a single storage call.
func (r *SQLRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// storageError wraps a driver error, marking deadline expiry as ErrStorageTimeout.
func (r *SQLRepository) storageError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraintError checks for a unique violation from either driver.
// Inserts use ON CONFLICT DO NOTHING, so this only fires on drivers or
// schemas that ignore the conflict clause.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}

	return false
}
