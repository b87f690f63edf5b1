package topology

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/database"
	_ "github.com/aigrow/aigrow-device-server/migrations" // embedded schema
)

// setupTestDB opens a migrated SQLite database in a temporary directory.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "aigrow.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestSQLRepository_InsertAndExists(t *testing.T) {
	repo := NewSQLRepository(setupTestDB(t), 5*time.Second)
	ctx := context.Background()

	nodes := []Node{
		Greenhouse{UniqueID: "G_001", Name: "North house", OwnerUserID: 3},
		GreenhouseDevice{UniqueID: "GD_001", GreenhouseID: 1, DeviceAttributes: DeviceAttributes{DeviceType: "co2Sensor"}},
		Bay{UniqueID: "B_001", GreenhouseID: 1},
		BayDevice{UniqueID: "BD_001", Name: "air temp", BayID: 1},
		BayLine{UniqueID: "BL_001", BayID: 1},
		BayLineDevice{UniqueID: "BLD_001", Name: "valve", BayLineID: 1},
		BayRack{UniqueID: "BR_001", BayID: 1},
	}

	for _, node := range nodes {
		t.Run(node.Kind().String(), func(t *testing.T) {
			exists, err := repo.Exists(ctx, node.Kind(), node.Key())
			require.NoError(t, err)
			assert.False(t, exists)

			inserted, err := repo.Insert(ctx, node)
			require.NoError(t, err)
			assert.True(t, inserted)

			exists, err = repo.Exists(ctx, node.Kind(), node.Key())
			require.NoError(t, err)
			assert.True(t, exists)

			// Second insert hits the unique constraint and is ignored.
			inserted, err = repo.Insert(ctx, node)
			require.NoError(t, err)
			assert.False(t, inserted)
		})
	}
}

func TestSQLRepository_ExistsIsPerKind(t *testing.T) {
	repo := NewSQLRepository(setupTestDB(t), 5*time.Second)
	ctx := context.Background()

	_, err := repo.Insert(ctx, BayDevice{UniqueID: "X_001"})
	require.NoError(t, err)

	exists, err := repo.Exists(ctx, KindBayLineDevice, "X_001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLRepository_LookupID(t *testing.T) {
	repo := NewSQLRepository(setupTestDB(t), 5*time.Second)
	ctx := context.Background()

	_, err := repo.Insert(ctx, Bay{UniqueID: "B_001"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, Bay{UniqueID: "B_002"})
	require.NoError(t, err)

	id, err := repo.LookupID(ctx, KindBay, "B_002")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, err = repo.LookupID(ctx, KindBay, "B_404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLRepository_InsertTelemetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRepository(db, 5*time.Second)
	ctx := context.Background()
	received := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)

	err := repo.InsertTelemetry(ctx, DeviceKindBay, TelemetryRecord{
		DeviceUniqueID: "BD_001",
		Value:          "23.5",
		Unit:           "C",
		ReceivedTime:   received,
	})
	require.NoError(t, err)

	var deviceID, value, unit string
	err = db.QueryRowContext(ctx,
		"SELECT device_unique_id, data, data_unit FROM bay_device_data",
	).Scan(&deviceID, &value, &unit)
	require.NoError(t, err)

	assert.Equal(t, "BD_001", deviceID)
	assert.Equal(t, "23.5", value)
	assert.Equal(t, "C", unit)

	var others int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM greenhouse_device_data) + (SELECT COUNT(*) FROM bay_line_device_data)",
	).Scan(&others))
	assert.Zero(t, others)
}

func TestSQLRepository_UnknownKind(t *testing.T) {
	repo := NewSQLRepository(setupTestDB(t), 5*time.Second)
	ctx := context.Background()

	_, err := repo.Exists(ctx, KindUnknown, "Z_1")
	assert.ErrorIs(t, err, ErrUnknownKind)

	err = repo.InsertTelemetry(ctx, Unresolved, TelemetryRecord{DeviceUniqueID: "Z_1"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

// newMockRepository returns a postgres-dialect repository on sqlmock.
func newMockRepository(t *testing.T, timeout time.Duration) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck // test cleanup

	return NewSQLRepository(database.Wrap(sqlDB, database.DriverPostgres), timeout), mock
}

func TestSQLRepository_Postgres(t *testing.T) {
	t.Run("insert ignores conflicts", func(t *testing.T) {
		repo, mock := newMockRepository(t, time.Second)

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "bay_rack" ("bay_id", "bay_rack_unique_id") VALUES ($1, $2) ON CONFLICT DO NOTHING`)).
			WithArgs(int64(4), "BR_002").
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := repo.Insert(context.Background(), BayRack{UniqueID: "BR_002", BayID: 4})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exists counts by unique id", func(t *testing.T) {
		repo, mock := newMockRepository(t, time.Second)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "bay_line" WHERE ("bay_line_unique_id" = $1)`)).
			WithArgs("BL_001").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := repo.Exists(context.Background(), KindBayLine, "BL_001")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a duplicate", func(t *testing.T) {
		repo, mock := newMockRepository(t, time.Second)

		mock.ExpectExec(`INSERT INTO "bay"`).
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

		inserted, err := repo.Insert(context.Background(), Bay{UniqueID: "B_001"})
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("other driver errors surface", func(t *testing.T) {
		repo, mock := newMockRepository(t, time.Second)

		mock.ExpectExec(`INSERT INTO "bay"`).
			WillReturnError(&pq.Error{Code: "42P01", Message: "relation does not exist"})

		_, err := repo.Insert(context.Background(), Bay{UniqueID: "B_001"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStorageTimeout)
	})

	t.Run("slow query times out", func(t *testing.T) {
		repo, mock := newMockRepository(t, 20*time.Millisecond)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "bay"`).
			WillDelayFor(time.Second).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := repo.Exists(context.Background(), KindBay, "B_001")
		assert.ErrorIs(t, err, ErrStorageTimeout)
	})

	t.Run("telemetry row", func(t *testing.T) {
		repo, mock := newMockRepository(t, time.Second)
		received := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "bay_line_device_data" ("data", "data_unit", "device_unique_id", "received_time") VALUES ($1, $2, $3, $4)`)).
			WithArgs("41", "%", "BLD_001", received).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.InsertTelemetry(context.Background(), DeviceKindBayLine, TelemetryRecord{
			DeviceUniqueID: "BLD_001",
			Value:          "41",
			Unit:           "%",
			ReceivedTime:   received,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
