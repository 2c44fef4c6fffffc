package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/model"
)

var dbSeq atomic.Int64

// newSQLiteDB opens a private in-memory SQLite database with the schema applied.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&model.Location{}, &model.Occupancy{}))
	return gormDB
}

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func ptr[T any](v T) *T { return &v }

func library() contract.LocationInsert {
	return contract.LocationInsert{
		Name:        "Main Library",
		Description: ptr("Quiet study floors"),
		Type:        "library",
		Lat:         ptr(37.4221),
		Lng:         ptr(-122.0841),
		Floor:       ptr("2"),
	}
}

// storeFactories runs every behavioural test against each adapter.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"gorm":   func(t *testing.T) Store { return NewGormStore(newSQLiteDB(t)) },
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
	}
}

func TestStore_LocationRoundTrip(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			in := library()
			created, err := s.CreateLocation(ctx, in)
			require.NoError(t, err)
			assert.NotZero(t, created.ID)

			got, err := s.GetLocation(ctx, created.ID)
			require.NoError(t, err)

			want := in.Location()
			want.ID = created.ID
			assert.Equal(t, want, *got)
		})
	}
}

func TestStore_CreateLocationValidation(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			in := library()
			in.Name = ""
			in.Lat = nil

			_, err := s.CreateLocation(context.Background(), in)
			var verr *contract.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Message, "name is required")

			list, err := s.ListLocations(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list, "nothing is persisted on validation failure")
		})
	}
}

func TestStore_ListAndMissingLocation(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			list, err := s.ListLocations(ctx)
			require.NoError(t, err)
			assert.NotNil(t, list)
			assert.Empty(t, list)

			a, err := s.CreateLocation(ctx, library())
			require.NoError(t, err)
			cafe := library()
			cafe.Name = "Cafe"
			cafe.Type = "cafeteria"
			b, err := s.CreateLocation(ctx, cafe)
			require.NoError(t, err)

			list, err = s.ListLocations(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, []int64{a.ID, b.ID}, []int64{list[0].ID, list[1].ID})

			_, err = s.GetLocation(ctx, 9999)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_UpdateOccupancy(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			loc, err := s.CreateLocation(ctx, library())
			require.NoError(t, err)

			t.Run("absent until first write", func(t *testing.T) {
				_, err := s.GetOccupancy(ctx, loc.ID)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("first write without percentage fails and creates nothing", func(t *testing.T) {
				_, err := s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Level: ptr("high")})
				assert.ErrorIs(t, err, ErrIncompleteOccupancy)

				_, err = s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Percentage: ptr(10)})
				assert.ErrorIs(t, err, ErrIncompleteOccupancy)

				_, err = s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Level: ptr(""), Percentage: ptr(10)})
				assert.ErrorIs(t, err, ErrIncompleteOccupancy, "an empty level counts as missing")

				_, err = s.GetOccupancy(ctx, loc.ID)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			var first *model.Occupancy
			t.Run("first complete write creates the record", func(t *testing.T) {
				first, err = s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Level: ptr("moderate"), Percentage: ptr(55)})
				require.NoError(t, err)
				assert.NotZero(t, first.ID)
				assert.Equal(t, loc.ID, first.LocationID)
				assert.Equal(t, "moderate", first.Level)
				assert.Equal(t, 55, first.Percentage)
				assert.False(t, first.UpdatedAt.IsZero())
				assert.WithinDuration(t, time.Now(), first.UpdatedAt, 5*time.Second)
			})

			t.Run("partial update merges and keeps the id", func(t *testing.T) {
				time.Sleep(5 * time.Millisecond)
				updated, err := s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Percentage: ptr(85)})
				require.NoError(t, err)
				assert.Equal(t, first.ID, updated.ID)
				assert.Equal(t, "moderate", updated.Level, "level is untouched")
				assert.Equal(t, 85, updated.Percentage)
				assert.True(t, updated.UpdatedAt.After(first.UpdatedAt), "timestamp is refreshed")

				got, err := s.GetOccupancy(ctx, loc.ID)
				require.NoError(t, err)
				assert.Equal(t, updated.ID, got.ID)
				assert.Equal(t, "moderate", got.Level)
				assert.Equal(t, 85, got.Percentage)
				assert.Equal(t, updated.UpdatedAt.UnixMilli(), got.UpdatedAt.UnixMilli())
			})

			t.Run("level only update", func(t *testing.T) {
				updated, err := s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Level: ptr("critical")})
				require.NoError(t, err)
				assert.Equal(t, "critical", updated.Level)
				assert.Equal(t, 85, updated.Percentage)
			})

			t.Run("location row is untouched", func(t *testing.T) {
				got, err := s.GetLocation(ctx, loc.ID)
				require.NoError(t, err)
				assert.Equal(t, *loc, *got)
			})
		})
	}
}

func TestStore_ConcurrentFirstWritesLeaveOneRecord(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			loc, err := s.CreateLocation(ctx, library())
			require.NoError(t, err)

			var wg sync.WaitGroup
			ids := make([]int64, 8)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					rec, err := s.UpdateOccupancy(ctx, loc.ID, OccupancyPatch{Level: ptr("low"), Percentage: ptr(i)})
					if assert.NoError(t, err) {
						ids[i] = rec.ID
					}
				}(i)
			}
			wg.Wait()

			got, err := s.GetOccupancy(ctx, loc.ID)
			require.NoError(t, err)
			for _, id := range ids {
				assert.Equal(t, got.ID, id, "every writer sees the same record")
			}
		})
	}
}

func TestGormStore_UniqueLocationIndex(t *testing.T) {
	gormDB := newSQLiteDB(t)
	now := time.Now().UTC()

	require.NoError(t, gormDB.Create(&model.Occupancy{LocationID: 7, Level: "low", Percentage: 1, UpdatedAt: now}).Error)
	err := gormDB.Create(&model.Occupancy{LocationID: 7, Level: "high", Percentage: 2, UpdatedAt: now}).Error
	assert.Error(t, err, "a second row for the same location violates the unique index")
}

func TestGormStore_IncompleteFirstWriteRollsBack(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "occupancy" WHERE location_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "location_id", "level", "percentage", "updated_at"}))
	// No INSERT is expected.
	mock.ExpectRollback()

	_, err := s.UpdateOccupancy(context.Background(), 42, OccupancyPatch{Level: ptr("high")})
	assert.ErrorIs(t, err, ErrIncompleteOccupancy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateExistingIssuesUpdate(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)
	earlier := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "occupancy" WHERE location_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "location_id", "level", "percentage", "updated_at"}).
			AddRow(3, 42, "low", 10, earlier))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "occupancy" SET`)).
		WithArgs(int64(42), "low", 85, Any{}, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := s.UpdateOccupancy(context.Background(), 42, OccupancyPatch{Percentage: ptr(85)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.ID)
	assert.Equal(t, "low", rec.Level)
	assert.Equal(t, 85, rec.Percentage)
	assert.True(t, rec.UpdatedAt.After(earlier))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
