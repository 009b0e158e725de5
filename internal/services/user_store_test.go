package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalchain-project/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockDB opens GORM's postgres dialector over a sqlmock connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestGormUserStoreFindOrCreateInsertsOnFirstLogin(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormUserStore(db)
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO "users" .* ON CONFLICT \("wallet_address"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))

	user, created, err := store.FindOrCreate(context.Background(), "0xABCDEF0000000000000000000000000000000001")
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", user.WalletAddress)
	assert.Equal(t, id, user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUserStoreFindOrCreateConflictLoadsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormUserStore(db)
	id := uuid.New()
	wallet := "0xabcdef0000000000000000000000000000000001"
	createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	// A concurrent first login already inserted the row, so DO NOTHING returns nothing.
	mock.ExpectQuery(`INSERT INTO "users" .* ON CONFLICT \("wallet_address"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE wallet_address = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address", "created_at", "updated_at"}).
			AddRow(id.String(), wallet, createdAt, createdAt))

	user, created, err := store.FindOrCreate(context.Background(), wallet)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, wallet, user.WalletAddress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUserStoreFindByWalletMissing(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormUserStore(db)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE wallet_address = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address"}))

	_, err := store.FindByWallet(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUserStoreAppendForDeletedUser(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormUserStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "analysis_records"`)).
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation, Message: "violates foreign key constraint"})

	err := store.AppendAnalysis(context.Background(), uuid.New(), &models.AnalysisRecord{Summary: "ok"})
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
