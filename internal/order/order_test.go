package order

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newOrderDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func seedOrder(t *testing.T, repo *Repository) model.Order {
	t.Helper()
	o, err := repo.Create(context.Background(), model.Order{
		CustomerName: "Ada Lovelace",
		Email:        "ada@example.com",
		AmountCents:  45000,
		Currency:     "USD",
	})
	require.NoError(t, err)
	return o
}

func TestRepository_CreateAndFind(t *testing.T) {
	repo := NewRepository(newOrderDBForTest(t))
	created := seedOrder(t, repo)

	assert.NotZero(t, created.ID)
	assert.Equal(t, model.OrderCreated, created.Status)
	assert.Equal(t, "usd", created.Currency)

	found, err := repo.FindOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", found.CustomerName)
	assert.Equal(t, int64(45000), found.AmountCents)
	assert.False(t, found.CreatedAt.IsZero())
}

func TestRepository_FindMissing(t *testing.T) {
	repo := NewRepository(newOrderDBForTest(t))
	_, err := repo.FindOrder(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := NewRepository(newOrderDBForTest(t))
	ctx := context.Background()
	o := seedOrder(t, repo)

	tests := []struct {
		name     string
		status   model.OrderStatus
		expected model.OrderStatus
	}{
		{"pending after retriable failure", model.OrderPaymentPending, model.OrderPaymentPending},
		{"failed after exhaustion", model.OrderPaymentFailed, model.OrderPaymentFailed},
		{"paid after late success", model.OrderPaid, model.OrderPaid},
		{"paid is final", model.OrderPaymentFailed, model.OrderPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, repo.UpdateStatus(ctx, o.ID, tt.status))
			got, err := repo.FindOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Status)
		})
	}

	assert.ErrorIs(t, repo.UpdateStatus(ctx, 9999, model.OrderPaid), ErrNotFound)
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, isPostgres("postgres://user:pass@db:5432/studio"))
	assert.True(t, isPostgres("postgresql://db/studio"))
	assert.False(t, isPostgres("payments.db"))
	assert.False(t, isPostgres("file::memory:?cache=shared"))
}

func TestOpen_Sqlite(t *testing.T) {
	db, err := Open("file:open_test?mode=memory&cache=shared")
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&Record{}))
}
