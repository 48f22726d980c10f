// Package order reads and updates the orders that payments belong to.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no order has the requested ID.
var ErrNotFound = errors.New("order not found")

// Record is the persisted order row.
type Record struct {
	ID           int64     `gorm:"primaryKey"`
	CustomerName string    `gorm:"size:255;not null"`
	Email        string    `gorm:"size:255;not null;index"`
	AmountCents  int64     `gorm:"not null"`
	Currency     string    `gorm:"size:3;not null"`
	Status       string    `gorm:"size:32;not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Record) TableName() string { return "orders" }

func (r Record) toModel() model.Order {
	return model.Order{
		ID:           r.ID,
		CustomerName: r.CustomerName,
		Email:        r.Email,
		AmountCents:  r.AmountCents,
		Currency:     r.Currency,
		Status:       model.OrderStatus(r.Status),
		CreatedAt:    r.CreatedAt,
	}
}

// Open connects to postgres for postgres:// DSNs and to sqlite otherwise, then migrates.
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the orders table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate orders: %w", err)
	}
	return nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Repository is the gorm-backed order store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new order in the created status.
func (r *Repository) Create(ctx context.Context, o model.Order) (model.Order, error) {
	rec := Record{
		CustomerName: o.CustomerName,
		Email:        o.Email,
		AmountCents:  o.AmountCents,
		Currency:     strings.ToLower(o.Currency),
		Status:       string(model.OrderCreated),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	return rec.toModel(), nil
}

// FindOrder returns the order or ErrNotFound.
func (r *Repository) FindOrder(ctx context.Context, id int64) (model.Order, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("find order %d: %w", id, err)
	}
	return rec.toModel(), nil
}

// UpdateStatus moves the order to status. Paid orders keep their status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND status <> ?", id, string(model.OrderPaid)).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update order %d: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
