package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"api_sales/internal/sales"
)

// PurchaseModel is the row of the purchases table.
type PurchaseModel struct {
	PurchaseID       int64           `gorm:"column:purchase_id;primaryKey;autoIncrement"`
	CustomerUsername string          `gorm:"column:customer_username;not null;index:idx_purchases_customer_date,priority:1"`
	ItemName         string          `gorm:"column:item_name;not null"`
	Quantity         int             `gorm:"column:quantity;not null"`
	TotalPrice       decimal.Decimal `gorm:"column:total_price;type:numeric;not null"`
	PurchaseDate     time.Time       `gorm:"column:purchase_date;not null;index:idx_purchases_customer_date,priority:2"`
}

// TableName specifies the table name for GORM.
func (PurchaseModel) TableName() string {
	return "purchases"
}

func (m PurchaseModel) toDomain() sales.Purchase {
	return sales.Purchase{
		PurchaseID:       m.PurchaseID,
		CustomerUsername: m.CustomerUsername,
		ItemName:         m.ItemName,
		Quantity:         m.Quantity,
		TotalPrice:       m.TotalPrice,
		PurchaseDate:     m.PurchaseDate.UTC(),
	}
}

// PurchaseRepository is a sales.Storage backed by gorm. It only ever inserts
// and reads rows.
type PurchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new PurchaseRepository.
func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

var _ sales.Storage = (*PurchaseRepository)(nil)

// Append inserts p and sets its PurchaseID.
func (r *PurchaseRepository) Append(ctx context.Context, p *sales.Purchase) (int64, error) {
	switch {
	case p.CustomerUsername == "":
		return 0, sales.ErrEmptyCustomer
	case p.Quantity <= 0:
		return 0, sales.ErrInvalidQuantity
	}

	model := PurchaseModel{
		CustomerUsername: p.CustomerUsername,
		ItemName:         p.ItemName,
		Quantity:         p.Quantity,
		TotalPrice:       p.TotalPrice,
		PurchaseDate:     p.PurchaseDate.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, fmt.Errorf("failed to insert purchase: %w", err)
	}
	p.PurchaseID = model.PurchaseID
	return model.PurchaseID, nil
}

// ListByCustomer returns the purchases of username, oldest first.
func (r *PurchaseRepository) ListByCustomer(ctx context.Context, username string) ([]sales.Purchase, error) {
	var models []PurchaseModel
	err := r.db.WithContext(ctx).
		Where("customer_username = ?", username).
		Order("purchase_date ASC, purchase_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return toDomain(models), nil
}

// ListAll returns every purchase, oldest first.
func (r *PurchaseRepository) ListAll(ctx context.Context) ([]sales.Purchase, error) {
	var models []PurchaseModel
	err := r.db.WithContext(ctx).
		Order("purchase_date ASC, purchase_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return toDomain(models), nil
}

func toDomain(models []PurchaseModel) []sales.Purchase {
	out := make([]sales.Purchase, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out
}
