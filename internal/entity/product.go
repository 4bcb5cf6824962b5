package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product is a catalog entry that orders reference.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          string          `bun:"id,pk" json:"id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Price       decimal.Decimal `bun:"price,type:decimal(12,2),notnull" json:"price"`
	Description *string         `bun:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"updated_at"`
}
