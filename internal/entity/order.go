package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order represents a customer order stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID            string          `bun:"id,pk"`
	DisplayID     string          `bun:"display_id,notnull,unique"`
	CustomerName  string          `bun:"customer_name,notnull"`
	CustomerPhone *string         `bun:"customer_phone"`
	CustomerEmail *string         `bun:"customer_email"`
	Note          *string         `bun:"note"`
	Status        OrderStatus     `bun:"status,notnull"`
	TotalAmount   decimal.Decimal `bun:"total_amount,type:decimal(12,2),notnull"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	Items     []*OrderItem `bun:"rel:has-many,join:id=order_id"`
	ItemCount int          `bun:"item_count,scanonly"`
}

// OrderItem is a line of an order with the product price captured at purchase time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID              string          `bun:"id,pk"`
	OrderID         string          `bun:"order_id,notnull"`
	ProductID       string          `bun:"product_id,notnull"`
	Position        int             `bun:"position,notnull"`
	Quantity        int             `bun:"quantity,notnull"`
	PriceAtPurchase decimal.Decimal `bun:"price_at_purchase,type:decimal(12,2),notnull"`

	Product *Product `bun:"rel:belongs-to,join:product_id=id"`
}

// Subtotal returns the snapshot price multiplied by quantity.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ProductNotFoundError reports an order line referencing an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ApplyCatalogPrices snapshots each line's price from catalog and recomputes the total.
// It fails on the first line whose product is absent and leaves the order untouched.
func (o *Order) ApplyCatalogPrices(catalog map[string]*Product) error {
	for _, item := range o.Items {
		if _, ok := catalog[item.ProductID]; !ok {
			return &ProductNotFoundError{ProductID: item.ProductID}
		}
	}

	total := decimal.Zero
	for _, item := range o.Items {
		product := catalog[item.ProductID]
		item.PriceAtPurchase = product.Price
		item.Product = product
		total = total.Add(item.Subtotal())
	}
	o.TotalAmount = total
	return nil
}

// ProductIDs returns the distinct product ids referenced by the order lines.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// TransitionTo moves the order to status when the transition table allows it.
func (o *Order) TransitionTo(status OrderStatus, at time.Time) error {
	if !status.Valid() {
		return &InvalidStatusError{Value: string(status)}
	}
	if !o.Status.CanTransitionTo(status) {
		return &TransitionError{From: o.Status, To: status}
	}
	o.Status = status
	o.UpdatedAt = at
	return nil
}
