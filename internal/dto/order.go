package dto

import (
	"time"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// OrderItemProduct is the product snapshot nested into an order line.
type OrderItemProduct struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// OrderItemResponse represents an order line as exposed via transport layers.
type OrderItemResponse struct {
	ID              string            `json:"id"`
	ProductID       string            `json:"productId"`
	Quantity        int               `json:"quantity"`
	PriceAtPurchase float64           `json:"priceAtPurchase"`
	Product         *OrderItemProduct `json:"product,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
// Items is set on detail responses, ItemCount on list summaries.
type OrderResponse struct {
	ID            string              `json:"id"`
	DisplayID     string              `json:"displayId"`
	CustomerName  string              `json:"customerName"`
	CustomerPhone *string             `json:"customerPhone"`
	CustomerEmail *string             `json:"customerEmail"`
	Note          *string             `json:"note"`
	Status        string              `json:"status"`
	TotalAmount   float64             `json:"totalAmount"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	ItemCount     *int                `json:"itemCount,omitempty"`
	Items         []OrderItemResponse `json:"items,omitempty"`
}

// OrderStatsResponse is the dashboard aggregate over all orders.
type OrderStatsResponse struct {
	OrderCount        int            `json:"orderCount"`
	ByStatus          map[string]int `json:"byStatus"`
	CompletedRevenue  float64        `json:"completedRevenue"`
	AverageOrderValue float64        `json:"averageOrderValue"`
}

// NewOrderDetail maps an order with its lines.
func NewOrderDetail(order *entity.Order) OrderResponse {
	resp := newOrder(order)
	resp.Items = make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		line := OrderItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.InexactFloat64(),
		}
		if item.Product != nil {
			line.Product = &OrderItemProduct{
				ID:    item.Product.ID,
				Name:  item.Product.Name,
				Price: item.Product.Price.InexactFloat64(),
			}
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}

// NewOrderSummaries maps list results, which carry item counts instead of lines.
func NewOrderSummaries(orders []*entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		resp := newOrder(order)
		count := order.ItemCount
		resp.ItemCount = &count
		out = append(out, resp)
	}
	return out
}

func newOrder(order *entity.Order) OrderResponse {
	return OrderResponse{
		ID:            order.ID,
		DisplayID:     order.DisplayID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		CustomerEmail: order.CustomerEmail,
		Note:          order.Note,
		Status:        string(order.Status),
		TotalAmount:   order.TotalAmount.InexactFloat64(),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}
