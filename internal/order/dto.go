package order

// CreateOrderLine payload of one order line.
// swagger:model CreateOrderLine
type CreateOrderLine struct {
	ItemID   string `json:"item_id"  example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity int    `json:"quantity" example:"2"`
	// Price is the unit price to record; empty takes the item's current price.
	Price string `json:"price" example:"199.90"`
}

// CreateOrderRequest payload of order creation.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items []CreateOrderLine `json:"items"`
}

// ListResponse wraps order listings.
// swagger:model OrderListResponse
type ListResponse struct {
	Orders []Order `json:"orders"`
}
