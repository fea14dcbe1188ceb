package domain

// PaymentStatus is the payment state reported by the order collaborator.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// Order statuses this service reads or writes on the order collaborator.
const (
	OrderStatusPending               = "pending"
	OrderStatusProcessing            = "processing"
	OrderStatusCancellationRequested = "cancellation_requested"
	OrderStatusCancelled             = "cancelled"
	OrderStatusRefunded              = "refunded"
	OrderStatusPartiallyRefunded     = "partially_refunded"
)

// Item states read from the order collaborator. Received unlocks settlement;
// cancelled items no longer take part in it.
const (
	ItemStatusReceived  = "received"
	ItemStatusCancelled = "cancelled"
)

// Order is the checkout collaborator's view of an order.
type Order struct {
	Ref              string        `json:"ref"`
	BuyerAccountID   string        `json:"buyer_account_id"`
	Status           string        `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PreDiscountTotal int64         `json:"pre_discount_total"`
	FinalTotal       int64         `json:"final_total"`
	Lines            []OrderLine   `json:"lines"`
}

// OrderLine is one purchased product with its denormalized seller snapshot.
// SellerAccountID may be empty when the snapshot predates settlement accounts.
type OrderLine struct {
	ProductID       string `json:"product_id"`
	SellerRef       string `json:"seller_ref"`
	SellerAccountID string `json:"seller_account_id,omitempty"`
	Quantity        int64  `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
	Status          string `json:"status"`
}

// Subtotal returns quantity times unit price.
func (l OrderLine) Subtotal() int64 {
	return l.Quantity * l.UnitPrice
}

// IsPaid returns true if funds already moved for this order.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// LinesForSeller returns the lines sold by sellerRef.
func (o *Order) LinesForSeller(sellerRef string) []OrderLine {
	var out []OrderLine
	for _, l := range o.Lines {
		if l.SellerRef == sellerRef {
			out = append(out, l)
		}
	}
	return out
}

// FindLine returns the line for productID, or nil.
func (o *Order) FindLine(productID string) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			return &o.Lines[i]
		}
	}
	return nil
}

// StockChange is a quantity delta for one product, sent to the inventory collaborator.
type StockChange struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}
