package enrollments

import (
	"fmt"
	"time"
)

// Payment status of one enrollment row. pending -> paid|failed, terminal.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Product families an enrollment can reference (exactly one per row).
const (
	ProductCourse     = "course"
	ProductTestSeries = "test_series"
	ProductBook       = "book"
)

// ValidProductType reports whether t is a sellable product family.
func ValidProductType(t string) bool {
	return t == ProductCourse || t == ProductTestSeries || t == ProductBook
}

// Enrollment is one purchase event, possibly partial (a subset of subjects
// for a test series). Rows are append-only: history is never edited, the
// owned view is recomputed from the paid rows.
type Enrollment struct {
	ID               int        `json:"id"`
	UserID           int        `json:"user_id"`
	ProductType      string     `json:"product_type"`
	ProductID        int        `json:"product_id"`
	Subjects         []string   `json:"subjects"`
	Amount           int        `json:"amount"`
	Currency         string     `json:"currency"`
	EnrollmentDate   time.Time  `json:"enrollment_date"`
	ExpiryDate       *time.Time `json:"expiry_date"`
	PaymentStatus    string     `json:"payment_status"`
	GatewayOrderID   string     `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `json:"gateway_payment_id,omitempty"`
}

// ProductKey identifies the product an enrollment refers to, regardless of
// which row carried it.
type ProductKey struct {
	Type string
	ID   int
}

func (k ProductKey) String() string { return fmt.Sprintf("%s:%d", k.Type, k.ID) }

func (e Enrollment) Key() ProductKey {
	return ProductKey{Type: e.ProductType, ID: e.ProductID}
}

// Entitlement is the merged, authoritative view of what a user owns for one
// product. A nil ExpiryDate means no expiry was recorded; the access layer
// applies the default horizon, it is never treated as already expired.
type Entitlement struct {
	ProductType    string     `json:"product_type"`
	ProductID      int        `json:"product_id"`
	Subjects       []string   `json:"subjects"`
	EnrollmentDate time.Time  `json:"enrollment_date"`
	ExpiryDate     *time.Time `json:"expiry_date"`
}

// Owns reports whether every requested subject is already covered. For
// subject-less products (courses, books) owning the product at all counts.
func (e *Entitlement) Owns(subjects []string) bool {
	if e == nil {
		return false
	}
	if len(subjects) == 0 {
		return true
	}
	owned := map[string]bool{}
	for _, s := range e.Subjects {
		owned[s] = true
	}
	for _, s := range subjects {
		if !owned[s] {
			return false
		}
	}
	return true
}
