package payments

import (
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"caprep-backend/enrollments"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity resolves the calling user from a bearer token.
type Identity interface {
	UserIDFromToken(token string) (int, bool)
}

// Store is the slice of the enrollments repository the payment flow needs.
// *enrollments.Repository satisfies it; tests inject a fake.
type Store interface {
	Create(e *enrollments.Enrollment) error
	GetByID(id int) (*enrollments.Enrollment, error)
	SetGatewayOrder(id int, orderID string) error
	MarkPaid(id int, paymentID string) (bool, error)
	MarkFailed(id int) error
	EntitlementFor(userID int, productType string, productID int) (*enrollments.Entitlement, error)
}

type Handler struct {
	store   Store
	ident   Identity
	gateway Gateway
	secret  string
}

// NewHandler wires the payment endpoints. gateway may be nil (unconfigured);
// order creation then answers 503. secret is the gateway key secret used to
// recompute checkout signatures.
func NewHandler(store Store, ident Identity, gateway Gateway, secret string) *Handler {
	return &Handler{store: store, ident: ident, gateway: gateway, secret: secret}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/payments/create-order", h.createOrder)
	r.POST("/payments/verify", h.verify)
}

type createOrderRequest struct {
	ProductType      string   `json:"product_type"`
	ProductID        int      `json:"product_id"`
	Amount           int      `json:"amount"` // rupees
	SelectedSubjects []string `json:"selected_subjects"`
}

// createOrder validates the purchase, re-checks ownership and opens a
// gateway order. Gateway failures are surfaced, never retried here: the
// caller may retry the whole call, which is safe because the ownership
// check runs again.
func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !enrollments.ValidProductType(req.ProductType) || req.ProductID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product"})
		return
	}
	if req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	userID, ok := h.ident.UserIDFromToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	subjects := normalizeSubjects(req.SelectedSubjects)

	// Ownership re-check happens on every attempt, before any gateway call.
	owned, err := h.store.EntitlementFor(userID, req.ProductType, req.ProductID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if owned.Owns(subjects) {
		log.Printf("[payments][create] duplicate user_id=%d product=%s:%d subjects=%v", userID, req.ProductType, req.ProductID, subjects)
		c.JSON(http.StatusConflict, gin.H{"error": "already_purchased"})
		return
	}
	if h.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment gateway not configured"})
		return
	}

	enr := &enrollments.Enrollment{
		UserID:         userID,
		ProductType:    req.ProductType,
		ProductID:      req.ProductID,
		Subjects:       subjects,
		Amount:         req.Amount,
		Currency:       "INR",
		EnrollmentDate: time.Now(),
		PaymentStatus:  enrollments.StatusPending,
	}
	if err := h.store.Create(enr); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	receipt := "enr_" + uuid.NewString()
	order, err := h.gateway.CreateOrder(c.Request.Context(), int64(req.Amount)*100, enr.Currency, receipt)
	if err != nil {
		log.Printf("[payments][create] gateway error user_id=%d enrollment_id=%d err=%v", userID, enr.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "order creation failed"})
		return
	}
	if err := h.store.SetGatewayOrder(enr.ID, order.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("[payments][create] ok user_id=%d enrollment_id=%d order_id=%s amount=%d", userID, enr.ID, order.ID, req.Amount)
	c.JSON(http.StatusOK, gin.H{
		"key_id":        h.gateway.KeyID(),
		"order":         order,
		"enrollment_id": enr.ID,
	})
}

type verifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	EnrollmentID      int    `json:"enrollment_id"`
}

// verify finalizes a pending enrollment from the checkout callback. The
// signature itself authenticates the call, so no session token is required
// (the gateway-driven and client-driven callbacks share this path). Safe to
// call more than once: an already-paid row is a no-op success.
func (h *Handler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EnrollmentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	enr, err := h.store.GetByID(req.EnrollmentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if enr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
		return
	}
	switch enr.PaymentStatus {
	case enrollments.StatusPaid:
		// Duplicate finalization: answer with the current state, grant nothing.
		log.Printf("[payments][verify] already paid enrollment_id=%d", enr.ID)
		h.respondEntitlement(c, enr)
		return
	case enrollments.StatusFailed:
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment failed"})
		return
	}
	if enr.GatewayOrderID == "" || enr.GatewayOrderID != req.RazorpayOrderID {
		// Misrouted callback; leave the row pending for the right one.
		log.Printf("[payments][verify] order mismatch enrollment_id=%d got=%s want=%s", enr.ID, req.RazorpayOrderID, enr.GatewayOrderID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "order mismatch"})
		return
	}
	if !VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, h.secret) {
		if err := h.store.MarkFailed(enr.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[payments][verify] signature invalid enrollment_id=%d order_id=%s", enr.ID, req.RazorpayOrderID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature invalid"})
		return
	}
	transitioned, err := h.store.MarkPaid(enr.ID, req.RazorpayPaymentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !transitioned {
		// A concurrent verify won the pending->paid transition; same outcome.
		log.Printf("[payments][verify] lost finalization race enrollment_id=%d", enr.ID)
	} else {
		log.Printf("[payments][verify] ok enrollment_id=%d order_id=%s payment_id=%s", enr.ID, req.RazorpayOrderID, req.RazorpayPaymentID)
	}
	h.respondEntitlement(c, enr)
}

func (h *Handler) respondEntitlement(c *gin.Context, enr *enrollments.Enrollment) {
	ent, err := h.store.EntitlementFor(enr.UserID, enr.ProductType, enr.ProductID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entitlement": ent})
}

func normalizeSubjects(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
