package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"caprep-backend/enrollments"

	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret"

type fakeIdentity struct{}

func (fakeIdentity) UserIDFromToken(token string) (int, bool) {
	if token == "tok-user1" {
		return 1, true
	}
	return 0, false
}

type fakeStore struct {
	seq  int
	rows map[int]*enrollments.Enrollment
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int]*enrollments.Enrollment{}}
}

func (f *fakeStore) Create(e *enrollments.Enrollment) error {
	f.seq++
	e.ID = f.seq
	cp := *e
	f.rows[e.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(id int) (*enrollments.Enrollment, error) {
	e, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) SetGatewayOrder(id int, orderID string) error {
	f.rows[id].GatewayOrderID = orderID
	return nil
}

func (f *fakeStore) MarkPaid(id int, paymentID string) (bool, error) {
	e := f.rows[id]
	if e.PaymentStatus != enrollments.StatusPending {
		return false, nil
	}
	e.PaymentStatus = enrollments.StatusPaid
	e.GatewayPaymentID = paymentID
	return true, nil
}

func (f *fakeStore) MarkFailed(id int) error {
	if e := f.rows[id]; e.PaymentStatus == enrollments.StatusPending {
		e.PaymentStatus = enrollments.StatusFailed
	}
	return nil
}

func (f *fakeStore) EntitlementFor(userID int, productType string, productID int) (*enrollments.Entitlement, error) {
	paid := []enrollments.Enrollment{}
	for _, e := range f.rows {
		if e.UserID == userID && e.ProductType == productType && e.ProductID == productID && e.PaymentStatus == enrollments.StatusPaid {
			paid = append(paid, *e)
		}
	}
	if len(paid) == 0 {
		return nil, nil
	}
	merged := enrollments.Aggregate(paid)
	ent := merged[enrollments.ProductKey{Type: productType, ID: productID}]
	return &ent, nil
}

type fakeGateway struct {
	calls int
	fail  bool
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*Order, error) {
	g.calls++
	if g.fail {
		return nil, errors.New("gateway down")
	}
	return &Order{ID: "order_test_1", Amount: amountPaise, Currency: currency}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func post(r *gin.Engine, path string, body any, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateOrder_rejectsNonPositiveAmount(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHandler(newFakeStore(), fakeIdentity{}, gw, testSecret)
	r := setupRouter(h)

	for _, amount := range []int{0, -450} {
		w := post(r, "/payments/create-order", map[string]any{
			"product_type": "test_series", "product_id": 7, "amount": amount,
		}, "tok-user1")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("amount %d: expected 400, got %d: %s", amount, w.Code, w.Body.String())
		}
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times for invalid amounts", gw.calls)
	}
}

func TestCreateOrder_requiresSession(t *testing.T) {
	h := NewHandler(newFakeStore(), fakeIdentity{}, &fakeGateway{}, testSecret)
	r := setupRouter(h)
	w := post(r, "/payments/create-order", map[string]any{
		"product_type": "test_series", "product_id": 7, "amount": 450,
	}, "tok-nobody")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCreateOrder_ok(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	h := NewHandler(store, fakeIdentity{}, gw, testSecret)
	r := setupRouter(h)

	w := post(r, "/payments/create-order", map[string]any{
		"product_type": "test_series", "product_id": 7, "amount": 1200,
		"selected_subjects": []string{"FR", "AFM", "Audit"},
	}, "tok-user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		KeyID        string `json:"key_id"`
		Order        Order  `json:"order"`
		EnrollmentID int    `json:"enrollment_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.KeyID != "rzp_test_key" {
		t.Fatalf("key_id = %q", resp.KeyID)
	}
	if resp.Order.Amount != 120000 {
		t.Fatalf("order amount = %d paise, want 120000", resp.Order.Amount)
	}
	enr, _ := store.GetByID(resp.EnrollmentID)
	if enr == nil || enr.PaymentStatus != enrollments.StatusPending {
		t.Fatalf("enrollment not pending: %+v", enr)
	}
	if enr.GatewayOrderID != "order_test_1" {
		t.Fatalf("gateway order id not stored: %+v", enr)
	}
}

func TestCreateOrder_duplicateRejectedBeforeGateway(t *testing.T) {
	store := newFakeStore()
	paid := &enrollments.Enrollment{
		UserID: 1, ProductType: "test_series", ProductID: 7,
		Subjects: []string{"AFM", "Audit", "FR"}, EnrollmentDate: time.Now(),
		PaymentStatus: enrollments.StatusPaid,
	}
	store.Create(paid)

	gw := &fakeGateway{}
	h := NewHandler(store, fakeIdentity{}, gw, testSecret)
	r := setupRouter(h)

	w := post(r, "/payments/create-order", map[string]any{
		"product_type": "test_series", "product_id": 7, "amount": 450,
		"selected_subjects": []string{"FR"},
	}, "tok-user1")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if gw.calls != 0 {
		t.Fatalf("gateway was called %d times for a duplicate", gw.calls)
	}

	// Subjects beyond the owned set still go through.
	w = post(r, "/payments/create-order", map[string]any{
		"product_type": "test_series", "product_id": 7, "amount": 900,
		"selected_subjects": []string{"FR", "DT"},
	}, "tok-user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for new subjects, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_gatewayFailureSurfaced(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, fakeIdentity{}, &fakeGateway{fail: true}, testSecret)
	r := setupRouter(h)
	w := post(r, "/payments/create-order", map[string]any{
		"product_type": "book", "product_id": 2, "amount": 300,
	}, "tok-user1")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestCreateOrder_noGatewayConfigured(t *testing.T) {
	h := NewHandler(newFakeStore(), fakeIdentity{}, nil, testSecret)
	r := setupRouter(h)
	w := post(r, "/payments/create-order", map[string]any{
		"product_type": "book", "product_id": 2, "amount": 300,
	}, "tok-user1")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func createPending(t *testing.T, store *fakeStore, r *gin.Engine) int {
	t.Helper()
	w := post(r, "/payments/create-order", map[string]any{
		"product_type": "test_series", "product_id": 7, "amount": 1200,
		"selected_subjects": []string{"FR", "AFM", "Audit"},
	}, "tok-user1")
	if w.Code != http.StatusOK {
		t.Fatalf("create-order failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		EnrollmentID int `json:"enrollment_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp.EnrollmentID
}

func TestVerify_validSignatureGrantsEntitlement(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, fakeIdentity{}, &fakeGateway{}, testSecret)
	r := setupRouter(h)
	id := createPending(t, store, r)

	sig := expectedSignature("order_test_1", "pay_123", testSecret)
	w := post(r, "/payments/verify", map[string]any{
		"razorpay_order_id": "order_test_1", "razorpay_payment_id": "pay_123",
		"razorpay_signature": sig, "enrollment_id": id,
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	enr, _ := store.GetByID(id)
	if enr.PaymentStatus != enrollments.StatusPaid {
		t.Fatalf("status = %s, want paid", enr.PaymentStatus)
	}
	var resp struct {
		Entitlement *enrollments.Entitlement `json:"entitlement"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Entitlement == nil || len(resp.Entitlement.Subjects) != 3 {
		t.Fatalf("entitlement = %+v, want 3 subjects", resp.Entitlement)
	}
}

func TestVerify_idempotent(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, fakeIdentity{}, &fakeGateway{}, testSecret)
	r := setupRouter(h)
	id := createPending(t, store, r)

	sig := expectedSignature("order_test_1", "pay_123", testSecret)
	body := map[string]any{
		"razorpay_order_id": "order_test_1", "razorpay_payment_id": "pay_123",
		"razorpay_signature": sig, "enrollment_id": id,
	}
	first := post(r, "/payments/verify", body, "")
	second := post(r, "/payments/verify", body, "")
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("codes = %d, %d, want 200 twice", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("verify is not idempotent:\nfirst:  %s\nsecond: %s", first.Body.String(), second.Body.String())
	}
	ent, _ := store.EntitlementFor(1, "test_series", 7)
	if len(ent.Subjects) != 3 {
		t.Fatalf("subjects duplicated or lost: %v", ent.Subjects)
	}
}

func TestVerify_invalidSignatureMarksFailed(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, fakeIdentity{}, &fakeGateway{}, testSecret)
	r := setupRouter(h)
	id := createPending(t, store, r)

	w := post(r, "/payments/verify", map[string]any{
		"razorpay_order_id": "order_test_1", "razorpay_payment_id": "pay_123",
		"razorpay_signature": "forged", "enrollment_id": id,
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	enr, _ := store.GetByID(id)
	if enr.PaymentStatus != enrollments.StatusFailed {
		t.Fatalf("status = %s, want failed", enr.PaymentStatus)
	}
	if ent, _ := store.EntitlementFor(1, "test_series", 7); ent != nil {
		t.Fatalf("failed payment granted an entitlement: %+v", ent)
	}

	// failed is terminal: a later valid signature cannot resurrect the row
	sig := expectedSignature("order_test_1", "pay_123", testSecret)
	w = post(r, "/payments/verify", map[string]any{
		"razorpay_order_id": "order_test_1", "razorpay_payment_id": "pay_123",
		"razorpay_signature": sig, "enrollment_id": id,
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on failed row, got %d", w.Code)
	}
}

func TestVerify_orderMismatchKeepsRowPending(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, fakeIdentity{}, &fakeGateway{}, testSecret)
	r := setupRouter(h)
	id := createPending(t, store, r)

	sig := expectedSignature("order_other", "pay_123", testSecret)
	w := post(r, "/payments/verify", map[string]any{
		"razorpay_order_id": "order_other", "razorpay_payment_id": "pay_123",
		"razorpay_signature": sig, "enrollment_id": id,
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	enr, _ := store.GetByID(id)
	if enr.PaymentStatus != enrollments.StatusPending {
		t.Fatalf("status = %s, want pending after mismatch", enr.PaymentStatus)
	}
}

func TestVerify_unknownEnrollment(t *testing.T) {
	h := NewHandler(newFakeStore(), fakeIdentity{}, &fakeGateway{}, testSecret)
	r := setupRouter(h)
	w := post(r, "/payments/verify", map[string]any{
		"razorpay_order_id": "order_test_1", "razorpay_payment_id": "pay_123",
		"razorpay_signature": "x", "enrollment_id": 99,
	}, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
