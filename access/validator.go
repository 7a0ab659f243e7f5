package access

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"caprep-backend/enrollments"

	"github.com/gin-gonic/gin"
)

// Store is the entitlement lookup the gate needs.
type Store interface {
	EntitlementFor(userID int, productType string, productID int) (*enrollments.Entitlement, error)
}

// Identity resolves the calling user from a bearer token.
type Identity interface {
	UserIDFromToken(token string) (int, bool)
}

var (
	ErrNotPurchased = errors.New("not purchased")
	ErrExpired      = errors.New("access expired")
)

// Validator gates content behind the aggregated entitlement. The check is
// server-authoritative on every call; client-side caches are hints only.
type Validator struct {
	store Store
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// defaultHorizonMonths applies when an enrollment carries no expiry date.
// A missing expiry is "no expiry recorded", never "expired already".
func defaultHorizonMonths() int {
	months := 12
	if v := os.Getenv("ACCESS_DEFAULT_HORIZON_MONTHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			months = n
		}
	}
	return months
}

// CheckSubject verifies the user owns the subject of a product and the
// access window is still open. Empty subject checks plain ownership
// (courses, books).
func (v *Validator) CheckSubject(userID int, productType string, productID int, subject string) (*enrollments.Entitlement, error) {
	if os.Getenv("ACCESS_DISABLE") == "1" {
		log.Printf("[access][bypass] user_id=%d product=%s:%d ACCESS_DISABLE=1", userID, productType, productID)
		return nil, nil
	}
	ent, err := v.store.EntitlementFor(userID, productType, productID)
	if err != nil {
		log.Printf("[access][error] user_id=%d product=%s:%d err=%v", userID, productType, productID, err)
		return nil, err
	}
	var want []string
	if subject != "" {
		want = []string{subject}
	}
	if !ent.Owns(want) {
		log.Printf("[access][deny] user_id=%d product=%s:%d subject=%s reason=not_purchased", userID, productType, productID, subject)
		return nil, ErrNotPurchased
	}
	expiry := ent.ExpiryDate
	if expiry == nil {
		t := ent.EnrollmentDate.AddDate(0, defaultHorizonMonths(), 0)
		expiry = &t
	}
	if time.Now().After(*expiry) {
		log.Printf("[access][deny] user_id=%d product=%s:%d subject=%s reason=expired expiry=%s", userID, productType, productID, subject, expiry.Format(time.RFC3339))
		return nil, ErrExpired
	}
	return ent, nil
}

type Handler struct {
	validator *Validator
	ident     Identity
}

func NewHandler(validator *Validator, ident Identity) *Handler {
	return &Handler{validator: validator, ident: ident}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/test-series/:id/access", h.checkTestSeries)
}

// checkTestSeries answers whether the caller may open a test-series subject.
// Content delivery itself lives in the document service; the UI calls this
// gate before requesting papers.
func (h *Handler) checkTestSeries(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	userID, ok := h.ident.UserIDFromToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	subject := c.Query("subject")
	ent, err := h.validator.CheckSubject(userID, enrollments.ProductTestSeries, id, subject)
	switch {
	case err == ErrNotPurchased:
		c.JSON(http.StatusForbidden, gin.H{"allowed": false, "error": "not purchased"})
	case err == ErrExpired:
		c.JSON(http.StatusForbidden, gin.H{"allowed": false, "error": "access expired"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		resp := gin.H{"allowed": true}
		if ent != nil {
			resp["entitlement"] = ent
		}
		c.JSON(http.StatusOK, resp)
	}
}
