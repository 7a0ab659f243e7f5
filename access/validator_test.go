package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"caprep-backend/enrollments"

	"github.com/gin-gonic/gin"
)

type stubStore struct {
	ent *enrollments.Entitlement
}

func (s *stubStore) EntitlementFor(userID int, productType string, productID int) (*enrollments.Entitlement, error) {
	return s.ent, nil
}

type stubIdentity struct{}

func (stubIdentity) UserIDFromToken(token string) (int, bool) { return 1, token == "tok" }

func TestCheckSubject_ownedSubjectAllowed(t *testing.T) {
	v := NewValidator(&stubStore{ent: &enrollments.Entitlement{
		Subjects:       []string{"AFM", "FR"},
		EnrollmentDate: time.Now(),
	}})
	if _, err := v.CheckSubject(1, enrollments.ProductTestSeries, 7, "FR"); err != nil {
		t.Fatalf("owned subject denied: %v", err)
	}
}

func TestCheckSubject_unownedSubjectDenied(t *testing.T) {
	v := NewValidator(&stubStore{ent: &enrollments.Entitlement{
		Subjects:       []string{"FR"},
		EnrollmentDate: time.Now(),
	}})
	if _, err := v.CheckSubject(1, enrollments.ProductTestSeries, 7, "DT"); err != ErrNotPurchased {
		t.Fatalf("err = %v, want ErrNotPurchased", err)
	}
}

func TestCheckSubject_noEntitlementDenied(t *testing.T) {
	v := NewValidator(&stubStore{})
	if _, err := v.CheckSubject(1, enrollments.ProductTestSeries, 7, ""); err != ErrNotPurchased {
		t.Fatalf("err = %v, want ErrNotPurchased", err)
	}
}

func TestCheckSubject_expiredDenied(t *testing.T) {
	past := time.Now().AddDate(0, -1, 0)
	v := NewValidator(&stubStore{ent: &enrollments.Entitlement{
		Subjects:       []string{"FR"},
		EnrollmentDate: past.AddDate(-1, 0, 0),
		ExpiryDate:     &past,
	}})
	if _, err := v.CheckSubject(1, enrollments.ProductTestSeries, 7, "FR"); err != ErrExpired {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestCheckSubject_nilExpiryUsesDefaultHorizon(t *testing.T) {
	// Inside the default 12-month horizon.
	v := NewValidator(&stubStore{ent: &enrollments.Entitlement{
		Subjects:       []string{"FR"},
		EnrollmentDate: time.Now().AddDate(0, -6, 0),
	}})
	if _, err := v.CheckSubject(1, enrollments.ProductTestSeries, 7, "FR"); err != nil {
		t.Fatalf("within horizon denied: %v", err)
	}

	// Past the horizon.
	v = NewValidator(&stubStore{ent: &enrollments.Entitlement{
		Subjects:       []string{"FR"},
		EnrollmentDate: time.Now().AddDate(-2, 0, 0),
	}})
	if _, err := v.CheckSubject(1, enrollments.ProductTestSeries, 7, "FR"); err != ErrExpired {
		t.Fatalf("err = %v, want ErrExpired past horizon", err)
	}
}

func accessRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewValidator(store), stubIdentity{}).RegisterRoutes(r)
	return r
}

func TestAccessEndpoint(t *testing.T) {
	r := accessRouter(&stubStore{ent: &enrollments.Entitlement{
		Subjects:       []string{"FR"},
		EnrollmentDate: time.Now(),
	}})

	req := httptest.NewRequest(http.MethodGet, "/test-series/7/access?subject=FR", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/test-series/7/access?subject=DT", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unowned subject, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/test-series/7/access", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}
}
