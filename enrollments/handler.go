package enrollments

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity resolves the calling user from a bearer token. Satisfied by
// login.Sessions; tests inject their own.
type Identity interface {
	UserIDFromToken(token string) (int, bool)
}

// Store is the slice of the repository the read model needs.
type Store interface {
	PaidByUser(userID int) ([]Enrollment, error)
}

type Handler struct {
	store Store
	ident Identity
}

func NewHandler(store Store, ident Identity) *Handler {
	return &Handler{store: store, ident: ident}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/enrollments", h.list)
}

// list returns the aggregated entitlements of the calling user. The view is
// recomputed from the paid rows on every read; clients may cache it as a
// hint but never as the source of truth for access.
func (h *Handler) list(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	userID, ok := h.ident.UserIDFromToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	records, err := h.store.PaidByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	merged := Aggregate(records)
	out := []Entitlement{}
	for _, ent := range merged {
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductType != out[j].ProductType {
			return out[i].ProductType < out[j].ProductType
		}
		return out[i].ProductID < out[j].ProductID
	})
	c.JSON(http.StatusOK, gin.H{"data": out})
}
