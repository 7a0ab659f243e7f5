package pricing

import (
	"net/http"

	"caprep-backend/catalog"

	"github.com/gin-gonic/gin"
)

type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/test-series/catalog", h.catalog)
	r.POST("/test-series/quote", h.quote)
}

// catalog returns the sold tiers with their groups, subjects and the default
// price table so clients can render the picker without hardcoding it.
func (h *Handler) catalog(c *gin.Context) {
	tiers := []gin.H{}
	for _, st := range catalog.Types() {
		tiers = append(tiers, gin.H{
			"series_type":           st,
			"label":                 catalog.Label(st),
			"papers_per_subject":    catalog.PapersPerSubject(st),
			"has_series_multiplier": catalog.HasSeriesMultiplier(st),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"tiers":            tiers,
		"series_instances": catalog.SeriesInstances,
		"groups": gin.H{
			catalog.GroupOne:  catalog.SubjectsForGroup(catalog.GroupOne),
			catalog.GroupTwo:  catalog.SubjectsForGroup(catalog.GroupTwo),
			catalog.GroupBoth: catalog.SubjectsForGroup(catalog.GroupBoth),
		},
		"price_table": DefaultPriceTable(),
	})
}

// quote prices a selection. A zero quote is a valid response (empty or
// invalid selection), mirroring the pure Price function.
func (h *Handler) quote(c *gin.Context) {
	var sel Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	c.JSON(http.StatusOK, Price(sel))
}
