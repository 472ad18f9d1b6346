package deliveryfee

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yamb-labs/sokoni/internal/validation"
)

// Handler provides HTTP endpoints for fee quotes and country configs.
type Handler struct {
	service *Service
	config  *Config
}

// NewHandler creates a new delivery fee handler.
func NewHandler(service *Service, config *Config) *Handler {
	return &Handler{service: service, config: config}
}

// RegisterRoutes sets up public quote routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/delivery-fees/quote", h.QuoteFee)
}

// RegisterProtectedRoutes sets up protected (admin) config routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/delivery-configs/:country", h.GetConfig)
	r.PUT("/delivery-configs/:country", h.UpsertConfig)
}

// QuoteFee handles POST /v1/delivery-fees/quote
func (h *Handler) QuoteFee(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidCountry("country", req.Country),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrFastDisabled), errors.Is(err, ErrUnknownSpeed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "quote_rejected",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "quote_failed",
				"message": "Failed to compute delivery fee",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

// GetConfig handles GET /v1/delivery-configs/:country
func (h *Handler) GetConfig(c *gin.Context) {
	country := c.Param("country")
	if !validation.IsValidCountry(country) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_country",
			"message": "country must be a 2-letter code",
		})
		return
	}

	cfg, err := h.config.Get(c.Request.Context(), country)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "config_lookup_failed",
			"message": "Failed to look up config",
		})
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No overrides for this country",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// UpsertConfig handles PUT /v1/delivery-configs/:country
func (h *Handler) UpsertConfig(c *gin.Context) {
	country := c.Param("country")
	if !validation.IsValidCountry(country) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_country",
			"message": "country must be a 2-letter code",
		})
		return
	}

	var cfg CountryConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	cfg.Country = country

	if err := h.config.Upsert(c.Request.Context(), &cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "config_update_failed",
			"message": "Failed to store config",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}
