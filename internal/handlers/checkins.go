package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fugboizz/hanet-attendance-api/internal/models"
	"github.com/fugboizz/hanet-attendance-api/internal/services"
	"github.com/fugboizz/hanet-attendance-api/pkg/hanet"
)

// RegisterTenantHandlers mounts one tenant's routes under its prefix
// ("" for the default brand). Every tenant serves the same four operations
// against its own credentials.
func RegisterTenantHandlers(r *gin.Engine, prefix string, service *services.CheckinService, logger zerolog.Logger, requestTimeout time.Duration) {
	handler := &tenantHandler{
		service: service,
		logger:  logger.With().Str("handler", "tenant").Str("prefix", prefix).Logger(),
		timeout: requestTimeout,
	}

	group := r.Group(prefix)
	{
		group.GET("/place", handler.listPlaces)
		group.GET("/device", handler.listDevices)
		group.GET("/checkins", handler.getCheckins)
		group.GET("/people", handler.getTodayPeople)
	}
}

type tenantHandler struct {
	service *services.CheckinService
	logger  zerolog.Logger
	timeout time.Duration
}

func (h *tenantHandler) listPlaces(c *gin.Context) {
	places, err := h.service.GetPlaces(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if places == nil {
		places = []models.Place{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": places})
}

func (h *tenantHandler) listDevices(c *gin.Context) {
	placeID := c.Query("placeId")
	if placeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Missing required parameter: placeId",
		})
		return
	}

	devices, err := h.service.GetDevices(c.Request.Context(), placeID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": devices})
}

// getCheckins validates the query, runs the aggregation pipeline under an
// overall deadline and returns the summaries as a bare JSON array.
func (h *tenantHandler) getCheckins(c *gin.Context) {
	placeID := c.Query("placeId")
	if placeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Missing required parameter: placeId",
		})
		return
	}
	for _, param := range []string{"dateFrom", "dateTo"} {
		if c.Query(param) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Missing required parameter: " + param,
			})
			return
		}
	}

	from, errFrom := strconv.ParseInt(c.Query("dateFrom"), 10, 64)
	to, errTo := strconv.ParseInt(c.Query("dateTo"), 10, 64)
	if errFrom != nil || errTo != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "dateFrom and dateTo must be valid millisecond timestamps",
		})
		return
	}
	if from > to {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "dateFrom must not be later than dateTo",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	summaries, err := h.service.GetCheckins(ctx, placeID, from, to, c.Query("devices"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if summaries == nil {
		summaries = []models.PersonDaySummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *tenantHandler) getTodayPeople(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	people, err := h.service.GetTodaySnapshot(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if people == nil {
		people = []models.PersonDaySummary{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": people})
}

// writeError maps the upstream error taxonomy to HTTP statuses: auth 401,
// unknown place 404, upstream logical or transport failure 502, anything
// else 500.
func (h *tenantHandler) writeError(c *gin.Context, err error) {
	var (
		authErr      *hanet.AuthError
		apiErr       *hanet.APIError
		transportErr *hanet.TransportError
	)

	switch {
	case errors.As(err, &authErr):
		h.logger.Error().Err(err).Msg("upstream authentication failed")
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Authentication with HANET failed",
		})
	case errors.As(err, &apiErr) && apiErr.PlaceNotFound():
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Place not found",
		})
	case errors.As(err, &apiErr):
		h.logger.Error().Err(err).Msg("upstream logical error")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": "HANET API error while fetching data",
		})
	case errors.As(err, &transportErr):
		h.logger.Error().Err(err).Msg("upstream unreachable")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": "HANET API unreachable",
		})
	default:
		h.logger.Error().Err(err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Internal server error",
		})
	}
}
