package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/store"
)

// ListLocations handles GET /api/locations.
func (h *Handler) ListLocations(c *gin.Context) {
	locations, err := h.store.ListLocations(c.Request.Context())
	if err != nil {
		internalError(c, err, "Failed to retrieve locations")
		return
	}
	c.JSON(http.StatusOK, locations)
}

// GetLocation handles GET /api/locations/:id.
func (h *Handler) GetLocation(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}

	loc, err := h.store.GetLocation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortWithMessage(c, http.StatusNotFound, "Location not found")
		} else {
			internalError(c, err, "Failed to retrieve location")
		}
		return
	}
	c.JSON(http.StatusOK, loc)
}

// CreateLocation handles POST /api/locations.
func (h *Handler) CreateLocation(c *gin.Context) {
	var in contract.LocationInsert
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	loc, err := h.store.CreateLocation(c.Request.Context(), in)
	if err != nil {
		var verr *contract.ValidationError
		if errors.As(err, &verr) {
			abortWithMessage(c, http.StatusBadRequest, verr.Message)
		} else {
			internalError(c, err, "Failed to create location")
		}
		return
	}
	c.JSON(http.StatusCreated, loc)
}
