package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/parse"
	"campus-occupancy-backend/internal/store"
)

// GetOccupancy handles GET /api/locations/:id/occupancy.
func (h *Handler) GetOccupancy(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}

	rec, err := h.store.GetOccupancy(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortWithMessage(c, http.StatusNotFound, "No occupancy data for this location")
		} else {
			internalError(c, err, "Failed to retrieve occupancy")
		}
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateOccupancy handles POST /api/locations/:id/occupancy. It creates the
// location's record on first use and merges the supplied fields afterwards.
func (h *Handler) UpdateOccupancy(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}

	var req contract.OccupancyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := contract.Validate(req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	patch := store.OccupancyPatch{Percentage: req.Percentage}
	if req.Level != nil {
		level, err := parse.ParseLevel(*req.Level)
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, "level must be one of low, moderate, high, critical")
			return
		}
		patch.Level = &level
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetLocation(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortWithMessage(c, http.StatusNotFound, "Location not found")
		} else {
			internalError(c, err, "Failed to retrieve location")
		}
		return
	}

	rec, err := h.store.UpdateOccupancy(ctx, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrIncompleteOccupancy) {
			abortWithMessage(c, http.StatusBadRequest, err.Error())
		} else {
			internalError(c, err, "Failed to update occupancy")
		}
		return
	}
	c.JSON(http.StatusOK, rec)
}
