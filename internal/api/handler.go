package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store store.Store
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store) *Handler {
	return &Handler{store: s}
}

// locationID parses the :id path parameter, writing a 400 when it is not a
// positive integer.
func locationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithMessage(c, http.StatusBadRequest, "Invalid location ID")
		return 0, false
	}
	return id, true
}

func abortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, contract.ErrorResponse{Message: message})
}

func internalError(c *gin.Context, err error, message string) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	_ = c.Error(err)
	abortWithMessage(c, http.StatusInternalServerError, message)
}
