// Package contract is the HTTP surface shared by the server and the
// client: one route table, the request shapes and their validation.
package contract

import (
	"net/http"
	"strings"
)

// Operation names one API call.
type Operation string

const (
	ListLocations   Operation = "locations.list"
	GetLocation     Operation = "locations.get"
	CreateLocation  Operation = "locations.create"
	GetOccupancy    Operation = "occupancy.get"
	UpdateOccupancy Operation = "occupancy.update"
)

// Route describes how an operation is exposed over HTTP.
type Route struct {
	Method string
	Path   string
	// Success is the status code of a successful response.
	Success int
	// Failures lists the non-success statuses the operation documents.
	Failures []int
}

// Routes is the route table. Both the router and the client read method and
// path from here.
var Routes = map[Operation]Route{
	ListLocations: {
		Method:  http.MethodGet,
		Path:    "/api/locations",
		Success: http.StatusOK,
	},
	GetLocation: {
		Method:   http.MethodGet,
		Path:     "/api/locations/:id",
		Success:  http.StatusOK,
		Failures: []int{http.StatusBadRequest, http.StatusNotFound},
	},
	CreateLocation: {
		Method:   http.MethodPost,
		Path:     "/api/locations",
		Success:  http.StatusCreated,
		Failures: []int{http.StatusBadRequest},
	},
	GetOccupancy: {
		Method:   http.MethodGet,
		Path:     "/api/locations/:id/occupancy",
		Success:  http.StatusOK,
		Failures: []int{http.StatusBadRequest, http.StatusNotFound},
	},
	UpdateOccupancy: {
		Method:   http.MethodPost,
		Path:     "/api/locations/:id/occupancy",
		Success:  http.StatusOK,
		Failures: []int{http.StatusBadRequest, http.StatusNotFound},
	},
}

// BuildURL substitutes ":name" segments of path with the given values.
// Parameters that do not appear in path are ignored.
func BuildURL(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		if v, ok := params[seg[1:]]; ok {
			segments[i] = v
		}
	}
	return strings.Join(segments, "/")
}

// ErrorResponse is the body of every non-success response.
type ErrorResponse struct {
	Message string `json:"message"`
}
