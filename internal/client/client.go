// Package client is the consumer side of the occupancy API: typed HTTP
// calls that validate every response against the shared shapes, and a
// query cache that keeps views in sync by polling and invalidation.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/model"
)

// ErrNotFound matches a *FetchError carrying a 404.
var ErrNotFound = errors.New("not found")

// FetchError is returned for transport failures, non-success statuses and
// bodies that do not match the expected shape.
type FetchError struct {
	Op      contract.Operation
	Status  int // 0 when no response was received
	Message string
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *FetchError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client calls the occupancy API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the API rooted at baseURL. A nil httpClient
// means http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ListLocations fetches every location.
func (c *Client) ListLocations(ctx context.Context) ([]model.Location, error) {
	var locations []model.Location
	if err := c.do(ctx, contract.ListLocations, 0, nil, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// GetLocation fetches one location. A missing location is an error
// matching ErrNotFound.
func (c *Client) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	var loc model.Location
	if err := c.do(ctx, contract.GetLocation, id, nil, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// CreateLocation creates a location and returns it with its assigned id.
func (c *Client) CreateLocation(ctx context.Context, in contract.LocationInsert) (*model.Location, error) {
	var loc model.Location
	if err := c.do(ctx, contract.CreateLocation, 0, in, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetOccupancy fetches a location's occupancy. It returns nil, nil when the
// location has no data yet.
func (c *Client) GetOccupancy(ctx context.Context, locationID int64) (*model.Occupancy, error) {
	var rec model.Occupancy
	if err := c.do(ctx, contract.GetOccupancy, locationID, nil, &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateOccupancy writes a location's occupancy.
func (c *Client) UpdateOccupancy(ctx context.Context, locationID int64, update contract.OccupancyUpdate) (*model.Occupancy, error) {
	var rec model.Occupancy
	if err := c.do(ctx, contract.UpdateOccupancy, locationID, update, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, op contract.Operation, id int64, in, out any) error {
	route := contract.Routes[op]
	path := route.Path
	if id != 0 {
		path = contract.BuildURL(path, map[string]string{"id": strconv.FormatInt(id, 10)})
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &FetchError{Op: op, Message: fmt.Sprintf("failed to encode request: %v", err)}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, c.baseURL+path, body)
	if err != nil {
		return &FetchError{Op: op, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Op: op, Message: fmt.Sprintf("http request failed: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("failed to read response body: %v", err)}
	}

	if resp.StatusCode != route.Success {
		message := http.StatusText(resp.StatusCode)
		var errBody contract.ErrorResponse
		if json.Unmarshal(data, &errBody) == nil && errBody.Message != "" {
			message = errBody.Message
		}
		return &FetchError{Op: op, Status: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("malformed response body: %v", err)}
	}
	if err := validateResponse(out); err != nil {
		return &FetchError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("unexpected response shape: %v", err)}
	}
	return nil
}

func validateResponse(out any) error {
	switch v := out.(type) {
	case *[]model.Location:
		if *v == nil {
			return errors.New("expected an array")
		}
		for i := range *v {
			if err := contract.Validate((*v)[i]); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	default:
		return contract.Validate(out)
	}
}
