package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultPageSize       = 100
	defaultRequestTimeout = 30 * time.Second
)

// Location is an upstream monitoring station with the sensors it hosts.
type Location struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Country Country  `json:"country"`
	Sensors []Sensor `json:"sensors"`
}

// Country groups upstream locations geographically.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Sensor reports one parameter at a location.
type Sensor struct {
	ID        int64     `json:"id"`
	Parameter Parameter `json:"parameter"`
}

// Parameter identifies a measurable quantity and its unit.
type Parameter struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Units string `json:"units"`
}

// Record is one upstream measurement.
type Record struct {
	ID         int64     `json:"id"`
	LocationID int64     `json:"locationId"`
	SensorID   int64     `json:"sensorId"`
	Parameter  Parameter `json:"parameter"`
	Value      *float64  `json:"value"`
	Datetime   Datetime  `json:"datetime"`
}

// Datetime carries the upstream UTC timestamp.
type Datetime struct {
	UTC time.Time `json:"utc"`
}

type page[T any] struct {
	Meta struct {
		Found int `json:"found"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	} `json:"meta"`
	Results []T `json:"results"`
}

// Client is a paginated HTTP client for the upstream air quality API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a client for the upstream API. apiKey may be empty for
// unauthenticated sources.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: defaultPageSize,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// WithPageSize overrides the page size used when walking paginated
// responses.
func (c *Client) WithPageSize(size int) *Client {
	c.pageSize = size

	return c
}

// Locations fetches every upstream location, walking pages until the API runs
// out of results.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	return fetchAll[Location](ctx, c, "/v3/locations", nil)
}

// Measurements fetches the location's measurements taken at or after since.
// A zero since fetches everything the upstream retains.
func (c *Client) Measurements(ctx context.Context, locationID int64, since time.Time) ([]Record, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("datetime_from", since.UTC().Format(time.RFC3339))
	}

	path := fmt.Sprintf("/v3/locations/%d/measurements", locationID)

	return fetchAll[Record](ctx, c, path, query)
}

func fetchAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T

	for pageNum := 1; ; pageNum++ {
		result, err := fetchPage[T](ctx, c, path, query, pageNum)
		if err != nil {
			return nil, err
		}

		all = append(all, result.Results...)

		if len(result.Results) < c.pageSize {
			return all, nil
		}
	}
}

func fetchPage[T any](ctx context.Context, c *Client, path string, query url.Values, pageNum int) (*page[T], error) {
	q := url.Values{}
	for key, values := range query {
		q[key] = values
	}

	q.Set("page", strconv.Itoa(pageNum))
	q.Set("limit", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, path)
	}

	var result page[T]

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}

	return &result, nil
}
