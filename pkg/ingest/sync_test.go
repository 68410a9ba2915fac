package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/aqwatch/aqwatch/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

type fakeUpstream struct {
	locations    []Location
	measurements map[int64][]Record
	requests     []string
}

func (u *fakeUpstream) handler(t *testing.T) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		u.requests = append(u.requests, r.URL.String())

		pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		require.Positive(t, pageNum)
		require.Positive(t, limit)

		w.Header().Set("Content-Type", "application/json")

		var locationID int64
		if n, err := fmt.Sscanf(r.URL.Path, "/v3/locations/%d/measurements", &locationID); n == 1 && err == nil {
			writePage(t, w, paginate(u.measurements[locationID], pageNum, limit))

			return
		}

		require.Equal(t, "/v3/locations", r.URL.Path)
		writePage(t, w, paginate(u.locations, pageNum, limit))
	}
}

func paginate[T any](items []T, pageNum, limit int) []T {
	start := (pageNum - 1) * limit
	if start >= len(items) {
		return nil
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	return items[start:end]
}

func writePage[T any](t *testing.T, w http.ResponseWriter, results []T) {
	t.Helper()

	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"meta":    map[string]any{"found": len(results)},
		"results": results,
	}))
}

func newSyncFixture(t *testing.T, upstream *fakeUpstream) (*Syncer, *file.Persistence) {
	t.Helper()

	server := httptest.NewServer(upstream.handler(t))
	t.Cleanup(server.Close)

	store := file.NewPersistence(t.TempDir())
	client := NewClient(server.URL, "").WithPageSize(2)

	return NewSyncer(client, store, slog.New(slog.DiscardHandler)), store
}

func pm25() Parameter {
	return Parameter{Code: "pm25", Name: "PM2.5", Units: "µg/m³"}
}

func TestSyncer_FullPass(t *testing.T) {
	t.Parallel()

	measuredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	upstream := &fakeUpstream{
		locations: []Location{
			{
				ID:      10,
				Name:    "Jamsil Station",
				Country: Country{Code: "KR", Name: "South Korea"},
				Sensors: []Sensor{{ID: 100, Parameter: pm25()}},
			},
		},
		measurements: map[int64][]Record{
			10: {
				{ID: 1, LocationID: 10, SensorID: 100, Parameter: pm25(), Value: f(42), Datetime: Datetime{UTC: measuredAt}},
				{ID: 2, LocationID: 10, SensorID: 100, Parameter: pm25(), Value: nil, Datetime: Datetime{UTC: measuredAt.Add(time.Hour)}},
			},
		},
	}

	syncer, store := newSyncFixture(t, upstream)

	stats, err := syncer.Sync(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Regions)
	assert.Equal(t, 1, stats.Sites)
	assert.Equal(t, 1, stats.Pollutants)
	assert.Equal(t, 2, stats.Measurements)
	assert.Equal(t, 0, stats.Skipped)

	site, err := store.ReferenceRepository().SiteByExternalID(t.Context(), "10")
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, "Jamsil Station", site.Name)

	pollutant, err := store.ReferenceRepository().PollutantByExternalID(t.Context(), "pm25")
	require.NoError(t, err)
	require.NotNil(t, pollutant)
	assert.Equal(t, "µg/m³", pollutant.Unit)

	measurements, err := store.MeasurementRepository().Measurements(t.Context())
	require.NoError(t, err)
	require.Len(t, measurements, 2)

	// Newest first; the value-less record is stored but carries no value.
	assert.False(t, measurements[0].HasValue())
	assert.True(t, measurements[1].HasValue())
	assert.Equal(t, site.ID, measurements[1].SiteID)
	assert.Equal(t, pollutant.ID, measurements[1].PollutantID)
}

func TestSyncer_Idempotent(t *testing.T) {
	t.Parallel()

	measuredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	upstream := &fakeUpstream{
		locations: []Location{
			{ID: 10, Name: "Jamsil Station", Country: Country{Code: "KR", Name: "South Korea"}, Sensors: []Sensor{{ID: 100, Parameter: pm25()}}},
		},
		measurements: map[int64][]Record{
			10: {{ID: 1, LocationID: 10, SensorID: 100, Parameter: pm25(), Value: f(42), Datetime: Datetime{UTC: measuredAt}}},
		},
	}

	syncer, store := newSyncFixture(t, upstream)

	_, err := syncer.Sync(t.Context())
	require.NoError(t, err)
	_, err = syncer.Sync(t.Context())
	require.NoError(t, err)

	sites, err := store.ReferenceRepository().Sites(t.Context())
	require.NoError(t, err)
	assert.Len(t, sites, 1)

	measurements, err := store.MeasurementRepository().Measurements(t.Context())
	require.NoError(t, err)
	assert.Len(t, measurements, 1)
}

func TestSyncer_IncrementalWindow(t *testing.T) {
	t.Parallel()

	measuredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	upstream := &fakeUpstream{
		locations: []Location{
			{ID: 10, Name: "Jamsil Station", Country: Country{Code: "KR", Name: "South Korea"}, Sensors: []Sensor{{ID: 100, Parameter: pm25()}}},
		},
		measurements: map[int64][]Record{
			10: {{ID: 1, LocationID: 10, SensorID: 100, Parameter: pm25(), Value: f(42), Datetime: Datetime{UTC: measuredAt}}},
		},
	}

	syncer, _ := newSyncFixture(t, upstream)

	_, err := syncer.Sync(t.Context())
	require.NoError(t, err)

	upstream.requests = nil

	_, err = syncer.Sync(t.Context())
	require.NoError(t, err)

	var sawSince bool

	for _, raw := range upstream.requests {
		if containsQueryParam(t, raw, "datetime_from", measuredAt.Format(time.RFC3339)) {
			sawSince = true
		}
	}

	assert.True(t, sawSince, "second pass should request measurements from the stored high-water mark")
}

func containsQueryParam(t *testing.T, rawURL, key, want string) bool {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)

	return req.URL.Query().Get(key) == want
}

func TestSyncer_Pagination(t *testing.T) {
	t.Parallel()

	measuredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	records := make([]Record, 5)
	for i := range records {
		records[i] = Record{
			ID:         int64(i + 1),
			LocationID: 10,
			SensorID:   100,
			Parameter:  pm25(),
			Value:      f(float64(20 + i)),
			Datetime:   Datetime{UTC: measuredAt.Add(time.Duration(i) * time.Minute)},
		}
	}

	upstream := &fakeUpstream{
		locations: []Location{
			{ID: 10, Name: "Jamsil Station", Country: Country{Code: "KR", Name: "South Korea"}, Sensors: []Sensor{{ID: 100, Parameter: pm25()}}},
		},
		measurements: map[int64][]Record{10: records},
	}

	syncer, store := newSyncFixture(t, upstream)

	stats, err := syncer.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Measurements)

	measurements, err := store.MeasurementRepository().Measurements(t.Context())
	require.NoError(t, err)
	assert.Len(t, measurements, 5)
}

func TestSyncer_UndeclaredParameterRegistered(t *testing.T) {
	t.Parallel()

	measuredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	no2 := Parameter{Code: "no2", Name: "NO₂", Units: "ppm"}

	upstream := &fakeUpstream{
		locations: []Location{
			{ID: 10, Name: "Jamsil Station", Country: Country{Code: "KR", Name: "South Korea"}, Sensors: []Sensor{{ID: 100, Parameter: pm25()}}},
		},
		measurements: map[int64][]Record{
			10: {{ID: 1, LocationID: 10, SensorID: 200, Parameter: no2, Value: f(0.03), Datetime: Datetime{UTC: measuredAt}}},
		},
	}

	syncer, store := newSyncFixture(t, upstream)

	_, err := syncer.Sync(t.Context())
	require.NoError(t, err)

	pollutant, err := store.ReferenceRepository().PollutantByExternalID(t.Context(), "no2")
	require.NoError(t, err)
	require.NotNil(t, pollutant)
	assert.Equal(t, "ppm", pollutant.Unit)
}

func TestSyncer_UpstreamErrorPropagates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	store := file.NewPersistence(t.TempDir())
	syncer := NewSyncer(NewClient(server.URL, ""), store, slog.New(slog.DiscardHandler))

	_, err := syncer.Sync(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestValidateMeasurementPayload(t *testing.T) {
	t.Parallel()

	valid := map[string]any{
		"external_id":           "m-1",
		"site_external_id":      "10",
		"pollutant_external_id": "pm25",
		"measured_at":           "2025-06-01T12:00:00Z",
		"value":                 42.0,
		"unit":                  "µg/m³",
	}
	require.NoError(t, ValidateMeasurementPayload(valid))

	// Nullable value.
	valid["value"] = nil
	require.NoError(t, ValidateMeasurementPayload(valid))

	missing := map[string]any{
		"external_id": "m-1",
		"measured_at": "2025-06-01T12:00:00Z",
	}
	require.Error(t, ValidateMeasurementPayload(missing))

	unknown := map[string]any{
		"external_id":           "m-1",
		"site_external_id":      "10",
		"pollutant_external_id": "pm25",
		"measured_at":           "2025-06-01T12:00:00Z",
		"extra":                 true,
	}
	require.Error(t, ValidateMeasurementPayload(unknown))

	badValue := map[string]any{
		"external_id":           "m-1",
		"site_external_id":      "10",
		"pollutant_external_id": "pm25",
		"measured_at":           "2025-06-01T12:00:00Z",
		"value":                 "forty-two",
	}
	require.Error(t, ValidateMeasurementPayload(badValue))
}
