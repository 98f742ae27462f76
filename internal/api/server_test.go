package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/internal/ml/pricing"
	"optibooking/internal/services/forecast"
	"optibooking/internal/services/ingestion"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

type fakeForecaster struct {
	mu        sync.Mutex
	lastReq   forecast.Request
	out       []forecast.DailyForecast
	err       error
	inventory forecast.RoomInventory
	model     *pricing.Model
}

func (f *fakeForecaster) Predict(_ context.Context, req forecast.Request) ([]forecast.DailyForecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.out, f.err
}

func (f *fakeForecaster) SetRoomInventory(inv map[string]int) error {
	for k, v := range inv {
		if v < 0 {
			return errors.NewValidationError("total_rooms", "must not be negative", k)
		}
	}
	f.inventory = inv
	return nil
}

func (f *fakeForecaster) RoomInventory() forecast.RoomInventory { return f.inventory }
func (f *fakeForecaster) ListRoomTypes() []string               { return []string{"Deluxe", "Standard"} }
func (f *fakeForecaster) CurrentModel() *pricing.Model          { return f.model }
func (f *fakeForecaster) IsPredicting() bool                    { return false }

type fakePipeline struct {
	submitted  []ingestion.Upload
	submitErr  error
	processing bool
	jobs       map[uuid.UUID]ingestion.Job
	last       *ingestion.Job
}

func (p *fakePipeline) Submit(_ context.Context, up ingestion.Upload) (ingestion.Job, error) {
	if p.submitErr != nil {
		return ingestion.Job{}, p.submitErr
	}
	p.submitted = append(p.submitted, up)
	return ingestion.Job{ID: uuid.New(), Kind: ingestion.KindUpload, Status: ingestion.StatusQueued, Filename: up.Filename}, nil
}

func (p *fakePipeline) SubmitRetrain(context.Context) (ingestion.Job, error) {
	if p.submitErr != nil {
		return ingestion.Job{}, p.submitErr
	}
	return ingestion.Job{ID: uuid.New(), Kind: ingestion.KindRetrain, Status: ingestion.StatusQueued}, nil
}

func (p *fakePipeline) IsProcessing() bool { return p.processing }

func (p *fakePipeline) Job(id uuid.UUID) (ingestion.Job, error) {
	if j, ok := p.jobs[id]; ok {
		return j, nil
	}
	return ingestion.Job{}, errors.Wrapf(errors.ErrNotFound, "job %s", id)
}

func (p *fakePipeline) LastJob() (ingestion.Job, bool) {
	if p.last == nil {
		return ingestion.Job{}, false
	}
	return *p.last, true
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiErr         `json:"error"`
}

func newTestEngine(f *fakeForecaster, p *fakePipeline, cfg ServerConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return newEngine(cfg, Deps{Forecaster: f, Pipeline: p}, logger.Nop())
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var body response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestPredict(t *testing.T) {
	day := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	version := uuid.New()
	f := &fakeForecaster{
		out: []forecast.DailyForecast{
			{Date: day, Price: 120.5, Baseline: 110, HistoricalOccupancy: 0.6, ExpectedOccupancy: 0.8, ModelVersion: version.String()},
			{Date: day.AddDate(0, 0, 1), Price: 125, Baseline: 112, HistoricalOccupancy: 0.6, ExpectedOccupancy: 0.8, ModelVersion: version.String()},
		},
		// a retrain finished after the forecasts were computed
		model: &pricing.Model{Version: uuid.New()},
	}
	r := newTestEngine(f, &fakePipeline{}, ServerConfig{})

	rec, body := do(t, r, jsonRequest(http.MethodPost, "/api/v1/predictions",
		`{"start_date":"2025-07-01","end_date":"2025-07-02","room_type":"Standard","persons":2,"occupancy_rate":80}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	var got predictionResponse
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, []float64{120.5, 125}, got.Prices)
	require.Len(t, got.Forecasts, 2)
	assert.Equal(t, "2025-07-01", got.Forecasts[0].Date)
	assert.Equal(t, version.String(), got.ModelVersion)

	require.NotNil(t, f.lastReq.ExpectedOccupancy)
	assert.Equal(t, 80.0, *f.lastReq.ExpectedOccupancy)
	assert.Equal(t, day, f.lastReq.Start)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed date",
			body:     `{"start_date":"01/07/2025","end_date":"2025-07-02","room_type":"Standard","persons":2}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
		{
			name:     "inverted range",
			body:     `{"start_date":"2025-07-05","end_date":"2025-07-01","room_type":"Standard","persons":2}`,
			err:      errors.Wrap(errors.ErrInvalidRange, "2025-07-05 to 2025-07-01"),
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_range",
		},
		{
			name:     "range too long",
			body:     `{"start_date":"2025-01-01","end_date":"2026-12-31","room_type":"Standard","persons":2}`,
			err:      errors.NewValidationError("end_date", "range must not exceed 366 days", 730),
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
		{
			name:     "no model",
			body:     `{"start_date":"2025-07-01","end_date":"2025-07-01","room_type":"Standard","persons":2}`,
			err:      errors.Wrap(errors.ErrModelUnavailable, "no stays"),
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "model_unavailable",
		},
		{
			name:     "unexpected failure",
			body:     `{"start_date":"2025-07-01","end_date":"2025-07-01","room_type":"Standard","persons":2}`,
			err:      errors.New("disk on fire"),
			wantCode: http.StatusInternalServerError,
			wantErr:  "internal",
		},
		{
			name:     "not json",
			body:     `{`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestEngine(&fakeForecaster{err: tt.err}, &fakePipeline{}, ServerConfig{})
			rec, body := do(t, r, jsonRequest(http.MethodPost, "/api/v1/predictions", tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantErr, body.Error.Code)
		})
	}
}

func TestUpload(t *testing.T) {
	p := &fakePipeline{}
	r := newTestEngine(&fakeForecaster{}, p, ServerConfig{})

	rec, body := do(t, r, multipartRequest(t, "stays.csv", []byte("header\n")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, body.Success)

	require.Len(t, p.submitted, 1)
	assert.Equal(t, ingestion.FormatCSV, p.submitted[0].Format)
	assert.Equal(t, "header\n", string(p.submitted[0].Data))
}

func TestUpload_Rejections(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		r := newTestEngine(&fakeForecaster{}, &fakePipeline{}, ServerConfig{})
		rec, _ := do(t, r, multipartRequest(t, "stays.txt", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		r := newTestEngine(&fakeForecaster{}, &fakePipeline{}, ServerConfig{})
		rec, _ := do(t, r, jsonRequest(http.MethodPost, "/api/v1/uploads", `{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("queue full", func(t *testing.T) {
		p := &fakePipeline{submitErr: errors.Wrap(errors.ErrIngestionBusy, "1 jobs already queued")}
		r := newTestEngine(&fakeForecaster{}, p, ServerConfig{})
		rec, body := do(t, r, multipartRequest(t, "stays.csv", []byte("x")))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ingestion_busy", body.Error.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		r := newTestEngine(&fakeForecaster{}, &fakePipeline{}, ServerConfig{UploadRateLimit: 0.001, UploadBurst: 1})
		rec, _ := do(t, r, multipartRequest(t, "stays.csv", []byte("x")))
		assert.Equal(t, http.StatusAccepted, rec.Code)
		rec, body := do(t, r, multipartRequest(t, "stays.csv", []byte("x")))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "rate_limited", body.Error.Code)
	})
}

func TestUploadStatus(t *testing.T) {
	last := ingestion.Job{ID: uuid.New(), Status: ingestion.StatusRunning}
	p := &fakePipeline{processing: true, last: &last}
	r := newTestEngine(&fakeForecaster{}, p, ServerConfig{})

	rec, body := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "Processing", got.Status)
	assert.True(t, got.IsProcessing)
	require.NotNil(t, got.LastJob)
	assert.Equal(t, last.ID, got.LastJob.ID)

	p.processing = false
	_, body = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/status", nil))
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "Processed", got.Status)
}

func TestJobLookup(t *testing.T) {
	known := ingestion.Job{ID: uuid.New(), Status: ingestion.StatusCompleted}
	r := newTestEngine(&fakeForecaster{}, &fakePipeline{jobs: map[uuid.UUID]ingestion.Job{known.ID: known}}, ServerConfig{})

	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+known.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRooms(t *testing.T) {
	f := &fakeForecaster{}
	r := newTestEngine(f, &fakePipeline{}, ServerConfig{})

	rec, _ := do(t, r, jsonRequest(http.MethodPut, "/api/v1/rooms", `{"Standard":10,"Deluxe":4}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, f.inventory["Standard"])

	rec, body := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var inv map[string]int
	require.NoError(t, json.Unmarshal(body.Data, &inv))
	assert.Equal(t, map[string]int{"Standard": 10, "Deluxe": 4}, inv)

	rec, _ = do(t, r, jsonRequest(http.MethodPut, "/api/v1/rooms", `{"Standard":-1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/room-types", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Deluxe","Standard"]`, string(body.Data))
}

func TestModelEndpoints(t *testing.T) {
	f := &fakeForecaster{}
	r := newTestEngine(f, &fakePipeline{}, ServerConfig{})

	rec, body := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/model", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "model_unavailable", body.Error.Code)

	rec, body = do(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/model/train", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job ingestion.Job
	require.NoError(t, json.Unmarshal(body.Data, &job))
	assert.Equal(t, ingestion.KindRetrain, job.Kind)
}

func TestRoot(t *testing.T) {
	r := newTestEngine(&fakeForecaster{}, &fakePipeline{}, ServerConfig{ServiceName: "optibooking", Version: "test"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"service":"optibooking","version":"test","status":"running"}`, rec.Body.String())
}
