package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"optibooking/internal/domain/stay"
	"optibooking/internal/ml/pricing"
	"optibooking/internal/services/forecast"
	"optibooking/internal/services/ingestion"
	"optibooking/pkg/errors"
)

// Forecaster is the forecast service surface the API needs
type Forecaster interface {
	Predict(ctx context.Context, req forecast.Request) ([]forecast.DailyForecast, error)
	SetRoomInventory(inv map[string]int) error
	RoomInventory() forecast.RoomInventory
	ListRoomTypes() []string
	CurrentModel() *pricing.Model
	IsPredicting() bool
}

// Pipeline is the ingestion surface the API needs
type Pipeline interface {
	Submit(ctx context.Context, up ingestion.Upload) (ingestion.Job, error)
	SubmitRetrain(ctx context.Context) (ingestion.Job, error)
	IsProcessing() bool
	Job(id uuid.UUID) (ingestion.Job, error)
	LastJob() (ingestion.Job, bool)
}

type handlers struct {
	forecaster     Forecaster
	pipeline       Pipeline
	maxUploadBytes int64
}

func (h *handlers) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, errors.NewValidationError("file", "exceeds upload limit", tooLarge.Limit))
			return
		}
		fail(c, errors.NewValidationError("file", "multipart field is required", nil))
		return
	}

	format, err := ingestion.DetectFormat(fh.Filename)
	if err != nil {
		fail(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, errors.Wrap(err, "open upload"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, errors.Wrap(err, "read upload"))
		return
	}

	job, err := h.pipeline.Submit(c.Request.Context(), ingestion.Upload{
		Filename: fh.Filename,
		Format:   format,
		Data:     data,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, job)
}

type statusResponse struct {
	Status       string         `json:"status"`
	IsProcessing bool           `json:"is_processing"`
	IsPredicting bool           `json:"is_predicting"`
	LastJob      *ingestion.Job `json:"last_job,omitempty"`
}

func (h *handlers) uploadStatus(c *gin.Context) {
	resp := statusResponse{
		Status:       "Processed",
		IsProcessing: h.pipeline.IsProcessing(),
		IsPredicting: h.forecaster.IsPredicting(),
	}
	if resp.IsProcessing {
		resp.Status = "Processing"
	}
	if job, found := h.pipeline.LastJob(); found {
		resp.LastJob = &job
	}
	ok(c, http.StatusOK, resp)
}

func (h *handlers) job(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, errors.NewValidationError("id", "must be a UUID", c.Param("id")))
		return
	}
	job, err := h.pipeline.Job(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, job)
}

func (h *handlers) putRooms(c *gin.Context) {
	var inv map[string]int
	if err := c.ShouldBindJSON(&inv); err != nil {
		fail(c, errors.NewValidationError("body", "must be an object of room type to room count", err.Error()))
		return
	}
	if err := h.forecaster.SetRoomInventory(inv); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, h.forecaster.RoomInventory())
}

func (h *handlers) getRooms(c *gin.Context) {
	inv := h.forecaster.RoomInventory()
	if inv == nil {
		inv = forecast.RoomInventory{}
	}
	ok(c, http.StatusOK, inv)
}

func (h *handlers) roomTypes(c *gin.Context) {
	types := h.forecaster.ListRoomTypes()
	if types == nil {
		types = []string{}
	}
	ok(c, http.StatusOK, types)
}

type predictionRequest struct {
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	RoomType      string   `json:"room_type"`
	Persons       int      `json:"persons"`
	OccupancyRate *float64 `json:"occupancy_rate"`
}

type dailyForecast struct {
	Date                string  `json:"date"`
	Price               float64 `json:"price"`
	Baseline            float64 `json:"baseline"`
	HistoricalOccupancy float64 `json:"historical_occupancy"`
	ExpectedOccupancy   float64 `json:"expected_occupancy"`
}

type predictionResponse struct {
	RoomType     string          `json:"room_type"`
	Persons      int             `json:"persons"`
	ModelVersion string          `json:"model_version,omitempty"`
	Forecasts    []dailyForecast `json:"forecasts"`
	Prices       []float64       `json:"prices"`
}

func (h *handlers) predict(c *gin.Context) {
	var body predictionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, errors.NewValidationError("body", "malformed JSON", err.Error()))
		return
	}

	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		fail(c, err)
		return
	}
	end, err := parseDate("end_date", body.EndDate)
	if err != nil {
		fail(c, err)
		return
	}

	forecasts, err := h.forecaster.Predict(c.Request.Context(), forecast.Request{
		Start:             start,
		End:               end,
		RoomType:          body.RoomType,
		Persons:           body.Persons,
		ExpectedOccupancy: body.OccupancyRate,
	})
	if err != nil {
		fail(c, err)
		return
	}

	resp := predictionResponse{
		RoomType:  strings.TrimSpace(body.RoomType),
		Persons:   body.Persons,
		Forecasts: make([]dailyForecast, len(forecasts)),
		Prices:    forecast.Prices(forecasts),
	}
	if len(forecasts) > 0 {
		resp.ModelVersion = forecasts[0].ModelVersion
	}
	for i, f := range forecasts {
		resp.Forecasts[i] = dailyForecast{
			Date:                f.Date.Format(stay.DateLayout),
			Price:               f.Price,
			Baseline:            f.Baseline,
			HistoricalOccupancy: f.HistoricalOccupancy,
			ExpectedOccupancy:   f.ExpectedOccupancy,
		}
	}
	ok(c, http.StatusOK, resp)
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(stay.DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, "must be a YYYY-MM-DD date", v)
	}
	return t, nil
}

func (h *handlers) train(c *gin.Context) {
	job, err := h.pipeline.SubmitRetrain(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, job)
}

type modelResponse struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	Samples   int       `json:"samples"`
	OOBRMSE   float64   `json:"oob_rmse"`
	Trees     int       `json:"trees"`
	Schema    []string  `json:"schema"`
}

func (h *handlers) model(c *gin.Context) {
	m := h.forecaster.CurrentModel()
	if m == nil {
		fail(c, errors.Wrap(errors.ErrModelUnavailable, "no model has been trained"))
		return
	}
	ok(c, http.StatusOK, modelResponse{
		Version:   m.Version.String(),
		TrainedAt: m.TrainedAt,
		Samples:   m.Samples,
		OOBRMSE:   m.OOBRMSE,
		Trees:     m.Trees(),
		Schema:    m.Schema,
	})
}
