package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"optibooking/internal/bootstrap"
	"optibooking/internal/domain/stay"
	"optibooking/internal/services/forecast"
	"optibooking/internal/services/ingestion"
	"optibooking/pkg/errors"
)

// serveCmd runs the HTTP API with all background components
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, ingestion pipeline and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := bootstrap.NewContainer()
			c.MustInit()

			if err := c.Start(); err != nil {
				c.Shutdown()
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-quit:
				c.Log.Infow("Received shutdown signal", "signal", sig.String())
			case <-c.Context.Done():
				c.Log.Warn("Application context cancelled")
			}

			c.Shutdown()
			return nil
		},
	}
}

// importCmd loads a stays file and retrains, through the same pipeline as uploads
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a .csv or .xlsx stays export and retrain the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			format, err := ingestion.DetectFormat(path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}

			return runJob(cmd.Context(), func(ctx context.Context, p *ingestion.Pipeline) (ingestion.Job, error) {
				return p.Submit(ctx, ingestion.Upload{
					Filename: filepath.Base(path),
					Format:   format,
					Data:     data,
				})
			})
		},
	}
	return cmd
}

// trainCmd retrains on the stays already stored
func trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the model on all stored stays and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, p *ingestion.Pipeline) (ingestion.Job, error) {
				return p.SubmitRetrain(ctx)
			})
		},
	}
}

// runJob starts a pipeline, submits one job and blocks until it finishes
func runJob(ctx context.Context, submit func(context.Context, *ingestion.Pipeline) (ingestion.Job, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c := bootstrap.NewContainer()
	c.MustInitCore()
	defer c.Close()

	if err := c.Services.Forecast.Warmup(ctx); err != nil {
		return err
	}

	done := make(chan ingestion.Job, 1)
	c.Services.Pipeline.AddNotifier(ingestion.NotifierFunc(func(_ context.Context, job ingestion.Job) {
		if job.Done() {
			select {
			case done <- job:
			default:
			}
		}
	}))
	c.Services.Pipeline.Start(c.Context)
	defer func() { _ = c.Services.Pipeline.Stop(context.Background()) }()

	queued, err := submit(ctx, c.Services.Pipeline)
	if err != nil {
		return err
	}
	fmt.Printf("Job %s queued (%s)\n", queued.ID, queued.Kind)

	var job ingestion.Job
	select {
	case job = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if job.Status == ingestion.StatusFailed {
		return errors.Newf("job %s failed: %s", job.ID, job.Error)
	}

	if job.Kind == ingestion.KindUpload {
		fmt.Printf("Imported %s stays\n", humanize.Comma(int64(job.Rows)))
	}
	fmt.Printf("Model %s trained on %s samples, OOB RMSE %.2f, took %s\n",
		job.ModelVersion,
		humanize.Comma(int64(job.Samples)),
		job.OOBRMSE,
		job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond),
	)
	return nil
}

// predictCmd forecasts prices from the persisted model
func predictCmd() *cobra.Command {
	var (
		start, end string
		roomType   string
		persons    int
		occupancy  float64
		rooms      map[string]int
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast nightly prices for a date range",
		Example: `  optibooking predict --start 2025-07-01 --end 2025-07-07 --room-type Standard --persons 2
  optibooking predict --start 2025-12-24 --end 2025-12-26 --room-type Deluxe --persons 2 --occupancy 0.9 --rooms Deluxe=12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			from, err := time.Parse(stay.DateLayout, start)
			if err != nil {
				return errors.NewValidationError("start", "must be a YYYY-MM-DD date", start)
			}
			to, err := time.Parse(stay.DateLayout, end)
			if err != nil {
				return errors.NewValidationError("end", "must be a YYYY-MM-DD date", end)
			}

			c := bootstrap.NewContainer()
			c.MustInitCore()
			defer c.Close()

			if err := c.Services.Forecast.Warmup(ctx); err != nil {
				return err
			}
			if len(rooms) > 0 {
				if err := c.Services.Forecast.SetRoomInventory(rooms); err != nil {
					return err
				}
			}

			req := forecast.Request{Start: from, End: to, RoomType: roomType, Persons: persons}
			if cmd.Flags().Changed("occupancy") {
				req.ExpectedOccupancy = &occupancy
			}

			forecasts, err := c.Services.Forecast.Predict(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(forecasts)
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First night (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last night, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&roomType, "room-type", "", "Room type as it appears in the stays")
	cmd.Flags().IntVar(&persons, "persons", 2, "Party size")
	cmd.Flags().Float64Var(&occupancy, "occupancy", 0, "Expected occupancy as a fraction or percentage; estimated when omitted")
	cmd.Flags().StringToIntVar(&rooms, "rooms", nil, "Room inventory, e.g. Standard=20,Deluxe=8")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("room-type")

	return cmd
}
