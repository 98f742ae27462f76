package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"optibooking/internal/bootstrap"
	"optibooking/internal/domain/stay"
	"optibooking/internal/seeds"
	"optibooking/pkg/logger"
)

func main() {
	defaults := seeds.DefaultConfig()

	out := flag.String("out", "", "Write stays to this .csv or .xlsx file")
	insert := flag.Bool("insert", false, "Insert stays into the configured stay store")
	count := flag.Int("stays", defaults.Stays, "Number of stays to generate")
	seed := flag.Uint64("seed", defaults.Seed, "Random seed")
	from := flag.String("from", defaults.From.Format(stay.DateLayout), "First check-in date")
	to := flag.String("to", defaults.To.Format(stay.DateLayout), "Last check-in date")
	flag.Parse()

	if err := logger.Init("info", "development"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	defer func() { _ = logger.Sync() }()

	if *out == "" && !*insert {
		log.Fatal("Nothing to do: pass -out and/or -insert")
	}

	cfg := defaults
	cfg.Stays = *count
	cfg.Seed = *seed
	var err error
	if cfg.From, err = time.Parse(stay.DateLayout, *from); err != nil {
		log.Fatalf("Invalid -from: %v", err)
	}
	if cfg.To, err = time.Parse(stay.DateLayout, *to); err != nil {
		log.Fatalf("Invalid -to: %v", err)
	}

	records := seeds.Generate(cfg)
	log.Infow("Generated stays", "count", humanize.Comma(int64(len(records))), "from", *from, "to", *to, "seed", cfg.Seed)

	if *out != "" {
		if err := writeFile(*out, records); err != nil {
			log.Fatalf("Failed to write %s: %v", *out, err)
		}
		info, _ := os.Stat(*out)
		size := int64(0)
		if info != nil {
			size = info.Size()
		}
		log.Infow("Stays written", "file", *out, "size", humanize.Bytes(uint64(size)))
	}

	if *insert {
		c := bootstrap.NewContainer()
		c.MustInitCore()
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := c.Services.Stays.Insert(ctx, records); err != nil {
			log.Fatalf("Failed to insert stays: %v", err)
		}
		log.Infow("Stays inserted; run `optibooking train` to refresh the model", "count", len(records))
	}
}

func writeFile(path string, records []stay.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return seeds.WriteXLSX(f, records)
	}
	return seeds.WriteCSV(f, records)
}
