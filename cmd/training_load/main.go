package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/ingest"
	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
	"github.com/lucasjlepore/cycling-analyzer/internal/report"
)

type output struct {
	FTPWatts float64              `json:"ftp_watts"`
	Latest   *cycling.LoadStatus  `json:"latest,omitempty"`
	Weeks    []cycling.WeekBucket `json:"weeks"`
	Series   []cycling.LoadPoint  `json:"series"`
}

func main() {
	var (
		configPath = flag.String("config", "./cycling.json", "Path to config file")
		historyDir = flag.String("history", "", "Directory of workout files (default from config)")
		ftp        = flag.Float64("ftp", 0, "FTP in watts (default from config)")
		windowDays = flag.Int("days", 0, "Days of CTL/ATL/TSB history (default from config)")
		numWeeks   = flag.Int("weeks", 0, "Number of weekly TSS buckets (default from config)")
		asOf       = flag.String("today", "", "Evaluate as of this date, YYYY-MM-DD")
		jsonOut    = flag.Bool("json", false, "Emit weeks and series as JSON")
		xlsxPath   = flag.String("xlsx", "", "Also write an Excel workbook to this path")
	)
	flag.Parse()

	c := cfg.Load(*configPath)
	if *historyDir != "" {
		c.HistoryDir = *historyDir
	}
	if *ftp > 0 {
		c.FTPWatts = *ftp
	}
	if *windowDays > 0 {
		c.WindowDays = *windowDays
	}
	if *numWeeks > 0 {
		c.NumWeeks = *numWeeks
	}
	logger := c.Logger()
	ingestOpts := c.IngestOptions()

	today := time.Now()
	if ingestOpts.Location != nil {
		today = today.In(ingestOpts.Location)
	}
	if *asOf != "" {
		t, err := time.Parse(time.DateOnly, *asOf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -today: %v\n", err)
			os.Exit(2)
		}
		today = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	parsed, err := ingest.LoadHistory(ctx, c.HistoryDir, ingestOpts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "training_load failed: %v\n", err)
		os.Exit(1)
	}
	workouts := make([]*cycling.Workout, len(parsed))
	for i, p := range parsed {
		workouts[i] = p.Workout
	}

	loads, err := cycling.ScoreWorkouts(ctx, workouts, c.FTPWatts, c.MetricOptions(), runtime.NumCPU())
	if err != nil {
		fmt.Fprintf(os.Stderr, "training_load failed: %v\n", err)
		os.Exit(1)
	}
	weeks := cycling.BucketLoads(loads, c.NumWeeks, today)
	series := cycling.SeriesFromLoads(loads, c.WindowDays, today)
	status, ok := cycling.Latest(series)

	if *xlsxPath != "" {
		if err := report.WriteWorkbook(*xlsxPath, weeks, series); err != nil {
			fmt.Fprintf(os.Stderr, "write workbook: %v\n", err)
			os.Exit(1)
		}
		logger.Info("wrote workbook", "path", *xlsxPath)
	}

	if *jsonOut {
		out := output{FTPWatts: c.FTPWatts, Weeks: weeks, Series: series}
		if ok {
			out.Latest = &status
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !ok {
		fmt.Println("No training load to report.")
		return
	}
	fmt.Println(cycling.BuildLoadNotes(status, weeks))
}
