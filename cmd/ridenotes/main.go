package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/coach"
	"github.com/lucasjlepore/cycling-analyzer/ingest"
	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
)

func main() {
	var (
		configPath = flag.String("config", "./cycling.json", "Path to config file")
		ftp        = flag.Float64("ftp", 0, "FTP in watts (default from config)")
		jsonOut    = flag.Bool("json", false, "Emit the metric snapshot as JSON")
		coachURL   = flag.String("coach-url", "", "OpenAI compatible endpoint for a coach debrief, e.g. http://localhost:11434/v1")
		coachModel = flag.String("coach-model", "deepseek-r1", "Model name for the coach debrief")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-workout-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	c := cfg.Load(*configPath)
	if *ftp > 0 {
		c.FTPWatts = *ftp
	}

	parsed, err := ingest.LoadFile(flag.Arg(0), c.IngestOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}
	snap, err := cycling.Analyze(parsed.Workout, c.FTPWatts, c.MetricOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println(cycling.BuildTrainingNotes(snap))
	if *coachURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cch := &coach.Coach{
		Model: coach.NewChatClient(*coachURL, *coachModel, os.Getenv("COACH_API_KEY")),
		Cache: coach.NewResponseCache(),
	}
	debrief, err := cch.Debrief(ctx, coach.NewConversation(), snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coach debrief failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Println("Performance Coach")
	fmt.Println(debrief)
}
