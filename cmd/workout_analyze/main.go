package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
	"github.com/lucasjlepore/cycling-analyzer/pipeline"
)

func main() {
	var (
		inPath     = flag.String("in", "", "Path to input .tcx, .fit or stream set .json file")
		outDir     = flag.String("out", "", "Output directory")
		configPath = flag.String("config", "./cycling.json", "Path to config file")
		ftp        = flag.Float64("ftp", 0, "FTP in watts (default from config)")
		format     = flag.String("format", "parquet", "Canonical sample format: parquet|csv")
		windowMode = flag.String("window", "", "Rolling window mode: elapsed|samples (default from config)")
		timeBasis  = flag.String("time-basis", "", "TSS time basis: moving|samples (default from config)")
		overwrite  = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --in ride.tcx --out outdir [--ftp 250] [--format parquet|csv]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*inPath) == "" || strings.TrimSpace(*outDir) == "" {
		flag.Usage()
		os.Exit(2)
	}

	c := cfg.Load(*configPath)
	if *ftp > 0 {
		c.FTPWatts = *ftp
	}
	if *windowMode != "" {
		c.WindowMode = *windowMode
	}
	if *timeBasis != "" {
		c.TimeBasis = *timeBasis
	}
	slogger := c.Logger()
	slogger.Debug("analyzing workout", "file", *inPath, "ftp", c.FTPWatts)

	result, err := pipeline.Run(pipeline.Options{
		InputPath:  *inPath,
		OutDir:     *outDir,
		FTPWatts:   c.FTPWatts,
		Format:     *format,
		Overwrite:  *overwrite,
		CopySource: true,
		Metrics:    c.MetricOptions(),
		Ingest:     c.IngestOptions(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "workout_analyze failed: %v\n", err)
		os.Exit(1)
	}

	snap := result.Snapshot
	fmt.Printf("workout_analyze complete\n")
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("manifest.json:       %s\n", result.ManifestPath)
	fmt.Printf("canonical samples:   %s\n", result.CanonicalSamplesPath)
	fmt.Printf("metric snapshot:     %s\n", result.SnapshotPath)
	fmt.Printf("training notes:      %s\n", result.NotesPath)
	if result.SourceCopyPath != "" {
		fmt.Printf("source copy:         %s\n", result.SourceCopyPath)
	}
	if snap.TrainingStress != nil {
		fmt.Printf("NP / IF / TSS:       %.0f W / %.2f / %.0f\n", *snap.NormalizedPower, *snap.IntensityFactor, *snap.TrainingStress)
	}
	fmt.Printf("duration:            %s\n", cycling.FormatDuration(snap.Summary.Duration))
	for _, w := range result.Warnings {
		fmt.Printf("warning:             %s\n", w)
	}
}
