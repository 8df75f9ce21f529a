// Command process runs the recognition pipeline against a local file and
// prints the outcome as JSON.
// Usage: go run ./cmd/process -file invoice.png [-backends a,b] [-mode parallel]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"docscan/internal/bootstrap"
	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/logging"
	"docscan/internal/service"
)

// errNoResult marks a run that ended FAILED; the outcome is still printed.
var errNoResult = errors.New("no backend produced usable text")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errNoResult) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	file := flag.String("file", "", "path to the invoice (pdf, png, jpg, tiff, bmp, webp, gif)")
	backends := flag.String("backends", "", "comma-separated backend list; defaults to pipeline.backends")
	mode := flag.String("mode", "", "sequential or parallel; defaults to pipeline.mode")
	mediaType := flag.String("media-type", "", "override the detected media type")
	minConfidence := flag.Float64("min-confidence", -1, "acceptance threshold 0..100; defaults to pipeline.min_confidence")
	timeout := flag.Duration("timeout", 0, "per-backend timeout; defaults to pipeline.backend_timeout")
	deadline := flag.Duration("deadline", 0, "overall deadline; defaults to pipeline.deadline")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		return errors.New("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.NewWithWriter(&cfg.Log, os.Stderr)

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *file, err)
	}

	req := domain.ProcessingRequest{
		Document: domain.Document{
			ID:        uuid.New(),
			MediaType: service.DetectMediaType(*file, *mediaType, data),
			Data:      data,
		},
		Backends:       cfg.Pipeline.Backends,
		BackendTimeout: cfg.Pipeline.BackendTimeout,
		Deadline:       cfg.Pipeline.Deadline,
		MinConfidence:  cfg.Pipeline.MinConfidence,
	}
	if *backends != "" {
		req.Backends = splitNames(*backends)
	}
	if req.Mode, err = bootstrap.Mode(*mode, cfg.Pipeline.Mode); err != nil {
		return err
	}
	if *minConfidence >= 0 {
		req.MinConfidence = *minConfidence
	}
	if *timeout > 0 {
		req.BackendTimeout = *timeout
	}
	if *deadline > 0 {
		req.Deadline = *deadline
	}

	p, err := bootstrap.NewPipeline(cfg, req.Backends, log)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	outcome, procErr := p.Controller.Process(ctx, req)
	if outcome != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return fmt.Errorf("writing outcome: %w", err)
		}
		log.Info("process: done", "status", outcome.Status, "score", outcome.Breakdown.Score, "elapsed", time.Since(start))
	}
	if procErr != nil {
		return procErr
	}
	if outcome.Status == domain.StatusFailed {
		return errNoResult
	}
	return nil
}

func splitNames(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
