package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"FieldPulse/internal/domain/models"
	internalrepo "FieldPulse/internal/repository"
	"FieldPulse/internal/services/geometry"
	"FieldPulse/internal/services/statespace"
	"FieldPulse/internal/services/swarm"
	"FieldPulse/internal/usecase"
	"FieldPulse/pkg/config"
	applogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/metrics"
)

// replay drives historical raw records (JSONL, one record per line) through
// the full pipeline against an in-memory store and reports consensus hit
// rate over the configured feedback horizon. Records may carry either a
// precomputed spot_return or a raw close price to derive it from.
func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	recordsPath := flag.String("records", "", "JSONL file of raw records (required)")
	symbol := flag.String("symbol", "", "symbol to replay (required)")
	flag.Parse()

	if *recordsPath == "" || *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("logger failed: %v", err)
	}

	schema, err := statespace.LoadSchema(cfg.Pipeline.SchemaPath)
	if err != nil {
		log.Fatalf("schema load failed: %v", err)
	}
	basis, err := geometry.LoadBasis(cfg.Pipeline.BasisPath)
	if err != nil {
		log.Fatalf("basis load failed: %v", err)
	}

	normalizer := statespace.NewNormalizer(schema)
	normalizer.SetLogger(l)
	projector := geometry.NewProjector(basis, cfg.Pipeline.Bucket)
	roster := swarm.DefaultRoster()
	aggregator := swarm.NewAggregator(roster)
	aggregator.SetLogger(l)

	store := internalrepo.NewMemorySnapshotStore()
	locks := usecase.NewSymbolLocks()
	m := metrics.New()

	pipe := usecase.NewPipeline(store, internalrepo.NopPublisher{}, m,
		normalizer, projector, aggregator, roster, schema.Window, cfg.Pipeline.Bucket, locks)
	pipe.SetLogger(l)
	feedback := usecase.NewFeedbackLoop(store, m, roster, locks)
	feedback.SetLogger(l)
	replayer := usecase.NewReplayer(pipe, feedback, store, cfg.Pipeline.FeedbackHorizon, cfg.Pipeline.Bucket)
	replayer.SetLogger(l)

	records, err := readRecords(*recordsPath, *symbol)
	if err != nil {
		log.Fatalf("records load failed: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("no records for %s in %s", *symbol, *recordsPath)
	}

	report, err := replayer.Run(context.Background(), *symbol, records)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}

func readRecords(path, symbol string) ([]models.RawMarketRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []models.RawMarketRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r models.RawMarketRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		if r.Symbol == symbol {
			records = append(records, r)
		}
	}
	return records, sc.Err()
}
