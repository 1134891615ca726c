// Seed tool for generating synthetic AML test data.
//
// Usage:
//   go run cmd/seed/main.go -out ./data/transactions.csv -accounts 200
//   go run cmd/seed/main.go -out ./data/transactions.csv -train -model ./data/models/isolation_forest.json
//
// This tool:
//   1. Generates a transaction CSV with mostly ordinary account activity
//   2. Embeds structuring, money-mule, round-trip and high-volume patterns
//   3. Optionally trains the isolation forest on the generated file
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/model"
)

var header = []string{"account_id", "date", "time", "type", "amount", "related_account"}

func main() {
	out := flag.String("out", "./data/transactions.csv", "Output CSV path")
	accounts := flag.Int("accounts", 200, "Number of ordinary accounts")
	suspicious := flag.Int("suspicious", 12, "Number of suspicious accounts")
	seed := flag.Int64("seed", 42, "Random seed")
	train := flag.Bool("train", false, "Train the isolation forest on the generated file")
	modelPath := flag.String("model", "./data/models/isolation_forest.json", "Model artifact path (with -train)")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	rows := generate(rng, base, *accounts, *suspicious)

	if err := writeCSV(*out, rows); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d transactions to %s\n", len(rows), *out)

	if *train {
		if err := trainModel(*out, *modelPath); err != nil {
			fmt.Fprintf(os.Stderr, "training failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Model trained and saved to %s\n", *modelPath)
	}
}

// generate builds the full row set: ordinary activity plus embedded
// typology patterns on a handful of accounts.
func generate(rng *rand.Rand, base time.Time, ordinary, suspicious int) [][]string {
	var rows [][]string

	for i := 0; i < ordinary; i++ {
		acc := fmt.Sprintf("ACC-%05d", 10000+i)
		n := 5 + rng.Intn(20)
		for j := 0; j < n; j++ {
			rows = append(rows, row(acc,
				base.Add(time.Duration(rng.Intn(30*24))*time.Hour),
				pick(rng, "Deposit", "Withdrawal", "Transfer"),
				500+rng.Float64()*25000,
				"",
			))
		}
	}

	for i := 0; i < suspicious; i++ {
		acc := fmt.Sprintf("ACC-SUS-%03d", i)
		start := base.Add(time.Duration(rng.Intn(20*24)) * time.Hour)

		switch i % 4 {
		case 0:
			// Structuring: repeated deposits just under the 50k threshold
			for j := 0; j < 4+rng.Intn(3); j++ {
				rows = append(rows, row(acc,
					start.Add(time.Duration(j)*2*time.Hour),
					"Deposit",
					45000+rng.Float64()*4900,
					"",
				))
			}
		case 1:
			// Money mule: large inflow followed by a matching outflow
			amt := 400000 + rng.Float64()*600000
			rows = append(rows,
				row(acc, start, "Deposit", amt, counterparty(rng)),
				row(acc, start.Add(6*time.Hour), "Withdrawal", amt*(0.96+rng.Float64()*0.04), counterparty(rng)),
			)
		case 2:
			// Round trip: repeated transfers to and from the same counterparty
			peer := counterparty(rng)
			for j := 0; j < 3; j++ {
				rows = append(rows,
					row(acc, start.Add(time.Duration(j)*24*time.Hour), "Transfer", 75000+rng.Float64()*50000, peer),
					row(peer, start.Add(time.Duration(j)*24*time.Hour+time.Hour), "Transfer", 70000+rng.Float64()*50000, acc),
				)
			}
		default:
			// High volume: a few very large movements
			for j := 0; j < 3; j++ {
				rows = append(rows, row(acc,
					start.Add(time.Duration(j)*8*time.Hour),
					"Deposit",
					800000+rng.Float64()*2000000,
					"",
				))
			}
		}
	}

	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	return rows
}

func row(acc string, ts time.Time, txType string, amount float64, related string) []string {
	return []string{
		acc,
		ts.Format("2006-01-02"),
		ts.Format("15:04:05"),
		txType,
		strconv.FormatFloat(amount, 'f', 2, 64),
		related,
	}
}

func counterparty(rng *rand.Rand) string {
	return fmt.Sprintf("ACC-EXT-%04d", rng.Intn(10000))
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// trainModel runs the same ingestion path as the API and fits the
// persisted artifact from the generated file.
func trainModel(csvPath, modelPath string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := ingest.DecodeCSV(f)
	if err != nil {
		return err
	}

	cols, err := ingest.MapColumns(table.Columns)
	if err != nil {
		return err
	}

	txs := ingest.Normalize(table, cols)
	vectors := features.Extract(txs)
	if len(vectors) == 0 {
		return fmt.Errorf("no analyzable rows in %s", csvPath)
	}

	cfg := domain.DefaultConfig().Model
	cfg.ArtifactPath = modelPath

	registry := model.NewRegistry(cfg)
	if err := registry.Train(vectors); err != nil {
		return err
	}

	fmt.Printf("Trained on %d accounts\n", len(vectors))
	return nil
}
