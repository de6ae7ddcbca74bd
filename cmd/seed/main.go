// Command seed fills the usage store with synthetic records so the cost
// and analytics endpoints have data to report on.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/usage"
)

var (
	departments = []string{"engineering", "marketing", "research", "support", "sales"}
	projects    = []string{"chatbot", "content-gen", "data-analysis", "code-review", "translation"}
)

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env", ".env", "optional env file loaded before configuration")
	days := flag.Int("days", 30, "number of days of history to generate")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	if *days <= 0 {
		log.Fatalf("-days must be positive")
	}
	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	cfg, err := config.LoadService(*configDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	rc, err := config.LoadRouting(*configDir)
	if err != nil {
		log.Fatalf("failed to load routing configuration: %v", err)
	}
	cat, err := catalog.New(rc.Models)
	if err != nil {
		log.Fatalf("invalid model catalog: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := usage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to open usage store: %v", err)
	}
	defer store.Close()

	records := generate(rand.New(rand.NewPCG(*seed, *seed)), cat.All(), *days, time.Now().UTC())
	n, err := store.LogUsageBatch(ctx, records)
	if err != nil {
		log.Fatalf("failed to insert records: %v", err)
	}

	var total float64
	for _, r := range records {
		total += r.Cost
	}

	fmt.Println("=== Usage Data Seeded ===")
	fmt.Println()
	fmt.Printf("  Driver:     %s\n", cfg.Database.Driver)
	fmt.Printf("  Records:    %d\n", n)
	fmt.Printf("  Days:       %d\n", *days)
	fmt.Printf("  Total Cost: $%.4f\n", total)
	fmt.Printf("  Seed:       %d\n", *seed)
	fmt.Println()
	fmt.Println("=========================")
}

// generate produces 5 to 25 records per day for the days before now, priced
// from the catalog.
func generate(rng *rand.Rand, models []catalog.Model, days int, now time.Time) []usage.Record {
	if len(models) == 0 {
		return nil
	}
	var records []usage.Record
	for offset := range days {
		day := now.AddDate(0, 0, -offset)
		for range 5 + rng.IntN(21) {
			m := models[rng.IntN(len(models))]
			in := 100 + rng.IntN(4901)
			out := 50 + rng.IntN(2951)
			ts := time.Date(day.Year(), day.Month(), day.Day(), 8+rng.IntN(13), rng.IntN(60), 0, 0, time.UTC)
			if ts.After(now) {
				ts = now
			}
			records = append(records, usage.Record{
				Timestamp:    ts,
				Model:        m.ModelID,
				Department:   departments[rng.IntN(len(departments))],
				ProjectID:    projects[rng.IntN(len(projects))],
				InputTokens:  in,
				OutputTokens: out,
				Cost:         m.EstimateCost(in, out),
				LatencyMs:    catalog.Round(100+rng.Float64()*2900, 2),
			})
		}
	}
	return records
}
