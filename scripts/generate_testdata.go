//go:build ignore

// generate_testdata.go creates JSONL exports for `aios -import`.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	testdata/import/small.jsonl   (20 notes, 40 tasks, 10 meetings)
//	testdata/import/medium.jsonl  (200 notes, 400 tasks, 100 meetings)
//	testdata/import/large.jsonl   (2000 notes, 4000 tasks, 1000 meetings)
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vanderheijden86/aios/pkg/testutil"
)

type datasetSpec struct {
	name     string
	notes    int
	tasks    int
	meetings int
}

var datasets = []datasetSpec{
	{"small", 20, 40, 10},
	{"medium", 200, 400, 100},
	{"large", 2000, 4000, 1000},
}

func main() {
	outputDir := "testdata/import"
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	// Relative to today so the rules have something to fire on.
	base := time.Now().UTC().Truncate(time.Hour)

	for _, ds := range datasets {
		fmt.Printf("Generating %s dataset...\n", ds.name)

		gen := testutil.New(testutil.GeneratorConfig{
			Seed:     int64(ds.tasks), // Reproducible per-size
			IDPrefix: "GEN",
			BaseTime: base,
		})
		snap := gen.Snapshot(ds.notes, ds.tasks, ds.meetings)
		jsonl := testutil.ToJSONL(snap)

		outputPath := filepath.Join(outputDir, ds.name+".jsonl")
		if err := os.WriteFile(outputPath, []byte(jsonl), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputPath, err)
			os.Exit(1)
		}
		fmt.Printf("  Written %s (%d bytes)\n", outputPath, len(jsonl))
	}

	fmt.Println("\nDone! Import datasets created in", outputDir)
}
