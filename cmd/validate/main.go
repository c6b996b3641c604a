// Command validate checks the engine tuning JSON files in a configs
// directory. It verifies:
//   - the file parses as JSON and matches a known game type
//   - player bounds are positive and min does not exceed max
//   - fivedice: dice count and reroll rounds are in sane ranges
//   - no unknown keys that a typo would silently hide
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tablezoo/tablezoo/game/engines/fivedice"
)

// Result captures the outcome of validating a single tuning file.
type Result struct {
	File   string
	Valid  bool
	Errors []string
}

func main() {
	dir := flag.String("dir", "configs", "directory of tuning files to validate")
	flag.Parse()

	entries, err := os.ReadDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *dir, err)
		os.Exit(1)
	}

	var results []Result
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		results = append(results, validateFile(filepath.Join(*dir, entry.Name())))
	}

	if len(results) == 0 {
		fmt.Printf("no tuning files in %s\n", *dir)
		return
	}

	failed := 0
	for _, r := range results {
		if r.Valid {
			fmt.Printf("ok   %s\n", r.File)
			continue
		}
		failed++
		fmt.Printf("FAIL %s\n", r.File)
		for _, e := range r.Errors {
			fmt.Printf("     - %s\n", e)
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d of %d files invalid\n", failed, len(results))
		os.Exit(1)
	}
	fmt.Printf("\nall %d files valid\n", len(results))
}

func validateFile(path string) Result {
	r := Result{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("read: %v", err))
		return r
	}

	gameType := strings.TrimSuffix(filepath.Base(path), ".json")
	switch gameType {
	case fivedice.GameType:
		r.Errors = validateFivedice(data)
	default:
		r.Errors = append(r.Errors, fmt.Sprintf("no engine registered for game type %q", gameType))
	}
	r.Valid = len(r.Errors) == 0
	return r
}

func validateFivedice(data []byte) []string {
	var errs []string

	// Strict pass first so typo'd keys do not silently fall back to
	// defaults.
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var cfg fivedice.Config
	if err := dec.Decode(&cfg); err != nil {
		errs = append(errs, fmt.Sprintf("decode: %v", err))
		return errs
	}

	if cfg.Dice < 0 || cfg.Dice > 20 {
		errs = append(errs, fmt.Sprintf("dice = %d, want 0 (default) or 1..20", cfg.Dice))
	}
	if cfg.RerollRounds < 0 || cfg.RerollRounds > 10 {
		errs = append(errs, fmt.Sprintf("reroll_rounds = %d, want 0 (default) or 1..10", cfg.RerollRounds))
	}
	if cfg.MinPlayers < 0 || cfg.MaxPlayers < 0 {
		errs = append(errs, "player bounds must not be negative")
	}
	if cfg.MinPlayers > 0 && cfg.MaxPlayers > 0 && cfg.MinPlayers > cfg.MaxPlayers {
		errs = append(errs, fmt.Sprintf("min_players %d exceeds max_players %d", cfg.MinPlayers, cfg.MaxPlayers))
	}
	return errs
}
