package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		file    string
		content string
		valid   bool
	}{
		{"good tuning", "fivedice.json", `{"dice": 6, "reroll_rounds": 3, "min_players": 2, "max_players": 4}`, true},
		{"empty tuning uses defaults", "fivedice.json", `{}`, true},
		{"unknown key", "fivedice.json", `{"dize": 6}`, false},
		{"inverted bounds", "fivedice.json", `{"min_players": 5, "max_players": 2}`, false},
		{"dice out of range", "fivedice.json", `{"dice": 99}`, false},
		{"negative rounds", "fivedice.json", `{"reroll_rounds": -1}`, false},
		{"not json", "fivedice.json", `{broken`, false},
		{"unknown game type", "mysterygame.json", `{}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, dir, tc.file, tc.content)
			r := validateFile(path)
			if r.Valid != tc.valid {
				t.Errorf("valid = %v, want %v (errors: %v)", r.Valid, tc.valid, r.Errors)
			}
		})
	}
}
