package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ahorro/internal/core"
)

// WriteProfilesFile writes profiles in the "id,email,name" format the
// memory store seeds from.
func WriteProfilesFile(path string, profiles []core.Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# id,email,name\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "%s,%s,%s\n", p.ID, p.Email, strings.ReplaceAll(p.Name, ",", " "))
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
