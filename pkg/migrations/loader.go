// Package migrations applies versioned SQL migrations from an fs.FS.
package migrations

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migration is one version with its up and optional down script.
type Migration struct {
	Version  string
	Name     string
	upPath   string
	downPath string
}

// String returns the migration identifier.
func (m Migration) String() string {
	return fmt.Sprintf("%s_%s", m.Version, m.Name)
}

// HasDown reports whether the migration can be rolled back.
func (m Migration) HasDown() bool {
	return m.downPath != ""
}

// Load reads NNNNNN_name.up.sql / NNNNNN_name.down.sql files from the root
// of fsys, sorted by version. A down file without an up file is an error.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		filename := e.Name()

		var direction string
		switch {
		case strings.HasSuffix(filename, ".up.sql"):
			direction = "up"
		case strings.HasSuffix(filename, ".down.sql"):
			direction = "down"
		default:
			continue
		}

		// 000001_init.up.sql -> version=000001, name=init
		baseName := strings.TrimSuffix(filename, "."+direction+".sql")
		parts := strings.SplitN(baseName, "_", 2)
		if len(parts) != 2 || !isVersion(parts[0]) {
			return nil, fmt.Errorf("invalid migration filename: %s", filename)
		}

		m, ok := byVersion[parts[0]]
		if !ok {
			m = &Migration{Version: parts[0], Name: parts[1]}
			byVersion[parts[0]] = m
		}
		if m.Name != parts[1] {
			return nil, fmt.Errorf("migration %s has conflicting names %q and %q", parts[0], m.Name, parts[1])
		}
		if direction == "up" {
			m.upPath = filename
		} else {
			m.downPath = filename
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upPath == "" {
			return nil, fmt.Errorf("migration %s has no up script", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func isVersion(s string) bool {
	if len(s) == 0 || len(s) > 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
