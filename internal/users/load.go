package users

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadFile reads a user-list file in the format documented in spec §6:
// one record per line, comma-separated fields
// `id, password, msgDown, msgUp, fileDown, fileUp`, boolean flags accepting
// 0/1/true/false case-insensitively, with a header line that is skipped.
//
// This loader is intentionally built on encoding/csv rather than a
// third-party config/CSV library from the corpus: the wire format is
// pinned exactly by spec §6 (fixed six-column layout, permissive boolean
// parsing, skip-first-line), and none of the corpus's config libraries
// (viper, afero) parse arbitrary CSV — they consume structured config
// files, not fixed-width credential lists. See DESIGN.md.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("users: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses the CSV user list from r.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("users: parse csv: %w", err)
	}
	if len(rows) == 0 {
		return NewTable(nil)
	}
	// First line is a header and is skipped.
	rows = rows[1:]

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if len(row) != 6 {
			return nil, fmt.Errorf("users: line %d: expected 6 fields, got %d", i+2, len(row))
		}
		msgDown, err := parseBool(row[2])
		if err != nil {
			return nil, fmt.Errorf("users: line %d: msgDown: %w", i+2, err)
		}
		msgUp, err := parseBool(row[3])
		if err != nil {
			return nil, fmt.Errorf("users: line %d: msgUp: %w", i+2, err)
		}
		fileDown, err := parseBool(row[4])
		if err != nil {
			return nil, fmt.Errorf("users: line %d: fileDown: %w", i+2, err)
		}
		fileUp, err := parseBool(row[5])
		if err != nil {
			return nil, fmt.Errorf("users: line %d: fileUp: %w", i+2, err)
		}
		records = append(records, Record{
			ID:       strings.TrimSpace(row[0]),
			Password: strings.TrimSpace(row[1]),
			Perms: Perms{
				MsgDown:  msgDown,
				MsgUp:    msgUp,
				FileDown: fileDown,
				FileUp:   fileUp,
			},
		})
	}
	return NewTable(records)
}

// parseBool accepts 0/1/true/false case-insensitively, per spec §6.
func parseBool(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	default:
		if v, err := strconv.ParseBool(s); err == nil {
			return v, nil
		}
		return false, fmt.Errorf("invalid boolean flag %q", s)
	}
}
