package assistant

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// HallStatus is one hall's availability as reported by an INFO result.
type HallStatus struct {
	Name string
	Free bool
}

var (
	nameKeys   = []string{"name", "hall", "hallName", "hall_name", "title"}
	freeKeys   = []string{"free", "available", "isFree", "isAvailable", "is_free", "is_available"}
	freeWords  = []string{"free", "available", "vacant", "open"}
	statusKeys = []string{"status", "state", "availability"}
)

// ParseHallStatus reads INFO data. It accepts an array of hall objects or an
// object wrapping one under "halls", "data" or "items". Entries without a
// name are skipped. The boolean is false when data has neither shape.
func ParseHallStatus(data json.RawMessage) ([]HallStatus, bool) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		var wrapper map[string]json.RawMessage
		if json.Unmarshal(data, &wrapper) != nil {
			return nil, false
		}
		var found bool
		for _, key := range []string{"halls", "data", "items"} {
			if raw, ok := wrapper[key]; ok && json.Unmarshal(raw, &rows) == nil {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}

	out := make([]HallStatus, 0, len(rows))
	for _, row := range rows {
		name := firstString(row, nameKeys)
		if name == "" {
			continue
		}
		out = append(out, HallStatus{Name: name, Free: isFree(row)})
	}
	return out, true
}

func firstString(row map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := row[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func isFree(row map[string]any) bool {
	for _, k := range freeKeys {
		if b, ok := row[k].(bool); ok {
			return b
		}
	}
	status := strings.ToLower(firstString(row, statusKeys))
	return slices.Contains(freeWords, status)
}

// SortHallStatus orders halls free first, then by name.
func SortHallStatus(halls []HallStatus) {
	slices.SortStableFunc(halls, func(a, b HallStatus) int {
		if a.Free != b.Free {
			if a.Free {
				return -1
			}
			return 1
		}
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

// DescribeHallStatus renders INFO data as a short spoken summary. A bare JSON
// string is returned as is; unreadable or empty data yields [MsgInfoEmpty].
func DescribeHallStatus(data json.RawMessage) string {
	var text string
	if json.Unmarshal(data, &text) == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	halls, ok := ParseHallStatus(data)
	if !ok || len(halls) == 0 {
		return MsgInfoEmpty
	}
	halls = slices.Clone(halls)
	SortHallStatus(halls)

	var free, taken []string
	for _, h := range halls {
		if h.Free {
			free = append(free, h.Name)
		} else {
			taken = append(taken, h.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d %s free.", len(free), len(halls), plural(len(halls), "hall is", "halls are"))
	if len(free) > 0 {
		fmt.Fprintf(&b, " Free: %s.", strings.Join(free, ", "))
	}
	if len(taken) > 0 {
		fmt.Fprintf(&b, " Booked: %s.", strings.Join(taken, ", "))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
