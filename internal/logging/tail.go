package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time  string         `json:"time"`
	Level string         `json:"level"`
	Msg   string         `json:"msg"`
	Attrs map[string]any `json:"-"`
	Raw   string         `json:"-"`
}

// Tail returns the last n records of path at or above minLevel.
// Lines that are not JSON are kept with only Raw set.
func Tail(path string, n int, minLevel slog.Level) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	ring := make([]Entry, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		e := parseEntry(scanner.Text())
		if e.Level != "" && ParseLevel(e.Level) < minLevel {
			continue
		}
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return ring, nil
}

func parseEntry(line string) Entry {
	e := Entry{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return e
	}
	e.Time, _ = fields["time"].(string)
	e.Level, _ = fields["level"].(string)
	e.Msg, _ = fields["msg"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	e.Attrs = fields
	return e
}
