// Package logger records the tuner's state to rotating CSV files, one row
// per interval, for tracing how the globe was turned and what it found.
package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/globe-radio/internal/tuner"
)

// Logger records timestamped tuner snapshots to CSV files with automatic rotation.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // ~5.5 hrs at 5 Hz
)

var csvHeader = []string{
	"timestamp", "state",
	"raw_lat", "raw_lon", "x", "y",
	"pos_x", "pos_y", "latched",
	"lat", "lon", "city", "cities",
	"station", "url", "stations_found",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/globe-radio"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 200 * time.Millisecond // one row per encoder poll
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a tuner snapshot if the minimum interval has elapsed.
func (l *Logger) Record(snap *tuner.Snapshot) {
	if snap == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	// Open/rotate file if needed
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(now, snap)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("tuning_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	// Write header
	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, s *tuner.Snapshot) []string {
	row := make([]string, len(csvHeader))

	row[0] = ts.Format(time.RFC3339Nano)
	row[1] = s.State
	row[2] = strconv.Itoa(int(s.Reading.RawLat))
	row[3] = strconv.Itoa(int(s.Reading.RawLon))
	row[4] = strconv.Itoa(s.Reading.Coord.X)
	row[5] = strconv.Itoa(s.Reading.Coord.Y)
	row[6] = strconv.Itoa(s.Position.X)
	row[7] = strconv.Itoa(s.Position.Y)
	row[8] = boolStr(s.Latched)
	row[9] = fmt.Sprintf("%.2f", s.Geo.Lat)
	row[10] = fmt.Sprintf("%.2f", s.Geo.Lon)
	row[11] = s.City
	row[12] = strconv.Itoa(len(s.Cities))
	if st, ok := s.Current(); ok {
		row[13] = st.Name
		row[14] = st.URL
	}
	row[15] = strconv.Itoa(len(s.Stations))

	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
