// Package calibration persists the encoder zero-point offsets between runs.
package calibration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/shaunagostinho/globe-radio/internal/encoder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads offsets stored as a two-element JSON array, [lat, lon]. Any
// failure yields zero offsets.
func Load(path string) encoder.Offsets {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[calibration] no saved offsets at %s (starting at 0,0)", path)
		return encoder.Offsets{}
	}
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		log.Printf("[calibration] ignoring %s: want [lat, lon], got %q", path, data)
		return encoder.Offsets{}
	}
	off := encoder.Offsets{Lat: pair[0], Lon: pair[1]}
	log.Printf("[calibration] loaded: lat=%d lon=%d", off.Lat, off.Lon)
	return off
}

// Save writes offsets to path, creating its directory.
func Save(path string, off encoder.Offsets) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	data, err := json.Marshal([]int{off.Lat, off.Lon})
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	return nil
}
