// Package catalog loads the station database: a JSON object keyed by
// "City,CountryRegion" with the city's coordinates and its stream URLs.
package catalog

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"

	"github.com/shaunagostinho/globe-radio/internal/grid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Station is a single playable stream.
type Station struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Record is one city entry.
type Record struct {
	Key      string
	Geo      grid.Geo
	Stations []Station
}

type rawRecord struct {
	Coords struct {
		N float64 `json:"n"`
		E float64 `json:"e"`
	} `json:"coords"`
	URLs []Station `json:"urls"`
}

// Catalog is immutable once loaded. Records keep the order of the source
// file, which decides who comes first when cities share a grid cell.
type Catalog struct {
	records  []Record
	byKey    map[string]int
	checksum uint64
}

// Empty returns a catalog with no cities; lookups never find anything.
func Empty() *Catalog {
	return &Catalog{byKey: map[string]int{}, checksum: xxh3.Hash(nil)}
}

// Load reads the catalog from path. A missing file is not an error: the
// radio runs inert with an empty catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[catalog] %s not found, starting with no stations", path)
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Empty(), fmt.Errorf("catalog: %s: %w", path, err)
	}
	log.Printf("[catalog] loaded %d cities from %s", c.Len(), path)
	return c, nil
}

// Parse decodes a catalog document, preserving key order.
func Parse(data []byte) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]int), checksum: xxh3.Hash(data)}

	iter := jsoniter.ParseBytes(json, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("parse: top level is not an object")
	}
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		var raw rawRecord
		it.ReadVal(&raw)
		if it.Error != nil {
			return false
		}
		if _, dup := c.byKey[key]; dup {
			// Later duplicates replace the coordinates but keep the slot.
			c.records[c.byKey[key]] = newRecord(key, raw)
			return true
		}
		c.byKey[key] = len(c.records)
		c.records = append(c.records, newRecord(key, raw))
		return true
	})
	if iter.Error != nil {
		return nil, fmt.Errorf("parse: %w", iter.Error)
	}
	return c, nil
}

func newRecord(key string, raw rawRecord) Record {
	stations := make([]Station, 0, len(raw.URLs))
	for _, s := range raw.URLs {
		if s.Name == "" || s.URL == "" {
			continue
		}
		s.URL = strings.TrimSpace(s.URL)
		stations = append(stations, s)
	}
	return Record{
		Key:      key,
		Geo:      grid.Geo{Lat: raw.Coords.N, Lon: raw.Coords.E},
		Stations: stations,
	}
}

// Len returns the number of cities.
func (c *Catalog) Len() int { return len(c.records) }

// At returns the record at catalog position i.
func (c *Catalog) At(i int) Record { return c.records[i] }

// Keys returns the city keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.records))
	for i, r := range c.records {
		keys[i] = r.Key
	}
	return keys
}

// Get looks a city up by key, falling back to a case-insensitive match.
func (c *Catalog) Get(key string) (Record, bool) {
	if i, ok := c.byKey[key]; ok {
		return c.records[i], true
	}
	for _, r := range c.records {
		if strings.EqualFold(r.Key, key) {
			return r, true
		}
	}
	return Record{}, false
}

// Checksum is the xxh3 hash of the source document. A persisted grid index
// is only reused when it was built from a catalog with the same checksum.
func (c *Catalog) Checksum() uint64 { return c.checksum }
