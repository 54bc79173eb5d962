package index

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/grid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Paths locates the persisted index and the checksum sidecar that ties it
// to the catalog it was built from.
type Paths struct {
	Index     string
	Checksums string
}

type checksums struct {
	Catalog    string `json:"catalog"`
	Resolution int    `json:"resolution"`
	Records    int    `json:"records"`
}

// LoadOrBuild reuses the persisted index when the sidecar matches the
// catalog and resolution; otherwise, or when the file is corrupt, it
// rebuilds from the catalog and persists the result. Persistence failures
// are logged and never fatal.
func LoadOrBuild(cat *catalog.Catalog, res grid.Resolution, p Paths) (*Index, error) {
	want := checksums{
		Catalog:    strconv.FormatUint(cat.Checksum(), 16),
		Resolution: int(res),
	}

	if idx, err := load(cat, res, p, want); err == nil {
		log.Printf("[index] loaded %s cells (%s) from %s",
			humanize.Comma(int64(idx.Len())), humanize.Bytes(uint64(idx.Entries()*RecordSize)), p.Index)
		return idx, nil
	} else if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errStale) {
		log.Printf("[index] persisted index unusable, rebuilding: %v", err)
	}

	idx, err := Build(cat, res)
	if err != nil {
		return nil, err
	}
	log.Printf("[index] built %s cells from %s cities (%d collisions)",
		humanize.Comma(int64(idx.Len())), humanize.Comma(int64(cat.Len())), len(idx.Collisions()))

	if err := Save(idx, p, cat); err != nil {
		log.Printf("[index] save failed: %v", err)
	}
	return idx, nil
}

var errStale = errors.New("index: stale")

func load(cat *catalog.Catalog, res grid.Resolution, p Paths, want checksums) (*Index, error) {
	raw, err := os.ReadFile(p.Checksums)
	if err != nil {
		return nil, err
	}
	var have checksums
	if err := json.Unmarshal(raw, &have); err != nil {
		return nil, fmt.Errorf("checksums %s: %w", p.Checksums, err)
	}
	if have.Catalog != want.Catalog || have.Resolution != want.Resolution {
		log.Printf("[index] catalog or resolution changed, rebuilding")
		return nil, errStale
	}

	data, err := os.ReadFile(p.Index)
	if err != nil {
		return nil, err
	}
	idx, err := Deserialize(data, res, cat.Keys())
	if err != nil {
		return nil, err
	}
	if idx.Entries() != have.Records {
		return nil, fmt.Errorf("%w: %d records, sidecar says %d", ErrTruncatedIndex, idx.Entries(), have.Records)
	}
	return idx, nil
}

// Save writes the sparse index and its checksum sidecar.
func Save(idx *Index, p Paths, cat *catalog.Catalog) error {
	data, err := idx.MarshalBinary()
	if err != nil {
		return err
	}
	if err := writeFile(p.Index, data); err != nil {
		return err
	}
	sum, err := json.Marshal(checksums{
		Catalog:    strconv.FormatUint(cat.Checksum(), 16),
		Resolution: int(idx.res),
		Records:    idx.Entries(),
	})
	if err != nil {
		return err
	}
	if err := writeFile(p.Checksums, sum); err != nil {
		return err
	}
	log.Printf("[index] saved %s to %s", humanize.Bytes(uint64(len(data))), p.Index)
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
