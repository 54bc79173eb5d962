package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/index"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild and persist the city index from the station catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.StationsPath())
			if err != nil {
				return err
			}
			idx, err := index.Build(cat, cfg.Resolution())
			if err != nil {
				return err
			}
			paths := cfg.IndexPaths()
			if err := index.Save(idx, paths, cat); err != nil {
				return err
			}
			printIndexStats(cmd.OutOrStdout(), cat, idx, paths)
			return nil
		},
	}
}

func printIndexStats(w io.Writer, cat *catalog.Catalog, idx *index.Index, paths index.Paths) {
	fmt.Fprintf(w, "cities:     %s\n", humanize.Comma(int64(cat.Len())))
	fmt.Fprintf(w, "resolution: %d x %d\n", idx.Resolution(), idx.Resolution())
	fmt.Fprintf(w, "cells:      %s (%s on disk)\n",
		humanize.Comma(int64(idx.Len())), humanize.Bytes(uint64(idx.Entries()*index.RecordSize)))
	collisions := idx.Collisions()
	fmt.Fprintf(w, "collisions: %d\n", len(collisions))
	for _, c := range collisions {
		fmt.Fprintf(w, "  (%d,%d): %s\n", c.X, c.Y, strings.Join(idx.Cities(c), "; "))
	}
	fmt.Fprintf(w, "written:    %s, %s\n", paths.Index, paths.Checksums)
}

func newLocateCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "locate <city>",
		Short: "Find catalog cities by approximate name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.StationsPath())
			if err != nil {
				return err
			}
			res := cfg.Resolution()
			w := cmd.OutOrStdout()
			matches := cat.Locate(strings.Join(args, " "), limit)
			if len(matches) == 0 {
				fmt.Fprintln(w, "no cities in catalog")
				return nil
			}
			for _, m := range matches {
				c := grid.ToGrid(m.Record.Geo, res)
				fmt.Fprintf(w, "%-32s  dist=%-2d  %-18s  cell=(%d,%d)  %d stations\n",
					m.Record.Key, m.Distance, m.Record.Geo, c.X, c.Y, len(m.Record.Stations))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of matches")
	return cmd
}

func newProbeCmd() *cobra.Command {
	var fuzziness int
	cmd := &cobra.Command{
		Use:   "probe <lat> <lon>",
		Short: "Show what the globe would find at a position",
		Long: `Probe converts a latitude and longitude in signed degrees to a grid cell,
searches around it and lists the cities and stations found.

Flags go before the coordinates. A negative latitude needs a -- first:

  globeradio probe 41.08 -81.52
  globeradio probe -f 3 -- -33.87 151.21`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if fuzziness == 0 {
				fuzziness = cfg.Tuning.Fuzziness
			}
			cat, idx, err := loadData(cfg)
			if err != nil {
				return err
			}
			return probe(cmd.OutOrStdout(), grid.Geo{Lat: lat, Lon: lon}, fuzziness, cat, idx)
		},
	}
	cmd.Flags().IntVarP(&fuzziness, "fuzziness", "f", 0, "Search radius (default from config)")
	// Stop flag parsing at the latitude so a western longitude is read as a
	// number.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func probe(w io.Writer, g grid.Geo, fuzziness int, cat *catalog.Catalog, idx *index.Index) error {
	origin := grid.ToGrid(g, idx.Resolution())
	area, err := grid.Search(origin, fuzziness, idx.Resolution())
	if err != nil {
		return err
	}
	res := index.Resolve(area, idx, cat)

	fmt.Fprintf(w, "position: %s\n", g)
	fmt.Fprintf(w, "cell:     (%d,%d) of %d\n", origin.X, origin.Y, idx.Resolution())
	fmt.Fprintf(w, "area:     %d cells (fuzziness %d)\n", len(area), fuzziness)
	if !res.Found() {
		fmt.Fprintf(w, "found:    nothing near %s\n", res.Geo)
		return nil
	}
	fmt.Fprintf(w, "found:    %s at %s\n", res.City, res.Geo)
	if len(res.Cities) > 1 {
		fmt.Fprintf(w, "also:     %s\n", strings.Join(res.Cities[1:], "; "))
	}
	for i, st := range res.Stations {
		fmt.Fprintf(w, "  %2d. %s <%s>\n", i+1, st.Name, st.URL)
	}
	return nil
}
