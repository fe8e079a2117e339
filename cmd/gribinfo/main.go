// Package main provides a command-line tool for examining GRIB2 files: the
// message-level inspection commands operate on grib.Read's decoded fields,
// while "index" and "dataset" drive the dataset-level facade (grib.Open,
// grib.BuildFileIndex) added on top of it.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	grib "github.com/ecmwf/cfgrib-go"
	"github.com/ecmwf/cfgrib-go/coords"
	"github.com/ecmwf/cfgrib-go/grid"
)

func main() {
	app := &cli.App{
		Name:      "gribinfo",
		Usage:     "examine GRIB2 files",
		UsageText: "gribinfo [global options] command [command options] <grib2-file>",
		Commands: []*cli.Command{
			summaryCommand(),
			listCommand(),
			detailCommand(),
			statsCommand(),
			bboxCommand(),
			indexCommand(),
			datasetCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func filenameArg(cCtx *cli.Context) (string, error) {
	filename := cCtx.Args().First()
	if filename == "" {
		return "", cli.Exit("missing <grib2-file> argument", 1)
	}
	return filename, nil
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "show file summary",
		ArgsUsage: "<grib2-file>",
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}
			fields, err := readGRIBFile(filename)
			if err != nil {
				return err
			}
			showSummary(filename, fields)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "list all records with basic info",
		ArgsUsage: "<grib2-file>",
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}
			fields, err := readGRIBFile(filename)
			if err != nil {
				return err
			}
			showList(fields)
			return nil
		},
	}
}

func detailCommand() *cli.Command {
	return &cli.Command{
		Name:      "detail",
		Usage:     "show detailed information for one or all records",
		ArgsUsage: "<grib2-file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "record", Value: -1, Usage: "show only this record (0-based)"},
			&cli.BoolFlag{Name: "values", Usage: "also print data values"},
		},
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}
			fields, err := readGRIBFile(filename)
			if err != nil {
				return err
			}
			showValues := cCtx.Bool("values")
			if record := cCtx.Int("record"); record >= 0 {
				if record >= len(fields) {
					return cli.Exit(fmt.Sprintf("record %d does not exist (file has %d records, numbered 0-%d)",
						record, len(fields), len(fields)-1), 1)
				}
				showRecordDetail(fields[record], record, showValues)
				return nil
			}
			showAllDetails(fields, showValues)
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "show min/max/valid-count statistics for each record",
		ArgsUsage: "<grib2-file>",
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}
			fields, err := readGRIBFile(filename)
			if err != nil {
				return err
			}
			showStats(fields)
			return nil
		},
	}
}

func bboxCommand() *cli.Command {
	return &cli.Command{
		Name:      "bbox",
		Usage:     "show bounding box and grid information",
		ArgsUsage: "<grib2-file>",
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}
			fields, err := readGRIBFile(filename)
			if err != nil {
				return err
			}
			showBoundingBoxes(fields)
			return nil
		},
	}
}

// indexCommand drives grib.BuildFileIndex/grib.OpenIndex directly, printing
// the distinct values found for each index key (spec.md §4.3's "index keys").
func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "build (and optionally persist) a FileIndex over the header keys",
		ArgsUsage: "<grib2-file>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "key", Usage: "index key (repeatable); defaults to grib.DefaultIndexKeys"},
			&cli.StringFlag{Name: "index-path", Usage: "sidecar index path to build/load (spec.md §4.3)"},
		},
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}
			keys := cCtx.StringSlice("key")
			if len(keys) == 0 {
				keys = append([]string(nil), grib.DefaultIndexKeys...)
			}

			stream, err := grib.OpenFileStream(filename)
			if err != nil {
				return cli.Exit(fmt.Sprintf("opening file stream: %v", err), 1)
			}
			defer stream.Close()

			indexPath := cCtx.String("index-path")
			var idx *grib.FileIndex
			if indexPath != "" {
				idx, err = grib.OpenIndex(stream, keys, nil, indexPath, grib.ErrorsWarn)
			} else {
				idx, err = grib.BuildFileIndex(stream, keys, nil, grib.ErrorsWarn)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("building index: %v", err), 1)
			}

			fmt.Printf("%d message(s) indexed over %d key(s)\n\n", len(idx.AllOffsets()), len(keys))
			for _, key := range keys {
				vals := idx.Values(key)
				fmt.Printf("%-20s %v\n", key, vals)
			}
			return nil
		},
	}
}

// datasetCommand drives the full grib.Open pipeline, optionally through a
// CoordinateTranslator model, and prints the resulting CDM Dataset shape.
func datasetCommand() *cli.Command {
	return &cli.Command{
		Name:      "dataset",
		Usage:     "build a CDM-style Dataset (FileIndex -> DatasetBuilder -> CoordinateTranslator)",
		ArgsUsage: "<grib2-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "coord-model", Usage: `coordinate model to translate into: "cds", "ecmwf", or "" (none)`},
			&cli.StringFlag{Name: "filter", Usage: `restrict to messages matching key=value (e.g. "level=500")`},
			&cli.BoolFlag{Name: "squeeze", Usage: "drop length-1 dimensions"},
		},
		Action: func(cCtx *cli.Context) error {
			filename, err := filenameArg(cCtx)
			if err != nil {
				return err
			}

			opts := []grib.OpenOption{grib.WithSqueeze(cCtx.Bool("squeeze"))}

			switch strings.ToLower(cCtx.String("coord-model")) {
			case "cds":
				opts = append(opts, grib.WithCoordModel(coords.CDS))
			case "ecmwf":
				opts = append(opts, grib.WithCoordModel(coords.ECMWF))
			case "":
			default:
				return cli.Exit(fmt.Sprintf("unknown coord-model %q, want \"cds\" or \"ecmwf\"", cCtx.String("coord-model")), 1)
			}

			if filter := cCtx.String("filter"); filter != "" {
				key, val, err := parseFilter(filter)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				opts = append(opts, grib.WithFilterByKeys(map[string]interface{}{key: val}))
			}

			ds, err := grib.Open(filename, opts...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("opening dataset: %v", err), 1)
			}
			defer grib.CloseDataset(ds)

			showDataset(ds)
			return nil
		},
	}
}

// parseFilter splits "key=value" and numeric-parses the value when possible,
// matching the permissive typing filter_by_keys carries (spec.md §8).
func parseFilter(s string) (string, interface{}, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("filter %q must be key=value", s)
	}
	key := strings.TrimSpace(parts[0])
	raw := strings.TrimSpace(parts[1])
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, f, nil
	}
	return key, raw, nil
}

func showDataset(ds *grib.Dataset) {
	fmt.Println("Dimensions:")
	dimNames := make([]string, 0, len(ds.Dimensions))
	for name := range ds.Dimensions {
		dimNames = append(dimNames, name)
	}
	sort.Strings(dimNames)
	for _, name := range dimNames {
		fmt.Printf("  %-20s %d\n", name, ds.Dimensions[name])
	}

	fmt.Println("\nVariables:")
	varNames := make([]string, 0, len(ds.Variables))
	for name := range ds.Variables {
		varNames = append(varNames, name)
	}
	sort.Strings(varNames)
	for _, name := range varNames {
		v := ds.Variables[name]
		fmt.Printf("  %-20s dims=%v shape=%v\n", name, v.Data.Dims(), v.Data.Shape())
	}

	fmt.Println("\nAttributes:")
	for k, v := range ds.Attributes {
		fmt.Printf("  %-20s %v\n", k, v)
	}
}

// readGRIBFile opens and reads a GRIB2 file
func readGRIBFile(filename string) ([]*grib.GRIB2, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	fields, err := grib.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading GRIB2 file: %w", err)
	}
	return fields, nil
}

func showSummary(filename string, fields []*grib.GRIB2) {
	fmt.Printf("File: %s\n", filename)
	fmt.Printf("Total records: %d\n\n", len(fields))

	if info, err := os.Stat(filename); err == nil {
		fmt.Printf("File size: %s\n\n", formatBytes(uint64(info.Size())))
	}

	disciplines := make(map[string]bool)
	centers := make(map[string]bool)
	paramTypes := make(map[string]bool)
	levels := make(map[string]bool)
	gridTypes := make(map[string]bool)
	refTimes := make(map[string]bool)

	for _, f := range fields {
		disciplines[f.Discipline] = true
		centers[f.Center] = true
		paramTypes[fmt.Sprintf("%s / %s", f.Parameter.CategoryName(), f.Parameter.String())] = true
		levels[f.Level] = true
		gridTypes[f.GridType] = true
		refTimes[f.ReferenceTime.Format("2006-01-02 15:04 MST")] = true
	}

	fmt.Printf("Disciplines: %s\n", strings.Join(keys(disciplines), ", "))
	fmt.Printf("Centers: %s\n", strings.Join(keys(centers), ", "))
	fmt.Printf("Reference times: %s\n", strings.Join(keys(refTimes), ", "))
	fmt.Printf("Grid types: %s\n", strings.Join(keys(gridTypes), ", "))
	fmt.Printf("\nParameter types present:\n")
	for _, p := range keys(paramTypes) {
		count := 0
		for _, f := range fields {
			if fmt.Sprintf("%s / %s", f.Parameter.CategoryName(), f.Parameter.String()) == p {
				count++
			}
		}
		fmt.Printf("  %s (%d records)\n", p, count)
	}

	fmt.Printf("\nLevels present:\n")
	for _, l := range keys(levels) {
		count := 0
		for _, f := range fields {
			if f.Level == l {
				count++
			}
		}
		fmt.Printf("  %s (%d records)\n", l, count)
	}

	if len(fields) > 0 {
		fmt.Printf("\nGrid information (from first record):\n")
		showGridInfo(fields[0])
	}

	fmt.Printf("\nUse \"list\" to see all records, \"detail\" for full information, \"dataset\" for the CDM view\n")
}

func showList(fields []*grib.GRIB2) {
	fmt.Printf("%-5s %-40s %-25s %-15s %s\n", "Rec#", "Parameter", "Level", "Grid", "Ref Time")
	fmt.Println(strings.Repeat("-", 120))

	for i, f := range fields {
		paramName := f.Parameter.String()
		if len(paramName) > 40 {
			paramName = paramName[:37] + "..."
		}

		levelStr := f.Level
		if f.LevelValue != 0 {
			levelStr = fmt.Sprintf("%s (%.1f)", f.Level, f.LevelValue)
		}
		if len(levelStr) > 25 {
			levelStr = levelStr[:22] + "..."
		}

		gridStr := fmt.Sprintf("%s %dx%d", f.GridType, f.GridNi, f.GridNj)
		if len(gridStr) > 15 {
			gridStr = gridStr[:12] + "..."
		}

		fmt.Printf("%-5d %-40s %-25s %-15s %s\n",
			i,
			paramName,
			levelStr,
			gridStr,
			f.ReferenceTime.Format("2006-01-02 15:04"))
	}
}

func showAllDetails(fields []*grib.GRIB2, showValues bool) {
	for i, f := range fields {
		showRecordDetail(f, i, showValues)
		if i < len(fields)-1 {
			fmt.Println(strings.Repeat("=", 80))
		}
	}
}

func showRecordDetail(f *grib.GRIB2, recordNum int, showValues bool) {
	fmt.Printf("Record #%d\n", recordNum)
	fmt.Println(strings.Repeat("-", 80))

	fmt.Printf("Discipline:         %s\n", f.Discipline)
	fmt.Printf("Center:             %s\n", f.Center)
	fmt.Printf("Production Status:  %s\n", f.ProductionStatus)
	fmt.Printf("Data Type:          %s\n", f.DataType)
	fmt.Printf("Reference Time:     %s\n", f.ReferenceTime.Format("2006-01-02 15:04:05 MST"))

	fmt.Printf("\nParameter:\n")
	fmt.Printf("  Category:         %s\n", f.Parameter.CategoryName())
	fmt.Printf("  Number:           %s\n", fmt.Sprint(f.Parameter.Number))
	fmt.Printf("  Name:             %s\n", f.Parameter.String())

	fmt.Printf("\nLevel:\n")
	fmt.Printf("  Type:             %s\n", f.Level)
	if f.LevelValue != 0 {
		fmt.Printf("  Value:            %.2f\n", f.LevelValue)
	}

	fmt.Printf("\nGrid:\n")
	showGridInfo(f)

	fmt.Printf("\nData:\n")
	fmt.Printf("  Total points:     %d\n", f.NumPoints)

	minVal, maxVal := getMinMax(f.Data)
	validCount := countValid(f.Data)

	fmt.Printf("  Valid points:     %d\n", validCount)
	fmt.Printf("  Missing points:   %d\n", f.NumPoints-validCount)

	if validCount > 0 {
		fmt.Printf("  Min value:        %.6f\n", minVal)
		fmt.Printf("  Max value:        %.6f\n", maxVal)
		fmt.Printf("  Range:            %.6f\n", maxVal-minVal)
	}

	if showValues {
		fmt.Printf("\nData Values:\n")
		printDataValues(f.Data, f.GridNi)
	}
}

func showStats(fields []*grib.GRIB2) {
	fmt.Printf("%-5s %-40s %-15s %12s %12s %12s\n",
		"Rec#", "Parameter", "Level", "Min", "Max", "Valid/Total")
	fmt.Println(strings.Repeat("-", 100))

	for i, f := range fields {
		paramName := f.Parameter.String()
		if len(paramName) > 40 {
			paramName = paramName[:37] + "..."
		}

		levelStr := f.Level
		if f.LevelValue != 0 {
			levelStr = fmt.Sprintf("%s %.0f", f.Level, f.LevelValue)
		}
		if len(levelStr) > 15 {
			levelStr = levelStr[:12] + "..."
		}

		minVal, maxVal := getMinMax(f.Data)
		validCount := countValid(f.Data)

		fmt.Printf("%-5d %-40s %-15s %12.4f %12.4f %6d/%-6d\n",
			i,
			paramName,
			levelStr,
			minVal,
			maxVal,
			validCount,
			f.NumPoints)
	}
}

func showBoundingBoxes(fields []*grib.GRIB2) {
	type gridKey struct {
		gridType string
		ni, nj   int
	}

	grids := make(map[gridKey]*grib.GRIB2)
	for _, f := range fields {
		key := gridKey{f.GridType, f.GridNi, f.GridNj}
		if _, exists := grids[key]; !exists {
			grids[key] = f
		}
	}

	fmt.Printf("Found %d unique grid(s) in file:\n\n", len(grids))

	i := 1
	for _, f := range grids {
		fmt.Printf("Grid #%d: %s (%d x %d = %d points)\n", i, f.GridType, f.GridNi, f.GridNj, f.NumPoints)
		showGridInfo(f)
		fmt.Println()
		i++
	}
}

func showGridInfo(f *grib.GRIB2) {
	fmt.Printf("  Type:             %s\n", f.GridType)
	fmt.Printf("  Dimensions:       %d x %d\n", f.GridNi, f.GridNj)
	fmt.Printf("  Total points:     %d\n", f.NumPoints)

	if len(f.Latitudes) > 0 && len(f.Longitudes) > 0 {
		minLat, maxLat := getMinMax(f.Latitudes)
		minLon, maxLon := getMinMax(f.Longitudes)

		fmt.Printf("  Latitude range:   %.4f to %.4f\n", minLat, maxLat)
		fmt.Printf("  Longitude range:  %.4f to %.4f\n", minLon, maxLon)

		if msg := f.GetMessage(); msg != nil && msg.Section3 != nil {
			switch g := msg.Section3.Grid.(type) {
			case *grid.LatLonGrid:
				lat1, lon1 := g.FirstGridPoint()
				lat2, lon2 := g.LastGridPoint()
				di, dj := g.Increment()
				fmt.Printf("  First point:      %.4f N, %.4f E\n", lat1, lon1)
				fmt.Printf("  Last point:       %.4f N, %.4f E\n", lat2, lon2)
				fmt.Printf("  Grid spacing:     %.4f x %.4f degrees\n", di, dj)

			case *grid.LambertConformalGrid:
				fmt.Printf("  First point:      %.4f N, %.4f E\n",
					float64(g.La1)/1e6, float64(g.Lo1)/1e6)
				fmt.Printf("  Grid spacing:     %d x %d meters\n", g.Dx, g.Dy)
				fmt.Printf("  Ref latitude:     %.4f N\n", float64(g.LaD)/1e6)
				fmt.Printf("  Ref longitude:    %.4f E\n", float64(g.LoV)/1e6)
				fmt.Printf("  Std parallels:    %.4f N, %.4f N\n",
					float64(g.Latin1)/1e6, float64(g.Latin2)/1e6)
			}
		}
	}
}

func printDataValues(data []float32, ni int) {
	const maxRowsToPrint = 20
	const maxColsToPrint = 10

	nj := len(data) / ni
	if ni == 0 {
		ni = len(data)
		nj = 1
	}

	rowsToPrint := nj
	if rowsToPrint > maxRowsToPrint {
		rowsToPrint = maxRowsToPrint
	}

	colsToPrint := ni
	if colsToPrint > maxColsToPrint {
		colsToPrint = maxColsToPrint
	}

	for j := range rowsToPrint {
		fmt.Printf("  Row %3d: ", j)
		for i := range colsToPrint {
			idx := j*ni + i
			if idx < len(data) {
				val := data[idx]
				if isMissing(val) {
					fmt.Printf("    MISS")
				} else {
					fmt.Printf(" %8.2f", val)
				}
			}
		}
		if ni > colsToPrint {
			fmt.Printf(" ... (%d more columns)", ni-colsToPrint)
		}
		fmt.Println()
	}

	if nj > rowsToPrint {
		fmt.Printf("  ... (%d more rows)\n", nj-rowsToPrint)
	}
	fmt.Printf("\n  Total: %d rows x %d columns = %d values\n", nj, ni, len(data))
}

func getMinMax(data []float32) (minVal, maxVal float32) {
	minVal = float32(math.MaxFloat32)
	maxVal = float32(-math.MaxFloat32)

	for _, v := range data {
		if !isMissing(v) {
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
	}

	if minVal == float32(math.MaxFloat32) {
		minVal = 0
		maxVal = 0
	}

	return
}

func countValid(data []float32) int {
	count := 0
	for _, v := range data {
		if !isMissing(v) {
			count++
		}
	}
	return count
}

func isMissing(v float32) bool {
	return v > 9e20
}

func keys(m map[string]bool) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
