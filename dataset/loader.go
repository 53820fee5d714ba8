package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"nearest-point-service/models"
)

// Counts are the parse statistics of one load pass.
type Counts struct {
	Seen    int
	Kept    int
	Skipped int
}

// Column aliases accepted in the header row, checked in order.
var (
	latColumns    = []string{"latitude", "lat"}
	lngColumns    = []string{"longitude", "lng", "lon"}
	idColumns     = []string{"id"}
	nameColumns   = []string{"name"}
	levelColumns  = []string{"level"}
	codeColumns   = []string{"iso_code", "code", "iso"}
	regionColumns = []string{"region_ids", "regions", "country_ids", "countries"}
)

var regionSplit = regexp.MustCompile(`[,;\s]+`)

// ResolveSourcePath returns the first existing path. An explicitly
// configured override is authoritative: if it is set but missing, the
// resolution fails naming the override rather than silently falling back
// to a default dataset the operator did not ask for.
func ResolveSourcePath(override string, candidates []string) (string, error) {
	if override != "" {
		if fileExists(override) {
			return override, nil
		}
		return "", &ConfigError{Probed: []string{override}}
	}
	probed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
		probed = append(probed, c)
	}
	return "", &ConfigError{Probed: probed}
}

// LoadRecords stream-parses the CSV file at path into PointRecords. The
// first row is the header. Rows whose latitude or longitude is missing,
// empty, or not a finite number are counted as skipped and excluded; the
// load continues. Structural CSV failures and mid-stream read failures
// abort the load.
func LoadRecords(path string) ([]models.PointRecord, Counts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Counts{}, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return []models.PointRecord{}, Counts{}, nil
	}
	if err != nil {
		return nil, Counts{}, classifyReadError(path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(name)] = i
	}

	var records []models.PointRecord
	var counts Counts
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, counts, classifyReadError(path, err)
		}
		counts.Seen++

		lat, latOK := parseCoord(fieldByAlias(cols, row, latColumns))
		lng, lngOK := parseCoord(fieldByAlias(cols, row, lngColumns))
		if !latOK || !lngOK {
			counts.Skipped++
			continue
		}

		raw := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				raw[name] = strings.TrimSpace(row[i])
			}
		}

		records = append(records, models.PointRecord{
			ID:            fieldByAlias(cols, row, idColumns),
			Name:          fieldByAlias(cols, row, nameColumns),
			Level:         fieldByAlias(cols, row, levelColumns),
			Latitude:      lat,
			Longitude:     lng,
			AuxiliaryCode: fieldByAlias(cols, row, codeColumns),
			RegionIDs:     splitRegions(fieldByAlias(cols, row, regionColumns)),
			RawFields:     raw,
		})
		counts.Kept++
	}
	return records, counts, nil
}

func classifyReadError(path string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Path: path, Err: err}
	}
	return &IOError{Path: path, Err: err}
}

func fieldByAlias(cols map[string]int, row []string, aliases []string) string {
	for _, a := range aliases {
		if i, ok := cols[a]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
	}
	return ""
}

func parseCoord(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func splitRegions(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := regionSplit.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
