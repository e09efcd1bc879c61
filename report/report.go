package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fitsim/arena"
)

// DefaultPath is the report file written when no path is configured
const DefaultPath = "memory_stats.txt"

// Header is the first record of every CSV report
var Header = []string{"Algorithm", "Allocated", "Free", "Fragmentation", "SuccessRate"}

// Format selects the encoding of a report
type Format uint32

const (
	// FormatCSV writes one comma-delimited record per strategy after Header
	FormatCSV Format = iota
	// FormatJSON writes a json document with full statistics and the best performer
	FormatJSON
)

var formatMapping = map[Format]string{
	FormatCSV:  "csv",
	FormatJSON: "json",
}

func (f Format) String() string {
	return formatMapping[f]
}

// ParseFormat accepts "csv" or "json" in any case
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for format, formatName := range formatMapping {
		if name == formatName {
			return format, nil
		}
	}

	return 0, errors.Newf("unknown report format %q", name)
}

// FormatForPath picks FormatJSON for .json files and FormatCSV for everything else
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// Record is one CSV row
type Record struct {
	Algorithm     string
	Allocated     int
	Free          int
	Fragmentation float64
	SuccessRate   float64
}

func NewRecord(stats arena.Statistics) Record {
	return Record{
		Algorithm:     stats.Label,
		Allocated:     stats.AllocatedBytes,
		Free:          stats.FreeBytes,
		Fragmentation: stats.FragmentationPercent,
		SuccessRate:   stats.SuccessRate,
	}
}

func (r Record) Fields() []string {
	return []string{
		r.Algorithm,
		strconv.Itoa(r.Allocated),
		strconv.Itoa(r.Free),
		strconv.FormatFloat(r.Fragmentation, 'f', 2, 64),
		strconv.FormatFloat(r.SuccessRate, 'f', 2, 64),
	}
}

// BestPerformer returns the statistics with the highest Score. Ties go to the earliest entry.
func BestPerformer(stats []arena.Statistics) (arena.Statistics, bool) {
	if len(stats) == 0 {
		return arena.Statistics{}, false
	}

	best := stats[0]
	for _, candidate := range stats[1:] {
		if candidate.Score() > best.Score() {
			best = candidate
		}
	}

	return best, true
}

// WriteCSV writes Header followed by one record per entry of stats
func WriteCSV(w io.Writer, stats []arena.Statistics) error {
	writer := csv.NewWriter(w)

	err := writer.Write(Header)
	if err != nil {
		return errors.Wrap(err, "failed to write report header")
	}

	for _, s := range stats {
		err = writer.Write(NewRecord(s).Fields())
		if err != nil {
			return errors.Wrapf(err, "failed to write report record for %s", s.Label)
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush report")
}

// WriteJSON writes a json document holding every entry of stats, its score, and the best performer
func WriteJSON(w io.Writer, sessionID string, stats []arena.Statistics) error {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	if sessionID != "" {
		obj.Name("Session").String(sessionID)
	}

	if best, ok := BestPerformer(stats); ok {
		obj.Name("BestPerformer").String(best.Label)
	}

	arr := obj.Name("Algorithms").Array()
	for _, s := range stats {
		record := NewRecord(s)
		entry := arr.Object()
		entry.Name("Algorithm").String(record.Algorithm)
		entry.Name("Slug").String(s.Strategy.Slug())
		entry.Name("Allocated").Int(record.Allocated)
		entry.Name("Free").Int(record.Free)
		entry.Name("Fragmentation").Float64(record.Fragmentation)
		entry.Name("SuccessRate").Float64(record.SuccessRate)
		entry.Name("Score").Float64(s.Score())
		entry.Name("SuccessfulAllocations").Int(s.Counters.SuccessfulAllocations)
		entry.Name("FailedAllocations").Int(s.Counters.FailedAllocations)
		entry.Name("TotalRequests").Int(s.Counters.TotalRequests)
		entry.End()
	}
	arr.End()
	obj.End()

	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "failed to encode json report")
	}

	_, err := w.Write(writer.Bytes())
	return errors.Wrap(err, "failed to write json report")
}

// Write encodes stats to w in the requested format
func Write(w io.Writer, format Format, sessionID string, stats []arena.Statistics) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, stats)
	case FormatJSON:
		return WriteJSON(w, sessionID, stats)
	default:
		return errors.Newf("unknown report format: %d", format)
	}
}

// Save writes a report to path, replacing any existing file. The format follows the file extension.
func Save(path, sessionID string, stats []arena.Statistics) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report %s", path)
	}
	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close report %s", path)
		}
	}()

	return Write(file, FormatForPath(path), sessionID, stats)
}
