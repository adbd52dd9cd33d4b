package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/czerwonk/pingwatch/apperror"
	"github.com/czerwonk/pingwatch/probe"
)

// TimeFormat is the ISO-8601 layout of the timestamp column. It has a fixed
// width so that rows sort lexically in time order.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Header is the first row of every record store.
var Header = []string{"timestamp", "target", "reachable", "latency_ms"}

// Writer appends rounds to a CSV record store.
//
// Every call to Append opens, writes, syncs and closes the file, so rounds
// written before a crash are never lost. Only a single writer per file is
// supported; concurrent processes appending to the same path may interleave.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string {
	return w.path
}

// Append writes one row per result, all sharing the round timestamp ts. The
// header is written first if the store is new or empty.
func (w *Writer) Append(ts time.Time, results []probe.Result) (err error) {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperror.New(apperror.Persistence, "store.append", err)
	}
	defer func() {
		err = multierr.Append(err, closeFile(f))
	}()

	info, err := f.Stat()
	if err != nil {
		return apperror.New(apperror.Persistence, "store.append", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(Header); err != nil {
			return apperror.New(apperror.Persistence, "store.append", err)
		}
	}

	stamp := ts.UTC().Format(TimeFormat)
	for _, r := range results {
		if err := cw.Write(row(stamp, r)); err != nil {
			return apperror.New(apperror.Persistence, "store.append", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperror.New(apperror.Persistence, "store.append", err)
	}

	if err := f.Sync(); err != nil {
		return apperror.New(apperror.Persistence, "store.append", err)
	}

	return nil
}

func closeFile(f *os.File) error {
	if err := f.Close(); err != nil {
		return apperror.New(apperror.Persistence, "store.close", err)
	}
	return nil
}

func row(stamp string, r probe.Result) []string {
	r = r.Normalize()

	reachable := "0"
	if r.Reachable {
		reachable = "1"
	}

	latency := ""
	if r.LatencyMS != nil {
		latency = strconv.FormatFloat(*r.LatencyMS, 'f', -1, 64)
	}

	return []string{stamp, r.Target, reachable, latency}
}

// Record is a single parsed row of a record store.
type Record struct {
	Timestamp time.Time
	Target    string
	Reachable bool
	LatencyMS *float64
}

var errBadHeader = errors.New("unexpected header")

// Read parses all records from r. An empty input yields no records.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, h := range Header {
		if head[i] != h {
			return nil, fmt.Errorf("%w: %v", errBadHeader, head)
		}
	}

	records := make([]Record, 0)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}

		rec, err := parseRecord(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
}

// ReadFile parses the record store at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

func parseRecord(fields []string) (Record, error) {
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}

	rec := Record{
		Timestamp: ts.UTC(),
		Target:    fields[1],
	}

	switch fields[2] {
	case "1":
		rec.Reachable = true
	case "0":
	default:
		return Record{}, fmt.Errorf("invalid reachable flag %q", fields[2])
	}

	if fields[3] != "" {
		v, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid latency %q: %w", fields[3], err)
		}
		rec.LatencyMS = &v
	}

	return rec, nil
}
