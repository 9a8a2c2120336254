package writer

import (
	"FlowForge/internal/model"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Flow records flush to disk every this many writes, so a run killed
// mid-stream still leaves parseable files behind.
const flushEvery = 4096

var csvHeader = []string{
	"timestamp", "srcaddr", "dstaddr", "nexthop", "input", "output",
	"dPkts", "dOctets", "first", "last", "srcport", "dstport",
	"tcp_flags", "protocol", "tos", "src_as", "dst_as", "src_mask", "dst_mask",
}

// CSVWriter appends flow records to raw_flow.csv and sampled_flow.csv in
// the output directory. Append-only with a leading header row; no footer,
// so partial files parse cleanly.
type CSVWriter struct {
	rawFile     *os.File
	sampledFile *os.File
	raw         *csv.Writer
	sampled     *csv.Writer
	rawPath     string
	sampledPath string
	pending     int
}

// NewCSVWriter creates both flow files and writes their header rows.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	w := &CSVWriter{
		rawPath:     filepath.Join(dir, "raw_flow.csv"),
		sampledPath: filepath.Join(dir, "sampled_flow.csv"),
	}

	var err error
	if w.rawFile, err = os.Create(w.rawPath); err != nil {
		return nil, fmt.Errorf("failed to create flow file '%s': %w", w.rawPath, err)
	}
	if w.sampledFile, err = os.Create(w.sampledPath); err != nil {
		w.rawFile.Close()
		return nil, fmt.Errorf("failed to create flow file '%s': %w", w.sampledPath, err)
	}

	w.raw = csv.NewWriter(w.rawFile)
	w.sampled = csv.NewWriter(w.sampledFile)

	if err := w.raw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write header to '%s': %w", w.rawPath, err)
	}
	if err := w.sampled.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write header to '%s': %w", w.sampledPath, err)
	}
	w.raw.Flush()
	w.sampled.Flush()
	if err := w.raw.Error(); err != nil {
		return nil, fmt.Errorf("failed to write header to '%s': %w", w.rawPath, err)
	}
	if err := w.sampled.Error(); err != nil {
		return nil, fmt.Errorf("failed to write header to '%s': %w", w.sampledPath, err)
	}

	return w, nil
}

// WriteRaw appends a record to the raw flow file.
func (w *CSVWriter) WriteRaw(rec *model.FlowRecord) error {
	return w.append(w.raw, w.rawPath, rec)
}

// WriteSampled appends a record to the sampled flow file.
func (w *CSVWriter) WriteSampled(rec *model.FlowRecord) error {
	return w.append(w.sampled, w.sampledPath, rec)
}

func (w *CSVWriter) append(cw *csv.Writer, path string, rec *model.FlowRecord) error {
	if err := cw.Write(record(rec)); err != nil {
		return fmt.Errorf("failed to append flow record to '%s': %w", path, err)
	}
	w.pending++
	if w.pending >= flushEvery {
		w.pending = 0
		w.raw.Flush()
		w.sampled.Flush()
		if err := w.raw.Error(); err != nil {
			return fmt.Errorf("failed to flush '%s': %w", w.rawPath, err)
		}
		if err := w.sampled.Error(); err != nil {
			return fmt.Errorf("failed to flush '%s': %w", w.sampledPath, err)
		}
	}
	return nil
}

// Close flushes and closes both files.
func (w *CSVWriter) Close() error {
	w.raw.Flush()
	w.sampled.Flush()

	var firstErr error
	if err := w.raw.Error(); err != nil {
		firstErr = fmt.Errorf("failed to flush '%s': %w", w.rawPath, err)
	}
	if err := w.sampled.Error(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to flush '%s': %w", w.sampledPath, err)
	}
	if err := w.rawFile.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close '%s': %w", w.rawPath, err)
	}
	if err := w.sampledFile.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close '%s': %w", w.sampledPath, err)
	}
	return firstErr
}

func record(rec *model.FlowRecord) []string {
	return []string{
		strconv.FormatInt(rec.Timestamp, 10),
		strconv.FormatUint(uint64(rec.SrcAddr), 10),
		strconv.FormatUint(uint64(rec.DstAddr), 10),
		strconv.FormatUint(uint64(rec.NextHop), 10),
		strconv.FormatUint(uint64(rec.Input), 10),
		strconv.FormatUint(uint64(rec.Output), 10),
		strconv.FormatUint(uint64(rec.Packets), 10),
		strconv.FormatUint(uint64(rec.Octets), 10),
		strconv.FormatInt(rec.First, 10),
		strconv.FormatInt(rec.Last, 10),
		strconv.FormatUint(uint64(rec.SrcPort), 10),
		strconv.FormatUint(uint64(rec.DstPort), 10),
		strconv.FormatUint(uint64(rec.TCPFlags), 10),
		strconv.FormatUint(uint64(rec.Protocol), 10),
		strconv.FormatUint(uint64(rec.Tos), 10),
		strconv.FormatUint(uint64(rec.SrcAS), 10),
		strconv.FormatUint(uint64(rec.DstAS), 10),
		strconv.FormatUint(uint64(rec.SrcMask), 10),
		strconv.FormatUint(uint64(rec.DstMask), 10),
	}
}
