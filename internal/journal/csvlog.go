// Package journal keeps the decision log as a flat, append-only CSV file.
package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bias-audit/backend/internal/store"
)

// Header is the column layout of the journal file.
var Header = []string{
	"public_id",
	"timestamp",
	"text",
	"options",
	"importance",
	"pre_confidence",
	"sensitivity",
	"backend",
	"biases",
	"evidence",
	"interventions",
	"follow_ups",
	"delay",
	"post_confidence",
	"change_reason",
}

// CSVLog appends decision records to a CSV file.
type CSVLog struct {
	path string
	mu   sync.Mutex
	file *os.File
	rows uint
}

// OpenCSV opens or creates the journal at path. A new file gets the header row;
// an existing file must start with it.
func OpenCSV(path string) (*CSVLog, error) {
	if path == "" {
		return nil, errors.New("journal path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	log := &CSVLog{path: path, file: file}

	records, err := log.readAll()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if records == nil {
		if err := log.writeRow(Header); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write journal header: %w", err)
		}
	}
	log.rows = uint(len(records))
	logrus.WithFields(logrus.Fields{
		"path": path,
		"rows": log.rows,
	}).Info("decision journal opened")
	return log, nil
}

// Path returns the journal file location.
func (l *CSVLog) Path() string {
	return l.path
}

// Append validates rec and writes it as one row, syncing the file before returning.
func (l *CSVLog) Append(ctx context.Context, rec *store.DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Prepare(rec); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("journal closed")
	}
	if err := l.writeRow(encodeRow(rec)); err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	l.rows++
	rec.ID = l.rows
	return nil
}

// List reads the journal back and applies opts in memory.
func (l *CSVLog) List(ctx context.Context, opts store.DecisionQuery) ([]store.DecisionRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	l.mu.Lock()
	records, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}
	rows, total := opts.Page(records)
	return rows, total, nil
}

// Close closes the journal file.
func (l *CSVLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *CSVLog) writeRow(row []string) error {
	w := csv.NewWriter(l.file)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// readAll returns nil for an empty file. Callers hold mu or own the file exclusively.
func (l *CSVLog) readAll() ([]store.DecisionRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(Header)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal header: %w", err)
	}
	for i, name := range Header {
		if header[i] != name {
			return nil, fmt.Errorf("journal header mismatch at column %d: %q", i, header[i])
		}
	}

	records := make([]store.DecisionRecord, 0)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal row: %w", err)
		}
		rec, err := decodeRow(row)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		rec.ID = uint(len(records) + 1)
		records = append(records, rec)
	}
	return records, nil
}

func encodeRow(rec *store.DecisionRecord) []string {
	return []string{
		rec.PublicID,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		rec.Text,
		rec.OptionsJSON,
		strconv.Itoa(rec.Importance),
		strconv.Itoa(rec.PreConfidence),
		strconv.Itoa(rec.Sensitivity),
		rec.Backend,
		rec.BiasesJSON,
		rec.EvidenceJSON,
		rec.InterventionsJSON,
		rec.FollowUps,
		strconv.FormatBool(rec.Delay),
		strconv.Itoa(rec.PostConfidence),
		rec.ChangeReason,
	}
}

func decodeRow(row []string) (store.DecisionRecord, error) {
	var rec store.DecisionRecord
	ts, err := time.Parse(time.RFC3339Nano, row[1])
	if err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	ints := make([]int, 0, 4)
	for _, idx := range []int{4, 5, 6, 13} {
		v, err := strconv.Atoi(row[idx])
		if err != nil {
			return rec, fmt.Errorf("%s: %w", Header[idx], err)
		}
		ints = append(ints, v)
	}
	delay, err := strconv.ParseBool(row[12])
	if err != nil {
		return rec, fmt.Errorf("delay: %w", err)
	}
	rec = store.DecisionRecord{
		PublicID:          row[0],
		RecordedAt:        ts,
		Text:              row[2],
		OptionsJSON:       row[3],
		Importance:        ints[0],
		PreConfidence:     ints[1],
		Sensitivity:       ints[2],
		Backend:           row[7],
		BiasesJSON:        row[8],
		EvidenceJSON:      row[9],
		InterventionsJSON: row[10],
		FollowUps:         row[11],
		Delay:             delay,
		PostConfidence:    ints[3],
		ChangeReason:      row[14],
		CreatedAt:         ts,
	}
	return rec, nil
}
