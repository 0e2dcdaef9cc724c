// Package worklist reads the CSV listing the files and folders to migrate.
package worklist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Kind classifies a work item as a file or a folder. The CSV kind column is
// a hint only; the engine trusts the remote metadata when they disagree.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Item is one row of the work list: a Drive item not owned by the invoking
// account. Immutable once read.
type Item struct {
	ID   string
	Kind Kind
}

// ErrEmpty is returned when the CSV yields no usable work items.
var ErrEmpty = errors.New("worklist: no usable rows in work list")

// Load reads work items from the CSV at path. The first column holds a raw
// Drive ID or a drive.google.com URL; an optional second column holds a
// kind hint ("file" or "folder", case-insensitive). A header row is
// detected and skipped. Rows without an extractable ID are skipped with a
// warning. A missing or malformed file, or a file with zero usable rows,
// is a fatal input error — an empty work list means nothing can be done
// safely.
func Load(path string, logger *slog.Logger) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worklist: opening %s: %w", path, err)
	}
	defer f.Close()

	items, err := parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("worklist: reading %s: %w", path, err)
	}

	return items, nil
}

func parse(r io.Reader, logger *slog.Logger) ([]Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow ragged rows; validated per row
	reader.TrimLeadingSpace = true

	var items []Item

	row := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		row++

		item, ok := parseRow(record)
		if !ok {
			// The first unparseable row is assumed to be a header.
			if row == 1 {
				logger.Debug("skipping header row")
				continue
			}

			logger.Warn("skipping row without a usable item ID",
				slog.Int("row", row),
				slog.String("record", strings.Join(record, ",")),
			)

			continue
		}

		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrEmpty
	}

	return items, nil
}

// parseRow extracts an Item from one CSV record. The ID column is the first
// non-empty column holding a raw ID or Drive URL; the column after it, if
// present, is the kind hint.
func parseRow(record []string) (Item, bool) {
	for i, field := range record {
		id, urlKind := extractID(strings.TrimSpace(field))
		if id == "" {
			continue
		}

		kind := urlKind
		if i+1 < len(record) {
			if hinted, ok := parseKind(record[i+1]); ok {
				kind = hinted
			}
		}

		return Item{ID: id, Kind: kind}, true
	}

	return Item{}, false
}

// parseKind interprets the optional kind column. Unrecognized values are
// ignored (the item defaults to file).
func parseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "folder", "dir", "directory":
		return KindFolder, true
	case "file":
		return KindFile, true
	default:
		return "", false
	}
}

// URL prefixes recognized in the ID column.
const (
	filePrefix   = "drive.google.com/file/d/"
	folderPrefix = "drive.google.com/drive/folders/"
)

// minRawIDLen rejects short words (header cells like "id" or "type") from
// being mistaken for raw Drive IDs, which are much longer.
const minRawIDLen = 10

// extractID returns the Drive ID from a raw ID or a sharing URL, plus the
// kind implied by the URL form (folders URLs imply a folder; everything
// else defaults to file).
func extractID(field string) (string, Kind) {
	if field == "" {
		return "", KindFile
	}

	if idx := strings.Index(field, filePrefix); idx >= 0 {
		return trimIDSuffix(field[idx+len(filePrefix):]), KindFile
	}

	if idx := strings.Index(field, folderPrefix); idx >= 0 {
		return trimIDSuffix(field[idx+len(folderPrefix):]), KindFolder
	}

	// Not a URL: accept as a raw ID if it looks like one. Drive IDs are
	// URL-safe base64-ish strings; reject anything short or with spaces or
	// slashes so prose and header cells in the CSV don't slip through.
	if len(field) < minRawIDLen || strings.ContainsAny(field, " /\\:") {
		return "", KindFile
	}

	return field, KindFile
}

// trimIDSuffix cuts the ID off at the first path or query delimiter.
func trimIDSuffix(s string) string {
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		return s[:idx]
	}

	return s
}
