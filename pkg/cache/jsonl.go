package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mesh-intelligence/patchcache/internal/mapper"
	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// CompressedSuffix marks dump files that are zstd compressed.
const CompressedSuffix = ".zst"

// ImportResult counts the outcome of ImportJSONL.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ExportJSONL writes one CacheRecord per line to path, replacing the file
// atomically. It returns the number of records written.
func ExportJSONL(ctx context.Context, store Store, path string) (int, error) {
	records, err := store.Records(ctx)
	if err != nil {
		return 0, err
	}
	lines := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encoding record %s/%s: %w", rec.Ref(), rec.ElementID, err)
		}
		lines = append(lines, line)
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// ImportJSONL stores every record of the file at path. Malformed lines,
// unknown types and records written for another model version are
// skipped.
func ImportJSONL(ctx context.Context, store Store, models types.TypeModelResolver, path string, logger *slog.Logger) (ImportResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lines, err := readJSONL(path)
	if err != nil {
		return ImportResult{}, err
	}
	m := mapper.New(models)

	var res ImportResult
	for _, line := range lines {
		var rec types.CacheRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping malformed record", "error", err)
			res.Skipped++
			continue
		}
		model, err := models.ResolveServerTypeReference(ctx, rec.Ref())
		if err != nil {
			logger.Warn("skipping record of unknown type", "type", rec.Ref().String(), "error", err)
			res.Skipped++
			continue
		}
		if rec.Version != model.Version {
			logger.Warn("skipping stale record", "type", rec.Ref().String(), "element", rec.ElementID, "version", rec.Version)
			res.Skipped++
			continue
		}
		inst, err := m.DecodeJSON(ctx, model, rec.Body)
		if err != nil {
			logger.Warn("skipping undecodable record", "type", rec.Ref().String(), "element", rec.ElementID, "error", err)
			res.Skipped++
			continue
		}
		if err := store.Put(ctx, rec.Ref(), inst); err != nil {
			return res, fmt.Errorf("storing %s %s/%s: %w", rec.Ref(), rec.ListID, rec.ElementID, err)
		}
		res.Imported++
	}
	return res, nil
}

// readJSONL returns each non-empty, parseable line of path. Files ending in
// CompressedSuffix are decompressed.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	var records []json.RawMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL writes records to path with the temp-file, fsync, rename
// pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(format string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	var out io.Writer = tmp
	var enc *zstd.Encoder
	if strings.HasSuffix(path, CompressedSuffix) {
		enc, err = zstd.NewWriter(tmp)
		if err != nil {
			return fail("creating zstd stream: %w", err)
		}
		out = enc
	}

	w := bufio.NewWriter(out)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fail("closing zstd stream: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
