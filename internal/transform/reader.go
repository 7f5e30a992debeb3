package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cuongbtq/glue-pipeline/shared/blob"
)

// ReadRecords decodes every object under location. Objects may hold JSON
// lines, concatenated objects or a single array of objects. Hidden objects
// (leading "." or "_") are skipped.
func ReadRecords(ctx context.Context, store blob.Store, location string) ([]Record, error) {
	uris, err := store.List(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to list source objects: %w", err)
	}

	var records []Record
	for _, uri := range uris {
		name := path.Base(uri)
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}

		data, err := store.Get(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", uri, err)
		}

		recs, err := DecodeRecords(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", uri, err)
		}
		records = append(records, recs...)
	}

	return records, nil
}

// DecodeRecords parses one object's content.
func DecodeRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var recs []Record
		if err := dec.Decode(&recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	var recs []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
}
