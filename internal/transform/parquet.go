package transform

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// OutputName is the single object written per run; there are no partitions.
func OutputName(runID string) string {
	return fmt.Sprintf("part-%s.snappy.parquet", runID)
}

// WriteParquet writes the frame as snappy compressed parquet. Every column is
// an optional UTF8 byte array.
func WriteParquet(w io.Writer, frame *Frame) error {
	group := make(parquet.Group, len(frame.Schema))
	for _, f := range frame.Schema {
		if f.Type != TypeString {
			return fmt.Errorf("%w: %s for column %s", ErrUnsupportedType, f.Type, f.Name)
		}
		group[f.Name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("schema", group)

	// leaf columns of a group are ordered by name
	order := make([]int, len(frame.Schema))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return frame.Schema[order[a]].Name < frame.Schema[order[b]].Name
	})

	writer := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))

	rows := make([]parquet.Row, len(frame.Rows))
	for i, src := range frame.Rows {
		row := make(parquet.Row, len(order))
		for col, field := range order {
			if v := src[field]; v != nil {
				row[col] = parquet.ByteArrayValue([]byte(*v)).Level(0, 1, col)
			} else {
				row[col] = parquet.NullValue().Level(0, 0, col)
			}
		}
		rows[i] = row
	}

	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return nil
}

// EncodeParquet returns the frame as an in-memory parquet file.
func EncodeParquet(frame *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
