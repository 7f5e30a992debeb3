package transform

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParquet(t *testing.T) {
	frame := &Frame{
		Schema: []Field{
			{Name: "obf_rating", Type: TypeString},
			{Name: "index", Type: TypeString},
		},
		Rows: []Row{
			{str("5"), str("1")},
			{nil, str("2")},
			{str("3"), nil},
		},
	}

	data, err := EncodeParquet(frame)
	require.NoError(t, err)

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.NumRows())

	fields := f.Schema().Fields()
	require.Len(t, fields, 2)

	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
		assert.True(t, field.Optional())
		assert.Equal(t, parquet.ByteArray, field.Type().Kind())
	}
	assert.ElementsMatch(t, []string{"index", "obf_rating"}, names)
}

func TestEncodeParquet_ComplaintsSchema(t *testing.T) {
	records := []Record{{"index": "1", "obf_author": "a"}, {"index": "2"}}

	frame, err := ApplyMapping(records, ComplaintsMappings())
	require.NoError(t, err)

	data, err := EncodeParquet(frame)
	require.NoError(t, err)

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.NumRows())
	assert.Len(t, f.Schema().Fields(), 67)
}

func TestEncodeParquet_RejectsNonString(t *testing.T) {
	_, err := EncodeParquet(&Frame{Schema: []Field{{Name: "a", Type: "int"}}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "part-jr_1.snappy.parquet", OutputName("jr_1"))
}
