package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsEveryInterval(t *testing.T) {
	src := strings.NewReader(strings.Repeat("a", 100))

	var reports [][2]int64
	pr := NewReader(src, 100, 30, func(read, total int64) {
		reports = append(reports, [2]int64{read, total})
	})

	// 10 byte reads make the report points deterministic.
	buf := make([]byte, 10)
	var out bytes.Buffer
	for {
		n, err := pr.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, 100, out.Len())
	assert.Equal(t, int64(100), pr.BytesRead())
	assert.Equal(t, [][2]int64{{30, 100}, {60, 100}, {90, 100}, {100, 100}}, reports)
}

func TestReader_FinalReportOnEOF(t *testing.T) {
	var last int64
	calls := 0
	pr := NewReader(strings.NewReader("hello"), -1, 1<<20, func(read, _ int64) {
		last = read
		calls++
	})

	data, err := io.ReadAll(pr)
	require.NoError(t, err)

	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), last)
	assert.Equal(t, 1, calls)
}

func TestReader_NilCallback(t *testing.T) {
	pr := NewReader(strings.NewReader("data"), 4, 1, nil)

	data, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
