package checksum

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(907060870), Sum([]byte("hello")))
	assert.Equal(t, uint32(0), Sum(nil))
	assert.Equal(t, uint32(0xCBF43926), Sum([]byte("123456789")))
	assert.Equal(t, Sum([]byte("hello")), Sum([]byte("hello")), "sum must be stable across calls")
}

func TestHashingReader(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("garrysmod"), 1000)
	hr := NewHashingReader(bytes.NewReader(data))

	out, err := io.ReadAll(hr)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, Sum(data), hr.Sum32())
	assert.Equal(t, uint64(len(data)), hr.Count())
}

func TestHashingReader_Partial(t *testing.T) {
	t.Parallel()

	hr := NewHashingReader(bytes.NewReader([]byte("hello world")))
	buf := make([]byte, 5)
	_, err := io.ReadFull(hr, buf)
	require.NoError(t, err)
	assert.Equal(t, Sum([]byte("hello")), hr.Sum32())
}
