package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string    `json:"name"`
	IDs  []uint32  `json:"ids"`
	Mean []float64 `json:"mean"`
}

func TestCodecs(t *testing.T) {
	in := sample{Name: "Cluster 0", IDs: []uint32{1, 5, 9}, Mean: []float64{0.5, 1.5}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{
		"":     None,
		"none": None,
		"zstd": Zstd,
		"LZ4":  LZ4,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestCompressionForPath(t *testing.T) {
	assert.Equal(t, Zstd, CompressionForPath("out.json.zst"))
	assert.Equal(t, LZ4, CompressionForPath("out.json.lz4"))
	assert.Equal(t, None, CompressionForPath("out.json"))
}

func TestCompressedRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"ids":[1,2,3,4,5,6,7,8]}`), 200)

	for _, c := range []Compression{None, Zstd, LZ4} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer

			w, err := NewWriter(&buf, c)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if c != None {
				assert.Less(t, buf.Len(), len(payload))
			}

			r, err := NewReader(&buf, c)
			require.NoError(t, err)
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, payload, out)
		})
	}
}
