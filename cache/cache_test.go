package cache

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

func program(n int) []byte {
	out := make([]byte, n)
	var x uint32 = 2463534242
	for i := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x)
	}
	return out
}

func sampleCache(programSize int) *Cache {
	return &Cache{
		Version: "0.3.0",
		Kernels: []kernel.KernelDesc{
			{
				Name:     "github.com/acme/app/axpy/saxpy",
				Program:  program(programSize),
				Features: device.FLOAT16 | device.BUFFER16,
				SpecDescs: []kernel.SpecDesc{
					{Name: "N", ScalarType: scalar.U32},
				},
				SliceDescs: []kernel.SliceDesc{
					{Name: "x", ScalarType: scalar.F16},
					{Name: "y", ScalarType: scalar.F16, Mutable: true, Item: true},
				},
				PushDescs: []kernel.PushDesc{
					{Name: "alpha", ScalarType: scalar.F32},
				},
			},
			{
				Name:    "github.com/acme/app/reduce/sum",
				Program: program(64),
				Safety:  kernel.Unsafe,
			},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, size := range []int{1, 3, 4, 4093, 4096, 20000} {
		c := sampleCache(size)
		s, err := Encode(c)
		require.NoError(t, err)
		assert.NotContains(t, s, "`")

		got, err := Decode(s)
		require.NoError(t, err, "program size %d", size)
		assert.Equal(t, c.Version, got.Version)
		require.Len(t, got.Kernels, len(c.Kernels))
		for i := range c.Kernels {
			assert.True(t, c.Kernels[i].Equal(&got.Kernels[i]), "kernel %d, program size %d", i, size)
		}
	}
}

func TestEncode_Chunks(t *testing.T) {
	s, err := Encode(sampleCache(20000))
	require.NoError(t, err)
	lines := strings.Split(s, "\n")
	assert.Greater(t, len(lines), 1)
	for _, line := range lines[:len(lines)-1] {
		// 4 byte prefix + ChunkSize bytes, 5 characters per 4 bytes
		assert.Len(t, line, (ChunkSize+4)/4*5)
	}
}

func TestDecode_AnyWhitespace(t *testing.T) {
	c := sampleCache(10000)
	s, err := Encode(c)
	require.NoError(t, err)
	s = "\n\t" + strings.ReplaceAll(s, "\n", "\n    ") + "\n"
	got, err := Decode(s)
	require.NoError(t, err)
	assert.Len(t, got.Kernels, 2)
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("  \n ")
	require.NoError(t, err)
	assert.Empty(t, c.Kernels)
}

func TestChunk_Padding(t *testing.T) {
	for n := 0; n < 9; n++ {
		chunk := program(n)
		line, err := encodeChunk(chunk)
		require.NoError(t, err)
		assert.Zero(t, len(line)%5)
		got, err := decodeChunk(line)
		require.NoError(t, err)
		assert.Equal(t, chunk, append([]byte{}, got...), "n=%d", n)
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid, err := Encode(sampleCache(100))
	require.NoError(t, err)
	badMagic, err := encodeChunk([]byte("XXXX0000000000000"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
	}{
		{"not z85 length", "abc"},
		{"invalid character", "~~~~~"},
		{"truncated", valid[:len(valid)-5]},
		{"bad magic", badMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCacheFormat))
			var fe *CacheFormatError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	payload, err := compress([]byte("some msgpack bytes, some msgpack bytes, some msgpack bytes"))
	require.NoError(t, err)
	payload[8] ^= 0xff
	_, err = decompress(payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		producer, consumer string
		want               bool
	}{
		{"0.0.1", "0.0.1", true},
		{"0.0.1", "0.0.2", false},
		{"0.0.2", "0.0.1", false},
		{"0.0.2-alpha", "0.0.2", false},
		{"0.0.2", "0.0.2-alpha", false},
		{"0.0.2", "0.1.0", false},
		{"0.1.1", "0.1.0", true},
		{"0.1.0", "0.1.1", true},
		{"0.1.1-alpha", "0.1.1-alpha", true},
		{"0.1.1-alpha", "0.1.0", false},
		{"0.1.1", "0.1.0-alpha", false},
		{"0.1.0-alpha", "0.1.1-alpha", false},
		{"0.1.1", "0.2.0", false},
		{"1.2.0", "1.2.7", true},
		{"1.2.0", "1.3.0", false},
		{"1.2.0", "2.2.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.producer+"_"+tt.consumer, func(t *testing.T) {
			got, err := Compatible(tt.producer, tt.consumer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckVersion(t *testing.T) {
	require.NoError(t, CheckVersion("0.1.1", "0.1.0"))

	err := CheckVersion("0.1.1", "0.2.0")
	var ve *VersionIncompatibleError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cache created by krnlc 0.1.1 is not compatible with krnl 0.2.0", err.Error())

	err = CheckVersion("v1", "0.2.0")
	assert.True(t, errors.Is(err, ErrCacheFormat))
}

func TestCache_Find(t *testing.T) {
	c := sampleCache(16)
	c.Kernels = append(c.Kernels, kernel.KernelDesc{Name: "github.com/acme/app/axpy/daxpy"})

	tests := []struct {
		module, name string
		want         string
	}{
		{"axpy", "saxpy", "github.com/acme/app/axpy/saxpy"},
		{"app/axpy", "saxpy", "github.com/acme/app/axpy/saxpy"},
		{"github.com/acme/app/axpy", "saxpy", "github.com/acme/app/axpy/saxpy"},
		{"app", "saxpy", "github.com/acme/app/axpy/saxpy"},
		{"acme/app", "saxpy", "github.com/acme/app/axpy/saxpy"},
		{"/app/", "sum", "github.com/acme/app/reduce/sum"},
		{"", "sum", "github.com/acme/app/reduce/sum"},
		{"xpy", "saxpy", ""},
		{"acme/axpy", "saxpy", ""},
		{"axpy/saxpy", "saxpy", ""},
		{"reduce", "saxpy", ""},
		{"axpy", "daxpy", ""}, // not completed
	}
	for _, tt := range tests {
		t.Run(tt.module+"/"+tt.name, func(t *testing.T) {
			desc, err := c.Find(tt.module, tt.name)
			if tt.want == "" {
				var nf *KernelNotFoundError
				require.True(t, errors.As(err, &nf))
				assert.Contains(t, err.Error(), "not compiled")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, desc.Name)
		})
	}
}

func TestCache_FindReturnsCopy(t *testing.T) {
	c := sampleCache(16)
	desc, err := c.Find("axpy", "saxpy")
	require.NoError(t, err)
	desc.Program[0] ^= 0xff
	desc.SliceDescs[0].Name = "changed"
	assert.Equal(t, "x", c.Kernels[0].SliceDescs[0].Name)
	assert.NotEqual(t, desc.Program[0], c.Kernels[0].Program[0])
}

func TestEmbed(t *testing.T) {
	c := sampleCache(32)
	c.Version = "0.3.1"
	data, err := Encode(c)
	require.NoError(t, err)

	e := Embed("0.3.1", data)
	assert.Same(t, e, Embed("0.3.1", data))
	assert.NotSame(t, e, Embed("0.3.2", data))

	loaded, err := e.Load()
	require.NoError(t, err)
	again, err := e.Load()
	require.NoError(t, err)
	assert.Same(t, loaded, again)
	assert.Len(t, loaded.Kernels, 2)
}

func countDecodes(t *testing.T) *atomic.Int32 {
	t.Helper()
	var n atomic.Int32
	decode = func(data string) (*Cache, error) {
		n.Add(1)
		return Decode(data)
	}
	t.Cleanup(func() { decode = Decode })
	return &n
}

func loadConcurrently(e *Embedded, n int) ([]*Cache, []error) {
	caches := make([]*Cache, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caches[i], errs[i] = e.Load()
		}(i)
	}
	wg.Wait()
	return caches, errs
}

func TestEmbedded_ConcurrentLoad(t *testing.T) {
	c := sampleCache(256)
	c.Version = "0.3.4"
	data, err := Encode(c)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		decodes := countDecodes(t)
		caches, errs := loadConcurrently(&Embedded{Version: "0.3.4", Data: data}, 32)
		assert.Equal(t, int32(1), decodes.Load())
		for i := range caches {
			require.NoError(t, errs[i])
			assert.Same(t, caches[0], caches[i])
		}
	})
	t.Run("failure", func(t *testing.T) {
		decodes := countDecodes(t)
		caches, errs := loadConcurrently(&Embedded{Version: "0.3.5", Data: data}, 32)
		assert.Equal(t, int32(1), decodes.Load())
		require.Error(t, errs[0])
		for i := range errs {
			assert.Nil(t, caches[i])
			assert.Same(t, errs[0], errs[i])
		}
	})
}

func TestEmbedded_LoadErrors(t *testing.T) {
	c := sampleCache(32)
	c.Version = "0.1.0"
	data, err := Encode(c)
	require.NoError(t, err)

	t.Run("incompatible", func(t *testing.T) {
		e := &Embedded{Version: "0.1.0", Data: data}
		_, err := e.load("0.2.0")
		var ve *VersionIncompatibleError
		assert.True(t, errors.As(err, &ve))
	})
	t.Run("declared version differs", func(t *testing.T) {
		e := &Embedded{Version: "0.1.1", Data: data}
		_, err := e.load("0.1.0")
		assert.True(t, errors.Is(err, ErrCacheFormat))
	})
	t.Run("empty data", func(t *testing.T) {
		e := &Embedded{}
		c, err := e.load("0.1.0")
		require.NoError(t, err)
		assert.Empty(t, c.Kernels)
	})
	t.Run("must load panics on format error", func(t *testing.T) {
		e := Embed("0.3.0", "abc")
		assert.Panics(t, func() { _, _ = e.MustLoad() })
	})
}
