package cache

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/tilinna/z85"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	magic      = "KRNL"
	headerSize = 4 + 4 + 4 + 1

	modeRaw byte = 0
	modeLZ4 byte = 1

	// ChunkSize is the number of payload bytes per encoded line.
	ChunkSize = 4096
)

// Encode serializes c into a text literal: msgpack, then an lz4 block behind
// a [magic][raw size][crc32][mode] header, then ChunkSize chunks each
// prefixed with its length, padded to a multiple of four and Z85 encoded,
// one chunk per line.
func Encode(c *Cache) (string, error) {
	raw, err := msgpack.Marshal(c)
	if err != nil {
		return "", formatError(err, "serializing cache")
	}
	payload, err := compress(raw)
	if err != nil {
		return "", err
	}

	var lines []string
	for start := 0; start < len(payload); start += ChunkSize {
		end := start + ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		line, err := encodeChunk(payload[start:end])
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// Decode reverses Encode. Chunks may be separated by any whitespace. The
// empty string decodes to an empty cache.
func Decode(s string) (*Cache, error) {
	lines := strings.Fields(s)
	if len(lines) == 0 {
		return &Cache{}, nil
	}
	var payload bytes.Buffer
	for i, line := range lines {
		chunk, err := decodeChunk(line)
		if err != nil {
			return nil, formatError(err, "chunk %d", i)
		}
		payload.Write(chunk)
	}
	raw, err := decompress(payload.Bytes())
	if err != nil {
		return nil, err
	}
	c := &Cache{}
	if err := msgpack.Unmarshal(raw, c); err != nil {
		return nil, formatError(err, "deserializing cache")
	}
	return c, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	binary.Write(&buf, binary.LittleEndian, uint32(len(raw)))
	binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(raw))

	block := make([]byte, lz4.CompressBlockBound(len(raw)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(raw, block)
	if err != nil {
		return nil, formatError(err, "compressing cache")
	}
	// lz4 reports incompressible input as zero bytes written
	if n == 0 {
		buf.WriteByte(modeRaw)
		buf.Write(raw)
	} else {
		buf.WriteByte(modeLZ4)
		buf.Write(block[:n])
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	if len(payload) < headerSize {
		return nil, formatError(nil, "truncated header")
	}
	if string(payload[:4]) != magic {
		return nil, formatError(nil, "bad magic %q", payload[:4])
	}
	size := binary.LittleEndian.Uint32(payload[4:8])
	checksum := binary.LittleEndian.Uint32(payload[8:12])
	mode := payload[12]
	body := payload[headerSize:]

	var raw []byte
	switch mode {
	case modeRaw:
		raw = body
	case modeLZ4:
		raw = make([]byte, size)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, formatError(err, "decompressing cache")
		}
		raw = raw[:n]
	default:
		return nil, formatError(nil, "unknown compression mode %d", mode)
	}
	if uint32(len(raw)) != size {
		return nil, formatError(nil, "size mismatch: header %d, got %d", size, len(raw))
	}
	if crc32.ChecksumIEEE(raw) != checksum {
		return nil, formatError(nil, "checksum mismatch")
	}
	return raw, nil
}

func encodeChunk(chunk []byte) (string, error) {
	padded := make([]byte, 4+len(chunk))
	binary.LittleEndian.PutUint32(padded, uint32(len(chunk)))
	copy(padded[4:], chunk)
	if rem := len(padded) % 4; rem != 0 {
		padded = append(padded, make([]byte, 4-rem)...)
	}
	dst := make([]byte, z85.EncodedLen(len(padded)))
	n, err := z85.Encode(dst, padded)
	if err != nil {
		return "", formatError(err, "encoding chunk")
	}
	return string(dst[:n]), nil
}

func decodeChunk(line string) ([]byte, error) {
	if len(line)%5 != 0 {
		return nil, formatError(nil, "length %d is not a multiple of 5", len(line))
	}
	dst := make([]byte, z85.DecodedLen(len(line)))
	n, err := z85.Decode(dst, []byte(line))
	if err != nil {
		return nil, err
	}
	dst = dst[:n]
	if len(dst) < 4 {
		return nil, formatError(nil, "missing length prefix")
	}
	size := binary.LittleEndian.Uint32(dst)
	if int(size) > len(dst)-4 {
		return nil, formatError(nil, "length prefix %d exceeds chunk", size)
	}
	for _, b := range dst[4+size:] {
		if b != 0 {
			return nil, formatError(nil, "non-zero padding")
		}
	}
	return dst[4 : 4+size], nil
}
