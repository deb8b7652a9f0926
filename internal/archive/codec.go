package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pointlab/pointlab/internal/cluster"
)

// Codec is the compression applied to an encoded run.
type Codec byte

const (
	CodecNone Codec = 0
	CodecZstd Codec = 1
	CodecLZ4  Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	}
	return fmt.Sprintf("codec(%d)", byte(c))
}

// ParseCodec maps a configured compression name to a Codec. Empty means zstd.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	case "none":
		return CodecNone, nil
	}
	return 0, fmt.Errorf("unknown archive compression %q", s)
}

// Record layout:
//
//	"PLR" | codec (1) | sha256 of payload (32) | uvarint payload length | body
//
// The payload is the protobuf wire encoding of the run; body is the payload
// after compression.
const (
	magic      = "PLR"
	headerSize = len(magic) + 1 + sha256.Size

	// maxPayload bounds the decoded size of a single record.
	maxPayload = 1 << 30
)

// Field numbers of the run message.
const (
	fieldID           protowire.Number = 1
	fieldCreated      protowire.Number = 2
	fieldK            protowire.Number = 3
	fieldIterations   protowire.Number = 4
	fieldLearningRate protowire.Number = 5
	fieldCenters      protowire.Number = 6
	fieldLabels       protowire.Number = 7
	fieldInertia      protowire.Number = 8
	fieldAlgorithm    protowire.Number = 9
	fieldSeed         protowire.Number = 10
	fieldPoints       protowire.Number = 11
	fieldSeeded       protowire.Number = 12
	fieldReseeded     protowire.Number = 13
	fieldEmptyPolicy  protowire.Number = 14
)

type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

// encode serializes and compresses a run. LZ4 falls back to no compression
// when the payload does not shrink.
func (c *codec) encode(r *Run, want Codec) ([]byte, error) {
	payload := marshalRun(r)
	sum := sha256.Sum256(payload)

	var body []byte
	used := want
	switch want {
	case CodecNone:
		body = payload
	case CodecZstd:
		body = c.enc.EncodeAll(payload, nil)
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			used = CodecNone
			body = payload
		} else {
			body = buf[:n]
		}
	default:
		return nil, fmt.Errorf("unsupported codec %s", want)
	}

	out := make([]byte, 0, headerSize+binary.MaxVarintLen64+len(body))
	out = append(out, magic...)
	out = append(out, byte(used))
	out = append(out, sum[:]...)
	out = protowire.AppendVarint(out, uint64(len(payload)))
	out = append(out, body...)
	return out, nil
}

func (c *codec) decode(data []byte) (*Run, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: record too short (%d bytes)", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	used := Codec(data[len(magic)])
	var sum [sha256.Size]byte
	copy(sum[:], data[len(magic)+1:headerSize])

	rest := data[headerSize:]
	size, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, fmt.Errorf("%w: payload length: %v", ErrCorrupt, protowire.ParseError(n))
	}
	if size > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d too large", ErrCorrupt, size)
	}
	body := rest[n:]

	var payload []byte
	switch used {
	case CodecNone:
		payload = body
	case CodecZstd:
		out, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		payload = out
	case CodecLZ4:
		// lz4 cannot expand a block by more than ~255x
		if size > uint64(len(body))*255+16 {
			return nil, fmt.Errorf("%w: payload length %d implausible for %d byte block", ErrCorrupt, size, len(body))
		}
		out := make([]byte, size)
		m, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		payload = out[:m]
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrCorrupt, byte(used))
	}

	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("%w: payload length %d, header says %d", ErrCorrupt, len(payload), size)
	}
	if sha256.Sum256(payload) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	r, err := unmarshalRun(payload)
	if err != nil {
		return nil, err
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r, nil
}

func marshalRun(r *Run) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, r.ID)
	b = protowire.AppendTag(b, fieldCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, fieldK, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.K))
	b = protowire.AppendTag(b, fieldIterations, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Iterations))
	b = protowire.AppendTag(b, fieldLearningRate, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.LearningRate))
	b = protowire.AppendTag(b, fieldCenters, protowire.BytesType)
	b = protowire.AppendBytes(b, packPoints(r.Centers))
	b = protowire.AppendTag(b, fieldLabels, protowire.BytesType)
	b = protowire.AppendBytes(b, packLabels(r.Labels))
	b = protowire.AppendTag(b, fieldInertia, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.Inertia))
	b = protowire.AppendTag(b, fieldAlgorithm, protowire.BytesType)
	b = protowire.AppendString(b, r.Algorithm)
	b = protowire.AppendTag(b, fieldSeed, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Seed)
	b = protowire.AppendTag(b, fieldPoints, protowire.BytesType)
	b = protowire.AppendBytes(b, packPoints(r.Points))
	b = protowire.AppendTag(b, fieldSeeded, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Seeded))
	b = protowire.AppendTag(b, fieldReseeded, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Reseeded))
	b = protowire.AppendTag(b, fieldEmptyPolicy, protowire.BytesType)
	b = protowire.AppendString(b, r.EmptyPolicy)
	return b
}

func packPoints(points []cluster.Point) []byte {
	b := make([]byte, 0, len(points)*16)
	for _, p := range points {
		b = protowire.AppendFixed64(b, math.Float64bits(p.X))
		b = protowire.AppendFixed64(b, math.Float64bits(p.Y))
	}
	return b
}

func packLabels(labels []int) []byte {
	var b []byte
	for _, l := range labels {
		b = protowire.AppendVarint(b, uint64(l))
	}
	return b
}

func unpackPoints(b []byte) ([]cluster.Point, error) {
	if len(b)%16 != 0 {
		return nil, fmt.Errorf("%w: packed points length %d", ErrCorrupt, len(b))
	}
	points := make([]cluster.Point, 0, len(b)/16)
	for len(b) > 0 {
		x, _ := protowire.ConsumeFixed64(b)
		y, _ := protowire.ConsumeFixed64(b[8:])
		points = append(points, cluster.Point{X: math.Float64frombits(x), Y: math.Float64frombits(y)})
		b = b[16:]
	}
	return points, nil
}

func unpackLabels(b []byte) ([]int, error) {
	var labels []int
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: labels: %v", ErrCorrupt, protowire.ParseError(n))
		}
		if v > math.MaxInt32 {
			return nil, fmt.Errorf("%w: label %d out of range", ErrCorrupt, v)
		}
		labels = append(labels, int(v))
		b = b[n:]
	}
	return labels, nil
}

func unmarshalRun(b []byte) (*Run, error) {
	r := &Run{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		var err error
		switch {
		case typ == protowire.VarintType && isVarintField(num):
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				setVarint(r, num, v)
			}
		case typ == protowire.Fixed64Type && (num == fieldLearningRate || num == fieldInertia):
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			if n >= 0 {
				if num == fieldLearningRate {
					r.LearningRate = math.Float64frombits(v)
				} else {
					r.Inertia = math.Float64frombits(v)
				}
			}
		case typ == protowire.BytesType && isBytesField(num):
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				err = setBytes(r, num, v)
			}
		default:
			// unknown or mistyped fields are skipped
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d: %v", ErrCorrupt, num, protowire.ParseError(n))
		}
		if err != nil {
			return nil, err
		}
		b = b[n:]
	}
	return r, nil
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case fieldCreated, fieldK, fieldIterations, fieldSeed, fieldSeeded, fieldReseeded:
		return true
	}
	return false
}

func isBytesField(num protowire.Number) bool {
	switch num {
	case fieldID, fieldCenters, fieldLabels, fieldAlgorithm, fieldPoints, fieldEmptyPolicy:
		return true
	}
	return false
}

func setVarint(r *Run, num protowire.Number, v uint64) {
	switch num {
	case fieldCreated:
		r.CreatedAt = time.Unix(0, int64(v)).UTC()
	case fieldK:
		r.K = int(v)
	case fieldIterations:
		r.Iterations = int(v)
	case fieldSeed:
		r.Seed = v
	case fieldSeeded:
		r.Seeded = protowire.DecodeBool(v)
	case fieldReseeded:
		r.Reseeded = int(v)
	}
}

func setBytes(r *Run, num protowire.Number, v []byte) error {
	var err error
	switch num {
	case fieldID:
		r.ID = string(v)
	case fieldAlgorithm:
		r.Algorithm = string(v)
	case fieldEmptyPolicy:
		r.EmptyPolicy = string(v)
	case fieldCenters:
		r.Centers, err = unpackPoints(v)
	case fieldPoints:
		r.Points, err = unpackPoints(v)
	case fieldLabels:
		r.Labels, err = unpackLabels(v)
	}
	return err
}
