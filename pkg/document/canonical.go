package document

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"

	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"
)

func timeFromUnixNanoUTC(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

// Codec selects the compression applied to a document's canonical raw
// encoding before it is written to the store (§6: "Document byte form:
// [1-byte codec tag][payload]").
type Codec byte

const (
	// CodecNone is the raw deterministic encoding, uncompressed.
	CodecNone Codec = 0x00
	// CodecFastStreaming compresses the raw encoding with s2, the
	// low-latency streaming format from klauspost/compress.
	CodecFastStreaming Codec = 0x01
	// CodecDeflate compresses the raw encoding with stdlib compress/flate.
	CodecDeflate Codec = 0x02
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecFastStreaming:
		return "fast-streaming"
	case CodecDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("codec(0x%02x)", byte(c))
	}
}

// ParseCodec maps a configuration string (§6 storage-compression) to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "none":
		return CodecNone, nil
	case "fast-streaming":
		return CodecFastStreaming, nil
	case "deflate":
		return CodecDeflate, nil
	default:
		return 0, fmt.Errorf("document: unknown compression %q", s)
	}
}

// CanonicalBytes serializes the document to its canonical byte form: a
// deterministic raw encoding (stable field order, fixed-width numbers and
// timestamps) optionally compressed, prefixed with a 1-byte codec tag.
func (d *Document) CanonicalBytes(codec Codec) ([]byte, error) {
	var raw bytes.Buffer
	if err := encodeValue(&raw, d.root); err != nil {
		return nil, wrap(err, withDocID(d.ID().String()))
	}

	payload, err := compressPayload(codec, raw.Bytes())
	if err != nil {
		return nil, wrap(err, withDocID(d.ID().String()))
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(codec))
	out = append(out, payload...)
	return out, nil
}

// FromCanonicalBytes parses a canonical byte form back into a Document.
func FromCanonicalBytes(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, wrap(fmt.Errorf("%w: empty canonical bytes", ErrInvalidArgument))
	}
	codec := Codec(data[0])
	raw, err := decompressPayload(codec, data[1:])
	if err != nil {
		return nil, wrap(err)
	}

	r := bytes.NewReader(raw)
	v, err := decodeValue(r)
	if err != nil {
		return nil, wrap(err)
	}
	return FromValue(v)
}

func compressPayload(codec Codec, raw []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return raw, nil
	case CodecFastStreaming:
		return s2.Encode(nil, raw), nil
	case CodecDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("document: unknown codec tag 0x%02x", byte(codec))
	}
}

func decompressPayload(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecFastStreaming:
		return s2.Decode(nil, payload)
	case CodecDeflate:
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("document: unknown codec tag 0x%02x", byte(codec))
	}
}

// --- deterministic raw value encoding ---

func writeUvarint(w *bytes.Buffer, v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	w.Write(buf[:n])
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeUvarint(w, uint64(len(b)))
	w.Write(b)
}

func encodeValue(w *bytes.Buffer, v Value) error {
	w.WriteByte(byte(v.Kind()))
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		b, _ := v.Bool()
		if b {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		return nil
	case KindInt:
		i, _ := v.Int()
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(i))
		w.Write(buf[:])
		return nil
	case KindFloat:
		f, _ := v.Float()
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		w.Write(buf[:])
		return nil
	case KindDecimal:
		dec, _ := v.Decimal()
		writeBytes(w, []byte(dec.RatString()))
		return nil
	case KindString:
		s, _ := v.String()
		writeBytes(w, []byte(s))
		return nil
	case KindTimestamp:
		t, _ := v.Time()
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(t.UTC().UnixNano()))
		w.Write(buf[:])
		return nil
	case KindUUID:
		id, _ := v.UUID()
		w.Write(id[:])
		return nil
	case KindArray:
		arr, _ := v.Array()
		writeUvarint(w, uint64(len(arr)))
		for _, item := range arr {
			if err := encodeValue(w, item); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		// Canonical bytes must be insertion-order-independent: two documents
		// that are deep-equal (field order aside) must encode identically,
		// so sort here rather than use MapKeys' insertion order.
		keys := make([]string, 0, len(v.mapVal))
		for k := range v.mapVal {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeUvarint(w, uint64(len(keys)))
		for _, k := range keys {
			writeBytes(w, []byte(k))
			item, _ := v.MapGet(k)
			if err := encodeValue(w, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("document: cannot encode value kind %v", v.Kind())
	}
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func decodeValue(r *bytes.Reader) (Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	switch Kind(kindByte) {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, err
		}
		return Int(int64(binary.BigEndian.Uint64(buf[:]))), nil
	case KindFloat:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(buf[:]))), nil
	case KindDecimal:
		b, err := readBytes(r)
		if err != nil {
			return Value{}, err
		}
		rat, ok := new(big.Rat).SetString(string(b))
		if !ok {
			return Value{}, fmt.Errorf("document: corrupt decimal literal %q", b)
		}
		return Value{kind: KindDecimal, decimal: rat}, nil
	case KindString:
		b, err := readBytes(r)
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case KindTimestamp:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, err
		}
		nanos := int64(binary.BigEndian.Uint64(buf[:]))
		return Timestamp(timeFromUnixNanoUTC(nanos)), nil
	case KindUUID:
		var raw [16]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return Value{}, err
		}
		id, err := uuid.FromBytes(raw[:])
		if err != nil {
			return Value{}, err
		}
		return ID(id), nil
	case KindArray:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, n)
		for i := range items {
			item, err := decodeValue(r)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Array(items...), nil
	case KindMap:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, err
		}
		m := NewMap()
		for i := uint64(0); i < n; i++ {
			keyBytes, err := readBytes(r)
			if err != nil {
				return Value{}, err
			}
			item, err := decodeValue(r)
			if err != nil {
				return Value{}, err
			}
			m = m.MapSet(string(keyBytes), item)
		}
		return m, nil
	default:
		return Value{}, fmt.Errorf("document: corrupt canonical bytes: unknown kind tag %d", kindByte)
	}
}
