package index

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeLeaves serializes a document's flattened leaves into the byte
// payload stored per-id in the records sub-database: a uvarint leaf count
// followed by, per leaf, a length-prefixed path, a one-byte kind tag and a
// kind-specific fixed or length-prefixed payload. This is the sole
// persisted representation the index keeps — every in-memory structure
// (postings, doc-values, facets) is rebuilt from it on Open.
func encodeLeaves(leaves []leaf) []byte {
	buf := make([]byte, 0, 64*len(leaves))
	buf = appendUvarint(buf, uint64(len(leaves)))
	for _, lf := range leaves {
		buf = appendBytes(buf, []byte(lf.Path))
		buf = append(buf, byte(lf.Value.Kind))
		switch lf.Value.Kind {
		case leafNull:
			// no payload
		case leafBool:
			if lf.Value.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case leafInt:
			buf = appendUvarint(buf, uint64(lf.Value.Int))
		case leafFloat:
			buf = appendFloat(buf, lf.Value.Float)
		case leafDecimal:
			buf = appendFloat(buf, lf.Value.Float)
			buf = appendBytes(buf, []byte(lf.Value.Str))
		case leafString:
			buf = appendBytes(buf, []byte(lf.Value.Str))
		case leafTimestamp:
			buf = appendUvarint(buf, uint64(lf.Value.Millis))
		case leafUUID:
			buf = appendBytes(buf, []byte(lf.Value.UUIDStr))
		}
	}
	return buf
}

// decodeLeaves is the inverse of encodeLeaves.
func decodeLeaves(data []byte) ([]leaf, error) {
	count, n, err := readUvarint(data)
	if err != nil {
		return nil, err
	}
	data = data[n:]

	leaves := make([]leaf, 0, count)
	for i := uint64(0); i < count; i++ {
		path, rest, err := readBytes(data)
		if err != nil {
			return nil, err
		}
		data = rest
		if len(data) < 1 {
			return nil, fmt.Errorf("index: truncated record: missing kind tag")
		}
		kind := leafKind(data[0])
		data = data[1:]

		var v docLeafValue
		v.Kind = kind
		switch kind {
		case leafNull:
		case leafBool:
			if len(data) < 1 {
				return nil, fmt.Errorf("index: truncated record: missing bool payload")
			}
			v.Bool = data[0] != 0
			data = data[1:]
		case leafInt:
			u, n, err := readUvarint(data)
			if err != nil {
				return nil, err
			}
			v.Int = int64(u)
			data = data[n:]
		case leafFloat:
			f, rest, err := readFloat(data)
			if err != nil {
				return nil, err
			}
			v.Float = f
			data = rest
		case leafDecimal:
			f, rest, err := readFloat(data)
			if err != nil {
				return nil, err
			}
			v.Float = f
			data = rest
			s, rest, err := readBytes(data)
			if err != nil {
				return nil, err
			}
			v.Str = string(s)
			data = rest
		case leafString:
			s, rest, err := readBytes(data)
			if err != nil {
				return nil, err
			}
			v.Str = string(s)
			data = rest
		case leafTimestamp:
			u, n, err := readUvarint(data)
			if err != nil {
				return nil, err
			}
			v.Millis = int64(u)
			data = data[n:]
		case leafUUID:
			s, rest, err := readBytes(data)
			if err != nil {
				return nil, err
			}
			v.UUIDStr = string(s)
			data = rest
		default:
			return nil, fmt.Errorf("index: unknown leaf kind %d", kind)
		}

		leaves = append(leaves, leaf{Path: string(path), Value: v})
	}
	return leaves, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendBytes(buf, b []byte) []byte {
	buf = appendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func appendFloat(buf []byte, f float64) []byte {
	return appendUvarint(buf, math.Float64bits(f))
}

func readUvarint(data []byte) (uint64, int, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, 0, fmt.Errorf("index: truncated record: bad uvarint")
	}
	return v, n, nil
}

func readBytes(data []byte) ([]byte, []byte, error) {
	length, n, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, nil, fmt.Errorf("index: truncated record: short byte slice")
	}
	return data[:length], data[length:], nil
}

func readFloat(data []byte) (float64, []byte, error) {
	bits, n, err := readUvarint(data)
	if err != nil {
		return 0, nil, err
	}
	return math.Float64frombits(bits), data[n:], nil
}
