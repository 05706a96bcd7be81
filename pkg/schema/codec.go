package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes a schema to bytes suitable for persistence by
// SchemaStore, preserving field order (unlike CanonicalBytes, which sorts
// for order-independent fingerprinting/equality).
func Encode(s *Schema) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, s.CollectionName)
	writeUvarint(&buf, uint64(len(s.order)))
	for _, name := range s.order {
		if err := encodeField(&buf, s.fields[name]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a schema previously written by Encode.
func Decode(data []byte) (*Schema, error) {
	r := bytes.NewReader(data)
	collectionName, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("schema: decode collection name: %w", err)
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("schema: decode field count: %w", err)
	}

	s := &Schema{CollectionName: collectionName, fields: map[string]*Field{}}
	for i := uint64(0); i < count; i++ {
		f, err := decodeField(r)
		if err != nil {
			return nil, fmt.Errorf("schema: decode field %d: %w", i, err)
		}
		s.setField(f)
	}
	return s, nil
}

func encodeField(buf *bytes.Buffer, f *Field) error {
	writeString(buf, f.Name)
	buf.WriteByte(byte(f.Type))
	writeVarintSigned(buf, int64(f.ElemType))
	if f.Nested != nil {
		buf.WriteByte(1)
		nested, err := Encode(f.Nested)
		if err != nil {
			return err
		}
		writeBytesField(buf, nested)
	} else {
		buf.WriteByte(0)
	}
	return nil
}

func decodeField(r *bytes.Reader) (*Field, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	elemType, err := readVarintSigned(r)
	if err != nil {
		return nil, err
	}
	hasNested, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	f := &Field{Name: name, Type: DataType(typeByte), ElemType: DataType(elemType)}
	if hasNested == 1 {
		nestedBytes, err := readBytesField(r)
		if err != nil {
			return nil, err
		}
		nested, err := Decode(nestedBytes)
		if err != nil {
			return nil, err
		}
		f.Nested = nested
	}
	return f, nil
}

func writeUvarint(w *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.Write(tmp[:n])
}

func writeVarintSigned(w *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	w.Write(tmp[:n])
}

func readVarintSigned(r *bytes.Reader) (int64, error) {
	return binary.ReadVarint(r)
}

func writeString(w *bytes.Buffer, s string) {
	writeBytesField(w, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytesField(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytesField(w *bytes.Buffer, b []byte) {
	writeUvarint(w, uint64(len(b)))
	w.Write(b)
}

func readBytesField(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
