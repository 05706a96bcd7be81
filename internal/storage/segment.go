package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// Segment file layout, grounded on pkg/slotcache's SLC1 header (magic,
// version, generation, CRC) generalized to a variable-length append-only
// record log instead of a fixed-size slot table.
const (
	segMagic      = "DSG1"
	segVersion    = uint32(1)
	segHeaderSize = 64

	recKindPut    = byte(1)
	recKindDelete = byte(2)
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// recordLoc locates a live value within a segment's mapped region.
type recordLoc struct {
	offset int64
	length int64
}

// segment is one sub-database's on-disk append-only record log, mmap'd
// for zero-copy reads and extended in place by the single background
// writer. Concurrent reads are safe; only the writer goroutine calls
// append/truncate/remove.
type segment struct {
	name string
	path string

	mu     sync.RWMutex
	file   *os.File
	mapped []byte // mmap'd view of [0, size)
	size   int64  // logical end of valid data; <= len(mapped)

	index map[string]recordLoc
	order []string // first-observed key order, for deterministic full scans
}

func openSegment(name, path string) (*segment, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := bootstrapSegmentFile(path); err != nil {
			return nil, fmt.Errorf("storage: bootstrap segment %s: %w", name, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("storage: stat segment %s: %w", name, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open segment %s: %w", name, err)
	}

	s := &segment{name: name, path: path, file: file, index: map[string]recordLoc{}}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("storage: stat segment %s: %w", name, err)
	}

	if err := s.remapLocked(info.Size()); err != nil {
		file.Close()
		return nil, err
	}

	if err := s.validateHeader(); err != nil {
		s.closeLocked()
		return nil, err
	}

	if err := s.replay(); err != nil {
		s.closeLocked()
		return nil, err
	}

	return s, nil
}

// bootstrapSegmentFile atomically creates a brand-new segment file with its
// header already written, via a temp-file-plus-rename so a crash mid-creation
// leaves either nothing or a fully-formed file, never a zero-byte or
// partially-written one.
func bootstrapSegmentFile(path string) error {
	var hdr [segHeaderSize]byte
	copy(hdr[0:4], segMagic)
	binary.BigEndian.PutUint32(hdr[4:8], segVersion)
	return atomic.WriteFile(path, bytes.NewReader(hdr[:]))
}

func (s *segment) writeHeader() error {
	var hdr [segHeaderSize]byte
	copy(hdr[0:4], segMagic)
	binary.BigEndian.PutUint32(hdr[4:8], segVersion)
	if _, err := s.file.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("storage: write segment header %s: %w", s.name, err)
	}
	return nil
}

func (s *segment) validateHeader() error {
	if len(s.mapped) < segHeaderSize {
		return fmt.Errorf("%w: segment %s shorter than header", ErrCorrupt, s.name)
	}
	if string(s.mapped[0:4]) != segMagic {
		return fmt.Errorf("%w: segment %s bad magic", ErrCorrupt, s.name)
	}
	version := binary.BigEndian.Uint32(s.mapped[4:8])
	if version != segVersion {
		return fmt.Errorf("%w: segment %s version %d unsupported", ErrCorrupt, s.name, version)
	}
	return nil
}

// replay reconstructs the in-memory index by scanning every record in the
// log from the header onward, applying puts and deletes in order (crash
// recovery path and normal reopen path are the same code).
func (s *segment) replay() error {
	off := int64(segHeaderSize)
	for off < s.size {
		rec, next, err := decodeRecordAt(s.mapped, off)
		if err != nil {
			return fmt.Errorf("%w: segment %s offset %d: %v", ErrCorrupt, s.name, off, err)
		}
		key := string(rec.key)
		switch rec.kind {
		case recKindPut:
			if _, exists := s.index[key]; !exists {
				s.order = append(s.order, key)
			}
			s.index[key] = recordLoc{offset: rec.valueOffset, length: int64(len(rec.value))}
		case recKindDelete:
			delete(s.index, key)
		}
		off = next
	}
	return nil
}

type decodedRecord struct {
	kind        byte
	key         []byte
	value       []byte
	valueOffset int64
}

// decodeRecordAt parses one record starting at off, returning the record
// and the offset of the next record.
func decodeRecordAt(data []byte, off int64) (decodedRecord, int64, error) {
	if off+1+8 > int64(len(data)) {
		return decodedRecord{}, 0, fmt.Errorf("truncated record header")
	}
	kind := data[off]
	keyLen := int64(binary.BigEndian.Uint64(data[off+1 : off+9]))
	keyStart := off + 9
	if keyStart+keyLen+8 > int64(len(data)) {
		return decodedRecord{}, 0, fmt.Errorf("truncated key")
	}
	key := data[keyStart : keyStart+keyLen]
	valLenOff := keyStart + keyLen
	valLen := int64(binary.BigEndian.Uint64(data[valLenOff : valLenOff+8]))
	valStart := valLenOff + 8
	if valStart+valLen+4 > int64(len(data)) {
		return decodedRecord{}, 0, fmt.Errorf("truncated value")
	}
	value := data[valStart : valStart+valLen]
	crcOff := valStart + valLen
	wantCRC := binary.BigEndian.Uint32(data[crcOff : crcOff+4])

	gotCRC := crc32.Checksum(data[off:crcOff], crc32cTable)
	if gotCRC != wantCRC {
		return decodedRecord{}, 0, fmt.Errorf("crc mismatch")
	}

	return decodedRecord{kind: kind, key: key, value: value, valueOffset: valStart}, crcOff + 4, nil
}

// encodeRecord serializes one record (put or delete) to its on-disk form.
func encodeRecord(kind byte, key, value []byte) []byte {
	total := 1 + 8 + len(key) + 8 + len(value) + 4
	buf := make([]byte, total)
	buf[0] = kind
	binary.BigEndian.PutUint64(buf[1:9], uint64(len(key)))
	copy(buf[9:9+len(key)], key)
	valLenOff := 9 + len(key)
	binary.BigEndian.PutUint64(buf[valLenOff:valLenOff+8], uint64(len(value)))
	valStart := valLenOff + 8
	copy(buf[valStart:valStart+len(value)], value)
	crc := crc32.Checksum(buf[:valStart+len(value)], crc32cTable)
	binary.BigEndian.PutUint32(buf[valStart+len(value):], crc)
	return buf
}

// appendRecords appends one or more encoded records to the segment in a
// single write, extending and remapping the backing file once. Caller must
// serialize calls (only the background writer calls this).
func (s *segment) appendRecords(records [][]byte, kinds []byte, keys [][]byte, sync bool) ([]recordLoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startOffset := s.size
	var buf []byte
	for _, r := range records {
		buf = append(buf, r...)
	}

	if _, err := s.file.WriteAt(buf, startOffset); err != nil {
		return nil, fmt.Errorf("storage: append segment %s: %w", s.name, err)
	}
	if sync {
		if err := s.file.Sync(); err != nil {
			return nil, fmt.Errorf("storage: fsync segment %s: %w", s.name, err)
		}
	}

	newSize := startOffset + int64(len(buf))
	if err := s.remapLocked(newSize); err != nil {
		return nil, err
	}

	locs := make([]recordLoc, len(records))
	off := startOffset
	for i, r := range records {
		rec, next, err := decodeRecordAt(s.mapped, off)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %s: %v", ErrCorrupt, s.name, err)
		}
		locs[i] = recordLoc{offset: rec.valueOffset, length: int64(len(rec.value))}
		off = next
		_ = r
	}
	return locs, nil
}

// remapLocked replaces the mmap'd view to cover [0, newSize). Caller must
// hold s.mu for writing, except during openSegment before s.mu is shared.
func (s *segment) remapLocked(newSize int64) error {
	if s.mapped != nil {
		if err := unix.Munmap(s.mapped); err != nil {
			return fmt.Errorf("storage: munmap segment %s: %w", s.name, err)
		}
		s.mapped = nil
	}
	if newSize == 0 {
		s.size = 0
		return nil
	}
	mapped, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("storage: mmap segment %s: %w", s.name, err)
	}
	s.mapped = mapped
	s.size = newSize
	return nil
}

// truncate empties the segment back to just the header (§4.3
// truncate-sub-database), keeping the file and its mmap handle.
func (s *segment) truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mapped != nil {
		if err := unix.Munmap(s.mapped); err != nil {
			return fmt.Errorf("storage: munmap segment %s: %w", s.name, err)
		}
		s.mapped = nil
	}
	if err := s.file.Truncate(segHeaderSize); err != nil {
		return fmt.Errorf("storage: truncate segment %s: %w", s.name, err)
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	if err := s.remapLocked(segHeaderSize); err != nil {
		return err
	}
	s.index = map[string]recordLoc{}
	s.order = nil
	return nil
}

func (s *segment) closeLocked() error {
	var err error
	if s.mapped != nil {
		err = unix.Munmap(s.mapped)
		s.mapped = nil
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// removeFile closes and deletes the segment's backing file (§4.3
// drop-sub-database).
func (s *segment) removeFile() error {
	if err := s.close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove segment %s: %w", s.name, err)
	}
	return nil
}

// valueAt reads the value bytes for a recordLoc from the current mapping.
// Caller must hold at least s.mu.RLock.
func (s *segment) valueAt(loc recordLoc) []byte {
	v := make([]byte, loc.length)
	copy(v, s.mapped[loc.offset:loc.offset+loc.length])
	return v
}
