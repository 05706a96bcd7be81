// Package storage implements the single-writer, multi-reader key-value
// store described in spec §4.3: a memory-mapped environment holding any
// number of named sub-databases, all writes serialized through one
// background worker consuming a FIFO queue of write operations, and
// concurrent readers that share per-segment read locks.
//
// The on-disk format is original to this module: no complete example repo
// in the retrieved reference pack bundles an LMDB/bbolt/badger-style mmap
// KV engine, so the format generalizes the teacher's own pkg/slotcache
// design (SLC1 header, generation counter, CRC-checked records,
// reference-counted cross-process file locking) from a fixed-size
// single-table cache into a variable-length-value, multi-sub-database,
// durable store. Each sub-database is one append-only segment file of
// length-prefixed, CRC32-checked records, mmap'd for reads and extended by
// the single writer.
package storage
