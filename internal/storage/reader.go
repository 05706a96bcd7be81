package storage

// Get performs a point lookup. found is false if the sub-database does not
// exist or the key is absent (§4.3 Reader model: point-get by key).
func (e *Engine) Get(subdb string, key []byte) (value []byte, found bool, err error) {
	if e.closed.Load() {
		return nil, false, ErrClosed
	}
	e.acquireReadSlot()
	defer e.releaseReadSlot()

	seg, ok := e.getSegment(subdb)
	if !ok {
		return nil, false, nil
	}

	seg.mu.RLock()
	defer seg.mu.RUnlock()
	loc, ok := seg.index[string(key)]
	if !ok {
		return nil, false, nil
	}
	return seg.valueAt(loc), true, nil
}

// MultiGet looks up keys in order, preserving caller order in the result
// and omitting misses (§4.3 Reader model: multi-get).
func (e *Engine) MultiGet(subdb string, keys [][]byte) ([]KV, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.acquireReadSlot()
	defer e.releaseReadSlot()

	seg, ok := e.getSegment(subdb)
	if !ok {
		return nil, nil
	}

	seg.mu.RLock()
	defer seg.mu.RUnlock()

	out := make([]KV, 0, len(keys))
	for _, key := range keys {
		loc, ok := seg.index[string(key)]
		if !ok {
			continue
		}
		out = append(out, KV{Key: key, Value: seg.valueAt(loc)})
	}
	return out, nil
}

// Exists reports whether key is present in subdb.
func (e *Engine) Exists(subdb string, key []byte) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	e.acquireReadSlot()
	defer e.releaseReadSlot()

	seg, ok := e.getSegment(subdb)
	if !ok {
		return false, nil
	}
	seg.mu.RLock()
	defer seg.mu.RUnlock()
	_, exists := seg.index[string(key)]
	return exists, nil
}

// Count returns the number of live keys in subdb (0 if it does not exist).
func (e *Engine) Count(subdb string) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	seg, ok := e.getSegment(subdb)
	if !ok {
		return 0, nil
	}
	seg.mu.RLock()
	defer seg.mu.RUnlock()
	return len(seg.index), nil
}

// Cursor is a lazy, restartable snapshot iterator over one sub-database's
// live key-value pairs (§4.3 Reader model: full-range scan).
type Cursor struct {
	seg  *segment
	keys []string
	pos  int
}

// Scan opens a cursor over subdb's current live entries, in first-observed
// key order. The key set is fixed at Scan time: keys inserted later are not
// visited (restart by calling Scan again), while a key deleted after Scan is
// skipped and a key updated after Scan yields its current value.
func (e *Engine) Scan(subdb string) (*Cursor, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	seg, ok := e.getSegment(subdb)
	if !ok {
		return &Cursor{}, nil
	}

	seg.mu.RLock()
	defer seg.mu.RUnlock()

	keys := make([]string, 0, len(seg.index))
	for _, k := range seg.order {
		if _, live := seg.index[k]; live {
			keys = append(keys, k)
		}
	}
	return &Cursor{seg: seg, keys: keys}, nil
}

// Next advances the cursor, returning false once exhausted.
func (c *Cursor) Next() (kv KV, ok bool) {
	if c == nil || c.seg == nil || c.pos >= len(c.keys) {
		return KV{}, false
	}
	key := c.keys[c.pos]
	c.pos++

	c.seg.mu.RLock()
	defer c.seg.mu.RUnlock()
	loc, live := c.seg.index[key]
	if !live {
		return c.Next() // entry was deleted after the snapshot was taken
	}
	return KV{Key: []byte(key), Value: c.seg.valueAt(loc)}, true
}

func (e *Engine) acquireReadSlot() { e.readSema <- struct{}{} }
func (e *Engine) releaseReadSlot() { <-e.readSema }
