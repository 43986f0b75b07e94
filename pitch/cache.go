// Package pitch maintains a content-addressed cache of pitch-shifted sample
// buffers, keyed by (sample slot, pitch ratio). Buffers are generated
// synchronously or in the background; concurrent requests for the same key
// coalesce into a single generation job, and entries are evicted
// least-recently-used when the memory ceiling is reached.
package pitch

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"sync"
)

type (
	// Key identifies one preprocessed buffer.
	Key struct {
		Slot  int
		Ratio float32
	}

	// SourceFunc loads the unshifted source PCM for a slot. It is called at
	// most once per generation job, outside the cache lock.
	SourceFunc func() ([][2]float32, error)

	// ShiftFunc produces the pitch-shifted version of src. The numerical
	// algorithm is not part of the cache contract; only the lifecycle is.
	ShiftFunc func(src [][2]float32, ratio float32) [][2]float32

	Cache struct {
		mu       sync.Mutex
		maxBytes int64
		total    int64
		entries  map[Key]*entry
		order    *list.List // front = most recently used
		inflight map[Key]*job
		fails    map[Key]error
		shift    ShiftFunc
	}

	entry struct {
		key   Key
		pcm   [][2]float32
		bytes int64
		elem  *list.Element
	}

	job struct {
		done chan struct{}
		err  error
	}
)

// DefaultMaxBytes is the default memory ceiling for preprocessed buffers.
const DefaultMaxBytes = 100 * 1024 * 1024

const bytesPerFrame = 8 // stereo float32

// ErrCacheFull is returned when a single buffer alone would exceed the
// memory ceiling, so its generation is refused.
var ErrCacheFull = errors.New("pitch cache memory ceiling exceeded")

// NewCache creates a cache with the given memory ceiling in bytes (<= 0
// means DefaultMaxBytes) and shifting function (nil means LinearShift).
func NewCache(maxBytes int64, shift ShiftFunc) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if shift == nil {
		shift = LinearShift
	}
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[Key]*entry),
		order:    list.New(),
		inflight: make(map[Key]*job),
		fails:    make(map[Key]error),
		shift:    shift,
	}
}

// PreprocessSync blocks until a shifted buffer for (slot, ratio) exists in
// the cache or its generation fails. A still-resident entry is never
// regenerated, and if another goroutine is generating the same key, the call
// waits for that job instead of starting its own.
func (c *Cache) PreprocessSync(slot int, ratio float32, src SourceFunc) error {
	j, existing, err := c.startJob(slot, ratio, src)
	if j == nil {
		return err
	}
	if existing {
		<-j.done
		return j.err
	}
	c.runJob(Key{Slot: slot, Ratio: ratio}, j, src)
	return j.err
}

// StartAsync enqueues the same work as PreprocessSync without blocking.
// Completion is observable only through a later MakeReader or PreprocessSync
// call; there is no callback.
func (c *Cache) StartAsync(slot int, ratio float32, src SourceFunc) {
	j, existing, _ := c.startJob(slot, ratio, src)
	if j == nil || existing {
		return
	}
	go c.runJob(Key{Slot: slot, Ratio: ratio}, j, src)
}

// startJob resolves the three cases under the lock: already cached (nil job,
// nil error), job in flight (job, existing=true), or a fresh job registered
// for the caller to run.
func (c *Cache) startJob(slot int, ratio float32, src SourceFunc) (*job, bool, error) {
	if src == nil {
		return nil, false, errors.New("nil source")
	}
	key := Key{Slot: slot, Ratio: ratio}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
		return nil, false, nil
	}
	if j, ok := c.inflight[key]; ok {
		return j, true, nil
	}
	j := &job{done: make(chan struct{})}
	c.inflight[key] = j
	return j, false, nil
}

func (c *Cache) runJob(key Key, j *job, src SourceFunc) {
	j.err = c.generate(key, src)
	c.mu.Lock()
	delete(c.inflight, key)
	if j.err != nil {
		c.fails[key] = j.err
	} else {
		delete(c.fails, key)
	}
	c.mu.Unlock()
	close(j.done)
}

func (c *Cache) generate(key Key, src SourceFunc) error {
	pcm, err := src()
	if err != nil {
		return fmt.Errorf("pitch source for slot %d: %w", key.Slot, err)
	}
	shifted := c.shift(pcm, key.Ratio)
	size := int64(len(shifted)) * bytesPerFrame
	c.mu.Lock()
	defer c.mu.Unlock()
	if size > c.maxBytes {
		return ErrCacheFull
	}
	e := &entry{key: key, pcm: shifted, bytes: size}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e
	c.total += size
	c.evictLocked()
	return nil
}

// evictLocked drops least-recently-used entries until the total is under the
// ceiling. The most-recently-used entry always survives.
func (c *Cache) evictLocked() {
	for c.total > c.maxBytes && c.order.Len() > 1 {
		back := c.order.Back()
		e := back.Value.(*entry)
		c.order.Remove(back)
		delete(c.entries, e.key)
		c.total -= e.bytes
	}
}

// MakeReader looks up the buffer for (slot, ratio) and returns a ready-to-
// play reader. ok is false on a miss, meaning the caller should retry later
// or fall back to real-time shifting; a non-nil error means the last
// generation for the key failed and a plain retry will not help.
func (c *Cache) MakeReader(slot int, ratio float32) (*Reader, bool, error) {
	key := Key{Slot: slot, Ratio: ratio}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
		return &Reader{pcm: e.pcm}, true, nil
	}
	if _, ok := c.inflight[key]; ok {
		return nil, false, nil
	}
	if err, ok := c.fails[key]; ok {
		return nil, false, err
	}
	return nil, false, nil
}

// Lookup returns the raw cached buffer for (slot, ratio), if resident. The
// returned buffer is immutable.
func (c *Cache) Lookup(slot int, ratio float32) ([][2]float32, bool) {
	key := Key{Slot: slot, Ratio: ratio}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
		return e.pcm, true
	}
	return nil, false
}

// Count returns the number of resident entries.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MemoryUsage returns the total bytes of resident entries.
func (c *Cache) MemoryUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Clear drops all resident entries and recorded failures. In-flight jobs
// complete normally and re-insert their results.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*entry)
	c.fails = make(map[Key]error)
	c.order.Init()
	c.total = 0
}

// ClearSlot drops all entries generated from the given sample slot, for use
// when the slot is reloaded with a different file.
func (c *Cache) ClearSlot(slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.Slot == slot {
			c.order.Remove(e.elem)
			c.total -= e.bytes
			delete(c.entries, key)
		}
	}
	for key := range c.fails {
		if key.Slot == slot {
			delete(c.fails, key)
		}
	}
}

// Reader reads frames from a cached buffer. It satisfies the codec.Decoder
// interface so the playback engine can treat cached and file-backed sources
// uniformly.
type Reader struct {
	pcm [][2]float32
	pos int64
}

func (r *Reader) ReadFrames(dst [][2]float32) (int, error) {
	if r.pos >= int64(len(r.pcm)) {
		return 0, io.EOF
	}
	n := copy(dst, r.pcm[r.pos:])
	r.pos += int64(n)
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) Seek(frame int64) error {
	if frame < 0 {
		return errors.New("cannot seek before start")
	}
	r.pos = frame
	return nil
}

func (r *Reader) Length() int64 { return int64(len(r.pcm)) }

func (r *Reader) Close() error { return nil }

// PCM returns the underlying immutable buffer.
func (r *Reader) PCM() [][2]float32 { return r.pcm }
