// Package chunk implements the append-only storage used by tapes.
//
// A Store holds one kind of record in a list of fixed-capacity chunks. Records
// are only ever appended; history is removed by truncating back to a Cursor.
// Several stores are combined into a Stack, which snapshots and truncates all
// of them together and walks them in lockstep.
//
// Usage:
//
//	ids := chunk.NewStore[int](chunk.DefaultSize)
//	ids.Reserve(3)
//	ids.Push(1)
//	pos := ids.Cursor()
//	ids.Push(2)
//	ids.ResetTo(pos) // drops 2
package chunk

import (
	"errors"
	"unsafe"

	"github.com/born-ml/adtape/internal/stats"
)

// DefaultSize is the number of records per chunk used when none is given.
const DefaultSize = 32768

// ErrShrinkBelowSize is returned when a store is resized below its content.
var ErrShrinkBelowSize = errors.New("chunk: cannot shrink below used size")

// Cursor is a write or read position inside one store.
type Cursor struct {
	Chunk int // Index of the chunk
	Data  int // Offset inside the chunk
}

// Compare orders two cursors of the same store. It returns -1, 0 or +1.
// Both cursors must be normalized (see Store.Normalize).
func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.Chunk < o.Chunk:
		return -1
	case c.Chunk > o.Chunk:
		return 1
	case c.Data < o.Data:
		return -1
	case c.Data > o.Data:
		return 1
	}
	return 0
}

type block[T any] struct {
	data []T // len(data) is the chunk capacity
	used int
}

// Store is a growable sequence of fixed-capacity chunks.
type Store[T any] struct {
	chunks    []*block[T]
	cur       int
	chunkSize int
}

// NewStore creates a store whose chunks hold chunkSize records.
func NewStore[T any](chunkSize int) *Store[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultSize
	}
	return &Store[T]{
		chunks:    []*block[T]{{data: make([]T, chunkSize)}},
		chunkSize: chunkSize,
	}
}

// Reserve guarantees that the next n pushes land contiguously in one chunk.
func (s *Store[T]) Reserve(n int) {
	c := s.chunks[s.cur]
	if len(c.data)-c.used >= n {
		return
	}
	s.nextChunk(n)
}

// Push appends one record.
func (s *Store[T]) Push(v T) {
	c := s.chunks[s.cur]
	if c.used == len(c.data) {
		s.nextChunk(1)
		c = s.chunks[s.cur]
	}
	c.data[c.used] = v
	c.used++
}

// nextChunk makes the current chunk one with room for n records.
func (s *Store[T]) nextChunk(n int) {
	size := max(s.chunkSize, n)

	if s.chunks[s.cur].used == 0 {
		s.chunks[s.cur] = &block[T]{data: make([]T, size)}
		return
	}

	s.cur++
	if s.cur < len(s.chunks) {
		if c := s.chunks[s.cur]; len(c.data) >= n {
			c.used = 0
			return
		}
		s.chunks[s.cur] = &block[T]{data: make([]T, size)}
		return
	}
	s.chunks = append(s.chunks, &block[T]{data: make([]T, size)})
}

// Cursor returns the current write position.
func (s *Store[T]) Cursor() Cursor {
	return s.Normalize(Cursor{Chunk: s.cur, Data: s.chunks[s.cur].used})
}

// Start returns the position of an empty store.
func (s *Store[T]) Start() Cursor {
	return Cursor{}
}

// Normalize maps a cursor that sits at the very beginning of a chunk onto the
// end of the preceding non-empty chunk. Both denote the same point in the
// record sequence; the normalized form makes cursors comparable.
func (s *Store[T]) Normalize(c Cursor) Cursor {
	for c.Data == 0 && c.Chunk > 0 {
		c.Chunk--
		c.Data = s.chunks[c.Chunk].used
	}
	return c
}

// ResetTo truncates all records at or after c.
func (s *Store[T]) ResetTo(c Cursor) {
	for i := c.Chunk + 1; i <= s.cur; i++ {
		s.chunks[i].used = 0
	}
	s.cur = c.Chunk
	s.chunks[s.cur].used = c.Data
}

// Reset drops all records.
func (s *Store[T]) Reset() {
	s.ResetTo(Cursor{})
}

// Size returns the number of stored records.
func (s *Store[T]) Size() int {
	n := 0
	for i := 0; i <= s.cur; i++ {
		n += s.chunks[i].used
	}
	return n
}

// Capacity returns the number of records the allocated chunks can hold.
func (s *Store[T]) Capacity() int {
	n := 0
	for _, c := range s.chunks {
		n += len(c.data)
	}
	return n
}

// NumChunks returns the number of allocated chunks.
func (s *Store[T]) NumChunks() int {
	return len(s.chunks)
}

// Resize sets the total capacity to n records. Unused trailing chunks are
// released and the current chunk is reallocated to make up the difference.
func (s *Store[T]) Resize(n int) error {
	if n < s.Size() {
		return ErrShrinkBelowSize
	}

	s.chunks = s.chunks[:s.cur+1]

	before := 0
	for i := 0; i < s.cur; i++ {
		before += len(s.chunks[i].data)
	}

	c := s.chunks[s.cur]
	want := max(n-before, c.used)
	if want == len(c.data) {
		return nil
	}
	data := make([]T, want)
	copy(data, c.data[:c.used])
	c.data = data
	return nil
}

// Backward moves c back over the n records that precede it and returns them.
// The n records must have been pushed after a Reserve of at least n.
func (s *Store[T]) Backward(c *Cursor, n int) []T {
	if n == 0 {
		return nil
	}
	for c.Data == 0 {
		c.Chunk--
		c.Data = s.chunks[c.Chunk].used
	}
	c.Data -= n
	return s.chunks[c.Chunk].data[c.Data : c.Data+n : c.Data+n]
}

// Forward returns the n records that follow c and moves c past them.
func (s *Store[T]) Forward(c *Cursor, n int) []T {
	if n == 0 {
		return nil
	}
	for c.Data+n > s.chunks[c.Chunk].used {
		c.Chunk++
		c.Data = 0
	}
	out := s.chunks[c.Chunk].data[c.Data : c.Data+n : c.Data+n]
	c.Data += n
	return out
}

// AddStats appends occupancy and memory entries for this store.
func (s *Store[T]) AddStats(section *stats.Section) {
	var zero T
	size := int(unsafe.Sizeof(zero))

	used := s.Size()
	capacity := s.Capacity()

	section.AddInt("Total number", used)
	section.AddInt("Number of chunks", s.NumChunks())
	section.AddMemory("Memory used", used*size, false)
	section.AddMemory("Memory allocated", capacity*size, true)
}
