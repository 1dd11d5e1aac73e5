package chunk

// MaxLevels is the maximum number of levels a Stack can hold.
const MaxLevels = 6

// Level is one participant of a Stack: anything with a position that can be
// snapshotted and truncated.
type Level interface {
	Cursor() Cursor
	Start() Cursor
	Normalize(c Cursor) Cursor
	ResetTo(c Cursor)
}

// Position is a snapshot of every level of a Stack.
//
// Positions are comparable with == and totally ordered by Compare. A position
// is only meaningful for the stack it was taken from, and only until that
// stack is reset to an earlier point.
type Position struct {
	cursors [MaxLevels]Cursor
}

// Level returns the cursor of level i.
func (p Position) Level(i int) Cursor {
	return p.cursors[i]
}

// Compare orders two positions lexicographically over the levels.
func (p Position) Compare(o Position) int {
	for i := range p.cursors {
		if c := p.cursors[i].Compare(o.cursors[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Stack is an explicit ordered list of levels that advance together. One of
// them is the driving level: walks visit its records one at a time while the
// caller pulls the matching records from the other levels.
type Stack struct {
	levels []Level
	driver int
}

// NewStack creates a stack over the given levels.
func NewStack(driver int, levels ...Level) *Stack {
	if len(levels) > MaxLevels {
		panic("chunk: too many stack levels")
	}
	if driver < 0 || driver >= len(levels) {
		panic("chunk: driving level out of range")
	}
	return &Stack{levels: levels, driver: driver}
}

// Position snapshots all levels.
func (s *Stack) Position() Position {
	var p Position
	for i, l := range s.levels {
		p.cursors[i] = l.Cursor()
	}
	return p
}

// Start returns the position of an empty stack.
func (s *Stack) Start() Position {
	var p Position
	for i, l := range s.levels {
		p.cursors[i] = l.Start()
	}
	return p
}

// ResetTo truncates every level to p. Resetting to the current position is a
// no-op.
func (s *Stack) ResetTo(p Position) {
	if p == s.Position() {
		return
	}
	for i := len(s.levels) - 1; i >= 0; i-- {
		s.levels[i].ResetTo(p.cursors[i])
	}
}

// Walk steps the levels of a stack together between two positions.
//
//	w := stack.Reverse(start, end)
//	for w.Next() {
//	    stmt := statements.Backward(w.Cursor(1), 1)[0]
//	    args := identifiers.Backward(w.Cursor(2), stmt.n)
//	    ...
//	}
type Walk struct {
	stack   *Stack
	cur     Position
	end     Position
	reverse bool
}

// Reverse walks from start back to end (newest to oldest).
func (s *Stack) Reverse(start, end Position) *Walk {
	return &Walk{stack: s, cur: start, end: end, reverse: true}
}

// Forward walks from start to end (oldest to newest).
func (s *Stack) Forward(start, end Position) *Walk {
	return &Walk{stack: s, cur: start, end: end}
}

// Next reports whether there is another record of the driving level to visit.
func (w *Walk) Next() bool {
	d := w.stack.driver
	l := w.stack.levels[d]
	cur := l.Normalize(w.cur.cursors[d])
	end := l.Normalize(w.end.cursors[d])
	w.cur.cursors[d] = cur
	if w.reverse {
		return cur.Compare(end) > 0
	}
	return cur.Compare(end) < 0
}

// Cursor gives access to the walk's cursor for level i. Callers advance it by
// reading from the level's store.
func (w *Walk) Cursor(i int) *Cursor {
	return &w.cur.cursors[i]
}
