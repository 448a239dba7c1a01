package engine

// Cursor tracks the highest height durably processed for one network.
// It only ever moves forward: Seed sets the starting point, Advance refuses
// to decrement. Each cursor is owned exclusively by its network's task, so no
// locking is needed.
type Cursor struct {
	last     uint64
	advanced bool
}

// NewCursor returns a cursor at height 0 ("never synced").
func NewCursor() *Cursor {
	return &Cursor{}
}

// Last returns the current position.
func (c *Cursor) Last() uint64 { return c.last }

// Advanced reports whether Advance or Seed has moved the cursor this process.
func (c *Cursor) Advanced() bool { return c.advanced }

// Seed positions the cursor without marking heights processed; used at
// startup from storage or a warm-start window.
func (c *Cursor) Seed(height uint64) {
	if height > c.last {
		c.last = height
	}
	if height > 0 {
		c.advanced = true
	}
}

// Advance moves the cursor to height after a successful
// fetch-persist-publish cycle. Lower heights are ignored.
func (c *Cursor) Advance(height uint64) {
	if height > c.last {
		c.last = height
	}
	c.advanced = true
}
