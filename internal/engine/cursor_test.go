package engine

import "testing"

func TestCursorNeverDecrements(t *testing.T) {
	c := NewCursor()
	if c.Last() != 0 || c.Advanced() {
		t.Fatal("new cursor should be at 0 and not advanced")
	}

	c.Advance(10)
	c.Advance(5)
	if got := c.Last(); got != 10 {
		t.Fatalf("cursor = %d, want 10 after lower advance ignored", got)
	}

	c.Seed(3)
	if got := c.Last(); got != 10 {
		t.Fatalf("cursor = %d, want 10 after lower seed ignored", got)
	}
}

func TestCursorSeedZeroDoesNotMarkAdvanced(t *testing.T) {
	c := NewCursor()
	c.Seed(0)
	if c.Advanced() {
		t.Fatal("seeding at 0 must not mark the cursor advanced; warm start depends on it")
	}
	c.Seed(7)
	if !c.Advanced() || c.Last() != 7 {
		t.Fatalf("cursor = %d advanced=%t, want 7/true", c.Last(), c.Advanced())
	}
}
