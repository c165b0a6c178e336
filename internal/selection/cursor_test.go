package selection

import (
	"errors"
	"testing"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

func samples(ids ...string) []sample.Sample {
	out := make([]sample.Sample, len(ids))
	for i, id := range ids {
		out[i] = sample.Sample{ID: id, Text: "text " + id}
	}
	return out
}

func TestCurrentEmpty(t *testing.T) {
	var c Cursor
	if _, err := c.Current(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Current(nil) error = %v, want ErrEmpty", err)
	}
}

func TestNavigationBounds(t *testing.T) {
	s := samples("1", "2", "3")
	var c Cursor

	if err := c.Previous(); !errors.Is(err, ErrAtStart) {
		t.Errorf("Previous at 0: error = %v, want ErrAtStart", err)
	}
	if c.Index() != 0 {
		t.Errorf("Previous at 0 moved cursor to %d", c.Index())
	}

	for i := 0; i < 2; i++ {
		if err := c.Next(len(s)); err != nil {
			t.Fatalf("Next #%d error = %v", i, err)
		}
	}
	if !c.IsLast(len(s)) {
		t.Errorf("IsLast should be true at index %d", c.Index())
	}
	if err := c.Next(len(s)); !errors.Is(err, ErrAtEnd) {
		t.Errorf("Next at tail: error = %v, want ErrAtEnd", err)
	}
	if c.Index() != 2 {
		t.Errorf("Next at tail moved cursor to %d", c.Index())
	}

	cur, err := c.Current(s)
	if err != nil || cur.ID != "3" {
		t.Errorf("Current() = %v, %v; want sample 3", cur.ID, err)
	}
}

func TestFirstLastFlags(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		length    int
		wantFirst bool
		wantLast  bool
	}{
		{"single", 0, 1, true, true},
		{"head", 0, 3, true, false},
		{"middle", 1, 3, false, false},
		{"tail", 2, 3, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Cursor{index: tt.index}
			if c.IsFirst() != tt.wantFirst {
				t.Errorf("IsFirst() = %v, want %v", c.IsFirst(), tt.wantFirst)
			}
			if c.IsLast(tt.length) != tt.wantLast {
				t.Errorf("IsLast(%d) = %v, want %v", tt.length, c.IsLast(tt.length), tt.wantLast)
			}
		})
	}
}

func TestArmAdvanceAtTail(t *testing.T) {
	var c Cursor

	if advanced := c.ArmAdvance(1); advanced {
		t.Fatal("ArmAdvance at tail should not move the cursor")
	}
	if !c.Armed() {
		t.Fatal("cursor should be armed")
	}

	// The stream has not grown yet.
	if c.Settle(1) {
		t.Error("Settle without growth should not move")
	}

	if !c.Settle(2) {
		t.Fatal("Settle after growth should move")
	}
	if c.Index() != 1 || c.Armed() {
		t.Errorf("after Settle: index=%d armed=%v, want 1/false", c.Index(), c.Armed())
	}

	// A second settle is a no-op.
	if c.Settle(3) {
		t.Error("Settle should only apply the armed advance once")
	}
}

func TestArmAdvanceBeforeTailMovesImmediately(t *testing.T) {
	var c Cursor
	if !c.ArmAdvance(3) {
		t.Fatal("ArmAdvance before tail should advance immediately")
	}
	if c.Index() != 1 || c.Armed() {
		t.Errorf("index=%d armed=%v, want 1/false", c.Index(), c.Armed())
	}
}

func TestPreviousDisarms(t *testing.T) {
	c := Cursor{index: 1}
	c.ArmAdvance(2)
	if err := c.Previous(); err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if c.Armed() {
		t.Error("Previous should drop the pending advance")
	}
	if c.Settle(3) {
		t.Error("disarmed cursor should not settle")
	}
}

func TestDisarm(t *testing.T) {
	var c Cursor
	c.ArmAdvance(1)
	c.Disarm()
	if c.Settle(2) {
		t.Error("disarmed cursor should not settle")
	}
}
