package clock

import (
	"testing"
	"time"

	"github.com/geanlabs/gean/types"
)

func fixedClock(genesis uint64, unix int64) *SlotClock {
	return NewWithTimeFunc(genesis, func() time.Time { return time.Unix(unix, 0) })
}

func TestSlotClock_BeforeGenesis(t *testing.T) {
	c := fixedClock(1000, 500)
	if !c.BeforeGenesis() {
		t.Fatal("expected BeforeGenesis to be true when now < genesis")
	}
	if c.Slot() != 0 {
		t.Fatalf("Slot() before genesis = %d, want 0", c.Slot())
	}
	if c.Ticks() != 0 {
		t.Fatalf("Ticks() before genesis = %d, want 0", c.Ticks())
	}
}

func TestSlotClock_SlotAndInterval(t *testing.T) {
	genesis := uint64(1_000_000)

	// SecondsPerSlot == 4, IntervalsPerSlot == 4 => SecondsPerInterval == 1.
	cases := []struct {
		offset       int64
		wantSlot     types.Slot
		wantInterval Interval
	}{
		{0, 0, 0},
		{1, 0, 1},
		{3, 0, 3},
		{4, 1, 0},
		{9, 2, 1},
	}

	for _, tc := range cases {
		c := fixedClock(genesis, int64(genesis)+tc.offset)
		if got := c.Slot(); got != tc.wantSlot {
			t.Errorf("offset %d: Slot() = %d, want %d", tc.offset, got, tc.wantSlot)
		}
		if got := c.SlotInterval(); got != tc.wantInterval {
			t.Errorf("offset %d: SlotInterval() = %d, want %d", tc.offset, got, tc.wantInterval)
		}
	}
}

func TestSlotClock_Ticks(t *testing.T) {
	genesis := uint64(500)
	c := fixedClock(genesis, int64(genesis)+9)
	if got, want := c.Ticks(), uint64(9); got != want {
		t.Fatalf("Ticks() = %d, want %d", got, want)
	}
}

func TestSlotClock_SlotDeadline(t *testing.T) {
	genesis := uint64(2000)
	c := fixedClock(genesis, int64(genesis))
	if got, want := c.SlotDeadline(5), genesis+5*types.SecondsPerSlot; got != want {
		t.Fatalf("SlotDeadline(5) = %d, want %d", got, want)
	}
}

func TestSlotClock_UnixNow(t *testing.T) {
	c := fixedClock(0, 12345)
	if got, want := c.UnixNow(), uint64(12345); got != want {
		t.Fatalf("UnixNow() = %d, want %d", got, want)
	}
}
