// Package clock translates wall-clock time into the discrete slot/interval
// axis that Lean Consensus operates on.
//
// Every node on the network must derive the same slot number from the same
// second, so the only input that matters is genesis time -- there is no
// clock synchronization protocol beyond "use NTP and agree on GenesisTime".
package clock

import (
	"time"

	"github.com/geanlabs/gean/types"
)

// Interval counts intervals elapsed since genesis. It matches the unit the
// fork-choice store's internal Time field advances in.
type Interval uint64

// SlotClock converts Unix wall-clock time into slots and intervals. The time
// source is pluggable so tests can drive it without sleeping.
type SlotClock struct {
	genesis uint64
	now     func() time.Time
}

// New returns a SlotClock anchored at genesisTime, reading the real clock.
func New(genesisTime uint64) *SlotClock {
	return &SlotClock{genesis: genesisTime, now: time.Now}
}

// NewWithTimeFunc returns a SlotClock driven by an injected time source.
func NewWithTimeFunc(genesisTime uint64, now func() time.Time) *SlotClock {
	return &SlotClock{genesis: genesisTime, now: now}
}

// GenesisTime returns the Unix timestamp slot 0 begins at.
func (c *SlotClock) GenesisTime() uint64 {
	return c.genesis
}

// BeforeGenesis reports whether the clock's current reading precedes
// genesis.
func (c *SlotClock) BeforeGenesis() bool {
	return uint64(c.now().Unix()) < c.genesis
}

// elapsed returns seconds since genesis, floored at zero for any reading
// taken before genesis -- callers that care about the distinction should
// check BeforeGenesis first.
func (c *SlotClock) elapsed() uint64 {
	nowUnix := uint64(c.now().Unix())
	if nowUnix <= c.genesis {
		return 0
	}
	return nowUnix - c.genesis
}

// Slot returns the current slot number.
func (c *SlotClock) Slot() types.Slot {
	return types.Slot(c.elapsed() / types.SecondsPerSlot)
}

// SlotInterval returns which of the four intervals within the current slot
// the clock is in.
func (c *SlotClock) SlotInterval() Interval {
	secondsIntoSlot := c.elapsed() % types.SecondsPerSlot
	return Interval(secondsIntoSlot / types.SecondsPerInterval)
}

// Ticks returns the total count of intervals elapsed since genesis -- the
// unit the fork-choice store's AdvanceTime advances its own clock in.
func (c *SlotClock) Ticks() uint64 {
	return c.elapsed() / types.SecondsPerInterval
}

// SlotDeadline returns the Unix timestamp at which the given slot begins.
func (c *SlotClock) SlotDeadline(slot types.Slot) uint64 {
	return c.genesis + uint64(slot)*types.SecondsPerSlot
}

// UnixNow returns the clock's current reading as a Unix timestamp, for
// callers that hand wall-clock time onward to something that derives its
// own slot math from it (e.g. the fork-choice store's AdvanceTime).
func (c *SlotClock) UnixNow() uint64 {
	return uint64(c.now().Unix())
}
