package boundary

import "sync/atomic"

// Kind identifies what a handle refers to.
type Kind int

const (
	KindTree Kind = iota
	KindContext
	KindNode
	KindVar
	KindBuffer
	KindString
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindContext:
		return "context"
	case KindNode:
		return "node"
	case KindVar:
		return "var"
	case KindBuffer:
		return "buffer"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Counts is the allocation history of one handle kind.
type Counts struct {
	Allocated int64
	Released  int64
}

// Outstanding is the number of live handles.
func (c Counts) Outstanding() int64 { return c.Allocated - c.Released }

// Ledger counts handle allocations and releases per kind. A balanced ledger
// (Outstanding() == 0) means every handle handed out was released exactly
// once. Safe for concurrent use.
type Ledger struct {
	allocated [numKinds]atomic.Int64
	released  [numKinds]atomic.Int64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger { return &Ledger{} }

// DefaultLedger counts handles for loads that do not pass WithLedger.
var DefaultLedger = NewLedger()

// Track records an allocation of kind k. Handles created by this package
// track themselves; the C ABI calls it for strings it hands out.
func (l *Ledger) Track(k Kind) { l.allocated[k].Add(1) }

// Untrack records the release of a kind k allocation.
func (l *Ledger) Untrack(k Kind) { l.released[k].Add(1) }

// Outstanding returns the number of live handles across all kinds.
func (l *Ledger) Outstanding() int64 {
	var n int64
	for k := range numKinds {
		n += l.allocated[k].Load() - l.released[k].Load()
	}
	return n
}

// Snapshot returns the counts for every kind that has ever been allocated.
func (l *Ledger) Snapshot() map[Kind]Counts {
	out := make(map[Kind]Counts)
	for k := range numKinds {
		c := Counts{Allocated: l.allocated[k].Load(), Released: l.released[k].Load()}
		if c.Allocated != 0 || c.Released != 0 {
			out[k] = c
		}
	}
	return out
}
