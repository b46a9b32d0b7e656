package record

import (
	"github.com/samber/lo"

	"fmgo/schema"
)

type (
	// Result is one command execution's found set; immutable after
	// materialization.
	Result struct {
		layout  *schema.Layout
		arena   *Arena
		records []Handle

		// TableCount is total rows in the table, FoundSetCount rows
		// matching the find before range filtering, FetchCount rows
		// actually returned.
		TableCount    int
		FoundSetCount int
		FetchCount    int
	}
)

func (r *Result) Layout() *schema.Layout {
	return r.layout
}

func (r *Result) Arena() *Arena {
	return r.arena
}

// Slots returns the top-level record representations in fetch order.
func (r *Result) Slots() []Slots {
	return lo.Map(
		r.records,
		func(handle Handle, _ int) Slots {
			return r.arena.Get(handle)
		},
	)
}

// Records returns the top-level records in fetch order. Only valid
// with the default record factory.
func (r *Result) Records() []*Record {
	return lo.FilterMap(
		r.records,
		func(handle Handle, _ int) (*Record, bool) {
			rec, ok := r.arena.Get(handle).(*Record)
			return rec, ok
		},
	)
}

// First returns the first record, or nil for an empty found set.
func (r *Result) First() *Record {
	records := r.Records()
	if len(records) == 0 {
		return nil
	}
	return records[0]
}
