package temporal

import (
	"math"
	"time"

	"offerctr/domain/core"
)

// LedgerView is the transaction aggregate for one key as of one instant,
// built exclusively from transactions strictly before AsOf.
type LedgerView struct {
	Key  Key            `json:"key"`
	AsOf core.Timestamp `json:"as_of"`

	Count     int64         `json:"count"`
	Total     float64       `json:"total"`
	SinceLast time.Duration `json:"since_last"`
	Seen      bool          `json:"seen"`
}

// Frequency returns transactions per day over the span from first to AsOf,
// zero when unseen
func (v LedgerView) Frequency(span time.Duration) float64 {
	if !v.Seen || span <= 0 {
		return 0
	}
	return float64(v.Count) / (span.Hours() / 24)
}

// RecencyDays returns SinceLast in fractional days, zero when unseen
func (v LedgerView) RecencyDays() float64 {
	if !v.Seen {
		return 0
	}
	return v.SinceLast.Hours() / 24
}

// ledgerEvent is one absorbed transaction
type ledgerEvent struct {
	at     int64
	amount float64
}

type ledgerState struct {
	events []ledgerEvent
	last   int64
}

// LedgerEngine accumulates amount-bearing events (transactions) per key with
// the same chronological discipline as Engine. Views are as-of reads: a
// query at t sums only transactions strictly before t, so interaction
// records inherit the prior-only guarantee no matter when the transaction
// table was ingested.
type LedgerEngine struct {
	window core.ValidityWindow
	states map[Key]*ledgerState
	first  int64
}

// NewLedgerEngine creates an empty ledger engine
func NewLedgerEngine(window core.ValidityWindow) *LedgerEngine {
	return &LedgerEngine{
		window: window,
		states: make(map[Key]*ledgerState),
	}
}

// Ingest absorbs one transaction. Amounts must be finite; per-key order must
// be non-decreasing, matching the interaction engine's contract. Tied
// timestamps are distinct transactions and both count.
func (e *LedgerEngine) Ingest(key Key, ts core.Timestamp, amount float64) error {
	if !e.window.Contains(ts) {
		return core.NewBadTimestampError(ts.String(), "outside validity window")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return core.NewInvalidStatisticError("amount", "is not finite")
	}

	micro := ts.Time().UnixMicro()
	state := e.states[key]
	if state == nil {
		state = &ledgerState{}
		e.states[key] = state
	}
	if state.last != 0 && micro < state.last {
		return core.NewOutOfOrderError(key.String(),
			time.UnixMicro(state.last).UTC().Format(time.RFC3339), ts.String())
	}

	state.events = append(state.events, ledgerEvent{at: micro, amount: amount})
	state.last = micro
	if e.first == 0 || micro < e.first {
		e.first = micro
	}
	return nil
}

// At returns the aggregate for a key as of ts. Pure read; never mutates.
func (e *LedgerEngine) At(key Key, ts core.Timestamp) LedgerView {
	view := LedgerView{Key: key, AsOf: ts}
	state := e.states[key]
	if state == nil {
		return view
	}

	micro := ts.Time().UnixMicro()
	var lastBefore int64
	for _, ev := range state.events {
		if ev.at >= micro {
			continue
		}
		view.Count++
		view.Total += ev.amount
		if ev.at > lastBefore {
			lastBefore = ev.at
		}
	}
	if view.Count > 0 {
		view.Seen = true
		view.SinceLast = time.Duration(micro-lastBefore) * time.Microsecond
	}
	return view
}

// Keys returns the number of tracked keys
func (e *LedgerEngine) Keys() int {
	return len(e.states)
}
