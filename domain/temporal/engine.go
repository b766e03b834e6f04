package temporal

import (
	"math"
	"sort"
	"time"

	"offerctr/domain/core"
)

// Config holds engine settings
type Config struct {
	// HalfLife controls the exponential decay kernel for decayed counts.
	// Zero or negative disables decay: decayed counts equal raw counts.
	HalfLife time.Duration

	// Window bounds acceptable event timestamps. Events outside it are
	// rejected before touching any accumulator.
	Window core.ValidityWindow
}

// event is one absorbed observation
type event struct {
	at      int64 // unix microseconds
	clicked bool
}

// entityState accumulates one key's history. Restored snapshot totals live in
// the base fields; events holds everything absorbed since. Decay over the
// base factorizes exactly through the watermark, so recomputing a view never
// approximates: decayed(t) = base * 0.5^((t-watermark)/H) + exact sum over
// retained events.
type entityState struct {
	baseImpressions int64
	baseClicks      int64
	baseDecayedImp  float64
	baseDecayedClk  float64
	baseAt          int64 // watermark of the base, 0 when none
	baseLast        int64 // true last event time inside the base, 0 when none

	events []event
	last   int64 // most recent absorbed event time, 0 when none
}

// Engine maintains per-entity chronological statistics with an
// emit-then-update discipline: the view for a record is built from state
// excluding that record, and only then is the record's label folded in.
type Engine struct {
	cfg    Config
	states map[Key]*entityState
}

// NewEngine creates an empty engine
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		states: make(map[Key]*entityState),
	}
}

// Observe processes one labeled event for a key and returns the pre-update
// view. The sequence is fixed:
//
//	Step 1: validate the timestamp against the window
//	Step 2: enforce non-decreasing event time for the key
//	Step 3: emit the view from state strictly before ts
//	Step 4: fold the event's label into the accumulator
//
// Ties are legal: records are unique on (user, offer, timestamp), so a
// single-column key routinely sees two distinct records at the same
// instant. The strictly-before cut in step 3 keeps tied labels out of each
// other's views; only a regression in time is an ordering violation.
//
// A rejected event (bad timestamp, out of order) leaves the accumulator
// untouched and returns a per-record error for the caller to route to the
// rejected sink.
func (e *Engine) Observe(key Key, ts core.Timestamp, clicked bool) (View, error) {
	if !e.cfg.Window.Contains(ts) {
		return View{}, core.NewBadTimestampError(ts.String(), "outside validity window")
	}

	micro := ts.Time().UnixMicro()
	state := e.states[key]
	if state == nil {
		state = &entityState{}
		e.states[key] = state
	}

	if state.last != 0 && micro < state.last {
		return View{}, core.NewOutOfOrderError(key.String(),
			time.UnixMicro(state.last).UTC().Format(time.RFC3339), ts.String())
	}
	if state.baseAt != 0 && micro <= state.baseAt {
		return View{}, core.NewOutOfOrderError(key.String(),
			time.UnixMicro(state.baseAt).UTC().Format(time.RFC3339), ts.String())
	}

	view := state.viewAt(key, micro, e.cfg.HalfLife)

	state.events = append(state.events, event{at: micro, clicked: clicked})
	state.last = micro

	return view, nil
}

// Admit checks whether Observe would accept (key, ts) without touching any
// state. Callers featurizing a record against several engines admit the
// record everywhere first, so a rejection in one engine cannot leave a
// half-updated row behind in another.
func (e *Engine) Admit(key Key, ts core.Timestamp) error {
	if !e.cfg.Window.Contains(ts) {
		return core.NewBadTimestampError(ts.String(), "outside validity window")
	}
	state := e.states[key]
	if state == nil {
		return nil
	}
	micro := ts.Time().UnixMicro()
	if state.last != 0 && micro < state.last {
		return core.NewOutOfOrderError(key.String(),
			time.UnixMicro(state.last).UTC().Format(time.RFC3339), ts.String())
	}
	if state.baseAt != 0 && micro <= state.baseAt {
		return core.NewOutOfOrderError(key.String(),
			time.UnixMicro(state.baseAt).UTC().Format(time.RFC3339), ts.String())
	}
	return nil
}

// At returns the statistic for a key as of ts without mutating anything.
// The view is an explicit function of (key, ts): counts cover exactly the
// events strictly before ts, whatever order queries arrive in. Querying at
// or before a restored snapshot's watermark fails: the snapshot cannot be
// decomposed below its watermark.
func (e *Engine) At(key Key, ts core.Timestamp) (View, error) {
	state := e.states[key]
	micro := ts.Time().UnixMicro()
	if state == nil {
		return ColdView(key, ts), nil
	}
	if state.baseAt != 0 && micro <= state.baseAt {
		return View{}, core.NewFutureStatisticError(
			time.UnixMicro(state.baseAt).UTC().Format(time.RFC3339), ts.String())
	}
	return state.viewAt(key, micro, e.cfg.HalfLife), nil
}

// viewAt builds the view from all state strictly before tsMicro
func (s *entityState) viewAt(key Key, tsMicro int64, halfLife time.Duration) View {
	view := View{
		Key:  key,
		AsOf: core.NewTimestamp(time.UnixMicro(tsMicro).UTC()),
	}

	var lastBefore int64
	if s.baseAt != 0 {
		view.Impressions = s.baseImpressions
		view.Clicks = s.baseClicks
		factor := decayFactor(tsMicro-s.baseAt, halfLife)
		view.DecayedImpressions = s.baseDecayedImp * factor
		view.DecayedClicks = s.baseDecayedClk * factor
		lastBefore = s.baseLast
		if lastBefore == 0 {
			lastBefore = s.baseAt
		}
	}

	for _, ev := range s.events {
		if ev.at >= tsMicro {
			continue
		}
		view.Impressions++
		w := decayFactor(tsMicro-ev.at, halfLife)
		view.DecayedImpressions += w
		if ev.clicked {
			view.Clicks++
			view.DecayedClicks += w
		}
		if ev.at > lastBefore {
			lastBefore = ev.at
		}
	}

	if view.Impressions > 0 {
		view.Seen = true
		view.SinceLast = time.Duration(tsMicro-lastBefore) * time.Microsecond
	}
	return view
}

// totalsAt sums everything absorbed so far, decayed to tsMicro. Unlike
// viewAt there is no strictly-before cut: this is the complete state, used
// when exporting snapshots.
func (s *entityState) totalsAt(tsMicro int64, halfLife time.Duration) (imp, clk int64, decImp, decClk float64) {
	if s.baseAt != 0 {
		imp = s.baseImpressions
		clk = s.baseClicks
		factor := decayFactor(tsMicro-s.baseAt, halfLife)
		decImp = s.baseDecayedImp * factor
		decClk = s.baseDecayedClk * factor
	}
	for _, ev := range s.events {
		imp++
		w := decayFactor(tsMicro-ev.at, halfLife)
		decImp += w
		if ev.clicked {
			clk++
			decClk += w
		}
	}
	return imp, clk, decImp, decClk
}

// decayFactor returns 0.5^(dt/halfLife). Non-positive half-life disables
// decay entirely.
func decayFactor(dtMicro int64, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	dt := float64(dtMicro) / float64(halfLife.Microseconds())
	return math.Pow(0.5, dt)
}

// Keys returns the number of tracked entity keys
func (e *Engine) Keys() int {
	return len(e.states)
}

// Restore seeds the engine from persisted snapshots. The engine must be
// empty, and every snapshot's watermark must lie strictly before the first
// event to be replayed: state that already absorbed the replay epoch would
// leak labels backward.
func (e *Engine) Restore(snaps []Snapshot, firstEvent core.Timestamp) error {
	if len(e.states) != 0 {
		return core.NewSchemaMismatchError("restore into non-empty engine")
	}
	for _, snap := range snaps {
		if err := snap.Validate(); err != nil {
			return err
		}
		if !snap.Watermark.AdmitsEvent(firstEvent) {
			return core.NewFutureStatisticError(snap.Watermark.String(), firstEvent.String())
		}
		micro := snap.Watermark.Time().UnixMicro()
		state := &entityState{
			baseImpressions: snap.Impressions,
			baseClicks:      snap.Clicks,
			baseDecayedImp:  snap.DecayedImpressions,
			baseDecayedClk:  snap.DecayedClicks,
			baseAt:          micro,
		}
		if !snap.LastEvent.IsZero() {
			state.baseLast = snap.LastEvent.Time().UnixMicro()
		}
		e.states[snap.Key] = state
	}
	return nil
}

// Export dumps every key's state as snapshots decayed to asOf, the new
// watermark. asOf must not precede any absorbed event; exporting mid-history
// would fabricate a past that already contains the future.
func (e *Engine) Export(asOf core.Timestamp) ([]Snapshot, error) {
	micro := asOf.Time().UnixMicro()
	snaps := make([]Snapshot, 0, len(e.states))
	for key, state := range e.states {
		if state.last > micro || state.baseAt > micro {
			latest := state.last
			if state.baseAt > latest {
				latest = state.baseAt
			}
			return nil, core.NewLeakageError(
				time.UnixMicro(latest).UTC().Format(time.RFC3339), asOf.String())
		}
		imp, clk, decImp, decClk := state.totalsAt(micro, e.cfg.HalfLife)
		snap := Snapshot{
			Key:                key,
			Impressions:        imp,
			Clicks:             clk,
			DecayedImpressions: decImp,
			DecayedClicks:      decClk,
			Watermark:          core.NewWatermark(asOf.Time()),
		}
		if state.last != 0 {
			snap.LastEvent = core.NewTimestamp(time.UnixMicro(state.last).UTC())
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Key < snaps[j].Key })
	return snaps, nil
}
