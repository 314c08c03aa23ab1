package conversation

import "duochat/internal/domain/entity"

// Bound is an optional timestamp.
type Bound struct {
	TS    int64
	Valid bool
}

// Watermarks bound the materialized range of a conversation. Exhausted means
// there is no history before Earliest; it is kept apart from Earliest so the
// update listener keeps its lower bound.
type Watermarks struct {
	Earliest  Bound
	Latest    Bound
	Exhausted bool
}

// Reset derives both bounds from a freshly loaded page. An empty page leaves
// them unset.
func (w *Watermarks) Reset(page []*entity.Message) {
	*w = Watermarks{}
	for _, m := range page {
		w.include(m.Timestamp)
	}
}

// Advance records a live arrival.
func (w *Watermarks) Advance(ts int64) {
	w.include(ts)
}

// ExtendBack moves Earliest down to ts. It never moves it up.
func (w *Watermarks) ExtendBack(ts int64) {
	if !w.Earliest.Valid || ts < w.Earliest.TS {
		w.Earliest = Bound{TS: ts, Valid: true}
	}
}

func (w *Watermarks) Exhaust() {
	w.Exhausted = true
}

// CanPage reports whether a backward page may still return something.
func (w Watermarks) CanPage() bool {
	return w.Earliest.Valid && !w.Exhausted
}

// AppendBound is the exclusive lower bound for the live append listener.
func (w Watermarks) AppendBound() int64 {
	if w.Latest.Valid {
		return w.Latest.TS
	}
	return 0
}

// UpdateBound is the inclusive lower bound for the update listener.
func (w Watermarks) UpdateBound() (int64, bool) {
	return w.Earliest.TS, w.Earliest.Valid
}

func (w *Watermarks) include(ts int64) {
	if !w.Earliest.Valid || ts < w.Earliest.TS {
		w.Earliest = Bound{TS: ts, Valid: true}
	}
	if !w.Latest.Valid || ts > w.Latest.TS {
		w.Latest = Bound{TS: ts, Valid: true}
	}
}
