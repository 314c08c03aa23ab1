package conversation

import "duochat/internal/domain/entity"

// ReceiptMarker decides which messages the viewer still has to acknowledge.
// An id is requested at most once until Release is called for it or the
// store shows it as read.
type ReceiptMarker struct {
	uid       string
	requested map[string]struct{}
}

func NewReceiptMarker(uid string) *ReceiptMarker {
	return &ReceiptMarker{
		uid:       uid,
		requested: make(map[string]struct{}),
	}
}

// Collect returns the ids in msgs that are unread by the viewer and not
// already requested, and records them as requested.
func (r *ReceiptMarker) Collect(msgs []entity.Message) []string {
	var ids []string
	for i := range msgs {
		m := &msgs[i]
		if !m.UnreadBy(r.uid) {
			delete(r.requested, m.ID)
			continue
		}
		if _, ok := r.requested[m.ID]; ok {
			continue
		}
		r.requested[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}

// Release forgets ids whose write failed so the next store change retries
// them.
func (r *ReceiptMarker) Release(ids []string) {
	for _, id := range ids {
		delete(r.requested, id)
	}
}

func (r *ReceiptMarker) Pending() int {
	return len(r.requested)
}
