package conversation

import (
	"maps"
	"sort"

	"duochat/internal/domain/entity"
)

// Store is the ordered message list of one conversation. It is not safe for
// concurrent use; a Session mutates it from its own loop only.
type Store struct {
	chatID   string
	messages []entity.Message
	pos      map[string]int
	seq      map[string]uint64
	nextSeq  uint64
	version  uint64
	subs     []func([]entity.Message)
}

func NewStore(chatID string) *Store {
	return &Store{
		chatID: chatID,
		pos:    make(map[string]int),
		seq:    make(map[string]uint64),
	}
}

func (s *Store) ChatID() string { return s.chatID }

func (s *Store) Len() int { return len(s.messages) }

// Version increases on every change that subscribers are told about.
func (s *Store) Version() uint64 { return s.version }

// Subscribe registers fn to receive the ordered list after every change.
func (s *Store) Subscribe(fn func([]entity.Message)) {
	s.subs = append(s.subs, fn)
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (entity.Message, bool) {
	i, ok := s.pos[id]
	if !ok {
		return entity.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Messages returns a copy of the ordered list.
func (s *Store) Messages() []entity.Message {
	out := make([]entity.Message, len(s.messages))
	for i := range s.messages {
		out[i] = s.messages[i].Clone()
	}
	return out
}

// MergeInsert adds new messages and replaces known ones wholesale, then
// restores timestamp order. Messages of another conversation or without an id
// are ignored. Equal timestamps keep first-insertion order.
func (s *Store) MergeInsert(batch []*entity.Message) []entity.Message {
	changed := false

	for _, m := range batch {
		if m == nil || m.ID == "" || m.ChatID != s.chatID {
			continue
		}

		msg := m.Clone()
		if i, ok := s.pos[msg.ID]; ok {
			s.messages[i] = msg
		} else {
			s.seq[msg.ID] = s.nextSeq
			s.nextSeq++
			s.pos[msg.ID] = len(s.messages)
			s.messages = append(s.messages, msg)
		}
		changed = true
	}

	if changed {
		s.reorder()
		s.publish()
	}

	return s.Messages()
}

// Patch applies the non-nil fields of p to the message with the given id. It
// reports false, and changes nothing, when the id is not materialized.
// Subscribers are only notified when a field actually changed.
func (s *Store) Patch(id string, p entity.MessagePatch) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}

	msg := &s.messages[i]
	changed, resort := false, false

	if p.Status != nil && !maps.Equal(p.Status, msg.Status) {
		status := make(map[string]entity.ReceiptStatus, len(p.Status))
		for k, v := range p.Status {
			status[k] = v
		}
		msg.Status = status
		changed = true
	}
	if p.Text != nil && *p.Text != msg.Text {
		msg.Text = *p.Text
		changed = true
	}
	if p.Edited != nil && *p.Edited != msg.Edited {
		msg.Edited = *p.Edited
		changed = true
	}
	if p.Deleted != nil && *p.Deleted != msg.Deleted {
		msg.Deleted = *p.Deleted
		changed = true
	}
	if p.Timestamp != nil && *p.Timestamp != msg.Timestamp {
		msg.Timestamp = *p.Timestamp
		changed, resort = true, true
	}

	if resort {
		s.reorder()
	}
	if changed {
		s.publish()
	}
	return true
}

func (s *Store) reorder() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		a, b := &s.messages[i], &s.messages[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})
	for i := range s.messages {
		s.pos[s.messages[i].ID] = i
	}
}

func (s *Store) publish() {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	snapshot := s.Messages()
	for _, fn := range s.subs {
		fn(snapshot)
	}
}
