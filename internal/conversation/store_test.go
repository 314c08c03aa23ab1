package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/domain/entity"
)

const testChat = "alice_bob"

func msg(id string, ts int64) *entity.Message {
	return &entity.Message{
		ID:        id,
		ChatID:    testChat,
		SenderID:  "bob",
		Text:      "hi " + id,
		Timestamp: ts,
		Status:    map[string]entity.ReceiptStatus{"alice": entity.StatusSent},
	}
}

func ids(msgs []entity.Message) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].ID
	}
	return out
}

func TestStoreMergeInsertOrdersByTimestamp(t *testing.T) {
	s := NewStore(testChat)

	got := s.MergeInsert([]*entity.Message{msg("c", 30), msg("a", 10)})
	assert.Equal(t, []string{"a", "c"}, ids(got))

	got = s.MergeInsert([]*entity.Message{msg("b", 20)})
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestStoreMergeInsertIsIdempotent(t *testing.T) {
	s := NewStore(testChat)
	batch := []*entity.Message{msg("a", 10), msg("b", 20)}

	first := s.MergeInsert(batch)
	second := s.MergeInsert(batch)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, s.Len())
}

func TestStoreReplacesExistingMessageWholesale(t *testing.T) {
	s := NewStore(testChat)
	s.MergeInsert([]*entity.Message{msg("a", 10)})

	updated := msg("a", 10)
	updated.Text = "edited"
	updated.Edited = true
	s.MergeInsert([]*entity.Message{updated})

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "edited", got.Text)
	assert.True(t, got.Edited)
	assert.Equal(t, 1, s.Len())
}

func TestStoreTiesKeepInsertionOrder(t *testing.T) {
	s := NewStore(testChat)

	s.MergeInsert([]*entity.Message{msg("x", 10)})
	s.MergeInsert([]*entity.Message{msg("y", 10)})
	got := s.MergeInsert([]*entity.Message{msg("w", 10)})

	assert.Equal(t, []string{"x", "y", "w"}, ids(got))

	// Replacing x keeps its original position among equal timestamps.
	got = s.MergeInsert([]*entity.Message{msg("x", 10)})
	assert.Equal(t, []string{"x", "y", "w"}, ids(got))
}

func TestStoreIgnoresForeignMessages(t *testing.T) {
	s := NewStore(testChat)

	other := msg("z", 5)
	other.ChatID = "bob_carol"
	got := s.MergeInsert([]*entity.Message{other, {ChatID: testChat}, nil})

	assert.Empty(t, got)
	assert.Zero(t, s.Version())
}

func TestStorePatch(t *testing.T) {
	s := NewStore(testChat)
	s.MergeInsert([]*entity.Message{msg("a", 10), msg("b", 20)})

	var published [][]entity.Message
	s.Subscribe(func(m []entity.Message) { published = append(published, m) })

	read := msg("a", 10)
	read.Status["alice"] = entity.StatusRead
	assert.True(t, s.Patch("a", entity.PatchFrom(read)))

	got, _ := s.Get("a")
	assert.Equal(t, entity.StatusRead, got.Status["alice"])
	require.Len(t, published, 1)

	assert.False(t, s.Patch("missing", entity.PatchFrom(msg("missing", 1))))
	assert.Len(t, published, 1)
	assert.Equal(t, 2, s.Len())
}

func TestStorePatchUnchangedDoesNotPublish(t *testing.T) {
	s := NewStore(testChat)
	s.MergeInsert([]*entity.Message{msg("a", 10)})

	published := 0
	s.Subscribe(func([]entity.Message) { published++ })

	assert.True(t, s.Patch("a", entity.PatchFrom(msg("a", 10))))
	assert.Zero(t, published)

	edited := msg("a", 10)
	edited.Text = "edited"
	assert.True(t, s.Patch("a", entity.PatchFrom(edited)))
	assert.Equal(t, 1, published)
}

func TestStorePatchTimestampReorders(t *testing.T) {
	s := NewStore(testChat)
	s.MergeInsert([]*entity.Message{msg("a", 10), msg("b", 20)})

	ts := int64(30)
	require.True(t, s.Patch("a", entity.MessagePatch{Timestamp: &ts}))

	assert.Equal(t, []string{"b", "a"}, ids(s.Messages()))
}

func TestStoreMessagesAreCopies(t *testing.T) {
	s := NewStore(testChat)
	s.MergeInsert([]*entity.Message{msg("a", 10)})

	out := s.Messages()
	out[0].Status["alice"] = entity.StatusRead
	out[0].Text = "changed"

	got, _ := s.Get("a")
	assert.Equal(t, entity.StatusSent, got.Status["alice"])
	assert.Equal(t, "hi a", got.Text)
}
