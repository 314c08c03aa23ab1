package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/utils"
)

const waitFor = 2 * time.Second

type fakeSub struct {
	from     int64
	fn       repository.MessageListener
	disposed atomic.Bool
}

func (s *fakeSub) push(m *entity.Message) { s.fn(m, nil) }

type fakeRepo struct {
	mu        sync.Mutex
	latest    func(ctx context.Context, limit int) ([]*entity.Message, error)
	before    func(ctx context.Context, before int64, limit int) ([]*entity.Message, error)
	beforeArg []int64
	appended  []*fakeSub
	changed   []*fakeSub
	marks     [][]string
	markErrs  []error
}

var _ repository.ChatRepository = (*fakeRepo)(nil)

func (r *fakeRepo) LatestMessages(ctx context.Context, chatID string, limit int) ([]*entity.Message, error) {
	if r.latest == nil {
		return nil, nil
	}
	return r.latest(ctx, limit)
}

func (r *fakeRepo) MessagesBefore(ctx context.Context, chatID string, before int64, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	r.beforeArg = append(r.beforeArg, before)
	fn := r.before
	r.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, before, limit)
}

func (r *fakeRepo) SubscribeAppended(ctx context.Context, chatID string, after int64, fn repository.MessageListener) repository.Disposer {
	sub := &fakeSub{from: after, fn: fn}
	r.mu.Lock()
	r.appended = append(r.appended, sub)
	r.mu.Unlock()
	return func() { sub.disposed.Store(true) }
}

func (r *fakeRepo) SubscribeChanged(ctx context.Context, chatID string, from int64, fn repository.MessageListener) repository.Disposer {
	sub := &fakeSub{from: from, fn: fn}
	r.mu.Lock()
	r.changed = append(r.changed, sub)
	r.mu.Unlock()
	return func() { sub.disposed.Store(true) }
}

func (r *fakeRepo) CreateMessage(ctx context.Context, msg *entity.Message, peerID string) error {
	return nil
}

func (r *fakeRepo) MarkRead(ctx context.Context, chatID, uid string, messageIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.marks = append(r.marks, messageIDs)
	if len(r.markErrs) > 0 {
		err := r.markErrs[0]
		r.markErrs = r.markErrs[1:]
		return err
	}
	return nil
}

func (r *fakeRepo) ListSummaries(ctx context.Context, uid string) ([]*entity.ChatSummary, error) {
	return nil, nil
}

func (r *fakeRepo) appendSubs() []*fakeSub {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeSub(nil), r.appended...)
}

func (r *fakeRepo) changeSubs() []*fakeSub {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeSub(nil), r.changed...)
}

func (r *fakeRepo) markCalls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.marks...)
}

func (r *fakeRepo) beforeCalls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.beforeArg...)
}

type fakeSender struct {
	mu    sync.Mutex
	calls []entity.OutgoingMessage
	gate  chan struct{}
	err   error
}

func (s *fakeSender) SendMessage(ctx context.Context, uid string, in entity.OutgoingMessage) (*entity.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, in)
	n := len(s.calls)
	gate, err := s.gate, s.err
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &entity.Message{ID: fmt.Sprintf("sent-%d", n), ChatID: in.ChatID, SenderID: uid}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recorder struct {
	events chan Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan Event, 256)}
}

func (r *recorder) Deliver(e Event) { r.events <- e }

// next skips events until one of type typ arrives.
func (r *recorder) next(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case e := <-r.events:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return Event{}
		}
	}
}

func (r *recorder) drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func open(t *testing.T, repo *fakeRepo, sender Sender) (*Session, *recorder) {
	t.Helper()
	if sender == nil {
		sender = &fakeSender{}
	}
	rec := newRecorder()
	s, err := NewOpener(repo, sender, Options{PageSize: 2}).Open("alice", testChat, rec)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, rec
}

func snapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

func page(msgs ...*entity.Message) func(context.Context, int) ([]*entity.Message, error) {
	return func(context.Context, int) ([]*entity.Message, error) {
		return msgs, nil
	}
}

func TestOpenRejectsOutsiders(t *testing.T) {
	opener := NewOpener(&fakeRepo{}, &fakeSender{}, Options{})

	_, err := opener.Open("carol", testChat, newRecorder())
	assert.ErrorIs(t, err, utils.ErrNotParticipant)

	_, err = opener.Open("alice", "bob_alice", newRecorder())
	assert.ErrorIs(t, err, utils.ErrInvalidChatID)
}

func TestSessionInitialLoad(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("b", 20), msg("a", 10))}
	s, rec := open(t, repo, nil)

	msgs := rec.next(t, EventMessages)
	assert.Equal(t, []string{"a", "b"}, ids(msgs.Messages))
	assert.Nil(t, msgs.Anchor)

	loaded := rec.next(t, EventLoaded)
	assert.False(t, loaded.Empty)
	assert.Equal(t, testChat, loaded.ChatID)
	rec.next(t, EventScrollToBottom)

	snap := snapshot(t, s)
	assert.Equal(t, LoadReady, snap.State)
	assert.Equal(t, Bound{TS: 10, Valid: true}, snap.Watermarks.Earliest)
	assert.Equal(t, Bound{TS: 20, Valid: true}, snap.Watermarks.Latest)

	require.Len(t, repo.appendSubs(), 1)
	assert.Equal(t, int64(20), repo.appendSubs()[0].from)
	require.Len(t, repo.changeSubs(), 1)
	assert.Equal(t, int64(10), repo.changeSubs()[0].from)

	require.Eventually(t, func() bool { return len(repo.markCalls()) == 1 }, waitFor, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, repo.markCalls()[0])
}

func TestSessionLoadFailureThenReload(t *testing.T) {
	var calls atomic.Int32
	repo := &fakeRepo{latest: func(context.Context, int) ([]*entity.Message, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("unavailable")
		}
		return []*entity.Message{msg("a", 10)}, nil
	}}
	s, rec := open(t, repo, nil)

	failed := rec.next(t, EventLoadFailed)
	assert.EqualError(t, failed.Err, "unavailable")
	assert.Equal(t, LoadFailed, snapshot(t, s).State)
	assert.Empty(t, repo.appendSubs())

	s.LoadOlder(ScrollAnchor{})
	snapshot(t, s)
	assert.Empty(t, repo.beforeCalls())

	s.Reload()
	loaded := rec.next(t, EventLoaded)
	assert.False(t, loaded.Empty)
	assert.Equal(t, LoadReady, snapshot(t, s).State)
	assert.Len(t, repo.appendSubs(), 1)
}

func TestSessionEmptyConversation(t *testing.T) {
	repo := &fakeRepo{}
	s, rec := open(t, repo, nil)

	loaded := rec.next(t, EventLoaded)
	assert.True(t, loaded.Empty)

	subs := repo.appendSubs()
	require.Len(t, subs, 1)
	assert.Zero(t, subs[0].from)
	assert.Empty(t, repo.changeSubs())

	s.LoadOlder(ScrollAnchor{})
	assert.Empty(t, snapshot(t, s).Messages)
	assert.Empty(t, repo.beforeCalls())

	subs[0].push(msg("first", 5))
	got := rec.next(t, EventMessages)
	assert.Equal(t, []string{"first"}, ids(got.Messages))
	rec.next(t, EventScrollToBottom)

	snap := snapshot(t, s)
	assert.Equal(t, Bound{TS: 5, Valid: true}, snap.Watermarks.Earliest)
	require.Len(t, repo.changeSubs(), 1)
	assert.Equal(t, int64(5), repo.changeSubs()[0].from)
}

func TestSessionAppendDeduplicatesAtBoundary(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10), msg("b", 20))}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	sub := repo.appendSubs()[0]
	sub.push(msg("b", 20))
	sub.push(msg("c", 30))
	sub.push(msg("c", 30))

	snap := snapshot(t, s)
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap.Messages))
	assert.Equal(t, int64(30), snap.Watermarks.Latest.TS)
}

func TestSessionAppendOutOfOrderArrivals(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10), msg("b", 20))}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	sub := repo.appendSubs()[0]
	sub.push(msg("d", 30))
	rec.next(t, EventMessages)

	sub.push(msg("c", 25))
	got := rec.next(t, EventMessages)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(got.Messages))

	snap := snapshot(t, s)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(snap.Messages))
	assert.Equal(t, int64(30), snap.Watermarks.Latest.TS)
	assert.Equal(t, int64(10), snap.Watermarks.Earliest.TS)
}

func TestSessionAppendIgnoresOtherConversations(t *testing.T) {
	foreign := msg("x", 50)
	foreign.ChatID = "bob_carol"

	repo := &fakeRepo{latest: page(msg("a", 10), foreign)}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	repo.appendSubs()[0].push(foreign)

	snap := snapshot(t, s)
	assert.Equal(t, []string{"a"}, ids(snap.Messages))
	assert.Equal(t, int64(10), snap.Watermarks.Latest.TS)
}

func TestSessionLoadOlderKeepsAnchor(t *testing.T) {
	repo := &fakeRepo{
		latest: page(msg("c", 30), msg("d", 40)),
		before: func(_ context.Context, before int64, limit int) ([]*entity.Message, error) {
			return []*entity.Message{msg("a", 10), msg("b", 20)}, nil
		},
	}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)
	firstUpdates := repo.changeSubs()[0]

	anchor := ScrollAnchor{ScrollTop: 0, ScrollHeight: 900}
	s.LoadOlder(anchor)

	got := rec.next(t, EventMessages)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(got.Messages))
	require.NotNil(t, got.Anchor)
	assert.Equal(t, anchor, *got.Anchor)

	assert.Equal(t, []int64{30}, repo.beforeCalls())

	snap := snapshot(t, s)
	assert.Equal(t, int64(10), snap.Watermarks.Earliest.TS)
	assert.False(t, snap.Paging)

	subs := repo.changeSubs()
	require.Len(t, subs, 2)
	assert.True(t, firstUpdates.disposed.Load())
	assert.Equal(t, int64(10), subs[1].from)
}

func TestSessionLoadOlderIsSingleFlight(t *testing.T) {
	release := make(chan struct{})
	repo := &fakeRepo{
		latest: page(msg("c", 30)),
		before: func(ctx context.Context, before int64, limit int) ([]*entity.Message, error) {
			<-release
			return []*entity.Message{msg("b", 20)}, nil
		},
	}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	s.LoadOlder(ScrollAnchor{})
	s.LoadOlder(ScrollAnchor{})
	s.LoadOlder(ScrollAnchor{})

	assert.True(t, snapshot(t, s).Paging)
	require.Eventually(t, func() bool { return len(repo.beforeCalls()) == 1 }, waitFor, 10*time.Millisecond)

	close(release)
	rec.next(t, EventMessages)
	assert.False(t, snapshot(t, s).Paging)
}

func TestSessionHistoryExhausted(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10))}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)
	updates := repo.changeSubs()[0]

	s.LoadOlder(ScrollAnchor{})
	rec.next(t, EventHistoryExhausted)

	s.LoadOlder(ScrollAnchor{})
	snap := snapshot(t, s)
	assert.True(t, snap.Watermarks.Exhausted)
	assert.Len(t, repo.beforeCalls(), 1)

	// The update listener survives exhaustion and still covers the oldest message.
	assert.False(t, updates.disposed.Load())
	read := msg("a", 10)
	read.Status["alice"] = entity.StatusRead
	updates.push(read)

	snap = snapshot(t, s)
	assert.Equal(t, entity.StatusRead, snap.Messages[0].Status["alice"])
}

func TestSessionPageFailureAllowsRetry(t *testing.T) {
	var calls atomic.Int32
	repo := &fakeRepo{
		latest: page(msg("b", 20)),
		before: func(context.Context, int64, int) ([]*entity.Message, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("timeout")
			}
			return []*entity.Message{msg("a", 10)}, nil
		},
	}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	s.LoadOlder(ScrollAnchor{})
	rec.next(t, EventPageFailed)
	assert.Equal(t, []string{"b"}, ids(snapshot(t, s).Messages))

	s.LoadOlder(ScrollAnchor{})
	got := rec.next(t, EventMessages)
	assert.Equal(t, []string{"a", "b"}, ids(got.Messages))
}

func TestSessionUpdatesPatchOnlyKnownMessages(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10), msg("b", 20))}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)
	updates := repo.changeSubs()[0]

	read := msg("a", 10)
	read.Status["alice"] = entity.StatusRead
	updates.push(read)
	updates.push(msg("unknown", 15))

	snap := snapshot(t, s)
	assert.Equal(t, []string{"a", "b"}, ids(snap.Messages))
	assert.Equal(t, entity.StatusRead, snap.Messages[0].Status["alice"])
}

func TestSessionUpdateReplayOfCurrentStateIsQuiet(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10), msg("b", 20))}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)
	snapshot(t, s)
	rec.drain()

	updates := repo.changeSubs()[0]
	updates.push(msg("a", 10))
	updates.push(msg("b", 20))
	snapshot(t, s)

	for _, e := range rec.drain() {
		assert.NotEqual(t, EventMessages, e.Type)
	}
}

func TestSessionIgnoresStaleUpdateSubscription(t *testing.T) {
	repo := &fakeRepo{
		latest: page(msg("b", 20)),
		before: func(context.Context, int64, int) ([]*entity.Message, error) {
			return []*entity.Message{msg("a", 10)}, nil
		},
	}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)
	stale := repo.changeSubs()[0]

	s.LoadOlder(ScrollAnchor{})
	rec.next(t, EventMessages)
	require.Len(t, repo.changeSubs(), 2)

	edited := msg("b", 20)
	edited.Text = "from a disposed listener"
	stale.push(edited)

	snap := snapshot(t, s)
	assert.Equal(t, "hi b", snap.Messages[1].Text)

	repo.changeSubs()[1].push(edited)
	snap = snapshot(t, s)
	assert.Equal(t, "from a disposed listener", snap.Messages[1].Text)
}

func TestSessionSend(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{})}
	s, rec := open(t, &fakeRepo{}, sender)
	rec.next(t, EventLoaded)

	assert.ErrorIs(t, s.Send("   ", ""), entity.ErrEmptyMessage)
	assert.Zero(t, sender.count())

	require.NoError(t, s.Send(" hello ", ""))
	assert.ErrorIs(t, s.Send("again", ""), ErrSendInFlight)

	close(sender.gate)
	sent := rec.next(t, EventSent)
	assert.Equal(t, "sent-1", sent.MessageID)
	assert.True(t, sent.ClearInput)
	rec.next(t, EventScrollToBottom)

	require.NoError(t, s.Send("", "https://cdn.example.com/cat.png"))
	sent = rec.next(t, EventSent)
	assert.False(t, sent.ClearInput)

	require.Equal(t, 2, sender.count())
	assert.Equal(t, "hello", sender.calls[0].Text)
	assert.Equal(t, testChat, sender.calls[0].ChatID)
}

func TestSessionSendRejectsInvalidInput(t *testing.T) {
	sender := &fakeSender{}
	s, rec := open(t, &fakeRepo{}, sender)
	rec.next(t, EventLoaded)

	assert.ErrorIs(t, s.Send("", "javascript:alert(1)"), entity.ErrInvalidImage)
	assert.ErrorIs(t, s.Send("look", "data:text/html,hi"), entity.ErrInvalidImage)
	assert.ErrorIs(t, s.Send("", "ftp://x/y.gif"), entity.ErrInvalidImage)
	assert.ErrorIs(t, s.Send(strings.Repeat("a", entity.MaxTextLength+1), ""), entity.ErrTextTooLong)
	assert.Zero(t, sender.count())

	require.NoError(t, s.Send("hello", ""))
	rec.next(t, EventSent)
}

func TestSessionSendFailureEchoesInput(t *testing.T) {
	sender := &fakeSender{err: errors.New("permission denied")}
	s, rec := open(t, &fakeRepo{}, sender)
	rec.next(t, EventLoaded)

	require.NoError(t, s.Send("hello", ""))
	failed := rec.next(t, EventSendFailed)
	assert.Equal(t, "hello", failed.Text)
	assert.EqualError(t, failed.Err, "permission denied")

	require.NoError(t, s.Send("hello", ""))
	rec.next(t, EventSendFailed)
}

func TestSessionReceiptFailureIsRetried(t *testing.T) {
	repo := &fakeRepo{
		latest:   page(msg("a", 10)),
		markErrs: []error{errors.New("offline")},
	}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	require.Eventually(t, func() bool { return len(repo.markCalls()) == 1 }, waitFor, 10*time.Millisecond)
	// Let the release land on the loop before the next change.
	require.Eventually(t, func() bool {
		return snapshot(t, s).UnackedReceipts == 0
	}, waitFor, 10*time.Millisecond)

	repo.appendSubs()[0].push(msg("b", 20))
	require.Eventually(t, func() bool { return len(repo.markCalls()) == 2 }, waitFor, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, repo.markCalls()[1])
}

func TestSessionMarksEachMessageOnce(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10))}
	s, rec := open(t, repo, nil)
	rec.next(t, EventLoaded)

	updates := repo.changeSubs()[0]
	edited := msg("a", 10)
	edited.Text = "edited"
	updates.push(edited)
	snapshot(t, s)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, repo.markCalls(), 1)
}

func TestSessionCloseDetachesListeners(t *testing.T) {
	repo := &fakeRepo{latest: page(msg("a", 10))}
	rec := newRecorder()
	s, err := NewOpener(repo, &fakeSender{}, Options{}).Open("alice", testChat, rec)
	require.NoError(t, err)
	rec.next(t, EventLoaded)

	appendSub, updateSub := repo.appendSubs()[0], repo.changeSubs()[0]
	s.Close()
	s.Close()

	assert.True(t, appendSub.disposed.Load())
	assert.True(t, updateSub.disposed.Load())

	rec.drain()
	appendSub.push(msg("late", 99))
	updateSub.push(msg("a", 10))
	assert.Empty(t, rec.drain())

	_, err = s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Send("hi", ""), ErrSessionClosed)
}

func TestSessionCloseDiscardsInFlightLoad(t *testing.T) {
	release := make(chan struct{})
	repo := &fakeRepo{latest: func(ctx context.Context, limit int) ([]*entity.Message, error) {
		<-release
		return []*entity.Message{msg("a", 10)}, nil
	}}
	rec := newRecorder()
	s, err := NewOpener(repo, &fakeSender{}, Options{}).Open("alice", testChat, rec)
	require.NoError(t, err)

	s.Close()
	close(release)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.drain())
	assert.Empty(t, repo.appendSubs())
}
