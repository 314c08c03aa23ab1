package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/logger"
	"duochat/pkg/metrics"
	"duochat/pkg/utils"
)

var (
	ErrSessionClosed = errors.New("conversation session is closed")
	ErrSendInFlight  = errors.New("a message is already being sent")
)

// Sender persists an outgoing message and returns it as stored.
type Sender interface {
	SendMessage(ctx context.Context, uid string, in entity.OutgoingMessage) (*entity.Message, error)
}

type LoadState int

const (
	LoadPending LoadState = iota
	LoadReady
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadReady:
		return "ready"
	case LoadFailed:
		return "failed"
	default:
		return "pending"
	}
}

type Options struct {
	PageSize     int
	FetchTimeout time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = utils.DefaultPageSize
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// Opener starts sessions against one backing store.
type Opener struct {
	repo   repository.ChatRepository
	sender Sender
	opts   Options
}

func NewOpener(repo repository.ChatRepository, sender Sender, opts Options) *Opener {
	return &Opener{
		repo:   repo,
		sender: sender,
		opts:   opts.withDefaults(),
	}
}

// Open starts a session for uid on chatID and kicks off the initial load.
// Events go to sink until Close is called.
func (o *Opener) Open(uid, chatID string, sink Sink) (*Session, error) {
	peer, err := utils.PeerOf(chatID, uid)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		uid:    uid,
		peer:   peer,
		chatID: chatID,
		repo:   o.repo,
		sender: o.sender,
		opts:   o.opts,
		sink:   sink,
		log: logger.With(map[string]interface{}{
			"chat_id": chatID,
			"uid":     uid,
		}),
		ctx:    ctx,
		cancel: cancel,
		cmds:   make(chan func(), 64),
		done:   make(chan struct{}),
		store:  NewStore(chatID),
		marker: NewReceiptMarker(uid),
	}
	s.store.Subscribe(s.onStoreChanged)

	metrics.ActiveSessions.Inc()
	go s.run()
	s.post(s.load)

	return s, nil
}

// Session coordinates one open conversation: the initial page, backward
// paging, the two listeners, read receipts and sends. All state below the
// channel fields is owned by the run loop.
type Session struct {
	uid    string
	peer   string
	chatID string
	repo   repository.ChatRepository
	sender Sender
	opts   Options
	sink   Sink
	log    zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan func()
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	sending   atomic.Bool

	store      *Store
	marks      Watermarks
	marker     *ReceiptMarker
	state      LoadState
	paging     bool
	appendStop repository.Disposer
	updateStop repository.Disposer
	updateGen  uint64

	pending       []entity.Message
	pendingAnchor *ScrollAnchor
}

func (s *Session) ChatID() string { return s.chatID }

func (s *Session) PeerID() string { return s.peer }

// Snapshot is a consistent view of a session taken on its loop.
type Snapshot struct {
	ChatID     string
	State      LoadState
	Messages   []entity.Message
	Watermarks Watermarks
	Paging     bool
	// UnackedReceipts counts read receipts requested but not yet observed.
	UnackedReceipts int
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	ok := s.post(func() {
		result <- Snapshot{
			ChatID:     s.chatID,
			State:      s.state,
			Messages:   s.store.Messages(),
			Watermarks: s.marks,
			Paging:     s.paging,

			UnackedReceipts: s.marker.Pending(),
		}
	})
	if !ok {
		return Snapshot{}, ErrSessionClosed
	}

	select {
	case snap := <-result:
		return snap, nil
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Reload retries the initial load after it failed.
func (s *Session) Reload() {
	s.post(func() {
		if s.state == LoadFailed {
			s.load()
		}
	})
}

// LoadOlder fetches the page before the earliest materialized message. It is
// a no-op while another page is in flight, before the initial load finished,
// or once history is exhausted.
func (s *Session) LoadOlder(anchor ScrollAnchor) {
	s.post(func() { s.loadOlder(anchor) })
}

// Send validates the input and writes it in the background. It returns
// ErrEmptyMessage without touching the store, and ErrSendInFlight while a
// previous send has not completed.
func (s *Session) Send(text, image string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	in := entity.OutgoingMessage{
		ChatID: s.chatID,
		Text:   strings.TrimSpace(text),
		Image:  strings.TrimSpace(image),
	}
	if err := in.Validate(); err != nil {
		return err
	}

	if !s.sending.CompareAndSwap(false, true) {
		return ErrSendInFlight
	}

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
		defer cancel()

		msg, err := s.sender.SendMessage(ctx, s.uid, in)
		posted := s.post(func() {
			s.sending.Store(false)
			s.applySent(in, msg, err)
		})
		if !posted {
			s.sending.Store(false)
		}
	}()

	return nil
}

// Close detaches both listeners and stops the loop. Results that arrive
// afterwards are discarded. Close must not be called from a Sink.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		<-s.done

		if s.appendStop != nil {
			s.appendStop()
			s.appendStop = nil
		}
		if s.updateStop != nil {
			s.updateStop()
			s.updateStop = nil
		}

		metrics.ActiveSessions.Dec()
		s.log.Debug().Msg("conversation session closed")
	})
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.cmds:
			if s.closed.Load() {
				return
			}
			fn()
			s.flush()
		}
	}
}

// post queues fn for the loop. It reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	if s.closed.Load() {
		return false
	}

	select {
	case s.cmds <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) emit(e Event) {
	if s.closed.Load() {
		return
	}
	e.ChatID = s.chatID
	s.sink.Deliver(e)
}

// flush emits at most one messages event per loop turn.
func (s *Session) flush() {
	if s.pending == nil {
		return
	}
	e := Event{
		Type:     EventMessages,
		Messages: s.pending,
		Anchor:   s.pendingAnchor,
	}
	s.pending, s.pendingAnchor = nil, nil
	s.emit(e)
}

func (s *Session) onStoreChanged(msgs []entity.Message) {
	s.pending = msgs
	s.markRead(msgs)
}

func (s *Session) markRead(msgs []entity.Message) {
	ids := s.marker.Collect(msgs)
	if len(ids) == 0 {
		return
	}

	chatID := s.chatID
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
		defer cancel()

		if err := s.repo.MarkRead(ctx, chatID, s.uid, ids); err != nil {
			metrics.ReceiptWrites.WithLabelValues(metrics.OutcomeError).Inc()
			s.log.Warn().Err(err).Int("count", len(ids)).Msg("failed to mark messages read")
			s.post(func() { s.marker.Release(ids) })
			return
		}
		metrics.ReceiptWrites.WithLabelValues(metrics.OutcomeOK).Inc()
	}()
}

func (s *Session) load() {
	s.state = LoadPending
	chatID := s.chatID

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.FetchTimeout)
		defer cancel()

		msgs, err := s.repo.LatestMessages(ctx, chatID, s.opts.PageSize)
		s.post(func() { s.applyInitial(chatID, msgs, err) })
	}()
}

func (s *Session) applyInitial(chatID string, msgs []*entity.Message, err error) {
	if chatID != s.chatID {
		return
	}

	if err != nil {
		metrics.PagesLoaded.WithLabelValues("initial", metrics.OutcomeError).Inc()
		s.log.Warn().Err(err).Msg("initial page failed")
		s.state = LoadFailed
		s.emit(Event{Type: EventLoadFailed, Err: err})
		return
	}
	metrics.PagesLoaded.WithLabelValues("initial", metrics.OutcomeOK).Inc()

	owned := ownedBy(chatID, msgs)
	s.store.MergeInsert(owned)
	s.marks.Reset(owned)
	s.state = LoadReady

	s.attachAppend()
	s.attachUpdates()

	s.flush()
	s.emit(Event{Type: EventLoaded, Empty: s.store.Len() == 0})
	s.emit(Event{Type: EventScrollToBottom})
}

func (s *Session) loadOlder(anchor ScrollAnchor) {
	if s.state != LoadReady || s.paging || !s.marks.CanPage() {
		return
	}
	s.paging = true

	chatID := s.chatID
	before := s.marks.Earliest.TS

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.FetchTimeout)
		defer cancel()

		msgs, err := s.repo.MessagesBefore(ctx, chatID, before, s.opts.PageSize)
		s.post(func() { s.applyOlder(chatID, anchor, msgs, err) })
	}()
}

func (s *Session) applyOlder(chatID string, anchor ScrollAnchor, msgs []*entity.Message, err error) {
	if chatID != s.chatID {
		return
	}
	s.paging = false

	if err != nil {
		metrics.PagesLoaded.WithLabelValues("older", metrics.OutcomeError).Inc()
		s.log.Warn().Err(err).Msg("older page failed")
		s.emit(Event{Type: EventPageFailed, Err: err})
		return
	}
	metrics.PagesLoaded.WithLabelValues("older", metrics.OutcomeOK).Inc()

	owned := ownedBy(chatID, msgs)
	if len(owned) == 0 {
		s.marks.Exhaust()
		s.emit(Event{Type: EventHistoryExhausted})
		return
	}

	s.pendingAnchor = &anchor
	s.store.MergeInsert(owned)
	for _, m := range owned {
		s.marks.ExtendBack(m.Timestamp)
	}

	s.attachUpdates()
}

func (s *Session) attachAppend() {
	if s.appendStop != nil {
		s.appendStop()
	}

	chatID := s.chatID
	bound := s.marks.AppendBound()
	s.appendStop = s.repo.SubscribeAppended(s.ctx, chatID, bound, func(m *entity.Message, err error) {
		s.post(func() { s.applyAppended(chatID, bound, m, err) })
	})
}

func (s *Session) applyAppended(chatID string, bound int64, m *entity.Message, err error) {
	if chatID != s.chatID {
		return
	}

	if err != nil {
		metrics.ListenerEvents.WithLabelValues("append", metrics.OutcomeError).Inc()
		s.log.Warn().Err(err).Msg("append listener stopped")
		return
	}

	owned := ownedBy(chatID, []*entity.Message{m})
	if len(owned) == 0 || owned[0].Timestamp <= bound {
		metrics.ListenerEvents.WithLabelValues("append", metrics.OutcomeDropped).Inc()
		return
	}
	metrics.ListenerEvents.WithLabelValues("append", metrics.OutcomeApplied).Inc()

	firstMessage := !s.marks.Earliest.Valid

	s.store.MergeInsert(owned)
	s.marks.Advance(owned[0].Timestamp)

	if firstMessage {
		s.attachUpdates()
	}

	s.flush()
	s.emit(Event{Type: EventScrollToBottom})
}

// attachUpdates (re)subscribes the update listener from the current earliest
// watermark. Callbacks of earlier subscriptions are ignored from here on.
func (s *Session) attachUpdates() {
	from, ok := s.marks.UpdateBound()
	if !ok {
		return
	}

	if s.updateStop != nil {
		s.updateStop()
		s.updateStop = nil
	}

	s.updateGen++
	gen := s.updateGen
	chatID := s.chatID

	s.updateStop = s.repo.SubscribeChanged(s.ctx, chatID, from, func(m *entity.Message, err error) {
		s.post(func() { s.applyChanged(chatID, gen, m, err) })
	})
}

func (s *Session) applyChanged(chatID string, gen uint64, m *entity.Message, err error) {
	if chatID != s.chatID || gen != s.updateGen {
		metrics.ListenerEvents.WithLabelValues("update", metrics.OutcomeDropped).Inc()
		return
	}

	if err != nil {
		metrics.ListenerEvents.WithLabelValues("update", metrics.OutcomeError).Inc()
		s.log.Warn().Err(err).Msg("update listener stopped")
		return
	}

	if m == nil || !s.store.Patch(m.ID, entity.PatchFrom(m)) {
		metrics.ListenerEvents.WithLabelValues("update", metrics.OutcomeDropped).Inc()
		return
	}
	metrics.ListenerEvents.WithLabelValues("update", metrics.OutcomeApplied).Inc()
}

func (s *Session) applySent(in entity.OutgoingMessage, msg *entity.Message, err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("send failed")
		s.emit(Event{
			Type:  EventSendFailed,
			Text:  in.Text,
			Image: in.Image,
			Err:   err,
		})
		return
	}

	e := Event{Type: EventSent, ClearInput: in.Text != ""}
	if msg != nil {
		e.MessageID = msg.ID
	}
	s.emit(e)
	s.emit(Event{Type: EventScrollToBottom})
}

// ownedBy stamps chatID on messages that carry none and drops those that
// belong elsewhere.
func ownedBy(chatID string, msgs []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.ChatID == "" {
			cp := *m
			cp.ChatID = chatID
			m = &cp
		}
		if m.ChatID != chatID {
			continue
		}
		out = append(out, m)
	}
	return out
}
