package conversation

import "duochat/internal/domain/entity"

type EventType string

const (
	EventLoaded           EventType = "loaded"
	EventLoadFailed       EventType = "load_failed"
	EventMessages         EventType = "messages"
	EventScrollToBottom   EventType = "scroll_to_bottom"
	EventHistoryExhausted EventType = "history_exhausted"
	EventPageFailed       EventType = "page_failed"
	EventSent             EventType = "sent"
	EventSendFailed       EventType = "send_failed"
)

// Event is what a Session reports to the rendering side.
//
// EventMessages carries the full ordered list. When it was caused by a
// backward page, Anchor holds the scroll position captured before the fetch so
// the client can keep the viewport still.
type Event struct {
	Type      EventType
	ChatID    string
	Messages  []entity.Message
	Empty     bool
	Anchor    *ScrollAnchor
	MessageID string
	// ClearInput tells the client to reset its text input after a send.
	ClearInput bool
	// Text and Image echo a failed send so the client can restore its input.
	Text  string
	Image string
	Err   error
}

// Sink receives session events. Deliver is called from the session loop and
// must not block.
type Sink interface {
	Deliver(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Deliver(e Event) { f(e) }

// ScrollAnchor is the viewport geometry a client reports when it asks for
// older messages.
type ScrollAnchor struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
}

// Adjust returns the scroll offset that keeps the previously visible content
// in place once the list has grown to heightAfter.
func (a ScrollAnchor) Adjust(heightAfter float64) float64 {
	return a.ScrollTop + (heightAfter - a.ScrollHeight)
}
