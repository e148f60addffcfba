package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageCreated carries a newly appended message.
	EventMessageCreated EventKind = iota
	// EventSummaryUpdated carries the chat summary after an append or removal.
	EventSummaryUpdated
	// EventJoined confirms a subscription to the requesting client.
	EventJoined
	// EventLeft confirms an unsubscription to the requesting client.
	EventLeft
	// EventError notifies clients about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessageCreated:
		return "message_created"
	case EventSummaryUpdated:
		return "summary_updated"
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind  `json:"kind"`
	ChatID  string     `json:"chat_id"`
	Message *Message   `json:"message,omitempty"`
	Summary *Summary   `json:"summary,omitempty"`
	Error   *CoreError `json:"-"`

	// Origin is the instance that published the event; set by relays.
	Origin string `json:"origin,omitempty"`
}

// NewMessageCreated builds the event announcing msg.
func NewMessageCreated(msg Message) *Event {
	return &Event{Kind: EventMessageCreated, ChatID: msg.ChatID, Message: &msg}
}

// NewSummaryUpdated builds the event announcing a new summary of chatID.
func NewSummaryUpdated(chatID string, summary Summary) *Event {
	return &Event{Kind: EventSummaryUpdated, ChatID: chatID, Summary: &summary}
}
