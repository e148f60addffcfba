package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinChat subscribes the client to a chat's events.
	CommandJoinChat CommandKind = iota
	// CommandLeaveChat unsubscribes the client from a chat.
	CommandLeaveChat
)

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	ChatID string
}
