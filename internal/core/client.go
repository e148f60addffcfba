package core

// Client is a connected subscriber as seen by the core layer.
// UserID is the authenticated actor; ID identifies the connection.
type Client struct {
	ID       string
	UserID   string
	Commands chan *Command
	Events   chan *Event

	chats map[string]struct{} // owned by the hub loop
	done  chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, bufferSize),
		chats:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has unregistered the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
