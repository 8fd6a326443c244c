package ws

// Client is one live connection as the hub sees it.
type Client interface {
	ID() string
	SendEvent(event string, payload any) error
	Close() error
}
