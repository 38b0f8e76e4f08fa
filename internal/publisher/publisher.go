package publisher

import (
	"context"
	"errors"
)

// Content metadata attached to every reading
const (
	ContentTypeJSON = "application/json"
	EncodingUTF8    = "utf-8"
)

// ErrNotConnected Send or Disconnect before a successful Connect
var ErrNotConnected = errors.New("publisher is not connected")

// Message one serialized reading ready for delivery
type Message struct {
	Payload         []byte
	ContentType     string
	ContentEncoding string
	MessageID       string
	DeviceID        string
}

// Publisher delivers messages for a single device. Implementations do not
// retry; every failure is returned to the caller as-is.
type Publisher interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
	Disconnect(ctx context.Context) error
}
