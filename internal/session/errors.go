package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected PublishOnce called outside the Connected state
	ErrNotConnected = errors.New("session is not connected")
	// ErrAlreadyStarted Connect called twice on the same session
	ErrAlreadyStarted = errors.New("session already started")
)

// ConnectError device could not reach the ingestion endpoint
type ConnectError struct {
	DeviceID string
	Location string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.DeviceID, e.Location, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// PublishError one reading was not delivered
type PublishError struct {
	DeviceID string
	Location string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.DeviceID, e.Location, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// DisconnectError teardown of one device failed
type DisconnectError struct {
	DeviceID string
	Location string
	Err      error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnect %s (%s): %v", e.DeviceID, e.Location, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }
