package broker

import "errors"

var (
	// ErrUnderStopCondition - returns in case if Broker is under stop condition
	// and will not accept any new connections, so you should close such connection by your own.
	ErrUnderStopCondition = errors.New("broker.Broker: under stop condition")

	// ErrHandleClosed - returns on write into already closed handle.
	ErrHandleClosed = errors.New("broker.Handle: closed")
)
