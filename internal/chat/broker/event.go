package broker

import "fmt"

// PartReason - describes the type of parting with client (connection).
type PartReason int

const (
	_ PartReason = iota
	// PartLeft - the parting is occurred due to connection was closed by peer.
	PartLeft
	// PartTimeout - the parting is occurred due to idle read timeout.
	PartTimeout
	// PartDropped - the parting is occurred due to failed write into connection.
	PartDropped
	// PartShutdown - the parting is occurred due to broker shutdown.
	PartShutdown
)

func (r PartReason) String() string {
	switch r {
	case PartLeft:
		return "left"
	case PartTimeout:
		return "timeout"
	case PartDropped:
		return "dropped"
	case PartShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

func welcomeText(addr string) []byte {
	return []byte(fmt.Sprintf("Welcome to the chat room! Connected from %s", addr))
}

func joinText(addr string) []byte {
	return []byte(fmt.Sprintf("User from %s joined the chat", addr))
}

func partText(addr string, reason PartReason) []byte {
	if reason == PartTimeout {
		return []byte(fmt.Sprintf("User from %s timed out", addr))
	}
	return []byte(fmt.Sprintf("User from %s left the chat", addr))
}

var shutdownText = []byte("Server is shutting down, bye")
