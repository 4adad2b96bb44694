package signal

// CloseReason is a terminal connection outcome. Its numeric value is
// the WebSocket close code surfaced to the client.
type CloseReason uint16

const (
	// CloseInvalidState: a well-formed command arrived in the wrong phase.
	CloseInvalidState CloseReason = 1002
	// CloseInvalidData: the payload could not be parsed.
	CloseInvalidData CloseReason = 1003
	// CloseServerError: a send/receive or broadcast-channel failure.
	CloseServerError CloseReason = 1011
	// CloseUnauthorized: unknown room or invalid token.
	CloseUnauthorized CloseReason = 4001
	// CloseKicked: the user was forcibly removed elsewhere.
	CloseKicked CloseReason = 4003
	// CloseRoomClosed: the room was deleted or its router torn down.
	CloseRoomClosed CloseReason = 4004
)

func (c CloseReason) Code() int { return int(c) }

// Error doubles as the close frame reason text.
func (c CloseReason) Error() string {
	switch c {
	case CloseInvalidState:
		return "Command executed in invalid state"
	case CloseInvalidData:
		return "Unable to parse data"
	case CloseUnauthorized:
		return "Invalid token"
	case CloseKicked:
		return "You have been kicked!"
	case CloseRoomClosed:
		return "Room has been closed"
	default:
		return "Internal Server Error"
	}
}
