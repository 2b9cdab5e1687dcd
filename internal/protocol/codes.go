package protocol

// Custom WebSocket close codes used by the server when it refuses or
// tears down a connection. These sit in the 4000+ application range so
// they are distinguishable from the standard codes; anything other than
// normal closure triggers the client's reconnection controller, except
// these two, which the client treats as terminal.
const (
	CloseRoomNotFound = 4004 // the requested room code does not exist
	CloseRoomShutdown = 4005 // the room was shut down by the server
)
