package transport

import "google.golang.org/protobuf/types/known/structpb"

// Conn carries native client messages. Each message is a protobuf Struct
// such as {"op":"chat","text":"hi"}.
type Conn interface {
	ReadFrame() (*structpb.Struct, error)
	WriteFrame(*structpb.Struct) error
	Close() error
}

// Stage is one step of a host connection pipeline. It returns true when it
// took ownership of conn; otherwise conn, including any peeked bytes, moves
// on to the next stage.
type Stage func(conn *BufferedConn) bool
