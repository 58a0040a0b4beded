package transport

import (
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type WSConn struct {
	conn    *websocket.Conn
	useJSON bool
	writeMu sync.Mutex
}

func NewWSConn(conn *websocket.Conn, useJSON bool) *WSConn {
	return &WSConn{
		conn:    conn,
		useJSON: useJSON,
	}
}

func (c *WSConn) ReadFrame() (*structpb.Struct, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg structpb.Struct
	switch messageType {
	case websocket.TextMessage:
		if err := protojson.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
	default:
		if err := proto.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

func (c *WSConn) WriteFrame(msg *structpb.Struct) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.useJSON {
		data, err := protojson.Marshal(msg)
		if err != nil {
			return err
		}
		return c.conn.WriteMessage(websocket.TextMessage, data)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}
