package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const MaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("frame too large")

func ReadFrame(r io.Reader) (*structpb.Struct, error) {
	return readFrame(r)
}

func WriteFrame(w io.Writer, msg *structpb.Struct) error {
	return writeFrame(w, msg)
}

func readFrame(reader io.Reader) (*structpb.Struct, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(reader, sizeBuf[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, err
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func writeFrame(writer io.Writer, msg *structpb.Struct) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(data)))

	if _, err := writer.Write(sizeBuf[:]); err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}

// NewMessage builds a frame from plain Go values; see structpb.NewStruct.
func NewMessage(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}

// StringField returns msg[key] when it holds a string.
func StringField(msg *structpb.Struct, key string) string {
	if msg == nil {
		return ""
	}
	v, ok := msg.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}
