// internal/service/context.go
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"game-bridge/internal/protocol"
)

// Context is the per-request view handed to an operation. It lives only for
// the duration of one dispatch.
type Context struct {
	context.Context

	Path       string
	Method     string
	Header     http.Header
	Query      url.Values
	Body       []byte
	RemoteAddr string

	// 解析结果
	Operation string
	Args      json.RawMessage
}

// Bind decodes the operation arguments into v. Missing arguments leave v
// untouched.
func (c *Context) Bind(v any) error {
	if len(bytes.TrimSpace(c.Args)) == 0 || string(bytes.TrimSpace(c.Args)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(c.Args))
	if err := dec.Decode(v); err != nil {
		return protocol.WrapError(protocol.CodeInvalidArguments, "decode args", err)
	}
	return nil
}

// HasArgs reports whether the request carried any arguments.
func (c *Context) HasArgs() bool {
	trimmed := bytes.TrimSpace(c.Args)
	return len(trimmed) > 0 && string(trimmed) != "null"
}

// Arg returns one argument. Callers may pass arguments as a bare value
// (position 0 only), a positional array or an object keyed by name.
func (c *Context) Arg(index int, key string) (any, bool, error) {
	if !c.HasArgs() {
		return nil, false, nil
	}
	dec := json.NewDecoder(bytes.NewReader(c.Args))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, false, protocol.WrapError(protocol.CodeInvalidArguments, "decode args", err)
	}
	switch v := raw.(type) {
	case []any:
		if index < len(v) && v[index] != nil {
			return v[index], true, nil
		}
	case map[string]any:
		if val, ok := v[key]; ok && val != nil {
			return val, true, nil
		}
	default:
		if index == 0 {
			return v, true, nil
		}
	}
	return nil, false, nil
}

func (c *Context) StringArg(index int, key string) (string, error) {
	v, ok, err := c.Arg(index, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", protocol.NewError(protocol.CodeInvalidArguments, "missing argument "+key)
	}
	s, isString := v.(string)
	if !isString {
		return "", protocol.NewError(protocol.CodeInvalidArguments, "argument "+key+" must be a string")
	}
	return s, nil
}

// Int64Arg accepts JSON numbers and numeric strings.
func (c *Context) Int64Arg(index int, key string) (int64, bool, error) {
	v, ok, err := c.Arg(index, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	var n json.Number
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, true, protocol.NewError(protocol.CodeInvalidArguments, "argument "+key+" must be a number")
	}
	if i, err := n.Int64(); err == nil {
		return i, true, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, true, protocol.NewError(protocol.CodeInvalidArguments, "argument "+key+" must be a number")
	}
	return int64(f), true, nil
}
