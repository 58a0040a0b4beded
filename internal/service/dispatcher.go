// internal/service/dispatcher.go
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"game-bridge/internal/handler"
	"game-bridge/internal/protocol"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// Recorder receives one observation per invoked operation.
type Recorder interface {
	ObserveOperation(name string, code protocol.Code, d time.Duration)
}

type Dispatcher struct {
	table    handler.Table[Operation]
	host     Host
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
}

func NewDispatcher(table handler.Table[Operation], host Host, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{table: table, host: host, timeout: timeout, logger: logger}
}

func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

type requestBody struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

// Resolve reads the operation name and its arguments from the request: the
// JSON body fields "method" and "args", falling back to the query
// parameters of the same names.
func (d *Dispatcher) Resolve(ctx *Context) (string, json.RawMessage, error) {
	var body requestBody
	if trimmed := bytes.TrimSpace(ctx.Body); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return "", nil, protocol.WrapError(protocol.CodeInvalidArguments, "body is not a JSON object", err)
		}
	}

	name := body.Method
	if name == "" {
		name = ctx.Query.Get("method")
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", nil, protocol.NewError(protocol.CodeInvalidArguments, "missing operation name")
	}

	args := body.Args
	if len(args) == 0 {
		if raw := ctx.Query.Get("args"); raw != "" {
			if !json.Valid([]byte(raw)) {
				return "", nil, protocol.NewError(protocol.CodeInvalidArguments, "args query parameter is not JSON")
			}
			args = json.RawMessage(raw)
		}
	}
	return name, args, nil
}

// Invoke runs the named operation with a bounded wait. It never panics; an
// operation panic becomes an InternalError.
func (d *Dispatcher) Invoke(ctx *Context, name string, args json.RawMessage, host Host) (any, error) {
	op, ok := d.table.Get(name)
	if !ok {
		d.logger.Warn("no operation for name",
			zap.String("operation", name),
			zap.String("reason", "operation_not_found"),
		)
		return nil, protocol.NewError(protocol.CodeOperationNotFound, name)
	}

	parent := ctx.Context
	if parent == nil {
		parent = context.Background()
	}
	callCtx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	ctx.Context = callCtx
	ctx.Operation = name
	ctx.Args = args

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("operation panic",
					zap.String("operation", name),
					zap.Any("reason", r),
				)
				done <- outcome{err: protocol.NewError(protocol.CodeInternal, fmt.Sprintf("operation %s failed", name))}
			}
		}()
		v, err := op.Invoke(ctx, host)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, protocol.WrapError(protocol.CodeTimeout, name, callCtx.Err())
		}
		return nil, protocol.WrapError(protocol.CodeHostUnavailable, name, callCtx.Err())
	}
}

// ServeHTTP is the dispatch route: every outcome is written as an envelope.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := &Context{
		Context:    r.Context(),
		Path:       r.URL.Path,
		Method:     r.Method,
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	}

	name, value, err := d.handle(ctx, w, r)
	if d.recorder != nil && name != "" {
		d.recorder.ObserveOperation(name, protocol.CodeOf(err), time.Since(start))
	}
	if err != nil {
		if protocol.HTTPStatus(protocol.CodeOf(err)) >= http.StatusInternalServerError {
			d.logger.Warn("operation failed",
				zap.String("operation", name),
				zap.String("reason", err.Error()),
			)
		}
		_ = protocol.WriteError(w, err)
		return
	}
	if err := protocol.WriteEnvelope(w, http.StatusOK, protocol.Success(value)); err != nil {
		d.logger.Debug("write response failed", zap.String("reason", err.Error()))
	}
}

func (d *Dispatcher) handle(ctx *Context, w http.ResponseWriter, r *http.Request) (string, any, error) {
	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return "", nil, protocol.WrapError(protocol.CodeInvalidArguments, "read body", err)
		}
		ctx.Body = body
	}

	name, args, err := d.Resolve(ctx)
	if err != nil {
		return "", nil, err
	}
	v, err := d.Invoke(ctx, name, args, d.host)
	return name, v, err
}
