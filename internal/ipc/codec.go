// internal/ipc/codec.go
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// maxMessageSize bounds a single envelope line. Screenshot and PDF payloads
// ride base64-encoded inside envelopes, so this must be generous.
const maxMessageSize = 256 << 20

// conn wraps a net.Conn with line-oriented envelope framing: one JSON object
// per newline-terminated message.
type conn struct {
	raw net.Conn
	r   *bufio.Reader
	max int
}

func newConn(raw net.Conn) *conn {
	return &conn{raw: raw, r: bufio.NewReaderSize(raw, 64<<10), max: maxMessageSize}
}

// WriteEnvelope marshals op+payload and writes it as a single line.
func (c *conn) WriteEnvelope(op string, payload any) error {
	raw, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %q payload: %w", op, err)
	}
	line, err := codec.Marshal(schemas.Envelope{Op: op, Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal %q envelope: %w", op, err)
	}
	line = append(line, '\n')
	if _, err := c.raw.Write(line); err != nil {
		return fmt.Errorf("failed to write %q envelope: %w", op, err)
	}
	return nil
}

// ReadEnvelope reads and unmarshals the next message. The size limit is
// enforced while reading so an oversized line never gets buffered whole.
func (c *conn) ReadEnvelope() (*schemas.Envelope, error) {
	var line []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > c.max {
			return nil, fmt.Errorf("envelope exceeds %d bytes", c.max)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return nil, err
	}
	var env schemas.Envelope
	if err := codec.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

func (c *conn) Close() error { return c.raw.Close() }

// decodePayload unmarshals an envelope payload into the given request type.
func decodePayload[T any](raw json.RawMessage) (*T, error) {
	var v T
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return &v, nil
}
