package ipc

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- newConn(client).WriteEnvelope("echo", echoRequest{Message: "hi"})
	}()

	env, err := newConn(server).ReadEnvelope()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, "echo", env.Op)
	req, err := decodePayload[echoRequest](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "hi", req.Message)
}

func TestReadEnvelopeBoundsMessageSize(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newConn(server)
	c.max = 1 << 10

	done := make(chan struct{})
	go func() {
		defer close(done)
		// No newline: the reader must give up at its limit, not buffer it all.
		client.Write(bytes.Repeat([]byte("a"), 8<<10))
		client.Close()
	}()

	_, err := c.ReadEnvelope()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
	<-done
}
