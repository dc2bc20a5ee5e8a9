package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pongHandler(req Message) Message {
	if req.Type != MessageTypePing {
		return ErrorMessage("unexpected type")
	}
	return Message{Type: MessageTypePong, Sender: &NodeInfo{NodeID: "ff", Host: "127.0.0.1", Port: 1}}
}

func TestHTTPExchangeRoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(pongHandler))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	tr := NewHTTPTransport(time.Second)
	defer tr.Close()

	resp, err := tr.Exchange(context.Background(), addr, Message{Type: MessageTypePing})
	require.NoError(t, err)
	assert.Equal(t, MessageTypePong, resp.Type)
}

func TestHTTPExchangeUnreachable(t *testing.T) {
	tr := NewHTTPTransport(200 * time.Millisecond)
	defer tr.Close()

	_, err := tr.Exchange(context.Background(), "127.0.0.1:1", Message{Type: MessageTypePing})
	assert.Error(t, err, "a closed port is an error, never a hang or a panic")
}

func TestHTTPHandlerRejectsNonPOST(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(pongHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL + DHTPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPHandlerRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(pongHandler))
	defer srv.Close()

	body := bytes.Repeat([]byte("x"), MaxMessageBytes+1)
	resp, err := http.Post(srv.URL+DHTPath, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHTTPHandlerAnswersMalformedBodyWithTypedError(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(pongHandler))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	tr := NewHTTPTransport(time.Second)
	defer tr.Close()

	resp, err := http.Post(srv.URL+DHTPath, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode,
		"protocol-level garbage still gets a typed answer")

	var msg Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.NotEmpty(t, msg.Error)

	// And through the transport, a valid exchange still works afterwards.
	out, err := tr.Exchange(context.Background(), addr, Message{Type: MessageTypePing})
	require.NoError(t, err)
	assert.Equal(t, MessageTypePong, out.Type)
}

func TestHTTPExchangeContextTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)
	addr := strings.TrimPrefix(srv.URL, "http://")

	tr := NewHTTPTransport(time.Minute)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Exchange(ctx, addr, Message{Type: MessageTypePing})
	assert.Error(t, err, "a slow peer resolves to no answer once the context expires")
}
