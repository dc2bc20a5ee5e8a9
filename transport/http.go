package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DHTPath is the HTTP endpoint all DHT messages are POSTed to.
const DHTPath = "/dht"

// HTTPTransport exchanges DHT messages as JSON bodies POSTed to the peer's
// /dht endpoint.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport whose requests are bounded by
// the given timeout in addition to any context deadline the caller applies.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

// Exchange POSTs req to http://addr/dht and decodes the JSON response.
func (t *HTTPTransport) Exchange(ctx context.Context, addr string, req Message) (Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Message{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+DHTPath, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Message{}, fmt.Errorf("exchange with %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Message{}, fmt.Errorf("exchange with %s: unexpected status %d", addr, resp.StatusCode)
	}

	var out Message
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxMessageBytes)).Decode(&out); err != nil {
		return Message{}, fmt.Errorf("decode response from %s: %w", addr, err)
	}
	return out, nil
}

// Close releases idle connections held by the underlying client.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// NewHTTPHandler adapts a message Handler to an http.Handler serving POST
// requests. Undecodable bodies are answered with a 200 carrying a typed
// ERROR message, matching the rule that the protocol always answers with a
// typed response; only transport-level misuse (wrong method, oversized
// body) is rejected at the HTTP layer.
func NewHTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.ContentLength > MaxMessageBytes {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}

		var req Message
		if err := json.NewDecoder(io.LimitReader(r.Body, MaxMessageBytes)).Decode(&req); err != nil {
			writeMessage(w, ErrorMessage("malformed request body"))
			return
		}

		writeMessage(w, h(req))
	})
}

func writeMessage(w http.ResponseWriter, msg Message) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeMessage",
			"error":    err.Error(),
		}).Debug("Failed to write response")
	}
}
