package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Payload is a response schema. Validate runs right after decoding so that
// malformed server data fails here instead of deep inside a store.
type Payload interface {
	Validate() error
}

// envelope is the backend's response wrapper: {data: {...}, message?: "..."}.
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Response carries envelope metadata alongside the decoded payload.
type Response struct {
	Status  int
	Message string
}

func decodeResponse(resp *http.Response, out Payload) (*Response, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &APIError{Message: "failed to read response", Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}

	var env envelope
	parseErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if parseErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	if parseErr != nil {
		return nil, &APIError{Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)}
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
			return nil, &APIError{Status: resp.StatusCode, Err: fmt.Errorf("%w: missing data", ErrMalformedResponse)}
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, &APIError{Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		}
		if err := out.Validate(); err != nil {
			return nil, &APIError{Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		}
	}

	return &Response{Status: resp.StatusCode, Message: env.Message}, nil
}
