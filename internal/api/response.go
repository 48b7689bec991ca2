// Package api implements the HTTP surface: the middleware chain, response
// shaping and every versioned endpoint.
package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Response is what every handler returns. Body is buffered so the writer
// can derive an ETag; Stream bypasses buffering for large artifacts and
// must come with its own ETag when one is wanted.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	Stream  io.ReadCloser
}

// Header sets a response header and returns the response for chaining.
func (r *Response) Header(key, value string) *Response {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	r.Headers.Set(key, value)
	return r
}

// JSON builds an application/json response from v.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		// Marshal of handler-built maps only fails on programmer error.
		panic(fmt.Errorf("encode response: %w", err))
	}
	resp := &Response{Status: status, Body: body}
	return resp.Header("Content-Type", "application/json")
}

// Text builds a text/plain response.
func Text(status int, body string) *Response {
	resp := &Response{Status: status, Body: []byte(body)}
	return resp.Header("Content-Type", "text/plain; charset=utf-8")
}

// Error is the distinguished error kind rendered verbatim at the API
// boundary. Any other error value is logged, reported and rendered as an
// internal server error.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// NewError builds a display error with an explicit status.
func NewError(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// BadRequest marks validation failures and malformed input.
func BadRequest(format string, args ...any) *Error {
	return NewError(http.StatusBadRequest, format, args...)
}

// Unauthorized marks missing or invalid credentials.
func Unauthorized(format string, args ...any) *Error {
	return NewError(http.StatusUnauthorized, format, args...)
}

// Forbidden marks authenticated callers lacking ownership.
func Forbidden(format string, args ...any) *Error {
	return NewError(http.StatusForbidden, format, args...)
}

// NotFound marks absent entities.
func NotFound(format string, args ...any) *Error {
	return NewError(http.StatusNotFound, format, args...)
}

// Conflict marks uniqueness violations and exceeded quotas.
func Conflict(format string, args ...any) *Error {
	return NewError(http.StatusConflict, format, args...)
}

// TooLarge marks bulk payloads over the accepted size.
func TooLarge(format string, args ...any) *Error {
	return NewError(http.StatusRequestEntityTooLarge, format, args...)
}

// errorBody is the error envelope every failed API call renders.
func errorBody(messages ...string) map[string]any {
	return map[string]any{"success": false, "errors": messages}
}

// writeResponse applies the post-processing contract and writes resp:
// plain-text 4xx bodies (except 404) are coerced into the JSON error
// envelope, and buffered bodies without an ETag get one derived from their
// content, honoring If-None-Match with a 304.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *Response) {
	headers := w.Header()
	for key, values := range resp.Headers {
		for _, value := range values {
			headers.Add(key, value)
		}
	}

	if resp.Stream != nil {
		defer resp.Stream.Close()
		w.WriteHeader(resp.Status)
		if r.Method != http.MethodHead {
			io.Copy(w, resp.Stream)
		}
		return
	}

	contentType := headers.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/plain") &&
		resp.Status >= 400 && resp.Status < 500 && resp.Status != http.StatusNotFound {
		body, err := json.Marshal(errorBody(string(resp.Body)))
		if err == nil {
			resp.Body = body
			headers.Set("Content-Type", "application/json")
		}
	}

	if headers.Get("ETag") == "" {
		sum := sha256.Sum256(resp.Body)
		etag := hex.EncodeToString(sum[:])
		headers.Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else if match := r.Header.Get("If-None-Match"); match != "" && match == headers.Get("ETag") {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if headers.Get("Content-Length") == "" {
		headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		w.Write(resp.Body)
	}
}
