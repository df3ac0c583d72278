// Package httputil holds the JSON response helpers of the API server and a
// scripted client for testing outbound calls.
package httputil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// ErrUnscripted is returned by ScriptedClient once its queue is exhausted.
var ErrUnscripted = errors.New("httputil: no scripted response left")

// Doer sends one request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type scripted struct {
	status int
	body   string
	err    error
}

// ScriptedClient replays queued responses in order and records each request
// with its body.
type ScriptedClient struct {
	mu       sync.Mutex
	script   []scripted
	requests []*http.Request
	bodies   [][]byte
}

// NewScriptedClient returns a client with an empty queue.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{}
}

// Respond queues a response.
func (c *ScriptedClient) Respond(status int, body string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scripted{status: status, body: body})
	return c
}

// Fail queues a transport error.
func (c *ScriptedClient) Fail(err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scripted{err: err})
	return c
}

// Do implements Doer.
func (c *ScriptedClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	c.bodies = append(c.bodies, body)

	if len(c.script) == 0 {
		return nil, ErrUnscripted
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(bytes.NewBufferString(next.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

// Requests returns the number of requests seen.
func (c *ScriptedClient) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Request returns the nth recorded request and its body, or nil.
func (c *ScriptedClient) Request(n int) (*http.Request, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n >= len(c.requests) {
		return nil, nil
	}
	return c.requests[n], c.bodies[n]
}
