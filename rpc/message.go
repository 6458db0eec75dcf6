package rpc

import (
	"encoding/json"

	"keybunker.lol/chk"
	"keybunker.lol/errorf"
)

// Request is a method call from a client. Params is method specific, either
// the NIP-46 positional array of strings or an object.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request with params encoded as JSON.
func NewRequest(id, method string, params any) (r Request, err error) {
	r = Request{ID: id, Method: method}
	if params == nil {
		return
	}
	if r.Params, err = json.Marshal(params); chk.E(err) {
		return
	}
	return
}

// Positional decodes NIP-46 style string array params. Absent params are an
// empty list.
func (r Request) Positional() (p []string, err error) {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return
	}
	if err = json.Unmarshal(r.Params, &p); err != nil {
		err = errorf.D("params of %s are not a string array: %w", r.Method, err)
		return
	}
	return
}

func (r Request) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// ErrorBody is the structured error of a Response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// Success encodes v as the result of request id.
func Success(id string, v any) (r Response, err error) {
	r.ID = id
	if r.Result, err = json.Marshal(v); chk.E(err) {
		return
	}
	return
}

// Failure builds an error response.
func Failure(id string, code int, message string) Response {
	return Response{ID: id, Error: &ErrorBody{Code: code, Message: message}}
}

// OK reports whether the response is a success.
func (r Response) OK() bool { return r.Error == nil }

// Validate checks that exactly one of Result and Error is present.
func (r Response) Validate() (err error) {
	if (len(r.Result) == 0) == (r.Error == nil) {
		err = errorf.D("response %q must carry exactly one of result or error", r.ID)
	}
	return
}
