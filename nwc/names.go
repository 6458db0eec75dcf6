package nwc

import (
	"keybunker.lol/rpc"
)

// Methods are the text of the method field of a request and the result_type
// of its response, in a form that allows more convenient reference than using
// a map or package scoped variable.
var Methods = struct {
	Connect,
	GetPublicKey,
	SignEvent,
	Nip04Encrypt,
	Nip04Decrypt,
	Nip44Encrypt,
	Nip44Decrypt string
}{
	"connect",
	"get_public_key",
	"sign_event",
	"nip04_encrypt",
	"nip04_decrypt",
	"nip44_encrypt",
	"nip44_decrypt",
}

// Supported lists the methods advertised in the info event.
var Supported = []string{
	Methods.Connect,
	Methods.GetPublicKey,
	Methods.SignEvent,
	Methods.Nip04Encrypt,
	Methods.Nip04Decrypt,
	Methods.Nip44Encrypt,
	Methods.Nip44Decrypt,
}

// Keys are the JSON object keys of the structs used in params and results.
var Keys = struct {
	Method,
	Params,
	ResultType,
	Error,
	Result,
	Pubkey,
	Plaintext,
	Ciphertext,
	Metadata,
	Sig string
}{
	"method",
	"params",
	"result_type",
	"error",
	"result",
	"pubkey",
	"plaintext",
	"ciphertext",
	"metadata",
	"sig",
}

// Errors are the numeric codes of the error object of a response.
var Errors = struct {
	// NotConnected - This public key has no wallet connection.
	NotConnected,
	// PermissionDenied - The connection does not allow this operation.
	PermissionDenied,
	// UnknownMethod - The method is not known or is intentionally not
	// implemented.
	UnknownMethod,
	// Internal - A primitive failed or the params were invalid.
	Internal int
}{
	4001,
	4100,
	4040,
	5000,
}

// Code is the response error code of err.
func Code(err error) int {
	switch rpc.KindOf(err) {
	case rpc.SessionNotFound:
		return Errors.NotConnected
	case rpc.PermissionDenied:
		return Errors.PermissionDenied
	case rpc.ProtocolError:
		return Errors.UnknownMethod
	default:
		return Errors.Internal
	}
}
