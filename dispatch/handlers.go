package dispatch

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"keybunker.lol/context"
	"keybunker.lol/encryption"
	"keybunker.lol/event"
	"keybunker.lol/keys"
	"keybunker.lol/kind"
	"keybunker.lol/permission"
	"keybunker.lol/pow"
	"keybunker.lol/rpc"
	"keybunker.lol/tags"
	"keybunker.lol/timestamp"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// unsigned is an event template as sent by a client. Every field but
// difficulty must be present, a zero value is fine.
type unsigned struct {
	Pubkey     *string     `json:"pubkey" validate:"required"`
	CreatedAt  *int64      `json:"created_at" validate:"required,min=0"`
	Kind       *int64      `json:"kind" validate:"required,min=0,max=65535"`
	Tags       *[][]string `json:"tags" validate:"required"`
	Content    *string     `json:"content" validate:"required"`
	Difficulty *int        `json:"difficulty,omitempty" validate:"omitempty,min=0,max=256"`
}

// eventJSON finds the event template in the params, either the first element
// of a NIP-46 string array or the params object itself.
func eventJSON(req rpc.Request) (b []byte, err error) {
	raw := strings.TrimSpace(string(req.Params))
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	var p []string
	if p, err = req.Positional(); err != nil {
		return
	}
	if len(p) < 1 {
		err = errors.New("sign_event takes the event as its first parameter")
		return
	}
	b = []byte(p[0])
	return
}

// lenientKind extracts the kind for the authorization check without
// validating anything else, nil when there is no readable kind.
func lenientKind(m permission.Method, req rpc.Request) *kind.T {
	if m != permission.SignEvent {
		return nil
	}
	b, err := eventJSON(req)
	if err != nil {
		return nil
	}
	var probe struct {
		Kind *uint16 `json:"kind"`
	}
	if json.Unmarshal(b, &probe) != nil || probe.Kind == nil {
		return nil
	}
	k := kind.T(*probe.Kind)
	return &k
}

func invalid(err error, format string, args ...any) error {
	e := rpc.New(rpc.InputValidation, format, args...)
	e.Err = err
	return e
}

func (d *Dispatcher) signEvent(c context.T, req rpc.Request) (ev *event.T, err error) {
	var b []byte
	if b, err = eventJSON(req); err != nil {
		err = invalid(err, "malformed sign_event params")
		return
	}
	var u unsigned
	if err = json.Unmarshal(b, &u); err != nil {
		err = invalid(err, "malformed event template")
		return
	}
	if err = validate.Struct(u); err != nil {
		err = invalid(err, "incomplete event template")
		return
	}
	ev = &event.T{
		Pubkey:    d.pubkey,
		CreatedAt: timestamp.FromUnix(*u.CreatedAt),
		Kind:      kind.New(*u.Kind),
		Tags:      make(tags.T, 0, len(*u.Tags)),
		Content:   *u.Content,
	}
	for _, t := range *u.Tags {
		ev.Tags = append(ev.Tags, tags.Tag(t).Clone())
	}
	if u.Difficulty != nil {
		if _, err = pow.Generate(c, ev, *u.Difficulty, d.budget); err != nil {
			ev, err = nil, rpc.Wrap(rpc.PrimitiveFailure, err, "proof of work")
			return
		}
	}
	if err = ev.Sign(d.signer); err != nil {
		ev, err = nil, rpc.Wrap(rpc.PrimitiveFailure, err, "signing")
		return
	}
	return
}

// crypt runs one of the encryption methods. A single parameter is the text
// and the session client is the counterparty, two parameters are the
// counterparty public key and the text.
func (d *Dispatcher) crypt(g Grant, m permission.Method, req rpc.Request) (text string, err error) {
	var p []string
	if p, err = req.Positional(); err != nil {
		err = invalid(err, "malformed %s params", req.Method)
		return
	}
	counterparty := g.Counterparty
	switch len(p) {
	case 1:
		text = p[0]
	case 2:
		counterparty, text = p[0], p[1]
	default:
		err = invalid(nil, "%s takes [text] or [pubkey, text], got %d params", req.Method, len(p))
		return
	}
	if !keys.IsValidPublicKey(counterparty) {
		err = invalid(keys.ErrKey, "'%s' is not a valid public key hex", counterparty)
		return
	}
	key, _ := keys.HexPubkeyToBytes(counterparty)
	scheme := encryption.Nip04
	if m == permission.Nip44Encrypt || m == permission.Nip44Decrypt {
		scheme = encryption.Nip44
	}
	op := scheme.Encrypt
	if m == permission.Decrypt || m == permission.Nip44Decrypt {
		op = scheme.Decrypt
	}
	if text, err = op(text, d.signer, key); err != nil {
		text, err = "", rpc.Wrap(rpc.PrimitiveFailure, err, scheme.Name()+" "+req.Method)
		return
	}
	return
}
