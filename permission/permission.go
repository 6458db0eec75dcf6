// Package permission is the capability model of a delegation: a closed set of
// methods a client may invoke, each optionally scoped to a single event kind.
//
// Sets are additive. There is no way to withdraw a single capability, a grant
// is revoked by removing the whole session.
package permission

import (
	"sort"
	"strings"

	"keybunker.lol/errorf"
	"keybunker.lol/kind"
)

// Method is one of the operations a signer performs on behalf of a client.
type Method uint8

const (
	// Unknown is the zero Method, it is never authorized.
	Unknown Method = iota
	GetPublicKey
	Connect
	SignEvent
	Encrypt
	Decrypt
	Nip44Encrypt
	Nip44Decrypt
)

// Methods is every known method in declaration order.
var Methods = []Method{
	GetPublicKey,
	Connect,
	SignEvent,
	Encrypt,
	Decrypt,
	Nip44Encrypt,
	Nip44Decrypt,
}

var names = map[Method]string{
	GetPublicKey: "get_public_key",
	Connect:      "connect",
	SignEvent:    "sign_event",
	Encrypt:      "encrypt",
	Decrypt:      "decrypt",
	Nip44Encrypt: "nip44_encrypt",
	Nip44Decrypt: "nip44_decrypt",
}

// aliases are request method names that map onto a canonical method, the
// capability string is always the canonical name.
var aliases = map[string]Method{
	"nip04_encrypt": Encrypt,
	"nip04_decrypt": Decrypt,
}

var byName = func() (m map[string]Method) {
	m = make(map[string]Method, len(names)+len(aliases))
	for k, v := range names {
		m[v] = k
	}
	for k, v := range aliases {
		m[k] = v
	}
	return
}()

// String is the wire name of the method.
func (m Method) String() string {
	if n, ok := names[m]; ok {
		return n
	}
	return "unknown"
}

// ParseMethod resolves a request method name, including aliases. Unknown names
// return Unknown and false.
func ParseMethod(s string) (m Method, ok bool) {
	m, ok = byName[s]
	return
}

// Capability is the right to call Method, limited to events of Kind when
// Scoped. Only SignEvent may be scoped.
type Capability struct {
	Method Method
	Kind   kind.T
	Scoped bool
}

// Allow is an unscoped capability for method m.
func Allow(m Method) Capability { return Capability{Method: m} }

// AllowKind is the right to sign events of kind k only.
func AllowKind(k kind.T) Capability { return Capability{Method: SignEvent, Kind: k, Scoped: true} }

// String renders the capability as "method" or "sign_event:<kind>".
func (c Capability) String() string {
	if c.Scoped {
		return c.Method.String() + ":" + c.Kind.String()
	}
	return c.Method.String()
}

// Parse reads a capability string. Aliases are not accepted here, a grant must
// name the canonical method.
func Parse(s string) (c Capability, err error) {
	name, scope, scoped := strings.Cut(strings.TrimSpace(s), ":")
	var ok bool
	for m, n := range names {
		if n == name {
			c.Method, ok = m, true
			break
		}
	}
	if !ok {
		err = errorf.D("unknown permission method %q", name)
		return
	}
	if !scoped {
		return
	}
	if c.Method != SignEvent {
		err = errorf.D("permission %q cannot be scoped to a kind", s)
		return
	}
	if c.Kind, err = kind.Parse(scope); err != nil {
		err = errorf.D("invalid kind in permission %q: %w", s, err)
		return
	}
	c.Scoped = true
	return
}

// Set is a set of capabilities. The zero value is an empty set and authorizes
// nothing.
type Set map[Capability]struct{}

// NewSet builds a Set from capabilities.
func NewSet(caps ...Capability) (s Set) {
	s = make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return
}

// ParseSet reads capability strings. Empty entries are skipped so a trailing
// comma in a NIP-46 permission list is harmless.
func ParseSet[V []string | string](in V) (s Set, err error) {
	var list []string
	switch v := any(in).(type) {
	case string:
		list = strings.Split(v, ",")
	case []string:
		list = v
	}
	s = make(Set, len(list))
	for _, p := range list {
		if strings.TrimSpace(p) == "" {
			continue
		}
		var c Capability
		if c, err = Parse(p); err != nil {
			return
		}
		s[c] = struct{}{}
	}
	return
}

// Has reports membership of exactly c.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Union returns a new set with the members of both.
func (s Set) Union(o Set) (u Set) {
	u = make(Set, len(s)+len(o))
	for c := range s {
		u[c] = struct{}{}
	}
	for c := range o {
		u[c] = struct{}{}
	}
	return
}

// Clone copies the set.
func (s Set) Clone() Set { return s.Union(nil) }

// Strings renders the set sorted.
func (s Set) Strings() (out []string) {
	out = make([]string, 0, len(s))
	for c := range s {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return
}

// String renders the set as a comma separated list.
func (s Set) String() string { return strings.Join(s.Strings(), ",") }

// Authorized is the permission evaluator: true iff the bare method is granted,
// or the method is sign_event and a grant scoped to eventKind exists. A nil
// eventKind can only match the bare method.
func Authorized(s Set, m Method, eventKind *kind.T) bool {
	if m == Unknown {
		return false
	}
	if s.Has(Allow(m)) {
		return true
	}
	if m == SignEvent && eventKind != nil {
		return s.Has(AllowKind(*eventKind))
	}
	return false
}

// SignsAnything reports whether any signing right exists, bare or scoped.
func (s Set) SignsAnything() bool {
	for c := range s {
		if c.Method == SignEvent {
			return true
		}
	}
	return false
}
