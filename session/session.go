// Package session is the registry of delegations a signer has granted: who the
// client is, what it may do and when it was last active.
package session

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"keybunker.lol/chk"
	"keybunker.lol/kind"
	"keybunker.lol/permission"
	"keybunker.lol/timestamp"
)

// Metadata describes the client application as it introduced itself.
type Metadata struct {
	Name        string `json:"name" validate:"required"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
	Description string `json:"description,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that a name is present and the url, if any, is a URL.
func (m Metadata) Validate() error { return validate.Struct(m) }

// T is one delegation. Values handed out by a Store are copies, changing them
// has no effect on the Store.
type T struct {
	ID string
	// Pubkey is the hex x-only public key of the client.
	Pubkey      string
	Metadata    Metadata
	Permissions permission.Set
	CreatedAt   timestamp.T
	LastUsed    timestamp.T
}

// Clone deep copies the session.
func (s *T) Clone() (c *T) {
	c = &T{}
	*c = *s
	c.Permissions = s.Permissions.Clone()
	return
}

// Authorized reports whether the session grants method, for sign_event
// possibly only for events of kind k.
func (s *T) Authorized(m permission.Method, k *kind.T) bool {
	return permission.Authorized(s.Permissions, m, k)
}

type record struct {
	ID          string      `json:"id"`
	Pubkey      string      `json:"pubkey"`
	Metadata    Metadata    `json:"metadata"`
	Permissions []string    `json:"permissions"`
	CreatedAt   timestamp.T `json:"created_at"`
	LastUsed    timestamp.T `json:"last_used"`
}

// MarshalJSON renders the session with its permissions as capability strings.
func (s *T) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		ID:          s.ID,
		Pubkey:      s.Pubkey,
		Metadata:    s.Metadata,
		Permissions: s.Permissions.Strings(),
		CreatedAt:   s.CreatedAt,
		LastUsed:    s.LastUsed,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (s *T) UnmarshalJSON(b []byte) (err error) {
	var r record
	if err = json.Unmarshal(b, &r); chk.D(err) {
		return
	}
	var perms permission.Set
	if perms, err = permission.ParseSet(r.Permissions); chk.D(err) {
		return
	}
	*s = T{
		ID:          r.ID,
		Pubkey:      r.Pubkey,
		Metadata:    r.Metadata,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		LastUsed:    r.LastUsed,
	}
	return
}
