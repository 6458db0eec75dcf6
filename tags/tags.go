// Package tags is the list of string arrays that make up the tags field of an
// event.
package tags

import (
	"keybunker.lol/text"
)

// Tag is a single tag, a key followed by any number of values.
type Tag []string

// New creates a Tag from a key and values.
func New(key string, values ...string) Tag { return append(Tag{key}, values...) }

// Key returns the first field of the tag or an empty string.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the second field of the tag or an empty string.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Clone copies the tag.
func (t Tag) Clone() Tag { return append(Tag(nil), t...) }

// T is the tags field of an event.
type T []Tag

// Clone deep copies the tags.
func (t T) Clone() (c T) {
	if t == nil {
		return
	}
	c = make(T, len(t))
	for i := range t {
		c[i] = t[i].Clone()
	}
	return
}

// GetFirst returns the first tag with the key, or nil.
func (t T) GetFirst(key string) Tag {
	for _, tg := range t {
		if tg.Key() == key {
			return tg
		}
	}
	return nil
}

// GetAll returns every tag with the key.
func (t T) GetAll(key string) (out T) {
	for _, tg := range t {
		if tg.Key() == key {
			out = append(out, tg)
		}
	}
	return
}

// Set replaces the first tag with the same key as tg, appending it if there is
// none.
func (t T) Set(tg Tag) T {
	for i := range t {
		if t[i].Key() == tg.Key() {
			t[i] = tg
			return t
		}
	}
	return append(t, tg)
}

// Marshal appends the canonical JSON array of arrays form of the tags.
func (t T) Marshal(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tg := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, field := range tg {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = text.AppendQuote(dst, field)
		}
		dst = append(dst, ']')
	}
	return append(dst, ']')
}
