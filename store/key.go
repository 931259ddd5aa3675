package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey is returned by NewKey if the given string is not a valid Key.
	ErrInvalidKey = errors.New("invalid store key")

	// ErrInvalidPrefix is returned by NewPrefix if the given string is not a valid Prefix.
	ErrInvalidPrefix = errors.New("invalid store prefix")
)

// Key identifies a single value in a store.
//
// A valid Key is non-empty and neither starts nor ends with "/". Path segments are separated by "/" and no
// normalisation is performed; "a//b" and "a/b" are different keys.
type Key string

// NewKey validates and returns s as a Key.
func NewKey(s string) (Key, error) {
	if !ValidKey(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	return Key(s), nil
}

// ValidKey reports whether s is a valid Key.
func ValidKey(s string) bool {
	return s != "" && !strings.HasPrefix(s, "/") && !strings.HasSuffix(s, "/")
}

// Parent returns the prefix of the directory containing the key.
//
// The parent of "a/b/c" is "a/b/" while the parent of "c" is the root prefix "".
func (k Key) Parent() Prefix {
	if i := strings.LastIndexByte(string(k), '/'); i != -1 {
		return Prefix(k[:i+1])
	}

	return Root
}

// HasPrefix reports whether the key lives somewhere under the given prefix.
func (k Key) HasPrefix(p Prefix) bool {
	return strings.HasPrefix(string(k), string(p))
}

func (k Key) String() string {
	return string(k)
}

// Prefix identifies a directory-like grouping of keys.
//
// A valid Prefix is either the empty root prefix or a string that ends with "/" and does not start with "/".
type Prefix string

// Root is the prefix of every key.
const Root Prefix = ""

// NewPrefix validates and returns s as a Prefix.
func NewPrefix(s string) (Prefix, error) {
	if !ValidPrefix(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, s)
	}

	return Prefix(s), nil
}

// ValidPrefix reports whether s is a valid Prefix.
func ValidPrefix(s string) bool {
	return s == "" || (strings.HasSuffix(s, "/") && !strings.HasPrefix(s, "/"))
}

func (p Prefix) String() string {
	return string(p)
}

// KeysPrefixes is the result of a ListDir call.
type KeysPrefixes struct {
	// Keys are the keys whose parent is exactly the listed prefix, sorted.
	Keys []Key
	// Prefixes are the immediate child prefixes of the listed prefix, sorted and de-duplicated.
	Prefixes []Prefix
}
