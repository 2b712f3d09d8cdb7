package ir

import (
	"cmp"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Kind discriminates the two ways a Key can be derived.
type Kind uint8

const (
	// KindPositional keys are derived from a position in the nested call tree.
	// Two activations from the same call path resolve to the same key.
	KindPositional Kind = iota + 1

	// KindContent keys are derived from a call site plus its arguments.
	// Repeated declarations with equal arguments resolve to the same key.
	KindContent
)

// String returns the single-letter tag used in Key.String.
func (k Kind) String() string {
	switch k {
	case KindPositional:
		return "p"
	case KindContent:
		return "c"
	default:
		return "?"
	}
}

// Key addresses one stored value.
//
// Key is a comparable value type and is used directly as a map key.
// The zero Key is invalid and never produced by ContentKey or PositionalKey.
type Key struct {
	Kind Kind
	Hash uint64

	// Slot disambiguates distinct argument tuples whose hashes collide.
	// ContentKey always returns slot 0; a resolver that tracks canonical
	// arguments may bump it.
	Slot uint32
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// CompareKeys orders keys by kind, hash, then slot.
func CompareKeys(a, b Key) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Hash, b.Hash); c != 0 {
		return c
	}
	return cmp.Compare(a.Slot, b.Slot)
}

// WithSlot returns a copy of k with the given disambiguation slot.
func (k Key) WithSlot(slot uint32) Key {
	k.Slot = slot
	return k
}

// String renders the key as "<kind>:<hash hex>/<slot>", e.g. "c:00ff00ff00ff00ff/0".
func (k Key) String() string {
	return fmt.Sprintf("%s:%016x/%d", k.Kind, k.Hash, k.Slot)
}

// MarshalText encodes the key in its String form.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a key produced by MarshalText.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	kindPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("parse key %q: missing kind separator", s)
	}

	var k Key
	switch kindPart {
	case "p":
		k.Kind = KindPositional
	case "c":
		k.Kind = KindContent
	default:
		return Key{}, fmt.Errorf("parse key %q: unknown kind %q", s, kindPart)
	}

	hashPart, slotPart, ok := strings.Cut(rest, "/")
	if !ok {
		return Key{}, fmt.Errorf("parse key %q: missing slot separator", s)
	}

	hash, err := strconv.ParseUint(hashPart, 16, 64)
	if err != nil {
		return Key{}, fmt.Errorf("parse key %q: hash: %w", s, err)
	}
	slot, err := strconv.ParseUint(slotPart, 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("parse key %q: slot: %w", s, err)
	}

	k.Hash = hash
	k.Slot = uint32(slot)
	return k, nil
}

// CallSite identifies a source position. It is the call-site half of a
// content key and the per-frame discriminator of a positional key.
type CallSite struct {
	File string
	Line int
	Func string
}

// Here returns the call site of its caller.
func Here() CallSite {
	return Caller(1)
}

// Caller returns the call site skip frames above its caller.
// Caller(0) is the function that called Caller.
func Caller(skip int) CallSite {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return CallSite{File: "unknown"}
	}
	site := CallSite{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		site.Func = fn.Name()
	}
	return site
}

// NamedSite returns a synthetic call site for declarations that do not come
// from Go source, such as atoms declared in a scenario file.
func NamedSite(namespace, name string) CallSite {
	return CallSite{File: namespace, Func: name}
}

// String renders the call site as "func (file:line)".
func (c CallSite) String() string {
	return fmt.Sprintf("%s (%s:%d)", c.Func, c.File, c.Line)
}

// canonical returns the canonical object form of the call site.
func (c CallSite) canonical() map[string]any {
	return map[string]any{
		"file": c.File,
		"line": c.Line,
		"func": c.Func,
	}
}
