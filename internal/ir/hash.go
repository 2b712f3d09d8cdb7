package ir

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Domain prefixes for key derivation.
// Version suffix enables future algorithm migration.
const (
	DomainContent    = "rxstore/content/v" + KeyVersion
	DomainPositional = "rxstore/position/v" + KeyVersion
)

// RootKey is the parent of every top-level positional key.
var RootKey = Key{Kind: KindPositional}

// hashWithDomain computes a 64-bit xxhash with domain separation.
// Format: xxhash64(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(domain)
	_, _ = d.Write([]byte{0x00})
	_, _ = d.Write(data)
	return d.Sum64()
}

// CanonicalArgs returns the canonical encoding of (site, args...) that
// ContentKey hashes. Resolvers keep these bytes to tell colliding tuples apart.
func CanonicalArgs(site CallSite, args ...any) ([]byte, error) {
	tuple := make([]any, 0, len(args)+1)
	tuple = append(tuple, site.canonical())
	tuple = append(tuple, args...)

	canonical, err := MarshalCanonical(tuple)
	if err != nil {
		return nil, fmt.Errorf("canonical args: %w", err)
	}
	return canonical, nil
}

// ContentKey computes the content-addressed key for a declaration at site
// with the given argument tuple.
//
// The key is stable across calls and process restarts given the same inputs.
// Arguments are identified by canonical value, not Go type: int(1),
// int64(1) and uint8(1) give the same key, and strings that are equal
// after NFC normalisation do too. Callers that need those distinct must
// pass a discriminator such as a type name among the args.
// Returns error if any argument cannot be canonically encoded.
func ContentKey(site CallSite, args ...any) (Key, error) {
	canonical, err := CanonicalArgs(site, args...)
	if err != nil {
		return Key{}, fmt.Errorf("ContentKey: %w", err)
	}
	return Key{Kind: KindContent, Hash: hashWithDomain(DomainContent, canonical)}, nil
}

// MustContentKey is like ContentKey but panics on error.
// Use only when argument types are known to be encodable.
func MustContentKey(site CallSite, args ...any) Key {
	k, err := ContentKey(site, args...)
	if err != nil {
		panic(err)
	}
	return k
}

// PositionalKey derives the key for the index-th activation of site beneath
// parent. The same (parent, site, index) always yields the same key.
func PositionalKey(parent Key, site CallSite, index int) Key {
	siteBytes, err := MarshalCanonical(site.canonical())
	if err != nil {
		// Call sites hold only strings and ints.
		panic(fmt.Sprintf("PositionalKey: %v", err))
	}

	buf := make([]byte, 0, len(siteBytes)+32)
	buf = binary.BigEndian.AppendUint16(buf, uint16(parent.Kind))
	buf = binary.BigEndian.AppendUint64(buf, parent.Hash)
	buf = binary.BigEndian.AppendUint32(buf, parent.Slot)
	buf = append(buf, siteBytes...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(index))

	return Key{Kind: KindPositional, Hash: hashWithDomain(DomainPositional, buf)}
}
