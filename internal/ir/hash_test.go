package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = CallSite{File: "counter.go", Line: 10, Func: "app.Counter"}

func TestContentKeyDeterminism(t *testing.T) {
	k1, err := ContentKey(testSite, "user", 42)
	require.NoError(t, err)

	k2, err := ContentKey(testSite, "user", 42)
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "ContentKey must be deterministic")
	assert.Equal(t, KindContent, k1.Kind)
	assert.Equal(t, uint32(0), k1.Slot)
	assert.False(t, k1.IsZero())
}

func TestContentKeyChangesWithInput(t *testing.T) {
	other := CallSite{File: "counter.go", Line: 11, Func: "app.Counter"}

	k1 := MustContentKey(testSite, "user", 42)
	k2 := MustContentKey(other, "user", 42)   // Different line
	k3 := MustContentKey(testSite, "user", 43) // Different arg
	k4 := MustContentKey(testSite, 42, "user") // Different order
	k5 := MustContentKey(testSite)             // No args

	assert.NotEqual(t, k1, k2, "Different call sites should produce different keys")
	assert.NotEqual(t, k1, k3, "Different args should produce different keys")
	assert.NotEqual(t, k1, k4, "Argument order is significant")
	assert.NotEqual(t, k1, k5)
}

func TestContentKeyIntWidthsAgree(t *testing.T) {
	// Canonical encoding is by value, not Go type
	assert.Equal(t, MustContentKey(testSite, 7), MustContentKey(testSite, int64(7)))
	assert.Equal(t, MustContentKey(testSite, 7), MustContentKey(testSite, uint8(7)))
}

func TestContentKeyNormalizesStrings(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	require.NotEqual(t, composed, decomposed)
	assert.Equal(t, MustContentKey(testSite, composed), MustContentKey(testSite, decomposed))

	// A discriminator keeps otherwise equal values apart.
	assert.NotEqual(t,
		MustContentKey(testSite, "int", 7),
		MustContentKey(testSite, "int64", int64(7)))
}

func TestContentKeyRejectsFloats(t *testing.T) {
	_, err := ContentKey(testSite, 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	assert.Panics(t, func() { MustContentKey(testSite, 1.5) })
}

func TestCanonicalArgsIncludesSite(t *testing.T) {
	b, err := CanonicalArgs(testSite, "x")
	require.NoError(t, err)
	assert.Equal(t, `[{"file":"counter.go","func":"app.Counter","line":10},"x"]`, string(b))
}

func TestPositionalKeyDeterminism(t *testing.T) {
	k1 := PositionalKey(RootKey, testSite, 0)
	k2 := PositionalKey(RootKey, testSite, 0)
	assert.Equal(t, k1, k2)
	assert.Equal(t, KindPositional, k1.Kind)
}

func TestPositionalKeyChangesWithPosition(t *testing.T) {
	base := PositionalKey(RootKey, testSite, 0)

	assert.NotEqual(t, base, PositionalKey(RootKey, testSite, 1), "index is significant")
	assert.NotEqual(t, base, PositionalKey(base, testSite, 0), "parent is significant")

	other := CallSite{File: "counter.go", Line: 99, Func: "app.Counter"}
	assert.NotEqual(t, base, PositionalKey(RootKey, other, 0), "site is significant")
}

func TestPositionalAndContentDomainsDiffer(t *testing.T) {
	p := PositionalKey(RootKey, testSite, 0)
	c := MustContentKey(testSite)
	assert.NotEqual(t, p, c)
}

func TestHere(t *testing.T) {
	site := Here()
	assert.True(t, strings.HasSuffix(site.File, "hash_test.go"))
	assert.Contains(t, site.Func, "TestHere")
	assert.Greater(t, site.Line, 0)
}

func TestCallerSkip(t *testing.T) {
	helper := func() CallSite { return Caller(1) }
	site := helper()
	assert.Contains(t, site.Func, "TestCallerSkip")
}
