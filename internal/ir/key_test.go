package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStringRoundTrip(t *testing.T) {
	keys := []Key{
		{Kind: KindContent, Hash: 0xdeadbeef, Slot: 0},
		{Kind: KindPositional, Hash: ^uint64(0), Slot: 3},
		MustContentKey(NamedSite("scenario", "a")),
	}

	for _, k := range keys {
		t.Run(k.String(), func(t *testing.T) {
			parsed, err := ParseKey(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, parsed)
		})
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Kind: KindPositional, Hash: 1, Slot: 2}
	assert.Equal(t, "p:0000000000000001/2", k.String())
}

func TestParseKeyErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no kind", "00ff/0"},
		{"unknown kind", "x:00ff/0"},
		{"no slot", "c:00ff"},
		{"bad hash", "c:zz/0"},
		{"bad slot", "c:00ff/-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKey(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestKeyWithSlot(t *testing.T) {
	k := MustContentKey(testSite, "a")
	k2 := k.WithSlot(1)

	assert.Equal(t, k.Hash, k2.Hash)
	assert.NotEqual(t, k, k2)
	assert.Equal(t, uint32(0), k.Slot, "WithSlot must not mutate the receiver")
}

func TestZeroKey(t *testing.T) {
	assert.True(t, Key{}.IsZero())
	assert.False(t, RootKey.IsZero())
}

func TestNamedSiteStable(t *testing.T) {
	assert.Equal(t,
		MustContentKey(NamedSite("scenario", "total")),
		MustContentKey(NamedSite("scenario", "total")))
	assert.NotEqual(t,
		MustContentKey(NamedSite("scenario", "total")),
		MustContentKey(NamedSite("other", "total")))
}

func TestKeyJSON(t *testing.T) {
	k := Key{Kind: KindContent, Hash: 0xabc, Slot: 2}

	data, err := json.Marshal(map[string]Key{"k": k})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"c:0000000000000abc/2"}`, string(data))

	var decoded map[string]Key
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, k, decoded["k"])
}
