package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", int64(-100), "-100"},
		{"zero", 0, "0"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"min int64", int64(-9223372036854775808), "-9223372036854775808"},
		{"max uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"int8", int8(-7), "-7"},
		{"uint16", uint16(7), "7"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []any{1, 2, 3}, "[1,2,3]"},
		{"typed slice", []string{"a", "b"}, `["a","b"]`},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)

	// 0xD800 < 0xE000, so the surrogate pair sorts first
	expected := "{\"\U00010000\":2,\"\uE000\":1}"
	assert.Equal(t, expected, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"quote", `say "hi"`, `"say \"hi\""`},
		{"backslash", `a\b`, `"a\\b"`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"control", "a\x01b", `"a\u0001b"`},
		{"line separator", "a\u2028b", "\"a\u2028b\""},
		{"literal backslash u2028", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as e + combining acute vs precomposed U+00E9
	decomposed := "e\u0301"
	precomposed := "\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(precomposed)
	require.NoError(t, err)

	assert.Equal(t, b, a)
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"nil", nil},
		{"float64", 1.5},
		{"float32", float32(1.5)},
		{"nested float", []any{1, 2.5}},
		{"float in object", map[string]any{"x": 0.1}},
		{"int map keys", map[int]string{1: "a"}},
		{"struct", struct{ A int }{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			assert.Error(t, err)
		})
	}
}

type userID string

type point struct{ X, Y int }

func (p point) CanonicalValue() any {
	return []any{p.X, p.Y}
}

func TestMarshalCanonicalNamedAndHashableTypes(t *testing.T) {
	result, err := MarshalCanonical(userID("u-1"))
	require.NoError(t, err)
	assert.Equal(t, `"u-1"`, string(result))

	result, err = MarshalCanonical(point{X: 3, Y: -4})
	require.NoError(t, err)
	assert.Equal(t, "[3,-4]", string(result))

	result, err = MarshalCanonical(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(result))
}

func TestMarshalCanonicalCallSiteAndKey(t *testing.T) {
	site := CallSite{File: "main.go", Line: 12, Func: "main.main"}
	result, err := MarshalCanonical(site)
	require.NoError(t, err)
	assert.Equal(t, `{"file":"main.go","func":"main.main","line":12}`, string(result))

	k := Key{Kind: KindContent, Hash: 0xff, Slot: 1}
	result, err = MarshalCanonical(k)
	require.NoError(t, err)
	assert.Equal(t, `"c:00000000000000ff/1"`, string(result))
}

func FuzzMarshalCanonicalIdempotent(f *testing.F) {
	f.Add("hello")
	f.Add("e\u0301")
	f.Add("\u2028")
	f.Add(`"\`)

	f.Fuzz(func(t *testing.T, s string) {
		a, err := MarshalCanonical(map[string]any{s: s})
		if err != nil {
			t.Fatal(err)
		}
		b, err := MarshalCanonical(map[string]any{s: s})
		if err != nil {
			t.Fatal(err)
		}
		if string(a) != string(b) {
			t.Fatalf("non-deterministic output: %q vs %q", a, b)
		}
	})
}
