package polish

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_StripsControlCharacters(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"a\x00b":           "ab",
		"tab\tkept":        "tab\tkept",
		"line\nkept":       "line\nkept",
		"cr\r\nkept":       "cr\r\nkept",
		"\x07bell\x1bansi": "bellansi",
		"del\x7f":          "del",
		"\x0b\x0cvt":       "vt",
		"héllo → wörld":    "héllo → wörld",
		"<b>tags</b>":      "<b>tags</b>",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	t.Parallel()

	in := "x\x01y\x02\tz\x7f"
	once := Sanitize(in)
	assert.Equal(t, once, Sanitize(once))
}

func TestSanitize_PreservesInvalidUTF8(t *testing.T) {
	t.Parallel()

	in := "ok\xff\xfe\x01end"
	assert.Equal(t, "ok\xff\xfeend", Sanitize(in))
}

func TestValidate_Limits(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()

	require.NoError(t, Validate(strings.Repeat("a", 10000), "", limits))
	require.NoError(t, Validate("x", strings.Repeat("b", 1000), limits))

	err := Validate(strings.Repeat("a", 10001), "", limits)
	require.Error(t, err)
	assert.Equal(t, KindTooLong, KindOf(err))
	assert.Equal(t, "Input too long. Maximum 10000 characters.", MessageOf(err))

	err = Validate("x", strings.Repeat("b", 1001), limits)
	require.Error(t, err)
	assert.Equal(t, "Custom instruction too long. Maximum 1000 characters.", MessageOf(err))
}

func TestValidate_CountsCodePoints(t *testing.T) {
	t.Parallel()

	// 3 code points, 9 bytes.
	require.NoError(t, Validate("日本語", "", Limits{MaxInputLength: 3}))
	require.Error(t, Validate("日本語!", "", Limits{MaxInputLength: 3}))
}
