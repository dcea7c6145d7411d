package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeHandle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"@Alice", "alice"},
		{"  @Alice  ", "alice"},
		{"@@Alice", "@alice"}, // only one leading @ is stripped
		{"alice_99", "alice_99"},
		{"MiXeD", "mixed"},
		{"Ügur", "Ügur"}, // non-ASCII untouched
		{"@", ""},
		{"   ", ""},
		{"", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NormalizeHandle(c.in), "input %q", c.in)
	}
}

func TestNormalizedOrNil(t *testing.T) {
	require.Nil(t, NormalizedOrNil(nil))

	blank := "  @ "
	require.Nil(t, NormalizedOrNil(&blank))

	raw := "@Bob"
	got := NormalizedOrNil(&raw)
	require.NotNil(t, got)
	require.Equal(t, "bob", *got)
}

func TestOwnerKeys(t *testing.T) {
	require.Equal(t, "12345", BotPlaceholder(12345))
	require.Equal(t, "9007199254740993", BotPlaceholder(9007199254740993))
}
