package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBlankOrComment(t *testing.T) {
	cases := map[string]bool{
		"":                 true,
		"   ":              true,
		"# a comment":      true,
		"#no-space":        true,
		"START 100 alice":  false,
		"  START 100 bob":  false,
	}
	for in, want := range cases {
		require.Equal(t, want, IsBlankOrComment(in), "input %q", in)
	}
}

func TestFieldsCollapsesWhitespace(t *testing.T) {
	require.Equal(t, []string{"START", "100", "alice"}, Fields("START   100\talice"))
}
