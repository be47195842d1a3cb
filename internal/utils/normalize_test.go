package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentifier(t *testing.T) {
	cases := map[string]string{
		"abc 123":         "ABC123",
		" mscu 765432 1 ": "MSCU7654321",
		"1234-5678":       "1234-5678",
		"\tvh-9876\n":     "VH-9876",
		"":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeIdentifier(in), "input %q", in)
	}
}
