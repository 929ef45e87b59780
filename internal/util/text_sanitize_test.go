package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	cases := map[string]struct {
		in, want string
	}{
		"nul and controls": {"ab\x00cd\x01\x02\n\txy", "abcd\n\txy"},
		"ligatures":        {"\ufb01rst player \ufb02ips the card", "first player flips the card"},
		"soft hyphen":      {"re\u00adsources", "resources"},
		"line endings":     {"Setup\r\nPlay\rScoring", "Setup\nPlay\nScoring"},
		"blank line runs":  {"Turn order\n\n\n\n\nEnd of game", "Turn order\n\nEnd of game"},
		"no-break spaces":  {"10\u00a0VP", "10 VP"},
		"invalid utf8":     {"dice\xff roll", "dice roll"},
		"trimmed":          {"  \n rules \n ", "rules"},
		"empty":            {"", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeText(tc.in))
		})
	}
}
