package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(615) 555-0100", "+16155550100"},
		{"615.555.0100", "+16155550100"},
		{"1-615-555-0100", "+16155550100"},
		{"+1 615 555 0100", "+16155550100"},
		{"+16155550100", "+16155550100"},
		{"+447911123456", "+447911123456"},
		{"5550100", "+5550100"},
		{"", ""},
		{"anonymous", "anonymous"},
		{"  6155550100  ", "+16155550100"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	for _, in := range []string{"(615) 555-0100", "+447911123456", "12", "abc"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestAreaCode(t *testing.T) {
	ac, ok := AreaCode("+16155550100")
	assert.True(t, ok)
	assert.Equal(t, "615", ac)

	for _, in := range []string{"+447911123456", "6155550100", "+1615555010", "", "+2615555010"} {
		_, ok := AreaCode(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestIsE164(t *testing.T) {
	assert.True(t, IsE164("+16155550100"))
	assert.True(t, IsE164("+447911123456"))
	assert.False(t, IsE164("16155550100"))
	assert.False(t, IsE164("+1615abc0100"))
	assert.False(t, IsE164("+5550100"))
}

func TestIsNANP(t *testing.T) {
	assert.True(t, IsNANP("+19015550100"))
	assert.False(t, IsNANP("+447911123456"))
}
