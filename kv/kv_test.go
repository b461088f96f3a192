package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halcwb/LSM/kv"
)

func TestCompareByteOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "equal", a: "abc", b: "abc", want: 0},
		{name: "less", a: "abc", b: "abd", want: -1},
		{name: "greater", a: "b", b: "a", want: 1},
		{name: "prefix is smaller", a: "000", b: "00000", want: -1},
		{name: "digits compare as bytes", a: "10", b: "8", want: -1},
		{name: "empty key is smallest", a: "", b: "a", want: -1},
		{name: "high byte beats length", a: "\xff", b: "aa", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, kv.Compare(kv.Key(tt.a), kv.Key(tt.b)))
		})
	}
}

func TestClone(t *testing.T) {
	t.Parallel()

	k := kv.Key("key")
	v := kv.Value("value")

	ck := k.Clone()
	cv := v.Clone()

	k[0] = 'x'
	v[0] = 'x'

	assert.Equal(t, kv.Key("key"), ck)
	assert.Equal(t, kv.Value("value"), cv)
}
