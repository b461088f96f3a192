package options_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halcwb/LSM/internal/options"
)

func TestApplyOptions(t *testing.T) {
	t.Parallel()

	type config struct {
		value int
		name  string
	}

	tests := []struct {
		name        string
		constructor options.OptionConstructor[config]
		callbacks   []options.OptionCallback[config]
		expected    config
	}{
		{
			name:        "nil constructor and no callbacks",
			constructor: nil,
			callbacks:   nil,
			expected:    config{},
		},
		{
			name: "constructor defaults, no callbacks",
			constructor: func() config {
				return config{value: 42, name: "default"}
			},
			expected: config{value: 42, name: "default"},
		},
		{
			name:        "nil constructor, single callback",
			constructor: nil,
			callbacks: []options.OptionCallback[config]{
				func(c *config) { c.value = 100 },
			},
			expected: config{value: 100},
		},
		{
			name: "callbacks applied in order over defaults",
			constructor: func() config {
				return config{value: 1, name: "initial"}
			},
			callbacks: []options.OptionCallback[config]{
				func(c *config) { c.value += 5 },
				func(c *config) { c.value *= 2 },
				func(c *config) { c.name = "after" },
			},
			expected: config{value: 12, name: "after"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := options.ApplyOptions(tt.constructor, tt.callbacks)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestApplyOptions_PointerValue(t *testing.T) {
	t.Parallel()

	type data struct{ x int }

	constructor := func() *data { return &data{x: 1} }
	callbacks := []options.OptionCallback[*data]{
		func(d **data) { (*d).x = 2 },
		func(d **data) { *d = &data{x: 3} },
	}

	result := options.ApplyOptions(constructor, callbacks)
	assert.Equal(t, &data{x: 3}, result)
}
