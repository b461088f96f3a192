// Package options holds the generic functional-option plumbing shared by the
// configurable constructors of the module.
package options

// OptionConstructor produces the default option values.
type OptionConstructor[T any] func() T

// OptionCallback mutates one option value in place.
type OptionCallback[T any] func(*T)

// ApplyOptions builds the defaults and applies every callback in order.
func ApplyOptions[T any](constructor OptionConstructor[T], cbs []OptionCallback[T]) T {
	var opts T

	if constructor != nil {
		opts = constructor()
	}

	for _, cb := range cbs {
		cb(&opts)
	}

	return opts
}
