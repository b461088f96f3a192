// Package dummy wraps another storage driver and fails selected calls with
// configured errors, for exercising error paths in tests.
package dummy

import (
	"github.com/halcwb/LSM/driver"
	"github.com/halcwb/LSM/internal/options"
)

// Options selects which driver calls fail and with what error. A nil error
// passes the call through to the wrapped driver.
type Options struct {
	CreateErr error
	OpenErr   error
	RemoveErr error
	ListErr   error
}

// Option is a function that configures failure injection.
type Option = options.OptionCallback[Options]

// WithCreateError makes Create fail.
func WithCreateError(err error) Option {
	return func(o *Options) {
		o.CreateErr = err
	}
}

// WithOpenError makes Open fail.
func WithOpenError(err error) Option {
	return func(o *Options) {
		o.OpenErr = err
	}
}

// WithRemoveError makes Remove fail.
func WithRemoveError(err error) Option {
	return func(o *Options) {
		o.RemoveErr = err
	}
}

// WithListError makes List fail.
func WithListError(err error) Option {
	return func(o *Options) {
		o.ListErr = err
	}
}

// Driver delegates to an inner driver unless a failure is configured for the
// call.
type Driver struct {
	inner driver.Driver
	opts  Options
}

// New wraps inner with the configured failures.
func New(inner driver.Driver, opts ...Option) *Driver {
	return &Driver{
		inner: inner,
		opts:  options.ApplyOptions(nil, opts),
	}
}

// Create implements driver.Driver.
func (d *Driver) Create(name string) (driver.WritableFile, error) {
	if d.opts.CreateErr != nil {
		return nil, d.opts.CreateErr
	}

	return d.inner.Create(name)
}

// Open implements driver.Driver.
func (d *Driver) Open(name string) (driver.ReadableFile, error) {
	if d.opts.OpenErr != nil {
		return nil, d.opts.OpenErr
	}

	return d.inner.Open(name)
}

// Remove implements driver.Driver.
func (d *Driver) Remove(name string) error {
	if d.opts.RemoveErr != nil {
		return d.opts.RemoveErr
	}

	return d.inner.Remove(name)
}

// List implements driver.Driver.
func (d *Driver) List() ([]string, error) {
	if d.opts.ListErr != nil {
		return nil, d.opts.ListErr
	}

	return d.inner.List()
}

var _ driver.Driver = (*Driver)(nil)
