package deb

import (
	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/go-logr/logr"
)

type options struct {
	log     *logr.Logger
	lenient bool
	keyring openpgp.KeyRing
}

// Option configures Open and OpenDsc.
type Option func(*options)

// WithLogger overrides the logger taken from the context.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = &log }
}

// WithLenientHeaders turns a missing required control header into a log
// message instead of an error.
func WithLenientHeaders() Option {
	return func(o *options) { o.lenient = true }
}

// WithKeyring makes OpenDsc verify clearsigned documents against keyring.
// Without it signatures are only checked for structure.
func WithKeyring(keyring openpgp.KeyRing) Option {
	return func(o *options) { o.keyring = keyring }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
