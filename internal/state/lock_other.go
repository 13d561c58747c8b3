// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build !unix

package state

import "errors"

// ErrLocked means another inkbridge run holds the state directory.
var ErrLocked = errors.New("another inkbridge run holds the state directory")

// Lock is a no-op on platforms without flock; concurrent runs against the
// same state directory are unsupported there.
func Lock(dir string) (func(), error) {
	return func() {}, nil
}
