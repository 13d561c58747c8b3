// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Fingerprint identifies one version of a notebook's content. It is either a
// content hash or a revision number; the two compare by their string form so
// a stored 3 equals a current "3". The zero value is "unset".
type Fingerprint struct {
	value   string
	numeric bool
	set     bool
}

// HashFingerprint returns a fingerprint holding a content hash.
func HashFingerprint(hash string) Fingerprint {
	return Fingerprint{value: hash, set: true}
}

// RevisionFingerprint returns a fingerprint holding a revision number.
func RevisionFingerprint(n int64) Fingerprint {
	return Fingerprint{value: strconv.FormatInt(n, 10), numeric: true, set: true}
}

// IsSet reports whether the fingerprint holds a value. RevisionFingerprint(0)
// is set.
func (f Fingerprint) IsSet() bool { return f.set }

// String returns the comparison form.
func (f Fingerprint) String() string { return f.value }

// Equal compares by string form.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.set == o.set && f.value == o.value
}

// MarshalJSON writes revisions as JSON numbers and hashes as strings so the
// state file stays readable by older releases.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	if f.numeric {
		return []byte(f.value), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON accepts a string or a number.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Fingerprint{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = HashFingerprint(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("fingerprint must be a string or number: %w", err)
	}
	*f = Fingerprint{value: n.String(), numeric: true, set: true}
	return nil
}
