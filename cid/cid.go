// Package cid provides the content identifier used throughout the
// inspection protocol: a stable fingerprint of a value's serialized bytes.
package cid

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// CID is a stable fingerprint of a value's serialized form. Equal
// serialized bytes always produce an equal CID. Downstream code treats it
// opaquely and only ever compares or stringifies it.
type CID struct {
	inner gocid.Cid
}

// Of computes the CID of a byte slice: a CIDv1 over a SHA2-256 multihash.
func Of(data []byte) (CID, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return CID{}, fmt.Errorf("cid: hashing serialized bytes: %w", err)
	}
	return CID{inner: gocid.NewCidV1(gocid.Raw, digest)}, nil
}

// Parse decodes a CID from its wire string form, as produced by String.
func Parse(s string) (CID, error) {
	c, err := gocid.Decode(s)
	if err != nil {
		return CID{}, fmt.Errorf("cid: parsing %q: %w", s, err)
	}
	return CID{inner: c}, nil
}

// String returns the wire representation of the CID: a fixed-width,
// self-describing multibase string. Two CIDs with the same String() are
// the same CID.
func (c CID) String() string {
	return c.inner.String()
}

// IsZero reports whether c is the zero value (no identifier computed).
func (c CID) IsZero() bool {
	return !c.inner.Defined()
}

// Equal reports whether two CIDs identify the same serialized bytes.
func Equal(a, b CID) bool {
	return a.inner.Equals(b.inner)
}

// MarshalText implements encoding.TextMarshaler so CID can be used
// directly as a map key or struct field in JSON wire payloads.
func (c CID) MarshalText() ([]byte, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("cid: cannot marshal zero value")
	}
	return []byte(c.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
