package xipology

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/miekg/dns"
	"golang.org/x/crypto/hkdf"
)

// sinkZoneSuffix is the fixed zone every derived name lives under. Its
// authoritative server need not exist: what matters is that the
// recursive resolver under test caches the (typically negative)
// resolution result for the zone.
const sinkZoneSuffix = "xipology.example.com."

// blockSize is the width of one HKDF expansion, per spec.md §4.1.
const blockSize = 32

// NameDerivator is a stateful HKDF-SHA512 chain: each NextName call
// extracts a fresh pseudorandom key from (salt, secret), advances
// salt to that key, and expands one 32-byte block into a DNS name.
// Two derivators built from the same secret produce identical
// infinite sequences of names.
type NameDerivator struct {
	salt   []byte
	secret []byte
}

// NewNameDerivator builds a derivator over secret, with the initial
// salt set to an explicit (non-nil) empty HMAC-SHA512 key. A nil salt
// would give the same result: golang.org/x/crypto/hkdf.Extract
// substitutes hash-length zero bytes for it, and HMAC zero-pads any
// key shorter than its block size, so both become the same key.
func NewNameDerivator(secret []byte) *NameDerivator {
	secretCopy := append([]byte(nil), secret...)
	return &NameDerivator{
		salt:   []byte{},
		secret: secretCopy,
	}
}

// NewDecoyDerivator seeds a second, independent derivator from one
// block drawn from primary immediately after construction, per
// spec.md §3's decoy-derivator invariant. This advances primary's
// internal state by exactly one call.
func NewDecoyDerivator(primary *NameDerivator) (*NameDerivator, error) {
	block, err := primary.nextBlock()
	if err != nil {
		return nil, err
	}
	return NewNameDerivator(block), nil
}

// nextBlock advances the HKDF chain by one step and returns the raw
// 32-byte expansion, without formatting it as a name.
func (d *NameDerivator) nextBlock() ([]byte, error) {
	prk := hkdf.Extract(sha512.New, d.secret, d.salt)

	out := make([]byte, blockSize)
	r := hkdf.Expand(sha512.New, prk, nil)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("xipology: hkdf expand: %w", err)
	}

	d.salt = prk
	return out, nil
}

// NextName produces the next DNS name in the sequence: two base64
// labels drawn from disjoint 15-byte slices of one HKDF block (byte
// 15 is discarded), joined under sinkZoneSuffix.
func (d *NameDerivator) NextName() (string, error) {
	block, err := d.nextBlock()
	if err != nil {
		return "", err
	}

	label1 := base64.StdEncoding.EncodeToString(block[0:15])
	label2 := base64.StdEncoding.EncodeToString(block[16:31])
	name := label1 + "." + label2 + "." + sinkZoneSuffix

	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("xipology: malformed name %q", name)
	}
	return name, nil
}

// reset rewinds the derivator to its initial state for secret,
// discarding any advance made by prior NextName/nextBlock calls.
func (d *NameDerivator) reset() {
	d.salt = []byte{}
}
