// Copyright 2026 OpenLease Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/openlease/corral/lease"
)

// DefaultDomain is used when no deployment-specific signing domain is
// configured. Production deployments should set their own domain so
// signatures cannot be replayed against another instance.
const DefaultDomain = "corral/lease-proposal/v1"

// Party identifies which side of a dual-signed proposal a signature
// belongs to
type Party string

const (
	PartyLessor Party = "lessor"
	PartyLessee Party = "lessee"
)

// Signature is a detached ed25519 signature envelope over a proposal
// digest. The public key travels with the signature so the signer address
// can be derived and checked against the party named in the proposal.
type Signature struct {
	PublicKey ed25519.PublicKey
	Bytes     []byte
}

// SignerMismatchError is returned when a signature does not verify against
// the party address named inside the proposal. The failing party is
// reported so callers can surface which signature is invalid.
type SignerMismatchError struct {
	Party    Party
	Expected string
	Actual   string
}

func (e *SignerMismatchError) Error() string {
	return fmt.Sprintf(
		"%s signature mismatch: expected signer %s, got %s",
		e.Party,
		e.Expected,
		e.Actual,
	)
}

// AddressFromPublicKey derives the party address for an ed25519 public key.
// The address is the hex encoding of the trailing 20 bytes of the SHA-256
// hash of the raw key.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[len(sum)-20:])
}

// Protocol canonicalizes lease proposals into deterministic digests bound
// to a deployment signing domain and verifies dual-party signatures over
// them. The digest computation is the only bit-exact external contract of
// the engine; off-chain signer tooling must reproduce it byte for byte.
type Protocol struct {
	domain string
}

func NewProtocol(domain string) *Protocol {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Protocol{domain: domain}
}

// Domain returns the signing domain this protocol instance is bound to
func (p *Protocol) Domain() string {
	return p.domain
}

// ProposalDigest computes the canonical digest of a proposal. Nested
// structures are hashed first and their digests combined with the outer
// fields, so proposals that differ only in metadata ordering or in an
// added/removed entry produce different digests.
func (p *Protocol) ProposalDigest(prop lease.Proposal) [32]byte {
	termsDigest := termsDigest(&prop.Lease)
	h := sha256.New()
	writeBytes(h, []byte(p.domain))
	h.Write(termsDigest[:])
	writeUint64(h, uint64(prop.Deadline.Unix())) //nolint:gosec
	writeBytes(h, []byte(prop.AssetTypeTag))
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// Sign produces a signature envelope over the canonical digest of the
// proposal. It is provided for local tooling and tests; production signers
// are expected to be off-line.
func (p *Protocol) Sign(
	priv ed25519.PrivateKey,
	prop lease.Proposal,
) Signature {
	digest := p.ProposalDigest(prop)
	return Signature{
		PublicKey: priv.Public().(ed25519.PublicKey),
		Bytes:     ed25519.Sign(priv, digest[:]),
	}
}

// VerifyDual checks that the two supplied signatures were produced by the
// lessor and lessee addresses named inside the proposal, over the canonical
// digest of that exact proposal. Each party is checked independently. A
// proposal with lessor == lessee is not special-cased; the same key simply
// signs twice.
func (p *Protocol) VerifyDual(
	prop lease.Proposal,
	sigLessor Signature,
	sigLessee Signature,
) error {
	digest := p.ProposalDigest(prop)
	if err := verifyParty(PartyLessor, prop.Lease.Lessor, digest, sigLessor); err != nil {
		return err
	}
	if err := verifyParty(PartyLessee, prop.Lease.Lessee, digest, sigLessee); err != nil {
		return err
	}
	return nil
}

func verifyParty(
	party Party,
	expected string,
	digest [32]byte,
	sig Signature,
) error {
	if len(sig.PublicKey) != ed25519.PublicKeySize {
		return errors.Join(
			&SignerMismatchError{Party: party, Expected: expected},
			errors.New("invalid public key size"),
		)
	}
	actual := AddressFromPublicKey(sig.PublicKey)
	if actual != expected {
		return &SignerMismatchError{
			Party:    party,
			Expected: expected,
			Actual:   actual,
		}
	}
	if !ed25519.Verify(sig.PublicKey, digest[:], sig.Bytes) {
		return &SignerMismatchError{
			Party:    party,
			Expected: expected,
			Actual:   actual,
		}
	}
	return nil
}

// termsDigest hashes the lease terms with each field length-prefixed in
// declared order. The metadata list is reduced to a digest of per-entry
// digests so entry ordering and membership are both significant.
func termsDigest(t *lease.Terms) [32]byte {
	metaDigest := metadataDigest(t.Metadata)
	h := sha256.New()
	writeBytes(h, []byte(t.Lessor))
	writeBytes(h, []byte(t.Lessee))
	writeBytes(h, []byte(t.AssetID))
	writeBytes(h, []byte(t.PaymentAsset))
	writeUint64(h, t.RentAmount)
	writeUint64(h, t.RentPeriod)
	writeUint64(h, t.SecurityDeposit)
	writeUint64(h, uint64(t.StartTime.Unix())) //nolint:gosec
	writeUint64(h, uint64(t.EndTime.Unix()))   //nolint:gosec
	writeBytes(h, t.LegalDocHash)
	writeUint32(h, t.TermsVersion)
	h.Write(metaDigest[:])
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func metadataDigest(entries []lease.MetadataEntry) [32]byte {
	h := sha256.New()
	writeUint32(h, uint32(len(entries))) //nolint:gosec
	for _, entry := range entries {
		eh := sha256.New()
		writeBytes(eh, []byte(entry.Key))
		writeBytes(eh, []byte(entry.Value))
		h.Write(eh.Sum(nil))
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func writeBytes(h interface{ Write([]byte) (int, error) }, b []byte) {
	writeUint32(h, uint32(len(b))) //nolint:gosec
	h.Write(b)
}

func writeUint32(h interface{ Write([]byte) (int, error) }, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	h.Write(buf[:])
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
