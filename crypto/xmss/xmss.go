// Package xmss defines the signing oracle contract used by block and
// attestation envelopes. The actual XMSS hash-based signature scheme is an
// external collaborator: this package only pins the shape callers rely on
// (52-byte public key, 3112-byte signature, epoch-bound sign/verify) so the
// rest of the module can be written against a stable interface without
// depending on a concrete XMSS implementation.
package xmss

import "github.com/geanlabs/gean/types"

// Verifier checks a signature produced over msg at the given epoch.
// Epoch is the block slot for block signatures, the attestation slot for
// attestation signatures.
type Verifier interface {
	Verify(pk types.Pubkey, epoch uint64, msg types.Root, sig types.Signature) bool
}

// Signer produces a signature over msg at the given epoch using sk.
type Signer interface {
	Sign(sk []byte, epoch uint64, msg types.Root) (types.Signature, error)
}

// NoopVerifier always reports signatures as valid. It stands in for the real
// XMSS verification oracle in configurations where key management hasn't
// been wired up yet (devnets without slashing, unit tests); production
// deployments must supply a Verifier backed by the real scheme.
type NoopVerifier struct{}

func (NoopVerifier) Verify(types.Pubkey, uint64, types.Root, types.Signature) bool { return true }

var _ Verifier = NoopVerifier{}
