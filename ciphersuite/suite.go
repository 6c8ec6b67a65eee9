/*
Package ciphersuite provides the cryptographic primitives consumed by
the rest of this module through the narrow Provider interface: KDF
sizing, HPKE encapsulation, signing, AEAD, and hashing. The proposal
pipeline and ratchet tree never reach for a concrete algorithm
directly — they hold a Provider and call through it, so a deployment
can swap in a hardware-backed or FIPS-certified implementation without
touching tree or proposal logic.

Two concrete providers ship here: Basic (X25519 + Ed25519 + HKDF-SHA256
+ ChaCha20-Poly1305) and HybridPQ (a post-quantum hybrid built on
Cloudflare's CIRCL library, matching the Kyber/Dilithium stack
nochat.io's client-facing services already support for PQXDH).
*/
package ciphersuite

import "fmt"

// ID is a registered MLS ciphersuite codepoint (16 bits, per RFC 9420
// §17.1). HybridPQ is not an IANA-registered codepoint; it is a
// private-use identifier nochat.io reserves for interop between its
// own clients.
type ID uint16

const (
	MLS10_128_DHKEMX25519_AES128GCM_SHA256_Ed25519 ID = 0x0001
	MLS10_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519 ID = 0x0003
	NochatHybridPQ ID = 0xF001
)

func (id ID) String() string {
	switch id {
	case MLS10_128_DHKEMX25519_AES128GCM_SHA256_Ed25519:
		return "MLS_128_DHKEMX25519_AES128GCM_SHA256_Ed25519"
	case MLS10_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519:
		return "MLS_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519"
	case NochatHybridPQ:
		return "NOCHAT_HYBRID_X25519KYBER768_CHACHA20POLY1305_SHA384_DILITHIUM3"
	default:
		return fmt.Sprintf("ciphersuite(0x%04x)", uint16(id))
	}
}

// HPKECiphertext is the result of an HPKE single-shot seal: the
// encapsulated key plus the AEAD ciphertext. Parent-node path secrets
// are distributed this way; the core tree/proposal packages treat it
// as opaque bytes produced and consumed only through a Provider.
type HPKECiphertext struct {
	KEMOutput  []byte
	Ciphertext []byte
}

// Provider is the cryptographic capability surface consumed by
// leafnode, ratchettree, proposalfilter, and group. Every method is
// local computation in the implementations shipped here, but nothing
// in this module assumes that — a Provider backed by a remote signer
// or HSM is equally valid.
type Provider interface {
	Suite() ID

	// KDFExtractSize is the output length in bytes of the
	// ciphersuite's KDF-extract step. PSK nonces and transcript
	// hashes are sized against this.
	KDFExtractSize() int

	// HashSize is the output length in bytes of the ciphersuite's
	// hash function, used for tree-hash and proposal references.
	HashSize() int

	// Hash computes the ciphersuite hash function over data.
	Hash(data []byte) []byte

	// GenerateHPKEKeyPair returns a fresh (public, private) HPKE key
	// pair for use as a leaf's init key or a parent's encryption key.
	GenerateHPKEKeyPair() (public, private []byte, err error)

	// HPKESeal encrypts plaintext to the recipient's HPKE public key
	// with the given additional authenticated data (typically a
	// group context binding).
	HPKESeal(recipientPublicKey, aad, plaintext []byte) (*HPKECiphertext, error)

	// HPKEOpen decrypts a ciphertext produced by HPKESeal using the
	// recipient's HPKE private key.
	HPKEOpen(recipientPrivateKey, aad []byte, ct *HPKECiphertext) ([]byte, error)

	// GenerateSignatureKeyPair returns a fresh (public, private)
	// signature key pair for a leaf's signing identity.
	GenerateSignatureKeyPair() (public, private []byte, err error)

	// Sign produces a signature over message under the ciphersuite's
	// signature scheme.
	Sign(privateKey, message []byte) ([]byte, error)

	// Verify checks a signature produced by Sign.
	Verify(publicKey, message, signature []byte) bool
}

// mustSize returns an error if got != want; used internally by providers to
// fail fast on malformed key material rather than produce a confusing
// downstream crypto error.
func mustSize(label string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: invalid size: expected %d, got %d", label, want, got)
	}
	return nil
}
