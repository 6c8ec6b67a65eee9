package ciphersuite

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/cloudflare/circl/hpke"
)

// hpkeInfo is bound into every HPKE seal/open as RFC 9180 "info" so
// ciphertexts from unrelated contexts can never be confused for one
// another.
var hpkeInfo = []byte("nochat-mls path-secret")

// basicSuite implements Provider with X25519 (DHKEM, via CIRCL's HPKE
// implementation), Ed25519 signatures, and SHA-256 — the classical
// MLS ciphersuite MLS_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519.
// This mirrors nochat.io's own X25519/Ed25519 classical key stack in
// internal/crypto/keys.go, reused here as the group-security core's
// default suite.
type basicSuite struct {
	suite hpke.Suite
}

// NewBasic returns the classical X25519/Ed25519/SHA-256 ciphersuite
// provider.
func NewBasic() Provider {
	return &basicSuite{
		suite: hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305),
	}
}

func (b *basicSuite) Suite() ID { return MLS10_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519 }

func (b *basicSuite) KDFExtractSize() int { return sha256.Size }

func (b *basicSuite) HashSize() int { return sha256.Size }

func (b *basicSuite) Hash(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func (b *basicSuite) GenerateHPKEKeyPair() ([]byte, []byte, error) {
	kem := b.suite.KEM()
	pub, priv, err := kem.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate x25519 hpke key pair: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal hpke public key: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal hpke private key: %w", err)
	}
	return pubBytes, privBytes, nil
}

func (b *basicSuite) HPKESeal(recipientPublicKey, aad, plaintext []byte) (*HPKECiphertext, error) {
	kem := b.suite.KEM()
	pub, err := kem.Scheme().UnmarshalBinaryPublicKey(recipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("unmarshal hpke recipient public key: %w", err)
	}

	sender, err := b.suite.NewSender(pub, hpkeInfo)
	if err != nil {
		return nil, fmt.Errorf("create hpke sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("setup hpke sender: %w", err)
	}

	ct, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("hpke seal: %w", err)
	}

	return &HPKECiphertext{KEMOutput: enc, Ciphertext: ct}, nil
}

func (b *basicSuite) HPKEOpen(recipientPrivateKey, aad []byte, ct *HPKECiphertext) ([]byte, error) {
	kem := b.suite.KEM()
	priv, err := kem.Scheme().UnmarshalBinaryPrivateKey(recipientPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unmarshal hpke recipient private key: %w", err)
	}

	receiver, err := b.suite.NewReceiver(priv, hpkeInfo)
	if err != nil {
		return nil, fmt.Errorf("create hpke receiver: %w", err)
	}

	opener, err := receiver.Setup(ct.KEMOutput)
	if err != nil {
		return nil, fmt.Errorf("setup hpke receiver: %w", err)
	}

	pt, err := opener.Open(ct.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("hpke open: %w", err)
	}

	return pt, nil
}

func (b *basicSuite) GenerateSignatureKeyPair() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return pub, priv, nil
}

func (b *basicSuite) Sign(privateKey, message []byte) ([]byte, error) {
	if err := mustSize("ed25519 private key", len(privateKey), ed25519.PrivateKeySize); err != nil {
		return nil, err
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}

func (b *basicSuite) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
