package ciphersuite

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// hybridKeyPair is the concatenation of a classical X25519 key pair
// and a post-quantum Kyber768 key pair, marshaled as
// x25519_public(32) || kyber_public(1184) for the public half and
// x25519_private(32) || kyber_private(2400) for the private half.
// This mirrors the HybridKeyPair layout nochat.io's client-facing
// services already use in internal/crypto/pqc.go for PQXDH.
const (
	x25519PublicSize  = 32
	x25519PrivateSize = 32
)

// hybridSuite implements Provider with a hybrid X25519+Kyber768 KEM,
// Dilithium3 signatures, SHA-384, and ChaCha20-Poly1305 AEAD. It gives
// nochat.io groups the same post-quantum upgrade path its pairwise
// PQXDH sessions already have (internal/crypto/pqc.go), applied to
// MLS's per-parent HPKE public keys instead of one-time prekeys.
type hybridSuite struct{}

// NewHybridPQ returns the post-quantum hybrid ciphersuite provider.
func NewHybridPQ() Provider {
	return &hybridSuite{}
}

func (h *hybridSuite) Suite() ID { return NochatHybridPQ }

func (h *hybridSuite) KDFExtractSize() int { return sha512.Size384 }

func (h *hybridSuite) HashSize() int { return sha512.Size384 }

func (h *hybridSuite) Hash(data []byte) []byte {
	sum := sha512.Sum384(data)
	return sum[:]
}

func (h *hybridSuite) GenerateHPKEKeyPair() ([]byte, []byte, error) {
	var ecPriv [x25519PrivateSize]byte
	if _, err := io.ReadFull(rand.Reader, ecPriv[:]); err != nil {
		return nil, nil, fmt.Errorf("generate x25519 component: %w", err)
	}
	ecPriv[0] &= 248
	ecPriv[31] &= 127
	ecPriv[31] |= 64

	ecPub, err := curve25519.X25519(ecPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive x25519 public component: %w", err)
	}

	pqPub, pqPriv, err := kyber768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate kyber768 component: %w", err)
	}

	pqPubBytes := make([]byte, kyber768.PublicKeySize)
	pqPrivBytes := make([]byte, kyber768.PrivateKeySize)
	pqPub.Pack(pqPubBytes)
	pqPriv.Pack(pqPrivBytes)

	public := append(append([]byte{}, ecPub...), pqPubBytes...)
	private := append(append([]byte{}, ecPriv[:]...), pqPrivBytes...)
	return public, private, nil
}

func splitPublic(key []byte) (ecPub, pqPub []byte, err error) {
	want := x25519PublicSize + kyber768.PublicKeySize
	if len(key) != want {
		return nil, nil, fmt.Errorf("hybrid public key: invalid size: expected %d, got %d", want, len(key))
	}
	return key[:x25519PublicSize], key[x25519PublicSize:], nil
}

func splitPrivate(key []byte) (ecPriv, pqPriv []byte, err error) {
	want := x25519PrivateSize + kyber768.PrivateKeySize
	if len(key) != want {
		return nil, nil, fmt.Errorf("hybrid private key: invalid size: expected %d, got %d", want, len(key))
	}
	return key[:x25519PrivateSize], key[x25519PrivateSize:], nil
}

// combine derives a 32-byte ChaCha20-Poly1305 key from the classical
// and post-quantum shared secrets via HKDF-SHA384, so a break of
// either component alone does not recover the session key.
func combine(ecSecret, pqSecret, salt []byte) ([]byte, error) {
	kdf := hkdf.New(sha512.New384, append(append([]byte{}, ecSecret...), pqSecret...), salt, []byte("nochat-mls hybrid path-secret"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("hkdf expand hybrid key: %w", err)
	}
	return key, nil
}

func (h *hybridSuite) HPKESeal(recipientPublicKey, aad, plaintext []byte) (*HPKECiphertext, error) {
	ecRecipientPub, pqRecipientPub, err := splitPublic(recipientPublicKey)
	if err != nil {
		return nil, err
	}

	var ephPriv [x25519PrivateSize]byte
	if _, err := io.ReadFull(rand.Reader, ephPriv[:]); err != nil {
		return nil, fmt.Errorf("generate ephemeral x25519 key: %w", err)
	}
	ephPriv[0] &= 248
	ephPriv[31] &= 127
	ephPriv[31] |= 64

	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive ephemeral x25519 public key: %w", err)
	}

	ecSecret, err := curve25519.X25519(ephPriv[:], ecRecipientPub)
	if err != nil {
		return nil, fmt.Errorf("x25519 dh: %w", err)
	}

	var pqPub kyber768.PublicKey
	pqPub.Unpack(pqRecipientPub)

	kemCiphertext := make([]byte, kyber768.CiphertextSize)
	pqSecret := make([]byte, kyber768.SharedKeySize)
	pqPub.EncapsulateTo(kemCiphertext, pqSecret, nil)

	key, err := combine(ecSecret, pqSecret, append(append([]byte{}, ephPub...), kemCiphertext...))
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("construct aead: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate aead nonce: %w", err)
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, aad)

	kemOutput := append(append([]byte{}, ephPub...), kemCiphertext...)
	return &HPKECiphertext{KEMOutput: kemOutput, Ciphertext: ciphertext}, nil
}

func (h *hybridSuite) HPKEOpen(recipientPrivateKey, aad []byte, ct *HPKECiphertext) ([]byte, error) {
	ecPriv, pqPrivBytes, err := splitPrivate(recipientPrivateKey)
	if err != nil {
		return nil, err
	}

	if len(ct.KEMOutput) != x25519PublicSize+kyber768.CiphertextSize {
		return nil, fmt.Errorf("hybrid kem output: invalid size: expected %d, got %d", x25519PublicSize+kyber768.CiphertextSize, len(ct.KEMOutput))
	}
	ephPub := ct.KEMOutput[:x25519PublicSize]
	kemCiphertext := ct.KEMOutput[x25519PublicSize:]

	ecSecret, err := curve25519.X25519(ecPriv, ephPub)
	if err != nil {
		return nil, fmt.Errorf("x25519 dh: %w", err)
	}

	var pqPriv kyber768.PrivateKey
	pqPriv.Unpack(pqPrivBytes)
	pqSecret := make([]byte, kyber768.SharedKeySize)
	pqPriv.DecapsulateTo(pqSecret, kemCiphertext)

	key, err := combine(ecSecret, pqSecret, ct.KEMOutput)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("construct aead: %w", err)
	}

	if len(ct.Ciphertext) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ct.Ciphertext[:chacha20poly1305.NonceSize], ct.Ciphertext[chacha20poly1305.NonceSize:]

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("hybrid aead open: %w", err)
	}
	return plaintext, nil
}

func (h *hybridSuite) GenerateSignatureKeyPair() ([]byte, []byte, error) {
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate dilithium3 key pair: %w", err)
	}
	return pub.Bytes(), priv.Bytes(), nil
}

func (h *hybridSuite) Sign(privateKey, message []byte) ([]byte, error) {
	if err := mustSize("dilithium3 private key", len(privateKey), mode3.PrivateKeySize); err != nil {
		return nil, err
	}
	var priv mode3.PrivateKey
	var packed [mode3.PrivateKeySize]byte
	copy(packed[:], privateKey)
	priv.Unpack(&packed)

	signature := make([]byte, mode3.SignatureSize)
	mode3.SignTo(&priv, message, signature)
	return signature, nil
}

func (h *hybridSuite) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != mode3.PublicKeySize || len(signature) != mode3.SignatureSize {
		return false
	}
	var pub mode3.PublicKey
	var packed [mode3.PublicKeySize]byte
	copy(packed[:], publicKey)
	pub.Unpack(&packed)
	return mode3.Verify(&pub, message, signature)
}
