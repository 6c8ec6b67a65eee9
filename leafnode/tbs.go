package leafnode

import (
	"encoding/binary"
)

// buildTBS assembles a canonical to-be-signed byte string for a leaf
// node or key package: a length-prefixed concatenation of the fields a
// real wire-format codec would encode, under the label RFC 9420 uses
// for that signature context ("LeafNodeTBS" / "KeyPackageTBS"). This
// is intentionally not a general decoder — the wire codec itself is an
// external collaborator (§6) — only enough canonicalization to make
// signature verification deterministic for tests.
func buildTBS(label string, fields ...[]byte) []byte {
	var out []byte
	out = appendVar(out, []byte(label))
	for _, f := range fields {
		out = appendVar(out, f)
	}
	return out
}

func appendVar(out, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	out = append(out, lenBuf[:]...)
	return append(out, data...)
}

func encodeCapabilities(c Capabilities) []byte {
	var out []byte
	for _, cs := range c.Ciphersuites {
		out = binary.BigEndian.AppendUint16(out, uint16(cs))
	}
	for _, v := range c.Versions {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	for _, ct := range c.CredentialTypes {
		out = binary.BigEndian.AppendUint16(out, uint16(ct))
	}
	for _, pt := range c.ProposalTypes {
		out = binary.BigEndian.AppendUint16(out, pt)
	}
	for _, et := range c.Extensions {
		out = binary.BigEndian.AppendUint16(out, uint16(et))
	}
	return out
}

func encodeExtensions(l ExtensionList) []byte {
	var out []byte
	for _, e := range l {
		out = binary.BigEndian.AppendUint16(out, uint16(e.Type))
		out = appendVar(out, e.Data)
	}
	return out
}

func encodeLifetime(l *Lifetime) []byte {
	if l == nil {
		return nil
	}
	var out []byte
	out = binary.BigEndian.AppendUint64(out, l.NotBefore)
	out = binary.BigEndian.AppendUint64(out, l.NotAfter)
	return out
}

// leafNodeTBS builds the signed content of a LeafNode. group and
// senderIndex are only present for the Update context; group alone is
// present for the Commit context; neither is present for the
// KeyPackage context.
func leafNodeTBS(leaf LeafNode, groupID []byte, senderIndex *uint32) []byte {
	var senderIndexBytes []byte
	if senderIndex != nil {
		senderIndexBytes = binary.BigEndian.AppendUint32(nil, *senderIndex)
	}
	return buildTBS("LeafNodeTBS",
		leaf.SigningIdentity.SignaturePublicKey,
		leaf.HPKEPublicKey,
		encodeCapabilities(leaf.Capabilities),
		encodeExtensions(leaf.Extensions),
		encodeLifetime(leaf.Lifetime),
		[]byte{byte(leaf.Source)},
		groupID,
		senderIndexBytes,
	)
}

// keyPackageTBS builds the signed content of a KeyPackage, binding the
// enclosed leaf node's own signature into the envelope so a key
// package cannot be re-wrapped around a different leaf.
func keyPackageTBS(kp KeyPackage) []byte {
	var versionProtocol [2]byte
	binary.BigEndian.PutUint16(versionProtocol[:], kp.ProtocolVersion)
	var suite [2]byte
	binary.BigEndian.PutUint16(suite[:], uint16(kp.CipherSuite))

	return buildTBS("KeyPackageTBS",
		versionProtocol[:],
		suite[:],
		kp.InitKey,
		leafNodeTBS(kp.LeafNode, nil, nil),
		kp.LeafNode.Signature,
		encodeExtensions(kp.Extensions),
	)
}
