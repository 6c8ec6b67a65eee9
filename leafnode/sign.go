package leafnode

import (
	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
)

// Sign computes leaf's signature over the TBS content the given
// ValidationContext implies and returns the signed copy. Callers use
// this to produce their own fresh, updated, or commit-path leaf before
// handing it to a KeyPackage, Update, or commit path message; Validator
// checks the result the same way it checks anyone else's.
func Sign(suite ciphersuite.Provider, signatureKey []byte, leaf LeafNode, vctx ValidationContext) (LeafNode, error) {
	leaf.Source = vctx.requiredSource()
	tbs, _ := tbsForContext(leaf, vctx)
	sig, err := suite.Sign(signatureKey, tbs)
	if err != nil {
		return LeafNode{}, err
	}
	leaf.Signature = sig
	return leaf, nil
}

// SignKeyPackage signs kp's enclosed leaf node under KeyPackageContext
// and then signs the KeyPackage envelope itself, binding the leaf's
// own signature into the envelope.
func SignKeyPackage(suite ciphersuite.Provider, leafSignatureKey []byte, kp KeyPackage) (KeyPackage, error) {
	signedLeaf, err := Sign(suite, leafSignatureKey, kp.LeafNode, KeyPackageContext{})
	if err != nil {
		return KeyPackage{}, err
	}
	kp.LeafNode = signedLeaf

	sig, err := suite.Sign(leafSignatureKey, keyPackageTBS(kp))
	if err != nil {
		return KeyPackage{}, err
	}
	kp.Signature = sig
	return kp, nil
}
