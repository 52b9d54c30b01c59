package models

import (
	"crypto/ecdsa"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/segmentio/encoding/json"
)

// Identity is the wallet a server signs its snapshots with.
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewIdentity parses a hex encoded secp256k1 private key, with or without
// the 0x prefix.
func NewIdentity(privateKey string) (*Identity, error) {
	privateKey = strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if len(privateKey) == 0 {
		return nil, errors.New("private key is empty")
	}

	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return nil, errors.New("parsing private key failed").Wrap(err)
	}

	return &Identity{
		privateKey: key,
		address:    strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}, nil
}

// Address returns the lower case wallet address.
func (i *Identity) Address() string {
	return i.address
}

// Sign signs the keccak256 hash of data and returns the hex encoded
// signature.
func (i *Identity) Sign(data []byte) (string, error) {
	signature, err := crypto.Sign(crypto.Keccak256Hash(data).Bytes(), i.privateKey)
	if err != nil {
		return "", errors.New("signing data failed").Wrap(err)
	}
	return hexutil.Encode(signature), nil
}

// RecoverAddress returns the lower case wallet address that produced the
// given signature of data.
func RecoverAddress(data []byte, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", errors.New("decoding signature failed").Wrap(err)
	}

	pub, err := crypto.SigToPub(crypto.Keccak256Hash(data).Bytes(), sig)
	if err != nil {
		return "", errors.New("recovering public key failed").Wrap(err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// TreeMessage returns a snapshot of the field quadtree. The snapshot is
// signed when identity is not nil.
func (f *Field) TreeMessage(identity *Identity) (messages.Tree, error) {
	nodes, info := f.Snapshot()

	tree := messages.Tree{
		Nodes: nodes,
		Info:  info,
	}
	if identity == nil {
		return tree, nil
	}

	signature, err := SignNodes(identity, nodes)
	if err != nil {
		return tree, err
	}
	tree.Signature = signature
	tree.WalletAddress = identity.Address()
	return tree, nil
}

// SignNodes signs the JSON encoding of the given nodes.
func SignNodes(identity *Identity, nodes []quadtree.NodeInfo) (string, error) {
	data, err := json.Marshal(nodes)
	if err != nil {
		return "", errors.New("encoding tree nodes failed").Wrap(err)
	}
	return identity.Sign(data)
}

// VerifyTree checks that the tree snapshot was signed by its wallet address.
func VerifyTree(tree messages.Tree) error {
	if tree.Signature == "" {
		return errors.New("tree is not signed")
	}

	data, err := json.Marshal(tree.Nodes)
	if err != nil {
		return errors.New("encoding tree nodes failed").Wrap(err)
	}

	address, err := RecoverAddress(data, tree.Signature)
	if err != nil {
		return err
	}
	if address != strings.ToLower(tree.WalletAddress) {
		return errors.New("tree signed by another wallet").
			WithTag("wallet_address", tree.WalletAddress).
			WithTag("signer", address)
	}
	return nil
}
