package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"
)

// Identity is a signing key together with the address it controls.
type Identity struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// FromPrivateKeyHex parses a hex encoded secp256k1 key, with or without 0x prefix.
func FromPrivateKeyHex(privateKeyHex string) (*Identity, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, err
	}

	return FromPrivateKey(privateKey), nil
}

func FromPrivateKey(key *ecdsa.PrivateKey) *Identity {
	return &Identity{
		Key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// SignTx signs a transaction body for the given chain with the latest signer rules.
func (i *Identity) SignTx(tx types.TxData, chainID *big.Int) (*types.Transaction, error) {
	return types.SignNewTx(i.Key, types.LatestSignerForChainID(chainID), tx)
}

// Generate EIP191 signature
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	prefixedData := append(prefix, data...)
	hash := crypto.Keccak256Hash(prefixedData)
	sig, e := crypto.Sign(hash.Bytes(), key)
	if e != nil {
		return nil, e
	}
	// https://stackoverflow.com/questions/69762108/implementing-ethereum-personal-sign-eip-191-from-go-ethereum-gives-different-s
	sig[64] += 27

	return sig, nil
}

// RelaySignature produces the value of the relay authentication header:
// "<address>:<eip191 signature of the hex keccak256 of body>".
func (i *Identity) RelaySignature(body []byte) (string, error) {
	digest := Byte32Digest(body)
	sig, err := SignMessage(i.Key, []byte(common.Hash(digest).Hex()))
	if err != nil {
		return "", err
	}

	return i.Address.Hex() + ":" + "0x" + common.Bytes2Hex(sig), nil
}

// Byte32Digest is the legacy keccak256 of data.
func Byte32Digest(data []byte) [32]byte {
	var digest [32]byte
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	copy(digest[:], hasher.Sum(nil)[:32])

	return digest
}
