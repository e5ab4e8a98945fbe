// Package wallet supplies the wallet-provider capability the session talks
// to: account authorization, a chain backend, transaction signing and an
// account-change stream.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key holds an Ethereum private key.
type Key struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// FromKeyFile loads a key from a hex-encoded private key file.
func FromKeyFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return FromHex(strings.TrimSpace(string(data)))
}

// FromHex parses a hex-encoded private key, with or without 0x.
func FromHex(hexKey string) (*Key, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return fromECDSA(key), nil
}

// FromKeystore decrypts a go-ethereum keystore (V3 JSON) file.
func FromKeystore(path, passphrase string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	k, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting keystore: %w", err)
	}
	return fromECDSA(k.PrivateKey), nil
}

// Generate creates a new random key.
func Generate() (*Key, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return fromECDSA(key), nil
}

func fromECDSA(key *ecdsa.PrivateKey) *Key {
	return &Key{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the key's account.
func (k *Key) Address() common.Address { return k.address }

// PrivateKeyHex returns the private key as hex without 0x.
func (k *Key) PrivateKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(k.privateKey))
}

// SaveKeyFile writes the hex private key with owner-only permissions.
func (k *Key) SaveKeyFile(path string) error {
	return os.WriteFile(path, []byte(k.PrivateKeyHex()+"\n"), 0600)
}

// transactor returns signing options bound to chainID.
func (k *Key) transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(k.privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}
	return opts, nil
}
