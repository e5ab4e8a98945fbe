package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Default deployment addresses (Polygon Amoy).
const (
	DefaultTokenAddress   = "0xd61F910537Cb943Bd32CB679e69F700366080E78"
	DefaultStakingAddress = "0x14d05ad99132D9a0b3aE0f8b44642B05Aac38a42"
	DefaultMinterAddress  = "0xF007af4d1e65a3A5Ffc85caA3Ce41833287aB822"
)

// Addresses locates the three contracts.
type Addresses struct {
	Token   common.Address
	Staking common.Address
	Minter  common.Address
}

// DefaultAddresses returns the addresses of the reference deployment.
func DefaultAddresses() Addresses {
	return Addresses{
		Token:   common.HexToAddress(DefaultTokenAddress),
		Staking: common.HexToAddress(DefaultStakingAddress),
		Minter:  common.HexToAddress(DefaultMinterAddress),
	}
}

// Backend is everything the suite needs from a chain connection: read calls,
// transaction submission and receipt lookup.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ErrReverted is returned by WaitMined when the receipt status is not success.
var ErrReverted = errors.New("transaction reverted")

// Suite groups the bound contracts over one backend.
type Suite struct {
	Token   *Token
	Staking *Staking
	Minter  *Minter

	backend Backend
}

// NewSuite binds all three contracts to backend.
func NewSuite(addrs Addresses, backend Backend) (*Suite, error) {
	if backend == nil {
		return nil, errors.New("contracts: nil backend")
	}
	token, err := NewToken(addrs.Token, backend)
	if err != nil {
		return nil, err
	}
	staking, err := NewStaking(addrs.Staking, backend)
	if err != nil {
		return nil, err
	}
	minter, err := NewMinter(addrs.Minter, backend)
	if err != nil {
		return nil, err
	}
	return &Suite{Token: token, Staking: staking, Minter: minter, backend: backend}, nil
}

// PurchaseTokens pays opts.Value to the minter.
func (s *Suite) PurchaseTokens(opts *bind.TransactOpts) (*types.Transaction, error) {
	return s.Minter.PurchaseTokens(opts)
}

// ApproveStaking grants the staking contract an allowance of amount.
func (s *Suite) ApproveStaking(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	return s.Token.Approve(opts, s.Staking.Address(), amount)
}

// Stake stakes amount.
func (s *Suite) Stake(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	return s.Staking.Stake(opts, amount)
}

// WaitMined blocks until tx is included and checks the receipt status.
func (s *Suite) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}
