package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Minter wraps the token sale contract.
type Minter struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewMinter binds the minter contract at address to backend.
func NewMinter(address common.Address, backend bind.ContractBackend) (*Minter, error) {
	p, err := loadABIs()
	if err != nil {
		return nil, err
	}
	return &Minter{
		address:  address,
		contract: bind.NewBoundContract(address, p.minter, backend, backend, backend),
	}, nil
}

// Address returns the contract address.
func (m *Minter) Address() common.Address { return m.address }

// CalculateTokenAmount returns how many token base units payment (in wei) buys.
func (m *Minter) CalculateTokenAmount(ctx context.Context, payment *big.Int) (*big.Int, error) {
	var out []interface{}
	if err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "calculateTokenAmount", payment); err != nil {
		return nil, fmt.Errorf("calling calculateTokenAmount: %w", err)
	}
	return singleUint("calculateTokenAmount", out)
}

// PurchaseTokens submits purchaseTokens() paying opts.Value.
func (m *Minter) PurchaseTokens(opts *bind.TransactOpts) (*types.Transaction, error) {
	if opts.Value == nil || opts.Value.Sign() <= 0 {
		return nil, fmt.Errorf("purchaseTokens: payment value must be positive")
	}
	tx, err := m.contract.Transact(opts, "purchaseTokens")
	if err != nil {
		return nil, fmt.Errorf("sending purchaseTokens: %w", err)
	}
	return tx, nil
}
