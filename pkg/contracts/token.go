package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token wraps the token contract.
type Token struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewToken binds the token contract at address to backend.
func NewToken(address common.Address, backend bind.ContractBackend) (*Token, error) {
	p, err := loadABIs()
	if err != nil {
		return nil, err
	}
	return &Token{
		address:  address,
		abi:      p.token,
		contract: bind.NewBoundContract(address, p.token, backend, backend, backend),
	}, nil
}

// Address returns the contract address.
func (t *Token) Address() common.Address { return t.address }

// BalanceOf returns owner's balance in base units.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("calling balanceOf: %w", err)
	}
	return singleUint("balanceOf", out)
}

// Approve submits approve(spender, amount). It does not wait for inclusion.
func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	tx, err := t.contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("sending approve: %w", err)
	}
	return tx, nil
}

// TransferEventID returns the topic hash of Transfer(address,address,uint256).
func (t *Token) TransferEventID() common.Hash {
	return t.abi.Events["Transfer"].ID
}

// singleUint extracts a lone uint256 result.
func singleUint(method string, out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: expected 1 return value, got %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type for result: %T", method, out[0])
	}
	return v, nil
}
