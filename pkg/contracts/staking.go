package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Privileges is the decoded getUserPrivileges tuple.
type Privileges struct {
	Premium  bool `json:"premium"`
	Webinars bool `json:"webinars"`
	Support  bool `json:"support"`
}

// Staking wraps the staking contract.
type Staking struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewStaking binds the staking contract at address to backend.
func NewStaking(address common.Address, backend bind.ContractBackend) (*Staking, error) {
	p, err := loadABIs()
	if err != nil {
		return nil, err
	}
	return &Staking{
		address:  address,
		contract: bind.NewBoundContract(address, p.staking, backend, backend, backend),
	}, nil
}

// Address returns the contract address.
func (s *Staking) Address() common.Address { return s.address }

// UserTier returns the raw getUserTier result.
func (s *Staking) UserTier(ctx context.Context, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserTier", user); err != nil {
		return nil, fmt.Errorf("calling getUserTier: %w", err)
	}
	return singleUint("getUserTier", out)
}

// StakedAmount returns the amount user has staked, in base units.
func (s *Staking) StakedAmount(ctx context.Context, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getStakedAmount", user); err != nil {
		return nil, fmt.Errorf("calling getStakedAmount: %w", err)
	}
	return singleUint("getStakedAmount", out)
}

// UserPrivileges returns the (premium, webinars, support) flags for user.
func (s *Staking) UserPrivileges(ctx context.Context, user common.Address) (Privileges, error) {
	var out []interface{}
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserPrivileges", user); err != nil {
		return Privileges{}, fmt.Errorf("calling getUserPrivileges: %w", err)
	}
	return DecodePrivileges(out)
}

// DecodePrivileges validates that values is exactly three booleans and names them.
func DecodePrivileges(values []interface{}) (Privileges, error) {
	if len(values) != 3 {
		return Privileges{}, fmt.Errorf("getUserPrivileges: expected 3 return values, got %d", len(values))
	}
	var flags [3]bool
	for i, v := range values {
		b, ok := v.(bool)
		if !ok {
			return Privileges{}, fmt.Errorf("getUserPrivileges: unexpected type for value %d: %T", i, v)
		}
		flags[i] = b
	}
	return Privileges{Premium: flags[0], Webinars: flags[1], Support: flags[2]}, nil
}

// Stake submits stake(amount). The staking contract must already hold an
// allowance of at least amount.
func (s *Staking) Stake(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	tx, err := s.contract.Transact(opts, "stake", amount)
	if err != nil {
		return nil, fmt.Errorf("sending stake: %w", err)
	}
	return tx, nil
}
