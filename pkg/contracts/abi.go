// Package contracts binds the three contracts the app talks to: the ERC-20
// style token, the staking contract that assigns tiers and privileges, and
// the minter that sells tokens for native currency.
package contracts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Token: balanceOf(address) view returns (uint256), approve(address,uint256) returns (bool)
const tokenABIJSON = `[
	{
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

// Staking: tier, staked amount and the (premium, webinars, support) privilege tuple.
const stakingABIJSON = `[
	{
		"inputs": [{"name": "amount", "type": "uint256"}],
		"name": "stake",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getUserTier",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getStakedAmount",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getUserPrivileges",
		"outputs": [
			{"name": "", "type": "bool"},
			{"name": "", "type": "bool"},
			{"name": "", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Minter: purchaseTokens() payable, calculateTokenAmount(uint256) view
const minterABIJSON = `[
	{
		"inputs": [],
		"name": "purchaseTokens",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"name": "_maticAmount", "type": "uint256"}],
		"name": "calculateTokenAmount",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

type parsedABIs struct {
	token   abi.ABI
	staking abi.ABI
	minter  abi.ABI
}

var loadABIs = sync.OnceValues(func() (parsedABIs, error) {
	var p parsedABIs
	var err error
	if p.token, err = abi.JSON(strings.NewReader(tokenABIJSON)); err != nil {
		return p, fmt.Errorf("parsing token ABI: %w", err)
	}
	if p.staking, err = abi.JSON(strings.NewReader(stakingABIJSON)); err != nil {
		return p, fmt.Errorf("parsing staking ABI: %w", err)
	}
	if p.minter, err = abi.JSON(strings.NewReader(minterABIJSON)); err != nil {
		return p, fmt.Errorf("parsing minter ABI: %w", err)
	}
	return p, nil
})

// TokenABI returns the parsed token ABI (functions and the Transfer event).
func TokenABI() (abi.ABI, error) {
	p, err := loadABIs()
	return p.token, err
}
