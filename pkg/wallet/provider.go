package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/jmakwana01/InsightTiers/pkg/contracts"
)

// ErrUserRejected is returned when the user declines an authorization request.
var ErrUserRejected = errors.New("user rejected the request")

// ErrUnknownAccount is returned for an account the provider holds no key for.
var ErrUnknownAccount = errors.New("unknown account")

// Backend is the chain handle a provider exposes.
type Backend = contracts.Backend

// Provider is the wallet capability. The first entry of an account list is the
// active account.
type Provider interface {
	// RequestAccounts asks the user to authorize access and returns the
	// authorized accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	Backend() Backend
	// Transactor returns signing options for account.
	Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	// SubscribeAccountsChanged delivers the new account list whenever the
	// active account changes. An empty list means access was revoked.
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
}

// Approver decides whether an authorization request is granted.
type Approver func(ctx context.Context) bool

// KeyProvider is a Provider backed by local private keys and a JSON-RPC node.
type KeyProvider struct {
	backend Backend
	chainID *big.Int
	closer  func()

	mu         sync.Mutex
	keys       []*Key
	authorized bool
	approve    Approver

	feed event.Feed
}

// NewKeyProvider creates a provider over backend holding keys. The first key
// is the active account.
func NewKeyProvider(backend Backend, chainID *big.Int, keys ...*Key) *KeyProvider {
	return &KeyProvider{
		backend: backend,
		chainID: new(big.Int).Set(chainID),
		keys:    append([]*Key(nil), keys...),
	}
}

// Dial connects to rpcURL and checks that the node serves chainID.
func Dial(ctx context.Context, rpcURL string, chainID *big.Int, keys ...*Key) (*KeyProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum RPC: %w", err)
	}
	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("querying chain id: %w", err)
	}
	if got.Cmp(chainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: node serves %s, want %s", got, chainID)
	}
	p := NewKeyProvider(client, chainID, keys...)
	p.closer = client.Close
	return p, nil
}

// SetApprover installs an authorization hook. Without one every request is
// granted.
func (p *KeyProvider) SetApprover(a Approver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approve = a
}

func (p *KeyProvider) addresses() []common.Address {
	out := make([]common.Address, len(p.keys))
	for i, k := range p.keys {
		out[i] = k.Address()
	}
	return out
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	approve := p.approve
	p.mu.Unlock()

	if approve != nil && !approve(ctx) {
		return nil, ErrUserRejected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorized = true
	return p.addresses(), nil
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return nil, nil
	}
	return p.addresses(), nil
}

func (p *KeyProvider) Backend() Backend { return p.backend }

func (p *KeyProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.keys {
		if k.Address() == account {
			opts, err := k.transactor(p.chainID)
			if err != nil {
				return nil, err
			}
			opts.Context = ctx
			return opts, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
}

func (p *KeyProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.feed.Subscribe(ch)
}

// SelectAccount makes account the active one and notifies subscribers.
func (p *KeyProvider) SelectAccount(account common.Address) error {
	p.mu.Lock()
	idx := -1
	for i, k := range p.keys {
		if k.Address() == account {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	k := p.keys[idx]
	copy(p.keys[1:idx+1], p.keys[:idx])
	p.keys[0] = k
	authorized := p.authorized
	list := p.addresses()
	p.mu.Unlock()

	if authorized {
		p.feed.Send(list)
	}
	return nil
}

// Revoke withdraws authorization and notifies subscribers with an empty list.
func (p *KeyProvider) Revoke() {
	p.mu.Lock()
	p.authorized = false
	p.mu.Unlock()
	p.feed.Send([]common.Address{})
}

// Close releases the backend connection when the provider dialed it.
func (p *KeyProvider) Close() {
	if p.closer != nil {
		p.closer()
	}
}
