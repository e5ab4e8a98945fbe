package contracts

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmakwana01/InsightTiers/internal/chaintest"
)

var user = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newSuite(t *testing.T, node *chaintest.Node) *Suite {
	t.Helper()
	client, err := ethclient.Dial(node.URL())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	s, err := NewSuite(DefaultAddresses(), client)
	require.NoError(t, err)
	return s
}

func TestReads(t *testing.T) {
	node := chaintest.NewNode(80002)
	defer node.Close()

	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	node.Handle("balanceOf(address)", func(to common.Address, args []byte) ([]byte, error) {
		assert.Equal(t, DefaultAddresses().Token, to)
		assert.Equal(t, user, chaintest.ArgAddress(args))
		return chaintest.Uint(new(big.Int).Mul(big.NewInt(120), oneToken)), nil
	})
	node.Handle("getUserTier(address)", chaintest.Returns(chaintest.Uint(big.NewInt(1))))
	node.Handle("getStakedAmount(address)", chaintest.Returns(chaintest.Uint(new(big.Int).Mul(big.NewInt(500), oneToken))))
	node.Handle("getUserPrivileges(address)", chaintest.Returns(chaintest.Bools(true, false, true)))
	node.Handle("calculateTokenAmount(uint256)", func(_ common.Address, args []byte) ([]byte, error) {
		return chaintest.Uint(new(big.Int).Mul(chaintest.ArgUint(args), big.NewInt(100))), nil
	})

	s := newSuite(t, node)
	ctx := context.Background()

	bal, err := s.Token.BalanceOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "120000000000000000000", bal.String())

	tier, err := s.Staking.UserTier(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tier.Int64())

	staked, err := s.Staking.StakedAmount(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000000", staked.String())

	priv, err := s.Staking.UserPrivileges(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, Privileges{Premium: true, Webinars: false, Support: true}, priv)

	out, err := s.Minter.CalculateTokenAmount(ctx, big.NewInt(25))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), out.Int64())
}

func TestReadRevert(t *testing.T) {
	node := chaintest.NewNode(80002)
	defer node.Close()
	node.Handle("getUserTier(address)", chaintest.Reverts("paused"))

	s := newSuite(t, node)
	_, err := s.Staking.UserTier(context.Background(), user)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calling getUserTier")
}

func TestDecodePrivileges(t *testing.T) {
	p, err := DecodePrivileges([]interface{}{true, true, false})
	require.NoError(t, err)
	assert.Equal(t, Privileges{Premium: true, Webinars: true}, p)

	_, err = DecodePrivileges([]interface{}{true, true})
	assert.ErrorContains(t, err, "expected 3 return values")

	_, err = DecodePrivileges([]interface{}{true, big.NewInt(1), false})
	assert.ErrorContains(t, err, "unexpected type for value 1")
}

func TestTransferEventID(t *testing.T) {
	node := chaintest.NewNode(80002)
	defer node.Close()
	s := newSuite(t, node)

	want := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	assert.Equal(t, want, s.Token.TransferEventID())
}

func TestPurchaseRequiresValue(t *testing.T) {
	node := chaintest.NewNode(80002)
	defer node.Close()
	s := newSuite(t, node)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(80002))
	require.NoError(t, err)
	_, err = s.PurchaseTokens(opts)
	assert.ErrorContains(t, err, "payment value must be positive")
	assert.Zero(t, node.Requests("eth_sendRawTransaction"))
}

func TestNewSuiteNilBackend(t *testing.T) {
	_, err := NewSuite(DefaultAddresses(), nil)
	assert.Error(t, err)
}
