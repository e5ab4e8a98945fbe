package chainstate

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmakwana01/InsightTiers/internal/chaintest"
	"github.com/jmakwana01/InsightTiers/pkg/contracts"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

var account = common.HexToAddress("0x1111111111111111111111111111111111111111")

func healthyNode() *chaintest.Node {
	node := chaintest.NewNode(80002)
	node.Handle("balanceOf(address)", chaintest.Returns(chaintest.Uint(units.FromTokens(120).Wei())))
	node.Handle("getUserTier(address)", chaintest.Returns(chaintest.Uint(big.NewInt(1))))
	node.Handle("getStakedAmount(address)", chaintest.Returns(chaintest.Uint(units.FromTokens(500).Wei())))
	node.Handle("getUserPrivileges(address)", chaintest.Returns(chaintest.Bools(true, true, false)))
	return node
}

func dial(t *testing.T, node *chaintest.Node) *ethclient.Client {
	t.Helper()
	c, err := ethclient.Dial(node.URL())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestReadComplete(t *testing.T) {
	node := healthyNode()
	defer node.Close()

	r := NewReader(contracts.DefaultAddresses(), nil)
	st, err := r.Read(context.Background(), dial(t, node), account)
	require.NoError(t, err)

	assert.Equal(t, "120.00", st.TokenBalance.Format(2))
	assert.Equal(t, "500.00", st.StakedAmount.Format(2))
	assert.Equal(t, tiers.Silver, st.Tier)
	assert.Equal(t, Privileges{Premium: true, Webinars: true}, st.Privileges)
}

func TestReadAllOrNothing(t *testing.T) {
	for _, sig := range []string{
		"balanceOf(address)",
		"getUserTier(address)",
		"getStakedAmount(address)",
		"getUserPrivileges(address)",
	} {
		t.Run(sig, func(t *testing.T) {
			node := healthyNode()
			defer node.Close()
			node.Handle(sig, chaintest.Reverts("boom"))

			r := NewReader(contracts.DefaultAddresses(), nil)
			st, err := r.Read(context.Background(), dial(t, node), account)
			require.ErrorIs(t, err, ErrRead)
			assert.Equal(t, UserState{}, st)
		})
	}
}

func TestReadMalformedPrivileges(t *testing.T) {
	node := healthyNode()
	defer node.Close()
	// Two words where three booleans are expected.
	node.Handle("getUserPrivileges(address)", chaintest.Returns(chaintest.Bools(true, true)))

	r := NewReader(contracts.DefaultAddresses(), nil)
	_, err := r.Read(context.Background(), dial(t, node), account)
	require.ErrorIs(t, err, ErrRead)
}

func TestReadTierOutOfRange(t *testing.T) {
	node := healthyNode()
	defer node.Close()
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	node.Handle("getUserTier(address)", chaintest.Returns(chaintest.Uint(huge)))

	r := NewReader(contracts.DefaultAddresses(), nil)
	_, err := r.Read(context.Background(), dial(t, node), account)
	require.ErrorIs(t, err, ErrRead)
	assert.Contains(t, err.Error(), "out of range")
}

func TestDecodeTier(t *testing.T) {
	id, err := DecodeTier(big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, tiers.Gold, id)

	id, err = DecodeTier(big.NewInt(9))
	require.NoError(t, err)
	assert.Equal(t, "None", id.String())

	_, err = DecodeTier(nil)
	assert.Error(t, err)
	_, err = DecodeTier(big.NewInt(1 << 40))
	assert.Error(t, err)
}
