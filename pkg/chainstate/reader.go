// Package chainstate reads a user's token balance, stake, tier and content
// privileges from the token and staking contracts as one unit.
package chainstate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmakwana01/InsightTiers/pkg/contracts"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

// ErrRead wraps any failure of a read cycle.
var ErrRead = errors.New("chain state read failed")

// Privileges are the per-user content flags held by the staking contract.
type Privileges = contracts.Privileges

// UserState is the on-chain view of one account. StakedAmount and Tier always
// come from the same read cycle. The zero value is the disconnected state.
type UserState struct {
	TokenBalance units.Amount `json:"token_balance"`
	StakedAmount units.Amount `json:"staked_amount"`
	Tier         tiers.ID     `json:"tier"`
	Privileges   Privileges   `json:"privileges"`
}

// Reader performs read cycles against a fixed set of contract addresses.
type Reader struct {
	addrs  contracts.Addresses
	logger *zap.Logger
}

// NewReader creates a reader.
func NewReader(addrs contracts.Addresses, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{addrs: addrs, logger: logger.Named("chainstate")}
}

// Read issues the four reads concurrently. Either all succeed and a complete
// UserState is returned, or the error wraps ErrRead and no partial state is
// returned.
func (r *Reader) Read(ctx context.Context, backend contracts.Backend, account common.Address) (UserState, error) {
	suite, err := contracts.NewSuite(r.addrs, backend)
	if err != nil {
		return UserState{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	var (
		balance, staked, tier *big.Int
		priv                  Privileges
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = suite.Token.BalanceOf(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		tier, err = suite.Staking.UserTier(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		staked, err = suite.Staking.StakedAmount(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		priv, err = suite.Staking.UserPrivileges(gctx, account)
		return err
	})
	if err := g.Wait(); err != nil {
		return UserState{}, fmt.Errorf("%w: %w", ErrRead, err)
	}

	id, err := DecodeTier(tier)
	if err != nil {
		return UserState{}, fmt.Errorf("%w: %w", ErrRead, err)
	}

	st := UserState{
		TokenBalance: units.FromWei(balance),
		StakedAmount: units.FromWei(staked),
		Tier:         id,
		Privileges:   priv,
	}
	r.logger.Debug("read cycle complete",
		zap.String("account", account.Hex()),
		zap.Stringer("balance", st.TokenBalance),
		zap.Stringer("staked", st.StakedAmount),
		zap.Stringer("tier", st.Tier),
		zap.Bool("premium", st.Privileges.Premium))
	return st, nil
}

// DecodeTier converts a getUserTier result into a tier id. Values that do not
// fit in an int32 are rejected.
func DecodeTier(v *big.Int) (tiers.ID, error) {
	if v == nil {
		return 0, errors.New("getUserTier: missing value")
	}
	if v.Sign() < 0 || !v.IsInt64() || v.Int64() > math.MaxInt32 {
		return 0, fmt.Errorf("getUserTier: value %s out of range", v)
	}
	return tiers.ID(v.Int64()), nil
}
