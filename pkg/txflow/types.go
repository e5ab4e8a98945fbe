package txflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmakwana01/InsightTiers/pkg/contracts"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

var (
	ErrNoSigner            = errors.New("no signer: wallet not connected")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrBusy                = errors.New("another transaction is in progress")
	ErrReverted            = contracts.ErrReverted
)

// Kind names a transaction type.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindApprove  Kind = "approve"
	KindStake    Kind = "stake"
)

// Status is the lifecycle position of a pending transaction.
type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

// Step is where a transaction failed.
type Step string

const (
	StepPrepare Step = "prepare"
	StepSubmit  Step = "submit"
	StepConfirm Step = "confirm"
)

// TxError reports a failed transaction.
type TxError struct {
	Kind Kind
	Step Step
	Hash common.Hash
	Err  error
}

func (e *TxError) Error() string {
	if e.Hash != (common.Hash{}) {
		return fmt.Sprintf("%s %s failed (%s): %v", e.Kind, e.Step, e.Hash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Step, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// PendingTransaction is an in-flight transaction. It exists only while the
// action that created it runs.
type PendingTransaction struct {
	ID        string       `json:"id"`
	Kind      Kind         `json:"kind"`
	Status    Status       `json:"status"`
	Amount    units.Amount `json:"amount"`
	Hash      common.Hash  `json:"hash"`
	StartedAt time.Time    `json:"started_at"`
}

// StakeState is the position in the approve-then-stake saga.
type StakeState int

const (
	StakeIdle StakeState = iota
	ApprovalPending
	StakePending
	StakeDone
	FailedAtApproval
	FailedAtStake
)

func (s StakeState) String() string {
	switch s {
	case ApprovalPending:
		return "approval_pending"
	case StakePending:
		return "stake_pending"
	case StakeDone:
		return "done"
	case FailedAtApproval:
		return "failed_at_approval"
	case FailedAtStake:
		return "failed_at_stake"
	default:
		return "idle"
	}
}

func (s StakeState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *StakeState) UnmarshalText(b []byte) error {
	for c := StakeIdle; c <= FailedAtStake; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown stake state %q", b)
}

// PurchaseResult describes a confirmed purchase.
type PurchaseResult struct {
	Hash        common.Hash  `json:"hash"`
	BlockNumber uint64       `json:"block_number"`
	Paid        units.Amount `json:"paid"`
}

// StakeResult describes how far a stake got.
type StakeResult struct {
	State       StakeState   `json:"state"`
	Amount      units.Amount `json:"amount"`
	ApproveHash common.Hash  `json:"approve_hash"`
	StakeHash   common.Hash  `json:"stake_hash"`
}

// Notice is a user-facing outcome message.
type Notice struct {
	Kind    Kind        `json:"kind"`
	OK      bool        `json:"ok"`
	Message string      `json:"message"`
	Hash    common.Hash `json:"hash"`
}

// Notifier receives outcome notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
