package vip

import (
	"errors"
	"sync"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient vip balance")
	ErrUnknownSource       = errors.New("unknown grant source")
)

// Grant sources map onto the income buckets of the users table.
const (
	SourceDonationOrBits = "donation_or_bits"
	SourceFollow         = "follow"
	SourceModGiven       = "mod_given"
	SourceSub            = "sub"
	SourceBytes          = "bytes"
)

// Ledger is the token economy around the request queue. Consumption is
// pushed down into guarded SQL updates so a balance can never go
// negative; refunds are always credited as mod-given tokens rather than
// by decrementing the used counters, keeping the usage history intact.
type Ledger struct {
	mu      sync.Mutex
	pending map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{pending: map[string]int{}}
}

func (l *Ledger) superVipCost() int {
	cost := env.Value.SuperVipCost
	if cost <= 0 {
		cost = 5
	}
	return cost
}

// Remaining returns a user's spendable token balance.
func (l *Ledger) Remaining(username string) (int, error) {
	u, err := localdb.GetUser(username)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, nil
	}
	income := u.DonationOrBits + u.Follow + u.ModGiven + u.Sub + u.Bytes + u.ReceivedGift
	return income - u.UsedSuperVip*l.superVipCost() - u.UsedVip - u.SentGift, nil
}

// HasVip reports whether the user can afford a single VIP use.
func (l *Ledger) HasVip(username string) (bool, error) {
	remaining, err := l.Remaining(username)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// HasSuperVip reports whether the user can afford a super VIP use. The
// balance must strictly exceed the cost.
func (l *Ledger) HasSuperVip(username string) (bool, error) {
	remaining, err := l.Remaining(username)
	if err != nil {
		return false, err
	}
	return remaining > l.superVipCost(), nil
}

// UseVip spends one token. Returns ErrInsufficientBalance when the
// guarded update matched no row.
func (l *Ledger) UseVip(username string) error {
	ok, err := localdb.ConsumeVip(username, l.superVipCost())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientBalance
	}
	logger.Debug("VIP token used", zap.String("username", username))
	return nil
}

// UseSuperVip spends a super VIP's worth of tokens.
func (l *Ledger) UseSuperVip(username string) error {
	ok, err := localdb.ConsumeSuperVip(username, l.superVipCost())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientBalance
	}
	logger.Debug("Super VIP tokens used", zap.String("username", username))
	return nil
}

// RefundVip credits one token back as mod-given. With deferCommit the
// credit is batched until TakePendingRefunds, so a queue-wide clear can
// commit every refund in one transaction.
func (l *Ledger) RefundVip(username string, deferCommit bool) error {
	return l.refund(username, 1, deferCommit)
}

// RefundSuperVip credits a full super VIP cost back as mod-given.
func (l *Ledger) RefundSuperVip(username string, deferCommit bool) error {
	return l.refund(username, l.superVipCost(), deferCommit)
}

func (l *Ledger) refund(username string, amount int, deferCommit bool) error {
	username = localdb.NormalizeUsername(username)
	if deferCommit {
		l.mu.Lock()
		l.pending[username] += amount
		l.mu.Unlock()
		return nil
	}
	if err := localdb.AddCredit(username, SourceModGiven, amount); err != nil {
		return err
	}
	logger.Debug("VIP tokens refunded", zap.String("username", username), zap.Int("amount", amount))
	return nil
}

// TakePendingRefunds drains the deferred refund batch. The caller is
// responsible for committing it.
func (l *Ledger) TakePendingRefunds() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = map[string]int{}
	return batch
}

// RestorePendingRefunds puts a drained batch back into the deferred
// pool after the owning transaction failed to commit it.
func (l *Ledger) RestorePendingRefunds(batch map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for username, amount := range batch {
		l.pending[username] += amount
	}
}

// Grant credits tokens into one income bucket for an observed event
// (donation, follow, sub, bits and so on).
func (l *Ledger) Grant(username, source string, amount int) error {
	switch source {
	case SourceDonationOrBits, SourceFollow, SourceModGiven, SourceSub, SourceBytes:
	default:
		return ErrUnknownSource
	}
	if err := localdb.EnsureUser(username); err != nil {
		return err
	}
	if err := localdb.AddCredit(username, source, amount); err != nil {
		return err
	}
	logger.Info("VIP tokens granted",
		zap.String("username", username), zap.String("source", source), zap.Int("amount", amount))
	return nil
}

// ModGiveVip is an operator grant of mod-given tokens.
func (l *Ledger) ModGiveVip(username string, amount int) error {
	return l.Grant(username, SourceModGiven, amount)
}

// GiftVip transfers one token between viewers.
func (l *Ledger) GiftVip(donor, receiver string) error {
	if err := localdb.EnsureUser(receiver); err != nil {
		return err
	}
	ok, err := localdb.RecordGift(donor, receiver, l.superVipCost())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientBalance
	}
	logger.Info("VIP token gifted", zap.String("donor", donor), zap.String("receiver", receiver))
	return nil
}
