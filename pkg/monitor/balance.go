package monitor

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/session"
)

// DefaultBalanceInterval is how often the balance is polled.
const DefaultBalanceInterval = 30 * time.Second

// BalanceReader reads native balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, chainID int64, address string) (*big.Int, error)
}

// BalanceFunc receives a balance that differs from the last one seen for
// the same account and chain.
type BalanceFunc func(sess session.Session, wei *big.Int)

// BalanceTask follows the native balance of the active session.
type BalanceTask struct {
	*ticker
	reader   BalanceReader
	current  func() session.Session
	onChange BalanceFunc
	logger   *logrus.Logger

	lastSession session.Session
	lastBalance *big.Int
}

// NewBalanceTask creates the task. current returns the live session.
func NewBalanceTask(reader BalanceReader, current func() session.Session, onChange BalanceFunc, interval time.Duration, logger *logrus.Logger) (*BalanceTask, error) {
	t, err := newTicker(interval)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &BalanceTask{
		ticker:   t,
		reader:   reader,
		current:  current,
		onChange: onChange,
		logger:   logger,
	}, nil
}

func (b *BalanceTask) Name() string { return "balance" }

func (b *BalanceTask) Run(ctx context.Context) error {
	b.Poll(ctx)
	return b.loop(ctx, b.Poll)
}

// Poll reads the balance once. Read errors are logged and skipped; unknown
// chains have no reader and are skipped too.
func (b *BalanceTask) Poll(ctx context.Context) {
	sess := b.current()
	if !sess.Active() {
		b.lastSession, b.lastBalance = session.None, nil
		return
	}

	wei, err := b.reader.GetBalance(ctx, sess.ChainID, sess.Address)
	if err != nil {
		b.logger.WithFields(logrus.Fields{
			"address":  sess.Address,
			"chain_id": sess.ChainID,
			"error":    err,
		}).Debug("Balance read failed")
		return
	}

	if sess == b.lastSession && b.lastBalance != nil && b.lastBalance.Cmp(wei) == 0 {
		return
	}
	b.lastSession, b.lastBalance = sess, wei
	if b.onChange != nil {
		b.onChange(sess, wei)
	}
}
