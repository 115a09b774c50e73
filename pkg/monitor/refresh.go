package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/connector"
	"github.com/big14way/wagmi-project/pkg/session"
)

// DefaultRefreshInterval is how often connectors are re-probed.
const DefaultRefreshInterval = 10 * time.Second

// ConnectorSource is the part of the registry the refresh task needs.
type ConnectorSource interface {
	Refresh(ctx context.Context)
	Find(id string) (connector.Connector, error)
}

// RefreshTask re-probes connectors so wallets started after the app show up,
// and warns when the active session's wallet goes away.
type RefreshTask struct {
	*ticker
	registry ConnectorSource
	current  func() session.Session
	logger   *logrus.Logger
}

// NewRefreshTask creates the task. current returns the live session.
func NewRefreshTask(registry ConnectorSource, current func() session.Session, interval time.Duration, logger *logrus.Logger) (*RefreshTask, error) {
	t, err := newTicker(interval)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RefreshTask{
		ticker:   t,
		registry: registry,
		current:  current,
		logger:   logger,
	}, nil
}

func (r *RefreshTask) Name() string { return "refresh_connectors" }

func (r *RefreshTask) Run(ctx context.Context) error {
	return r.loop(ctx, r.Refresh)
}

// Refresh runs one probe.
func (r *RefreshTask) Refresh(ctx context.Context) {
	r.registry.Refresh(ctx)

	sess := r.current()
	if !sess.Active() {
		return
	}
	c, err := r.registry.Find(sess.ConnectorID)
	if err == nil && !c.Ready {
		r.logger.WithField("connector_id", c.ID).Warn("Wallet for the active session is no longer reachable")
	}
}
