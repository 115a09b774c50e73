package session

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/connector"
	"github.com/big14way/wagmi-project/pkg/wallet"
)

// RecentKey is where the most recent session record lives.
const RecentKey = "walletsession.recent"

// KV is the durable key-value backend behind a Store.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ConnectorFinder resolves connector IDs during restore.
type ConnectorFinder interface {
	Find(id string) (connector.Connector, error)
}

// Listener receives the full session after every change.
type Listener func(Session)

// Store owns the single current session.
//
// Set and Clear are serialized. Each persists first and only then swaps the
// in-memory value, so a failed write changes nothing. Listeners run
// synchronously after both steps, in registration order; they may call Get
// but must not call Set or Clear.
type Store struct {
	kv         KV
	connectors ConnectorFinder
	log        *logrus.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	current Session

	listenMu  sync.Mutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

// NewStore creates a store with no session. Call Restore to look for a
// previous one.
func NewStore(kv KV, connectors ConnectorFinder, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		kv:         kv,
		connectors: connectors,
		log:        logger,
		listeners:  make(map[int]Listener),
	}
}

// Get returns the current session, or None.
func (s *Store) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set makes sess the current session, persists it and notifies listeners,
// even when sess equals the current session. Setting None is the same as
// Clear.
func (s *Store) Set(ctx context.Context, sess Session) error {
	if !sess.Active() {
		return s.Clear(ctx)
	}
	if err := sess.Validate(); err != nil {
		return err
	}
	sess.Address, _ = wallet.ValidateAddress(sess.Address)

	record, err := encodeRecord(sess)
	if err != nil {
		return wallet.NewWalletError(wallet.ErrCodePersistenceFailed, "failed to encode session", err, sess.ChainID)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Set(ctx, RecentKey, record); err != nil {
		return wallet.NewWalletError(wallet.ErrCodePersistenceFailed, "failed to save session", err, sess.ChainID)
	}

	if s.swap(sess) {
		s.log.WithFields(logrus.Fields{
			"address":      sess.Address,
			"chain_id":     sess.ChainID,
			"connector_id": sess.ConnectorID,
		}).Debug("Session updated")
	}

	s.notify(sess)
	return nil
}

// Clear removes the current session and its record, then notifies listeners.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Delete(ctx, RecentKey); err != nil {
		return wallet.NewWalletError(wallet.ErrCodePersistenceFailed, "failed to remove session", err, 0)
	}

	if s.swap(None) {
		s.log.Debug("Session cleared")
	}

	s.notify(None)
	return nil
}

// Restore reads the persisted record and checks it against the registry. It
// returns the session when its connector is registered and ready and the
// wallet still authorizes the address without prompting; otherwise None.
// Records that can never be restored are removed. The current session is not
// changed.
//
// The only error returned is a failure to read the backend.
func (s *Store) Restore(ctx context.Context) (Session, error) {
	record, ok, err := s.kv.Get(ctx, RecentKey)
	if err != nil {
		return None, wallet.NewWalletError(wallet.ErrCodePersistenceFailed, "failed to read session", err, 0)
	}
	if !ok {
		return None, nil
	}

	sess, err := decodeRecord(record)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"code":  wallet.ErrCodePersistenceCorrupt,
			"error": err,
		}).Warn("Discarding malformed session record")
		s.discard(ctx, record)
		return None, nil
	}

	logger := s.log.WithFields(logrus.Fields{
		"address":      sess.Address,
		"chain_id":     sess.ChainID,
		"connector_id": sess.ConnectorID,
	})

	c, err := s.connectors.Find(sess.ConnectorID)
	if err != nil {
		logger.Info("Saved session references an unknown connector")
		s.discard(ctx, record)
		return None, nil
	}
	if !c.Ready {
		logger.Info("Saved session's connector is not available")
		s.discard(ctx, record)
		return None, nil
	}

	accounts, err := c.Provider.Accounts(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not verify saved session with wallet")
		return None, nil
	}
	if !wallet.ContainsAddress(accounts, sess.Address) {
		logger.Info("Wallet no longer authorizes saved account")
		s.discard(ctx, record)
		return None, nil
	}

	logger.Debug("Saved session is restorable")
	return sess, nil
}

// Subscribe registers fn for session changes.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenMu.Lock()
			defer s.listenMu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// swap replaces the in-memory session and reports whether it changed.
func (s *Store) swap(sess Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == sess {
		return false
	}
	s.current = sess
	return true
}

func (s *Store) notify(sess Session) {
	s.listenMu.Lock()
	listeners := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenMu.Unlock()

	for _, fn := range listeners {
		fn(sess)
	}
}

// discard deletes record unless it was replaced in the meantime.
func (s *Store) discard(ctx context.Context, record []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, ok, err := s.kv.Get(ctx, RecentKey)
	if err != nil || !ok || !bytes.Equal(current, record) {
		return
	}
	if err := s.kv.Delete(ctx, RecentKey); err != nil {
		s.log.WithError(err).Warn("Failed to remove stale session record")
	}
}
