package manager

import (
	"github.com/big14way/wagmi-project/pkg/chains"
	"github.com/big14way/wagmi-project/pkg/session"
)

// Status is a point-in-time view of the connection for display.
type Status struct {
	State   State
	Session session.Session

	// ConnectorName is the display name of the active connector
	ConnectorName string

	// Chain describes Session.ChainID; ChainSupported is false when the
	// wallet moved to a network outside the configured set.
	Chain          chains.Chain
	ChainSupported bool
}

// Status returns the current state together with the session it describes.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{State: m.state}
	if m.active != nil {
		st.ConnectorName = m.active.DisplayName()
	}
	m.mu.Unlock()

	st.Session = m.store.Get()
	if !st.Session.Active() {
		return st
	}

	if c, ok := m.chains.Find(st.Session.ChainID); ok {
		st.Chain = c
		st.ChainSupported = true
	} else {
		st.Chain = chains.Chain{ID: st.Session.ChainID, Name: m.chains.Name(st.Session.ChainID)}
	}
	return st
}
