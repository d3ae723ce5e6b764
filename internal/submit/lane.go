package submit

import (
	"sync"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// lane is the single-writer sequence counter for one signing identity.
type lane struct {
	mu   sync.Mutex
	next uint64
}

type laneMap struct {
	mu    sync.Mutex
	lanes map[principal.Address]*lane
}

func (m *laneMap) get(identity principal.Address) *lane {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lanes == nil {
		m.lanes = make(map[principal.Address]*lane)
	}
	l, ok := m.lanes[identity]
	if !ok {
		l = &lane{next: 1}
		m.lanes[identity] = l
	}
	return l
}
