package cmdserver

import (
	"sync"
	"time"
)

const (
	cxnActive cxnStatus = iota
	cxnDisconnected
)

type (
	cxnStatus int

	// cxnControl is the part of a session the table needs for a
	// coordinated shutdown.
	cxnControl interface {
		RequestClose()
		IsCloseRequested() bool
	}

	connEntry struct {
		status       cxnStatus
		addr         string
		connectedAt  time.Time
		lastActivity time.Time
		session      cxnControl
	}

	// ConnInfo is a point-in-time copy of one tracked connection,
	// returned by CmdServer.ActiveConnections.
	ConnInfo struct {
		Id           uint64
		Status       string
		Addr         string
		ConnectedAt  time.Time
		LastActivity time.Time
	}

	// connTable tracks every live connection. Ids increase monotonically
	// and are never reused within the process lifetime. The table is
	// created by the engine and handed to each session at spawn time; it
	// is the only state shared between sessions, and every operation
	// holds the mutex for its full duration.
	connTable struct {
		mu     sync.Mutex
		nextId uint64
		conns  map[uint64]*connEntry
	}
)

func (status cxnStatus) String() string {
	if status == cxnActive {
		return "active"
	}
	return "disconnected"
}

func newConnTable() *connTable {
	return &connTable{
		conns: map[uint64]*connEntry{},
	}
}

// register assigns the next connection id and inserts an active entry
// for it.
func (ct *connTable) register(addr string) uint64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.nextId++
	now := time.Now()
	ct.conns[ct.nextId] = &connEntry{
		status:       cxnActive,
		addr:         addr,
		connectedAt:  now,
		lastActivity: now,
	}

	return ct.nextId
}

// bind attaches the session control handle once the session exists.
func (ct *connTable) bind(id uint64, session cxnControl) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if entry, exists := ct.conns[id]; exists {
		entry.session = session
	}
}

// touch refreshes the last-activity timestamp after a completed
// read/dispatch cycle.
func (ct *connTable) touch(id uint64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if entry, exists := ct.conns[id]; exists {
		entry.lastActivity = time.Now()
	}
}

func (ct *connTable) markDisconnected(id uint64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if entry, exists := ct.conns[id]; exists {
		entry.status = cxnDisconnected
	}
}

func (ct *connTable) remove(id uint64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	delete(ct.conns, id)
}

func (ct *connTable) active() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	return len(ct.conns)
}

func (ct *connTable) snapshot() []ConnInfo {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	infos := make([]ConnInfo, 0, len(ct.conns))
	for id, entry := range ct.conns {
		infos = append(infos, ConnInfo{
			Id:           id,
			Status:       entry.status.String(),
			Addr:         entry.addr,
			ConnectedAt:  entry.connectedAt,
			LastActivity: entry.lastActivity,
		})
	}

	return infos
}

// requestCloseAll asks every bound session to terminate.
func (ct *connTable) requestCloseAll() {
	ct.mu.Lock()
	sessions := make([]cxnControl, 0, len(ct.conns))
	for _, entry := range ct.conns {
		if entry.session != nil && !entry.session.IsCloseRequested() {
			sessions = append(sessions, entry.session)
		}
	}
	ct.mu.Unlock()

	for _, session := range sessions {
		session.RequestClose()
	}
}

// waitForDrain blocks until every session has removed itself.
func (ct *connTable) waitForDrain() {
	for {
		if ct.active() == 0 {
			break
		}
		// catch any session that bound after the initial close request
		ct.requestCloseAll()
		time.Sleep(50 * time.Millisecond)
	}
}
