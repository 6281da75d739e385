package cmdserver

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/jimsnab/go-lane"
)

// The following client state machine progresses through the lifecycle
// of a client connection. A client processes only one command at a
// time, in arrival order.
const (
	csNone            cxnState = iota
	csInitialize               // can progress to csWaitForCommand or csTerminate
	csWaitForCommand           // can progress to csDispatchCommand or csTerminate
	csDispatchCommand          // can progress to csTerminate on an interruption, or csWaitForCommand after command processing is complete
	csTerminate                // closes the client
)

type (
	cxnState int

	clientStateEvent struct {
		newState  cxnState
		eventData any
	}

	// clientCxn drives one socket connection from accept to cleanup.
	// The connection's table entry is created by the acceptor before the
	// session starts and removed here on every exit path.
	clientCxn struct {
		l           lane.Lane
		mu          sync.Mutex // synchronizes access to waiting, closing flags
		cxn         net.Conn
		id          uint64
		addr        string
		table       *connTable
		disp        *cmdDispatcher
		socketState cxnState
		csceCh      chan *clientStateEvent
		waiting     bool
		closing     bool
		inbound     []byte
	}
)

func newClientCxn(l lane.Lane, cxn net.Conn, disp *cmdDispatcher, table *connTable, id uint64) *clientCxn {
	cc := &clientCxn{
		l:           l,
		cxn:         cxn,
		id:          id,
		addr:        cxn.RemoteAddr().String(),
		table:       table,
		disp:        disp,
		socketState: csNone,
		csceCh:      make(chan *clientStateEvent, 3),
	}

	table.bind(id, cc)

	cc.queueStateChange(csInitialize, nil)

	go cc.run()

	return cc
}

func (cc *clientCxn) queueStateChange(newState cxnState, eventData any) {
	cc.csceCh <- &clientStateEvent{
		newState:  newState,
		eventData: eventData,
	}
}

// request connection close
func (cc *clientCxn) RequestClose() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if !cc.closing {
		cc.closing = true
		if cc.waiting {
			// in a blocking read, close the socket
			cc.cxn.Close()
		}
		cc.queueStateChange(csTerminate, nil)
	}
}

func (cc *clientCxn) IsCloseRequested() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.closing
}

func (cc *clientCxn) run() {
	for {
		event := <-cc.csceCh

		cc.socketState = event.newState
		switch cc.socketState {
		case csInitialize:
			cc.onInitialize()
		case csTerminate:
			cc.onTerminate()
			cc.l.Tracef("client %d at %s terminated", cc.id, cc.addr)
			return
		case csWaitForCommand:
			if cc.IsCloseRequested() {
				cc.queueStateChange(csTerminate, nil)
			} else {
				cc.onWaitForCommand()
			}
		case csDispatchCommand:
			cc.onDispatchCommand(event.eventData.(rawRequest))
		}
	}
}

func (cc *clientCxn) onTerminate() {
	cc.cxn.Close()
	cc.table.remove(cc.id)
}

func (cc *clientCxn) onInitialize() {
	cc.queueStateChange(csWaitForCommand, nil)
}

func (cc *clientCxn) onWaitForCommand() {
	// a prior read may have buffered more than one command line
	if req, complete := cc.nextRequest(); complete {
		cc.queueStateChange(csDispatchCommand, req)
		return
	}

	buffer := make([]byte, 1024*8)

	cc.mu.Lock()
	cc.waiting = true
	cc.mu.Unlock()

	n, err := cc.cxn.Read(buffer)

	cc.mu.Lock()
	cc.waiting = false
	cc.mu.Unlock()

	if err != nil {
		if !errors.Is(err, io.EOF) {
			cc.l.Debugf("read error from %s: %s", cc.addr, err)
		} else {
			cc.l.Infof("client disconnected: %s", cc.addr)
			cc.table.markDisconnected(cc.id)
		}
		cc.queueStateChange(csTerminate, nil)
		return
	}

	cc.inbound = append(cc.inbound, buffer[0:n]...)

	cc.l.Tracef("received %d bytes of command data from client", n)

	cc.queueStateChange(csWaitForCommand, nil)
}

// nextRequest extracts the next complete newline-terminated line from
// the inbound buffer. Blank lines carry no command token and are
// skipped. A trailing partial line stays buffered until more data
// arrives.
func (cc *clientCxn) nextRequest() (req rawRequest, complete bool) {
	for {
		eol := -1
		for index, by := range cc.inbound {
			if by == '\n' {
				eol = index
				break
			}
		}
		if eol < 0 {
			return
		}

		line := strings.TrimRight(string(cc.inbound[:eol]), "\r")
		cc.inbound = cc.inbound[eol+1:]

		req = parseRequestLine(line)
		if req.name != "" {
			complete = true
			return
		}
	}
}

func (cc *clientCxn) onDispatchCommand(req rawRequest) {
	cc.l.Tracef("client %d request: %s", cc.id, req.line)

	response, err := cc.disp.dispatchHandler(cc.l, req)
	if err != nil {
		cc.l.Debugf("dispatch error for client %d: %s", cc.id, err)
		response = "Error: " + err.Error()
	}

	if err = cc.send(response); err != nil {
		cc.l.Debugf("write error to %s: %s", cc.addr, err)
		cc.queueStateChange(csTerminate, nil)
		return
	}

	cc.table.touch(cc.id)
	cc.queueStateChange(csWaitForCommand, nil)
}

// send writes the response plus its line terminator in full; net.Conn
// writes are unbuffered, so the response goes out immediately.
func (cc *clientCxn) send(response string) error {
	payload := []byte(response + "\n")

	for len(payload) > 0 {
		n, err := cc.cxn.Write(payload)
		if err != nil {
			return err
		}
		payload = payload[n:]
	}

	return nil
}
