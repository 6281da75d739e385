package cmdserver

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/jimsnab/go-lane"
)

type (
	mainEngine struct {
		mu          sync.Mutex
		started     bool
		l           lane.Lane
		server      net.Listener
		table       *connTable
		dispatcher  *cmdDispatcher
		canExit     chan struct{}
		terminating bool
		port        int
		iface       string
	}

	CmdServer interface {
		// Starts a socket server using the specified network interface
		// and port.
		//
		// If endpoint is "", the server will listen on all network interfaces.
		// If port is 0, the server will listen on port 6770.
		//
		// The wire protocol is newline-terminated UTF-8 text. A request
		// line is a command name followed by whitespace-delimited
		// arguments:
		//
		// "<cmdname> [arg] [arg]\n"
		//
		// Command names are case-insensitive. Each request produces one
		// response: the handler's result text, or "Error: <message>" when
		// the command is unknown, not implemented, or fails argument
		// validation. The response always ends with a single "\n".
		StartServer(endpoint string, port int) error

		// Initiates server termination, if it is running.
		StopServer() error

		// Waits for the server to stop
		WaitForTermination()

		// Returns the server address
		ServerAddr() string

		// Returns a snapshot of the tracked connections
		ActiveConnections() []ConnInfo

		// Adds a command to the dispatch table; must be called before
		// StartServer
		RegisterCommand(handler CommandHandler) error

		// Declares a command name whose handler is not implemented yet;
		// dispatching to it reports ErrNotImplemented
		RegisterPlaceholder(name string) error

		// Send a raw command line without a socket
		Dispatch(commandLine string) (string, error)
	}
)

func NewCmdServer(l lane.Lane) CmdServer {
	return &mainEngine{
		l:          l,
		table:      newConnTable(),
		dispatcher: newCmdDispatcher(),
	}
}

func (eng *mainEngine) StartServer(endpoint string, port int) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.started {
		return fmt.Errorf("already started")
	}

	if port != 0 {
		eng.port = port
	} else {
		eng.port = 6770
	}

	if endpoint != "" {
		eng.iface = endpoint
	}

	eng.canExit = make(chan struct{})

	err := eng.startServer()
	if err != nil {
		return err
	}
	eng.started = true

	return nil
}

func (eng *mainEngine) StopServer() error {
	// ensure only one termination
	eng.mu.Lock()
	if !eng.started {
		eng.mu.Unlock()
		return fmt.Errorf("not started")
	}

	isTerminating := eng.terminating
	eng.terminating = true
	eng.mu.Unlock()

	if !isTerminating {
		go func() { eng.onTerminate() }()
	}

	return nil
}

func (eng *mainEngine) onTerminate() {
	if eng.server != nil {
		// close the server and wait for all active connections to finish
		eng.l.Tracef("closing server")
		eng.server.Close()

		eng.l.Infof("waiting for any open request connections to complete")
		eng.table.requestCloseAll()
		eng.table.waitForDrain()
		eng.l.Infof("termination of %s completed", eng.server.Addr().String())
	}

	eng.canExit <- struct{}{}
}

func (eng *mainEngine) startServer() error {
	// establish socket service
	var err error

	if eng.iface == "" {
		eng.iface = fmt.Sprintf(":%d", eng.port)
	} else {
		eng.iface = fmt.Sprintf("%s:%d", eng.iface, eng.port)
	}

	eng.server, err = net.Listen("tcp", eng.iface)
	if err != nil {
		eng.l.Errorf("error listening: %s", err.Error())
		return err
	}
	eng.l.Infof("listening on %s", eng.server.Addr().String())

	go func() {
		// accept connections and process commands
		for {
			connection, err := eng.server.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					break
				}
				// a failed accept must not take down the other
				// connections; log it and keep accepting
				eng.l.Errorf("accept error: %s", err)
				continue
			}
			eng.onConnection(connection)
		}
	}()

	return nil
}

// onConnection registers the accepted socket and spawns its session. A
// problem setting up this one connection is logged and discarded
// without disturbing the accept loop.
func (eng *mainEngine) onConnection(connection net.Conn) {
	peer := connection.RemoteAddr()
	if peer == nil {
		eng.l.Errorf("cannot resolve peer address; dropping connection")
		connection.Close()
		return
	}

	id := eng.table.register(peer.String())
	eng.l.Infof("client %d connected: %s", id, peer.String())
	newClientCxn(eng.l, connection, eng.dispatcher, eng.table, id)
}

func (eng *mainEngine) WaitForTermination() {
	// wait for server to quiesque
	<-eng.canExit
	eng.l.Info("finished serving requests")
}

func (eng *mainEngine) ServerAddr() string {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.server == nil {
		return ""
	}

	return eng.server.Addr().String()
}

func (eng *mainEngine) ActiveConnections() []ConnInfo {
	return eng.table.snapshot()
}

func (eng *mainEngine) RegisterCommand(handler CommandHandler) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.started {
		return fmt.Errorf("cannot register commands after start")
	}

	return eng.dispatcher.register(handler)
}

func (eng *mainEngine) RegisterPlaceholder(name string) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.started {
		return fmt.Errorf("cannot register commands after start")
	}

	return eng.dispatcher.registerPlaceholder(name)
}

func (eng *mainEngine) Dispatch(commandLine string) (string, error) {
	return eng.dispatcher.dispatchHandler(eng.l, parseRequestLine(commandLine))
}
