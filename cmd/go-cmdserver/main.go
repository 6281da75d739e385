package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/jimsnab/go-cmdline"
	cmdserver "github.com/jimsnab/go-cmdserver"
	"github.com/jimsnab/go-lane"
	"golang.org/x/term"
)

type (
	serverConfig struct {
		Port     int    `env:"CMDSERVER_PORT"`
		Endpoint string `env:"CMDSERVER_ENDPOINT"`
		Trace    bool   `env:"CMDSERVER_TRACE"`
	}

	serverApp struct {
		l   lane.Lane
		cfg serverConfig
		srv cmdserver.CmdServer
	}
)

func main() {
	cl := cmdline.NewCommandLine()

	cl.RegisterCommand(
		mainHandler,
		"~?Runs a simple line-oriented command server.",
		"[--trace]?Enable trace logging",
		"[--port <int-port>]?Specify the TCP port to listen on. The default is 6770.",
		"[--endpoint <string-interface>]?Specify the network interface to listen on. The default is all network interfaces.",
	)

	args := os.Args[1:] // exclude executable name in os.Args[0]
	err := cl.Process(args)
	if err != nil {
		cl.Help(err, "go-cmdserver", args)
	}
}

func mainHandler(args cmdline.Values) error {
	app := serverApp{}

	// environment variables provide defaults; command line args win
	if err := env.Parse(&app.cfg); err != nil {
		return err
	}

	if args["--trace"].(bool) {
		app.cfg.Trace = true
	}
	if port := args["port"].(int); port != 0 {
		app.cfg.Port = port
	}
	if iface := args["interface"].(string); iface != "" {
		app.cfg.Endpoint = iface
	}

	app.start()
	app.srv.WaitForTermination()
	app.l.Info("finished serving requests")

	return nil
}

func (app *serverApp) start() {
	app.l = lane.NewLogLane(context.Background())

	fmt.Printf("\n\nCommand server is now running\n\nPress any key to quit\n\n")

	if !app.cfg.Trace {
		app.l.SetLogLevel(lane.LogLevelInfo)
	}

	app.srv = cmdserver.NewCmdServer(app.l)

	app.killSignalMonitor()
	app.exitKeyMonitor()

	// binding failure is fatal; report it to the operator before any
	// connection is accepted
	if err := app.srv.StartServer(app.cfg.Endpoint, app.cfg.Port); err != nil {
		fmt.Println("Error listening: ", err.Error())
		os.Exit(1)
	}
}

func (app *serverApp) killSignalMonitor() {
	// register a graceful termination handler
	sigs := make(chan os.Signal, 10)
	signal.Notify(sigs, os.Interrupt)

	go func() {
		sig := <-sigs
		app.l.Infof("termination %s signaled for %s", sig, app.srv.ServerAddr())
		app.srv.StopServer()
	}()
}

func (app *serverApp) exitKeyMonitor() {
	// Start a go routine to detect a keypress. Upon termination
	// triggered another way, this goroutine will leak. Go does
	// not give a reasonable way to cancel a blocking I/O call.
	go func() {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			fmt.Println(err)
			return
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)

		b := make([]byte, 1)
		_, err = os.Stdin.Read(b)
		if err == nil {
			app.srv.StopServer()
		}
	}()
}
