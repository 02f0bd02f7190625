package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kajic/dsms/config"
)

var version = "development"

// dsmsd hosts the engine as a standalone process: it loads a config
// file (spec.md §6's set_config_file), then waits for SIGINT/SIGTERM
// to call stopExecution and exit cleanly. Registering base tables and
// queries (register_base_table/register_query, which need a
// caller-supplied plan.PhysicalOp tree — parsing is out of scope per
// spec.md §1) is an embedding application's job. This binary registers
// none itself: it runs endAppSpecification and beginExecution on an
// empty plan. Being package main, with an unexported *server type, it
// cannot be imported as a library.
//
// Grounded on the teacher's cmd/snellerd/main.go +
// cmd/snellerd/run_daemon.go: flag.NewFlagSet per subcommand-free
// single mode, log.New(os.Stderr, ...) with no logging framework, and
// signal.Notify for graceful stop.
func main() {
	fs := flag.NewFlagSet("dsmsd", flag.ExitOnError)
	configPath := fs.String("c", "", "path to the engine's key=value config file (defaults built in if omitted)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg = config.Defaults()
	}
	if err != nil {
		logger.Fatalf("dsmsd: loading config: %v", err)
	}

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatalf("dsmsd: %v", err)
	}

	if err := srv.endAppSpecification(); err != nil {
		logger.Fatalf("dsmsd: %v", err)
	}
	if err := srv.beginExecution(); err != nil {
		logger.Fatalf("dsmsd: %v", err)
	}
	logger.Printf("dsmsd %s running", version)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if err := srv.stopExecution(); err != nil {
		logger.Fatalf("dsmsd: stopping: %v", err)
	}
	logger.Println("dsmsd stopped")
}
