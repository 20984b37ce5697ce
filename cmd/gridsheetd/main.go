package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"gridsheet/internal/bus"
	"gridsheet/internal/console"
	"gridsheet/internal/engine"
	"gridsheet/internal/grid"
	"gridsheet/internal/hub"
	"gridsheet/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	switch sub {
	case "-h", "--help", "help":
		usage()
		return
	case "serve":
		os.Exit(serveCommand(os.Args[2:]))
	case "console":
		os.Exit(consoleCommand(os.Args[2:]))
	case "attach":
		os.Exit(attachCommand(os.Args[2:]))
	case "migrate":
		os.Exit(migrateCommand(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  gridsheetd <command> [arguments]\n")
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  serve [-addr :8080]        start the websocket + HTTP server\n")
	fmt.Fprintf(os.Stderr, "  console [-console-addr localhost:9001]  start the operator console\n")
	fmt.Fprintf(os.Stderr, "  attach <host:port>         attach a local terminal to a running console\n")
	fmt.Fprintf(os.Stderr, "  migrate                    create the sheet_cells table and exit\n")
	fmt.Fprintf(os.Stderr, "  help                       show this help message\n")
}

type config struct {
	addr        string
	consoleAddr string
	busAddr     string
	width       int
	height      int
	sheetID     int
	databaseURL string
}

func loadConfig(fs *flag.FlagSet, args []string, defaultAddr string) (*config, error) {
	c := &config{}
	fs.StringVar(&c.addr, "addr", defaultAddr, "address to listen on")
	fs.StringVar(&c.consoleAddr, "console-addr", envOr("GRIDSHEET_CONSOLE_ADDR", "localhost:9001"), "operator console address")
	fs.StringVar(&c.busAddr, "bus-addr", envOr("GRIDSHEET_BUS_ADDR", ""), "ZeroMQ PUB address this process publishes ChangeSets to other gridsheetd processes on (empty disables the bus)")
	fs.IntVar(&c.width, "width", 26, "grid width in columns")
	fs.IntVar(&c.height, "height", 100, "grid height in rows")
	fs.IntVar(&c.sheetID, "sheet-id", 1, "sheet identifier used for persistence and bus topics")
	fs.StringVar(&c.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres DSN; empty runs with an in-memory store")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func serveCommand(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c, err := loadConfig(fs, args, envOr("GRIDSHEET_ADDR", ":8080"))
	if err != nil {
		return 2
	}

	logger := log.New(os.Stderr, "gridsheetd: ", log.LstdFlags)
	ctx := context.Background()

	st, err := openStore(ctx, c.databaseURL)
	if err != nil {
		logger.Printf("store: %v", err)
		return 1
	}
	defer st.Close()

	e := engine.New(c.width, c.height)
	if err := store.Replay(ctx, st, c.sheetID, e); err != nil {
		logger.Printf("replay: %v", err)
		return 1
	}

	srv := hub.NewServer(e, logger)

	var pub *bus.Publisher
	if c.busAddr != "" {
		pub, err = bus.NewPublisher(c.busAddr)
		if err != nil {
			logger.Printf("bus: %v", err)
			return 1
		}
		defer pub.Close()
		logger.Printf("publishing changesets to %s", c.busAddr)
	}

	srv.Hub().OnUpdate(func(row, col int, raw string, cs engine.ChangeSet) {
		if err := st.Save(ctx, c.sheetID, row, col, raw); err != nil {
			logger.Printf("persist (%d,%d): %v", row, col, err)
		}
		if pub == nil || len(cs) == 0 {
			return
		}
		env := bus.Envelope{SheetID: c.sheetID, Cells: make([]bus.CellChange, 0, len(cs))}
		for idx, cell := range cs {
			coord := grid.CoordAt(idx, e.Width())
			out, err := bus.MarshalResult(cell.Out)
			if err != nil {
				logger.Printf("bus: marshal cell %d: %v", idx, err)
				continue
			}
			env.Cells = append(env.Cells, bus.CellChange{Row: coord.Row, Col: coord.Col, Raw: cell.Raw, Out: out})
		}
		if err := pub.Publish(env); err != nil {
			logger.Printf("bus: publish: %v", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{Addr: c.addr, Handler: srv.Handler()}
	g.Go(func() error {
		logger.Printf("serving http+ws on %s", c.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		cons := console.NewServer(e, logger)
		if err := cons.Serve(c.consoleAddr); err != nil {
			return fmt.Errorf("console server: %w", err)
		}
		return nil
	})

	go func() {
		<-gctx.Done()
		httpServer.Close()
	}()

	if err := g.Wait(); err != nil {
		logger.Printf("%v", err)
		return 1
	}
	return 0
}

func consoleCommand(args []string) int {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	c, err := loadConfig(fs, args, envOr("GRIDSHEET_ADDR", ":8080"))
	if err != nil {
		return 2
	}

	logger := log.New(os.Stderr, "gridsheetd: ", log.LstdFlags)
	e := engine.New(c.width, c.height)
	cons := console.NewServer(e, logger)
	if err := cons.Serve(c.consoleAddr); err != nil {
		logger.Printf("%v", err)
		return 1
	}
	return 0
}

func attachCommand(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: gridsheetd attach <host:port>")
		return 2
	}
	if err := console.Attach(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "attach: %v\n", err)
		return 1
	}
	return 0
}

func migrateCommand(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	c, err := loadConfig(fs, args, "")
	if err != nil {
		return 2
	}
	if c.databaseURL == "" {
		fmt.Fprintln(os.Stderr, "migrate requires -database-url or DATABASE_URL")
		return 2
	}

	ctx := context.Background()
	st, err := store.NewPostgresStore(ctx, c.databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	st.Close()
	fmt.Println("migration complete")
	return 0
}

func openStore(ctx context.Context, databaseURL string) (store.Store, error) {
	if databaseURL == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, databaseURL)
}
