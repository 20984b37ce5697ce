// Package console is a small line-oriented operator shell for a running
// gridsheetd process: connect with nc or telnet, type commands, see an
// Engine's state without going through the websocket/browser stack. It
// follows the accept-loop-per-connection shape of the teacher's repl.Server,
// but drives an engine.Engine directly instead of a language Evaluator.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"golang.org/x/term"

	"gridsheet/internal/engine"
	"gridsheet/internal/grid"
	"gridsheet/internal/parser"
)

// Server accepts console connections against a single Engine.
type Server struct {
	engine *engine.Engine
	logger *log.Logger
}

func NewServer(e *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{engine: e, logger: logger}
}

// Serve listens on addr (e.g. "localhost:9001") until the listener fails.
func (s *Server) Serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console: listen on %s: %w", addr, err)
	}
	defer listener.Close()

	s.logger.Printf("console: listening on %s", addr)
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("console: accept on %s: %w", addr, err)
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	s.logger.Printf("console: connection from %s", remote)

	fmt.Fprintln(conn, "gridsheetd console")
	fmt.Fprintln(conn, "commands: set <coord> <raw...> | get <coord> | dump | quit")

	scanner := bufio.NewScanner(conn)
	for {
		fmt.Fprint(conn, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.dispatch(conn, line) {
			break
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		s.logger.Printf("console: read error from %s: %v", remote, err)
	}
	s.logger.Printf("console: connection closed from %s", remote)
}

func (s *Server) dispatch(w io.Writer, line string) bool {
	fields := strings.SplitN(line, " ", 3)
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		fmt.Fprintln(w, "bye")
		return false
	case "get":
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: get <coord>")
			return true
		}
		s.cmdGet(w, fields[1])
	case "set":
		if len(fields) < 3 {
			fmt.Fprintln(w, "usage: set <coord> <raw...>")
			return true
		}
		s.cmdSet(w, fields[1], fields[2])
	case "dump":
		s.cmdDump(w)
	default:
		fmt.Fprintf(w, "unknown command %q\n", fields[0])
	}
	return true
}

func (s *Server) cmdGet(w io.Writer, coordLit string) {
	row, col, err := parser.DecodeCoord(coordLit)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	cell, err := s.engine.Get(row, col)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "%s raw=%q out=%v\n", strings.ToUpper(coordLit), cell.Raw, cell.Out)
}

func (s *Server) cmdSet(w io.Writer, coordLit, raw string) {
	row, col, err := parser.DecodeCoord(coordLit)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	cs, err := s.engine.Set(row, col, raw)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "ok, %d cell(s) changed\n", len(cs))
}

func (s *Server) cmdDump(w io.Writer) {
	snapshot := s.engine.Snapshot()
	width := s.engine.Width()
	for i, cell := range snapshot {
		if cell.Raw == "" {
			continue
		}
		coord := grid.CoordAt(i, width)
		fmt.Fprintf(w, "%s raw=%q out=%v\n", coord.A1(), cell.Raw, cell.Out)
	}
}

// Attach connects to a running console at addr and proxies the local
// terminal to it, putting stdin in raw mode when both ends are real TTYs so
// line editing and Ctrl+C behave as the operator expects.
func Attach(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("console: dial %s: %w", addr, err)
	}
	defer conn.Close()

	restore, rawEnabled := enableRawMode(os.Stdin, os.Stdout)
	if rawEnabled {
		defer restore()
	}

	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(os.Stdout, conn)
		done <- err
	}()
	go func() {
		_, err := io.Copy(conn, os.Stdin)
		done <- err
	}()

	if err := <-done; err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("console: session ended: %w", err)
	}
	return nil
}

func enableRawMode(stdin, stdout *os.File) (func() error, bool) {
	if !term.IsTerminal(int(stdin.Fd())) || !term.IsTerminal(int(stdout.Fd())) {
		return nil, false
	}
	state, err := term.MakeRaw(int(stdin.Fd()))
	if err != nil {
		return nil, false
	}
	return func() error {
		return term.Restore(int(stdin.Fd()), state)
	}, true
}
