// Package server exposes the text command channel over TCP: one
// UTF-8 command per line in, one response per command out. The wire
// format is the protocol's own human-readable form, so the channel
// works equally from scripts and an interactive netcat session.
package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/protocol"
)

// Server accepts command-channel connections and dispatches lines
// through the protocol handler
type Server struct {
	handler *protocol.Handler
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// New creates a server around the given protocol handler
func New(handler *protocol.Handler) *Server {
	return &Server{
		handler: handler,
		logger:  log.WithComponent("server"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start begins listening on the given address and serves connections
// until Stop is called
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		listener.Close()
		return fmt.Errorf("server already stopped")
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Command channel listening")

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the bound listener address, or empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and all active connections
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Command channel stopped")
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return // listener closed
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		response := s.handleLine(line)
		if _, err := writer.WriteString(response + "\n"); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

// handleLine processes one command line. "help" is served from the
// pattern registry; everything else goes through parse, validate,
// and execute.
func (s *Server) handleLine(line string) string {
	fields := strings.Fields(line)
	if fields[0] == "help" {
		if len(fields) >= 3 {
			return s.handler.Help(fields[1], fields[2])
		}
		return s.handler.Help("", "")
	}

	cmd, err := s.handler.Parse(line)
	if err != nil {
		return fmt.Sprintf("[FAILED] %v", err)
	}

	result := s.handler.Execute(cmd)
	return result.ResponseString()
}
