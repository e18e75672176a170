package worker

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/worksonmyai/overseer/internal/debug"
)

const (
	// serverStartupTimeout caps the wait for the spawned server to pass a
	// health check.
	serverStartupTimeout = 30 * time.Second
	healthPollInterval   = 500 * time.Millisecond
)

// ServerOptions configures a spawned opencode server.
type ServerOptions struct {
	Command    string // binary name, defaults to "opencode"
	WorkingDir string
	Model      string   // --model value for the worker
	ExtraArgs  []string // appended to the serve command line
}

// Server is a running opencode serve subprocess.
type Server struct {
	cmd     *exec.Cmd
	pg      *processGroupCleanup
	cancel  chan struct{}
	port    int
	baseURL string
}

// SpawnServer starts `opencode serve` on a free localhost port and waits for
// it to answer health checks. The process runs in its own process group so
// Shutdown can terminate its whole tree.
func SpawnServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	command := opts.Command
	if command == "" {
		command = "opencode"
	}

	port, err := pickPort()
	if err != nil {
		return nil, fmt.Errorf("pick server port: %w", err)
	}

	args := []string{
		"serve",
		"--port", strconv.Itoa(port),
		"--hostname", "127.0.0.1",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)

	debug.Logf("worker: spawning %s %v", command, args)

	cmd := exec.Command(command, args...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	setupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s serve (is it installed and in PATH?): %w", command, err)
	}

	cancel := make(chan struct{})
	s := &Server{
		cmd:     cmd,
		pg:      newProcessGroupCleanup(cmd, cancel),
		cancel:  cancel,
		port:    port,
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
	}

	if err := s.waitReady(ctx); err != nil {
		s.Shutdown()
		return nil, err
	}
	debug.Logf("worker: server ready at %s", s.baseURL)
	return s, nil
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	return s.port
}

// BaseURL returns the server's base URL.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// Shutdown terminates the server's process group and reaps the process.
func (s *Server) Shutdown() {
	select {
	case <-s.cancel:
	default:
		close(s.cancel)
	}
	if err := s.pg.Wait(); err != nil {
		debug.Logf("worker: server exit: %v", err)
	}
}

func (s *Server) waitReady(ctx context.Context) error {
	client := NewClient(s.baseURL)
	deadline := time.Now().Add(serverStartupTimeout)

	for {
		healthCtx, cancel := context.WithTimeout(ctx, healthPollInterval)
		err := client.Health(healthCtx)
		cancel()
		if err == nil {
			return nil
		}
		debug.Logf("worker: server not ready yet: %v", err)

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for server to become healthy: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthPollInterval):
		}
	}
}

// pickPort asks the kernel for a free localhost TCP port.
func pickPort() (int, error) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
