package project

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/daydemir/ralph-agent/internal/config"
	"github.com/daydemir/ralph-agent/internal/display"
	"github.com/daydemir/ralph-agent/internal/utils"
)

// Readiness and shutdown tuning
const (
	DefaultReadyAttempts = 30
	DefaultReadyInterval = time.Second
	DefaultStopGrace     = 5 * time.Second
)

// restartPause separates Stop and Start in Restart
var restartPause = 2 * time.Second

// Server manages the project's dev server process
type Server struct {
	Root   string
	Config config.ServerConfig
	// URL is polled for readiness; defaults to Config.URL()
	URL       string
	Attempts  int
	Interval  time.Duration
	StopGrace time.Duration
	Client    *http.Client
	Logger    *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewServer returns a Server for cfg rooted at the repository root
func NewServer(root string, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = display.Discard()
	}
	return &Server{
		Root:      root,
		Config:    cfg,
		URL:       cfg.URL(),
		Attempts:  DefaultReadyAttempts,
		Interval:  DefaultReadyInterval,
		StopGrace: DefaultStopGrace,
		Client:    &http.Client{Timeout: 5 * time.Second},
		Logger:    display.Named(logger, "project"),
	}
}

func (s *Server) workDir() string {
	return filepath.Join(s.Root, s.Config.WorkingDir)
}

// Start installs dependencies, launches the start command and waits until
// the readiness URL answers 200
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return errors.New("server already running")
	}

	s.Logger.Info("Starting backend server...")
	if err := s.install(ctx); err != nil {
		return err
	}

	fields := strings.Fields(s.Config.StartCommand)
	if len(fields) == 0 {
		return errors.New("server start_command is empty")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = s.workDir()
	utils.SetProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach server stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach server stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server %q: %w", s.Config.StartCommand, err)
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go s.drain(stdout, "stdout", &pipes)
	go s.drain(stderr, "stderr", &pipes)

	done := make(chan struct{})
	go func() {
		pipes.Wait()
		_ = cmd.Wait()
		close(done)
	}()
	s.cmd, s.done = cmd, done

	if err := s.waitReady(ctx, done); err != nil {
		_ = utils.KillProcessGroup(cmd)
		<-done
		s.cmd, s.done = nil, nil
		return err
	}
	s.Logger.Info("Backend server is ready")
	return nil
}

func (s *Server) install(ctx context.Context) error {
	fields := strings.Fields(s.Config.InstallCommand)
	if len(fields) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = s.workDir()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("server install command %q failed: %w: %s",
			s.Config.InstallCommand, err, utils.Truncate(strings.TrimSpace(string(out)), 500))
	}
	return nil
}

func (s *Server) drain(r io.Reader, label string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); strings.TrimSpace(line) != "" {
			s.Logger.Debug(fmt.Sprintf("[server %s] %s", label, line))
		}
	}
}

func (s *Server) waitReady(ctx context.Context, exited <-chan struct{}) error {
	failure := fmt.Errorf("Backend server failed to start within %d seconds. Check %s/%s for errors.",
		int((time.Duration(s.Attempts) * s.Interval).Seconds()), s.Config.WorkingDir, s.Config.StartCommand)

	for i := 0; i < s.Attempts; i++ {
		if s.ready(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return failure
		case <-time.After(s.Interval):
		}
	}
	return failure
}

func (s *Server) ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return false
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Stop terminates the server, escalating to a kill after the grace period.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return
	}

	select {
	case <-s.done:
	default:
		_ = utils.TerminateProcessGroup(s.cmd)
		select {
		case <-s.done:
		case <-time.After(s.StopGrace):
			_ = utils.KillProcessGroup(s.cmd)
			<-s.done
		}
		s.Logger.Info("Backend server stopped")
	}
	s.cmd, s.done = nil, nil
}

// Restart stops the server, pauses, and starts it again
func (s *Server) Restart(ctx context.Context) error {
	s.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(restartPause):
	}
	return s.Start(ctx)
}

// Running reports whether a started server has not exited
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
