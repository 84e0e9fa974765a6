package comfy

import (
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// ServerProcess is an exclusively-owned ComfyUI server subprocess. The
// orchestrator is its sole owner and the only component allowed to stop it.
type ServerProcess struct {
	cmd         *exec.Cmd
	waitCh      chan error
	stopTimeout time.Duration
	logger      *slog.Logger
}

// ServerOptions configures the spawned server.
type ServerOptions struct {
	PythonPath  string
	ComfyDir    string
	ListenAddr  string
	StopTimeout time.Duration
}

// StartServer launches the server in its own session, detached from the
// caller's terminal, with output discarded.
func StartServer(opts ServerOptions, logger *slog.Logger) (*ServerProcess, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}

	cmd := exec.Command(opts.PythonPath, "main.py", "--listen", opts.ListenAddr)
	cmd.Dir = opts.ComfyDir
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	logger.Info("starting server", "python", opts.PythonPath, "dir", opts.ComfyDir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}

	p := &ServerProcess{
		cmd:         cmd,
		waitCh:      make(chan error, 1),
		stopTimeout: opts.StopTimeout,
		logger:      logger,
	}
	go func() {
		p.waitCh <- cmd.Wait()
	}()
	return p, nil
}

// Stop terminates the server: graceful signal first, bounded wait, forceful
// kill on timeout. Failures are logged, never returned; stopping must not
// block run termination.
func (p *ServerProcess) Stop() {
	p.logger.Info("stopping server", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.logger.Warn("signal server", "error", err)
	}
	select {
	case err := <-p.waitCh:
		if err != nil {
			p.logger.Debug("server exited", "error", err)
		}
	case <-time.After(p.stopTimeout):
		p.logger.Warn("server did not stop gracefully, killing", "timeout", p.stopTimeout)
		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.Warn("kill server", "error", err)
		}
		<-p.waitCh
	}
	p.logger.Info("server stopped")
}
