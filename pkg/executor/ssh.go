package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const sshRetryInterval = 2 * time.Second

// SSH executes commands on a remote host via SSH.
// It maintains a persistent connection that can be reused across multiple Execute calls.
type SSH struct {
	client *ssh.Client
	host   string
	logger *slog.Logger
}

// SSHConfig contains SSH connection parameters.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	// KnownHostsPath enables host key verification. Freshly booted boxes
	// generate new host keys, so it is empty by default.
	KnownHostsPath string
}

// DialSSH connects to the host, retrying until the SSH daemon answers or
// ctx is done.
func DialSSH(ctx context.Context, config SSHConfig, logger *slog.Logger) (*SSH, error) {
	log := logger.With(slog.String("executor", "ssh"), slog.String("host", config.Host))

	clientConfig, err := clientConfig(config)
	if err != nil {
		return nil, err
	}

	port := config.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(config.Host, strconv.Itoa(port))

	log.Debug("establishing SSH connection", slog.String("addr", addr))

	client, err := retry.DoWithData(
		func() (*ssh.Client, error) {
			return dial(ctx, addr, clientConfig)
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(sshRetryInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.Debug("SSH not reachable yet",
				slog.String("addr", addr),
				slog.Uint64("attempt", uint64(attempt)+1),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	log.Debug("SSH connection established", slog.String("addr", addr))
	return &SSH{
		client: client,
		host:   config.Host,
		logger: log,
	}, nil
}

// Close closes the SSH connection.
func (e *SSH) Close() error {
	if e.client != nil {
		e.logger.Debug("closing SSH connection")
		return e.client.Close()
	}
	return nil
}

func (e *SSH) Name() string {
	return fmt.Sprintf("ssh-%s", e.host)
}

func (e *SSH) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	cmdStr := buildCommandString(command, args)
	e.logger.Debug("executing command via SSH", slog.Int("cmd_bytes", len(cmdStr)))

	session, err := e.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdStr) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return -1, fmt.Errorf("command execution cancelled: %w", ctx.Err())
	case err = <-done:
	}

	if err == nil {
		e.logger.Debug("SSH command succeeded")
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		exitCode := exitErr.ExitStatus()
		e.logger.Warn("SSH command failed", slog.Int("exit_code", exitCode))
		return exitCode, fmt.Errorf("command exited with code %d: %w", exitCode, err)
	}

	e.logger.Error("SSH command execution error", slog.String("error", err.Error()))
	return -1, fmt.Errorf("command execution failed: %w", err)
}

func clientConfig(config SSHConfig) (*ssh.ClientConfig, error) {
	keyPath, err := expandHome(config.KeyPath)
	if err != nil {
		return nil, err
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHostsPath != "" {
		knownHostsPath, err := expandHome(config.KnownHostsPath)
		if err != nil {
			return nil, err
		}
		hostKeyCallback, err = knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", knownHostsPath, err)
		}
	}

	return &ssh.ClientConfig{
		User: config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, nil
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(c, chans, reqs), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
