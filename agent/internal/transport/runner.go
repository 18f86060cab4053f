package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Runner executes a command on the host running Open vSwitch.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	Close() error
}

// =============================================================================
// LOCAL
// =============================================================================

// LocalRunner runs commands on this host.
type LocalRunner struct{}

// Run executes the command and returns its standard output.
func (LocalRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}

// Close is a no-op.
func (LocalRunner) Close() error { return nil }

// =============================================================================
// SSH
// =============================================================================

// SSHConfig holds SSH connection configuration.
type SSHConfig struct {
	Host     string
	Port     int
	Username string
	// One of these must be provided
	Password   string
	PrivateKey []byte
	// Connection settings
	Timeout time.Duration
}

// SSHRunner runs commands on a remote host over one SSH connection.
// The connection is dialed on first use and redialed after it fails.
type SSHRunner struct {
	cfg  SSHConfig
	auth []ssh.AuthMethod

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHRunner validates cfg and prepares a runner. It does not dial.
func NewSSHRunner(cfg SSHConfig) (*SSHRunner, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}

	// Build auth methods
	var authMethods []ssh.AuthMethod
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method provided")
	}

	return &SSHRunner{cfg: cfg, auth: authMethods}, nil
}

func (r *SSHRunner) connect(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	sshConfig := &ssh.ClientConfig{
		User:            r.cfg.Username,
		Auth:            r.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: verify against a configured known_hosts file
		Timeout:         r.cfg.Timeout,
	}

	address := net.JoinHostPort(r.cfg.Host, fmt.Sprint(r.cfg.Port))

	// Use context for timeout
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}

	// Perform SSH handshake
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}

	r.client = ssh.NewClient(sshConn, chans, reqs)
	return r.client, nil
}

// drop discards a broken connection so the next Run redials.
func (r *SSHRunner) drop(c *ssh.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == c {
		r.client.Close()
		r.client = nil
	}
}

// Run executes the command remotely and returns its standard output.
func (r *SSHRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		r.drop(client)
		return "", fmt.Errorf("creating session: %w", err)
	}
	defer session.Close()

	// Capture output
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(commandLine(name, args))
	}()

	// Wait for completion or context cancellation
	select {
	case err := <-done:
		if err != nil {
			if stderr.Len() > 0 {
				return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
			}
			return stdout.String(), err
		}
		return stdout.String(), nil
	case <-ctx.Done():
		session.Signal(ssh.SIGTERM)
		return "", ctx.Err()
	}
}

// Close closes the SSH connection.
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// commandLine joins a command for a remote shell, quoting where needed.
func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{name}, args...) {
		if shellSafe.MatchString(a) {
			parts = append(parts, a)
			continue
		}
		parts = append(parts, "'"+strings.ReplaceAll(a, "'", `'\''`)+"'")
	}
	return strings.Join(parts, " ")
}
