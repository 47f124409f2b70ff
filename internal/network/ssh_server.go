// Package network accepts command streams over SSH.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"

	"github.com/tleino/xin/internal/logger"
	"github.com/tleino/xin/internal/receiver"
)

// StreamHandler consumes one command stream.
type StreamHandler interface {
	Run(ctx context.Context, in io.Reader) error
}

// SSHServer feeds the stdin of every SSH session to a StreamHandler. Sessions
// are admitted one at a time; later ones wait until the active stream ends.
type SSHServer struct {
	addr         string
	hostKeyPath  string
	authKeysPath string
	handler      StreamHandler
	sshServer    *ssh.Server
	listener     net.Listener

	// Serialises command streams
	streamMu sync.Mutex

	// Lifecycle
	fatal    chan error
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	OnSessionStart func(addr, fingerprint string)
	OnSessionEnd   func(addr string, err error)
}

// NewSSHServer creates a new SSH server
func NewSSHServer(addr, hostKeyPath, authKeysPath string, handler StreamHandler) *SSHServer {
	return &SSHServer{
		addr:         addr,
		hostKeyPath:  hostKeyPath,
		authKeysPath: authKeysPath,
		handler:      handler,
		fatal:        make(chan error, 1),
		stop:         make(chan struct{}),
	}
}

// Start begins listening for SSH connections
func (s *SSHServer) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(s.addr),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			s.sessionHandler(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.sshServer = server
	s.listener = l

	al := &acceptListener{Listener: l, accepting: make(chan struct{})}
	served := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := server.Serve(al)
		if err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Errorf("SSH server error: %v", err)
			s.fail(err)
		}
		served <- err
	}()

	// Serve registers the listener with the server before its first Accept
	select {
	case <-al.accepting:
	case err := <-served:
		l.Close()
		return fmt.Errorf("SSH server failed to start: %w", err)
	}
	logger.Infof("SSH server listening on %s", l.Addr())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stop:
		}
	}()

	return nil
}

// Addr returns the listening address once Start has succeeded
func (s *SSHServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Wait blocks until ctx is done or a stream hits a fatal error, then stops
// the server. The fatal error is returned.
func (s *SSHServer) Wait(ctx context.Context) error {
	var err error
	select {
	case <-ctx.Done():
	case err = <-s.fatal:
	}
	s.Stop()
	return err
}

// Stop shuts down the SSH server
func (s *SSHServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)

		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.sshServer.Shutdown(ctx)
		}
		// Shutdown only closes listeners Serve has registered
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debugf("Closing SSH listener: %v", err)
			}
		}

		s.wg.Wait()
	})
}

func (s *SSHServer) fail(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// acceptListener reports the first call to Accept
type acceptListener struct {
	net.Listener
	once      sync.Once
	accepting chan struct{}
}

func (l *acceptListener) Accept() (net.Conn, error) {
	l.once.Do(func() { close(l.accepting) })
	return l.Listener.Accept()
}

// publicKeyAuth accepts keys listed in the authorized_keys file. The file is
// read on every attempt so edits apply without a restart.
func (s *SSHServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	addr := ctx.RemoteAddr().String()

	keys, err := LoadAuthorizedKeys(s.authKeysPath)
	if err != nil {
		logger.Warnf("SSH key denied, cannot read authorized keys: %v", err)
		return false
	}

	for _, k := range keys {
		if ssh.KeysEqual(key, k) {
			logger.Debugf("SSH key accepted addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)
			return true
		}
	}

	logger.Infof("SSH key denied addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)
	return false
}

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file
func LoadAuthorizedKeys(path string) ([]gossh.PublicKey, error) {
	if path == "" {
		return nil, errors.New("no authorized keys file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var keys []gossh.PublicKey
	for len(data) > 0 {
		key, _, _, rest, err := gossh.ParseAuthorizedKey(data)
		if err != nil {
			// Only comments and blank lines remain
			break
		}
		keys = append(keys, key)
		data = rest
	}
	return keys, nil
}

// loggingMiddleware provides custom logging using our internal logger
func (s *SSHServer) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("SSH session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

// sessionHandler runs the session's stdin through the stream handler
func (s *SSHServer) sessionHandler() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			addr := sess.RemoteAddr().String()
			var fingerprint string
			if sess.PublicKey() != nil {
				fingerprint = gossh.FingerprintSHA256(sess.PublicKey())
			}

			if !s.streamMu.TryLock() {
				logger.Infof("Session waiting for the active stream to end addr=%s", addr)
				s.streamMu.Lock()
			}
			err := s.serve(sess, addr, fingerprint)
			s.streamMu.Unlock()

			if s.OnSessionEnd != nil {
				s.OnSessionEnd(addr, err)
			}
			h(sess)
		}
	}
}

func (s *SSHServer) serve(sess ssh.Session, addr, fingerprint string) error {
	select {
	case <-s.stop:
		_ = sess.Exit(1)
		return ssh.ErrServerClosed
	default:
	}

	logger.Infof("Command stream opened addr=%s key=%s", addr, fingerprint)
	if s.OnSessionStart != nil {
		s.OnSessionStart(addr, fingerprint)
	}

	err := s.handler.Run(sess.Context(), sess)
	switch {
	case err == nil:
		logger.Infof("Command stream closed addr=%s", addr)
		_ = sess.Exit(0)
	case errors.Is(err, receiver.ErrRead), errors.Is(err, context.Canceled):
		logger.Warnf("Command stream failed addr=%s: %v", addr, err)
		fmt.Fprintln(sess.Stderr(), err)
		_ = sess.Exit(1)
	default:
		logger.Errorf("Command stream aborted addr=%s: %v", addr, err)
		fmt.Fprintln(sess.Stderr(), err)
		_ = sess.Exit(1)
		if receiver.IsFatal(err) {
			s.fail(err)
		}
	}
	return err
}
