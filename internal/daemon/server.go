package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/logger"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

// Client is one authenticated socket connection.
type Client struct {
	Account string
	ConnID  string

	conn net.Conn
	mu   sync.Mutex // serialises frame writes
}

// send writes one frame to the client. Write failures are returned so
// the read loop can tear the connection down.
func (c *Client) send(v any) error {
	data, err := protocol.EncodeFrame(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// Server accepts connections on the hub socket and runs the per-client
// read loops.
type Server struct {
	state      *State
	dispatcher *Dispatcher
	listener   net.Listener

	wg sync.WaitGroup
}

// NewServer creates a Server over an already-built State.
func NewServer(state *State) *Server {
	return &Server{state: state, dispatcher: NewDispatcher(state)}
}

// SocketPath returns the hub socket path under the base dir.
func (s *Server) SocketPath() string {
	return filepath.Join(s.state.BaseDir, "hub.sock")
}

// Listen binds the UNIX socket, replacing a stale socket file left by a
// previous run.
func (s *Server) Listen() error {
	path := s.SocketPath()
	if err := os.MkdirAll(s.state.BaseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir base dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		// Refuse to steal a live socket; remove only a dead one.
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return fmt.Errorf("daemon already running on %s", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("bind %s: %w", path, err)
	}
	s.listener = ln
	slog.Info("listening", "socket", path)
	return nil
}

// Serve accepts connections until ctx is cancelled, then drains.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

// handleConn authenticates the first frame and then feeds the
// dispatcher until the peer goes away.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := domain.NewID()[:8]
	ctx, cancel := context.WithCancel(logger.WithConnID(ctx, connID))
	defer cancel()

	client := &Client{ConnID: connID, conn: conn}
	var framer protocol.Framer
	buf := make([]byte, 32*1024)
	authed := false

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Debug("connection read failed", "conn", connID, "error", err)
			}
			break
		}
		frames, ferr := framer.Feed(buf[:n])
		for _, frame := range frames {
			if !authed {
				ok, fatal := s.handshake(ctx, client, frame)
				if fatal {
					return
				}
				authed = ok
				continue
			}
			if err := s.dispatcher.Dispatch(ctx, client, frame); err != nil {
				// Write failure: the peer is gone, discard the reply.
				slog.Debug("reply write failed", "conn", connID, "error", err)
				goto done
			}
		}
		if ferr != nil {
			// Framing violations close the connection.
			slog.Warn("framing error", "conn", connID, "error", ferr)
			_ = client.send(protocol.ErrorResponse{Type: protocol.TypeError, Error: "Framing error"})
			break
		}
	}
done:
	if authed {
		s.state.conns.remove(client)
		s.state.RecordConnectionEvent(context.Background(), client.Account, "account_disconnected")
		slog.Info("account disconnected", "account", client.Account, "conn", connID)
	}
}

// handshake processes the first frame: an auth request, or a bare ping
// which is the only request an unauthenticated socket may make.
// It returns (authenticated, fatal).
func (s *Server) handshake(ctx context.Context, client *Client, frame json.RawMessage) (bool, bool) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		_ = client.send(protocol.ErrorResponse{Type: protocol.TypeError, Error: "Invalid message"})
		return false, true
	}

	if env.Type == protocol.TypePing {
		_ = client.send(map[string]string{"type": protocol.TypePong})
		return false, false
	}
	if env.Type != protocol.TypeAuth {
		_ = client.send(protocol.ErrorResponse{Type: protocol.TypeError, Error: "Authentication required"})
		return false, true
	}

	if err := s.authenticate(env.Account, env.Token); err != nil {
		slog.Warn("auth failed", "account", env.Account, "error", err)
		_ = client.send(protocol.ErrorResponse{Type: protocol.TypeError, Error: "Authentication failed"})
		return false, true
	}

	client.Account = env.Account
	s.state.conns.add(client)
	s.state.RecordConnectionEvent(ctx, env.Account, "account_connected")
	slog.Info("account connected", "account", env.Account, "conn", client.ConnID)

	if err := client.send(map[string]string{"type": protocol.TypeAuthOK}); err != nil {
		return false, true
	}
	return true, false
}

// authenticate compares the presented token with tokens/<account>.token
// in constant time.
func (s *Server) authenticate(account, token string) error {
	if account == "" || token == "" {
		return errors.New("account and token are required")
	}
	if strings.ContainsAny(account, "/\\") || strings.Contains(account, "..") {
		return errors.New("invalid account name")
	}
	if _, ok := s.state.Holder.Get().Account(account); !ok {
		return fmt.Errorf("unknown account %q", account)
	}

	data, err := os.ReadFile(filepath.Join(s.state.BaseDir, "tokens", account+".token"))
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	want := strings.TrimRight(string(data), "\n")
	if subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		return errors.New("token mismatch")
	}
	return nil
}
