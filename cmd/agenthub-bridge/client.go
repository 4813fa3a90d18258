package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/protocol"
)

// defaultTimeout bounds every bridged request; config_reload gets a
// tighter one.
const (
	defaultTimeout      = 5 * time.Second
	configReloadTimeout = 2 * time.Second
)

// hubClient speaks the newline-delimited JSON protocol to the daemon on
// behalf of one account. Requests are serialised; the daemon correlates
// replies by requestId.
type hubClient struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	socket  string
	account string
	token   string
	nextID  int
}

func newHubClient(socket, account, token string) *hubClient {
	return &hubClient{socket: socket, account: account, token: token}
}

// connect dials and authenticates. It is called lazily and again after
// a connection drop.
func (c *hubClient) connect() error {
	conn, err := net.DialTimeout("unix", c.socket, defaultTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socket, err)
	}
	reader := bufio.NewReaderSize(conn, protocol.MaxFrameSize)

	auth, err := protocol.EncodeFrame(map[string]string{
		"type":    protocol.TypeAuth,
		"account": c.account,
		"token":   c.token,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if _, err := conn.Write(auth); err != nil {
		conn.Close()
		return fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(defaultTimeout))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		conn.Close()
		return fmt.Errorf("read auth reply: %w", err)
	}
	var reply struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &reply); err != nil {
		conn.Close()
		return fmt.Errorf("parse auth reply: %w", err)
	}
	if reply.Type != protocol.TypeAuthOK {
		conn.Close()
		return fmt.Errorf("auth rejected: %s", reply.Error)
	}

	c.conn = conn
	c.reader = reader
	return nil
}

// call sends one request and waits for its correlated reply.
func (c *hubClient) call(reqType string, params map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}

	timeout := defaultTimeout
	if reqType == protocol.TypeConfigReload {
		timeout = configReloadTimeout
	}

	c.nextID++
	requestID := "br-" + strconv.Itoa(c.nextID)

	frame := map[string]any{"type": reqType, "requestId": requestID}
	for k, v := range params {
		frame[k] = v
	}
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return nil, err
	}

	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := c.conn.Write(data); err != nil {
		c.reset()
		return nil, fmt.Errorf("send %s: %w", reqType, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		c.conn.SetReadDeadline(deadline)
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.reset()
			return nil, fmt.Errorf("read %s reply: %w", reqType, err)
		}
		var reply map[string]any
		if err := json.Unmarshal(line, &reply); err != nil {
			continue
		}
		if id, _ := reply["requestId"].(string); id != requestID {
			// A reply for an abandoned request; skip it.
			continue
		}
		if reply["type"] == protocol.TypeError {
			msg, _ := reply["error"].(string)
			return nil, fmt.Errorf("%s", msg)
		}
		return reply, nil
	}
}

func (c *hubClient) reset() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}
