package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain/account"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

// testDaemon spins up a real daemon over a socket in a temp base dir
// with accounts alice and bob.
type testDaemon struct {
	baseDir string
	state   *State
	server  *Server
	cancel  context.CancelFunc
}

func startDaemon(t *testing.T, features *config.Features) *testDaemon {
	t.Helper()
	baseDir := t.TempDir()

	cfg := config.NewDefaults()
	cfg.Accounts = []account.Account{
		{Name: "alice", Provider: account.ProviderClaudeCode},
		{Name: "bob", Provider: account.ProviderCodexCLI},
	}
	cfg.Features = features
	holder := config.NewHolder(cfg, filepath.Join(baseDir, "config.json"))

	tokens := filepath.Join(baseDir, "tokens")
	if err := os.MkdirAll(tokens, 0o700); err != nil {
		t.Fatal(err)
	}
	for name, secret := range map[string]string{"alice": "s1", "bob": "s2"} {
		if err := os.WriteFile(filepath.Join(tokens, name+".token"), []byte(secret), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	state, err := NewState(ctx, holder, baseDir)
	if err != nil {
		cancel()
		t.Fatalf("state: %v", err)
	}

	server := NewServer(state)
	if err := server.Listen(); err != nil {
		cancel()
		t.Fatalf("listen: %v", err)
	}
	go server.Serve(ctx)

	d := &testDaemon{baseDir: baseDir, state: state, server: server, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
		state.Close()
	})
	return d
}

// testClient is a blocking request/reply client for tests.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func (d *testDaemon) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("unix", d.server.SocketPath(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(frame map[string]any) map[string]any {
	c.t.Helper()
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		c.t.Fatal(err)
	}
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var reply map[string]any
	if err := json.Unmarshal(line, &reply); err != nil {
		c.t.Fatalf("parse reply: %v", err)
	}
	return reply
}

func (c *testClient) auth(account, token string) map[string]any {
	return c.send(map[string]any{"type": "auth", "account": account, "token": token})
}

func TestAuthThenMessage(t *testing.T) {
	d := startDaemon(t, nil)

	alice := d.dial(t)
	if reply := alice.auth("alice", "s1"); reply["type"] != "auth_ok" {
		t.Fatalf("expected auth_ok, got %+v", reply)
	}

	reply := alice.send(map[string]any{
		"type": "send_message", "to": "bob", "content": "hi", "requestId": "r1",
	})
	if reply["type"] != "result" || reply["requestId"] != "r1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply["delivered"] != false || reply["queued"] != true {
		t.Fatalf("expected delivered=false queued=true, got %+v", reply)
	}

	bob := d.dial(t)
	if r := bob.auth("bob", "s2"); r["type"] != "auth_ok" {
		t.Fatalf("bob auth failed: %+v", r)
	}
	inbox := bob.send(map[string]any{"type": "read_messages", "unreadOnly": true})
	msgs, ok := inbox["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %+v", inbox)
	}
	msg := msgs[0].(map[string]any)
	if msg["from"] != "alice" || msg["content"] != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestAuthBadToken(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	reply := c.auth("alice", "wrong")
	if reply["type"] != "error" {
		t.Fatalf("expected error, got %+v", reply)
	}
}

func TestUnauthenticatedPingOnly(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	reply := c.send(map[string]any{"type": "ping"})
	if reply["type"] != "pong" {
		t.Fatalf("unauthenticated ping should succeed, got %+v", reply)
	}
}

func TestUnknownTypeKeepsConnection(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	c.auth("alice", "s1")

	reply := c.send(map[string]any{"type": "nonexistent_command"})
	if reply["type"] != "error" || reply["error"] != "Invalid message" {
		t.Fatalf("expected Invalid message, got %+v", reply)
	}

	// The connection stays usable.
	if pong := c.send(map[string]any{"type": "ping"}); pong["type"] != "pong" {
		t.Fatalf("connection should remain responsive, got %+v", pong)
	}
}

func TestSelfPairingRejected(t *testing.T) {
	d := startDaemon(t, &config.Features{Sessions: true})
	c := d.dial(t)
	c.auth("alice", "s1")

	reply := c.send(map[string]any{"type": "share_session", "target": "alice"})
	if reply["type"] != "error" || reply["error"] != "Cannot create session with yourself" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSessionsFeatureGate(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	c.auth("alice", "s1")

	reply := c.send(map[string]any{"type": "share_session", "target": "bob"})
	if reply["type"] != "error" || reply["error"] != "Sessions not enabled" {
		t.Fatalf("expected feature gate error, got %+v", reply)
	}
}

func TestInvalidHandoffPayload(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	c.auth("alice", "s1")

	reply := c.send(map[string]any{
		"type": "handoff_task", "to": "bob",
		"payload": map[string]any{
			"goal":                "g",
			"acceptance_criteria": []string{},
			"run_commands":        []string{"true"},
			"blocked_by":          []string{"none"},
		},
	})
	if reply["type"] != "error" || reply["error"] != "Invalid handoff payload" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply["details"] == nil {
		t.Fatal("expected validation details")
	}
}

func TestDelegationDepthBlockOverSocket(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	c.auth("alice", "s1")

	reply := c.send(map[string]any{
		"type": "handoff_task", "to": "bob",
		"payload": map[string]any{
			"goal":                "too deep",
			"acceptance_criteria": []string{"ok"},
			"run_commands":        []string{"true"},
			"blocked_by":          []string{"none"},
			"delegation_depth":    3,
		},
	})
	if reply["type"] != "error" {
		t.Fatalf("expected error, got %+v", reply)
	}
	check, ok := reply["depthCheck"].(map[string]any)
	if !ok {
		t.Fatalf("expected depthCheck, got %+v", reply)
	}
	if check["allowed"] != false || check["requiresReauthorization"] != true {
		t.Fatalf("unexpected depth check: %+v", check)
	}
	if check["currentDepth"].(float64) != 3 || check["maxDepth"].(float64) != 3 {
		t.Fatalf("unexpected depths: %+v", check)
	}

	// The activity log recorded the blocked chain.
	found := false
	list := c.send(map[string]any{"type": "query_activity"})
	for _, raw := range list["events"].([]any) {
		ev := raw.(map[string]any)
		if ev["type"] == "DELEGATION_CHAIN" {
			if meta, ok := ev["metadata"].(map[string]any); ok && meta["blocked"] == "true" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected a blocked DELEGATION_CHAIN activity event")
	}
}

func TestHandoffRoundTripOverSocket(t *testing.T) {
	d := startDaemon(t, nil)

	alice := d.dial(t)
	alice.auth("alice", "s1")

	created := alice.send(map[string]any{
		"type": "handoff_task", "to": "bob", "requestId": "h1",
		"payload": map[string]any{
			"goal":                "add pagination",
			"acceptance_criteria": []string{"page size respected"},
			"run_commands":        []string{"true"},
			"blocked_by":          []string{"none"},
		},
	})
	if created["type"] != "result" {
		t.Fatalf("handoff failed: %+v", created)
	}
	taskID := created["taskId"].(string)
	if taskID == "" || taskID != created["handoffId"].(string) {
		t.Fatalf("task id must equal handoff id: %+v", created)
	}

	bob := d.dial(t)
	bob.auth("bob", "s2")
	accepted := bob.send(map[string]any{"type": "handoff_accept", "handoffId": taskID})
	if accepted["type"] != "result" {
		t.Fatalf("accept failed: %+v", accepted)
	}
	handoff := accepted["handoff"].(map[string]any)
	if handoff["goal"] != "add pagination" {
		t.Fatalf("unexpected handoff: %+v", handoff)
	}

	// Walk the lifecycle to accepted.
	for _, status := range []string{"in_progress", "ready_for_review"} {
		r := bob.send(map[string]any{"type": "update_task_status", "taskId": taskID, "status": status})
		if r["type"] != "result" {
			t.Fatalf("transition to %s failed: %+v", status, r)
		}
	}
	final := alice.send(map[string]any{"type": "update_task_status", "taskId": taskID, "status": "accepted"})
	if final["type"] != "result" {
		t.Fatalf("accept transition failed: %+v", final)
	}
	taskObj := final["task"].(map[string]any)
	if taskObj["status"] != "accepted" {
		t.Fatalf("unexpected final task: %+v", taskObj)
	}
}

func TestMissingRequestIDStillAnswered(t *testing.T) {
	d := startDaemon(t, nil)
	c := d.dial(t)
	c.auth("alice", "s1")

	reply := c.send(map[string]any{"type": "count_unread"})
	if reply["type"] != "result" {
		t.Fatalf("expected result, got %+v", reply)
	}
	if _, present := reply["requestId"]; present {
		t.Fatal("reply must not invent a requestId")
	}
}
