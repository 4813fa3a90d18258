// agenthub-bridge exposes the hub daemon's request surface to a
// tool-calling agent as MCP tools over stdio. One bridge process serves
// one account.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/AgentHub/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	account := flag.String("account", "", "account name (required)")
	tokenFile := flag.String("token-file", "", "token file path (default tokens/<account>.token)")
	flag.Parse()

	if *account == "" {
		return fmt.Errorf("--account is required")
	}
	baseDir, err := config.BaseDir()
	if err != nil {
		return err
	}

	tf := *tokenFile
	if tf == "" {
		tf = filepath.Join(baseDir, "tokens", *account+".token")
	}
	raw, err := os.ReadFile(tf)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimRight(string(raw), "\n")

	client := newHubClient(filepath.Join(baseDir, "hub.sock"), *account, token)

	srv := mcpserver.NewMCPServer("agenthub-bridge", "1.0.0")
	srv.AddTools(bridgeTools(client)...)
	return mcpserver.ServeStdio(srv)
}

// bridgeTools maps the daemon request surface onto MCP tools. Each tool
// forwards its arguments verbatim and returns the daemon's JSON reply.
func bridgeTools(client *hubClient) []mcpserver.ServerTool {
	forward := func(reqType string) func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return func(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			reply, err := client.call(reqType, req.GetArguments())
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			delete(reply, "type")
			delete(reply, "requestId")
			data, err := json.Marshal(reply)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			return mcplib.NewToolResultText(string(data)), nil
		}
	}

	tool := func(reqType, desc string, opts ...mcplib.ToolOption) mcpserver.ServerTool {
		all := append([]mcplib.ToolOption{mcplib.WithDescription(desc)}, opts...)
		return mcpserver.ServerTool{
			Tool:    mcplib.NewTool(reqType, all...),
			Handler: forward(reqType),
		}
	}

	return []mcpserver.ServerTool{
		tool("send_message", "Send a message to another account",
			mcplib.WithString("to", mcplib.Required(), mcplib.Description("Recipient account")),
			mcplib.WithString("content", mcplib.Required(), mcplib.Description("Message body")),
		),
		tool("read_messages", "Read this account's messages",
			mcplib.WithBoolean("unreadOnly", mcplib.Description("Only unread messages")),
			mcplib.WithBoolean("markRead", mcplib.Description("Mark everything read afterwards")),
		),
		tool("count_unread", "Count unread messages"),
		tool("list_accounts", "List configured accounts and their connection state"),
		tool("handoff_task", "Delegate a task to another account",
			mcplib.WithString("to", mcplib.Required(), mcplib.Description("Assignee account")),
			mcplib.WithObject("payload", mcplib.Required(), mcplib.Description("Handoff payload: goal, acceptance_criteria, run_commands, blocked_by, ...")),
			mcplib.WithObject("context", mcplib.Description("Optional context: projectDir, branch")),
		),
		tool("handoff_accept", "Accept a handoff addressed to this account",
			mcplib.WithString("handoffId", mcplib.Required(), mcplib.Description("Handoff message id")),
		),
		tool("update_task_status", "Move a task through its lifecycle",
			mcplib.WithString("taskId", mcplib.Required(), mcplib.Description("Task id")),
			mcplib.WithString("status", mcplib.Required(), mcplib.Description("todo|in_progress|ready_for_review|accepted|rejected")),
			mcplib.WithString("reason", mcplib.Description("Required when rejecting")),
			mcplib.WithString("workspacePath", mcplib.Description("Worktree path for review")),
			mcplib.WithString("branch", mcplib.Description("Worktree branch")),
		),
		tool("report_progress", "Report progress on an in-progress task",
			mcplib.WithString("taskId", mcplib.Required(), mcplib.Description("Task id")),
			mcplib.WithNumber("percent", mcplib.Required(), mcplib.Description("0-100")),
			mcplib.WithString("note", mcplib.Description("Short progress note")),
		),
		tool("suggest_assignee", "Rank accounts for a set of required skills",
			mcplib.WithArray("skills", mcplib.Description("Required skills")),
		),
		tool("get_trust", "Read an account's trust score",
			mcplib.WithString("account", mcplib.Description("Account (defaults to self)")),
		),
		tool("query_activity", "Query the activity log",
			mcplib.WithString("account", mcplib.Description("Filter by account")),
			mcplib.WithString("search", mcplib.Description("Full-text search")),
		),
		tool("health_status", "Daemon health and uptime"),
		tool("config_reload", "Reload the daemon configuration"),
	}
}
