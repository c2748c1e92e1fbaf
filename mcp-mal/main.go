package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mal "github.com/sransara/mal-practice/core"
)

// client forwards requests to a mal session over one connection.
type client struct {
	conn net.Conn
	mu   sync.Mutex
}

// send sends a request to the session and returns the response.
func (c *client) send(req map[string]any) (map[string]any, error) {
	req["id"] = mal.NextID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := mal.WriteMsg(c.conn, req); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	resp, err := mal.ReadMsg(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return resp, nil
}

// formatResult turns a session response into an MCP tool result.
func formatResult(resp map[string]any) (*mcp.CallToolResult, error) {
	ok, _ := resp["ok"].(bool)
	if !ok {
		errMsg, _ := resp["error"].(string)
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return mcp.NewToolResultError(errMsg), nil
	}
	if printed, ok := resp["printed"].(string); ok {
		return mcp.NewToolResultText(printed), nil
	}
	out, err := json.MarshalIndent(resp["value"], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (c *client) forward(req map[string]any) (*mcp.CallToolResult, error) {
	resp, err := c.send(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func (c *client) handleEval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := request.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.forward(map[string]any{"op": "eval", "expr": expr})
}

func (c *client) handleDefine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expr, err := request.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return c.forward(map[string]any{"op": "define", "name": name, "expr": expr})
}

func (c *client) handleTraces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := map[string]any{"op": "traces"}
	if n := request.GetFloat("n", 0); n > 0 {
		req["n"] = n
	}
	return c.forward(req)
}

func (c *client) handleClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.forward(map[string]any{"op": "clear"})
}

func newServer(c *client) *server.MCPServer {
	s := server.NewMCPServer(
		"mal",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("mal_eval",
			mcp.WithDescription("Evaluate mal source text in the session's root environment. Returns the printed value of the last form."),
			mcp.WithString("expr",
				mcp.Required(),
				mcp.Description("One or more forms, e.g. (add 1 2)"),
			),
		),
		c.handleEval,
	)

	s.AddTool(
		mcp.NewTool("mal_define",
			mcp.WithDescription("Bind a name in the session's root environment. The definition is journaled and survives restarts."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Symbol name to define"),
			),
			mcp.WithString("expr",
				mcp.Required(),
				mcp.Description("Form whose value is bound to the name"),
			),
		),
		c.handleDefine,
	)

	s.AddTool(
		mcp.NewTool("mal_traces",
			mcp.WithDescription("List recent evaluations with their results or errors."),
			mcp.WithNumber("n",
				mcp.Description("How many of the most recent traces to return"),
			),
		),
		c.handleTraces,
	)

	s.AddTool(
		mcp.NewTool("mal_clear",
			mcp.WithDescription("Reset the session: fresh root environment, empty journal, no traces."),
		),
		c.handleClear,
	)

	return s
}

func main() {
	sockPath := os.Getenv("MAL_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/mal.sock"
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		log.Fatalf("connect to %s: %v", sockPath, err)
	}
	defer conn.Close()
	log.Printf("connected to mal session: %s", sockPath)

	if err := server.ServeStdio(newServer(&client{conn: conn})); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
