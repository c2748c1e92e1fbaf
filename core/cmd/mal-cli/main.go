package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	mal "github.com/sransara/mal-practice/core"
)

func main() {
	sockPath := os.Getenv("MAL_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/mal.sock"
	}
	os.Exit(run(sockPath, os.Args[1:], os.Stdin, os.Stdout))
}

// run sends one request and prints the indented JSON response. The exit code
// is 1 when the request could not be delivered or the session answered ok=false.
func run(sockPath string, args []string, stdin io.Reader, stdout io.Writer) int {
	msg, err := buildRequest(args, stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	resp, err := roundTrip(sockPath, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "format response: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	if ok, _ := resp["ok"].(bool); !ok {
		return 1
	}
	return 0
}

// buildRequest turns `mal-cli <expr>` into an eval request; with no
// arguments the request is read from stdin as JSON.
func buildRequest(args []string, stdin io.Reader) (map[string]any, error) {
	var msg map[string]any
	if len(args) > 0 {
		msg = map[string]any{"op": "eval", "expr": strings.Join(args, " ")}
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
		if msg == nil {
			return nil, fmt.Errorf("parse JSON: expected an object")
		}
	}
	if _, ok := msg["id"]; !ok {
		msg["id"] = mal.NextID()
	}
	return msg, nil
}

func roundTrip(sockPath string, msg map[string]any) (map[string]any, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if err := mal.WriteMsg(conn, msg); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	resp, err := mal.ReadMsg(conn)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return resp, nil
}
