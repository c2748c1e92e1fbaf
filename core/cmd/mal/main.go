package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	mal "github.com/sransara/mal-practice/core"
)

const (
	promptMain = "user> "
	promptCont = "  ... "
)

func main() {
	env := mal.NewStdEnv()

	if len(os.Args) > 1 {
		os.Exit(runFile(env, os.Args[1]))
	}
	os.Exit(repl(env))
}

// runFile evaluates every form in path and prints the last value.
func runFile(env *mal.Env, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		return 1
	}
	val, err := mal.EvalString(string(data), env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 1
	}
	fmt.Println(val.String())
	return 0
}

func historyPath() string {
	if p := os.Getenv("MAL_HISTORY"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mal_history"
	}
	return filepath.Join(home, ".mal_history")
}

func repl(env *mal.Env) int {
	histPath := historyPath()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		forms, src, ok := readForms(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		if src == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		// One bad form reports and stops this input; the environment keeps
		// whatever earlier forms defined.
		for _, form := range forms {
			val, err := mal.Eval(form, env)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				break
			}
			fmt.Println(val.String())
		}
	}
}

// readForms reads lines until they parse, asking for more input while the
// reader reports an unbalanced list or string. The bool is false at end of
// input.
func readForms(ln *liner.State) ([]mal.Value, string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return nil, "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return nil, "", true
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return nil, "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		forms, err := mal.ReadAll(src)
		if err == nil {
			return forms, strings.TrimSpace(src), true
		}
		if mal.IsIncomplete(err) {
			continue
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return nil, "", true
	}
}
