package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	mal "github.com/sransara/mal-practice/core"
	"github.com/sransara/mal-practice/sqlitestore"
)

func main() {
	sockPath := os.Getenv("MAL_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/mal.sock"
	}

	dir := os.Getenv("MAL_DIR")
	if dir == "" {
		dir = "."
	}

	maxTraces := 1000
	if s := os.Getenv("MAL_MAX_TRACES"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			log.Fatalf("MAL_MAX_TRACES: %v", err)
		}
		maxTraces = n
	}

	journal, err := openJournal(os.Getenv("MAL_JOURNAL"), dir)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}

	session, err := mal.NewSession(journal, maxTraces)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	if err := session.Listen(sockPath); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	// Handle shutdown signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("shutting down...")
		session.Shutdown()
		os.Exit(0)
	}()

	log.Printf("mal session listening (socket: %s, data dir: %s)", sockPath, dir)
	session.Run()
}

func openJournal(kind, dir string) (mal.Journal, error) {
	switch kind {
	case "", "file":
		j, err := mal.OpenFileJournal(dir)
		if err != nil {
			return nil, err
		}
		log.Printf("journal: %s", j.Path())
		return j, nil
	case "sqlite":
		j, err := sqlitestore.Open(dir)
		if err != nil {
			return nil, err
		}
		log.Printf("journal: %s", j.Path())
		return j, nil
	default:
		return nil, fmt.Errorf("unknown MAL_JOURNAL %q (want file or sqlite)", kind)
	}
}
