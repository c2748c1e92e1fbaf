package mal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Journal stores the source of top-level definitions so a session can be
// rebuilt by replaying them into a fresh root environment.
type Journal interface {
	Append(entry string) error
	Entries() ([]string, error)
	Reset() error
	Close() error
}

// FileJournal keeps entries in a single file, separated by blank lines.
// Entries are printed forms, which never contain a raw newline.
type FileJournal struct {
	path string
	file *os.File
}

const journalFileName = "journal.mal"

// OpenFileJournal opens (or creates) dir/journal.mal for appending.
func OpenFileJournal(dir string) (*FileJournal, error) {
	j := &FileJournal{path: filepath.Join(dir, journalFileName)}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) open() error {
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	j.file = f
	return nil
}

func (j *FileJournal) Path() string {
	return j.path
}

func (j *FileJournal) Append(entry string) error {
	_, err := fmt.Fprintf(j.file, "%s\n\n", entry)
	return err
}

func (j *FileJournal) Entries() ([]string, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return splitJournalEntries(string(data)), nil
}

// Reset truncates the journal and reopens it for appending.
func (j *FileJournal) Reset() error {
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset journal: %w", err)
	}
	return j.open()
}

func (j *FileJournal) Close() error {
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func splitJournalEntries(data string) []string {
	raw := strings.Split(data, "\n\n")
	var entries []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			entries = append(entries, s)
		}
	}
	return entries
}

// Replay evaluates every journal entry in env, in order, and returns how many
// were applied. An entry that fails to read or evaluate is logged and
// skipped; only a journal that cannot be read at all is an error.
func Replay(j Journal, env *Env) (int, error) {
	entries, err := j.Entries()
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}
	applied := 0
	for _, entry := range entries {
		if err := replayEntry(entry, env); err != nil {
			log.Printf("skipping journal entry: %v", err)
			continue
		}
		applied++
	}
	return applied, nil
}

func replayEntry(entry string, env *Env) error {
	form, err := ReadStr(entry)
	if err != nil {
		return fmt.Errorf("replay %q: %w", entry, err)
	}
	if _, err := Eval(form, env); err != nil {
		return fmt.Errorf("replay %q: %w", entry, err)
	}
	return nil
}
