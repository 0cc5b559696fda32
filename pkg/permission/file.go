package permission

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Prompter asks the user whether the camera may be used.
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

type decision struct {
	Granted   bool      `json:"granted"`
	DecidedAt time.Time `json:"decided_at"`
}

// FileAuthorizer keeps the user's answer in a JSON file. Until the file exists the status
// is NotDetermined and RequestAccess asks the Prompter.
type FileAuthorizer struct {
	Path     string
	Prompter Prompter

	mu sync.Mutex
}

func (a *FileAuthorizer) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.load()
	if errors.Is(err, os.ErrNotExist) {
		return NotDetermined
	}
	if err != nil {
		logger.Warnf("permission: read %s: %s", a.Path, err)
		return Restricted
	}
	if d.Granted {
		return Authorized
	}
	return Denied
}

func (a *FileAuthorizer) RequestAccess(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d, err := a.load(); err == nil {
		return d.Granted, nil
	}
	if a.Prompter == nil {
		return false, errors.New("no prompter configured")
	}
	granted, err := a.Prompter.Prompt(ctx)
	if err != nil {
		return false, err
	}
	if err = a.save(decision{Granted: granted, DecidedAt: time.Now()}); err != nil {
		return granted, err
	}

	return granted, nil
}

// Reset forgets the stored answer.
func (a *FileAuthorizer) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := os.Remove(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (a *FileAuthorizer) load() (decision, error) {
	var d decision
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return d, err
	}
	if err = json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse permission file: %w", err)
	}
	return d, nil
}

func (a *FileAuthorizer) save(d decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(a.Path, data, 0600)
}

// TerminalPrompter asks a yes/no question on a terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p TerminalPrompter) Prompt(ctx context.Context) (bool, error) {
	in, out := p.In, p.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprint(out, "Allow access to the camera? [y/N] ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
