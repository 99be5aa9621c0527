// Package pyworker runs a pool of long-lived Python processes speaking a
// line-oriented JSON protocol. It hosts the spaCy analyzer and the
// sentence-transformers encoder behind a plain Go call interface.
package pyworker

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

//go:embed scripts/nlp_worker.py
var embeddedScript string

//go:embed scripts/requirements.txt
var embeddedRequirements string

// ErrClosed is returned by Call after Close.
var ErrClosed = errors.New("pyworker: pool closed")

// Config controls how worker processes are started.
type Config struct {
	// Dir receives the extracted worker script and, with SetupVenv, the venv.
	Dir string
	// Python is the interpreter; defaults to python3 (or the venv interpreter).
	Python string
	// SetupVenv creates Dir/venv and installs the bundled requirements.
	SetupVenv bool
	// Workers is the number of processes; at least one is started.
	Workers int
	// Init is sent as the first line to every process.
	Init map[string]any
	// Command overrides the full argv of a worker process.
	Command []string
	// Env is appended to the current environment of every worker.
	Env []string
}

type request struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

type task struct {
	ctx    context.Context
	req    request
	result chan<- taskResult
}

type taskResult struct {
	raw json.RawMessage
	err error
}

// Pool dispatches calls to a fixed set of worker processes.
type Pool struct {
	cfg    Config
	argv   []string
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	tasks  chan task
	wg     sync.WaitGroup
}

type worker struct {
	id     int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// Start prepares the environment and launches the worker processes. The
// first process is started synchronously so a broken setup fails fast.
func Start(cfg Config, logger *log.Logger) (*Pool, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	p := &Pool{
		cfg:    cfg,
		logger: logger,
		tasks:  make(chan task, cfg.Workers*4),
	}

	argv, err := p.resolveCommand()
	if err != nil {
		return nil, err
	}
	p.argv = argv

	first, err := p.startWorker(0)
	if err != nil {
		return nil, err
	}
	logger.Printf("pyworker: starting %d workers (%s)", cfg.Workers, argv[0])

	p.wg.Add(cfg.Workers)
	go p.runWorker(0, first)
	for i := 1; i < cfg.Workers; i++ {
		go p.runWorker(i, nil)
	}
	return p, nil
}

// Call sends op with payload to a worker and decodes the result into out.
func (p *Pool) Call(ctx context.Context, op string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	result := make(chan taskResult, 1)
	t := task{
		ctx:    ctx,
		req:    request{ID: uuid.NewString(), Op: op, Payload: body},
		result: result,
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case res := <-result:
		if res.err != nil {
			return res.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.raw, out); err != nil {
			return fmt.Errorf("decode %s result: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting calls and terminates all worker processes.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Pool) runWorker(id int, w *worker) {
	defer p.wg.Done()
	defer func() {
		if w != nil {
			w.close()
		}
	}()

	for t := range p.tasks {
		if t.ctx.Err() != nil {
			t.result <- taskResult{err: t.ctx.Err()}
			continue
		}
		if w == nil {
			var err error
			w, err = p.startWorker(id)
			if err != nil {
				p.logger.Printf("pyworker: worker %d failed to start: %v", id, err)
				t.result <- taskResult{err: err}
				continue
			}
		}
		raw, broken, err := w.call(t.ctx, t.req)
		if broken {
			p.logger.Printf("pyworker: restarting worker %d after: %v", id, err)
			w.close()
			w = nil
		}
		t.result <- taskResult{raw: raw, err: err}
	}
}

func (p *Pool) startWorker(id int) (*worker, error) {
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	w := &worker{id: id, cmd: cmd, stdin: stdin, reader: bufio.NewReaderSize(stdout, 1<<20)}

	initMsg := p.cfg.Init
	if initMsg == nil {
		initMsg = map[string]any{}
	}
	line, err := json.Marshal(initMsg)
	if err != nil {
		w.close()
		return nil, fmt.Errorf("marshal init: %w", err)
	}
	if _, err := w.stdin.Write(append(line, '\n')); err != nil {
		w.close()
		return nil, fmt.Errorf("send init: %w", err)
	}

	ready, err := w.reader.ReadBytes('\n')
	if err != nil {
		w.close()
		return nil, fmt.Errorf("read ready message: %w", err)
	}
	var msg struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(ready, &msg); err != nil {
		w.close()
		return nil, fmt.Errorf("parse ready message: %w", err)
	}
	if msg.Status != "ready" {
		w.close()
		return nil, fmt.Errorf("unexpected startup status: %s", msg.Status)
	}
	return w, nil
}

// call performs one request. broken reports that the process can no longer
// be trusted to stay in sync with the protocol.
func (w *worker) call(ctx context.Context, req request) (json.RawMessage, bool, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := w.stdin.Write(append(line, '\n')); err != nil {
		return nil, true, fmt.Errorf("write request: %w", err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		b, err := w.reader.ReadBytes('\n')
		done <- readResult{line: b, err: err}
	}()

	var rr readResult
	select {
	case rr = <-done:
	case <-ctx.Done():
		// The pending read is abandoned; kill the process so it returns.
		w.kill()
		<-done
		return nil, true, ctx.Err()
	}
	if rr.err != nil {
		return nil, true, fmt.Errorf("read response: %w", rr.err)
	}

	var resp response
	if err := json.Unmarshal(rr.line, &resp); err != nil {
		return nil, true, fmt.Errorf("parse response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, true, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, false, fmt.Errorf("python error: %s", resp.Error)
	}
	return resp.Result, false, nil
}

func (w *worker) kill() {
	if w.cmd != nil && w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
}

func (w *worker) close() {
	if w.stdin != nil {
		w.stdin.Close()
	}
	w.kill()
	if w.cmd != nil {
		w.cmd.Wait()
	}
}

func (p *Pool) resolveCommand() ([]string, error) {
	if len(p.cfg.Command) > 0 {
		return p.cfg.Command, nil
	}
	if p.cfg.Dir == "" {
		return nil, errors.New("pyworker: Dir or Command is required")
	}
	script, err := p.extractScript()
	if err != nil {
		return nil, fmt.Errorf("extract script: %w", err)
	}
	python := p.cfg.Python
	if p.cfg.SetupVenv {
		venvPython, err := p.setupVenv()
		if err != nil {
			return nil, err
		}
		python = venvPython
	}
	if python == "" {
		python = "python3"
	}
	return []string{python, script}, nil
}

func (p *Pool) extractScript() (string, error) {
	if err := os.MkdirAll(p.cfg.Dir, 0755); err != nil {
		return "", err
	}
	script := filepath.Join(p.cfg.Dir, "nlp_worker.py")
	if current, err := os.ReadFile(script); err == nil && string(current) == embeddedScript {
		return script, nil
	}
	if err := os.WriteFile(script, []byte(embeddedScript), 0755); err != nil {
		return "", err
	}
	reqs := filepath.Join(p.cfg.Dir, "requirements.txt")
	if err := os.WriteFile(reqs, []byte(embeddedRequirements), 0644); err != nil {
		return "", err
	}
	p.logger.Printf("pyworker: extracted worker script to %s", script)
	return script, nil
}

func (p *Pool) setupVenv() (string, error) {
	venv := filepath.Join(p.cfg.Dir, "venv")
	venvPython := filepath.Join(venv, "bin", "python")
	if _, err := os.Stat(venvPython); err == nil {
		return venvPython, nil
	}

	base := p.cfg.Python
	if base == "" {
		base = "python3"
	}
	p.logger.Printf("pyworker: creating virtual environment at %s", venv)
	if out, err := exec.Command(base, "-m", "venv", venv).CombinedOutput(); err != nil {
		return "", fmt.Errorf("create venv: %s: %w", out, err)
	}
	pip := filepath.Join(venv, "bin", "pip")
	reqs := filepath.Join(p.cfg.Dir, "requirements.txt")
	if out, err := exec.Command(pip, "install", "-r", reqs).CombinedOutput(); err != nil {
		return "", fmt.Errorf("install requirements: %s: %w", out, err)
	}
	return venvPython, nil
}
