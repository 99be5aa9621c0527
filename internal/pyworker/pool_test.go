package pyworker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It stands in for the Python worker
// when invoked through helperConfig.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PYWORKER_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 1<<20), 1<<20)
	if !in.Scan() {
		os.Exit(1)
	}
	fmt.Println(`{"status":"ready"}`)

	for in.Scan() {
		var req struct {
			ID      string          `json:"id"`
			Op      string          `json:"op"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			os.Exit(2)
		}
		switch req.Op {
		case "echo":
			fmt.Printf(`{"id":%q,"result":%s}`+"\n", req.ID, req.Payload)
		case "fail":
			fmt.Printf(`{"id":%q,"error":"ValueError: boom"}`+"\n", req.ID)
		case "sleep":
			time.Sleep(5 * time.Second)
		case "crash":
			os.Exit(3)
		}
	}
}

func helperConfig(workers int) Config {
	return Config{
		Workers: workers,
		Command: []string{os.Args[0], "-test.run=TestHelperProcess", "--"},
		Env:     []string{"PYWORKER_HELPER=1"},
		Init:    map[string]any{"spacy_model": "test"},
	}
}

func TestPoolEcho(t *testing.T) {
	pool, err := Start(helperConfig(2), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Close()

	var out struct {
		Text string `json:"text"`
	}
	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("hello %d", i)
		if err := pool.Call(context.Background(), "echo", map[string]string{"text": want}, &out); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if out.Text != want {
			t.Errorf("got %q, want %q", out.Text, want)
		}
	}
}

func TestPoolRemoteError(t *testing.T) {
	pool, err := Start(helperConfig(1), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Close()

	err = pool.Call(context.Background(), "fail", struct{}{}, nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected python error, got %v", err)
	}

	// The worker stays usable after a reported error.
	var out map[string]string
	if err := pool.Call(context.Background(), "echo", map[string]string{"k": "v"}, &out); err != nil {
		t.Fatalf("Call after error: %v", err)
	}
}

func TestPoolTimeoutRestartsWorker(t *testing.T) {
	pool, err := Start(helperConfig(1), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := pool.Call(ctx, "sleep", struct{}{}, nil); err == nil {
		t.Fatal("expected timeout error")
	}

	var out map[string]string
	if err := pool.Call(context.Background(), "echo", map[string]string{"k": "v"}, &out); err != nil {
		t.Fatalf("Call after timeout: %v", err)
	}
	if out["k"] != "v" {
		t.Errorf("unexpected echo result %v", out)
	}
}

func TestPoolCrashRestartsWorker(t *testing.T) {
	pool, err := Start(helperConfig(1), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Close()

	if err := pool.Call(context.Background(), "crash", struct{}{}, nil); err == nil {
		t.Fatal("expected error from crashed worker")
	}
	if err := pool.Call(context.Background(), "echo", map[string]int{"n": 1}, nil); err != nil {
		t.Fatalf("Call after crash: %v", err)
	}
}

func TestPoolClosed(t *testing.T) {
	pool, err := Start(helperConfig(1), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	pool.Close()
	if err := pool.Call(context.Background(), "echo", struct{}{}, nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestExtractScript(t *testing.T) {
	dir := t.TempDir()
	p := &Pool{cfg: Config{Dir: dir}, logger: nil}
	p.logger = discardLogger()
	argv, err := p.resolveCommand()
	if err != nil {
		t.Fatalf("resolveCommand: %v", err)
	}
	if argv[0] != "python3" {
		t.Errorf("expected python3 interpreter, got %s", argv[0])
	}
	data, err := os.ReadFile(argv[1])
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if !strings.Contains(string(data), `"analyze": analyze`) {
		t.Error("extracted script is missing the analyze op")
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
