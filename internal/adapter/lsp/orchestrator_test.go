package lsp

import (
	"context"
	"sync"
	"testing"
	"time"

	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
)

func TestConfigForFile(t *testing.T) {
	servers := []lspDomain.ServerConfig{
		{Language: "typescript", Extensions: []string{"ts", "tsx"}, Command: []string{"tsserver"}},
		{Language: "rust", Extensions: []string{"rs"}, Command: []string{"rust-analyzer"}},
	}
	o := NewOrchestrator(servers, "/ws")

	tests := []struct {
		path     string
		language string
		wantErr  refactor.Kind
	}{
		{"/ws/a.ts", "typescript", ""},
		{"/ws/pkg/b.tsx", "typescript", ""},
		{"/ws/src/main.rs", "rust", ""},
		{"/ws/readme.md", "", refactor.KindNoLanguageConfigured},
		{"/ws/Makefile", "", refactor.KindNoLanguageConfigured},
	}
	for _, tt := range tests {
		cfg, err := o.ConfigForFile(tt.path)
		if tt.wantErr != "" {
			if refactor.KindOf(err) != tt.wantErr {
				t.Errorf("ConfigForFile(%s) err = %v, want %s", tt.path, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ConfigForFile(%s): %v", tt.path, err)
			continue
		}
		if cfg.Language != tt.language {
			t.Errorf("ConfigForFile(%s) = %s, want %s", tt.path, cfg.Language, tt.language)
		}
	}
}

func TestServerConfigKeyDistinguishesCommands(t *testing.T) {
	a := lspDomain.ServerConfig{Language: "typescript", Command: []string{"tsserver", "--stdio"}}
	b := lspDomain.ServerConfig{Language: "typescript", Command: []string{"deno", "lsp"}}
	if a.Key() == b.Key() {
		t.Error("distinct commands for one language must produce distinct pool keys")
	}
	if a.Key() != a.Key() {
		t.Error("key not deterministic")
	}
}

func TestOrchestratorPoolsClients(t *testing.T) {
	servers := []lspDomain.ServerConfig{fakeServerConfig(t, "")}
	o := NewOrchestrator(servers, t.TempDir())
	defer o.Shutdown(context.Background())

	c1, err := o.ClientForFile(context.Background(), "/ws/a.ts")
	if err != nil {
		t.Fatalf("ClientForFile: %v", err)
	}
	c2, err := o.ClientForFile(context.Background(), "/ws/b.ts")
	if err != nil {
		t.Fatalf("ClientForFile: %v", err)
	}
	if c1 != c2 {
		t.Error("same language produced two clients")
	}
	if len(o.Clients()) != 1 {
		t.Errorf("pool size = %d, want 1", len(o.Clients()))
	}
}

func TestOrchestratorConcurrentLookupsShareSpawn(t *testing.T) {
	servers := []lspDomain.ServerConfig{fakeServerConfig(t, "")}
	o := NewOrchestrator(servers, t.TempDir())
	defer o.Shutdown(context.Background())

	const callers = 8
	clients := make([]*Client, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := o.ClientForFile(context.Background(), "/ws/a.ts")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			clients[i] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if clients[i] != clients[0] {
			t.Fatal("concurrent callers received different clients")
		}
	}
	if len(o.Clients()) != 1 {
		t.Errorf("pool size = %d, want 1", len(o.Clients()))
	}
}

func TestOrchestratorEvictsAndRespawnsDeadClient(t *testing.T) {
	servers := []lspDomain.ServerConfig{fakeServerConfig(t, "")}
	o := NewOrchestrator(servers, t.TempDir())
	defer o.Shutdown(context.Background())

	c1, err := o.ClientForFile(context.Background(), "/ws/a.ts")
	if err != nil {
		t.Fatal(err)
	}
	pid1 := c1.PID()

	// Kill the server out from under the pool.
	_, _ = c1.Request(context.Background(), "test/exit", nil, time.Second)
	waitForDead(t, c1)

	c2, err := o.ClientForFile(context.Background(), "/ws/a.ts")
	if err != nil {
		t.Fatalf("respawn: %v", err)
	}
	if c2 == c1 {
		t.Fatal("dead client returned from pool")
	}
	if c2.PID() == pid1 {
		t.Error("respawned client reports the old pid")
	}

	// The dead child was waited on before eviction completed: no zombie.
	select {
	case <-c1.Reaped():
	case <-time.After(5 * time.Second):
		t.Error("evicted client's process never reaped")
	}

	if n := len(o.Clients()); n != 1 {
		t.Errorf("pool size after respawn = %d, want 1", n)
	}
}

func TestOrchestratorWithRetry(t *testing.T) {
	servers := []lspDomain.ServerConfig{fakeServerConfig(t, "")}
	o := NewOrchestrator(servers, t.TempDir())
	defer o.Shutdown(context.Background())

	c1, err := o.ClientForFile(context.Background(), "/ws/a.ts")
	if err != nil {
		t.Fatal(err)
	}

	// First attempt kills the server; the retry must land on a fresh one.
	attempts := 0
	err = o.WithRetry(context.Background(), "/ws/a.ts", func(c *Client) error {
		attempts++
		if attempts == 1 {
			_, _ = c.Request(context.Background(), "test/exit", nil, time.Second)
			waitForDead(t, c1)
			return refactor.NewError(refactor.KindServerDied, "server died")
		}
		_, reqErr := c.Request(context.Background(), "test/echo", map[string]any{}, 5*time.Second)
		return reqErr
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func waitForDead(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == lspDomain.StateDead {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("client never transitioned to dead")
}
