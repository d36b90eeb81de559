package lsp

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/resilience"
)

// Orchestrator owns the pool of LSP clients, one per server configuration
// key. It is the only component that spawns, evicts, or stops clients;
// planners reach servers exclusively through it.
type Orchestrator struct {
	servers   []lspDomain.ServerConfig
	workspace string

	clients map[string]*Client
	mu      sync.Mutex

	spawns   singleflight.Group
	breakers map[string]*resilience.Breaker
	restarts map[string]int

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewOrchestrator creates an orchestrator for the given server
// configurations rooted at workspace.
func NewOrchestrator(servers []lspDomain.ServerConfig, workspace string) *Orchestrator {
	return &Orchestrator{
		servers:   servers,
		workspace: workspace,
		clients:   make(map[string]*Client),
		breakers:  make(map[string]*resilience.Breaker),
		restarts:  make(map[string]int),
		sweepStop: make(chan struct{}),
	}
}

// ConfigForFile resolves the server configuration that owns a file's
// extension. First match wins.
func (o *Orchestrator) ConfigForFile(path string) (*lspDomain.ServerConfig, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil, refactor.NewError(refactor.KindNoLanguageConfigured, "file %s has no extension", path)
	}
	for i := range o.servers {
		if o.servers[i].Handles(ext) {
			return &o.servers[i], nil
		}
	}
	return nil, refactor.NewError(refactor.KindNoLanguageConfigured, "no language server configured for .%s files", ext)
}

// ClientForFile returns a ready client for the file's language, spawning one
// if needed. Dead clients are evicted (after their process is reaped) before
// a replacement is spawned. Concurrent callers for the same key share one
// spawn; spawns for different keys proceed in parallel.
func (o *Orchestrator) ClientForFile(ctx context.Context, path string) (*Client, error) {
	cfg, err := o.ConfigForFile(path)
	if err != nil {
		return nil, err
	}
	return o.clientForConfig(ctx, cfg)
}

func (o *Orchestrator) clientForConfig(ctx context.Context, cfg *lspDomain.ServerConfig) (*Client, error) {
	key := cfg.Key()

	o.mu.Lock()
	if c, ok := o.clients[key]; ok {
		if c.IsAlive() && !o.expired(cfg, c) {
			o.mu.Unlock()
			return c, nil
		}
	}
	o.mu.Unlock()

	v, err, _ := o.spawns.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have just spawned.
		o.mu.Lock()
		if c, ok := o.clients[key]; ok && c.IsAlive() && !o.expired(cfg, c) {
			o.mu.Unlock()
			return c, nil
		}
		o.mu.Unlock()

		o.evict(ctx, key)

		breaker := o.breakerFor(key)
		var client *Client
		spawnErr := breaker.Execute(func() error {
			client = NewClient(*cfg, o.workspace)
			return client.Start(ctx)
		})
		if spawnErr != nil {
			if spawnErr == resilience.ErrCircuitOpen {
				return nil, refactor.NewError(refactor.KindServerStartFailed,
					"server %s failing repeatedly, refusing to respawn", cfg.Language)
			}
			return nil, spawnErr
		}

		o.mu.Lock()
		o.clients[key] = client
		o.restarts[key]++
		o.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

// expired reports whether the client has outlived its restart interval.
func (o *Orchestrator) expired(cfg *lspDomain.ServerConfig, c *Client) bool {
	return cfg.RestartInterval > 0 && c.Age() > cfg.RestartInterval
}

func (o *Orchestrator) breakerFor(key string) *resilience.Breaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.breakers[key]
	if !ok {
		b = resilience.NewBreaker(3, 30*time.Second)
		o.breakers[key] = b
	}
	return b
}

// evict removes the client for key, stopping it if still alive and blocking
// until its process has been waited on so no zombie survives the eviction.
func (o *Orchestrator) evict(ctx context.Context, key string) {
	o.mu.Lock()
	c, ok := o.clients[key]
	if ok {
		delete(o.clients, key)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	if c.State() != lspDomain.StateDead {
		c.Stop(ctx)
	} else {
		select {
		case <-c.Reaped():
		case <-time.After(5 * time.Second):
			slog.Warn("lsp: evicted client not reaped in time", "key", key)
		}
	}
	slog.Info("lsp client evicted", "key", key)
}

// WithRetry runs fn against a client for path, respawning once when the
// server dies mid-request. A second death surfaces the error.
func (o *Orchestrator) WithRetry(ctx context.Context, path string, fn func(*Client) error) error {
	client, err := o.ClientForFile(ctx, path)
	if err != nil {
		return err
	}
	err = fn(client)
	if refactor.KindOf(err) != refactor.KindServerDied {
		return err
	}

	slog.Warn("lsp server died mid-request, respawning once", "path", path)
	client, err = o.ClientForFile(ctx, path)
	if err != nil {
		return err
	}
	return fn(client)
}

// StartSweeper launches the background sweep that evicts dead clients so
// their child handles are dropped and the OS reaps them. Opportunistic
// eviction on the lookup path handles the common case; the sweep covers
// clients that die while idle.
func (o *Orchestrator) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	o.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					o.sweep()
				case <-o.sweepStop:
					return
				}
			}
		}()
	})
}

func (o *Orchestrator) sweep() {
	o.mu.Lock()
	var dead []string
	for key, c := range o.clients {
		if c.State() == lspDomain.StateDead {
			dead = append(dead, key)
		}
	}
	o.mu.Unlock()

	for _, key := range dead {
		o.evict(context.Background(), key)
	}
}

// Clients returns a health snapshot of the pool.
func (o *Orchestrator) Clients() []lspDomain.ClientInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	infos := make([]lspDomain.ClientInfo, 0, len(o.clients))
	for key, c := range o.clients {
		info := c.Info()
		info.Restarts = o.restarts[key] - 1
		infos = append(infos, info)
	}
	return infos
}

// Shutdown stops the sweeper and gracefully drains every client.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	close(o.sweepStop)

	o.mu.Lock()
	clients := make(map[string]*Client, len(o.clients))
	for k, c := range o.clients {
		clients[k] = c
	}
	o.clients = make(map[string]*Client)
	o.mu.Unlock()

	var wg sync.WaitGroup
	for key, c := range clients {
		wg.Add(1)
		go func(key string, c *Client) {
			defer wg.Done()
			c.Stop(ctx)
		}(key, c)
	}
	wg.Wait()
	slog.Info("lsp orchestrator shut down", "clients", len(clients))
}
