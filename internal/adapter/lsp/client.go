package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
)

// pendingRequest is one in-flight request awaiting its response.
type pendingRequest struct {
	ch chan *JSONRPCMessage
}

// Client manages a single language server process. Lifecycle:
// spawned → initializing → ready → draining → dead. Transitions out of
// dead are impossible; the orchestrator spawns a replacement instead.
type Client struct {
	config    lspDomain.ServerConfig
	workspace string

	cmd  *exec.Cmd
	conn *Conn

	state lspDomain.ClientState
	mu    sync.Mutex

	capabilities *lspDomain.ServerCapabilities

	nextID  atomic.Int64
	pending map[int64]*pendingRequest
	pendMu  sync.Mutex

	openDocs map[string]int // uri -> version
	docMu    sync.Mutex

	diagnostics map[string][]lspDomain.Diagnostic
	diagMu      sync.RWMutex

	startTime time.Time
	done      chan struct{} // closed when the read loop exits
	exited    chan struct{} // closed after the child has been waited on
}

// NewClient creates a client for the given server configuration. The client
// owns no process until Start.
func NewClient(cfg lspDomain.ServerConfig, workspace string) *Client {
	return &Client{
		config:      cfg,
		workspace:   workspace,
		state:       lspDomain.StateSpawned,
		pending:     make(map[int64]*pendingRequest),
		openDocs:    make(map[string]int),
		diagnostics: make(map[string][]lspDomain.Diagnostic),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() lspDomain.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAlive reports whether the client is initializing or ready. A draining
// client is not alive even while its process is still exiting.
func (c *Client) IsAlive() bool {
	s := c.State()
	return s == lspDomain.StateReady || s == lspDomain.StateInitializing
}

// Age returns the time since the client was started.
func (c *Client) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startTime.IsZero() {
		return 0
	}
	return time.Since(c.startTime)
}

// PID returns the child process id, or 0 when no process is running.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// Capabilities returns the server capabilities recorded at initialize.
func (c *Client) Capabilities() *lspDomain.ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// Info returns a health summary of this client.
func (c *Client) Info() lspDomain.ClientInfo {
	c.docMu.Lock()
	openDocs := len(c.openDocs)
	c.docMu.Unlock()

	c.diagMu.RLock()
	diags := 0
	for _, d := range c.diagnostics {
		diags += len(d)
	}
	c.diagMu.RUnlock()

	return lspDomain.ClientInfo{
		Key:         c.config.Key(),
		Language:    c.config.Language,
		State:       c.State(),
		Command:     strings.Join(c.config.Command, " "),
		PID:         c.PID(),
		UptimeSec:   int64(c.Age().Seconds()),
		Diagnostics: diags,
		OpenDocs:    openDocs,
	}
}

// Start spawns the server process and performs the LSP initialize handshake.
// Single-shot: a client that failed to start stays dead.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != lspDomain.StateSpawned {
		c.mu.Unlock()
		return refactor.NewError(refactor.KindInternal, "client already started (state %s)", c.state)
	}
	c.state = lspDomain.StateInitializing
	c.mu.Unlock()

	if len(c.config.Command) == 0 {
		c.fail()
		return refactor.NewError(refactor.KindServerStartFailed, "no command configured for language %s", c.config.Language)
	}
	if _, err := exec.LookPath(c.config.Command[0]); err != nil {
		c.fail()
		return refactor.WrapError(refactor.KindServerStartFailed, err, "language server binary not found: %s", c.config.Command[0])
	}

	cmd := exec.Command(c.config.Command[0], c.config.Command[1:]...) //nolint:gosec // command from trusted config
	cmd.Dir = c.rootDir()
	cmd.Stderr = os.Stderr // let server stderr pass through for debugging

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.fail()
		return refactor.WrapError(refactor.KindServerStartFailed, err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.fail()
		return refactor.WrapError(refactor.KindServerStartFailed, err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		c.fail()
		return refactor.WrapError(refactor.KindServerStartFailed, err, "start %s", c.config.Command[0])
	}

	c.mu.Lock()
	c.cmd = cmd
	c.conn = NewConn(stdout, stdin, stdin)
	c.startTime = time.Now()
	c.mu.Unlock()

	go c.readLoop()
	go c.waitLoop()

	if err := c.initialize(ctx); err != nil {
		_ = cmd.Process.Kill()
		c.fail()
		return refactor.WrapError(refactor.KindServerStartFailed, err, "initialize %s", c.config.Language)
	}

	c.mu.Lock()
	c.state = lspDomain.StateReady
	c.mu.Unlock()

	slog.Info("lsp client ready",
		"language", c.config.Language, "pid", cmd.Process.Pid, "workspace", c.rootDir())
	return nil
}

func (c *Client) rootDir() string {
	if c.config.RootDir != "" {
		return c.config.RootDir
	}
	return c.workspace
}

func (c *Client) fail() {
	c.mu.Lock()
	c.state = lspDomain.StateDead
	c.mu.Unlock()
}

// initialize performs the LSP initialize/initialized handshake and records
// the server capabilities.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   PathToURI(c.rootDir()),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"publishDiagnostics": map[string]any{},
				"rename":             map[string]any{"prepareSupport": true},
				"codeAction":         map[string]any{},
				"definition":         map[string]any{},
				"references":         map[string]any{},
				"documentSymbol":     map[string]any{},
			},
			"workspace": map[string]any{
				"workspaceEdit": map[string]any{
					"documentChanges":    true,
					"resourceOperations": []string{"create", "rename", "delete"},
				},
				"fileOperations": map[string]any{"willRename": true, "didRename": true},
				"configuration":  true,
			},
		},
	}
	if c.config.InitOpts != nil {
		params["initializationOptions"] = c.config.InitOpts
	}

	result, err := c.Request(ctx, "initialize", params, 30*time.Second)
	if err != nil {
		return err
	}

	var initResult struct {
		Capabilities lspDomain.ServerCapabilities `json:"capabilities"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	c.mu.Lock()
	c.capabilities = &initResult.Capabilities
	c.mu.Unlock()

	return c.Notify("initialized", map[string]any{})
}

// Request sends a request and waits for the matching response, the timeout,
// or client death. On timeout the pending entry is removed; a late reply
// from the server is discarded by the read loop.
func (c *Client) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	pr := &pendingRequest{ch: make(chan *JSONRPCMessage, 1)}

	c.pendMu.Lock()
	c.pending[id] = pr
	c.pendMu.Unlock()

	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	if err := c.conn.Request(id, method, params); err != nil {
		if !c.IsAlive() {
			return nil, refactor.WrapError(refactor.KindServerDied, err, "send %s", method)
		}
		return nil, refactor.WrapError(refactor.KindServerRequestFailed, err, "send %s", method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-pr.ch:
		if msg.Error != nil {
			return nil, refactor.WrapError(refactor.KindServerRequestFailed, msg.Error, "%s", method).
				WithDetail("lsp_code", msg.Error.Code).
				WithDetail("lsp_message", msg.Error.Message)
		}
		return msg.Result, nil
	case <-timer.C:
		return nil, refactor.NewError(refactor.KindTimeout, "%s did not answer within %s", method, timeout)
	case <-ctx.Done():
		return nil, refactor.WrapError(refactor.KindTimeout, ctx.Err(), "%s cancelled", method)
	case <-c.done:
		return nil, refactor.NewError(refactor.KindServerDied, "server %s died during %s", c.config.Language, method)
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params any) error {
	return c.conn.Notify(method, params)
}

// --- Document lifecycle ---

// OpenDocument sends textDocument/didOpen once per URI. Re-opening an
// already-open document is a no-op, keeping the server's open-set in sync
// with ours.
func (c *Client) OpenDocument(uri, languageID, content string) error {
	c.docMu.Lock()
	if _, open := c.openDocs[uri]; open {
		c.docMu.Unlock()
		return nil
	}
	c.openDocs[uri] = 1
	c.docMu.Unlock()

	return c.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       content,
		},
	})
}

// ChangeDocument sends a full-content didChange with the next version.
func (c *Client) ChangeDocument(uri, content string) error {
	c.docMu.Lock()
	v, open := c.openDocs[uri]
	if !open {
		c.docMu.Unlock()
		return refactor.NewError(refactor.KindInternal, "didChange for unopened document %s", uri)
	}
	v++
	c.openDocs[uri] = v
	c.docMu.Unlock()

	return c.Notify("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": v},
		"contentChanges": []map[string]any{{"text": content}},
	})
}

// CloseDocument sends didClose and drops the URI from the open-set.
func (c *Client) CloseDocument(uri string) error {
	c.docMu.Lock()
	_, open := c.openDocs[uri]
	delete(c.openDocs, uri)
	c.docMu.Unlock()
	if !open {
		return nil
	}
	return c.Notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
}

// IsOpen reports whether the URI is in the client's open-set.
func (c *Client) IsOpen(uri string) bool {
	c.docMu.Lock()
	defer c.docMu.Unlock()
	_, open := c.openDocs[uri]
	return open
}

// Diagnostics returns the cached diagnostics for a URI.
func (c *Client) Diagnostics(uri string) []lspDomain.Diagnostic {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	return c.diagnostics[uri]
}

// --- Shutdown ---

// Stop performs the graceful LSP shutdown sequence: shutdown request, exit
// notification, then wait for the process up to the deadline before killing
// it. Always leaves the client dead and the child reaped.
func (c *Client) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state == lspDomain.StateDead {
		c.mu.Unlock()
		c.reap()
		return
	}
	c.state = lspDomain.StateDraining
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if _, err := c.Request(shutdownCtx, "shutdown", nil, 5*time.Second); err != nil {
			slog.Debug("lsp shutdown request failed", "language", c.config.Language, "error", err)
		}
		cancel()
		_ = conn.Notify("exit", nil)
		_ = conn.Close()
	}

	select {
	case <-c.exited:
	case <-time.After(5 * time.Second):
		c.mu.Lock()
		cmd := c.cmd
		c.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			slog.Warn("lsp server did not exit, killing", "language", c.config.Language, "pid", cmd.Process.Pid)
			_ = cmd.Process.Kill()
		}
		<-c.exited
	}

	c.fail()
	slog.Info("lsp client stopped", "language", c.config.Language)
}

// Reaped returns a channel closed once the child process has been waited
// on. The orchestrator blocks on this before dropping a dead client so no
// zombie outlives eviction.
func (c *Client) Reaped() <-chan struct{} { return c.exited }

func (c *Client) reap() {
	select {
	case <-c.exited:
	case <-time.After(5 * time.Second):
	}
}

// waitLoop waits on the child process. It is the only caller of Wait, so
// the OS process entry is reaped exactly once.
func (c *Client) waitLoop() {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd != nil {
		if err := cmd.Wait(); err != nil {
			slog.Debug("lsp process exited", "language", c.config.Language, "error", err)
		}
	}
	close(c.exited)
}

// readLoop consumes messages until EOF. EOF means the child closed stdout:
// the client transitions to dead and every pending request is failed with
// ServerDied so no caller blocks forever.
func (c *Client) readLoop() {
	defer func() {
		c.fail()
		close(c.done)
		c.failPending()
	}()

	for {
		msg, err := c.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				slog.Debug("lsp read loop ended", "language", c.config.Language, "error", err)
			}
			return
		}

		switch msg.Kind() {
		case KindResponse:
			c.handleResponse(msg)
		case KindServerRequest:
			c.handleServerRequest(msg)
		case KindNotification:
			c.handleNotification(msg)
		}
	}
}

func (c *Client) failPending() {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	// Channels are buffered; pending waiters also select on c.done, so
	// clearing the map is enough.
	c.pending = make(map[int64]*pendingRequest)
}

func (c *Client) handleResponse(msg *JSONRPCMessage) {
	if msg.ID == nil {
		return
	}
	c.pendMu.Lock()
	pr, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.pendMu.Unlock()
	if ok {
		pr.ch <- msg
	}
	// A missing entry means the caller timed out; the late reply is dropped.
}

// handleServerRequest answers a server-initiated request synchronously from
// the read loop. Every request gets exactly one reply; unknown methods get
// a MethodNotFound error rather than silence, which would leave the server
// waiting and eventually wedge it.
func (c *Client) handleServerRequest(msg *JSONRPCMessage) {
	id := *msg.ID
	var err error
	switch msg.Method {
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		sections := make([]any, len(params.Items))
		err = c.conn.Reply(id, sections)
	case "client/registerCapability", "client/unregisterCapability":
		err = c.conn.Reply(id, nil)
	case "window/workDoneProgress/create":
		err = c.conn.Reply(id, nil)
	case "workspace/workspaceFolders":
		root := c.rootDir()
		if root == "" {
			err = c.conn.Reply(id, nil)
		} else {
			err = c.conn.Reply(id, []map[string]any{{
				"uri":  PathToURI(root),
				"name": c.config.Language,
			}})
		}
	case "workspace/applyEdit":
		// Server-pushed edits are not applied outside a plan; reject so the
		// server knows nothing happened.
		err = c.conn.Reply(id, map[string]any{"applied": false, "failureReason": "client applies edits only via plans"})
	default:
		err = c.conn.ReplyError(id, CodeMethodNotFound, "Method not found")
	}
	if err != nil {
		slog.Warn("lsp: failed to answer server request",
			"language", c.config.Language, "method", msg.Method, "error", err)
	}
}

func (c *Client) handleNotification(msg *JSONRPCMessage) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		c.handlePublishDiagnostics(msg.Params)
	case "window/logMessage", "window/showMessage":
		var params struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			slog.Debug("lsp server message", "language", c.config.Language, "type", params.Type, "message", params.Message)
		}
	case "$/progress":
		// Ignored; progress is not surfaced.
	default:
		slog.Debug("lsp notification ignored", "method", msg.Method, "language", c.config.Language)
	}
}

func (c *Client) handlePublishDiagnostics(raw json.RawMessage) {
	var params struct {
		URI         string                 `json:"uri"`
		Diagnostics []lspDomain.Diagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		slog.Warn("lsp: failed to unmarshal diagnostics", "error", err)
		return
	}

	c.diagMu.Lock()
	if len(params.Diagnostics) == 0 {
		delete(c.diagnostics, params.URI)
	} else {
		c.diagnostics[params.URI] = params.Diagnostics
	}
	c.diagMu.Unlock()
}
