// Package lsp defines domain types for Language Server Protocol integration:
// the wire shapes the client exchanges with external servers and the server
// configuration model the orchestrator pools clients by. Positions reuse the
// text domain so columns stay in UTF-16 code units everywhere.
package lsp

import (
	"encoding/json"

	"github.com/Strob0t/RefactorForge/internal/domain/text"
)

// Position and Range follow the LSP encoding (zero-based, UTF-16 columns).
type (
	Position = text.Position
	Range    = text.Range
)

// Location links a URI to a range.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// DiagnosticSeverity mirrors LSP DiagnosticSeverity.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

// Diagnostic represents a compiler/linter diagnostic published by a server.
type Diagnostic struct {
	Range    Range           `json:"range"`
	Severity int             `json:"severity,omitempty"`
	Source   string          `json:"source,omitempty"`
	Message  string          `json:"message"`
	Code     json.RawMessage `json:"code,omitempty"` // string or number per spec
}

// TextEdit is the LSP wire form of a text replacement.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// OptionalVersionedTextDocumentIdentifier names a document in a
// TextDocumentEdit. Version is null for unversioned edits.
type OptionalVersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version *int   `json:"version"`
}

// TextDocumentEdit groups edits to one document.
type TextDocumentEdit struct {
	TextDocument OptionalVersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []TextEdit                              `json:"edits"`
}

// RenameFile is the documentChanges entry for a file rename.
type RenameFile struct {
	Kind   string `json:"kind"` // "rename"
	OldURI string `json:"oldUri"`
	NewURI string `json:"newUri"`
}

// CreateFile is the documentChanges entry for a file creation.
type CreateFile struct {
	Kind string `json:"kind"` // "create"
	URI  string `json:"uri"`
}

// DeleteFile is the documentChanges entry for a file deletion.
type DeleteFile struct {
	Kind string `json:"kind"` // "delete"
	URI  string `json:"uri"`
}

// WorkspaceEdit is the result shape of textDocument/rename and
// workspace/willRenameFiles. Servers use either Changes or DocumentChanges;
// DocumentChanges entries are heterogeneous (TextDocumentEdit, RenameFile,
// CreateFile, DeleteFile) so they stay raw until classified.
type WorkspaceEdit struct {
	Changes         map[string][]TextEdit `json:"changes,omitempty"`
	DocumentChanges []json.RawMessage     `json:"documentChanges,omitempty"`
}

// ServerCapabilities is the subset of the initialize result the planners
// consult when deciding between the LSP path and the AST fallback.
type ServerCapabilities struct {
	RenameProvider     json.RawMessage `json:"renameProvider,omitempty"`
	CodeActionProvider json.RawMessage `json:"codeActionProvider,omitempty"`
	ReferencesProvider json.RawMessage `json:"referencesProvider,omitempty"`
	DefinitionProvider json.RawMessage `json:"definitionProvider,omitempty"`
	TextDocumentSync   json.RawMessage `json:"textDocumentSync,omitempty"`
	Workspace          *WorkspaceCaps  `json:"workspace,omitempty"`
}

// WorkspaceCaps nests the file-operation capabilities.
type WorkspaceCaps struct {
	FileOperations *FileOperationCaps `json:"fileOperations,omitempty"`
}

// FileOperationCaps advertises will/did rename support.
type FileOperationCaps struct {
	WillRename json.RawMessage `json:"willRename,omitempty"`
	DidRename  json.RawMessage `json:"didRename,omitempty"`
}

// SupportsRename reports whether the server advertises textDocument/rename.
func (c *ServerCapabilities) SupportsRename() bool {
	return c != nil && truthy(c.RenameProvider)
}

// SupportsWillRenameFiles reports whether the server wants
// workspace/willRenameFiles before file moves.
func (c *ServerCapabilities) SupportsWillRenameFiles() bool {
	return c != nil && c.Workspace != nil && c.Workspace.FileOperations != nil &&
		len(c.Workspace.FileOperations.WillRename) > 0
}

// SupportsCodeActions reports whether the server advertises code actions.
func (c *ServerCapabilities) SupportsCodeActions() bool {
	return c != nil && truthy(c.CodeActionProvider)
}

// truthy treats a capability field as supported unless absent, false, or null.
func truthy(raw json.RawMessage) bool {
	s := string(raw)
	return len(raw) > 0 && s != "false" && s != "null"
}

// ClientState is the lifecycle state of one LSP client.
type ClientState string

const (
	StateSpawned      ClientState = "spawned"
	StateInitializing ClientState = "initializing"
	StateReady        ClientState = "ready"
	StateDraining     ClientState = "draining"
	StateDead         ClientState = "dead"
)

// ClientInfo describes one pooled client for health reporting.
type ClientInfo struct {
	Key         string      `json:"key"`
	Language    string      `json:"language"`
	State       ClientState `json:"state"`
	Command     string      `json:"command"`
	PID         int         `json:"pid,omitempty"`
	UptimeSec   int64       `json:"uptime_sec,omitempty"`
	Restarts    int         `json:"restarts"`
	Diagnostics int         `json:"diagnostics"`
	OpenDocs    int         `json:"open_docs"`
}
