package mcp

import (
	"bytes"
	"errors"
	"io"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
)

// toolResultJSON wraps a JSON document as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}

func jsonReader(raw []byte) io.Reader {
	return bytes.NewReader(raw)
}

func refactorErrorAs(err error, target **refactor.Error) bool {
	return errors.As(err, target)
}
