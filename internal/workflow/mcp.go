package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed cline_mcp_settings.json
var defaultMCPSettings []byte

// mcpStateDir holds the materialized default MCP descriptor
const mcpStateDir = ".cline-mcp"

// MCPSettingsPath returns RALPH_MCP_SETTINGS when set, otherwise writes the
// bundled Playwright descriptor under the repository root and returns its path
func MCPSettingsPath(repoRoot string, getenv func(string) string) (string, error) {
	if p := getenv("RALPH_MCP_SETTINGS"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("RALPH_MCP_SETTINGS points to a missing file: %s", p)
		}
		return p, nil
	}

	dir := filepath.Join(repoRoot, mcpStateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "cline_mcp_settings.json")
	if err := os.WriteFile(path, defaultMCPSettings, 0644); err != nil {
		return "", fmt.Errorf("failed to write MCP settings: %w", err)
	}
	return path, nil
}
