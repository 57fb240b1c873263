package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// globalState is the model-selection record the agent reads on startup.
// OpenRouter needs the provider-specific model keys; the generic
// actModeApiModelId keys are ignored for it.
type globalState struct {
	WelcomeViewCompleted      bool   `json:"welcomeViewCompleted"`
	ActModeAPIProvider        string `json:"actModeApiProvider"`
	ActModeOpenRouterModelID  string `json:"actModeOpenRouterModelId"`
	PlanModeAPIProvider       string `json:"planModeApiProvider"`
	PlanModeOpenRouterModelID string `json:"planModeOpenRouterModelId"`
}

type secrets struct {
	OpenRouterAPIKey string `json:"openRouterApiKey"`
}

// stateFiles returns the on-disk layout of an isolated state directory
func stateFiles(dir string) (data, globalStatePath, secretsPath, mcpPath string) {
	data = filepath.Join(dir, "data")
	return data,
		filepath.Join(data, "globalState.json"),
		filepath.Join(data, "secrets.json"),
		filepath.Join(data, "settings", "cline_mcp_settings.json")
}

// setupState materializes the isolated state directory. Every file is
// rewritten on each call so a reused directory never keeps a stale model,
// tool descriptor or key.
func setupState(dir, model, planModel, mcpSource, apiKey string, logger *slog.Logger) error {
	dataDir, statePath, secretsPath, mcpDest := stateFiles(dir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if mcpSource != "" {
		if _, err := os.Stat(mcpSource); err == nil {
			if err := copyFile(mcpSource, mcpDest); err != nil {
				return fmt.Errorf("failed to copy MCP settings: %w", err)
			}
			logger.Debug("Copied MCP settings", "dest", mcpDest)
		} else {
			logger.Debug("MCP settings not found, skipping", "path", mcpSource)
		}
	}

	state := globalState{
		WelcomeViewCompleted:      true,
		ActModeAPIProvider:        "openrouter",
		ActModeOpenRouterModelID:  model,
		PlanModeAPIProvider:       "openrouter",
		PlanModeOpenRouterModelID: planModel,
	}
	if err := writeJSON(statePath, state, 0644); err != nil {
		return fmt.Errorf("failed to write globalState.json: %w", err)
	}
	logger.Debug("Wrote globalState.json", "path", statePath)

	if apiKey != "" {
		if err := writeJSON(secretsPath, secrets{OpenRouterAPIKey: apiKey}, 0600); err != nil {
			return fmt.Errorf("failed to write secrets.json: %w", err)
		}
		logger.Debug("Wrote secrets.json", "path", secretsPath)
	}

	return nil
}

func writeJSON(path string, v interface{}, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
