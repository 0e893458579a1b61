package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studymate/internal/config"
	"studymate/internal/llm"
	"studymate/internal/logging"
	"studymate/internal/orchestrator"
	"studymate/internal/store"
	"studymate/internal/types"
	"studymate/internal/video"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive tutoring session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

const historyWindow = 12

func runChat(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured; set STUDYMATE_API_KEY or llm.api_key in %s", configPath)
	}

	policy, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	primary, fallback, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(storePath(configPath))
	if err != nil {
		return err
	}
	defer db.Close()

	var orchMu sync.Mutex
	orch := orchestrator.New(cfg, policy, primary, fallback, nil, video.NewAPIBackend(cfg.Video))

	// Policy YAML edits take effect on the next turn without a restart.
	if cfg.PolicyDir != "" {
		watcher, err := config.NewPolicyWatcher(cfg.PolicyDir, func(p *config.Policy) {
			orchMu.Lock()
			orch = orchestrator.New(cfg, p, primary, fallback, nil, video.NewAPIBackend(cfg.Video))
			orchMu.Unlock()
			logging.Config("policy reloaded from %s", cfg.PolicyDir)
		})
		if err != nil {
			logging.Config("policy watch unavailable: %v", err)
		} else if err := watcher.Start(ctx); err != nil {
			logging.Config("policy watch failed to start: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
		fmt.Printf("New session %s\n", sessionID)
	}
	state, err := db.LoadState(ctx, sessionID)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	logging.Session("session %s started", sessionID)

	fmt.Println("studymate ready. Type a question, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		history, err := db.History(ctx, sessionID, historyWindow)
		if err != nil {
			logging.Session("history load failed: %v", err)
		}

		req := types.TurnRequest{
			SessionID:   sessionID,
			Text:        text,
			ChatHistory: history,
			State:       state,
		}

		var sink orchestrator.TokenSink
		streamed := false
		if stream {
			sink = func(token string) {
				streamed = true
				fmt.Print(token)
			}
		}

		orchMu.Lock()
		current := orch
		orchMu.Unlock()
		resp, err := current.Turn(ctx, req, sink)
		if err != nil {
			fmt.Println("Something went wrong on my side. Shall we try that again?")
			continue
		}
		if streamed {
			fmt.Println()
		}
		fmt.Println(resp.ProcessedText)
		for _, src := range resp.Sources {
			fmt.Printf("  source: %s (%s)\n", src.SourceName, src.URL)
		}
		if resp.Video != nil {
			fmt.Printf("  video: %s by %s (id %s)\n", resp.Video.Title, resp.Video.Channel, resp.Video.ID)
		}

		state = resp.State
		if err := db.SaveState(ctx, sessionID, state); err != nil {
			logging.Session("state save failed: %v", err)
		}
		if err := db.AppendMessage(ctx, sessionID, types.ChatMessage{Role: "user", Content: text}); err == nil {
			_ = db.AppendMessage(ctx, sessionID, types.ChatMessage{Role: "assistant", Content: resp.ProcessedText})
		}
	}
	return scanner.Err()
}

// loadPolicy reads the YAML policy overlay when a policy directory is
// configured, otherwise returns the compiled-in defaults.
func loadPolicy(cfg *config.UserConfig) (*config.Policy, error) {
	if cfg.PolicyDir == "" {
		return config.DefaultPolicy(), nil
	}
	policy, err := config.LoadPolicy(cfg.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("load policy from %s: %w", cfg.PolicyDir, err)
	}
	return policy, nil
}

func storePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "studymate.db")
}
