// odoovec: ERP Vector Search MCP Server
//
// Syncs Odoo-style ERP records into a vector store as coordinate-encoded
// strings and exposes semantic search over them to AI tools via MCP.
//
// Usage:
//
//	odoovec serve             # Start MCP server (stdio transport)
//	odoovec sync [model ...]  # One-shot schema + data sync
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbartocci/odoovec/internal/config"
	odooserver "github.com/mbartocci/odoovec/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "sync":
		if err := runSync(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("odoovec v%s\n", odooserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	path := os.Getenv("ODOOVEC_CONFIG")
	if path == "" {
		path = "odoovec.yaml"
	}
	return config.Load(path)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, cleanup, err := odooserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

// runSync performs a one-shot schema sync followed by data syncs. With
// no arguments it syncs the configured models; arguments override them.
func runSync(models []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		models = cfg.Sync.Models
	}

	deps, err := odooserver.Build(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	odooserver.RunSync(context.Background(), deps, models)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `odoovec v%s — ERP Vector Search MCP Server

Usage:
  odoovec serve             Start the MCP server (stdio transport)
  odoovec sync [model ...]  Sync the schema, then the given models
                            (defaults to the configured model list)

Configuration:
  Settings come from odoovec.yaml (or $ODOOVEC_CONFIG) with ODOOVEC_*
  environment overrides. Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "odoovec": {
        "command": "odoovec",
        "args": ["serve"]
      }
    }
  }
`, odooserver.Version)
}
