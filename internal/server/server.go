// Package server is the composition root: it resolves the configuration
// into live clients (ERP, vector store, embeddings, history), builds the
// sync engine and registers every tool, prompt and resource on the MCP
// server. No encoding or sync logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"

	"github.com/mbartocci/odoovec/internal/config"
	"github.com/mbartocci/odoovec/internal/embed"
	"github.com/mbartocci/odoovec/internal/history"
	"github.com/mbartocci/odoovec/internal/odoo"
	"github.com/mbartocci/odoovec/internal/prompts"
	"github.com/mbartocci/odoovec/internal/resources"
	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/syncer"
	"github.com/mbartocci/odoovec/internal/tools"
	"github.com/mbartocci/odoovec/internal/vector"
	"github.com/mbartocci/odoovec/internal/wire"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds the wired runtime dependencies, shared between the MCP
// server and the one-shot CLI sync path.
type Deps struct {
	Proto   *wire.Protocol
	Loader  *schema.Loader
	Engine  *syncer.Engine
	History *history.Store
	Store   *vector.Client
	Embed   *embed.Client

	cleanups []func()
}

// Close releases everything Build opened, in reverse order.
func (d *Deps) Close() {
	for i := len(d.cleanups) - 1; i >= 0; i-- {
		d.cleanups[i]()
	}
}

// Build resolves the configuration into live dependencies. The schema
// comes from the ERP's metadata tables when an Odoo URL is configured,
// otherwise from the schema file; with both, the file wins and the ERP
// is only used for record fetches.
func Build(cfg config.Config) (*Deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	proto, ok := wire.ProtocolFor(wire.Version(cfg.Sync.ProtocolVersion))
	if !ok {
		return nil, fmt.Errorf("unknown protocol version %d", cfg.Sync.ProtocolVersion)
	}

	d := &Deps{Proto: proto}

	var client *odoo.Client
	if cfg.Odoo.URL != "" {
		client = odoo.NewClient(odoo.Config{
			URL:      cfg.Odoo.URL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			APIKey:   cfg.Odoo.APIKey,
			Timeout:  cfg.Odoo.Timeout,
		})
		if err := client.Authenticate(context.Background()); err != nil {
			// The ERP being down must not keep the server from starting;
			// search over already-synced data still works.
			log.Printf("WARNING: ERP unavailable, sync disabled until it returns: %v", err)
		}
	}

	var (
		source     schema.Source
		schemaHash func() (string, error)
	)
	if cfg.Paths.SchemaFile != "" {
		fileSource := schema.NewFileSource(proto, cfg.Paths.SchemaFile)
		source = fileSource
		schemaHash = fileSource.Hash

		watcher, err := schema.Watch(cfg.Paths.SchemaFile, func() {
			log.Printf("schema file changed, invalidating registry")
			d.Loader.Invalidate()
		})
		if err != nil {
			log.Printf("WARNING: schema file watch disabled: %v", err)
		} else {
			d.cleanups = append(d.cleanups, func() { _ = watcher.Close() })
		}
	} else {
		source = &odoo.MetadataSource{Client: client, Proto: proto, Models: cfg.Sync.Models}
	}
	d.Loader = schema.NewLoader(proto, source)

	d.Store = vector.NewClient(vector.Config{
		URL:        cfg.Vector.URL,
		APIKey:     cfg.Vector.APIKey,
		Collection: cfg.Vector.Collection,
	})
	d.Embed = embed.NewClient(embed.Config{
		BaseURL:      cfg.Embeddings.URL,
		APIKey:       cfg.Embeddings.APIKey,
		Model:        cfg.Embeddings.Model,
		MaxBatchSize: cfg.Embeddings.BatchSize,
	})

	hist, err := history.New(cfg.Paths.HistoryDB)
	if err != nil {
		log.Printf("WARNING: run history disabled: %v", err)
	} else {
		d.History = hist
		d.cleanups = append(d.cleanups, func() { _ = hist.Close() })
	}

	var fetcher odoo.Fetcher
	if client != nil {
		fetcher = client
	}
	d.Engine = syncer.New(syncer.Config{
		Proto:        proto,
		Loader:       d.Loader,
		Embedder:     d.Embed,
		Store:        d.Store,
		Fetcher:      fetcher,
		ChecksumPath: cfg.Paths.ChecksumFile,
		SchemaHash:   schemaHash,
		BatchSize:    cfg.Sync.BatchSize,
		MaxRetries:   cfg.Sync.MaxRetries,
	})

	return d, nil
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered. The returned cleanup function must be called on
// shutdown (typically via defer); it is always non-nil.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	deps, err := Build(cfg)
	if err != nil {
		return nil, func() {}, err
	}

	s := server.NewMCPServer(
		"odoovec",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	searchTool := tools.NewSearchRecordsTool(deps.Embed, deps.Store, deps.Loader)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	syncSchemaTool := tools.NewSyncSchemaTool(deps.Engine, deps.History)
	s.AddTool(syncSchemaTool.Definition(), syncSchemaTool.Handle)

	syncDataTool := tools.NewSyncModelDataTool(deps.Engine, deps.History)
	s.AddTool(syncDataTool.Definition(), syncDataTool.Handle)

	statusTool := tools.NewSyncStatusTool(deps.History)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	decodeTool := tools.NewDecodeRecordTool(deps.Loader)
	s.AddTool(decodeTool.Definition(), decodeTool.Handle)

	listTool := tools.NewListModelsTool(deps.Loader)
	s.AddTool(listTool.Definition(), listTool.Handle)

	// --- Register prompts ---

	explorePrompt := prompts.NewExplorePrompt()
	s.AddPrompt(explorePrompt.Definition(), explorePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(deps.Loader, deps.History)
	s.AddResource(resourceHandler.SchemaResource(), resourceHandler.HandleSchema)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	// --- Scheduled syncs ---

	if cfg.Sync.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Sync.Schedule, func() {
			RunSync(context.Background(), deps, cfg.Sync.Models)
		})
		if err != nil {
			deps.Close()
			return nil, func() {}, fmt.Errorf("invalid sync schedule %q: %w", cfg.Sync.Schedule, err)
		}
		c.Start()
		deps.cleanups = append(deps.cleanups, func() { c.Stop() })
		log.Printf("scheduled sync enabled: %s", cfg.Sync.Schedule)
	}

	return s, deps.Close, nil
}

// RunSync runs a schema sync followed by a data sync per model,
// recording every run. Shared by the cron schedule and the CLI.
func RunSync(ctx context.Context, deps *Deps, models []string) {
	res, err := deps.Engine.SyncSchema(ctx)
	if err == syncer.ErrAlreadyRunning {
		log.Printf("schema sync skipped: already running")
	} else {
		recordSchemaRun(deps.History, res, err)
		if err != nil {
			log.Printf("schema sync failed in phase %s: %v", res.Phase, err)
			return
		}
	}

	for _, model := range models {
		res, err := deps.Engine.SyncModelData(ctx, model, 0, nil)
		if err == syncer.ErrAlreadyRunning {
			log.Printf("data sync for %s skipped: already running", model)
			continue
		}
		recordDataRun(deps.History, res, err)
		if err != nil {
			log.Printf("data sync for %s failed: %v", model, err)
		}
	}
}

func recordSchemaRun(hist *history.Store, res syncer.SchemaResult, err error) {
	if hist == nil {
		return
	}
	run := history.Run{
		ID:         res.RunID,
		Kind:       history.KindSchema,
		Added:      len(res.Diff.Added),
		Modified:   len(res.Diff.Modified),
		Deleted:    len(res.Diff.Deleted),
		Unchanged:  len(res.Diff.Unchanged),
		Success:    err == nil,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if err := hist.RecordRun(run); err != nil {
		log.Printf("recording schema run: %v", err)
	}
}

func recordDataRun(hist *history.Store, res syncer.DataResult, err error) {
	if hist == nil {
		return
	}
	run := history.Run{
		ID:         res.RunID,
		Kind:       history.KindData,
		Model:      res.Model,
		Fetched:    res.Fetched,
		Upserted:   res.Upserted,
		Success:    err == nil && res.Success,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	for _, r := range res.Restrictions {
		run.Restrictions = append(run.Restrictions, history.Restriction{
			FieldName: r.FieldName,
			Reason:    string(r.Reason),
			Offset:    r.DiscoveredAtOffset,
		})
	}
	if err := hist.RecordRun(run); err != nil {
		log.Printf("recording data run: %v", err)
	}
}

// serverInstructions returns the system instructions that tell the AI
// how to use the server effectively.
func serverInstructions() string {
	return `You have access to odoovec, an MCP server exposing ERP (Odoo) records
through semantic search.

## How the data is organized

Records are stored as coordinate-encoded strings: each field is a
"coordinate*value" segment. Foreign keys encode under the TARGET model's
identity coordinate, so a crm.lead's customer appears as a res.partner
field when decoded. You rarely need the raw encoding; search_records
and decode_record return readable fields.

## Typical workflows

- To answer questions about business data: call search_records with a
  natural-language query. Restrict with model= when the user names one.
- Before the first search in a session, list_models tells you what has
  been synced.
- If searches come back empty or stale, run sync_schema and then
  sync_model_data for the relevant models.
- sync_status shows recent runs, failures and fields the ERP refused to
  serve ("[API Restricted]" in decoded output means exactly that).

## Rules

- Never invent field values: if a field shows [API Restricted], say so.
- Record ids in results are real ERP ids; cite them.`
}
