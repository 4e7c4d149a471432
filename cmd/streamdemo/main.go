// Command streamdemo runs a minimal HTTP/SSE surface over the tool-call
// streaming pipeline: it accepts a turn's raw model output text, feeds it
// through the SafeChunker, the inline-call formatter, the structured-call
// executor, and the typed-lag smoother, and streams the paced result back
// to the client as SSE delta events.
//
// Driving a real LLM backend's token generation is a separate concern:
// this binary takes pre-generated model output text as its input and
// exercises the pipeline exactly as a provider adapter would, split into
// fixed-size chunks to simulate incremental delivery.
//
// Configuration can be provided via:
//   - YAML config file (--config flag, TOOLSTREAM_CONFIG env, ./config.yaml, /etc/toolstream/config.yaml)
//   - Environment variables with the TOOLSTREAM_ prefix (override config file values)
//
// See config.example.yaml for full documentation of available settings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/justinlietz93/toolstream/pkg/auth"
	"github.com/justinlietz93/toolstream/pkg/auth/apikey"
	"github.com/justinlietz93/toolstream/pkg/auth/jwt"
	"github.com/justinlietz93/toolstream/pkg/auth/noop"
	"github.com/justinlietz93/toolstream/pkg/config"
	"github.com/justinlietz93/toolstream/pkg/debug"
	"github.com/justinlietz93/toolstream/pkg/observability"
	"github.com/justinlietz93/toolstream/pkg/provideradapter"
	pgstorage "github.com/justinlietz93/toolstream/pkg/storage/postgres"
	"github.com/justinlietz93/toolstream/pkg/stream/executor"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/codeinterpreter"
	sandboxk8s "github.com/justinlietz93/toolstream/pkg/tools/builtins/codeinterpreter/kubernetes"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/file"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/filesearch"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/httprequest"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/memory"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/packagemanager"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/shell"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/webbrowser"
	"github.com/justinlietz93/toolstream/pkg/tools/builtins/websearch"
	mcptools "github.com/justinlietz93/toolstream/pkg/tools/mcp"
	"github.com/justinlietz93/toolstream/pkg/tools/multiexec"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
	"github.com/justinlietz93/toolstream/pkg/toolschema"
)

// chunkSize is the width, in runes, of the simulated provider chunks a
// /v1/stream request's input text is split into before being fed to the
// pipeline one fragment at a time.
const chunkSize = 24

func main() {
	if err := run(); err != nil {
		slog.Error("streamdemo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	builtins, err := createBuiltinRegistry(cfg)
	if err != nil {
		return fmt.Errorf("creating builtin tool registry: %w", err)
	}
	defer builtins.Close()

	mcpExecutor, err := createMCPExecutor(cfg)
	if err != nil {
		return fmt.Errorf("creating MCP executor: %w", err)
	}
	if mcpExecutor != nil {
		defer mcpExecutor.Close()
	}

	schemas, err := toolschema.NewSet()
	if err != nil {
		return fmt.Errorf("compiling tool schemas: %w", err)
	}
	if mcpExecutor != nil {
		for _, td := range mcpExecutor.DiscoveredTools() {
			if err := schemas.Register(td.Name, td.Parameters); err != nil {
				slog.Warn("skipping MCP tool with invalid schema", "tool", td.Name, "error", err)
			}
		}
	}

	var archiver executor.Archiver
	if cfg.Tools.HistoryArchiveDSN != "" {
		store, err := pgstorage.New(context.Background(), pgstorage.Config{
			DSN:            cfg.Tools.HistoryArchiveDSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("connecting history archive: %w", err)
		}
		defer store.Close()
		archiver = store
		slog.Info("call history archive enabled")
	}

	execs := []tools.ToolExecutor{builtins}
	if mcpExecutor != nil {
		execs = append(execs, mcpExecutor)
	}

	srv := &streamServer{
		cfg:      cfg,
		toolExec: multiexec.New(execs...),
		schemas:  schemas,
		archiver: archiver,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/stream", srv.handleStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if builtins.HasProviders() {
		mux.Handle("/v1/tools/", http.StripPrefix("/v1/tools", builtins.HTTPHandler()))
	}

	if cfg.Observability.Metrics.Enabled {
		metricsPath := cfg.Observability.Metrics.Path
		mux.Handle("GET "+metricsPath, promhttp.Handler())
		slog.Info("metrics endpoint enabled", "path", metricsPath)
	}

	var handler http.Handler = corsMiddleware(mux)
	if cfg.Observability.Metrics.Enabled {
		handler = observability.MetricsMiddleware(handler)
	}

	authChain := buildAuthChain(cfg)
	if authChain != nil {
		authMiddleware := auth.Middleware(authChain, nil, auth.DefaultBypassEndpoints)
		handler = authMiddleware(handler)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("streamdemo starting", "port", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// createBuiltinRegistry wires every configured builtin tool provider into a
// registry.FunctionRegistry. Providers whose backing service isn't
// configured (documentation_check, web_search, code_runner, memory) are
// skipped rather than constructed with empty settings.
func createBuiltinRegistry(cfg *config.Config) (*registry.FunctionRegistry, error) {
	reg := registry.New()

	fileProvider, err := file.New(cfg.Tools.SandboxRoot)
	if err != nil {
		return nil, fmt.Errorf("file tool: %w", err)
	}
	reg.Register(fileProvider)

	shellTimeout := time.Duration(cfg.Stream.DefaultToolTimeoutSecs) * time.Second
	reg.Register(shell.New(shellTimeout, nil))

	httpTimeout := time.Duration(cfg.Stream.HTTPRequestTimeoutSecs) * time.Second
	reg.Register(httprequest.New(httpTimeout, nil))

	reg.Register(packagemanager.New(".", shellTimeout))
	reg.Register(webbrowser.New(httpTimeout))

	if cfg.Tools.MemoryRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Tools.MemoryRedisAddr})
		reg.Register(memory.New(client, "default"))
	}

	if cfg.Tools.WebSearchBackendURL != "" {
		wsProvider, err := websearch.New(map[string]interface{}{
			"url": cfg.Tools.WebSearchBackendURL,
		})
		if err != nil {
			return nil, fmt.Errorf("web_search tool: %w", err)
		}
		reg.Register(wsProvider)
	}

	if cfg.Tools.DocumentationQdrantURL != "" && cfg.Tools.DocumentationEmbeddingURL != "" {
		docProvider, err := filesearch.New(map[string]interface{}{
			"backend_url":   cfg.Tools.DocumentationQdrantURL,
			"embedding_url": cfg.Tools.DocumentationEmbeddingURL,
		})
		if err != nil {
			return nil, fmt.Errorf("documentation_check tool: %w", err)
		}
		reg.Register(docProvider)
	}

	if cfg.Tools.CodeRunnerSandboxURL != "" || cfg.Tools.CodeRunnerSandboxTemplate != "" {
		runnerProvider, err := createCodeRunner(cfg)
		if err != nil {
			return nil, fmt.Errorf("code_runner tool: %w", err)
		}
		reg.Register(runnerProvider)
	}

	return reg, nil
}

// createCodeRunner builds the code_runner provider in static-URL mode, or in
// SandboxClaim mode backed by a Kubernetes ClaimAcquirer when a
// sandbox_template is configured instead.
func createCodeRunner(cfg *config.Config) (*codeinterpreter.CodeRunnerProvider, error) {
	settings := map[string]any{
		"execution_timeout": cfg.Stream.CodeRunnerTimeoutSecs,
	}

	if cfg.Tools.CodeRunnerSandboxURL != "" {
		settings["sandbox_url"] = cfg.Tools.CodeRunnerSandboxURL
		return codeinterpreter.New(settings)
	}

	settings["sandbox_template"] = cfg.Tools.CodeRunnerSandboxTemplate
	namespace := cfg.Tools.CodeRunnerSandboxNamespace
	if namespace == "" {
		namespace = "default"
	}
	settings["sandbox_namespace"] = namespace

	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	scheme, err := sandboxk8s.NewScheme()
	if err != nil {
		return nil, err
	}
	k8sClient, err := ctrlclient.New(restCfg, ctrlclient.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}

	acquirer := sandboxk8s.NewClaimAcquirer(
		k8sClient,
		cfg.Tools.CodeRunnerSandboxTemplate,
		namespace,
		30*time.Second,
	)
	return codeinterpreter.NewWithAcquirer(settings, acquirer)
}

// createMCPExecutor creates an MCP executor from the config. Returns nil if
// no MCP servers are configured.
func createMCPExecutor(cfg *config.Config) (*mcptools.MCPExecutor, error) {
	if len(cfg.MCP.Servers) == 0 {
		return nil, nil
	}

	ctx := context.Background()
	clients := make(map[string]*mcptools.MCPClient, len(cfg.MCP.Servers))

	for _, serverCfg := range cfg.MCP.Servers {
		if serverCfg.Name == "" {
			return nil, fmt.Errorf("MCP server config missing 'name'")
		}
		if serverCfg.URL == "" {
			return nil, fmt.Errorf("MCP server %q missing 'url'", serverCfg.Name)
		}

		mcpCfg := mcptools.ServerConfig{
			Name:      serverCfg.Name,
			Transport: serverCfg.Transport,
			URL:       serverCfg.URL,
			Headers:   serverCfg.Headers,
			Auth: mcptools.MCPAuthConfig{
				Type:             serverCfg.Auth.Type,
				TokenURL:         serverCfg.Auth.TokenURL,
				ClientID:         serverCfg.Auth.ClientID,
				ClientIDFile:     serverCfg.Auth.ClientIDFile,
				ClientSecret:     serverCfg.Auth.ClientSecret,
				ClientSecretFile: serverCfg.Auth.ClientSecretFile,
				Scopes:           serverCfg.Auth.Scopes,
			},
		}

		client := mcptools.NewMCPClient(mcpCfg)
		if err := client.Connect(ctx); err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("connecting to MCP server %q: %w", serverCfg.Name, err)
		}
		clients[serverCfg.Name] = client
		slog.Info("MCP server connected", "name", serverCfg.Name, "url", serverCfg.URL)
	}

	return mcptools.NewMCPExecutor(clients), nil
}

// buildAuthChain creates an auth chain from config. Returns nil when auth
// is disabled (type=none).
func buildAuthChain(cfg *config.Config) *auth.AuthChain {
	switch cfg.Auth.Type {
	case "apikey":
		var entries []apikey.RawKeyEntry
		for _, k := range cfg.Auth.APIKeys {
			metadata := map[string]string{}
			if k.TenantID != "" {
				metadata["tenant_id"] = k.TenantID
			}
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Metadata:    metadata,
				},
			})
		}
		if len(entries) == 0 {
			slog.Warn("auth.type=apikey but no api_keys configured")
			return nil
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}
	case "jwt":
		return &auth.AuthChain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				Issuer:      cfg.Auth.JWT.Issuer,
				Audience:    cfg.Auth.JWT.Audience,
				JWKSURL:     cfg.Auth.JWT.JWKSURL,
				UserClaim:   cfg.Auth.JWT.UserClaim,
				TenantClaim: cfg.Auth.JWT.TenantClaim,
				ScopesClaim: cfg.Auth.JWT.ScopesClaim,
			})},
			DefaultDecision: auth.No,
		}
	case "none", "":
		return nil
	default:
		slog.Warn("unknown auth type, auth disabled", "type", cfg.Auth.Type)
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Compile-time check that noop.Authenticator satisfies auth.Authenticator;
// buildAuthChain does not use it (auth.type "none" yields no chain).
var _ auth.Authenticator = (*noop.Authenticator)(nil)

// streamServer holds the shared wiring every /v1/stream request builds a
// fresh Pipeline from. Each request gets its own stream ID and Pipeline;
// nothing here is request-specific state.
type streamServer struct {
	cfg      *config.Config
	toolExec tools.ToolExecutor
	schemas  *toolschema.Set
	archiver executor.Archiver
}

func (s *streamServer) newPipeline(streamID string) *provideradapter.Pipeline {
	return provideradapter.New(s.toolExec, s.schemas, provideradapter.Config{
		StreamID:           streamID,
		ChunkerIdleFlush:   time.Duration(s.cfg.Stream.ChunkerIdleFlushSeconds * float64(time.Second)),
		DefaultToolTimeout: time.Duration(s.cfg.Stream.DefaultToolTimeoutSecs) * time.Second,
		ToolTimeouts: map[string]time.Duration{
			"code_runner":  time.Duration(s.cfg.Stream.CodeRunnerTimeoutSecs) * time.Second,
			"http_request": time.Duration(s.cfg.Stream.HTTPRequestTimeoutSecs) * time.Second,
		},
		Archiver:             s.archiver,
		SmootherInitialDelay: time.Duration(s.cfg.Stream.SmootherInitialDelayMS) * time.Millisecond,
		SmootherZeroDelayQ:   s.cfg.Stream.SmootherZeroDelayQueue,
	})
}

// streamRequest is the demo's input shape: pre-generated model output text,
// split into fixed-size chunks to simulate incremental provider delivery.
type streamRequest struct {
	Text string `json:"text"`
}

// handleStream feeds the request body's text through a fresh Pipeline and
// streams the resulting paced runes back as SSE delta events.
func (s *streamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	streamID := uuid.NewString()
	pipeline := s.newPipeline(streamID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	rc := http.NewResponseController(w)

	ctx := r.Context()
	runes := []rune(req.Text)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[i:end])
		if !writeDeltas(ctx, w, rc, pipeline.Feed(ctx, chunk)) {
			return
		}
	}
	if !writeDeltas(ctx, w, rc, pipeline.End(ctx)) {
		return
	}

	fmt.Fprintf(w, "event: done\ndata: {}\n\n")
	rc.Flush()
}

// writeDeltas drains ch, writing each rune as an SSE delta event followed
// by an explicit flush so the client sees it immediately. Returns false if
// the client disconnected or the context was cancelled.
func writeDeltas(ctx context.Context, w http.ResponseWriter, rc *http.ResponseController, ch <-chan rune) bool {
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return true
			}
			payload, _ := json.Marshal(map[string]string{"delta": string(r)})
			if _, err := fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload); err != nil {
				return false
			}
			if err := rc.Flush(); err != nil {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}
