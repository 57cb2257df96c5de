// Package main is the Shiryo CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/shiryo/internal/cache"
	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/ingest"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/search"
	"github.com/hyperjump/shiryo/internal/server"
	"github.com/hyperjump/shiryo/internal/storage"
	"github.com/hyperjump/shiryo/internal/watcher"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shiryo/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "get":
		runGet()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shiryo version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (extraction attempts, watcher events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.Strings("adapters", cfg.Extraction.Adapters),
		zap.String("candidate_source", cfg.Search.CandidateSource),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if components.Cache != nil {
		components.Cache.Start(runCtx)
	}

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = newWatcher(cfg, components.Ingest, logger)
		if err := watchSvc.Start(runCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Engine,
		components.Ingest,
		components.Corpus,
		components.Cache,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	runCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newWatcher feeds changes under the configured directories into the ingest service.
// Folders are taken relative to the watched root the file lives under.
func newWatcher(cfg *config.Config, svc *ingest.Service, logger *zap.Logger) *watcher.Watcher {
	exts := cfg.Watch.Extensions
	handler := watcher.HandlerFuncs{
		Changed: func(ctx context.Context, root, path string) error {
			_, err := svc.SubmitFile(ctx, path, root, exts)
			return err
		},
		Removed: func(ctx context.Context, root, path string) error {
			return svc.RemoveFile(ctx, path)
		},
	}
	return watcher.New(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		handler,
		watcher.WithLogger(logger),
	)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	id := fs.String("id", "", "document id (single file only; default derived from the path)")
	title := fs.String("title", "", "document title (single file only; default is the file name)")
	folder := fs.String("folder", "", "folder (single file only; directories use paths relative to the root)")
	tags := fs.String("tags", "", "comma separated tags (single file only)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shiryo ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, components := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Ingest.SubmitDirectory(ctx, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}

	input, _, err := ingest.FileInput(path, "")
	if err != nil {
		fmt.Printf("Failed to read file: %v\n", err)
		os.Exit(1)
	}
	applyIngestFlags(input, *id, *title, *folder, *tags)
	doc, err := components.Ingest.Submit(ctx, input)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocument(os.Stdout, doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if doc.Status == models.StatusExtractionFailed {
		os.Exit(2)
	}
}

// applyIngestFlags overrides the path-derived fields of input with any flag values given.
func applyIngestFlags(input *models.DocumentInput, id, title, folder, tags string) {
	if id = strings.TrimSpace(id); id != "" {
		input.ID = id
	}
	if title = strings.TrimSpace(title); title != "" {
		input.Title = title
	}
	if folder != "" {
		input.Folder = folder
	}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			input.Tags = append(input.Tags, t)
		}
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shiryo search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Hits are ranked by lexical relevance: a whole-query match in the title beats one in the
body, and partial matches score by the fraction of query words found.
  • --folder restricts the search to a folder and everything beneath it.
  • --limit controls how many hits are returned.

Examples:
  shiryo search interchange fees
  shiryo search --folder sales/pricing "interchange fees"
  shiryo search --output json chargeback
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig loads config at path and returns its default result limit.
// On load failure it returns models.DefaultLimit.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultLimit <= 0 {
		return models.DefaultLimit
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "shiryo search fees -limit 5"
// would otherwise leave -limit unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPath := searchConfigPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	limit := fs.Int("limit", searchLimitDefaultFromConfig(configPath), "number of results")
	folder := fs.String("folder", "", "restrict results to this folder and its subfolders")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{
		Query:  queryStr,
		Folder: *folder,
		Limit:  *limit,
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflicts).
		response, err = searchViaHTTP(*serverURL, searchQuery)
	} else {
		_, logger, components := openComponents(*configPathFlag)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.Search(context.Background(), searchQuery)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runGet() {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shiryo get [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	var doc *models.Document
	if *serverURL != "" {
		doc, err = getViaHTTP(*serverURL, docID)
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		doc, err = components.Corpus.Get(context.Background(), docID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Get failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocument(os.Stdout, doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shiryo delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	var err error
	if *serverURL != "" {
		err = deleteViaHTTP(*serverURL, docID)
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		err = components.Ingest.Remove(context.Background(), docID)
	}
	if err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	Adapters        []string `json:"adapters"`
	AcceptThreshold float64  `json:"accept_threshold"`
	Floor           float64  `json:"floor"`
	CandidateSource string   `json:"candidate_source"`
	CacheEnabled    bool     `json:"cache_enabled"`
	DatabasePath    string   `json:"database_path,omitempty"`
	BleveIndexPath  string   `json:"bleve_index_path,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Corpus         corpus.Stats          `json:"corpus"`
	Ingest         ingest.Stats          `json:"ingest"`
	Cache          cache.Stats           `json:"cache"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		status = localStatus(cfg, components)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, &status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func localStatus(cfg *config.Config, c *Components) statusResponse {
	status := statusResponse{
		Corpus: c.Corpus.Stats(),
		Ingest: c.Ingest.Stats(),
		Config: &statusConfigResponse{
			Adapters:        cfg.Extraction.Adapters,
			AcceptThreshold: cfg.Extraction.AcceptThreshold,
			Floor:           cfg.Extraction.Floor,
			CandidateSource: cfg.Search.CandidateSource,
			CacheEnabled:    cfg.Cache.EnabledOrDefault(),
			DatabasePath:    cfg.Storage.DatabasePath,
			BleveIndexPath:  cfg.Storage.BleveIndexPath,
		},
	}
	if c.Cache != nil {
		status.Cache = c.Cache.Stats()
	}
	if usage, err := storage.MeasureDiskUsage(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err == nil {
		total := usage.Total()
		status.DiskUsageBytes = &total
	}
	return status
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "documents:          %d   # records in the corpus\n", status.Corpus.Documents)
	fmt.Fprintf(w, "extracted:          %d   # searchable records\n", status.Corpus.Extracted)
	fmt.Fprintf(w, "extraction_failed:  %d\n", status.Corpus.ExtractionFailed)
	fmt.Fprintf(w, "pending:            %d\n", status.Corpus.Pending)
	fmt.Fprintf(w, "folders:            %d\n", status.Corpus.Folders)
	fmt.Fprintf(w, "in_flight:          %d   # extractions running or queued\n", status.Ingest.InFlight)
	fmt.Fprintf(w, "cache_entries:      %d   # hits %d, misses %d\n", status.Cache.Entries, status.Cache.Hits, status.Cache.Misses)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + indices on disk\n", *status.DiskUsageBytes)
	}
	if status.Config != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "adapters:           %s\n", strings.Join(status.Config.Adapters, ", "))
		fmt.Fprintf(w, "accept_threshold:   %.2f\n", status.Config.AcceptThreshold)
		fmt.Fprintf(w, "floor:              %.2f\n", status.Config.Floor)
		fmt.Fprintf(w, "candidate_source:   %s\n", status.Config.CandidateSource)
		fmt.Fprintf(w, "cache_enabled:      %t\n", status.Config.CacheEnabled)
		if status.Config.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", status.Config.DatabasePath)
		}
		if status.Config.BleveIndexPath != "" {
			fmt.Fprintf(w, "bleve_index_path:   %s\n", status.Config.BleveIndexPath)
		}
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var response models.SearchResponse
	if err := decodeResponse(resp, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func getViaHTTP(serverURL, id string) (*models.Document, error) {
	resp, err := http.Get(serverURL + "/api/v1/documents/" + url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var doc models.Document
	if err := decodeResponse(resp, http.StatusOK, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func deleteViaHTTP(serverURL, id string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, http.StatusOK, nil)
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var s statusResponse
	if err := decodeResponse(resp, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeResponse closes resp.Body, checks the status code, and decodes JSON into out when
// out is non-nil.
func decodeResponse(resp *http.Response, want int, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// openComponents loads config and initializes components for direct (serverless) access.
// It exits the process on failure.
func openComponents(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return cfg, logger, components
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Store
	KeywordIndex keyword.Index
	Cache        *cache.ResultCache
	Corpus       *corpus.Index
	Orchestrator *ingest.Orchestrator
	Ingest       *ingest.Service
	Engine       *search.Engine
}

// Close drains queued extractions and closes storage and indices.
func (c *Components) Close() {
	if c.Ingest != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = c.Ingest.Shutdown(ctx)
		cancel()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{}
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	corpusOpts := []corpus.Option{corpus.WithLogger(logger)}
	if cfg.Search.CandidateSource == config.CandidateSourceBleve {
		kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.KeywordIndex = kw
		corpusOpts = append(corpusOpts, corpus.WithKeywordIndex(kw))
	}
	if cfg.Cache.EnabledOrDefault() {
		c.Cache = cache.NewResultCache(
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithSweepInterval(cfg.Cache.SweepInterval),
			cache.WithCapacity(cfg.Cache.MaxEntries),
			cache.WithLogger(logger),
		)
		corpusOpts = append(corpusOpts, corpus.WithInvalidator(c.Cache))
	}

	c.Corpus = corpus.New(store, corpusOpts...)
	if err := c.Corpus.Load(context.Background()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	if c.Cache != nil {
		c.Cache.SetVersionSource(c.Corpus)
	}

	orch, err := newOrchestrator(&cfg.Extraction, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Orchestrator = orch
	c.Ingest = ingest.NewService(orch, c.Corpus,
		ingest.WithLogger(logger),
		ingest.WithWorkers(cfg.Extraction.Workers),
		ingest.WithQueueSize(cfg.Extraction.QueueSize),
		ingest.WithJobTimeout(cfg.Extraction.OverallTimeout+30*time.Second),
	)

	engineOpts := []search.Option{search.WithLogger(logger)}
	if c.Cache != nil {
		engineOpts = append(engineOpts, search.WithCache(c.Cache))
	}
	c.Engine = search.NewEngine(c.Corpus, &cfg.Search, engineOpts...)
	return c, nil
}

// newOrchestrator builds the adapter chain from config. Both recognizer profiles share
// one rate limiter.
func newOrchestrator(e *config.ExtractionConfig, logger *zap.Logger) (*ingest.Orchestrator, error) {
	policy := extract.DefaultPolicy()
	policy.AcceptThreshold = e.AcceptThreshold
	policy.Floor = e.Floor
	policy.GarblePenalty = e.GarblePenalty

	limiter := rate.NewLimiter(rate.Limit(e.OCR.RatePerSecond), e.OCR.Burst)
	chain, err := extract.NewChain(extract.ChainConfig{
		Names: e.Adapters,
		OCR: extract.OCRConfig{
			Tesseract:   e.OCR.Tesseract,
			Pdftoppm:    e.OCR.Pdftoppm,
			Language:    e.OCR.Language,
			TessdataDir: e.OCR.TessdataDir,
			DPI:         e.OCR.DPI,
			MaxPages:    e.OCR.MaxPages,
		},
		PSMA: e.OCR.EngineAPSM,
		PSMB: e.OCR.EngineBPSM,
	},
		extract.WithLimiter(limiter),
		extract.WithPolicy(policy),
		extract.WithLogger(logger),
		extract.WithRunner(extract.NewExecRunner(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction chain: %w", err)
	}
	return ingest.NewOrchestrator(chain,
		ingest.WithPolicy(policy),
		ingest.WithAttemptTimeout(e.AttemptTimeout),
		ingest.WithOverallTimeout(e.OverallTimeout),
		ingest.WithOrchestratorLogger(logger),
	), nil
}

func printUsage() {
	fmt.Println(`shiryo - Sales collateral ingestion and search

Usage:
  shiryo server [flags]                 Start the HTTP server (and directory watcher)
  shiryo ingest [flags] <file|dir>      Extract and store a file or every file in a directory
  shiryo search [flags] <query>         Search documents
  shiryo get [flags] <id>               Show a stored document
  shiryo delete [flags] <id>            Delete a document
  shiryo status [flags]                 Show corpus/ingest/cache status
  shiryo version                        Show version
  shiryo help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shiryo/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --id string        Document id (default derived from the file path)
  --title string     Document title (default is the file name)
  --folder string    Folder, e.g. sales/pricing
  --tags string      Comma separated tags
  --output string    Output format: text or json (default: text)

Search Flags:
  --config string    Config file path (for direct storage mode; also used for the default limit)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --folder string    Restrict results to a folder and its subfolders
  --limit int        Number of results (default from config, or 10)
  --output string    Output format: text, compact, or json (default: text)

Get/Delete/Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text or json (get and status only)

Examples:
  shiryo server
  shiryo ingest --folder sales/pricing --tags pricing,emea rate-card.pdf
  shiryo ingest ./collateral
  shiryo search "interchange fees"
  shiryo search --folder sales --output json chargeback
  shiryo get file-3f2a...
  shiryo delete rate-card
  shiryo status --output json`)
}
