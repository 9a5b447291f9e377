package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/dotecxy/legado2-sub001/config"
	"github.com/dotecxy/legado2-sub001/crawler/explore"
	"github.com/dotecxy/legado2-sub001/crawler/fetcher"
	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
	"github.com/dotecxy/legado2-sub001/crawler/webbook"
	"github.com/dotecxy/legado2-sub001/logging"
	"github.com/dotecxy/legado2-sub001/middleware"
	"github.com/dotecxy/legado2-sub001/monitoring"
	"github.com/dotecxy/legado2-sub001/server"
)

var (
	configFile = flag.String("config", "", "Configuration file path")
	sourceFile = flag.String("source", "", "Book source JSON file (object or array)")
	sourceName = flag.String("name", "", "Source name or URL to use when the file holds several")
	operation  = flag.String("op", "search", "Operation: search|explore|kinds|info|toc|content|serve")
	searchKey  = flag.String("key", "", "Search keyword")
	targetURL  = flag.String("url", "", "Book URL, or explore URL for -op explore")
	page       = flag.Int("page", 1, "Result page")
	chapterIdx = flag.Int("chapter", 0, "Chapter index for -op content")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// stdout carries the JSON result
	if strings.EqualFold(cfg.Logger.Output, "stdout") || strings.EqualFold(cfg.Logger.Output, "both") {
		cfg.Logger.Output = "stderr"
	}
	if err := logging.InitLogger(cfg.Logger); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger := logging.GetLogger()

	if cfg.Monitoring.Enabled {
		monitoring.StartServer(&cfg.Monitoring, logger)
	}

	svc := webbook.New(webbook.Options{
		Fetcher: fetcher.NewDefault(cfg.Fetcher, cfg.Toc.Concurrency),
		Scripts: script.NewLuaEvaluator(&script.LuaEvaluatorConfig{Timeout: cfg.Script.Timeout, Logger: logger}),
		Sink:    logging.NewSlogSink(logger),
		Kinds:   explore.NewCache(cfg.Explore.CacheTTL),
		Config:  cfg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *operation == "serve" {
		if err := serve(ctx, cfg, svc); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	src, err := pickSource(*sourceFile, *sourceName)
	if err != nil {
		log.Fatalf("Failed to load book source: %v", err)
	}

	result, err := execute(ctx, svc, src)
	if err != nil {
		logger.Error("Operation failed", "op", *operation, "source", src.Key(), "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}

// serve exposes the book operations over HTTP until ctx is done
func serve(ctx context.Context, cfg *config.Config, svc *webbook.Service) error {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.GetLogger()
	router := gin.New()
	middleware.Setup(router, cfg.Server, logger)

	srv := server.New(cfg.Server, router, logger)
	srv.SetupHealthCheck()
	server.NewHandler(svc).Register(router)
	return srv.Run(ctx)
}

func pickSource(path, name string) (*source.BookSource, error) {
	if path == "" {
		return nil, fmt.Errorf("-source is required")
	}
	sources, err := source.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		if name == "" || s.Name == name || s.URL == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no source matching %q in %s", name, path)
}

func execute(ctx context.Context, svc *webbook.Service, src *source.BookSource) (any, error) {
	switch *operation {
	case "search":
		return svc.SearchBooks(ctx, src, *searchKey, *page)
	case "explore":
		return svc.ExploreBooks(ctx, src, *targetURL, *page)
	case "kinds":
		return svc.ExploreKinds(ctx, src)
	case "info":
		book := &source.Book{BookURL: *targetURL}
		if err := svc.GetBookInfo(ctx, src, book); err != nil {
			return nil, err
		}
		return book, nil
	case "toc":
		_, chapters, err := loadChapters(ctx, svc, src)
		return chapters, err
	case "content":
		book, chapters, err := loadChapters(ctx, svc, src)
		if err != nil {
			return nil, err
		}
		if *chapterIdx < 0 || *chapterIdx >= len(chapters) {
			return nil, fmt.Errorf("chapter %d out of range [0,%d)", *chapterIdx, len(chapters))
		}
		chapter := chapters[*chapterIdx]
		next := ""
		if *chapterIdx+1 < len(chapters) {
			next = chapters[*chapterIdx+1].URL
		}
		text, err := svc.GetContent(ctx, src, book, &chapter, next)
		if err != nil {
			return nil, err
		}
		return map[string]any{"index": chapter.Index, "title": chapter.Title, "content": text}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", *operation)
}

func loadChapters(ctx context.Context, svc *webbook.Service, src *source.BookSource) (*source.Book, []source.BookChapter, error) {
	book := &source.Book{BookURL: *targetURL}
	if err := svc.GetBookInfo(ctx, src, book); err != nil {
		return nil, nil, err
	}
	chapters, err := svc.GetChapterList(ctx, src, book)
	if err != nil {
		return nil, nil, err
	}
	return book, chapters, nil
}
