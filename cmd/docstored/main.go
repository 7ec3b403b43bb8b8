package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	appctx "github.com/bassista/go_docstore/internal/app"
	"github.com/bassista/go_docstore/internal/cache"
	"github.com/bassista/go_docstore/internal/config"
	"github.com/bassista/go_docstore/internal/document"
	"github.com/bassista/go_docstore/internal/logger"
	"github.com/bassista/go_docstore/internal/report"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	if err := logger.SetLevel(cfg.Misc.LogLevel); err != nil {
		logger.WithComponent("main").Warnf("invalid log level '%s', keeping '%s': %v", cfg.Misc.LogLevel, logger.Logger.GetLevel(), err)
	}
	logger.WithComponent("main").Debugf("log level set to: %s", logger.Logger.GetLevel())

	reporter := report.NewReporter(logger.Logger)
	defer reporter.Flush()

	mgr, err := appctx.NewManager(cfg, reporter)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init document manager: %v", err)
	}

	app, err := appctx.New(cfg, mgr)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	mgr.AddStorageCompletionHandler(func(res document.Result) {
		if res.OK() {
			logger.WithComponent("main").Infof("document %s ready (model %s)", mgr.DatabaseName(), mgr.ModelName())
			if view, err := mgr.Context(); err == nil {
				logContents(view)
			}
			return
		}
		logger.WithComponent("main").Errorf("document %s failed to open: %v", mgr.DatabaseName(), res.Err)
	})
	app.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	select {
	case <-ctx.Done():
		logger.WithComponent("main").Info("shutting down")
	case res := <-mgr.Ready():
		if !res.OK() {
			app.Shutdown()
			reporter.Flush()
			os.Exit(1)
		}
		<-ctx.Done()
		logger.WithComponent("main").Info("shutting down")
	}
}

// logContents logs how many records of each kind the document holds.
func logContents(view cache.ReadOnlyStore) {
	counts := map[string]int{}
	records := view.Records()
	for _, rec := range records {
		counts[rec.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for kind, n := range counts {
		kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(kinds)
	logger.WithComponent("main").Infof("%d records loaded [%s]", len(records), strings.Join(kinds, " "))
}
