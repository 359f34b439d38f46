package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/config"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/handler"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/logger"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/server"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Environment: cfg.Env})
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, db.Options{
		Path:         cfg.DatabasePath,
		BusyTimeout:  cfg.DBBusyTimeout,
		MaxOpenConns: cfg.DBMaxOpenConns,
	}, log.Named("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Migrate(ctx); err != nil {
		return err
	}

	cal := jalali.NewCalendar(cfg.Location, jalali.SystemClock{})

	// repositories
	materialRepo := repository.MaterialRepository{DB: store}
	recipeRepo := repository.RecipeRepository{DB: store}
	orderRepo := repository.OrderRepository{DB: store}
	summaryRepo := repository.SalesSummaryRepository{DB: store}
	activityRepo := repository.ActivityLogRepository{DB: store}
	reportRepo := repository.ReportRepository{DB: store}

	// services
	sales := &service.SalesAggregator{
		DB:           store,
		Summaries:    summaryRepo,
		Activities:   activityRepo,
		Calendar:     cal,
		MaxRangeDays: cfg.SummaryMaxRangeDays,
		Logger:       log.Named("sales"),
	}
	orders := &service.OrderService{
		DB:           store,
		Orders:       orderRepo,
		Sales:        sales,
		Activities:   activityRepo,
		Calendar:     cal,
		MaxRangeDays: cfg.SummaryMaxRangeDays,
		Logger:       log.Named("orders"),
	}
	catalog := &service.CatalogService{
		DB:         store,
		Materials:  materialRepo,
		Recipes:    recipeRepo,
		Activities: activityRepo,
		Pricing:    domain.Pricing{UnitBasis: cfg.PriceUnitBasis, TaxRate: cfg.MenuTaxRate},
		Calendar:   cal,
		Logger:     log.Named("catalog"),
	}

	if rebuilt, err := sales.EnsureFresh(ctx); err != nil {
		return err
	} else if rebuilt {
		log.Info("sales summary rebuilt at startup")
	}

	router := server.NewRouter(cfg, log.Named("http"), server.Handlers{
		Health:     handler.HealthHandler{DB: store},
		Materials:  handler.MaterialHandler{Service: catalog},
		Recipes:    handler.RecipeHandler{Service: catalog},
		Orders:     handler.OrderHandler{Orders: orders, Sales: sales},
		Sales:      handler.SalesHandler{Sales: sales, Orders: orders, Reports: reportRepo, Calendar: cal},
		Activities: handler.ActivityLogHandler{Repo: activityRepo},
		Stats: handler.StatsHandler{
			Materials: materialRepo,
			Recipes:   recipeRepo,
			Orders:    orderRepo,
			Sales:     sales,
			Calendar:  cal,
		},
	})

	return server.Start(ctx, cfg, router, log, store.Checkpoint)
}
