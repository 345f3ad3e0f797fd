package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mcclellann/fundLedger/pkg/config"
	"github.com/mcclellann/fundLedger/pkg/ledger"
	"github.com/mcclellann/fundLedger/pkg/scheduler"
	"github.com/mcclellann/fundLedger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	logger  *zap.Logger
}

func NewServer(s store.Storage, logger *zap.Logger, settings ledger.Settings) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, logger, settings),
		storage: s,
		logger:  logger,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/accounts", s.listAccountsHandler).Methods("GET")
	router.HandleFunc("/accounts", s.createAccountHandler).Methods("POST")
	router.HandleFunc("/accounts/import", s.importAccountsHandler).Methods("POST")
	router.HandleFunc("/accounts/fund", s.bulkFundHandler).Methods("POST")
	router.HandleFunc("/accounts/{account}", s.getAccountHandler).Methods("GET")
	router.HandleFunc("/accounts/{account}/name", s.renameAccountHandler).Methods("PUT")
	router.HandleFunc("/accounts/{account}/mobile", s.updateMobileHandler).Methods("PUT")
	router.HandleFunc("/accounts/{account}/loan", s.changeLoanHandler).Methods("PUT")
	router.HandleFunc("/accounts/{account}/repayments", s.repayLoanHandler).Methods("POST")
	router.HandleFunc("/accounts/{account}/transactions", s.transactionsHandler).Methods("GET")
	router.HandleFunc("/accounts/{account}/dues", s.importDuePaymentsHandler).Methods("PUT")
	router.HandleFunc("/accounts/{account}/dues/{due_no:[0-9]+}", s.updateDueHandler).Methods("PUT")
	router.HandleFunc("/accounts/{account}/dues/{due_no:[0-9]+}/payments", s.collectPaymentHandler).Methods("POST")
	router.HandleFunc("/reports/dues/{due_no:[0-9]+}", s.dueReportHandler).Methods("GET")
	router.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	return router
}

func settingsFrom(conf *config.Configuration) ledger.Settings {
	return ledger.Settings{
		AccountPrefix: conf.Ledger.AccountPrefix,
		Installments:  conf.Ledger.Installments,
		Policy: ledger.InterestPolicy{
			RatePercent: decimal.NewFromFloat(conf.Ledger.InterestRatePercent),
		},
	}
}

func main() {
	configLocation := flag.String("config", config.DefaultConfigFile, "path to configuration file")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	// FUNDLEDGER_* overrides may come from a local .env file.
	envErr := godotenv.Load()

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	if envErr != nil {
		logger.Debug("no .env file loaded, using process environment", zap.String("op", "main"))
	}

	sqliteStore, err := store.NewSQLiteStore(conf.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize SQLite store",
			zap.String("op", "main"),
			zap.String("path", conf.Database.Path),
			zap.Error(err),
		)
	}
	defer sqliteStore.Close()
	logger.Info("database ready", zap.String("op", "main"), zap.String("path", conf.Database.Path))

	server := NewServer(sqliteStore, logger, settingsFrom(conf))

	var sched *scheduler.Scheduler
	if conf.Scheduler.Enabled {
		sched = scheduler.New(server.ledger, logger)
		if err := sched.Start(conf.Scheduler.OverdueSchedule); err != nil {
			logger.Fatal("failed to start scheduler", zap.String("op", "main"), zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              conf.Server.Address,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("op", "main"), zap.String("address", conf.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", zap.String("op", "main"), zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", zap.String("op", "main"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.String("op", "main"), zap.Error(err))
	}
	// The store closes on return, so a running sweep must finish first.
	if sched != nil {
		if err := sched.Shutdown(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown failed", zap.String("op", "main"), zap.Error(err))
		}
	}
}
