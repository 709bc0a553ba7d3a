package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/abelt/coinflip-services/configs"
	"github.com/abelt/coinflip-services/internal/flipsvc/broker"
	"github.com/abelt/coinflip-services/internal/flipsvc/db"
	handlers "github.com/abelt/coinflip-services/internal/flipsvc/handlers"
	"github.com/abelt/coinflip-services/internal/flipsvc/journal"
	"github.com/abelt/coinflip-services/internal/flipsvc/service"
	"github.com/abelt/coinflip-services/internal/flipsvc/store"
	"github.com/abelt/coinflip-services/internal/flipsvc/ws"
	nats "github.com/abelt/coinflip-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "flip"

const (
	defaultGasAmount     = int64(50000000)
	defaultRevealTimeout = 24 * time.Hour
	defaultFeeAccount    = "flip-fees"
)

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbpool.Close()
	log.Printf("pg connection established successfully")

	matchStore := store.NewMatchStore(dbpool)
	balanceStore := store.NewBalanceStore(dbpool)
	txRunner := store.NewTxRunner(dbpool)

	ledgerService := service.NewLedgerService(balanceStore)
	matchService := service.NewMatchService(matchStore, ledgerService, txRunner, revealTimeout())

	// mongo journal for processed submissions
	mongoDB, cancelMongo, err := journal.ConnectToDB()
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer cancelMongo()

	subJournal, err := journal.New(mongoDB)
	if err != nil {
		log.Fatalf("Failed to init submission journal: %v", err)
	}
	log.Printf("mongo journal ready")

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "_service_" + instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// websocket hub for match notifications
	hub := ws.NewHub()

	// init submission broker
	b := broker.NewBroker(n.Conn, matchService, ledgerService,
		subJournal, hub, gasAmount(), feeAccount())

	sub, err := b.SubscribeSubmissions()
	if err != nil {
		log.Errorf("Error: unable to subscribe to submissions %v", err)
		os.Exit(0)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(matchStore, ledgerService)
	h.InitAuth()
	h.SetRoutes(r, hub.Serve)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("FLIP_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}

func revealTimeout() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("REVEAL_TIMEOUT_HOURS"))
	if err != nil || hours <= 0 {
		return defaultRevealTimeout
	}
	return time.Duration(hours) * time.Hour
}

func gasAmount() int64 {
	gas, err := strconv.ParseInt(os.Getenv("GAS_AMOUNT"), 10, 64)
	if err != nil || gas < 0 {
		return defaultGasAmount
	}
	return gas
}

func feeAccount() string {
	if acct := os.Getenv("FEE_ACCOUNT"); acct != "" {
		return acct
	}
	return defaultFeeAccount
}
