package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/service-dispatch/internal/config"
	"github.com/example/service-dispatch/internal/dispatch"
	"github.com/example/service-dispatch/internal/eta"
	"github.com/example/service-dispatch/internal/geo"
	"github.com/example/service-dispatch/internal/ingest"
	"github.com/example/service-dispatch/internal/ledger"
	"github.com/example/service-dispatch/internal/notify"
	"github.com/example/service-dispatch/internal/payments"
	"github.com/example/service-dispatch/internal/push"
	"github.com/example/service-dispatch/internal/settlement"
	"github.com/example/service-dispatch/internal/storage"
)

// Store is the full persistence surface the API needs.
type Store interface {
	storage.RequestStore
	storage.PartyStore
	storage.EarningsStore
	settlement.Store
}

type Server struct {
	Geo      geo.Geo
	Dispatch *dispatch.Service
	Ledger   *ledger.Ledger
	Store    Store
	Payments *payments.Recorder
	Kafka    *ingest.KafkaProducer
	WSReg    *push.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires every component from config. Redis and Postgres are
// optional; without them the in-memory implementations serve, which is
// enough for local runs and tests.
func NewServer(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var store Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.RunMigrations {
			if err := storage.InitSchema(ctx, ps.Pool()); err != nil {
				return nil, err
			}
			logger.Info("schema migrations applied")
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	var ggeo geo.Geo
	if cfg.RedisAddr != "" {
		ggeo = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		ggeo = geo.NewIndex()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.PositionTopic)
	}

	wsreg := push.NewWSRegistry()
	sinks := []notify.Sink{wsreg}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, push.NewKafkaSink(cfg.KafkaBrokers, cfg.IntentTopic))
	}
	if cfg.PushEndpoint != "" {
		sinks = append(sinks, push.NewHTTPSink(cfg.PushEndpoint, cfg.PushKey))
	}
	emitter := notify.NewEmitter(&push.MultiSink{Sinks: sinks}, logger)

	var etaClient eta.Client
	if cfg.OSRMEndpoint != "" {
		etaClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	disp := &dispatch.Service{
		Geo:             ggeo,
		Requests:        store,
		Parties:         store,
		Emitter:         emitter,
		RadiusMeters:    cfg.DispatchRadiusMeters,
		Limit:           cfg.DispatchLimit,
		ETAClient:       etaClient,
		ETACache:        eta.NewCache(time.Minute),
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		Logger:          logger,
	}

	engine := settlement.NewEngine(store, logger)
	led := ledger.New(store, engine, emitter, logger)

	var gateway payments.Gateway
	if os.Getenv("STRIPE_API_KEY") != "" {
		gateway = payments.NewStripeClient()
	}
	rec := payments.NewRecorder(store, gateway, logger)

	s := &Server{
		Geo:      ggeo,
		Dispatch: disp,
		Ledger:   led,
		Store:    store,
		Payments: rec,
		Kafka:    kp,
		WSReg:    wsreg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/requests", s.handleSubmitRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}", s.handleGetRequest).Methods("GET")
	s.mux.HandleFunc("/api/v1/requests/{id}/accept", s.handleAcceptRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/{id}/transition", s.handleTransitionRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/providers/{id}/earnings", s.handleEarningsSummary).Methods("GET")

	s.mux.HandleFunc("/internal/provider/positions", s.handlePositionUpdate).Methods("POST")
	s.mux.HandleFunc("/internal/providers/{id}", s.handleUpsertProvider).Methods("PUT")
	s.mux.HandleFunc("/internal/requesters/{id}", s.handleUpsertRequester).Methods("PUT")
	s.mux.HandleFunc("/internal/payments/confirm", s.handlePaymentConfirm).Methods("POST")
	s.mux.HandleFunc("/internal/payments/release", s.handlePaymentRelease).Methods("POST")

	s.mux.HandleFunc("/ws/{provider_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", metricsHandler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
