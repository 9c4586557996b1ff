// Command server runs the canteen authorization HTTP API: terminal-token
// auth, liveness challenge, payment split authorization, employee lookup
// and websocket status push.
//
// Built around an env-config -> open-DB -> build-services -> chi-router
// -> graceful-shutdown startup shape.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/canteen-authz/internal/api"
	"github.com/technosupport/canteen-authz/internal/calendar"
	"github.com/technosupport/canteen-authz/internal/config"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/enroll"
	"github.com/technosupport/canteen-authz/internal/events"
	"github.com/technosupport/canteen-authz/internal/identity"
	"github.com/technosupport/canteen-authz/internal/liveness"
	"github.com/technosupport/canteen-authz/internal/lockout"
	"github.com/technosupport/canteen-authz/internal/metrics"
	"github.com/technosupport/canteen-authz/internal/notify"
	"github.com/technosupport/canteen-authz/internal/oracle"
	"github.com/technosupport/canteen-authz/internal/payment"
	"github.com/technosupport/canteen-authz/internal/ratelimit"
	"github.com/technosupport/canteen-authz/internal/tokens"
	"github.com/technosupport/canteen-authz/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: open failed: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("db: ping failed: %v", err)
	}
	cancel()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis: ping failed, rate limiting and lockout will fail open: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := nats.Connect(cfg.NATSURL, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		log.Printf("nats: connect failed, events will not publish: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Data access, all against the bare *sql.DB; internal/payment rebuilds
	// the same models against a *sql.Tx for its locked transaction.
	employees := data.EmployeeModel{DB: db}
	cards := data.CardModel{DB: db}
	faceTemplates := data.FaceTemplateModel{DB: db}
	sessions := data.LivenessSessionModel{DB: db}
	balances := data.BalanceModel{DB: db}
	terminals := data.TerminalModel{DB: db}
	absences := data.AbsenceModel{DB: db}

	calendarOracle := calendar.NewOracle(absences, cfg.HolidaysPath)
	calendarOracle.Watch(ctx)

	matcher := identity.NewMatcher(cfg.FaceDistThreshold)
	tokenMgr := tokens.NewManager(cfg.JWTSecret, cfg.LivenessTokenTTL)
	faceOracle := oracle.NewHTTPClient(getenv("FACE_ORACLE_URL", "http://localhost:9000"))

	var publisher *events.Publisher
	if natsConn != nil {
		publisher = events.NewPublisher(natsConn, 3)
	}
	// A nil publisher makes Record a no-op, so the services always get a
	// usable auditor even when NATS was unreachable at startup.
	auditor := events.NewAuditor(publisher)

	livenessSvc := liveness.NewService(sessions, cards, employees, faceTemplates, faceOracle, faceOracle, matcher, cfg.LivenessSessionTTL, auditor)
	enrollSvc := enroll.NewService(employees, faceTemplates, faceOracle, auditor)
	paySvc := payment.NewService(db, tokenMgr, calendarOracle, auditor, cfg.Location)
	paySvc.SetLimits(cfg.SubsidyDailyCents, cfg.MaxMealCents, cfg.MaxReceiptCents)

	hub := ws.NewHub()
	metricsRegistry := metrics.NewRegistry()
	limiter := ratelimit.NewLimiter(redisClient)
	lockoutMgr := lockout.NewManager(redisClient, cfg.PayLockoutThreshold, cfg.PayLockoutTTL)

	relay := notify.NewRelay(cfg.TelegramBotToken)
	if natsConn != nil {
		startNotifyRelay(ctx, natsConn, employees, relay)
	}

	employeeInfo := &api.EmployeeInfoHandler{
		Cards:                  cards,
		Employees:              employees,
		Templates:              faceTemplates,
		Daily:                  balances,
		Monthly:                balances,
		Calendar:               calendarOracle,
		DailySubsidyLimitCents: cfg.SubsidyDailyCents,
		Loc:                    cfg.Location,
	}

	router := api.NewRouter(api.Deps{
		DB:        db,
		Terminals: terminals,

		EmployeeInfo: employeeInfo,
		Enroll:       enrollSvc,
		Liveness:     livenessSvc,
		Pay:          paySvc,
		Tokens:       tokenMgr,
		Hub:          hub,
		Metrics:      metricsRegistry,
		Limiter:      limiter,
		Lockout:      lockoutMgr,

		FrameRateLimit: ratelimit.LimitConfig{Rate: 20, Window: time.Second},
		PayRateLimit:   ratelimit.LimitConfig{Rate: 5, Window: time.Second},
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("server: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("server: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: graceful shutdown failed: %v", err)
	}
}

// startNotifyRelay subscribes to internal/events and forwards approved
// payments to the employee's Telegram chat, looking up notify_chat_id by
// the event's employee id. Runs until ctx is cancelled.
func startNotifyRelay(ctx context.Context, conn *nats.Conn, employees data.EmployeeModel, relay *notify.Relay) {
	sub, err := conn.Subscribe(events.Subject, func(msg *nats.Msg) {
		var evt events.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Printf("notify: decode event failed: %v", err)
			return
		}
		if evt.Type != events.TypePaymentApproved {
			return
		}
		employee, err := employees.GetByID(context.Background(), evt.EmployeeID)
		if err != nil || employee.NotifyChatID == nil {
			return
		}
		relay.NotifyPayment(context.Background(), *employee.NotifyChatID, evt)
	})
	if err != nil {
		log.Printf("notify: subscribe failed: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
