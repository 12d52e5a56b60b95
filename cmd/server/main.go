package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"hydra-waf/internal/analyzer"
	"hydra-waf/internal/auth"
	"hydra-waf/internal/config"
	"hydra-waf/internal/detector"
	"hydra-waf/internal/handler"
	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/intel"
	"hydra-waf/internal/journal"
	"hydra-waf/internal/middleware"
	"hydra-waf/internal/proxy"
	"hydra-waf/internal/signature"
	"hydra-waf/internal/store"
)

func main() {
	cfg := config.Load()

	engine, err := signature.Load(cfg.SignaturesPath)
	if err != nil {
		log.Fatalf("❌ Could not load signatures: %v", err)
	}
	log.Printf("🚀 Loaded %d signature rules from %s", len(engine.Rules()), cfg.SignaturesPath)

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Fatalf("❌ Could not open journal: %v", err)
	}
	defer jrnl.Close()

	db, err := store.Open(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("❌ Could not open event store: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	if err := db.SeedAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		log.Fatalf("❌ Admin seed failed: %v", err)
	}

	settings := detector.NewSettings(cfg.UpstreamURL, cfg.MLURL, cfg.LogSafeTraffic)
	ml := detector.NewMLClient(settings)
	sessions := auth.NewSessions()
	ti := intel.New(cfg.VTAPIKey, cfg.OTXAPIKey, cfg.AbuseIPDBAPIKey)

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("❌ Could not initialize analysis provider: %v", err)
	}
	analysis := analyzer.NewService(provider)
	log.Printf("🚀 Analysis provider: %s", analysis.ProviderName())

	pipe := proxy.New(engine, ml, settings, jrnl, cfg.IngestURL)

	authH := handler.NewAuthHandler(db, sessions)
	wafH := handler.NewWAFHandler(engine, settings, ml, jrnl, db)
	dashH := handler.NewAnalyticsHandler(db, jrnl)
	entH := handler.NewEntityHandler(db, engine)
	repH := handler.NewReportHandler(db)
	intelH := handler.NewIntelHandler(ti, db)
	anaH := handler.NewAnalysisHandler(analysis, db)
	dbH := handler.NewDBHandler(db)

	withAuth := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(sessions, h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(sessions, middleware.Admin(h))
	}

	api := http.NewServeMux()

	// Auth
	api.HandleFunc("POST /api/login", authH.Login)
	api.HandleFunc("POST /api/auth/signup", authH.Signup)
	api.Handle("POST /api/logout", withAuth(authH.Logout))
	api.Handle("GET /api/me", withAuth(authH.Me))
	api.Handle("GET /api/users", adminOnly(authH.Users))

	// Detection control surface
	api.HandleFunc("GET /api/rules", wafH.ListRules)
	api.Handle("PUT /api/rules/{id}", adminOnly(wafH.ToggleRule))
	api.HandleFunc("GET /api/settings", wafH.GetSettings)
	api.Handle("PUT /api/settings", adminOnly(wafH.UpdateSettings))
	api.HandleFunc("POST /api/ingest_log", wafH.Ingest)
	api.HandleFunc("GET /api/stream", wafH.Stream)
	api.HandleFunc("GET /api/health", wafH.Health)

	// Dashboard reads
	api.HandleFunc("GET /api/kpis", dashH.KPIs)
	api.HandleFunc("GET /api/logs", dashH.Logs)
	api.HandleFunc("GET /api/traffic", dashH.Traffic)
	api.HandleFunc("GET /api/owasp", dashH.OWASP)
	api.HandleFunc("GET /api/heatmap", dashH.Heatmap)
	api.HandleFunc("GET /api/alerts", dashH.Alerts)
	api.Handle("PUT /api/alerts/{id}/check", withAuth(dashH.CheckAlert))
	api.HandleFunc("GET /api/stats", dashH.Stats)
	api.HandleFunc("GET /api/syslogs", dashH.SysLogs)

	// Entities
	api.HandleFunc("GET /api/restrictions", entH.ListRestrictions)
	api.Handle("POST /api/restrictions", adminOnly(entH.AddRestriction))
	api.Handle("DELETE /api/restrictions/{id}", adminOnly(entH.DeleteRestriction))
	api.HandleFunc("GET /api/signatures", entH.ListSignatures)
	api.Handle("POST /api/signatures", adminOnly(entH.AddSignature))
	api.Handle("PUT /api/signatures/{id}", adminOnly(entH.UpdateSignature))
	api.Handle("DELETE /api/signatures/{id}", adminOnly(entH.DeleteSignature))
	api.HandleFunc("GET /api/profiles", entH.ListProfiles)
	api.Handle("POST /api/profiles", adminOnly(entH.AddProfile))
	api.Handle("PUT /api/profiles/{id}", adminOnly(entH.UpdateProfile))
	api.Handle("DELETE /api/profiles/{id}", adminOnly(entH.DeleteProfile))
	api.HandleFunc("GET /api/models", entH.ListModels)
	api.Handle("GET /api/whitelist", withAuth(entH.ListWhitelist))
	api.Handle("POST /api/whitelist", withAuth(entH.Whitelist))

	// Patching reports
	api.HandleFunc("GET /api/reports", repH.List)
	api.HandleFunc("GET /api/reports/{id}", repH.Get)
	api.HandleFunc("GET /api/reports/{id}/download", repH.Download)

	// Threat intel
	api.HandleFunc("GET /api/threat/lookup", intelH.Lookup)
	api.HandleFunc("GET /api/ti/{provider}", intelH.Provider)
	api.HandleFunc("GET /api/ti/feed/abuseipdb", intelH.AbuseFeed)
	api.HandleFunc("GET /api/ti/feed/otx", intelH.OTXFeed)

	// Analysis and training
	api.Handle("POST /api/patch/recommend", withAuth(anaH.Recommend))
	api.Handle("POST /api/train", withAuth(anaH.StartTraining))
	api.Handle("POST /api/train/progress", withAuth(anaH.TrainingProgress))
	api.Handle("POST /api/train/complete", withAuth(anaH.CompleteTraining))
	api.HandleFunc("GET /api/train/status", anaH.TrainingStatus)

	// Generic admin table browser
	api.Handle("GET /api/db", adminOnly(dbH.Tables))
	api.Handle("GET /api/db/{table}", adminOnly(dbH.List))
	api.Handle("POST /api/db/{table}", adminOnly(dbH.Create))
	api.Handle("PUT /api/db/{table}/{id}", adminOnly(dbH.Update))
	api.Handle("DELETE /api/db/{table}/{id}", adminOnly(dbH.Delete))

	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response.JSONError(w, http.StatusNotFound, "API endpoint not found")
	})

	apiChain := middleware.CORS(api)
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			apiChain.ServeHTTP(w, r)
			return
		}
		pipe.ServeHTTP(w, r)
	})

	addr := ":" + cfg.Port
	log.Printf("🚀 WAF proxy listening on %s (upstream %s)", addr, cfg.UpstreamURL)
	if err := http.ListenAndServe(addr, root); err != nil {
		log.Fatalf("❌ Server stopped: %v", err)
	}
}

// buildProvider picks the analysis backend from configuration.
func buildProvider(cfg *config.Config) (analyzer.Provider, error) {
	switch cfg.LLMProvider {
	case "local":
		return analyzer.NewLocalProvider(cfg.LLMLocalURL, cfg.LLMModel)
	case "mock":
		return analyzer.NewMockProvider(), nil
	default:
		if cfg.LLMAPIKey == "" {
			log.Printf("⚠️ LLM_API_KEY not set, falling back to mock analysis provider")
			return analyzer.NewMockProvider(), nil
		}
		return analyzer.NewRemoteProvider(cfg.LLMRemoteURL, cfg.LLMModel, cfg.LLMAPIKey)
	}
}
