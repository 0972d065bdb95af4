package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/audit"
	"github.com/archestra-ai/gateway/pkg/auth"
	"github.com/archestra-ai/gateway/pkg/config"
	"github.com/archestra-ai/gateway/pkg/database"
	"github.com/archestra-ai/gateway/pkg/dualllm"
	"github.com/archestra-ai/gateway/pkg/handlers"
	"github.com/archestra-ai/gateway/pkg/invocation"
	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/logging"
	"github.com/archestra-ai/gateway/pkg/mcpclient"
	"github.com/archestra-ai/gateway/pkg/middleware"
	"github.com/archestra-ai/gateway/pkg/proxy"
	"github.com/archestra-ai/gateway/pkg/quota"
	"github.com/archestra-ai/gateway/pkg/repositories"
	"github.com/archestra-ai/gateway/pkg/trust"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database_host", cfg.Database.Host),
	)

	ctx := context.Background()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}
	_ = migrationDB.Close()

	pool, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.ConnectionString(),
		MaxConnections:  cfg.Database.MaxConnections,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer pool.Close()

	agents := repositories.NewAgentRepository(pool)
	tools := repositories.NewToolRepository(pool)
	interactions := repositories.NewInteractionRepository(pool, tools)
	limits := repositories.NewLimitRepository(pool)
	orgs := repositories.NewOrganizationRepository(pool)
	prompts := repositories.NewPromptRepository(pool)
	trustedDataPolicies := repositories.NewTrustedDataPolicyRepository(pool)
	invocationPolicies := repositories.NewToolInvocationPolicyRepository(pool)
	llmConversations := repositories.NewLLMConversationRepository(pool)

	auditor := audit.NewSecurityAuditor(logger)

	providers, err := llm.NewProviders(cfg, logger)
	if err != nil {
		logger.Fatal("failed to construct upstream LLM providers", zap.Error(err))
	}

	conversationRecorder := llm.NewAsyncConversationRecorder(llmConversations, logger, 0)
	defer conversationRecorder.Close()
	providers.OpenAI.SetRecorder(conversationRecorder)
	providers.Anthropic.SetRecorder(conversationRecorder)

	mcp := mcpclient.NewClient(cfg.MCP, logger)

	trustEngine := trust.NewEngine(interactions, trustedDataPolicies, interactions, interactions, auditor, logger)
	dualLLM := dualllm.NewEvaluator(providers.Secondary, logger)
	invocationEvaluator := invocation.NewEvaluator(tools, invocationPolicies, auditor, logger)
	enforcer := quota.NewEnforcer(limits, agents, limits, orgs, limits, auditor, logger)

	orchestrator := proxy.New(agents, tools, interactions, trustEngine, dualLLM, invocationEvaluator, enforcer, mcp, cfg.Proxy, logger)
	openaiHandler := proxy.NewOpenAIHandler(orchestrator, agents, providers.OpenAI, logger)
	anthropicHandler := proxy.NewAnthropicHandler(orchestrator, agents, providers.Anthropic, logger)
	reverseProxyHandler, err := proxy.NewReverseProxyHandler(cfg.Anthropic.BaseURL, cfg.OpenAI.BaseURL, logger)
	if err != nil {
		logger.Fatal("failed to construct reverse proxy handler", zap.Error(err))
	}

	startQuotaSweep(cfg.Quota.SweepCron, enforcer, orgs, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      map[string]string{cfg.Auth.Issuer: cfg.Auth.JWKSURL},
	})
	if err != nil {
		logger.Fatal("failed to construct JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	agentHandler := handlers.NewAgentHandler(agents, tools, logger)
	promptHandler := handlers.NewPromptHandler(prompts, logger)
	limitHandler := handlers.NewLimitHandler(limits, logger)
	policyHandler := handlers.NewPolicyHandler(trustedDataPolicies, invocationPolicies, logger)
	orgHandler := handlers.NewOrganizationHandler(orgs, logger)
	healthHandler := handlers.NewHealthHandler(cfg, logger)

	mux := http.NewServeMux()
	healthHandler.RegisterRoutes(mux)
	openaiHandler.RegisterRoutes(mux)
	anthropicHandler.RegisterRoutes(mux)
	reverseProxyHandler.RegisterRoutes(mux)

	admin := http.NewServeMux()
	agentHandler.RegisterRoutes(admin)
	promptHandler.RegisterRoutes(admin)
	limitHandler.RegisterRoutes(admin)
	policyHandler.RegisterRoutes(admin)
	orgHandler.RegisterRoutes(admin)
	mux.Handle("/admin/", authMiddleware.RequireAuth(admin.ServeHTTP))

	logged := middleware.RequestLogger(logger.Named("http"))(mux)
	rateLimiter := middleware.NewRateLimiter(
		cfg.Proxy.RequestsPerSecond, cfg.Proxy.Burst,
		cfg.Proxy.GlobalRequestsPerSecond, cfg.Proxy.GlobalBurst,
	)
	rateLimited := middleware.RateLimit(rateLimiter, func(w http.ResponseWriter, r *http.Request) {
		_ = handlers.WriteError(w, http.StatusTooManyRequests, handlers.ErrorTypeRateLimit, "too many requests")
	})
	limited := rateLimited(logged.ServeHTTP)

	logger.Info("starting gateway", zap.String("port", cfg.Port), zap.String("version", cfg.Version))
	if cfg.TLSCertPath != "" {
		err = http.ListenAndServeTLS(cfg.BindAddr+":"+cfg.Port, cfg.TLSCertPath, cfg.TLSKeyPath, limited)
	} else {
		err = http.ListenAndServe(cfg.BindAddr+":"+cfg.Port, limited)
	}
	if err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		logger, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("failed to build production logger: %v", err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build development logger: %v", err)
	}
	return logger
}

// startQuotaSweep schedules the organization-scoped quota reset sweep (§4.5)
// on cronSchedule, running independent of live request traffic. Agent- and
// team-scoped limits are already swept lazily by quota.Enforcer.PreCheck.
func startQuotaSweep(cronSchedule string, enforcer *quota.Enforcer, orgs *repositories.OrganizationRepository, logger *zap.Logger) {
	sched := cron.New()
	_, err := sched.AddFunc(cronSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		all, err := orgs.ListAll(ctx)
		if err != nil {
			logger.Warn("quota sweep: failed to list organizations", zap.Error(err))
			return
		}
		for _, org := range all {
			if err := enforcer.SweepOrganization(ctx, org.ID); err != nil {
				logger.Warn("quota sweep failed for organization", zap.String("org_id", org.ID.String()), zap.Error(err))
			}
		}
	})
	if err != nil {
		logger.Fatal("failed to schedule quota sweep", zap.String("cron", cronSchedule), zap.Error(err))
	}
	sched.Start()
}

