package app

import (
	"context"
	"fmt"
	"log"

	"hydrodiag/internal/gateway/auth"
	"hydrodiag/internal/gateway/config"
	"hydrodiag/internal/gateway/handler"
	"hydrodiag/internal/gateway/middleware"
	"hydrodiag/internal/gateway/repository/records"
	"hydrodiag/internal/gateway/server"
	"hydrodiag/internal/gateway/service/equipment"
	"hydrodiag/internal/gateway/service/plant"
	"hydrodiag/internal/gateway/service/user"
	llmclient "hydrodiag/internal/llmClient"
)

type App struct {
	server *server.Server
	llm    llmclient.LLMClient
	stores *gatewayStores
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Dependencies
	stores, err := initStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	llm, err := llmclient.New(ctx, llmclient.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
		RPS:      cfg.LLM.RPS,
		Burst:    cfg.LLM.Burst,
	})
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	plantSvc := plant.New(llm, stores.records, stores.images, plant.Options{})
	equipmentSvc := equipment.New(llm, stores.records, equipment.Options{MaxQuestions: cfg.Equipment.MaxQuestions})
	userSvc := user.New(stores.records, cfg.Auth.OwnerID, 0)

	if cfg.Auth.JWTSecret == "" {
		log.Printf("identity: WARNING: JWT_SECRET not set, every caller is anonymous and history is disabled")
	}
	origins := middleware.NewOrigins(cfg.CORS.AllowedOrigins)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		log.Printf("cors: CORS_ALLOWED_ORIGINS not set, cross-origin browser calls are refused")
	}
	identity := middleware.Identity(auth.DefaultTokenConfig(cfg.Auth.JWTSecret), userSvc, origins)

	// Routing & Server
	mux := server.NewMux(server.Handlers{
		Plant:     handler.NewPlantHandler(plantSvc),
		Equipment: handler.NewEquipmentHandler(equipmentSvc, origins),
		Images:    handler.NewImageHandler(stores.images),
	}, origins, identity)

	return &App{
		server: server.New(cfg.Port, mux),
		llm:    llm,
		stores: stores,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.llm.Close(); cerr != nil {
		log.Printf("llm: close failed: %v", cerr)
	}
	if cerr := a.stores.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Migrate creates the relational schema and exits.
func Migrate(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Configured() {
		return fmt.Errorf("DATABASE_URL is required")
	}
	store, err := records.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	log.Printf("record store: schema ready driver=%s", cfg.Database.Driver)
	return nil
}
