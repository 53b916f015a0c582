package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/config"
	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
	"github.com/dropDatabas3/littlejohn/internal/http/router"
	svcauth "github.com/dropDatabas3/littlejohn/internal/http/services/auth"
	"github.com/dropDatabas3/littlejohn/internal/metrics"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	"github.com/dropDatabas3/littlejohn/internal/store"

	// Los adapters se registran vía init()
	_ "github.com/dropDatabas3/littlejohn/internal/store/adapters/fs"
	_ "github.com/dropDatabas3/littlejohn/internal/store/adapters/memory"
	_ "github.com/dropDatabas3/littlejohn/internal/store/adapters/pg"
)

func main() {
	// .env es opcional
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "littlejohn",
		Short: "LittleJohn: servicio de autenticación con 2FA TOTP",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path al config.yaml (default: ./config.yaml si existe)")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(seedCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resuelve el path del config y lo carga.
func loadConfig(cfgPath string) (*config.Config, error) {
	if cfgPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			cfgPath = "config.yaml"
		}
	}
	return config.Load(cfgPath)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Connection, error) {
	return store.Open(ctx, store.AdapterConfig{
		Name:   cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		FSRoot: cfg.Storage.FSRoot,
	})
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "littlejohn"})
			defer func() { _ = logger.Sync() }()
			log := logger.L()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer func() { _ = conn.Close() }()
			log.Info("store ready", logger.String("driver", conn.Name()))

			cacheClient, err := cache.New(cache.Config{
				Kind:       cfg.Cache.Kind,
				Addr:       cfg.Cache.Redis.Addr,
				Password:   cfg.Cache.Redis.Password,
				DB:         cfg.Cache.Redis.DB,
				Prefix:     cfg.Cache.Redis.Prefix,
				DefaultTTL: cfg.CacheDefaultTTL(),
			})
			if err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			defer func() { _ = cacheClient.Close() }()
			log.Info("cache ready", logger.String("kind", cfg.Cache.Kind))

			if err := metrics.Register(nil); err != nil {
				return fmt.Errorf("metrics: %w", err)
			}

			authSvc := svcauth.New(svcauth.Deps{
				Store:           conn,
				Cache:           cacheClient,
				Issuer:          cfg.TOTP.Issuer,
				Window:          cfg.TOTP.Window,
				QRSize:          cfg.TOTP.QRSize,
				ReverifyOnLogin: cfg.Auth.MFA.ReverifyOnLogin,
			})

			handler := router.New(router.Deps{
				Auth:               authSvc,
				CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
			})

			apiSrv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      handler,
				ReadTimeout:  cfg.ReadTimeoutDur(),
				WriteTimeout: cfg.WriteTimeoutDur(),
			}

			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			metricsSrv := &http.Server{
				Addr:        cfg.Server.MetricsAddr,
				Handler:     metricsMux,
				ReadTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				log.Info("api listening", logger.String("addr", apiSrv.Addr))
				if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				log.Info("metrics listening", logger.String("addr", metricsSrv.Addr))
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shCtx)
				return apiSrv.Shutdown(shCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			log.Info("shutdown complete")
			return nil
		},
	}
}

func seedCmd(cfgPath *string) *cobra.Command {
	var email, username, plain string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Crea un usuario (el servicio no expone registro)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" || strings.TrimSpace(plain) == "" {
				return errors.New("se requieren --email y --password")
			}
			if strings.TrimSpace(username) == "" {
				username = strings.SplitN(email, "@", 2)[0]
			}

			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "littlejohn"})
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			conn, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer func() { _ = conn.Close() }()

			hash, err := password.Hash(password.Default, plain)
			if err != nil {
				return fmt.Errorf("hash: %w", err)
			}

			user, err := conn.Users().Create(ctx, repository.CreateUserInput{
				Email:        strings.ToLower(strings.TrimSpace(email)),
				Username:     strings.TrimSpace(username),
				PasswordHash: hash,
			})
			if err != nil {
				if repository.IsConflict(err) {
					return fmt.Errorf("el email %s ya está registrado", email)
				}
				return err
			}

			fmt.Printf("user created: id=%s email=%s username=%s\n", user.ID, user.Email, user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email del usuario")
	cmd.Flags().StringVar(&username, "username", "", "nombre de usuario (default: parte local del email)")
	cmd.Flags().StringVar(&plain, "password", "", "password en claro (se guarda con argon2id)")
	return cmd
}
