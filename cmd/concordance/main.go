package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/StudiUM/concordance/internal/aggregate"
	"github.com/StudiUM/concordance/internal/handler"
	appI18n "github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/mailer"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/phase"
	"github.com/StudiUM/concordance/internal/qimport"
	"github.com/StudiUM/concordance/internal/quizdup"
	"github.com/StudiUM/concordance/internal/roster"
	"github.com/StudiUM/concordance/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "concordance",
		Short: "Learning-by-concordance session service",
	}

	serve := serveCmd()
	root.AddCommand(serve, tokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `concordance --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP session service",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "concordance.db", "SQLite database path")
	f.String("panel-category", "concordance-panels", "Course category for generated panel courses")
	f.String("panelist-role", model.RoleStudentDefault, "Role shadow accounts get on the panel course")
	f.Float64("max-grade", 100, "Maximum grade of summative student quizzes")
	f.StringP("lang", "l", "en", "Interface language (en, fr)")
	f.Bool("sync-deletion", false, "Delete host records immediately instead of marking them")
	f.String("api-secret", "", "HS256 secret for API tokens (or set CONCORDANCE_API_SECRET)")
	f.String("quiz-base-url", "http://localhost:8080", "Public URL prefix panelists use to reach quizzes")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an instructor API token",
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("api-secret", "", "HS256 secret for API tokens (or set CONCORDANCE_API_SECRET)")
	f.Int64("user-id", 0, "Instructor user id (required)")
	f.String("firstname", "", "Instructor first name")
	f.String("lastname", "", "Instructor last name")
	f.String("email", "", "Instructor email")
	f.Duration("ttl", 24*time.Hour, "Token lifetime")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CONCORDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("concordance")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/concordance")
	v.AddConfigPath("/etc/concordance")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("api-secret")
	if secret == "" {
		return fmt.Errorf("API secret is required: set --api-secret flag or CONCORDANCE_API_SECRET env var")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServiceConfig{
		PanelCategory: v.GetString("panel-category"),
		PanelistRole:  v.GetString("panelist-role"),
		MaxGrade:      v.GetFloat64("max-grade"),
		Lang:          lang,
		SyncDeletion:  v.GetBool("sync-deletion"),
		QuizBaseURL:   strings.TrimRight(v.GetString("quiz-base-url"), "/"),
	}

	engine := aggregate.New(db)
	questions := qimport.New(db)
	quizzes := quizdup.New(db, questions, engine, cfg)
	panel := roster.New(db, cfg)
	phases := phase.New(db)
	mail := mailer.New(db, mailer.LogMailer{}, cfg)

	h := handler.New(db, phases, quizzes, panel, mail, cfg)
	auth := handler.NewAuth(secret)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	r.Use(auth.WithAuth)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"panel_category", cfg.PanelCategory,
		"panelist_role", cfg.PanelistRole,
		"max_grade", cfg.MaxGrade,
		"sync_deletion", cfg.SyncDeletion,
	)
	return http.ListenAndServe(addr, r)
}

func runToken(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("api-secret")
	if secret == "" {
		return fmt.Errorf("API secret is required: set --api-secret flag or CONCORDANCE_API_SECRET env var")
	}

	auth := handler.NewAuth(secret)
	token, err := auth.SignToken(model.Actor{
		UserID:    v.GetInt64("user-id"),
		FirstName: v.GetString("firstname"),
		LastName:  v.GetString("lastname"),
		Email:     v.GetString("email"),
	}, v.GetDuration("ttl"))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}
