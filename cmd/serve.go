package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/logger"
	"github.com/spigell/hr-intake/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the intake assistant over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the hr-intake server", zap.String("version", version))

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	authenticator, err := newAuthenticator(config.Auth)
	if err != nil {
		logger.Fatal("configuring authentication", zap.Error(err))
	}
	logger.Info("authentication configured", zap.Int("users", authenticator.Len()))

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing the application", zap.Error(err))
	}
	defer a.Close()

	logger.Info("document processing configured", zap.Int("max_tokens", a.documents.MaxTokens()))

	go a.service.ExpireSessions(ctx, config.Server.SessionIdle)

	srv := server.New(config.Server, a.service, authenticator, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server stopped", zap.Error(err))
		return
	}

	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}
