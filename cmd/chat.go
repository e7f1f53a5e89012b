package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/intake"
	"github.com/spigell/hr-intake/internal/logger"
)

const (
	commandQuit   = "/quit"
	commandStatus = "/status"
	commandExport = "/export"
	commandAttach = "/attach"
	commandHelp   = "/help"

	chatHelp = `Commands:
  /attach <file.pdf>  attach a company document as extra context
  /status             show the profile and the current stage
  /export             save a complete profile to the spreadsheet
  /quit               leave the chat (the session can be resumed with --session)`
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the intake interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "resume the session with the given id")
	chatCmd.Flags().StringP("user", "u", "", "user identifier stored with a new session")
}

func chat(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing the application", zap.Error(err))
	}
	defer a.Close()

	svc := a.service

	id := strings.TrimSpace(cmd.Flag("session").Value.String())
	if id == "" {
		started, err := svc.StartSession(ctx, cmd.Flag("user").Value.String())
		if err != nil {
			logger.Fatal("starting a session", zap.Error(err))
		}
		id = started.SessionID
		fmt.Printf("%s\n\n", started.Welcome)
	} else {
		status, err := svc.Status(ctx, id)
		if err != nil {
			logger.Fatal("resuming a session", zap.Error(err))
		}
		fmt.Printf("Resumed session %s. Current stage: %s\n\n", status.SessionID, status.Stage)
	}
	defer svc.EndSession(id)

	logger.Info("chat started", zap.String("session_id", id), zap.String("hint", "type /help for commands"))

	input := promptui.Prompt{Label: "You"}
	for {
		line, err := input.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return
		}
		if err != nil {
			logger.Error("reading input", zap.Error(err))
			return
		}

		if quit := handleChatLine(ctx, svc, id, strings.TrimSpace(line), logger); quit {
			fmt.Printf("Bye! Resume later with: %s chat --session %s\n", app, id)
			return
		}
	}
}

func handleChatLine(ctx context.Context, svc *intake.Service, id, line string, logger *zap.Logger) bool {
	switch {
	case line == "":
	case line == commandQuit:
		return true
	case line == commandHelp:
		fmt.Println(chatHelp)
	case line == commandStatus:
		status, err := svc.Status(ctx, id)
		if err != nil {
			logger.Error("getting the status", zap.Error(err))
			return false
		}
		fmt.Println(status.Summary)
	case line == commandExport:
		confirm := promptui.Prompt{Label: "Save the profile to the spreadsheet", IsConfirm: true}
		if _, err := confirm.Run(); err != nil {
			return false
		}
		res, err := svc.Export(ctx, id)
		if err != nil {
			logger.Error("exporting the profile", zap.Error(err))
			return false
		}
		fmt.Println(res.Message)
	case strings.HasPrefix(line, commandAttach):
		path := strings.TrimSpace(strings.TrimPrefix(line, commandAttach))
		if path == "" {
			fmt.Println("Usage: /attach <file.pdf>")
			return false
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Failed to process PDF: %v\n", err)
			return false
		}
		status, err := svc.AttachDocument(ctx, id, intake.Attachment{Name: filepath.Base(path), Data: data})
		if err != nil {
			logger.Error("attaching a document", zap.Error(err))
			return false
		}
		fmt.Println(status)
	default:
		reply, err := svc.HandleTurn(ctx, id, intake.Turn{Text: line})
		if err != nil {
			logger.Error("handling the message", zap.Error(err))
			fmt.Println("Sorry, I could not process that message. Please try again.")
			return false
		}
		fmt.Printf("\nAssistant: %s\n\n", reply.Text)
	}

	return false
}
