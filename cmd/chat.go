package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adalundhe/duet/core/bootstrap"
	"github.com/adalundhe/duet/core/room"
)

// ChatLogFile receives chat logs so they do not interleave with the
// conversation on the terminal.
const ChatLogFile = "chat.log"

var chatNoJournal bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the personas in the terminal",
	Long: `Start a conversation on the console against the configured language model.
Type /interrupt to cut off a reply and /quit (or Ctrl-D) to leave.

Logs are written to chat.log in the state directory.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().BoolVar(&chatNoJournal, "no-journal", false, "Do not record handoffs in the journal")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, dirs, err := loadConfig()
	if err != nil {
		return err
	}
	defer mgr.Close()
	cfg := mgr.Get()

	if err := dirs.EnsureAll(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dirs.LogDir(), ChatLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chat log: %w", err)
	}
	defer logFile.Close()

	logger, err := newLogger(cfg.Log, logFile)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Dirs:           dirs,
		DisableJournal: chatNoJournal,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	return chat(ctx, app, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
}

// chat runs one console conversation until the user leaves.
func chat(ctx context.Context, app *bootstrap.App, in io.Reader, out io.Writer, logger *slog.Logger) error {
	console, err := room.NewConsoleRoom("console", in, out)
	if err != nil {
		return err
	}
	defer console.Close()

	conv, err := app.NewConversation(console)
	if err != nil {
		return err
	}
	logger.Info("console conversation", slog.String("conversation", conv.ID()))

	if err := conv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
