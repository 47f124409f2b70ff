package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tleino/xin/internal/config"
	"github.com/tleino/xin/internal/logger"
	"github.com/tleino/xin/internal/network"
	"github.com/tleino/xin/internal/sandbox"
)

var serveSendEvent bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept command streams over SSH",
	Long: `Run an SSH listener. The standard input of every session is read as a
command stream, exactly like xin reads its own standard input. Sessions
are applied one at a time in the order they are admitted.

Only keys listed in the authorized keys file may connect.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveSendEvent, "sendevent", "s", false, "Send key events to the focused window instead of using XTEST")
	serveCmd.Flags().String("listen", "", "Address to listen on")

	// Bind flags to viper
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	method, err := inputMethod(cfg, serveSendEvent)
	if err != nil {
		return err
	}

	sess, err := openSession(cfg, method)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := network.NewSSHServer(cfg.Server.Listen, cfg.Server.HostKeyPath, cfg.Server.AuthorizedKeysPath, sess.receiver)
	srv.OnSessionEnd = func(addr string, err error) {
		stats := sess.receiver.Stats()
		logger.Debug("receiver totals", "lines", stats.Lines, "applied", stats.Applied, "warnings", stats.Warnings)
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	// The host key exists and the listener is open
	if err := sandbox.Serving(); err != nil {
		srv.Stop()
		return err
	}

	logger.Infof("Replaying on display %s via %s", sess.x.Name(), sess.engine.Method())
	logger.Infof("SSH Host Key: %s", cfg.Server.HostKeyPath)
	logger.Infof("SSH Authorized Keys: %s", cfg.Server.AuthorizedKeysPath)

	return srv.Wait(ctx)
}
