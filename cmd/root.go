package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tleino/xin/internal/config"
	"github.com/tleino/xin/internal/logger"
	"github.com/tleino/xin/internal/sandbox"
)

const usage = "Usage: xin [-s]"

// ErrUsage is returned after the usage line has been printed
var ErrUsage = errors.New("invalid arguments")

var (
	configPath string
	sendEvent  bool
	logFile    *os.File

	rootCmd = &cobra.Command{
		Use:   "xin",
		Short: "xin - forwarded input receiver for X11",
		Long: `xin reads keyboard, mouse button, pointer motion and layout commands
from standard input and replays them on an X11 display, either as fake
hardware input through XTEST or (with -s) as events sent straight to the
focused window.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError(cmd)
			}
			return nil
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: teardown,
		RunE:              runReceiver,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		logger.Debug("flag error", "error", err)
		return usageError(cmd)
	})

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.PersistentFlags().String("display", "", "X display to use instead of $DISPLAY")
	rootCmd.Flags().BoolVarP(&sendEvent, "sendevent", "s", false, "Send key events to the focused window instead of using XTEST")

	viper.BindPFlag("display.name", rootCmd.PersistentFlags().Lookup("display"))
}

func usageError(cmd *cobra.Command) error {
	fmt.Fprintln(cmd.ErrOrStderr(), usage)
	return ErrUsage
}

// setup loads the configuration and applies the logging settings
func setup(cmd *cobra.Command, args []string) error {
	config.SetConfigPath(configPath)
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	if cfg.Logging.LogLevel != "" {
		if err := logger.SetLevel(cfg.Logging.LogLevel); err != nil {
			return err
		}
	}
	if cfg.Logging.File != "" {
		f, err := logger.SetupFileLogging(cfg.Logging.File)
		if err != nil {
			return err
		}
		logFile = f
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if logFile != nil {
		logger.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
}

// runReceiver applies the command stream on stdin until it ends
func runReceiver(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	method, err := inputMethod(cfg, sendEvent)
	if err != nil {
		return err
	}

	if err := sandbox.BeforeConnect(); err != nil {
		return err
	}
	sess, err := openSession(cfg, method)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sandbox.AfterConnect(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A blocked read only returns once the input is closed
	in := cmd.InOrStdin()
	context.AfterFunc(ctx, func() {
		if c, ok := in.(io.Closer); ok {
			c.Close()
		}
	})

	err = sess.receiver.Run(ctx, in)
	if ctx.Err() != nil {
		logger.Info("Interrupted")
		return nil
	}
	return err
}
