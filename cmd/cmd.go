package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/chatfabric/notify-server/config"
)

const (
	ServiceName      = "notify-server"
	ServiceNamespace = "chatfabric"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run is the process entry point. automaxprocs (blank-imported above) sets
// GOMAXPROCS from the container's CPU quota before anything else runs,
// matching the teacher-adjacent examples' init-time CPU-sizing convention.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Real-time event fan-out fabric for chat notifications",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the notification fan-out server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Audit the resolved configuration for production readiness and exit",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := ProvideLogger()
			log.Info("starting "+ServiceName, "version", version, "commit", commit, "branch", branch)
			log.Info(cfg.Summary())

			if c.Bool("check") {
				if err := config.ValidateProductionReadiness(cfg, log); err != nil {
					return fmt.Errorf("production readiness check failed: %w", err)
				}
				fmt.Println("ok: configuration passes production readiness checks")
				return nil
			}

			if _, err := config.WatchForChanges(c.String("config_file"), func(updated *config.AppConfig) {
				log.Info("configuration file changed; restart to apply", "summary", updated.Summary())
			}); err != nil {
				log.Warn("config hot-reload watch unavailable", "error", err)
			}

			app := NewApp(cfg, log)

			startCtx, cancel := context.WithTimeout(c.Context, 15*time.Second)
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			log.Info("shutting down")
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}
