package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"localpub/internal/config"
	"localpub/internal/constants"
	"localpub/internal/logger"
	"localpub/internal/security"
	"localpub/internal/supervisor"
)

func main() {
	out := printer{out: os.Stdout}
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "  %s⚠ %v%s\n", constants.ColorYellow, err, constants.ColorReset)
	}

	if err := newRootCommand(out).Execute(); err != nil {
		out.failure(err)
		os.Exit(1)
	}
}

func newRootCommand(out printer) *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:   constants.AppName + " [port]",
		Short: "Expose a local web app through a public tunnel.",
		Long: `Expose a local web app through a public tunnel, optionally behind a
login page. The tunnel closes on ctrl+c, when the TTL runs out, or when the
app stops responding.`,
		Example:       "  localpub 3000\n  localpub -p 8080 --auth --ttl 30m",
		Args:          cobra.MaximumNArgs(1),
		Version:       constants.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, generated, err := flags.toConfig(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), out, cfg, generated, flags.noQR)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func run(ctx context.Context, out printer, cfg *config.TunnelConfig, generated, noQR bool) error {
	log := logger.New(logger.Options{Verbose: cfg.Verbose, JSON: cfg.JSON})
	defer logger.CaptureStdLog(log)()
	out.banner()

	var logPath, auditPath string
	var audit *security.AuditLogger
	if cfg.LogDir != "" {
		hook, err := logger.NewFileHook(cfg.LogDir, fmt.Sprintf("%s-%d", time.Now().Format("20060102-150405"), cfg.Port))
		if err != nil {
			log.WithError(err).Warn("⚠️  File logging disabled")
		} else {
			defer hook.Close()
			log.AddHook(hook)
			logPath = hook.Path()
		}

		audit, err = security.NewAuditLogger(cfg.LogDir)
		if err != nil {
			log.WithError(err).Warn("⚠️  Audit logging disabled")
		} else {
			defer audit.Close()
			auditPath = audit.Path()
		}
	}

	sup := supervisor.New(cfg, supervisor.Options{Log: log, Audit: audit})
	publicURL, err := sup.Start(ctx)
	if err != nil {
		return err
	}

	out.tunnel(tunnelInfo{
		publicURL: publicURL,
		localURL:  sup.LocalURL(),
		cfg:       cfg,
		profile:   sup.AppProfile(),
		generated: generated,
		logPath:   logPath,
		auditPath: auditPath,
		noQR:      noQR || cfg.JSON,
	})

	err = sup.Wait()
	logStop(log, sup)
	return err
}

func logStop(log logrus.FieldLogger, sup *supervisor.Supervisor) {
	entry := log.WithField("reason", string(sup.Reason()))
	if err := sup.Err(); err != nil {
		entry.WithError(err).Error("🔴 Tunnel stopped")
		return
	}
	entry.Info("● done")
}
