package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/config"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/bootstrap"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/disk"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/libvirt"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/syncedfolder"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/virtualbox"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/runtime"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/service"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	pkglibvirt "github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/libvirt"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/logger"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/telemetry"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", slog.String("error", err.Error()))
		return 1
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Debug("ssgberk-vm starting",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel),
		slog.String("log_format", cfg.LogFormat),
		slog.Bool("telemetry_enabled", cfg.TelemetryEnabled),
	)

	if cfg.TelemetryEnabled {
		tel, err := telemetry.Initialize("ssgberk-vm", version, os.Stderr)
		if err != nil {
			log.Error("failed to initialize telemetry", slog.String("error", err.Error()))
			return 1
		}
		defer func() {
			log.Debug("shutting down telemetry")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				log.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
			}
		}()
		log.Debug("telemetry initialized")
	} else {
		log.Debug("telemetry disabled")
	}

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	providerFlag := &cli.StringFlag{
		Name:    "provider",
		Aliases: []string{"p"},
		Usage:   "Hypervisor backend (libvirt, virtualbox)",
		EnvVars: []string{"SSGBERK_PROVIDER"},
		Value:   string(provision.PROVIDER_LIBVIRT),
	}

	withService := func(action func(*service.ProvisionService, provision.ProviderName) error) cli.ActionFunc {
		return func(cliCtx *cli.Context) error {
			provider, err := provision.ParseProviderName(cliCtx.String("provider"))
			if err != nil {
				return err
			}

			svc, cleanup, err := initProvisionService(cfg, log, provider)
			if err != nil {
				return err
			}
			defer cleanup()

			return action(svc, provider)
		}
	}

	app := &cli.App{
		Name:                 "ssgberk-vm",
		Usage:                "Configure and run the static site generator benchmark VM",
		Version:              version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "render",
				Usage: "Write the VM configuration as a Vagrantfile, YAML or JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (vagrantfile, yaml, json)",
						Value:   formatVagrantfile,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file, - for stdout",
						Value:   "-",
					},
				},
				Action: func(cliCtx *cli.Context) error {
					return runRender(cfg, log, cliCtx.String("format"), cliCtx.String("output"))
				},
			},
			{
				Name:  "up",
				Usage: "Create and boot the VM, share the project and run the bootstrap script",
				Flags: []cli.Flag{providerFlag},
				Action: withService(func(svc *service.ProvisionService, provider provision.ProviderName) error {
					if err := svc.Up(ctx, provider); err != nil {
						return fmt.Errorf("unable to bring the VM up: %w", err)
					}
					return nil
				}),
			},
			{
				Name:  "provision",
				Usage: "Run the bootstrap script again on the running VM",
				Flags: []cli.Flag{providerFlag},
				Action: withService(func(svc *service.ProvisionService, provider provision.ProviderName) error {
					if err := svc.Provision(ctx, provider); err != nil {
						return fmt.Errorf("unable to provision the VM: %w", err)
					}
					return nil
				}),
			},
			{
				Name:  "destroy",
				Usage: "Stop and delete the VM",
				Flags: []cli.Flag{providerFlag},
				Action: withService(func(svc *service.ProvisionService, provider provision.ProviderName) error {
					if err := svc.Destroy(ctx, provider); err != nil {
						return fmt.Errorf("unable to destroy the VM: %w", err)
					}
					return nil
				}),
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func initProvisionService(cfg *config.Config, log *slog.Logger, provider provision.ProviderName) (*service.ProvisionService, func(), error) {
	if err := cfg.ValidateRuntime(provider); err != nil {
		return nil, nil, err
	}

	host := executor.NewLocal(log)
	folders := syncedfolder.NewManager(host, cfg.VagrantDir, cfg.SSHUser, log)
	cleanup := func() {}

	var backend service.Backend
	switch provider {
	case provision.PROVIDER_LIBVIRT:
		connManager, err := pkglibvirt.NewConnectionManager(cfg.LibvirtURI, host, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize connection manager: %w", err)
		}
		cleanup = func() {
			if err := connManager.Close(); err != nil {
				log.Warn("failed to close libvirt connection", slog.String("error", err.Error()))
			}
		}

		backend = libvirt.NewManager(connManager, disk.NewManager(log), libvirt.Options{
			Network:        cfg.LibvirtNetwork,
			DataDir:        cfg.LibvirtDataDir,
			BoxImage:       cfg.LibvirtBoxImage,
			DiskSizeGB:     cfg.LibvirtDiskSizeGB,
			NFSHostAddress: cfg.NFSHostAddress,
			BootTimeout:    cfg.BootTimeout,
		}, log)

	case provision.PROVIDER_VIRTUALBOX:
		backend = virtualbox.NewManager(host, folders, virtualbox.Options{
			BoxOVF:  cfg.VirtualBoxBoxOVF,
			SSHPort: cfg.VirtualBoxSSHPort,
		}, log)

	default:
		return nil, nil, fmt.Errorf("%w: %q", provision.ErrUnknownProvider, provider)
	}

	svc := service.NewProvisionService(
		provision.New(cfg.Environment()),
		[]service.Backend{backend},
		folders,
		bootstrap.NewRunner(cfg.VagrantDir, os.Stdout, log),
		sshDialer(cfg, log),
		log,
	)
	return svc, cleanup, nil
}

// sshDialer connects as the box user, waiting up to the boot timeout for
// sshd to come up.
func sshDialer(cfg *config.Config, log *slog.Logger) service.Dialer {
	return func(ctx context.Context, endpoint runtime.Endpoint) (executor.Remote, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.BootTimeout)
		defer cancel()

		remote, err := executor.DialSSH(dialCtx, executor.SSHConfig{
			Host:    endpoint.Address,
			Port:    endpoint.Port,
			User:    cfg.SSHUser,
			KeyPath: cfg.SSHKey,
		}, log)
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
}
