package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/bootstrap"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/syncedfolder"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/runtime"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "ssgberk/service"

// Backend brings a resolved machine to life on one hypervisor.
type Backend interface {
	Name() provision.ProviderName
	Up(ctx context.Context, machine provision.Machine) (runtime.Endpoint, error)
	Endpoint(ctx context.Context, machine provision.Machine) (runtime.Endpoint, error)
	Destroy(ctx context.Context, machine provision.Machine) error
}

// Dialer opens a shell session on a booted machine.
type Dialer func(ctx context.Context, endpoint runtime.Endpoint) (executor.Remote, error)

// ProvisionService runs the machine lifecycle described by a provision.Config.
type ProvisionService struct {
	config   *provision.Config
	backends map[provision.ProviderName]Backend
	folders  *syncedfolder.Manager
	runner   *bootstrap.Runner
	dial     Dialer
	logger   *slog.Logger

	upCounter         metric.Int64Counter
	destroyCounter    metric.Int64Counter
	upDuration        metric.Float64Histogram
	provisionDuration metric.Float64Histogram
}

func NewProvisionService(
	config *provision.Config,
	backends []Backend,
	folders *syncedfolder.Manager,
	runner *bootstrap.Runner,
	dial Dialer,
	logger *slog.Logger,
) *ProvisionService {
	meter := otel.Meter(instrumentationName)

	upCounter, err := meter.Int64Counter(
		"ssgberk.vm.up",
		metric.WithDescription("Number of VM up operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn("failed to create upCounter metric", slog.String("error", err.Error()))
	}

	destroyCounter, err := meter.Int64Counter(
		"ssgberk.vm.destroy",
		metric.WithDescription("Number of VM destroy operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn("failed to create destroyCounter metric", slog.String("error", err.Error()))
	}

	upDuration, err := meter.Float64Histogram(
		"ssgberk.vm.up.duration",
		metric.WithDescription("Duration of VM up operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create upDuration metric", slog.String("error", err.Error()))
	}

	provisionDuration, err := meter.Float64Histogram(
		"ssgberk.vm.provision.duration",
		metric.WithDescription("Duration of provisioning runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create provisionDuration metric", slog.String("error", err.Error()))
	}

	byName := make(map[provision.ProviderName]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	return &ProvisionService{
		config:            config,
		backends:          byName,
		folders:           folders,
		runner:            runner,
		dial:              dial,
		logger:            logger.With(slog.String("service", "provision")),
		upCounter:         upCounter,
		destroyCounter:    destroyCounter,
		upDuration:        upDuration,
		provisionDuration: provisionDuration,
	}
}

// Up boots the machine of provider, shares its synced folders and runs the
// provisioning steps.
func (s *ProvisionService) Up(ctx context.Context, provider provision.ProviderName) (err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Up")
	defer func() { endSpan(span, err) }()
	startTime := time.Now()

	machine, backend, err := s.resolve(provider)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("vm.name", machine.Hostname),
		attribute.String("vm.provider", string(provider)),
	)

	s.logger.Info("bringing machine up",
		slog.String("vm", machine.Hostname),
		slog.String("provider", string(provider)),
		slog.String("box", machine.Box),
	)

	endpoint, err := backend.Up(ctx, machine)
	if err != nil {
		s.record(ctx, s.upCounter, provider, "failed")
		return fmt.Errorf("could not bring up %s: %w", machine.Hostname, err)
	}

	if err = s.provision(ctx, machine, endpoint, true); err != nil {
		s.record(ctx, s.upCounter, provider, "failed")
		return err
	}

	s.record(ctx, s.upCounter, provider, "success")
	if s.upDuration != nil {
		s.upDuration.Record(ctx, time.Since(startTime).Seconds(),
			metric.WithAttributes(attribute.String("provider", string(provider))))
	}

	s.logger.Info("machine is up",
		slog.String("vm", machine.Hostname),
		slog.String("address", endpoint.Address),
		slog.Duration("took", time.Since(startTime)),
	)
	return nil
}

// Provision reruns the provisioning steps on a running machine.
func (s *ProvisionService) Provision(ctx context.Context, provider provision.ProviderName) (err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Provision")
	defer func() { endSpan(span, err) }()

	machine, backend, err := s.resolve(provider)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("vm.name", machine.Hostname))

	endpoint, err := backend.Endpoint(ctx, machine)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", machine.Hostname, err)
	}

	return s.provision(ctx, machine, endpoint, false)
}

// Destroy withdraws the synced folder exports and deletes the machine.
// Destroying a machine that does not exist succeeds.
func (s *ProvisionService) Destroy(ctx context.Context, provider provision.ProviderName) (err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Destroy")
	defer func() { endSpan(span, err) }()

	machine, backend, err := s.resolve(provider)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("vm.name", machine.Hostname))

	if endpoint, err := backend.Endpoint(ctx, machine); err == nil {
		for _, folder := range machine.SyncedFolders {
			if err := s.folders.Unexport(ctx, folder, endpoint.GuestAddress); err != nil {
				s.logger.Warn("failed to remove synced folder export",
					slog.String("guest_path", folder.GuestPath),
					slog.String("error", err.Error()),
				)
			}
		}
	} else {
		s.logger.Debug("machine not reachable, skipping export cleanup",
			slog.String("vm", machine.Hostname),
			slog.String("reason", err.Error()),
		)
	}

	if err = backend.Destroy(ctx, machine); err != nil {
		s.record(ctx, s.destroyCounter, provider, "failed")
		return fmt.Errorf("could not destroy %s: %w", machine.Hostname, err)
	}

	s.record(ctx, s.destroyCounter, provider, "success")
	s.logger.Info("machine destroyed", slog.String("vm", machine.Hostname))
	return nil
}

func (s *ProvisionService) resolve(provider provision.ProviderName) (provision.Machine, Backend, error) {
	machine, err := s.config.Resolve(provider)
	if err != nil {
		return provision.Machine{}, nil, err
	}

	backend, ok := s.backends[provider]
	if !ok {
		return provision.Machine{}, nil, fmt.Errorf("%w: no backend for %s", provision.ErrProviderNotConfigured, provider)
	}
	return machine, backend, nil
}

// provision shares the synced folders and runs every provisioning step.
// Host side exports are only set up when share is true; they outlive the session.
func (s *ProvisionService) provision(ctx context.Context, machine provision.Machine, endpoint runtime.Endpoint, share bool) error {
	startTime := time.Now()

	if share {
		for _, folder := range machine.SyncedFolders {
			if err := s.folders.Export(ctx, folder, endpoint.GuestAddress); err != nil {
				return fmt.Errorf("could not export %s: %w", folder.HostPath, err)
			}
		}
	}

	guest, err := s.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("could not open session on %s: %w", machine.Hostname, err)
	}
	defer func() {
		if err := guest.Close(); err != nil {
			s.logger.Warn("failed to close guest session", slog.String("error", err.Error()))
		}
	}()

	for _, folder := range machine.SyncedFolders {
		if err := s.folders.Mount(ctx, guest, folder, endpoint.HostAddress); err != nil {
			return err
		}
	}

	for _, step := range machine.Provisioners {
		if err := s.runner.Run(ctx, guest, step); err != nil {
			return err
		}
	}

	if s.provisionDuration != nil {
		s.provisionDuration.Record(ctx, time.Since(startTime).Seconds(),
			metric.WithAttributes(attribute.String("provider", string(machine.Provider))))
	}

	return nil
}

func (s *ProvisionService) record(ctx context.Context, counter metric.Int64Counter, provider provision.ProviderName, status string) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("status", status),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
