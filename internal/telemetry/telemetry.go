package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"

	"github.com/BaSui01/agentpipe/config"
	"github.com/BaSui01/agentpipe/internal/tlsutil"
	"github.com/BaSui01/agentpipe/workflow"
)

// Providers 持有引擎的 TracerProvider 与 MeterProvider。
// 遥测禁用时两者为 nil，Shutdown 为空操作。
type Providers struct {
	tp         *sdktrace.TracerProvider
	mp         *sdkmetric.MeterProvider
	instanceID string
}

// Init 按配置创建 OTLP gRPC 导出器并注册为全局 provider。
// 禁用时返回 noop Providers，不连接任何外部服务。
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	// 每个进程一个实例 id，区分同名服务的多个 CLI 运行
	instanceID := uuid.NewString()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(BuildVersion()),
			semconv.ServiceInstanceIDKey.String(instanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	} else {
		creds := credentials.NewTLS(tlsutil.ClientConfig(cfg.OTLPEndpoint))
		traceOpts = append(traceOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	// Register as global providers
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("instance_id", instanceID),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Bool("insecure", cfg.Insecure),
	)
	return &Providers{tp: tp, mp: mp, instanceID: instanceID}, nil
}

// InstanceID 返回资源上的 service.instance.id，禁用时为空
func (p *Providers) InstanceID() string {
	if p == nil {
		return ""
	}
	return p.instanceID
}

// Tracer returns the engine tracer, falling back to the global provider.
func (p *Providers) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(workflow.TracerName)
	}
	return p.tp.Tracer(workflow.TracerName)
}

// Meter returns the engine meter, falling back to the global provider.
func (p *Providers) Meter() metric.Meter {
	if p == nil || p.mp == nil {
		return otel.Meter(workflow.TracerName)
	}
	return p.mp.Meter(workflow.TracerName)
}

// Enabled reports whether SDK providers were created.
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown 刷新未导出的 span 与指标并关闭导出器。noop Providers 上可安全调用。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// BuildVersion 从构建信息读取模块版本，取不到时返回 "dev"
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
