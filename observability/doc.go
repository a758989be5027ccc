// Package observability carries the OpenTelemetry side of svckit: OTLP
// export, span helpers, registry and tracker instruments, and the health
// model the console serves.
//
//	ec := observability.ExportConfig{ServiceName: "orders", Endpoint: "otel:4318"}
//	tp, err := observability.InitTracer(ctx, ec)
//	defer tp.Shutdown(ctx)
//	mp, err := observability.InitMeter(ctx, ec)
//	defer mp.Shutdown(ctx)
//
//	rm, err := observability.NewRegistryMetrics(observability.Meter("svckit"))
//	reg := registry.New(registry.WithMetrics(rm))
//
//	health := observability.Collect(ctx, "orders", "1.0.0", reg)
package observability
