package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// installMeterProvider sets the global meter provider for kind and returns it
// with its shutdown func. For "none" the global provider is left alone, so an
// embedding process can install its own before the server starts.
func installMeterProvider(kind string, interval time.Duration, w io.Writer) (metric.MeterProvider, func(context.Context) error, error) {
	switch kind {
	case "", "none":
		return otel.GetMeterProvider(), func(context.Context) error { return nil }, nil
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
		)
		otel.SetMeterProvider(mp)
		return mp, mp.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %q", kind)
	}
}
