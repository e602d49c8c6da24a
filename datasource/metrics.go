package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/korm/log/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metrics 语句执行指标
type Metrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeStatements  *prometheus.GaugeVec
	batchSize         *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标，同名指标已注册时复用已有的收集器
func NewMetrics(name string, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		statementCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"db", "operation", "status"},
		),
		statementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_duration_seconds",
				Help:    "Duration of statements in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"db", "operation"},
		),
		activeStatements: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_statements",
				Help: "Number of running statements",
			},
			[]string{"db", "operation"},
		),
		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_batch_size",
				Help:    "Number of parameter sets in batch statements",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"db", "operation"},
		),
	}

	var err error
	if m.statementCounter, err = register(registerer, m.statementCounter); err != nil {
		return nil, err
	}
	if m.statementDuration, err = register(registerer, m.statementDuration); err != nil {
		return nil, err
	}
	if m.activeStatements, err = register(registerer, m.activeStatements); err != nil {
		return nil, err
	}
	if m.batchSize, err = register(registerer, m.batchSize); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register metrics failed")
	}
	return c, nil
}

// observer 统一的语句观测逻辑
type observer struct {
	name    string
	db      string
	logger  logger.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func (o *observer) observe(ctx context.Context, operation string, sql string, batch int, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		attrs := []attribute.KeyValue{
			attribute.String("component", o.name),
			attribute.String("db.system", o.db),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", sql),
		}
		if batch > 0 {
			attrs = append(attrs, attribute.Int("batch_size", batch))
		}
		ctx, span = o.tracer.Start(ctx, fmt.Sprintf("%s.%s", o.name, operation), trace.WithAttributes(attrs...))
		defer span.End()
	}

	if o.metrics != nil {
		o.metrics.activeStatements.WithLabelValues(o.db, operation).Inc()
		defer o.metrics.activeStatements.WithLabelValues(o.db, operation).Dec()
		if batch > 0 {
			o.metrics.batchSize.WithLabelValues(o.db, operation).Observe(float64(batch))
		}
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		o.metrics.statementCounter.WithLabelValues(o.db, operation, status).Inc()
		o.metrics.statementDuration.WithLabelValues(o.db, operation).Observe(duration.Seconds())
	}

	if o.logger != nil {
		if err != nil {
			o.logger.ErrorContext(ctx, "statement failed",
				"operation", operation,
				"sql", sql,
				"elapsed", logger.Elapsed(start),
				"error", err.Error(),
			)
		} else {
			o.logger.DebugContext(ctx, "statement completed",
				"operation", operation,
				"sql", sql,
				"elapsed", logger.Elapsed(start),
			)
		}
	}

	return err
}
