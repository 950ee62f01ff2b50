package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricDataAPI is the subset of the CloudWatch client Metrics uses
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics sends application metrics to CloudWatch
type Metrics struct {
	namespace string
	client    PutMetricDataAPI
	logger    *zap.Logger
}

// NewMetrics creates a new metrics instance; a nil client disables sending
func NewMetrics(namespace string, client PutMetricDataAPI, logger *zap.Logger) *Metrics {
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

// RecordCommandExecution records metrics for command execution
func (m *Metrics) RecordCommandExecution(ctx context.Context, commandName string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	dims := dimensions(map[string]string{"CommandName": commandName, "Status": status})

	m.put(ctx,
		types.MetricDatum{
			MetricName: aws.String("CommandExecution"),
			Dimensions: dims,
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  aws.Time(time.Now()),
		},
		types.MetricDatum{
			MetricName: aws.String("CommandCount"),
			Dimensions: dims,
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(time.Now()),
		},
	)
}

// RecordModeration counts gate decisions per action
func (m *Metrics) RecordModeration(action, decision string) {
	m.IncrementCounter("ModerationDecision", map[string]string{"Action": action, "Decision": decision})
}

// IncrementCounter increments a named counter
func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	m.put(context.Background(), types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dimensions(tags),
		Value:      aws.Float64(1),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
	})
}

// RecordLatency records a latency in milliseconds
func (m *Metrics) RecordLatency(name string, latencyMs float64, tags map[string]string) {
	m.put(context.Background(), types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dimensions(tags),
		Value:      aws.Float64(latencyMs),
		Unit:       types.StandardUnitMilliseconds,
		Timestamp:  aws.Time(time.Now()),
	})
}

func (m *Metrics) put(ctx context.Context, data ...types.MetricDatum) {
	if m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		// Metrics failures never fail the request
		m.logger.Warn("Failed to put metric data", zap.String("metric", aws.ToString(data[0].MetricName)), zap.Error(err))
	}
}

func dimensions(tags map[string]string) []types.Dimension {
	dims := make([]types.Dimension, 0, len(tags))
	for k, v := range tags {
		dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}
	return dims
}
