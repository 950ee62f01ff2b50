package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollector(t *testing.T) {
	c := NewCollector("topics")

	c.RecordModeration("topic_merge", "queue")
	c.RecordModeration("topic_merge", "queue")
	c.RecordCommandExecution(context.Background(), "topic.merge", time.Millisecond, errors.New("boom"))
	c.RecordHTTPRequest(http.MethodGet, "/api/topic/suggest", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ModerationDecisions.WithLabelValues("topic_merge", "queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Commands.WithLabelValues("topic.merge", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/topic/suggest", "200")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "topics_moderation_decisions_total"))

	// Collectors are independent
	assert.NotPanics(t, func() { NewCollector("topics") })
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestMetrics_RecordCommandExecution(t *testing.T) {
	client := &fakeCloudWatch{}
	m := NewMetrics("Topics", client, zap.NewNop())

	m.RecordCommandExecution(context.Background(), "topic.add_child", 15*time.Millisecond, nil)
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "Topics", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 2)
	assert.Equal(t, "CommandExecution", aws.ToString(in.MetricData[0].MetricName))
	assert.Equal(t, 15.0, aws.ToFloat64(in.MetricData[0].Value))

	// Send failures are swallowed
	client.err = errors.New("throttled")
	assert.NotPanics(t, func() { m.RecordModeration("topic_merge", "allow") })

	// A nil client disables sending
	assert.NotPanics(t, func() { NewMetrics("Topics", nil, zap.NewNop()).RecordLatency("x", 1, nil) })
}

func TestTracer_WithoutSegment(t *testing.T) {
	tracer := NewTracer("topics")
	want := errors.New("failed")

	called := false
	err := tracer.TraceFunction(context.Background(), "topic.merge", func(ctx context.Context) error {
		called = true
		return want
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, want)
}
