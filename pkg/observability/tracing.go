package observability

import (
	"context"

	"github.com/VadimShubkin/ii/pkg/common"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Tracer opens X-Ray subsegments under the request segment. Outside a
// traced request it only runs the function.
type Tracer struct {
	service string
}

// NewTracer creates a tracer that tags subsegments with service
func NewTracer(service string) *Tracer {
	return &Tracer{service: service}
}

// TraceFunction runs fn in a subsegment called name, annotated with the
// service and the acting user
func (t *Tracer) TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error {
	if xray.GetSegment(ctx) == nil {
		return fn(ctx)
	}

	subCtx, seg := xray.BeginSubsegment(ctx, name)
	if seg == nil {
		return fn(ctx)
	}
	_ = seg.AddAnnotation("service", t.service)
	_ = seg.AddAnnotation("actor", common.Actor(ctx))

	err := fn(subCtx)
	if err != nil {
		_ = seg.AddError(err)
	}
	seg.Close(err)
	return err
}
