// Package audit retrieves creation events from CloudTrail.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/birthmark/internal/backoff"
	"github.com/yairfalse/birthmark/internal/telemetry"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// MaxPageSize is the largest page LookupEvents serves.
const MaxPageSize = 50

// LookupEventsAPI defines the CloudTrail operation used by the Finder.
type LookupEventsAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

// Record is one CloudTrail event with its parsed document.
type Record struct {
	EventID   string
	EventName string
	EventTime time.Time
	Payload   Payload
}

// Matcher confirms that a payload is a successful creation of one kind.
type Matcher interface {
	Kind() resource.Kind
	EventName() string
	IsCreation(p Payload) bool
}

// Finder runs paginated LookupEvents queries under a Backoff Controller.
type Finder struct {
	client   LookupEventsAPI
	retry    *backoff.Controller
	pageSize int32
	metrics  *telemetry.ReconcileMetrics
	logger   *telemetry.Logger
	tracer   trace.Tracer
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithPageSize sets MaxResults per LookupEvents call (1..50).
func WithPageSize(n int32) FinderOption {
	return func(f *Finder) {
		if n > 0 && n <= MaxPageSize {
			f.pageSize = n
		}
	}
}

// WithMetrics records dropped records on m.
func WithMetrics(m *telemetry.ReconcileMetrics) FinderOption {
	return func(f *Finder) { f.metrics = m }
}

// NewFinder creates a Finder. A nil controller uses backoff defaults.
func NewFinder(client LookupEventsAPI, retry *backoff.Controller, opts ...FinderOption) *Finder {
	if retry == nil {
		retry = backoff.New(backoff.DefaultPolicy())
	}
	f := &Finder{
		client:   client,
		retry:    retry,
		pageSize: MaxPageSize,
		logger:   telemetry.NewLogger("audit"),
		tracer:   otel.Tracer("audit"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Lookup returns every parseable record named eventName inside window,
// following NextToken until the source is exhausted. Records whose document
// cannot be parsed are dropped and logged under kind.
func (f *Finder) Lookup(ctx context.Context, window resource.TimeWindow, eventName string, kind resource.Kind) ([]Record, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var (
		records []Record
		token   *string
		pages   int
	)
	for {
		input := &cloudtrail.LookupEventsInput{
			LookupAttributes: []types.LookupAttribute{{
				AttributeKey:   types.LookupAttributeKeyEventName,
				AttributeValue: aws.String(eventName),
			}},
			StartTime:  aws.Time(window.Start),
			EndTime:    aws.Time(window.End),
			MaxResults: aws.Int32(f.pageSize),
			NextToken:  token,
		}

		out, err := backoff.Do(ctx, f.retry, "cloudtrail.LookupEvents", func(ctx context.Context) (*cloudtrail.LookupEventsOutput, error) {
			return f.client.LookupEvents(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("lookup %s events (page %d): %w", eventName, pages+1, err)
		}
		pages++

		for _, ev := range out.Events {
			rec, err := toRecord(ev)
			if err != nil {
				f.logger.LogDroppedRecord(ctx, string(kind), rec.EventID, err)
				f.metrics.RecordDroppedRecord(ctx, string(kind))
				continue
			}
			records = append(records, rec)
		}

		token = out.NextToken
		if aws.ToString(token) == "" {
			break
		}
	}

	f.logger.WithContext(ctx).Debug().
		Str("event_name", eventName).
		Int("pages", pages).
		Int("records", len(records)).
		Msg("audit lookup complete")
	return records, nil
}

// FindCreationEvents returns the records in window that m accepts as
// successful creations, in source order.
func (f *Finder) FindCreationEvents(ctx context.Context, window resource.TimeWindow, m Matcher) ([]Record, error) {
	ctx, span := f.tracer.Start(ctx, "audit.find_creation_events", trace.WithAttributes(
		attribute.String("resource.kind", string(m.Kind())),
		attribute.String("event.name", m.EventName()),
	))
	defer span.End()

	candidates, err := f.Lookup(ctx, window, m.EventName(), m.Kind())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	matched := make([]Record, 0, len(candidates))
	for _, rec := range candidates {
		if rec.Payload.EventName() != m.EventName() || !m.IsCreation(rec.Payload) {
			continue
		}
		matched = append(matched, rec)
	}

	span.SetAttributes(
		attribute.Int("audit.candidates", len(candidates)),
		attribute.Int("audit.matched", len(matched)),
	)
	return matched, nil
}

func toRecord(ev types.Event) (Record, error) {
	rec := Record{
		EventID:   aws.ToString(ev.EventId),
		EventName: aws.ToString(ev.EventName),
		EventTime: aws.ToTime(ev.EventTime),
	}

	p, err := ParsePayload(aws.ToString(ev.CloudTrailEvent))
	if err != nil {
		return rec, err
	}
	rec.Payload = p

	if rec.EventID == "" {
		rec.EventID = p.String("eventID")
	}
	if rec.EventName == "" {
		rec.EventName = p.EventName()
	}
	if rec.EventTime.IsZero() {
		if ts := p.String("eventTime"); ts != "" {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return rec, fmt.Errorf("%w: eventTime %q: %w", resource.ErrMalformedPayload, ts, err)
			}
			rec.EventTime = t
		}
	}
	if rec.EventTime.IsZero() {
		return rec, fmt.Errorf("%w: event has no timestamp", resource.ErrMalformedPayload)
	}
	return rec, nil
}
