// Package messaging defines the MQ messages the feeds service emits and the
// producers that publish them.
package messaging

import (
	"context"
	"encoding/json"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otLog "github.com/opentracing/opentracing-go/log"
)

const (
	FeedRefreshed MessageType = iota
	FeedCreated
)

// MessageType defines types of messages
//go:generate stringer -type=MessageType
type MessageType uint

// MessageEnvelope defines shared fields for MQ message with message type as action key and Msg as actual message body content
type MessageEnvelope struct {
	Type     MessageType       `json:"type,int"`
	Metadata map[string]string `json:"metadata,string"`
	Msg      interface{}
}

// FeedRefreshedMsg announces that a refresh committed new or changed items
// for one feed.
type FeedRefreshedMsg struct {
	FeedID int32 `json:"feed_id"`
}

// FeedCreatedMsg announces a newly bootstrapped feed.
type FeedCreatedMsg struct {
	FeedID int32  `json:"feed_id"`
	Link   string `json:"link"`
}

// NewFeedRefreshedMessage returns message announcing refreshed feed content
func NewFeedRefreshedMessage(feedID int32) *MessageEnvelope {
	return &MessageEnvelope{
		Type: FeedRefreshed,
		Msg:  FeedRefreshedMsg{FeedID: feedID},
	}
}

// NewFeedCreatedMessage returns message announcing feed creation
func NewFeedCreatedMessage(feedID int32, link string) *MessageEnvelope {
	return &MessageEnvelope{
		Type: FeedCreated,
		Msg:  FeedCreatedMsg{FeedID: feedID, Link: link},
	}
}

type MessageProducer interface {
	Publish([]byte) error
}

// NewFeedsEventProducer creates producer of feed lifecycle events
func NewFeedsEventProducer(producer MessageProducer, tracer opentracing.Tracer) *feedsEventProducer {
	return &feedsEventProducer{producer, tracer}
}

type feedsEventProducer struct {
	producer MessageProducer
	tracer   opentracing.Tracer
}

func (p *feedsEventProducer) setupTracingSpan(ctx context.Context, name string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, p.tracer, name)
	ext.Component.Set(span, "feedsEventProducer")
	return span, ctx
}

func (p *feedsEventProducer) publish(ctx context.Context, span opentracing.Span, message *MessageEnvelope) error {
	carrier := opentracing.TextMapCarrier{}
	if err := span.Tracer().Inject(span.Context(), opentracing.TextMap, carrier); err != nil {
		return err
	}
	message.Metadata = carrier
	msgbytes, err := json.Marshal(message)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	if err := p.producer.Publish(msgbytes); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	return nil
}

// SendFeedRefreshed publishes the content change event for one feed
func (p *feedsEventProducer) SendFeedRefreshed(ctx context.Context, feedID int32) error {
	span, ctx := p.setupTracingSpan(ctx, "send-feed-refreshed")
	defer span.Finish()
	span.SetTag("feed.ID", feedID)
	if err := p.publish(ctx, span, NewFeedRefreshedMessage(feedID)); err != nil {
		return err
	}
	span.LogKV("event", "sent feed refreshed message")
	return nil
}

// SendFeedCreated publishes the creation event for one feed
func (p *feedsEventProducer) SendFeedCreated(ctx context.Context, feedID int32, link string) error {
	span, ctx := p.setupTracingSpan(ctx, "send-feed-created")
	defer span.Finish()
	span.SetTag("feed.ID", feedID)
	if err := p.publish(ctx, span, NewFeedCreatedMessage(feedID, link)); err != nil {
		return err
	}
	span.LogKV("event", "sent feed created message")
	return nil
}
