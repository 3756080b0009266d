/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package sqs publishes change events to an SQS FIFO queue.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/events"
	"github.com/suparena/dirsync/identity"
)

// dedupNamespace seeds deterministic deduplication ids.
var dedupNamespace = uuid.MustParse("6f1c3b0e-4a6d-5b8e-9c2f-1d7e8a9b0c3d")

// API is the subset of the SQS client used by the publisher.
type API interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// Publisher implements events.Emitter on a FIFO queue.
type Publisher struct {
	client   API
	queueURL string
	logger   *zap.Logger
}

// New returns a Publisher sending to queueURL.
func New(client API, queueURL string, logger *zap.Logger) (*Publisher, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("queue url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, queueURL: queueURL, logger: logger}, nil
}

// NewClient builds an SQS client from an AWS configuration.
func NewClient(cfg aws.Config) *awssqs.Client {
	return awssqs.NewFromConfig(cfg)
}

// MessageGroupID converts an ordering group to a valid SQS message group id.
func MessageGroupID(orderingGroup string) string {
	return strings.ReplaceAll(orderingGroup, " ", "_")
}

// Publish sends one message. Identical bodies share a deduplication id, so
// a retried publish inside the deduplication window is delivered once.
func (p *Publisher) Publish(ctx context.Context, orderingGroup string, eventType identity.EventType, detail any) error {
	if err := events.Validate(orderingGroup, eventType, detail); err != nil {
		return err
	}

	body, err := json.Marshal(events.Envelope{
		EventGroupID: orderingGroup,
		EventType:    eventType,
		Detail:       detail,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	out, err := p.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:               aws.String(p.queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(MessageGroupID(orderingGroup)),
		MessageDeduplicationId: aws.String(uuid.NewSHA1(dedupNamespace, body).String()),
	})
	if err != nil {
		return fmt.Errorf("send message to %s: %w", p.queueURL, err)
	}

	p.logger.Debug("event published",
		zap.String("event_group_id", orderingGroup),
		zap.String("event_type", string(eventType)),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
