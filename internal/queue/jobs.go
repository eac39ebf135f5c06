// Package queue defines the asynq task types shared by the API and worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/afesign/internal/notify"
)

const (
	// SendNotificationTask delivers one email.
	SendNotificationTask = "notification:send"
	// FinalizeTask regenerates a final PDF whose inline generation failed.
	FinalizeTask = "afe:finalize"
)

// FinalizePayload names the document to finalize.
type FinalizePayload struct {
	AFEID string `json:"afe_id"`
}

// Client enqueues tasks. It satisfies notify.Sink and the workflow's
// finalize scheduler.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Send enqueues a notification.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(SendNotificationTask, data)
	if _, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Timeout(time.Minute)); err != nil {
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	return nil
}

// ScheduleFinalize enqueues a final PDF regeneration. Duplicate requests for
// the same document within the uniqueness window collapse into one task.
func (c *Client) ScheduleFinalize(ctx context.Context, afeID string) error {
	data, err := json.Marshal(FinalizePayload{AFEID: afeID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(FinalizeTask, data)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(10),
		asynq.ProcessIn(5*time.Second),
		asynq.Unique(10*time.Minute))
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue finalize task: %w", err)
	}
	return nil
}

// DecodeNotification parses a notification task payload.
func DecodeNotification(task *asynq.Task) (notify.Message, error) {
	var msg notify.Message
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return msg, fmt.Errorf("decode payload: %w", err)
	}
	return msg, nil
}

// DecodeFinalize parses a finalize task payload.
func DecodeFinalize(task *asynq.Task) (FinalizePayload, error) {
	var p FinalizePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.AFEID == "" {
		return p, fmt.Errorf("decode payload: missing afe id")
	}
	return p, nil
}
