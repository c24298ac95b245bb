package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/relaytrack/relaytrack/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskScanPoll polls the survey platform for new package scans.
	TaskScanPoll = "ingest:scan_poll"
	// TaskDevicePoll polls the survey platform for device binding forms.
	TaskDevicePoll = "ingest:device_poll"
	// TaskShipmentDelete runs the cascading shipment delete.
	TaskShipmentDelete = "shipments:delete"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NewScanPollTask constructs the package scan poll task.
func NewScanPollTask() *asynq.Task {
	return asynq.NewTask(TaskScanPoll, nil, asynq.Queue(QueueDefault))
}

// NewDevicePollTask constructs the device binding poll task.
func NewDevicePollTask() *asynq.Task {
	return asynq.NewTask(TaskDevicePoll, nil, asynq.Queue(QueueDefault))
}

// ShipmentDeletePayload names the shipment to cascade-delete.
type ShipmentDeletePayload struct {
	ShipmentID int64 `json:"shipment_id"`
}

// NewShipmentDeleteTask constructs a shipment delete task.
func NewShipmentDeleteTask(shipmentID int64) (*asynq.Task, error) {
	body, err := json.Marshal(ShipmentDeletePayload{ShipmentID: shipmentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskShipmentDelete, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// EnqueueShipmentDelete queues the cascading delete for a shipment.
func (c *Client) EnqueueShipmentDelete(ctx context.Context, shipmentID int64) error {
	task, err := NewShipmentDeleteTask(shipmentID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}
