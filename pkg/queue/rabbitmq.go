// Package queue provides the AMQP transport the Job Registry's HTTP
// surface uses to hand a freshly created job off to a worker process,
// using three pipeline-specific queues: batch-analyze, assemble, and
// conform.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"creative-studio-server/config"
	"creative-studio-server/pkg/logger"
)

type RabbitMQClient struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queues     map[string]amqp.Queue
}

// Task is the AMQP message body dispatched to a pipeline worker. Payload
// carries operation-specific fields (job_id for pipeline.assemble, or a
// timeline/output path pair for pipeline.conform).
type Task struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Retry     int                    `json:"retry"`
	MaxRetry  int                    `json:"max_retry"`
	CreatedAt time.Time              `json:"created_at"`
}

type TaskHandler func(task *Task) error

var Queue *RabbitMQClient

// Pipeline queue and task-type names.
const (
	QueueAnalyzeBatch = "pipeline.analyze_batch"
	QueueAssemble     = "pipeline.assemble"
	QueueConform      = "pipeline.conform"

	TaskTypeAssembleJob = "assemble_job"
	TaskTypeConformJob  = "conform_job"
)

func InitRabbitMQ(cfg *config.Config) error {
	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	Queue = &RabbitMQClient{
		connection: conn,
		channel:    ch,
		queues:     make(map[string]amqp.Queue),
	}

	if err := Queue.declareQueues(); err != nil {
		return fmt.Errorf("failed to declare queues: %w", err)
	}

	logger.Info("RabbitMQ connected successfully")
	return nil
}

func (r *RabbitMQClient) declareQueues() error {
	queueNames := []string{QueueAnalyzeBatch, QueueAssemble, QueueConform}

	for _, name := range queueNames {
		queue, err := r.channel.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			amqp.Table{
				"x-message-ttl":             int32(30 * 60 * 1000), // 30 minutes
				"x-dead-letter-exchange":    "dlx",
				"x-dead-letter-routing-key": "dlx." + name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		r.queues[name] = queue
	}

	err := r.channel.ExchangeDeclare("dlx", "direct", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	return nil
}

func (r *RabbitMQClient) PublishTask(queueName string, task *Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = r.channel.Publish(
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task to queue %s: %w", queueName, err)
	}

	logger.Infof("Task published to queue %s: %s", queueName, task.ID)
	return nil
}

func (r *RabbitMQClient) ConsumeTask(queueName string, handler TaskHandler, concurrency int) error {
	err := r.channel.Qos(concurrency, 0, false)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for i := 0; i < concurrency; i++ {
		go r.worker(msgs, handler, queueName)
	}

	logger.Infof("Started %d workers for queue %s", concurrency, queueName)
	return nil
}

func (r *RabbitMQClient) worker(msgs <-chan amqp.Delivery, handler TaskHandler, queueName string) {
	for msg := range msgs {
		var task Task
		if err := json.Unmarshal(msg.Body, &task); err != nil {
			logger.Errorf("Failed to unmarshal task from queue %s: %v", queueName, err)
			msg.Nack(false, false)
			continue
		}

		logger.Infof("Processing task %s from queue %s", task.ID, queueName)

		if err := handler(&task); err != nil {
			logger.Errorf("Task %s failed: %v", task.ID, err)

			if task.Retry < task.MaxRetry {
				task.Retry++
				if retryErr := r.PublishTask(queueName, &task); retryErr != nil {
					logger.Errorf("Failed to retry task %s: %v", task.ID, retryErr)
				} else {
					logger.Infof("Task %s queued for retry (%d/%d)", task.ID, task.Retry, task.MaxRetry)
				}
			}
			msg.Nack(false, false)
		} else {
			logger.Infof("Task %s completed successfully", task.ID)
			msg.Ack(false)
		}
	}
}

// NewTask builds a Task with sane retry defaults.
func NewTask(taskType, id string, payload map[string]interface{}) *Task {
	return &Task{
		ID:        id,
		Type:      taskType,
		Payload:   payload,
		Retry:     0,
		MaxRetry:  3,
		CreatedAt: time.Now(),
	}
}

// PublishAssembleJob hands a freshly created job over to a background
// worker, matching the HTTP layer's thin "create, don't run inline"
// contract.
func PublishAssembleJob(jobID string) error {
	task := NewTask(TaskTypeAssembleJob, jobID, map[string]interface{}{"job_id": jobID})
	return Queue.PublishTask(QueueAssemble, task)
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}
