package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// notifyDelay holds the task back long enough for a double submission to
// land, so the worker's dedup pass sees both copies.
const notifyDelay = 5 * time.Second

type Client struct {
	client *asynq.Client
	queue  string
}

type LeadNotificationScheduler interface {
	EnqueueLeadNotification(ctx context.Context, payload LeadNotifyPayload) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueLeadNotification schedules one notification per stored event. The
// task id is derived from the event id so a re-published event is not sent twice.
func (c *Client) EnqueueLeadNotification(ctx context.Context, payload LeadNotifyPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewLeadNotifyTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(TaskLeadNotify+":"+payload.EventID),
		asynq.ProcessIn(notifyDelay),
		asynq.MaxRetry(5),
	)
	if err == asynq.ErrTaskIDConflict {
		return nil
	}
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
