package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"allowance/internal/logger"
	"allowance/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey   = "notifications"
	failedKey  = "notifications:failed"
	maxTries   = 3
	retryDelay = 5 * time.Second
	popTimeout = 2 * time.Second
)

// Job is one queued email.
type Job struct {
	Type    string    `json:"type"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Sender delivers a job synchronously.
type Sender interface {
	Send(job Job) error
}

type SMTPConfig struct {
	From     string
	FromName string
	Host     string
	Port     string
	User     string
	Pass     string
}

type smtpSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) Sender {
	return &smtpSender{cfg: cfg}
}

func (s *smtpSender) Send(job Job) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.FromName, s.cfg.From)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.cfg.User != "" && s.cfg.Pass != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	addr := s.cfg.Host + ":" + s.cfg.Port
	return smtp.SendMail(addr, auth, s.cfg.From, []string{job.To}, []byte(message))
}

// Queue buffers notification emails in a Redis list. Enqueue never sends;
// a single Start loop drains the list.
type Queue struct {
	redis  *redis.Client
	sender Sender
	delay  time.Duration
}

func NewQueue(rdb *redis.Client, sender Sender) *Queue {
	return &Queue{redis: rdb, sender: sender, delay: retryDelay}
}

// New connects to Redis at redisAddr and delivers over SMTP.
func New(redisAddr string, cfg SMTPConfig) *Queue {
	return NewQueue(redis.NewClient(&redis.Options{Addr: redisAddr}), NewSMTPSender(cfg))
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	job.Tries = 0
	if job.Created.IsZero() {
		job.Created = time.Now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := q.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		metrics.RecordNotification(job.Type, "enqueue_failed")
		return fmt.Errorf("queue notification: %w", err)
	}

	metrics.RecordNotification(job.Type, "queued")
	logger.Debug("notification queued", "type", job.Type, "to", job.To)
	return nil
}

func (q *Queue) Start(ctx context.Context) {
	logger.Info("notification worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("notification worker stopped")
			return
		default:
			q.processNext(ctx)
		}
	}
}

// processNext handles at most one job and reports whether it popped one.
func (q *Queue) processNext(ctx context.Context) bool {
	result, err := q.redis.BRPop(ctx, popTimeout, queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Warn("notification pop failed", "error", err.Error())
			sleep(ctx, time.Second)
		}
		return false
	}
	defer q.reportLength(ctx)

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("bad notification payload: %v", err)
		return true
	}

	job.Tries++
	if err := q.sender.Send(job); err != nil {
		logger.Warn("notification send failed", "type", job.Type, "to", job.To, "attempt", job.Tries, "error", err.Error())

		if job.Tries < maxTries {
			metrics.RecordNotification(job.Type, "retry")
			sleep(ctx, q.delay)
			data, _ := json.Marshal(job)
			if err := q.redis.LPush(context.Background(), queueKey, string(data)).Err(); err != nil {
				logger.WithError(err).Error("notification requeue failed")
			}
		} else {
			metrics.RecordNotification(job.Type, "failed")
			q.saveFailed(job, err)
		}
		return true
	}

	metrics.RecordNotification(job.Type, "sent")
	logger.Info("notification sent", "type", job.Type, "to", job.To)
	return true
}

func (q *Queue) saveFailed(job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	if err := q.redis.LPush(context.Background(), failedKey, string(data)).Err(); err != nil {
		logger.WithError(err).Error("failed to record dead notification")
		return
	}
	logger.Errorf("notification to %s moved to failed queue after %d attempts", job.To, job.Tries)
}

func (q *Queue) reportLength(ctx context.Context) {
	if n, err := q.QueueLength(ctx); err == nil {
		metrics.SetNotificationQueueLength(n)
	}
}

func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, queueKey).Result()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	return q.redis.Close()
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
