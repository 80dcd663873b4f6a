package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"allowance/internal/metrics"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	err  error
	sent []Job
}

func (f *fakeSender) Send(job Job) error {
	f.sent = append(f.sent, job)
	return f.err
}

func newTestQueue(rdb *redis.Client, sender Sender) *Queue {
	q := NewQueue(rdb, sender)
	q.delay = 0
	return q
}

func payload(t *testing.T, job Job) string {
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return string(data)
}

func TestEnqueue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush(queueKey, `"type":"deposit_receipt"`).SetVal(1)

	before := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(TypeDepositReceipt, "queued"))

	q := newTestQueue(db, &fakeSender{})
	err := q.Enqueue(context.Background(), Job{Type: TypeDepositReceipt, To: "ada@example.com", Subject: "Hi"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(TypeDepositReceipt, "queued")))
}

func TestEnqueueError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush(queueKey, `.*`).SetErr(assert.AnError)

	q := newTestQueue(db, &fakeSender{})
	err := q.Enqueue(context.Background(), Job{Type: TypeLimitAlert, To: "ada@example.com"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_Sends(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job := Job{Type: TypeDepositReceipt, To: "ada@example.com", Subject: "Hi", Created: time.Now()}

	mock.ExpectBRPop(popTimeout, queueKey).SetVal([]string{queueKey, payload(t, job)})
	mock.ExpectLLen(queueKey).SetVal(0)

	sender := &fakeSender{}
	q := newTestQueue(db, sender)

	assert.True(t, q.processNext(context.Background()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 1, sender.sent[0].Tries)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.NotificationQueueLength))
}

func TestProcessNext_RequeuesOnFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job := Job{Type: TypeLimitAlert, To: "ada@example.com", Tries: 1}

	mock.ExpectBRPop(popTimeout, queueKey).SetVal([]string{queueKey, payload(t, job)})
	mock.Regexp().ExpectLPush(queueKey, `"tries":2`).SetVal(1)
	mock.ExpectLLen(queueKey).SetVal(1)

	q := newTestQueue(db, &fakeSender{err: errors.New("smtp down")})

	assert.True(t, q.processNext(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_GivesUpAfterMaxTries(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job := Job{Type: TypeLimitAlert, To: "ada@example.com", Tries: maxTries - 1}

	before := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(TypeLimitAlert, "failed"))

	mock.ExpectBRPop(popTimeout, queueKey).SetVal([]string{queueKey, payload(t, job)})
	mock.Regexp().ExpectLPush(failedKey, `smtp down`).SetVal(1)
	mock.ExpectLLen(queueKey).SetVal(0)

	q := newTestQueue(db, &fakeSender{err: errors.New("smtp down")})

	assert.True(t, q.processNext(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(TypeLimitAlert, "failed")))
}

func TestProcessNext_Empty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectBRPop(popTimeout, queueKey).RedisNil()

	sender := &fakeSender{}
	q := newTestQueue(db, sender)

	assert.False(t, q.processNext(context.Background()))
	assert.Empty(t, sender.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_BadPayload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectBRPop(popTimeout, queueKey).SetVal([]string{queueKey, "{not json"})
	mock.ExpectLLen(queueKey).SetVal(0)

	sender := &fakeSender{}
	q := newTestQueue(db, sender)

	assert.True(t, q.processNext(context.Background()))
	assert.Empty(t, sender.sent)
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectLLen(queueKey).SetVal(5)

	q := newTestQueue(db, &fakeSender{})

	length, err := q.QueueLength(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStart_StopsOnCancel(t *testing.T) {
	db, _ := redismock.NewClientMock()
	q := newTestQueue(db, &fakeSender{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		q.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
