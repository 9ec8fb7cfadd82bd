package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/store/memory"
	"github.com/felicity-events/backend/pkg/queue"
)

type flakySender struct {
	mu    sync.Mutex
	fails int
	sent  []string
}

func (s *flakySender) Send(_ context.Context, to, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("smtp: 451 try again later")
	}
	s.sent = append(s.sent, to)
	return nil
}

// listQueue is an in-process JobQueue with the same retry rules as the Redis queue.
type listQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	dlq  []*queue.Job
}

func (q *listQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, ctx.Err()
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, nil
}

func (q *listQueue) Retry(_ context.Context, job *queue.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	if job.Attempt >= queue.MaxRetries {
		q.dlq = append(q.dlq, job)
		return true, nil
	}
	q.jobs = append(q.jobs, job)
	return false, nil
}

func (q *listQueue) deadLettered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

func newJob(t *testing.T, eventID uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewNotificationJob(queue.NotificationPayload{
		Kind: models.NotificationRegistrationConfirmed, EventID: &eventID,
		Recipient: "ada@example.com", Subject: "Registration confirmed", BodyHTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	return job
}

func runUntil(t *testing.T, p *NotificationProcessor, q *listQueue, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, q)
		close(done)
	}()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
	cancel()
	<-done
}

func logCount(st *memory.Store, eventID uuid.UUID) func() bool {
	return func() bool {
		logs, _ := st.ListNotificationLogs(context.Background(), eventID)
		return len(logs) > 0
	}
}

func TestRunRetriesThenSends(t *testing.T) {
	st := memory.New()
	sender := &flakySender{fails: 1}
	p := NewNotificationProcessor(sender, st, nil)
	p.backoff = time.Millisecond
	eventID := uuid.New()
	q := &listQueue{jobs: []*queue.Job{newJob(t, eventID)}}

	runUntil(t, p, q, logCount(st, eventID))

	assert.Equal(t, []string{"ada@example.com"}, sender.sent)
	logs, err := st.ListNotificationLogs(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.NotificationStatusSent, logs[0].Status)
	assert.Equal(t, 2, logs[0].Attempts)
	assert.NotNil(t, logs[0].SentAt)
}

func TestRunDeadLettersAfterMaxRetries(t *testing.T) {
	st := memory.New()
	p := NewNotificationProcessor(&flakySender{fails: 100}, st, nil)
	p.backoff = time.Millisecond
	eventID := uuid.New()
	q := &listQueue{jobs: []*queue.Job{newJob(t, eventID)}}

	runUntil(t, p, q, func() bool { return q.deadLettered() == 1 })

	assert.Equal(t, 1, q.deadLettered())
	logs, err := st.ListNotificationLogs(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, logs, 1, "only the final failure is logged")
	assert.Equal(t, models.NotificationStatusFailed, logs[0].Status)
	assert.Equal(t, queue.MaxRetries, logs[0].Attempts)
	assert.Contains(t, logs[0].ErrorMessage, "451")
}

func TestHandleDropsMalformedJob(t *testing.T) {
	p := NewNotificationProcessor(&flakySender{}, memory.New(), nil)
	err := p.Handle(context.Background(), &queue.Job{ID: "x", Type: "digest"})
	assert.NoError(t, err)
}
