// Package dispatch drives the transmission phase of a delivery run: a
// fixed pool of workers, each owning one SMTP session, draining a shared
// FIFO of recipients.
package dispatch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// RecordStore persists per-recipient outcomes and run lifecycle state.
type RecordStore interface {
	MarkRecordSent(ctx context.Context, recordID uuid.UUID, at time.Time) error
	MarkRecordFailed(ctx context.Context, recordID uuid.UUID, reason string) error
	CompleteRun(ctx context.Context, runID uuid.UUID, endedAt time.Time) error
	RunTerminated(ctx context.Context, runID uuid.UUID) (bool, error)
}

// Limiter is an optional cross-process pace gate checked before each
// transmission. A denied check carries the suggested wait.
type Limiter interface {
	Allow(ctx context.Context) (bool, time.Duration, error)
}

// Item pairs a delivery record with its recipient.
type Item struct {
	Record    *domain.DeliveryRecord
	Recipient *domain.Recipient
}

// RunJob is the transmission work for one delivery run. Build produces
// the personalized message for a recipient; it runs on worker goroutines
// and must be safe for concurrent use.
type RunJob struct {
	Run   *domain.DeliveryRun
	Items []Item
	Build func(r *domain.Recipient) (*Message, error)
}

// Pipeline executes run jobs against an SMTP relay.
type Pipeline struct {
	store           RecordStore
	factory         SessionFactory
	limiter         Limiter
	workers         int
	sendsPerSecond  int
	reconnectBudget int
	errorBudget     int
	monitorPoll     time.Duration
}

// NewPipeline builds a pipeline. The worker count is derived from the
// target send rate, one worker per two sends per second, capped so a slow
// relay cannot demand an unbounded pool.
func NewPipeline(store RecordStore, factory SessionFactory, limiter Limiter, sendsPerSecond, reconnectBudget, errorBudget int, monitorPoll time.Duration) *Pipeline {
	workers := sendsPerSecond / 2
	if workers < 1 {
		workers = 1
	}
	if workers > 32 {
		workers = 32
	}
	return &Pipeline{
		store:           store,
		factory:         factory,
		limiter:         limiter,
		workers:         workers,
		sendsPerSecond:  sendsPerSecond,
		reconnectBudget: reconnectBudget,
		errorBudget:     errorBudget,
		monitorPoll:     monitorPoll,
	}
}

// Run transmits the job and blocks until every item has been attempted,
// discarded by termination, or abandoned by budget exhaustion. Recipients
// whose items were discarded keep their unattempted records.
func (p *Pipeline) Run(ctx context.Context, job *RunJob) error {
	queue := newWorkQueue[Item]()
	for _, item := range job.Items {
		queue.Push(item)
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go p.monitor(monitorCtx, job.Run.ID, queue)

	var (
		wg    sync.WaitGroup
		alive atomic.Int64
	)
	alive.Store(int64(p.workers))
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer func() {
				// If every worker has aborted, nobody is left to take
				// the remaining items; drain so Join cannot block.
				if alive.Add(-1) == 0 {
					queue.DrainDiscard()
				}
			}()
			p.worker(ctx, id, job, queue)
		}(i)
	}

	queue.Join()
	// Close the queue so idle workers blocked in Pop can exit.
	queue.DrainDiscard()
	stopMonitor()
	wg.Wait()

	if err := p.store.CompleteRun(ctx, job.Run.ID, time.Now().UTC()); err != nil {
		return err
	}
	logger.Info("run transmission finished", "run_id", job.Run.ID)
	return nil
}

// monitor polls the persisted termination flag and drains the queue the
// moment it is set. In-flight sends finish; everything queued is dropped.
func (p *Pipeline) monitor(ctx context.Context, runID uuid.UUID, queue *workQueue[Item]) {
	ticker := time.NewTicker(p.monitorPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			terminated, err := p.store.RunTerminated(ctx, runID)
			if err != nil {
				logger.Warn("termination poll failed", "run_id", runID, "error", err.Error())
				continue
			}
			if terminated {
				dropped := queue.DrainDiscard()
				logger.Info("run terminated", "run_id", runID, "dropped", len(dropped))
				return
			}
		}
	}
}

type sendOutcome int

const (
	outcomeOK sendOutcome = iota
	outcomeRateLimited
	outcomeDisconnect
	outcomeTerminal
)

// worker drains the queue over a private SMTP session. Budget exhaustion
// aborts this worker only; the remaining workers keep draining the run.
func (p *Pipeline) worker(ctx context.Context, id int, job *RunJob, queue *workQueue[Item]) {
	var sess Session
	reconnects := 0
	hardErrors := 0
	pace := p.paceInterval()

	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			queue.DrainDiscard()
			return
		}

		item, ok := queue.Pop()
		if !ok {
			return
		}

		if sess == nil {
			s, err := p.factory.Dial()
			if err != nil {
				reconnects++
				logger.Warn("smtp dial failed", "worker", id, "attempt", reconnects, "error", err.Error())
				if reconnects > p.reconnectBudget {
					// The held item goes back for another worker; this
					// worker is done.
					queue.Push(item)
					queue.Done()
					logger.Error("reconnect budget exhausted, worker aborting", "worker", id, "run_id", job.Run.ID)
					return
				}
				queue.Push(item)
				queue.Done()
				time.Sleep(backoff(reconnects))
				continue
			}
			sess = s
		}

		p.waitForPace(ctx)

		msg, err := job.Build(item.Recipient)
		if err != nil {
			hardErrors++
			p.fail(ctx, item, err.Error())
			queue.Done()
			continue
		}

		err = sess.Send(msg.FromAddress, msg.To, msg.Bytes())
		switch classifySendError(err) {
		case outcomeOK:
			if mErr := p.store.MarkRecordSent(ctx, item.Record.ID, time.Now().UTC()); mErr != nil {
				logger.Error("mark sent failed", "record_id", item.Record.ID, "error", mErr.Error())
			}
			queue.Done()
			time.Sleep(pace)

		case outcomeRateLimited:
			logger.Warn("relay rate limited", "worker", id, "error", err.Error())
			queue.Push(item)
			queue.Done()
			time.Sleep(backoff(1))

		case outcomeDisconnect:
			logger.Warn("smtp session lost", "worker", id, "error", err.Error())
			sess.Close()
			sess = nil
			reconnects++
			queue.Push(item)
			queue.Done()
			if reconnects > p.reconnectBudget {
				logger.Error("reconnect budget exhausted, worker aborting", "worker", id, "run_id", job.Run.ID)
				return
			}

		case outcomeTerminal:
			hardErrors++
			p.fail(ctx, item, err.Error())
			queue.Done()
		}

		if hardErrors > p.errorBudget {
			dropped := queue.DrainDiscard()
			logger.Error("error budget exhausted, worker aborting", "worker", id,
				"run_id", job.Run.ID, "hard_errors", hardErrors, "dropped", len(dropped))
			return
		}
	}
}

func (p *Pipeline) fail(ctx context.Context, item Item, reason string) {
	logger.Warn("delivery failed", "record_id", item.Record.ID, "recipient", logger.RedactEmail(item.Recipient.Email), "error", reason)
	if err := p.store.MarkRecordFailed(ctx, item.Record.ID, reason); err != nil {
		logger.Error("mark failed failed", "record_id", item.Record.ID, "error", err.Error())
	}
}

// paceInterval spreads the target rate across the pool.
func (p *Pipeline) paceInterval() time.Duration {
	if p.sendsPerSecond <= 0 {
		return 0
	}
	return time.Duration(p.workers) * time.Second / time.Duration(p.sendsPerSecond)
}

// waitForPace consults the shared limiter, sleeping out denials until a
// slot opens or the context ends.
func (p *Pipeline) waitForPace(ctx context.Context) {
	if p.limiter == nil {
		return
	}
	for {
		allowed, wait, err := p.limiter.Allow(ctx)
		if err != nil {
			// A broken limiter must not stall transmission.
			logger.Warn("pace limiter unavailable", "error", err.Error())
			return
		}
		if allowed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// classifySendError maps transmission failures to recovery strategies.
// 4xx throttle replies requeue the recipient, connection losses trigger a
// redial, everything else is a terminal per-recipient failure.
func classifySendError(err error) sendOutcome {
	if err == nil {
		return outcomeOK
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 421, 450, 452:
			return outcomeRateLimited
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate") || strings.Contains(msg, "too many") || strings.Contains(msg, "throttl") {
		return outcomeRateLimited
	}

	var netErr net.Error
	if errors.Is(err, io.EOF) || errors.As(err, &netErr) ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "use of closed") {
		return outcomeDisconnect
	}

	return outcomeTerminal
}

// backoff is exponential with jitter, capped at 30 seconds.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	d := time.Second << uint(attempt-1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}
