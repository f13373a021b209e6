package app

import (
	"context"
	"log"
	"time"

	"audience-quiz-service/internal/domain"
)

const (
	scoreWriteTimeout  = 5 * time.Second
	retryQueueCapacity = 1024
	retryBaseDelay     = 250 * time.Millisecond
	retryMaxDelay      = 30 * time.Second
)

// ScoreWriter persists accepted answers: an append-only audit event plus the
// idempotent per-slide ledger upsert. A failed write must never drop a score,
// so failures are queued and retried in the background with backoff while the
// live round carries on.
type ScoreWriter struct {
	ledger ScoreLedger
	log    AnswerLog

	queue chan domain.AnswerEvent
	stop  chan struct{}
	done  chan struct{}
}

func NewScoreWriter(ledger ScoreLedger, answerLog AnswerLog) *ScoreWriter {
	w := &ScoreWriter{
		ledger: ledger,
		log:    answerLog,
		queue:  make(chan domain.AnswerEvent, retryQueueCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Record writes the event synchronously; on failure it queues the event for
// retry and reports the error so the caller can log it as an operational
// fault. The returned error never indicates a lost score.
func (w *ScoreWriter) Record(ctx context.Context, ev domain.AnswerEvent) error {
	if err := w.write(ctx, ev); err != nil {
		// A full queue blocks the submission path; backpressure is
		// preferable to silent data loss.
		select {
		case w.queue <- ev:
		case <-w.stop:
			log.Printf("score writer stopped with unwritten score: participant %s slide %s",
				ev.ParticipantID, ev.SlideID)
		}
		return err
	}
	return nil
}

// Close stops the retry worker. Queued events that have not yet been written
// are logged so an operator can replay them from the answer log.
func (w *ScoreWriter) Close() {
	close(w.stop)
	<-w.done
}

func (w *ScoreWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			w.drainQueue()
			return
		case ev := <-w.queue:
			w.retryUntilWritten(ev)
		}
	}
}

func (w *ScoreWriter) retryUntilWritten(ev domain.AnswerEvent) {
	delay := retryBaseDelay
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), scoreWriteTimeout)
		err := w.write(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		log.Printf("score write retry %d failed for participant %s slide %s: %v",
			attempt, ev.ParticipantID, ev.SlideID, err)

		select {
		case <-w.stop:
			log.Printf("score writer stopping with unwritten score: participant %s slide %s",
				ev.ParticipantID, ev.SlideID)
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

func (w *ScoreWriter) drainQueue() {
	for {
		select {
		case ev := <-w.queue:
			log.Printf("score writer stopping with queued score: participant %s slide %s",
				ev.ParticipantID, ev.SlideID)
		default:
			return
		}
	}
}

// write runs the ledger upsert before the audit append: the upsert is
// idempotent, so a retry after a failed append cannot double-count the score
// or duplicate the audit row.
func (w *ScoreWriter) write(ctx context.Context, ev domain.AnswerEvent) error {
	if _, err := w.ledger.RecordSlideScore(ctx, ev); err != nil {
		return err
	}
	if err := w.log.Append(ctx, ev); err != nil {
		return err
	}
	return nil
}
