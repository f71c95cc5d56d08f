package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gradewatch/gradewatch/internal/bot"
	apperrors "github.com/gradewatch/gradewatch/internal/errors"
	"github.com/gradewatch/gradewatch/internal/subscription"
	"github.com/gradewatch/gradewatch/internal/transcript"
	"github.com/gradewatch/gradewatch/pkg/metrics"
)

// maxConcurrentChecks bounds how many subscribers are checked at once so a
// large subscriber base cannot flood the upstream portal.
const maxConcurrentChecks = 8

// Notifier periodically re-fetches every subscriber's transcript and sends a
// message when the course count changed. Subscribers whose cookie stopped
// working are unsubscribed and told so.
type Notifier struct {
	subs       *subscription.Store
	client     bot.TranscriptClient
	messenger  bot.Messenger
	errHandler *apperrors.Handler
	log        *slog.Logger
	interval   time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	started bool
	sweepWG sync.WaitGroup
}

// New wires a notifier. interval is the time between sweeps.
func New(
	subs *subscription.Store,
	client bot.TranscriptClient,
	messenger bot.Messenger,
	errHandler *apperrors.Handler,
	interval time.Duration,
	log *slog.Logger,
) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		subs:       subs,
		client:     client,
		messenger:  messenger,
		errHandler: errHandler,
		log:        log,
		interval:   interval,
	}
}

// Start runs one sweep immediately and then sweeps on the configured
// interval. Calling Start twice is a no-op.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return nil
	}

	n.cron = cron.New()
	if _, err := n.cron.AddFunc(fmt.Sprintf("@every %s", n.interval), func() {
		n.runSweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	n.sweepWG.Add(1)
	go func() {
		defer n.sweepWG.Done()
		n.Sweep(ctx)
	}()

	n.cron.Start()
	n.started = true
	n.log.Info("notifier started", slog.Duration("interval", n.interval))

	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep to finish.
// Calling Stop on a stopped notifier is a no-op.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return
	}

	<-n.cron.Stop().Done()
	n.sweepWG.Wait()
	n.started = false
	n.log.Info("notifier stopped")
}

func (n *Notifier) runSweep(ctx context.Context) {
	n.sweepWG.Add(1)
	defer n.sweepWG.Done()
	n.Sweep(ctx)
}

// Sweep checks every current subscriber once and persists the store
// afterwards. It works on a snapshot: a subscriber modified concurrently by a
// chat command simply wins over the sweep's stale view.
func (n *Notifier) Sweep(ctx context.Context) {
	metrics.RecordSweep()
	snapshot := n.subs.Snapshot()
	n.log.Info("sweep started", slog.Int("subscribers", len(snapshot)))

	sem := make(chan struct{}, maxConcurrentChecks)
	var wg sync.WaitGroup
	for key, ciphertext := range snapshot {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(key string, ciphertext []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			n.checkOne(ctx, key, ciphertext)
		}(key, ciphertext)
	}
	wg.Wait()

	if err := n.subs.PersistAll(ctx); err != nil {
		n.log.Error("failed to persist subscriptions after sweep", slog.Any("error", err))
	}
	metrics.SetSubscribers(n.subs.Len())
	n.log.Info("sweep finished")
}

func (n *Notifier) checkOne(ctx context.Context, key string, ciphertext []byte) {
	sub, ok := n.subs.DecryptSubscriber(ciphertext)
	if !ok {
		// Unreadable record, drop it silently. There is no chat id to
		// notify anyway.
		n.subs.CompareAndRemove(key, ciphertext)
		metrics.RecordCheck(metrics.CheckUndecodable)
		n.log.Warn("dropped undecodable subscription", slog.String("key", key))
		return
	}

	raw, err := n.client.FetchTranscriptRaw(ctx, sub.Cookie)
	var result *transcript.Transcript
	if err == nil {
		result, err = transcript.Parse(raw)
	}

	if err != nil {
		// The stored cookie no longer works. Unsubscribe, but only tell
		// the user if this goroutine actually removed the record.
		userMsg, _ := n.errHandler.Handle(ctx, err)
		if n.subs.CompareAndRemove(key, ciphertext) {
			metrics.RecordCheck(metrics.CheckFailed)
			metrics.RecordNotification(metrics.NotifyUnsubscribed)
			n.send(sub.ChatID, bot.ReplyForcedUnsubFail+userMsg)
		} else {
			metrics.RecordCheck(metrics.CheckSuperseded)
		}
		return
	}

	if result.CourseCount == sub.LastQueryCourseCount {
		metrics.RecordCheck(metrics.CheckUnchanged)
		return
	}

	updated := &subscription.Subscriber{
		ChatID:               sub.ChatID,
		Cookie:               sub.Cookie,
		LastQueryCourseCount: result.CourseCount,
	}
	if !n.subs.CompareAndUpdate(key, ciphertext, updated) {
		// A chat command rewrote the record mid-sweep; its result is
		// fresher than ours.
		metrics.RecordCheck(metrics.CheckSuperseded)
		return
	}

	metrics.RecordCheck(metrics.CheckChanged)
	metrics.RecordNotification(metrics.NotifyChange)
	n.send(sub.ChatID, bot.ReplyChangeNotice+result.String())
}

func (n *Notifier) send(chatID int64, text string) {
	if err := n.messenger.Send(chatID, text); err != nil {
		n.log.Error("failed to send notification", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}
