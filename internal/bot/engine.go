package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gradewatch/gradewatch/internal/dialog"
	apperrors "github.com/gradewatch/gradewatch/internal/errors"
	"github.com/gradewatch/gradewatch/internal/subscription"
	"github.com/gradewatch/gradewatch/internal/transcript"
	"github.com/gradewatch/gradewatch/internal/zju"
	"github.com/gradewatch/gradewatch/pkg/metrics"
)

// Messenger sends a text message to a chat. Delivery failures are logged by
// the engine, never retried.
type Messenger interface {
	Send(chatID int64, text string) error
}

// TranscriptClient is the slice of the identity client the engine needs.
type TranscriptClient interface {
	Login(ctx context.Context, username, password string) (string, error)
	FetchTranscriptRaw(ctx context.Context, cookie string) (string, error)
}

// Engine drives the per-chat conversation state machine. One invocation per
// inbound message; messages for the same chat are serialized so a stale
// dialog-state read can never overwrite a newer save.
type Engine struct {
	dialogs    dialog.Store
	subs       *subscription.Store
	client     TranscriptClient
	messenger  Messenger
	errHandler *apperrors.Handler
	log        *slog.Logger

	locksMu   sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

// NewEngine wires the conversation engine.
func NewEngine(
	dialogs dialog.Store,
	subs *subscription.Store,
	client TranscriptClient,
	messenger Messenger,
	errHandler *apperrors.Handler,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		dialogs:    dialogs,
		subs:       subs,
		client:     client,
		messenger:  messenger,
		errHandler: errHandler,
		log:        log,
		chatLocks:  make(map[int64]*sync.Mutex),
	}
}

// HandleMessage processes one inbound message for a chat.
func (e *Engine) HandleMessage(ctx context.Context, chatID int64, text string) error {
	unlock := e.lockChat(chatID)
	defer unlock()

	e.log.Info("received message", slog.Int64("chat_id", chatID))

	user, err := e.dialogs.Get(ctx, chatID)
	if err != nil {
		return err
	}

	inFlow := user.CmdType == dialog.CmdQuery || user.CmdType == dialog.CmdSubscribe

	switch {
	case user.CmdType == dialog.CmdNone && text == CommandOnce:
		return e.handleOnce(ctx, chatID, user)

	case user.CmdType == dialog.CmdNone && text == CommandSubscribe:
		e.send(chatID, ReplyVerifyMethodSelect)
		user.CmdType = dialog.CmdSubscribe
		user.RcvMsgType = dialog.RcvNormal
		return e.dialogs.Save(ctx, chatID, user)

	case user.CmdType == dialog.CmdNone && text == CommandUnsubscribe:
		e.send(chatID, ReplyUnsubscribing)
		if e.subs.Remove(chatID) {
			e.send(chatID, ReplyUnsubscribed)
		} else {
			e.send(chatID, ReplyNoSubscription)
		}
		metrics.SetSubscribers(e.subs.Len())
		return e.dialogs.Remove(ctx, chatID)

	case inFlow && user.RcvMsgType == dialog.RcvNormal && text == CommandZjuam:
		e.send(chatID, ReplyEnterUsername)
		user.RcvMsgType = dialog.RcvUsername
		return e.dialogs.Save(ctx, chatID, user)

	case inFlow && user.RcvMsgType == dialog.RcvNormal && text == CommandCookie:
		e.send(chatID, ReplyEnterCookie)
		user.RcvMsgType = dialog.RcvCookie
		return e.dialogs.Save(ctx, chatID, user)

	case inFlow && user.RcvMsgType == dialog.RcvUsername:
		e.send(chatID, ReplyEnterPassword)
		user.CachedUsername = text
		user.RcvMsgType = dialog.RcvPassword
		return e.dialogs.Save(ctx, chatID, user)

	case inFlow && (user.RcvMsgType == dialog.RcvPassword || user.RcvMsgType == dialog.RcvCookie):
		return e.handleTerminal(ctx, chatID, user, text)

	default:
		e.send(chatID, ReplyUsage)
		return e.dialogs.Remove(ctx, chatID)
	}
}

// handleOnce serves /once. With an existing subscription the stored cookie is
// reused and the record refreshed; otherwise a query flow starts.
func (e *Engine) handleOnce(ctx context.Context, chatID int64, user *dialog.User) error {
	if !e.subs.Exists(chatID) {
		e.send(chatID, ReplyVerifyMethodSelect)
		user.CmdType = dialog.CmdQuery
		user.RcvMsgType = dialog.RcvNormal
		return e.dialogs.Save(ctx, chatID, user)
	}

	e.send(chatID, ReplySubscribeQuerying)

	sub, ok := e.subs.Get(chatID)
	if !ok {
		// Record unusable: drop it and tell the user.
		e.subs.Remove(chatID)
		metrics.SetSubscribers(e.subs.Len())
		userMsg, _ := e.errHandler.Handle(ctx, apperrors.NewCryptoError(nil))
		e.send(chatID, ReplyQueryFail+userMsg)
		return e.dialogs.Remove(ctx, chatID)
	}

	result, err := e.queryTranscript(ctx, sub.Cookie)
	if err != nil {
		userMsg, _ := e.errHandler.Handle(ctx, err)
		e.send(chatID, ReplyQueryFail+userMsg)
		return e.dialogs.Remove(ctx, chatID)
	}

	e.send(chatID, ReplyQuerySuccess+result.String())

	sub.LastQueryCourseCount = result.CourseCount
	if err := e.subs.Add(chatID, sub); err != nil {
		e.log.Error("failed to refresh subscription", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}

	return e.dialogs.Remove(ctx, chatID)
}

// handleTerminal resolves the session cookie, fetches the transcript, and for
// a subscribe flow persists the subscription. Errors are rendered to the chat
// and the dialog state is cleared unconditionally.
func (e *Engine) handleTerminal(ctx context.Context, chatID int64, user *dialog.User, text string) error {
	e.send(chatID, ReplyQuerying)

	cookie, err := e.resolveCookie(ctx, user, text)
	if err == nil {
		var result *transcript.Transcript
		result, err = e.queryTranscript(ctx, cookie)
		if err == nil {
			e.send(chatID, ReplyQuerySuccess+result.String())

			if user.CmdType == dialog.CmdSubscribe {
				addErr := e.subs.Add(chatID, &subscription.Subscriber{
					ChatID:               chatID,
					Cookie:               cookie,
					LastQueryCourseCount: result.CourseCount,
				})
				if addErr != nil {
					e.log.Error("failed to persist subscription", slog.Int64("chat_id", chatID), slog.Any("error", addErr))
				} else {
					metrics.SetSubscribers(e.subs.Len())
					e.send(chatID, ReplySubscribeSuccess)
				}
			}
		}
	}

	if err != nil {
		userMsg, _ := e.errHandler.Handle(ctx, err)
		e.send(chatID, ReplyQueryFail+userMsg)
	}

	return e.dialogs.Remove(ctx, chatID)
}

func (e *Engine) resolveCookie(ctx context.Context, user *dialog.User, text string) (string, error) {
	if user.RcvMsgType == dialog.RcvCookie {
		return NormalizeCookie(text), nil
	}

	if user.CachedUsername == "" {
		return "", apperrors.NewStateError("cached username missing before password step", "用户名为空，可能是数据库故障")
	}

	cookie, err := e.client.Login(ctx, user.CachedUsername, text)
	if err != nil {
		return "", err
	}

	return NormalizeCookie(cookie), nil
}

func (e *Engine) queryTranscript(ctx context.Context, cookie string) (*transcript.Transcript, error) {
	raw, err := e.client.FetchTranscriptRaw(ctx, cookie)
	if err != nil {
		return nil, err
	}

	return transcript.Parse(raw)
}

func (e *Engine) send(chatID int64, text string) {
	if err := e.messenger.Send(chatID, text); err != nil {
		e.log.Error("failed to send message", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

// lockChat serializes message handling per chat.
func (e *Engine) lockChat(chatID int64) func() {
	e.locksMu.Lock()
	lock, ok := e.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		e.chatLocks[chatID] = lock
	}
	e.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// NormalizeCookie trims whitespace, strips a leading cookie-name prefix, and
// strips one trailing semicolon, accepting the formats users paste from
// browser dev tools.
func NormalizeCookie(cookie string) string {
	cookie = strings.TrimSpace(cookie)
	cookie = strings.TrimPrefix(cookie, zju.SessionCookieName+"=")
	cookie = strings.TrimSuffix(cookie, ";")
	return cookie
}
