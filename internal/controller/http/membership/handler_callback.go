package membership

import (
	"errors"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/quipper/poc/membercard/internal/services/botcommand"
	"github.com/quipper/poc/membercard/pkg/common/logger"
)

// callback POST /callback
// Verifies the X-Line-Signature header, then routes every event and replies.
// A reply that cannot be built or sent makes the whole delivery fail with 500.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(h.opts.ChannelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			logger.Warn("callback [%s]: invalid signature", reqID(r))
		} else {
			logger.Warn("callback [%s]: parse: %v", reqID(r), err)
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	base := h.baseURL(r)
	failed := 0
	for _, event := range cb.Events {
		var (
			ev         botcommand.Event
			replyToken string
		)
		switch e := event.(type) {
		case webhook.MessageEvent:
			h.opts.Metrics.IncWebhookEvent("message")
			ev = botcommand.Event{Kind: botcommand.EventMessage, ExternalID: userID(e.Source)}
			if text, ok := e.Message.(webhook.TextMessageContent); ok {
				ev.Text = text.Text
			}
			replyToken = e.ReplyToken
		case webhook.FollowEvent:
			h.opts.Metrics.IncWebhookEvent("follow")
			ev = botcommand.Event{Kind: botcommand.EventFollow, ExternalID: userID(e.Source)}
			replyToken = e.ReplyToken
		default:
			h.opts.Metrics.IncWebhookEvent("other")
			logger.Debug("callback [%s]: ignoring event %T", reqID(r), event)
			continue
		}

		if ev.ExternalID == "" {
			logger.Debug("callback [%s]: %s without user id", reqID(r), ev.Kind)
			continue
		}
		logger.Info("callback [%s]: %s from %s text=%q", reqID(r), ev.Kind, ev.ExternalID, ev.Text)
		reply, err := h.bot.Route(r.Context(), base, ev)
		if err != nil {
			failed++
			h.opts.Metrics.IncBotReply("error", "route_failed")
			logger.Error("callback [%s]: route %s: %v", reqID(r), ev.ExternalID, err)
			continue
		}
		if err := h.replier.Reply(r.Context(), replyToken, reply.Text); err != nil {
			failed++
			h.opts.Metrics.IncBotReply(string(reply.Intent), "send_failed")
			logger.Error("callback [%s]: reply to %s: %v", reqID(r), ev.ExternalID, err)
			continue
		}
		h.opts.Metrics.IncBotReply(string(reply.Intent), "sent")
	}

	if failed > 0 {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte("OK"))
}

func userID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}
