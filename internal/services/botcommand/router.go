// Package botcommand decides what the bot replies to a chat message or a
// follow event. It is stateless; the only input besides the event is a
// member lookup.
package botcommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quipper/poc/membercard/pkg/common/logger"
	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

// Chat keywords recognised by the bot.
const (
	CommandRegister = "会員証登録"
	CommandShowCard = "会員証表示"
)

const (
	textRegister   = "以下のURLから会員情報を登録してください。"
	textNotFound   = "会員情報が登録されていません。以下のURLから会員登録を行ってください。"
	textCardHeader = "会員証"
	textCardLink   = "Webで会員証を表示:"
	textHelp       = "「" + CommandRegister + "」または「" + CommandShowCard + "」と送信してください。"
)

type EventKind string

const (
	EventMessage EventKind = "message"
	EventFollow  EventKind = "follow"
)

// Event is an inbound chat message or follow from one user.
type Event struct {
	Kind       EventKind
	ExternalID string
	Text       string
}

type Intent string

const (
	IntentRegisterLink Intent = "register_link"
	IntentCard         Intent = "card"
	IntentNotFound     Intent = "not_registered"
	IntentHelp         Intent = "help"
)

// Reply is the text to send back. Link is set when Text carries a URL.
type Reply struct {
	Intent Intent
	Text   string
	Link   string
}

type Router struct {
	members members.Reader
	links   *Links
}

func NewRouter(repo members.Reader, links *Links) *Router {
	return &Router{members: repo, links: links}
}

// Route classifies ev and builds the reply. baseURL is the public origin the
// links are rooted at.
func (rt *Router) Route(ctx context.Context, baseURL string, ev Event) (Reply, error) {
	if ev.ExternalID == "" {
		return Reply{}, errors.New("event without user id")
	}
	switch {
	case ev.Kind == EventFollow:
		logger.Debug("route: follow from %s", ev.ExternalID)
		return rt.card(ctx, baseURL, ev.ExternalID)
	case ev.Kind == EventMessage && ev.Text == CommandRegister:
		return rt.registerLink(baseURL, ev.ExternalID, IntentRegisterLink, textRegister)
	case ev.Kind == EventMessage && ev.Text == CommandShowCard:
		return rt.card(ctx, baseURL, ev.ExternalID)
	default:
		return Reply{Intent: IntentHelp, Text: textHelp}, nil
	}
}

func (rt *Router) registerLink(baseURL, externalID string, intent Intent, lead string) (Reply, error) {
	link, err := rt.links.Registration(baseURL, externalID)
	if err != nil {
		return Reply{}, fmt.Errorf("registration link for %s: %w", externalID, err)
	}
	return Reply{Intent: intent, Text: lead + "\n" + link, Link: link}, nil
}

func (rt *Router) card(ctx context.Context, baseURL, externalID string) (Reply, error) {
	m, err := rt.members.FindByExternalID(ctx, externalID)
	if errors.Is(err, members.ErrNotFound) {
		return rt.registerLink(baseURL, externalID, IntentNotFound, textNotFound)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("lookup %s: %w", externalID, err)
	}
	link, err := rt.links.Card(baseURL, externalID)
	if err != nil {
		return Reply{}, fmt.Errorf("card link %s: %w", externalID, err)
	}
	return Reply{Intent: IntentCard, Text: FormatCard(m) + "\n" + textCardLink + "\n" + link, Link: link}, nil
}

// FormatCard renders the membership card as chat text. Email and phone are
// included only when present.
func FormatCard(m *members.Member) string {
	var b strings.Builder
	b.WriteString(textCardHeader + "\n")
	fmt.Fprintf(&b, "名前: %s\n", m.Name)
	fmt.Fprintf(&b, "地域: %s\n", m.Region)
	if m.Email != "" {
		fmt.Fprintf(&b, "メールアドレス: %s\n", m.Email)
	}
	if m.PhoneNumber != "" {
		fmt.Fprintf(&b, "電話番号: %s\n", m.PhoneNumber)
	}
	fmt.Fprintf(&b, "会員番号: %s", m.MemberNumber)
	return b.String()
}
