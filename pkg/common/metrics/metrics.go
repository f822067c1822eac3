package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the membership service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	ProfileUpdates *prometheus.CounterVec
	WebhookEvents  *prometheus.CounterVec
	BotReplies     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membercard_registrations_total",
			Help: "Registration submissions by outcome (created, updated, invalid, failed).",
		}, []string{"result"}),
		ProfileUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membercard_profile_updates_total",
			Help: "Profile update submissions by outcome.",
		}, []string{"result"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membercard_webhook_events_total",
			Help: "Webhook events received by event type.",
		}, []string{"type"}),
		BotReplies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membercard_bot_replies_total",
			Help: "Bot replies sent by intent and delivery result.",
		}, []string{"intent", "result"}),
	}
}

func (m *Metrics) IncRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncProfileUpdate(result string) {
	if m == nil {
		return
	}
	m.ProfileUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncBotReply(intent, result string) {
	if m == nil {
		return
	}
	m.BotReplies.WithLabelValues(intent, result).Inc()
}
