// Package alert notifies operators when a provider approaches its connection
// ceiling, so failover or a plan upgrade can happen before throttling bites.
package alert

import (
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/finbridge/banklink/internal/config"
	"github.com/finbridge/banklink/internal/quota"
)

// EmailNotifier sends quota threshold alerts over SMTP. Sending happens on a
// separate goroutine; a mail failure is logged, never propagated into the
// link flow.
type EmailNotifier struct {
	cfg    config.AlertConfig
	logger *slog.Logger
}

func NewEmailNotifier(cfg config.AlertConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, logger: logger}
}

func (n *EmailNotifier) QuotaThresholdReached(provider string, usage quota.Usage) {
	if !n.cfg.Enabled {
		return
	}
	go n.send(provider, usage)
}

func (n *EmailNotifier) send(provider string, usage quota.Usage) {
	e := email.NewEmail()
	e.From = n.cfg.From
	e.To = []string{n.cfg.To}
	e.Subject = fmt.Sprintf("Provider %s nearing connection quota", provider)
	e.Text = []byte(fmt.Sprintf(
		"Provider %s is at %d of %d authorized connections (%.0f%%).\n\n"+
			"New link initiations will start failing at the ceiling. "+
			"Arrange failover to an alternate provider or upgrade the plan.\n",
		provider, usage.Count, usage.Limit, usage.PercentUsed*100,
	))

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	auth := smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		n.logger.Error("failed to send quota alert", "provider", provider, "error", err)
		return
	}
	n.logger.Info("quota alert sent", "provider", provider, "count", usage.Count, "limit", usage.Limit)
}
