package channel

import (
	"context"
	"fmt"
	"net/smtp"

	"otp-gateway/internal/config"
	"otp-gateway/internal/util"

	"go.uber.org/zap"
)

// SMTPChannel sends the rendered OTP message as a plain-text email in a
// single SendMail call.
type SMTPChannel struct {
	cfg config.SMTPConfig
}

func NewSMTPChannel(cfg config.SMTPConfig) *SMTPChannel {
	return &SMTPChannel{cfg: cfg}
}

func (c *SMTPChannel) Name() string       { return "smtp" }
func (c *SMTPChannel) Modality() Modality { return ModalityEmail }

func (c *SMTPChannel) Deliver(_ context.Context, identifier, message string) DeliveryOutcome {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your verification code\r\n\r\n%s\r\n",
		c.cfg.From, identifier, message)

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, c.cfg.From, []string{identifier}, []byte(body)); err != nil {
		return DeliveryOutcome{Diagnostic: fmt.Sprintf("smtp: send failed: %v", err)}
	}

	return DeliveryOutcome{Delivered: true}
}

// LogChannel is the development fallback for either modality: it logs
// that a delivery happened without going to any vendor. The message
// contains the code, so it is logged at debug level only.
type LogChannel struct {
	modality Modality
}

func NewLogChannel(modality Modality) *LogChannel {
	return &LogChannel{modality: modality}
}

func (c *LogChannel) Name() string {
	return "log-" + string(c.modality)
}

func (c *LogChannel) Modality() Modality { return c.modality }

func (c *LogChannel) Deliver(_ context.Context, identifier, message string) DeliveryOutcome {
	util.Info("Simulated delivery",
		zap.String("modality", string(c.modality)),
		zap.String("identifier", util.MaskIdentifier(identifier)))
	util.Debug("Simulated delivery content", zap.String("message", message))
	return DeliveryOutcome{Delivered: true}
}
