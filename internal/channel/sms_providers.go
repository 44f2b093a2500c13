package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"otp-gateway/internal/config"
)

// Each SMS provider is a single one-shot HTTP call. No retries, no
// backoff, no failover: a failed send is reported verbatim and the
// caller decides what to tell the user.

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// ---------- Hubtel ----------

type HubtelChannel struct {
	cfg    config.HubtelConfig
	client *http.Client
}

func NewHubtelChannel(cfg config.HubtelConfig) *HubtelChannel {
	return &HubtelChannel{cfg: cfg, client: defaultHTTPClient}
}

func (c *HubtelChannel) Name() string       { return "hubtel" }
func (c *HubtelChannel) Modality() Modality { return ModalitySMS }

func (c *HubtelChannel) Deliver(ctx context.Context, identifier, message string) DeliveryOutcome {
	payload, _ := json.Marshal(map[string]string{
		"From":    c.cfg.Sender,
		"To":      identifier,
		"Content": message,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://smsc.hubtel.com/v1/messages/send", bytes.NewReader(payload))
	if err != nil {
		return DeliveryOutcome{Diagnostic: fmt.Sprintf("hubtel: build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	return doHTTPSend(c.client, req, "hubtel")
}

// ---------- Mnotify ----------

type MnotifyChannel struct {
	cfg    config.MnotifyConfig
	client *http.Client
}

func NewMnotifyChannel(cfg config.MnotifyConfig) *MnotifyChannel {
	return &MnotifyChannel{cfg: cfg, client: defaultHTTPClient}
}

func (c *MnotifyChannel) Name() string       { return "mnotify" }
func (c *MnotifyChannel) Modality() Modality { return ModalitySMS }

func (c *MnotifyChannel) Deliver(ctx context.Context, identifier, message string) DeliveryOutcome {
	payload, _ := json.Marshal(map[string]interface{}{
		"recipient": []string{identifier},
		"sender":    c.cfg.Sender,
		"message":   message,
	})

	endpoint := "https://api.mnotify.com/api/sms/quick?key=" + url.QueryEscape(c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return DeliveryOutcome{Diagnostic: fmt.Sprintf("mnotify: build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	return doHTTPSend(c.client, req, "mnotify")
}

// ---------- Arkesel ----------

type ArkeselChannel struct {
	cfg    config.ArkeselConfig
	client *http.Client
}

func NewArkeselChannel(cfg config.ArkeselConfig) *ArkeselChannel {
	return &ArkeselChannel{cfg: cfg, client: defaultHTTPClient}
}

func (c *ArkeselChannel) Name() string       { return "arkesel" }
func (c *ArkeselChannel) Modality() Modality { return ModalitySMS }

func (c *ArkeselChannel) Deliver(ctx context.Context, identifier, message string) DeliveryOutcome {
	payload, _ := json.Marshal(map[string]interface{}{
		"sender":     c.cfg.Sender,
		"message":    message,
		"recipients": []string{identifier},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://sms.arkesel.com/api/v2/sms/send", bytes.NewReader(payload))
	if err != nil {
		return DeliveryOutcome{Diagnostic: fmt.Sprintf("arkesel: build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	return doHTTPSend(c.client, req, "arkesel")
}

// ---------- Twilio ----------

type TwilioChannel struct {
	cfg    config.TwilioConfig
	client *http.Client
}

func NewTwilioChannel(cfg config.TwilioConfig) *TwilioChannel {
	return &TwilioChannel{cfg: cfg, client: defaultHTTPClient}
}

func (c *TwilioChannel) Name() string       { return "twilio" }
func (c *TwilioChannel) Modality() Modality { return ModalitySMS }

func (c *TwilioChannel) Deliver(ctx context.Context, identifier, message string) DeliveryOutcome {
	form := url.Values{}
	form.Set("From", c.cfg.From)
	form.Set("To", identifier)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DeliveryOutcome{Diagnostic: fmt.Sprintf("twilio: build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	return doHTTPSend(c.client, req, "twilio")
}

func doHTTPSend(client *http.Client, req *http.Request, provider string) DeliveryOutcome {
	resp, err := client.Do(req)
	if err != nil {
		return DeliveryOutcome{Diagnostic: fmt.Sprintf("%s: request failed: %v", provider, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DeliveryOutcome{
			Diagnostic: fmt.Sprintf("%s: status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	return DeliveryOutcome{Delivered: true}
}
