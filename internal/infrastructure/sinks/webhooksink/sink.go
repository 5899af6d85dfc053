package webhooksink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
)

// Options configures the messenger gateway notifier.
type Options struct {
	Endpoint    string
	Destination string
	Recipient   string
	Timeout     time.Duration
	Attempts    int
	RetryDelay  time.Duration
}

// Sink notifies admins of new applications through a messenger gateway
// (POST <endpoint>/messages with {userId, text, destination}).
type Sink struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Sink {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Recipient == "" {
		opts.Recipient = "admin"
	}
	opts.Endpoint = strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	return &Sink{opts: opts, client: &http.Client{Timeout: opts.Timeout}}
}

func (s *Sink) Record(ctx context.Context, rec model.SubmissionRecord) error {
	text := BuildMessage(rec)
	var lastErr error
	for i := 0; i < s.opts.Attempts; i++ {
		if i > 0 && s.opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(s.opts.RetryDelay):
			}
		}
		if lastErr = s.send(ctx, text); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.opts.Attempts, lastErr)
}

func (s *Sink) send(ctx context.Context, text string) error {
	payload := map[string]any{
		"userId": s.opts.Recipient,
		"text":   text,
	}
	if dest := strings.TrimSpace(s.opts.Destination); dest != "" {
		payload["destination"] = dest
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return fmt.Errorf("gateway status=%d body=%s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// BuildMessage renders the admin notification for one application.
func BuildMessage(rec model.SubmissionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**New application %s**\n", rec.ID)
	fmt.Fprintf(&b, "- Name: %s\n", rec.FullName)
	fmt.Fprintf(&b, "- Email: %s\n", rec.Email)
	fmt.Fprintf(&b, "- Phone: %s %s\n", rec.CountryCode, rec.Phone)
	fmt.Fprintf(&b, "- Plan: %s\n", rec.Plan)
	fmt.Fprintf(&b, "- Experience: %s\n", rec.Experience)
	fmt.Fprintf(&b, "- Submitted: %s\n", rec.SubmittedAtISO())
	return b.String()
}

// Factory registers the notifier as "webhook". Its failures never fail a submission.
type Factory struct{}

func (f *Factory) Name() string { return "webhook" }

func (f *Factory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "webhook",
		Description: "Posts an admin notification for each application to a messenger gateway. Best effort.",
		BestEffort:  true,
		Fields: []sinks.ConfigField{
			{Name: "sinks.webhook.endpoint", Env: "INTAKE_SINKS__WEBHOOK__ENDPOINT", Type: "string", Required: true, Description: "Gateway base URL; /messages is appended", Example: "http://messenger-gateway:3000"},
			{Name: "sinks.webhook.destination", Env: "INTAKE_SINKS__WEBHOOK__DESTINATION", Type: "string", Required: false, Description: "Gateway destination channel", Example: "discord"},
			{Name: "sinks.webhook.recipient", Env: "INTAKE_SINKS__WEBHOOK__RECIPIENT", Type: "string", Required: false, Description: "Recipient id passed as userId", Example: "admin"},
			{Name: "sinks.webhook.timeout", Env: "INTAKE_SINKS__WEBHOOK__TIMEOUT", Type: "number", Required: false, Description: "Per-attempt timeout in seconds", Example: "3"},
			{Name: "sinks.webhook.attempts", Env: "INTAKE_SINKS__WEBHOOK__ATTEMPTS", Type: "number", Required: false, Description: "Delivery attempts", Example: "3"},
			{Name: "sinks.webhook.retry_delay_ms", Env: "INTAKE_SINKS__WEBHOOK__RETRY_DELAY_MS", Type: "number", Required: false, Description: "Pause between attempts", Example: "200"},
		},
	}
}

func (f *Factory) Create(_ context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	wc := deps.Config.Sinks.Webhook
	if strings.TrimSpace(wc.Endpoint) == "" {
		return nil, errors.New("webhook endpoint is required")
	}
	return New(Options{
		Endpoint:    wc.Endpoint,
		Destination: wc.Destination,
		Recipient:   wc.Recipient,
		Timeout:     time.Duration(wc.Timeout) * time.Second,
		Attempts:    wc.Attempts,
		RetryDelay:  time.Duration(wc.RetryDelayMS) * time.Millisecond,
	}), nil
}

func init() {
	sinks.GlobalRegistry.Register(&Factory{})
}
