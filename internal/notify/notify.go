// Package notify announces automation results on Slack and Discord incoming
// webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/airminal/internal/automation"
	"github.com/zulandar/airminal/internal/config"
	"github.com/zulandar/airminal/internal/logger"
)

const (
	colorGood   = 0x2eb886
	colorDanger = 0xe01e5a
	username    = "Airminal"
)

// Sink delivers one announcement.
type Sink interface {
	Name() string
	Send(ctx context.Context, a Announcement) error
}

// Announcement is one automation result ready to send.
type Announcement struct {
	AutomationID string
	Success      bool
	Text         string
}

// Title is the one-line summary of the result.
func (a Announcement) Title() string {
	if a.Success {
		return fmt.Sprintf("Automation %s succeeded", a.AutomationID)
	}
	return fmt.Sprintf("Automation %s failed", a.AutomationID)
}

// Opts holds parameters for creating a Notifier.
type Opts struct {
	Config config.NotifyConfig
	// HTTPClient is used for the Slack webhook. Defaults to a client with a
	// 10s timeout.
	HTTPClient *http.Client
	// Sinks replaces the sinks built from Config.
	Sinks  []Sink
	Logger *logger.Logger
}

// Notifier fans an automation result out to every configured sink.
type Notifier struct {
	sinks []Sink
	log   *logger.Logger
}

// New creates a Notifier. A config with no webhooks yields a Notifier with
// no sinks; see Enabled.
func New(opts Opts) (*Notifier, error) {
	sinks := opts.Sinks
	if sinks == nil {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		if u := opts.Config.SlackWebhookURL; u != "" {
			sinks = append(sinks, &SlackSink{url: u, client: client})
		}
		if u := opts.Config.DiscordWebhookURL; u != "" {
			d, err := NewDiscordSink(u, nil)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, d)
		}
	}
	return &Notifier{sinks: sinks, log: logger.OrNop(opts.Logger)}, nil
}

// Enabled reports whether any sink is configured.
func (n *Notifier) Enabled() bool { return len(n.sinks) > 0 }

// Announce sends res to every sink. All sinks are tried; their errors are
// joined.
func (n *Notifier) Announce(ctx context.Context, automationID string, res automation.Result) error {
	a := Announcement{AutomationID: automationID, Success: res.Success, Text: res.Message}
	if !res.Success {
		a.Text = res.Error
	}
	var errs []error
	for _, s := range n.sinks {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("notify: %s: %w", s.Name(), err))
			continue
		}
		n.log.Debug("notify: sent", "sink", s.Name(), "automation", automationID)
	}
	return errors.Join(errs...)
}

// SlackSink posts to a Slack incoming webhook.
type SlackSink struct {
	url    string
	client *http.Client
}

// NewSlackSink creates a Slack sink. A nil client uses http.DefaultClient.
func NewSlackSink(webhookURL string, client *http.Client) *SlackSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackSink{url: webhookURL, client: client}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, a Announcement) error {
	color := "good"
	if !a.Success {
		color = "danger"
	}
	msg := &slackapi.WebhookMessage{
		Username: username,
		Text:     a.Title(),
		Attachments: []slackapi.Attachment{{
			Color: color,
			Text:  a.Text,
		}},
	}
	return slackapi.PostWebhookCustomHTTPContext(ctx, s.url, s.client, msg)
}

// webhookExecutor is the discordgo method the sink uses, for test fakes.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink executes a Discord webhook.
type DiscordSink struct {
	id      string
	token   string
	session webhookExecutor
}

// NewDiscordSink creates a Discord sink from a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>. A nil exec uses an
// unauthenticated discordgo session.
func NewDiscordSink(webhookURL string, exec webhookExecutor) (*DiscordSink, error) {
	id, token, err := ParseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		s, err := discordgo.New("")
		if err != nil {
			return nil, fmt.Errorf("notify: discord: session: %w", err)
		}
		exec = s
	}
	return &DiscordSink{id: id, token: token, session: exec}, nil
}

func (d *DiscordSink) Name() string { return "discord" }

func (d *DiscordSink) Send(ctx context.Context, a Announcement) error {
	color := colorGood
	if !a.Success {
		color = colorDanger
	}
	_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Username: username,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       a.Title(),
			Description: a.Text,
			Color:       color,
		}},
	}, discordgo.WithContext(ctx))
	return err
}

// ParseDiscordWebhook extracts the webhook id and token from a webhook URL.
func ParseDiscordWebhook(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("notify: discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) {
			id, token = parts[i+1], parts[i+2]
			break
		}
	}
	if id == "" || token == "" {
		return "", "", fmt.Errorf("notify: discord webhook url %q: want .../webhooks/<id>/<token>", raw)
	}
	return id, token, nil
}
