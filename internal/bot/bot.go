package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"tunnelbot/internal/config"
	"tunnelbot/internal/cron"
	"tunnelbot/internal/models"
	"tunnelbot/internal/provision"
)

// Bot is the Telegram front door: a small command surface over the
// provisioning service. The heavyweight shop flows live elsewhere; this bot
// only covers trials, account listing and the admin sweep trigger.
type Bot struct {
	tb      *tele.Bot
	cfg     *config.Store
	svc     *provision.Service
	janitor *cron.Janitor
	logger  *zap.Logger
}

// New creates and configures a new Bot instance (long polling).
func New(cfg *config.Store, svc *provision.Service, janitor *cron.Janitor, logger *zap.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Snapshot().Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	b := &Bot{
		tb:      tb,
		cfg:     cfg,
		svc:     svc,
		janitor: janitor,
		logger:  logger,
	}

	b.registerHandlers()

	return b, nil
}

// Start begins long polling.
func (b *Bot) Start() {
	if err := b.tb.RemoveWebhook(true); err != nil {
		b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
	}
	b.logger.Info("Starting Telegram bot", zap.String("mode", "polling"))
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/trial", b.handleTrial)
	b.tb.Handle("/accounts", b.handleAccounts)
	b.tb.Handle("/sweep", b.handleSweep)
}

func (b *Bot) userID(c tele.Context) string {
	return fmt.Sprintf("%d", c.Sender().ID)
}

func (b *Bot) isAdmin(c tele.Context) bool {
	admin := b.cfg.Snapshot().Bot.AdminID
	return admin != 0 && c.Sender().ID == admin
}

func (b *Bot) handleStart(c tele.Context) error {
	return c.Send("Welcome. Commands:\n/trial — free trial account\n/accounts — your accounts")
}

func (b *Bot) handleTrial(c tele.Context) error {
	protocol := models.ProtocolSSH
	if args := c.Args(); len(args) > 0 {
		protocol = models.Protocol(strings.ToLower(args[0]))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	acc, err := b.svc.Trial(ctx, b.userID(c), protocol)
	if err != nil {
		return c.Send(trialFailureText(err))
	}

	var sb strings.Builder
	sb.WriteString("✅ Trial account created\n")
	fmt.Fprintf(&sb, "Server: %s\n", acc.ServerName)
	fmt.Fprintf(&sb, "Protocol: %s\n", acc.Protocol)
	fmt.Fprintf(&sb, "Username: %s\n", acc.Username)
	if acc.Password.Valid {
		fmt.Fprintf(&sb, "Password: %s\n", acc.Password.String)
	}
	if acc.ExpiresAt > 0 {
		fmt.Fprintf(&sb, "Expires: %s\n", formatExpiry(acc.ExpiresAt))
	}
	for _, link := range acc.LinkList() {
		sb.WriteString(link)
		sb.WriteString("\n")
	}
	return c.Send(sb.String())
}

func trialFailureText(err error) string {
	switch {
	case errors.Is(err, provision.ErrTrialUsed):
		return "⏳ You already used your trial today. Try again tomorrow."
	case errors.Is(err, provision.ErrTrialDisabled):
		return "❌ Trial accounts are currently disabled."
	default:
		return "❌ Could not create a trial account right now. Please try again later."
	}
}

func (b *Bot) handleAccounts(c tele.Context) error {
	accounts, err := b.svc.Accounts(b.userID(c))
	if err != nil {
		b.logger.Error("account listing failed", zap.String("user_id", b.userID(c)), zap.Error(err))
		return c.Send("❌ Could not load your accounts right now.")
	}
	if len(accounts) == 0 {
		return c.Send("You have no accounts yet.")
	}

	var sb strings.Builder
	sb.WriteString("Your accounts:\n")
	for _, acc := range accounts {
		fmt.Fprintf(&sb, "• %s / %s on %s", acc.Protocol, acc.Username, acc.ServerName)
		if acc.ExpiresAt > 0 {
			fmt.Fprintf(&sb, " (expires %s)", formatExpiry(acc.ExpiresAt))
		}
		sb.WriteString("\n")
	}
	return c.Send(sb.String())
}

func (b *Bot) handleSweep(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("⛔ Admins only.")
	}

	removed, err := b.janitor.PurgeExpired()
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Purge failed: %v", err))
	}
	stats, err := b.janitor.BackfillServerLinks()
	if err != nil {
		return c.Send(fmt.Sprintf("🧹 Purged %d. ❌ Back-fill failed: %v", removed, err))
	}
	return c.Send(fmt.Sprintf("🧹 Purged %d expired records.\n🔗 Back-fill: %d/%d linked, %d failed.",
		removed, stats.Updated, stats.Candidates, stats.Failed))
}

func formatExpiry(millis int64) string {
	return time.UnixMilli(millis).Format("2006-01-02 15:04")
}
