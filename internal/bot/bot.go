package bot

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"punchcard-labs/timeclock/internal/cache"
	"punchcard-labs/timeclock/internal/config"
	"punchcard-labs/timeclock/internal/logging"
)

// Bot wraps the Discord session and the repositories it drives. All guild
// and member state flows through the caches; the bot itself is stateless
// apart from per-member punch limiters.
type Bot struct {
	Session *discordgo.Session
	Guilds  *cache.GuildCache
	Members *cache.MemberCache

	cfg *config.Config

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// New builds the bot but does not open the gateway connection.
func New(cfg *config.Config, guilds *cache.GuildCache, members *cache.MemberCache) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.StateEnabled = true

	b := &Bot{
		Session:  session,
		Guilds:   guilds,
		Members:  members,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteractionCreate)
	session.AddHandler(b.onGuildDelete)

	return b, nil
}

// Run opens the gateway, registers the global commands, and blocks until
// SIGINT or SIGTERM.
func (b *Bot) Run() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	defer b.Session.Close()

	_, err := b.Session.ApplicationCommandBulkOverwrite(
		b.Session.State.User.ID, "", commandDefinitions(),
	)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	logging.Info("Commands registered, bot is running")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	logging.Info("Shutting down")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	logging.Info("Connected to Discord",
		"user", s.State.User.Username,
		"user_id", s.State.User.ID,
	)
}

// punchLimiter returns the per-member limiter, creating it on first use.
func (b *Bot) punchLimiter(memberID string) *rate.Limiter {
	b.limiterMu.Lock()
	defer b.limiterMu.Unlock()

	l, ok := b.limiters[memberID]
	if !ok {
		cooldown := time.Duration(b.cfg.Bot.PunchCooldown) * time.Second
		l = rate.NewLimiter(rate.Every(cooldown), 1)
		b.limiters[memberID] = l
	}
	return l
}
