package floorbot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/skytemple/swablu/internal/gateway"
	"github.com/skytemple/swablu/internal/logger"
	"github.com/skytemple/swablu/internal/store"
)

// Defaults for BotConfig.
const (
	DefaultWorkers        = 2
	DefaultRate           = "5-M"
	DefaultTypingInterval = 8 * time.Second
	helpHistory           = 50
	queueSize             = 16
)

// Chat is the part of the chat API the bot writes through.
type Chat interface {
	SendMessage(ctx context.Context, channel gateway.Snowflake, msg gateway.OutgoingMessage) (*gateway.Message, error)
	EditMessage(ctx context.Context, channel, id gateway.Snowflake, msg gateway.OutgoingMessage) (*gateway.Message, error)
	SendFile(ctx context.Context, channel gateway.Snowflake, msg gateway.OutgoingMessage, name string, data []byte) (*gateway.Message, error)
	TriggerTyping(ctx context.Context, channel gateway.Snowflake) error
	OldestMessages(ctx context.Context, channel gateway.Snowflake, limit int) ([]gateway.Message, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// RenderLog stores one entry per processed request.
type RenderLog interface {
	RecordRender(ctx context.Context, r store.RenderRecord) (int64, error)
}

// BotConfig configures a Bot.
type BotConfig struct {
	// Channel is the only channel the bot listens and writes to.
	Channel gateway.Snowflake
	// WritesEnabled off turns the bot into a silent listener.
	WritesEnabled  bool
	Workers        int
	Rate           string
	TypingInterval time.Duration
}

// Bot answers floor render requests in one channel.
type Bot struct {
	cfg      BotConfig
	chat     Chat
	renderer *Renderer
	renders  RenderLog
	limiter  *limiter.Limiter

	self     atomic.Uint64
	helpOnce sync.Once

	jobs chan gateway.Message
	wg   sync.WaitGroup
}

type discardRenders struct{}

func (discardRenders) RecordRender(context.Context, store.RenderRecord) (int64, error) { return 0, nil }

// NewBot returns a Bot. renders may be nil to skip the render log.
func NewBot(cfg BotConfig, chat Chat, renderer *Renderer, renders RenderLog) (*Bot, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Rate == "" {
		cfg.Rate = DefaultRate
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = DefaultTypingInterval
	}
	if renders == nil {
		renders = discardRenders{}
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", cfg.Rate, err)
	}
	return &Bot{
		cfg:      cfg,
		chat:     chat,
		renderer: renderer,
		renders:  renders,
		limiter:  limiter.New(memory.NewStore(), rate),
		jobs:     make(chan gateway.Message, queueSize),
	}, nil
}

// Start launches the render workers. They stop when ctx is done.
func (b *Bot) Start(ctx context.Context) {
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-b.jobs:
					b.handle(ctx, m)
				}
			}
		}()
	}
	logger.Info("Floor bot started", "channel", b.cfg.Channel, "workers", b.cfg.Workers, "writes", b.cfg.WritesEnabled)
}

// Wait blocks until every worker has returned.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Ready records the bot's own user and posts the usage text once.
func (b *Bot) Ready(ctx context.Context, r gateway.Ready) {
	b.self.Store(uint64(r.User.ID))
	if !b.cfg.WritesEnabled {
		return
	}
	b.helpOnce.Do(func() {
		if err := b.postHelp(ctx); err != nil {
			logger.Error("Failed setting up the floor channel", "channel", b.cfg.Channel, "error", err)
		}
	})
}

// postHelp edits the bot's oldest message in the channel to the usage
// text, or posts the usage text if the bot has not written there yet.
func (b *Bot) postHelp(ctx context.Context) error {
	history, err := b.chat.OldestMessages(ctx, b.cfg.Channel, helpHistory)
	if err != nil {
		return err
	}
	msg := gateway.OutgoingMessage{Content: Usage}
	for _, m := range history {
		if uint64(m.Author.ID) == b.self.Load() {
			_, err := b.chat.EditMessage(ctx, b.cfg.Channel, m.ID, msg)
			return err
		}
	}
	_, err = b.chat.SendMessage(ctx, b.cfg.Channel, msg)
	return err
}

// MessageCreate queues m if it is a render request.
func (b *Bot) MessageCreate(ctx context.Context, m gateway.Message) {
	if !b.accepts(m) {
		return
	}
	select {
	case b.jobs <- m:
	case <-ctx.Done():
	}
}

func (b *Bot) accepts(m gateway.Message) bool {
	switch {
	case !b.cfg.WritesEnabled:
		return false
	case uint64(m.Author.ID) == b.self.Load():
		return false
	case m.ChannelID != b.cfg.Channel:
		return false
	default:
		return len(m.Attachments) > 0
	}
}

// handle processes one request and replies with the image or an error.
func (b *Bot) handle(ctx context.Context, m gateway.Message) {
	log := logger.With("message", m.ID, "author", m.Author.ID)
	start := time.Now()

	stop := b.typing(ctx, m.ChannelID, log)
	res, err := b.process(ctx, m)
	stop()

	if err == nil {
		_, err = b.chat.SendFile(ctx, m.ChannelID, gateway.OutgoingMessage{}, ImageName, res.PNG)
		if err != nil {
			err = internal(err)
			log.Error("Failed to send floor image", "error", err)
		}
	} else if _, sendErr := b.chat.SendMessage(ctx, m.ChannelID, gateway.OutgoingMessage{
		Embeds: []gateway.Embed{errorEmbed(err)},
	}); sendErr != nil {
		log.Error("Failed to send error reply", "error", sendErr)
	}

	b.record(ctx, log, m, res, err, time.Since(start))
}

func (b *Bot) process(ctx context.Context, m gateway.Message) (*Result, error) {
	opts, err := ParseOptions(m.Content)
	if err != nil {
		return nil, err
	}

	lim, err := b.limiter.Get(ctx, strconv.FormatUint(uint64(m.Author.ID), 10))
	if err != nil {
		return nil, internal(err)
	}
	if lim.Reached {
		wait := time.Until(time.Unix(lim.Reset, 0)).Round(time.Second)
		return nil, userErrorf("Slow down", "You can request %d previews per %s. Try again in %s.",
			lim.Limit, b.limiter.Rate.Period, wait)
	}

	sel, err := selectAttachments(m.Attachments)
	if err != nil {
		return nil, err
	}
	req := Request{Options: opts}
	if req.Floor, err = b.download(ctx, sel.floor); err != nil {
		return nil, err
	}
	if sel.archive != nil {
		if req.Archive, err = b.download(ctx, *sel.archive); err != nil {
			return nil, err
		}
	}
	return b.renderer.Render(ctx, req)
}

func (b *Bot) download(ctx context.Context, a gateway.Attachment) ([]byte, error) {
	if a.Size > gateway.MaxDownload {
		return nil, userErrorf(attachmentsTitle, "%s is too large (%d bytes).", a.Filename, a.Size)
	}
	data, err := b.chat.Download(ctx, a.URL)
	if err != nil {
		return nil, internal(errors.Wrapf(err, "download %s", a.Filename))
	}
	return data, nil
}

// typing shows the typing indicator until the returned func is called.
func (b *Bot) typing(ctx context.Context, channel gateway.Snowflake, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(b.cfg.TypingInterval)
		defer ticker.Stop()
		for {
			if err := b.chat.TriggerTyping(ctx, channel); err != nil && ctx.Err() == nil {
				log.Debug("Failed to trigger typing", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (b *Bot) record(ctx context.Context, log *slog.Logger, m gateway.Message, res *Result, err error, took time.Duration) {
	rec := store.RenderRecord{
		MessageID: uint64(m.ID),
		ChannelID: uint64(m.ChannelID),
		AuthorID:  uint64(m.Author.ID),
		TilesetID: -1,
		Options:   m.Content,
		Outcome:   store.OutcomeOK,
		Duration:  took,
	}
	if res != nil {
		rec.Seed = res.Options.Seed
		rec.TilesetID = res.TilesetID
		rec.ArchiveDigest = res.ArchiveDigest
	}

	var ue *UserError
	switch {
	case err == nil:
		log.Log(ctx, logger.LevelAudit, "Rendered floor", "seed", rec.Seed, "tileset", rec.TilesetID, "layers", res.Options.Layers(), "duration", took)
	case errors.As(err, &ue):
		rec.Outcome = store.OutcomeUserError
		rec.ErrorTitle = ue.Title
		log.Log(ctx, logger.LevelAudit, "Rejected render request", "title", ue.Title, "reason", ue.Message, "duration", took)
	default:
		rec.Outcome = store.OutcomeInternalError
		rec.ErrorTitle = "Internal Error"
		log.Error("Render failed", "seed", rec.Seed, "tileset", rec.TilesetID, "duration", took, "error", fmt.Sprintf("%+v", err))
	}

	if _, err := b.renders.RecordRender(ctx, rec); err != nil {
		log.Warn("Failed to record render", "error", err)
	}
}
