// Package plugin implements the drift-bottle chat commands and wires them
// to the bottle store and the cloud client.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/channel"
	"github.com/wuyan1003/driftbottle/internal/config"
	"github.com/wuyan1003/driftbottle/internal/format"
)

// CloudClient is the slice of the cloud API the commands use.
type CloudClient interface {
	AddBottle(ctx context.Context, b bottle.Bottle) (int64, error)
	PickRandom(ctx context.Context) (bottle.Bottle, bool, error)
	Counts(ctx context.Context) (int, int, error)
}

// ImageCollector turns a message's attachments into bottle images.
type ImageCollector interface {
	Collect(ctx context.Context, msg channel.Message) []bottle.Image
}

// Plugin dispatches bottle commands. Store and client failures are logged
// and answered with an apologetic reply; they never propagate to the
// channel adapter.
type Plugin struct {
	store  bottle.Store
	cloud  CloudClient
	images ImageCollector
	limits config.LimitsConfig
	logger *slog.Logger
}

// New creates the command plugin. cloud may be nil when no cloud service is
// configured; the cloud commands then answer with a hint.
func New(log *slog.Logger, store bottle.Store, cloud CloudClient, images ImageCollector, limits config.LimitsConfig) *Plugin {
	if log == nil {
		log = slog.Default()
	}
	return &Plugin{
		store:  store,
		cloud:  cloud,
		images: images,
		limits: limits,
		logger: log.With(slog.String("component", "plugin")),
	}
}

// Handle implements channel.InboundHandler. Messages that are not bottle
// commands yield no reply.
func (p *Plugin) Handle(ctx context.Context, msg channel.InboundMessage) ([]channel.OutboundMessage, error) {
	command, args := parseCommand(msg.Message.Text)
	if command == "" {
		return nil, nil
	}

	var reply channel.Message
	switch command {
	case "throw":
		reply = p.throw(ctx, msg, args)
	case "pick":
		reply = p.pick(ctx)
	case "picked":
		reply = p.picked(ctx, args)
	case "count":
		reply = p.count(ctx)
	case "list":
		reply = p.list(ctx)
	case "cloudthrow":
		reply = p.cloudThrow(ctx, msg, args)
	case "cloudpick":
		reply = p.cloudPick(ctx)
	case "help":
		reply = channel.Message{Text: helpText}
	default:
		return nil, nil
	}

	if reply.IsEmpty() {
		return nil, nil
	}
	return []channel.OutboundMessage{{Target: msg.ReplyTarget, Message: reply}}, nil
}

const helpText = `Drift bottle commands:
/throw <text> - throw a bottle into the sea (attach pictures if you like)
/pick - pick up a random bottle
/picked [id] - look at a picked bottle
/count - how many bottles are drifting and picked
/list - all picked bottles
/cloudthrow <text> - throw a bottle into the cloud sea
/cloudpick - pick up a bottle from the cloud sea`

// parseCommand splits "/throw some text" into ("throw", "some text").
// A "@botname" suffix on the command token is ignored.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	token := text[1:]
	args := ""
	if idx := strings.IndexAny(token, " \t\n"); idx >= 0 {
		args = strings.TrimSpace(token[idx+1:])
		token = token[:idx]
	}
	if at := strings.Index(token, "@"); at >= 0 {
		token = token[:at]
	}
	return strings.ToLower(token), args
}

// collectBottle validates command input and builds the bottle to store.
func (p *Plugin) collectBottle(ctx context.Context, msg channel.InboundMessage, content string) (bottle.Bottle, string) {
	var images []bottle.Image
	if p.images != nil {
		images = p.images.Collect(ctx, msg.Message)
	}

	if strings.TrimSpace(content) == "" && len(images) == 0 {
		return bottle.Bottle{}, "A drift bottle can't be empty, write something or attach a picture~"
	}
	if utf8.RuneCountInString(content) > p.limits.MaxTextLength {
		return bottle.Bottle{}, fmt.Sprintf("Bottle text is over the limit (max %d characters)", p.limits.MaxTextLength)
	}
	if len(images) > p.limits.MaxImages {
		return bottle.Bottle{}, fmt.Sprintf("Too many pictures (max %d)", p.limits.MaxImages)
	}

	return bottle.Bottle{
		Content:  content,
		Images:   images,
		Sender:   msg.Sender.Name(),
		SenderID: msg.Sender.ExternalID,
	}, ""
}

func (p *Plugin) throw(ctx context.Context, msg channel.InboundMessage, content string) channel.Message {
	b, complaint := p.collectBottle(ctx, msg, content)
	if complaint != "" {
		return channel.Message{Text: complaint}
	}

	id, err := p.store.Add(ctx, b)
	if err != nil {
		p.logger.Error("throw bottle failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, your bottle slipped away. Please try again later..."}
	}
	return channel.Message{Text: fmt.Sprintf("Your bottle is off to sea! Its number is %d", id)}
}

func (p *Plugin) pick(ctx context.Context) channel.Message {
	b, err := p.store.PickRandom(ctx)
	if err != nil {
		if errors.Is(err, bottle.ErrNoBottles) {
			return channel.Message{Text: "The sea is empty right now..."}
		}
		p.logger.Error("pick bottle failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, something went wrong while fishing. Please try again later..."}
	}
	return format.BottleMessage(b, "You picked up a drift bottle!")
}

func (p *Plugin) picked(ctx context.Context, args string) channel.Message {
	if args != "" {
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			return channel.Message{Text: "Bottle numbers are plain numbers, e.g. /picked 3"}
		}
		b, err := p.store.GetPicked(ctx, id)
		if err != nil {
			if errors.Is(err, bottle.ErrNotFound) {
				return channel.Message{Text: fmt.Sprintf("No picked bottle with number %d was found", id)}
			}
			p.logger.Error("get picked bottle failed", slog.Any("error", err))
			return channel.Message{Text: "Sorry, something went wrong. Please try again later..."}
		}
		return format.BottleMessage(b, "This bottle was picked up earlier!")
	}

	b, err := p.store.RandomPicked(ctx)
	if err != nil {
		if errors.Is(err, bottle.ErrNoBottles) {
			return channel.Message{Text: "No bottle has been picked up yet..."}
		}
		p.logger.Error("random picked bottle failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, something went wrong. Please try again later..."}
	}
	return format.BottleMessage(b, "This bottle was picked up earlier!")
}

func (p *Plugin) count(ctx context.Context) channel.Message {
	active, picked, err := p.store.Counts(ctx)
	if err != nil {
		p.logger.Error("count bottles failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, something went wrong. Please try again later..."}
	}
	return channel.Message{Text: fmt.Sprintf(
		"There are %d bottles drifting at sea\n%d bottles have been picked up",
		active, picked,
	)}
}

func (p *Plugin) list(ctx context.Context) channel.Message {
	bottles, err := p.store.ListPicked(ctx)
	if err != nil {
		p.logger.Error("list picked bottles failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, something went wrong. Please try again later..."}
	}
	return channel.Message{Text: format.PickedList(bottles)}
}

func (p *Plugin) cloudThrow(ctx context.Context, msg channel.InboundMessage, content string) channel.Message {
	if p.cloud == nil {
		return channel.Message{Text: "The cloud sea is not configured on this bot."}
	}
	b, complaint := p.collectBottle(ctx, msg, content)
	if complaint != "" {
		return channel.Message{Text: complaint}
	}

	id, err := p.cloud.AddBottle(ctx, b)
	if err != nil {
		p.logger.Error("throw cloud bottle failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, throwing into the cloud sea failed. Please try again later..."}
	}
	return channel.Message{Text: fmt.Sprintf("Your bottle is off to the cloud sea! Its number is %d", id)}
}

func (p *Plugin) cloudPick(ctx context.Context) channel.Message {
	if p.cloud == nil {
		return channel.Message{Text: "The cloud sea is not configured on this bot."}
	}
	b, reset, err := p.cloud.PickRandom(ctx)
	if err != nil {
		if errors.Is(err, bottle.ErrNoBottles) {
			return channel.Message{Text: "The cloud sea is empty right now..."}
		}
		p.logger.Error("pick cloud bottle failed", slog.Any("error", err))
		return channel.Message{Text: "Sorry, something went wrong at the cloud sea. Please try again later..."}
	}

	prefix := "You picked up a bottle from the cloud sea!"
	if reset {
		prefix = "The cloud ran out of new bottles, so the picked ones were set adrift again~\n" + prefix
	}
	return format.BottleMessage(b, prefix)
}
