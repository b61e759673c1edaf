package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/game"
	"github.com/jensholdgaard/gachabot/internal/grade"
)

// FlagAdmin edits the live event flags. It is nil when flags are static.
type FlagAdmin interface {
	SetLive(ctx context.Context, live bool) error
	SetLuckMultiplier(ctx context.Context, m float64) error
	StartEvent(ctx context.Context, name string, until time.Time) error
	EndEvent(ctx context.Context, name string) error
}

// Handlers process Discord interactions.
type Handlers struct {
	game   *game.Service
	table  *grade.Table
	flags  FlagAdmin
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(svc *game.Service, table *grade.Table, flags FlagAdmin, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		game:   svc,
		table:  table,
		flags:  flags,
		clock:  clk,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/gachabot/internal/bot/commands"),
	}
}

// Caller is the Discord user behind an interaction.
type Caller struct {
	ID   string
	Name string
}

// Reply is the response to one command.
type Reply struct {
	Content   string
	Ephemeral bool
}

func say(format string, args ...any) Reply {
	return Reply{Content: fmt.Sprintf(format, args...)}
}

type handlerFunc func(ctx context.Context, c Caller, opts options) Reply

func (h *Handlers) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"draw":         h.handleDraw,
		"profile":      h.handleProfile,
		"inventory":    h.handleInventory,
		"odds":         h.handleOdds,
		"fuse":         h.handleFuse,
		"enhance":      h.handleEnhance,
		"sell":         h.handleSell,
		"lock":         h.handleLock,
		"expand":       h.handleExpand,
		"market":       h.handleMarket,
		"list":         h.handleList,
		"buy":          h.handleBuy,
		"cancel":       h.handleCancel,
		"my-listings":  h.handleMyListings,
		"shop":         h.handleShop,
		"buy-effect":   h.handleBuyEffect,
		"buy-luck":     h.handleBuyLuck,
		"set-odds":     h.handleSetOdds,
		"grant-coins":  h.handleGrantCoins,
		"grant-effect": h.handleGrantEffect,
		"event-start":  h.handleEventStart,
		"event-end":    h.handleEventEnd,
		"luck":         h.handleLuck,
		"live":         h.handleLive,
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	reply := h.Handle(context.Background(), caller(i), i.ApplicationCommandData())
	h.respond(s, i, reply)
}

// Handle runs one slash command and returns what to answer.
func (h *Handlers) Handle(ctx context.Context, c Caller, data discordgo.ApplicationCommandInteractionData) Reply {
	ctx, span := h.tracer.Start(ctx, "InteractionCreate",
		trace.WithAttributes(
			attribute.String("command", data.Name),
			attribute.String("player_id", c.ID),
		),
	)
	defer span.End()

	fn, ok := h.routes()[data.Name]
	if !ok {
		return Reply{Content: "Unknown command", Ephemeral: true}
	}
	reply := fn(ctx, c, optionMap(data.Options))
	if reply.Ephemeral {
		span.SetStatus(codes.Error, reply.Content)
	}
	return reply
}

func caller(i *discordgo.InteractionCreate) Caller {
	u := i.User
	if i.Member != nil && i.Member.User != nil {
		u = i.Member.User
	}
	if u == nil {
		return Caller{}
	}
	name := u.GlobalName
	if i.Member != nil && i.Member.Nick != "" {
		name = i.Member.Nick
	}
	if name == "" {
		name = u.Username
	}
	return Caller{ID: u.ID, Name: name}
}

func (h *Handlers) respond(s *discordgo.Session, i *discordgo.InteractionCreate, r Reply) {
	data := &discordgo.InteractionResponseData{Content: r.Content}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		h.logger.Error("failed to respond to interaction", slog.Any("error", err))
	}
}
