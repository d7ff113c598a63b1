package realtime

import (
	"context"
	"errors"
	"log"
	"time"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

// Options wires the coordinator to its stores. Presence and Guard are
// optional.
type Options struct {
	Chats    repositories.ChatRepository
	Messages repositories.MessageRepository
	Offline  repositories.OfflineRepository
	Presence repositories.PresenceRepository
	Guard    ClientMessageGuard

	OfflineTTL         time.Duration
	ProbeBackoff       []time.Duration
	TypingTTL          time.Duration
	SessionIdleTimeout time.Duration
	CleanupInterval    time.Duration
}

// Coordinator owns the registry and hub and routes connection lifecycle,
// inbound frames and HTTP calls to the realtime components.
type Coordinator struct {
	registry *ws.Registry
	hub      *ws.Hub
	chats    repositories.ChatRepository
	trail    repositories.PresenceRepository
	tasks    *tasks

	presence   *PresenceBroadcaster
	membership *Membership
	delivery   *DeliveryPipeline
	offline    *OfflineQueue
	receipts   *ReceiptEngine
	typing     *TypingTracker
	reactions  *ReactionSync
	janitor    *Janitor
}

var _ ws.SessionHandler = (*Coordinator)(nil)

func NewCoordinator(opts Options) *Coordinator {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = 10 * time.Second
	}
	if opts.SessionIdleTimeout <= 0 {
		opts.SessionIdleTimeout = 10 * time.Minute
	}

	registry := ws.NewRegistry()
	hub := ws.NewHub()
	t := &tasks{}

	receipts := newReceiptEngine(opts.Messages, hub)
	offline := newOfflineQueue(opts.Offline, hub, opts.OfflineTTL)
	typing := newTypingTracker(hub)

	c := &Coordinator{
		registry: registry,
		hub:      hub,
		chats:    opts.Chats,
		trail:    opts.Presence,
		tasks:    t,
		presence: newPresenceBroadcaster(registry, hub, opts.Chats, opts.Presence, opts.ProbeBackoff, t),
		membership: &Membership{
			registry: registry,
			hub:      hub,
			chats:    opts.Chats,
			receipts: receipts,
			tasks:    t,
		},
		delivery: &DeliveryPipeline{
			chats:    opts.Chats,
			messages: opts.Messages,
			hub:      hub,
			offline:  offline,
			receipts: receipts,
			guard:    opts.Guard,
			tasks:    t,
			now:      time.Now,
		},
		offline:   offline,
		receipts:  receipts,
		typing:    typing,
		reactions: newReactionSync(opts.Chats, opts.Messages, hub),
	}
	c.janitor = &Janitor{
		offline:   offline,
		trail:     opts.Presence,
		registry:  registry,
		typing:    typing,
		interval:  opts.CleanupInterval,
		idle:      opts.SessionIdleTimeout,
		typingTTL: opts.TypingTTL,
		now:       time.Now,
	}
	return c
}

// Connect attaches a freshly authenticated channel.
func (c *Coordinator) Connect(ctx context.Context, s ws.Session) error {
	if s.ChannelID == "" || s.UserID == "" || s.Sink == nil {
		return validationError("channel id, user id and sink are required")
	}
	if !c.hub.Attach(s.ChannelID, s.Sink, s.Info) {
		return validationError("channel %s is already connected", s.ChannelID)
	}
	// The personal group is joined before the user becomes visible as online.
	c.membership.JoinPersonalChannel(s.ChannelID, s.UserID)

	first := c.presence.OnConnect(ctx, s)
	observability.SetOnlineUsers(c.registry.OnlineCount())
	if !first {
		return nil
	}
	n, err := c.offline.DrainOnConnect(ctx, s.UserID)
	if err != nil {
		log.Printf("offline drain failed user_id=%s: %v", s.UserID, err)
	} else if n > 0 {
		log.Printf("offline drain delivered user_id=%s count=%d", s.UserID, n)
	}
	return nil
}

// Disconnect releases a channel. Typing state is cleared once the user has
// no channel left.
func (c *Coordinator) Disconnect(ctx context.Context, channelID string) {
	userID, last := c.presence.OnDisconnect(ctx, channelID)
	if last {
		c.typing.ClearUser(userID)
	}
	observability.SetOnlineUsers(c.registry.OnlineCount())
}

// HandleFrame dispatches one inbound client frame.
func (c *Coordinator) HandleFrame(ctx context.Context, s ws.Session, f ws.InboundFrame) error {
	switch f.Action {
	case ws.ActionJoinChat:
		return c.membership.JoinChatChannel(ctx, s.ChannelID, f.ChatID)
	case ws.ActionLeaveChat:
		c.membership.LeaveChatChannel(s.ChannelID, f.ChatID)
		return nil
	case ws.ActionTyping:
		return c.SetTyping(s.ChannelID, f.ChatID, f.IsTyping)
	case ws.ActionMarkRead:
		_, err := c.MarkRead(ctx, f.ChatID, s.UserID)
		return err
	case ws.ActionSendMessage:
		_, err := c.SendMessage(ctx, SendInput{
			ChatID:          f.ChatID,
			SenderID:        s.UserID,
			Text:            f.Text,
			Attachments:     f.Attachments,
			ClientMessageID: f.ClientMessageID,
		})
		return err
	case ws.ActionAddReaction:
		_, err := c.AddReaction(ctx, f.MessageID, s.UserID, f.Emoji)
		return err
	case ws.ActionRemoveReaction:
		_, err := c.RemoveReaction(ctx, f.MessageID, s.UserID, f.Emoji)
		return err
	case ws.ActionSetStatus:
		return c.presence.SetStatus(ctx, s.UserID, f.Status)
	default:
		return validationError("unknown action %q", f.Action)
	}
}

func (c *Coordinator) ErrorCode(err error) string {
	return ErrorCode(err)
}

func (c *Coordinator) SendMessage(ctx context.Context, in SendInput) (models.MessageDTO, error) {
	return c.delivery.Send(ctx, in)
}

func (c *Coordinator) ListMessages(ctx context.Context, chatID, userID string, before *time.Time, limit int64) ([]models.MessageDTO, error) {
	return c.delivery.ListMessages(ctx, chatID, userID, before, limit)
}

func (c *Coordinator) DeleteMessage(ctx context.Context, messageID, userID string) error {
	return c.delivery.DeleteMessage(ctx, messageID, userID)
}

// MarkRead marks chatID read for userID and republishes unread counts.
func (c *Coordinator) MarkRead(ctx context.Context, chatID, userID string) (int64, error) {
	chat, err := c.memberChat(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	n, err := c.receipts.MarkRead(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	members := append([]string(nil), chat.Members...)
	bg := context.WithoutCancel(ctx)
	c.tasks.Go(func() { c.receipts.BroadcastUnread(bg, chatID, members) })
	return n, nil
}

func (c *Coordinator) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	if _, err := c.memberChat(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return c.receipts.UnreadCount(ctx, chatID, userID)
}

func (c *Coordinator) AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	return c.reactions.Add(ctx, messageID, userID, emoji)
}

func (c *Coordinator) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	return c.reactions.Remove(ctx, messageID, userID, emoji)
}

// SetTyping records typing state for a channel that has the chat open.
func (c *Coordinator) SetTyping(channelID, chatID string, isTyping bool) error {
	userID, ok := c.registry.UserFor(channelID)
	if !ok {
		return validationError("channel %s is not registered", channelID)
	}
	if !c.hub.InChat(channelID, chatID) {
		return permissionDenied("join the chat before typing")
	}
	c.typing.SetTyping(chatID, userID, isTyping)
	return nil
}

func (c *Coordinator) SetStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	return c.presence.SetStatus(ctx, userID, status)
}

// SendToUser delivers a notification to userID's live channels or queues
// it when none is reachable.
func (c *Coordinator) SendToUser(ctx context.Context, userID, event string, payload any) error {
	if userID == "" || event == "" {
		return validationError("user id and event are required")
	}
	live, err := c.offline.Deliver(ctx, userID, models.EnvelopeNotification, events.Notification(event, payload))
	if err != nil {
		return err
	}
	if !live {
		log.Printf("notification queued user_id=%s event=%s", userID, event)
	}
	return nil
}

// PresenceView combines live status with the durable trail.
type PresenceView struct {
	UserID   string                   `json:"userId"`
	Status   models.PresenceStatus    `json:"status"`
	Channels int                      `json:"channels"`
	LastSeen *time.Time               `json:"lastSeen,omitempty"`
	Sessions []models.PresenceSession `json:"sessions,omitempty"`
}

func (c *Coordinator) Presence(ctx context.Context, userID string) (PresenceView, error) {
	if userID == "" {
		return PresenceView{}, validationError("user id is required")
	}
	view := PresenceView{
		UserID:   userID,
		Status:   c.presence.Status(userID),
		Channels: len(c.registry.ChannelsFor(userID)),
	}
	if c.trail == nil {
		return view, nil
	}
	rec, err := c.trail.GetPresence(ctx, userID)
	if errors.Is(err, repositories.ErrPresenceNotFound) {
		return view, nil
	}
	if err != nil {
		log.Printf("presence trail read failed user_id=%s: %v", userID, err)
		return view, nil
	}
	lastSeen := rec.LastSeen
	view.LastSeen = &lastSeen
	view.Sessions = rec.Sessions
	return view, nil
}

// Stats is a point-in-time view of the connection registry.
type Stats struct {
	OnlineUsers int `json:"onlineUsers"`
	Channels    int `json:"channels"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		OnlineUsers: c.registry.OnlineCount(),
		Channels:    len(c.registry.ChannelIDs()),
	}
}

// RunJanitor blocks running periodic cleanup until ctx is cancelled.
func (c *Coordinator) RunJanitor(ctx context.Context) {
	c.janitor.Run(ctx)
}

// Wait blocks until background fan-out has finished.
func (c *Coordinator) Wait() {
	c.tasks.Wait()
}

func (c *Coordinator) memberChat(ctx context.Context, chatID, userID string) (models.Chat, error) {
	chat, err := c.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, lookupError("get chat", err)
	}
	if !chat.IsMember(userID) {
		return models.Chat{}, permissionDenied("not a chat member")
	}
	return chat, nil
}
