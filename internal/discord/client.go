package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/internal/storage"
)

// Client is the command.Client backed by a live session. Commands reach the
// guild store through Store.
type Client struct {
	session *discordgo.Session
	store   *storage.Storage
	owners  map[string]struct{}
}

func NewClient(session *discordgo.Session, store *storage.Storage, ownerIDs []string) *Client {
	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			owners[id] = struct{}{}
		}
	}
	return &Client{session: session, store: store, owners: owners}
}

// NewSession creates a session with the intents the bot relies on.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return s, nil
}

func (c *Client) SelfID() string {
	if c.session == nil || c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

func (c *Client) IsOwner(userID string) bool {
	_, ok := c.owners[userID]
	return ok
}

// Permissions resolves from the state cache and falls back to the REST API
// when the guild or channel is not cached.
func (c *Client) Permissions(ctx context.Context, userID, channelID string) (int64, error) {
	if c.session == nil {
		return 0, fmt.Errorf("permissions of %s: no session", userID)
	}
	if c.session.State != nil {
		if perms, err := c.session.State.UserChannelPermissions(userID, channelID); err == nil {
			return perms, nil
		}
	}
	perms, err := c.session.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("permissions of %s in %s: %w", userID, channelID, err)
	}
	return perms, nil
}

func (c *Client) Store() *storage.Storage      { return c.store }
func (c *Client) Session() *discordgo.Session { return c.session }
