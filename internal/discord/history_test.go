package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/datastore"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/command"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func newStore(t *testing.T) *storage.Storage {
	t.Helper()
	cfg := datastore.DefaultConfig("/datastore.json")
	cfg.Fs = afero.NewMemMapFs()
	cfg.AutoSaveInterval = 0
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s := storage.NewWithStore(ds)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryMiddleware(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	exec := command.Chain(func(context.Context, *command.Context) (any, error) {
		return "ok", nil
	}, HistoryMiddleware(store, zerolog.Nop()))

	c := &command.Context{
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		GuildID:   "g1",
		ChannelID: "c1",
		Name:      "mod kick",
		Options: command.Options{
			command.OptionSubcommand: "kick",
			"user":                   &discordgo.User{ID: "u2"},
			"reason":                 "spam",
			"note":                   nil,
		},
	}
	if res, err := exec(context.Background(), c); err != nil || res != "ok" {
		t.Fatalf("exec = %v, %v", res, err)
	}

	dm := &command.Context{Author: &discordgo.User{ID: "u1"}, Name: "ping"}
	if _, err := exec(context.Background(), dm); err != nil {
		t.Fatal(err)
	}

	got, err := store.FetchCommandHistory("g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("history = %+v", got)
	}
	rec := got[0]
	if rec.Command != "mod kick" || rec.UserID != "u1" || rec.Username != "alice" || rec.ChannelID != "c1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Param != "reason=spam user=<@u2>" {
		t.Errorf("param = %q", rec.Param)
	}
	if time.Since(rec.Datetime) > time.Minute {
		t.Errorf("datetime = %v", rec.Datetime)
	}
}
