package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/modkit/datastore"
	"github.com/keshon/modkit/internal/inhibitors"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/inhibitor"
	"github.com/keshon/modkit/pkg/loader"
	"github.com/keshon/modkit/pkg/module"
	"github.com/spf13/afero"
)

type testClient struct {
	store  *storage.Storage
	owners []string
}

func (c *testClient) SelfID() string { return "bot" }

func (c *testClient) IsOwner(id string) bool {
	for _, o := range c.owners {
		if o == id {
			return true
		}
	}
	return false
}

func (c *testClient) Permissions(context.Context, string, string) (int64, error) {
	return discordgo.PermissionAdministrator, nil
}

func (c *testClient) Store() *storage.Storage { return c.store }

type fixture struct {
	fs       afero.Fs
	store    *storage.Storage
	commands *command.Handler

	mu       sync.Mutex
	finished []command.CommandFinishedEvent
	blocked  []string
}

var manifests = map[string]string{
	"modules/util/ping.yaml": "kind: ping\nid: ping\n",
	"modules/fun/hello.toml": "kind = \"reply\"\nid = \"hello\"\ntext = \"Hello {user}!\"\n",
	"modules/admin/category.yaml": `kind: category
id: category
exempt: [admin]
`,
	"modules/admin/reload.yaml":  "kind: reload\nid: reload\n",
	"modules/admin/history.json": `{"kind":"history","id":"history"}`,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsCfg := datastore.DefaultConfig("/datastore.json")
	dsCfg.Fs = afero.NewMemMapFs()
	dsCfg.AutoSaveInterval = 0
	ds, err := datastore.NewWithConfig(dsCfg)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.NewWithStore(ds)
	t.Cleanup(func() { store.Close() })

	fs := afero.NewMemMapFs()
	for path, body := range manifests {
		if err := afero.WriteFile(fs, path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	kinds := loader.NewKinds()
	Register(kinds)
	l := loader.New(loader.Options{Fs: fs, Kinds: kinds})

	bus := events.NewBus()
	client := &testClient{store: store, owners: []string{"owner"}}
	inh := inhibitor.NewHandler[*command.Context](module.Options{Bus: bus, Client: client})
	if _, err := inh.Load(inhibitors.NewDisabledCategory("disabled", store, "admin")); err != nil {
		t.Fatal(err)
	}

	h := command.NewHandler(command.HandlerOptions{
		Module:     module.Options{Loader: l, Bus: bus, AutoCategorize: true},
		Client:     client,
		Inhibitors: inh,
	})
	if err := h.LoadAll(context.Background(), "modules", nil); err != nil {
		t.Fatal(err)
	}

	f := &fixture{fs: fs, store: store, commands: h}
	events.Subscribe(bus, func(e command.CommandFinishedEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.finished = append(f.finished, e)
	})
	events.Subscribe(bus, func(e command.CommandBlockedEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.blocked = append(f.blocked, e.Reason)
	})
	return f
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func (f *fixture) run(t *testing.T, userID, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) any {
	t.Helper()
	ic := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: userID}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}

	f.mu.Lock()
	before := len(f.finished)
	f.mu.Unlock()

	outcome, err := f.commands.Handle(context.Background(), ic)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if outcome != command.Handled || len(f.finished) == before {
		return nil
	}
	return f.finished[len(f.finished)-1].Result
}

func description(t *testing.T, result any) string {
	t.Helper()
	data, ok := result.(*discordgo.InteractionResponseData)
	if !ok || len(data.Embeds) == 0 {
		t.Fatalf("result %#v is not an embed reply", result)
	}
	return data.Embeds[0].Description
}

func TestBuiltInsLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, name := range []string{"ping", "hello", "category", "reload", "history"} {
		if _, ok := f.commands.Lookup(name); !ok {
			t.Errorf("%s not loaded", name)
		}
	}
	hello, _ := f.commands.Lookup("hello")
	if hello.CategoryID() != "fun" {
		t.Errorf("hello category = %q", hello.CategoryID())
	}
	reload, _ := f.commands.Lookup("reload")
	if !reload.Config().OwnerOnly {
		t.Error("reload must be owner only")
	}
}

func TestPingAndReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if got := f.run(t, "u1", "ping"); got == nil {
		t.Fatal("ping did not finish")
	} else if data := got.(*discordgo.InteractionResponseData); data.Embeds[0].Title != "Pong!" {
		t.Errorf("ping = %+v", data.Embeds[0])
	}

	if got := f.run(t, "u1", "hello"); got != "Hello <@u1>!" {
		t.Errorf("hello = %v", got)
	}
}

func TestCategoryToggleBlocksCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	got := description(t, f.run(t, "u1", "category", stringOpt("state", "disable"), stringOpt("category", "FUN")))
	if got != "Disabled `fun`." {
		t.Errorf("disable = %q", got)
	}
	if f.run(t, "u1", "hello") != nil {
		t.Error("hello should be blocked")
	}
	if len(f.blocked) != 1 || f.blocked[0] != inhibitors.ReasonDisabled {
		t.Errorf("blocked = %v", f.blocked)
	}

	status := description(t, f.run(t, "u1", "category", stringOpt("state", "status")))
	if !strings.Contains(status, "fun") {
		t.Errorf("status = %q", status)
	}

	refused := description(t, f.run(t, "u1", "category", stringOpt("state", "disable"), stringOpt("category", "admin")))
	if !strings.Contains(refused, "can't be disabled") {
		t.Errorf("exempt = %q", refused)
	}
	unknown := description(t, f.run(t, "u1", "category", stringOpt("state", "disable"), stringOpt("category", "nope")))
	if !strings.Contains(unknown, "no `nope` category") {
		t.Errorf("unknown = %q", unknown)
	}

	description(t, f.run(t, "u1", "category", stringOpt("state", "enable"), stringOpt("category", "fun")))
	if got := f.run(t, "u1", "hello"); got != "Hello <@u1>!" {
		t.Errorf("hello after enable = %v", got)
	}
}

func TestReloadReadsChangedFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := afero.WriteFile(f.fs, "modules/fun/hello.toml", []byte("kind = \"reply\"\nid = \"hello\"\ntext = \"Hi again\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if f.run(t, "u1", "reload", stringOpt("command", "hello")) != nil {
		t.Fatal("reload should be owner only")
	}

	got := description(t, f.run(t, "owner", "reload", stringOpt("command", "hello")))
	if got != "Reloaded `hello`." {
		t.Errorf("reload = %q", got)
	}
	if got := f.run(t, "u1", "hello"); got != "Hi again" {
		t.Errorf("hello after reload = %v", got)
	}

	missing := description(t, f.run(t, "owner", "reload", stringOpt("command", "nope")))
	if !strings.Contains(missing, "Can't reload") {
		t.Errorf("missing = %q", missing)
	}
	if all := description(t, f.run(t, "owner", "reload")); all != "Reloaded all commands." {
		t.Errorf("reload all = %q", all)
	}
}

func TestHistoryListsNewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if got := description(t, f.run(t, "u1", "history")); got != "No commands recorded yet." {
		t.Errorf("empty history = %q", got)
	}

	at := time.Date(2025, 3, 4, 5, 6, 0, 0, time.UTC)
	for _, name := range []string{"ping", "hello"} {
		if err := f.store.AppendCommandToHistory("g1", storage.CommandHistoryRecord{UserID: "u1", Command: name, Datetime: at}); err != nil {
			t.Fatal(err)
		}
	}

	got := description(t, f.run(t, "u1", "history"))
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "/hello") || !strings.Contains(lines[1], "/ping") {
		t.Errorf("history = %q", got)
	}
	if !strings.Contains(lines[0], "2025-03-04") {
		t.Errorf("date missing in %q", lines[0])
	}
}
