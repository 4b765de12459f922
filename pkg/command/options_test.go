package command

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	def := &discordgo.ApplicationCommand{
		Name: "queue",
		Options: []*discordgo.ApplicationCommandOption{{
			Type: discordgo.ApplicationCommandOptionSubCommandGroup,
			Name: "track",
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Name: "add",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "url"},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "position"},
					{Type: discordgo.ApplicationCommandOptionBoolean, Name: "shuffle"},
					{Type: discordgo.ApplicationCommandOptionUser, Name: "for"},
				},
			}},
		}},
	}
	alice := &discordgo.User{ID: "u1", Username: "alice"}
	data := discordgo.ApplicationCommandInteractionData{
		Name: "queue",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Type: discordgo.ApplicationCommandOptionSubCommandGroup,
			Name: "track",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Name: "add",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "url", Value: "https://example.com"},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "position", Value: float64(3)},
					{Type: discordgo.ApplicationCommandOptionUser, Name: "for", Value: "u1"},
				},
			}},
		}},
		Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Users: map[string]*discordgo.User{"u1": alice},
		},
	}

	got := normalizeOptions(data, def)

	if got.SubcommandGroup() != "track" || got.Subcommand() != "add" {
		t.Errorf("path = %q %q, want track add", got.SubcommandGroup(), got.Subcommand())
	}
	if got.String("url") != "https://example.com" {
		t.Errorf("url = %v", got["url"])
	}
	if v, ok := got["position"].(int64); !ok || v != 3 {
		t.Errorf("position = %#v, want int64(3)", got["position"])
	}
	if got.User("for") != alice {
		t.Errorf("for = %v, want resolved user", got["for"])
	}
	if v, ok := got["shuffle"]; !ok || v != false {
		t.Errorf("shuffle = %#v, %v; want false", v, ok)
	}
	if len(got) != 6 {
		t.Errorf("options = %v, want 6 keys", got)
	}
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	t.Parallel()

	def := &discordgo.ApplicationCommand{
		Name: "roll",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "sides"},
			{Type: discordgo.ApplicationCommandOptionBoolean, Name: "secret"},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role"},
		},
	}

	got := normalizeOptions(discordgo.ApplicationCommandInteractionData{Name: "roll"}, def)

	tests := []struct {
		name string
		want any
		has  bool
	}{
		{"sides", nil, false},
		{"secret", false, true},
		{"role", nil, false},
	}
	for _, tt := range tests {
		v, ok := got[tt.name]
		if !ok {
			t.Errorf("%s missing from options", tt.name)
			continue
		}
		if v != tt.want {
			t.Errorf("%s = %#v, want %#v", tt.name, v, tt.want)
		}
		if got.Has(tt.name) != tt.has {
			t.Errorf("Has(%s) = %v, want %v", tt.name, got.Has(tt.name), tt.has)
		}
	}
	if _, ok := got["undeclared"]; ok {
		t.Error("undeclared option present")
	}
}

func TestNormalizeOptionsWithoutDefinition(t *testing.T) {
	t.Parallel()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "say",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "text", Value: "hi"},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Value: "r9"},
		},
	}
	got := normalizeOptions(data, nil)
	if got.String("text") != "hi" {
		t.Errorf("text = %v", got["text"])
	}
	// Unresolved ids stay raw.
	if got["role"] != "r9" {
		t.Errorf("role = %#v, want raw id", got["role"])
	}
}
