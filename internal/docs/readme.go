// Package docs renders a Markdown command reference from a loaded command
// registry.
package docs

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/keshon/modkit/pkg/command"
	"github.com/spf13/afero"
)

// DefaultTemplate is used when no template file exists.
const DefaultTemplate = `# Commands

{{.CommandSections}}`

// CommandSections renders one "### category" section per category, sorted
// by weight and then by name. Categories without a weight sort last.
func CommandSections(cmds *command.Handler, categoryWeights map[string]int) string {
	cats := cmds.Categories()
	weight := func(id string) int {
		if w, ok := categoryWeights[id]; ok {
			return w
		}
		return len(categoryWeights) + 1
	}
	sort.SliceStable(cats, func(i, j int) bool {
		wi, wj := weight(cats[i].ID()), weight(cats[j].ID())
		if wi == wj {
			return cats[i].ID() < cats[j].ID()
		}
		return wi < wj
	})

	var buf bytes.Buffer
	for _, cat := range cats {
		var list []command.Command
		for _, m := range cat.Modules() {
			if c, ok := m.(command.Command); ok {
				list = append(list, c)
			}
		}
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "### %s\n\n", cat.ID())
		for _, c := range list {
			fmt.Fprintf(&buf, "- **%s**: %s\n", display(c.Name()), describe(c.Config()))
		}
	}
	return buf.String()
}

// Render executes tpl with the command sections.
func Render(w io.Writer, tpl string, cmds *command.Handler, categoryWeights map[string]int) error {
	t, err := template.New("readme").Parse(tpl)
	if err != nil {
		return err
	}
	data := struct {
		CommandSections string
	}{
		CommandSections: CommandSections(cmds, categoryWeights),
	}
	return t.Execute(w, data)
}

// UpdateReadme renders tmplPath into outPath. A missing template falls back
// to DefaultTemplate.
func UpdateReadme(fs afero.Fs, tmplPath, outPath string, cmds *command.Handler, categoryWeights map[string]int) error {
	tpl := DefaultTemplate
	if tmplPath != "" {
		data, err := afero.ReadFile(fs, tmplPath)
		switch {
		case err == nil:
			tpl = string(data)
		case !isNotExist(fs, tmplPath):
			return err
		}
	}

	var out bytes.Buffer
	if err := Render(&out, tpl, cmds, categoryWeights); err != nil {
		return err
	}
	return afero.WriteFile(fs, outPath, out.Bytes(), 0o644)
}

func isNotExist(fs afero.Fs, path string) bool {
	ok, err := afero.Exists(fs, path)
	return err == nil && !ok
}

// display prefixes slash command names. Names with spaces or a leading
// capital are context menu entries and stay as they are.
func display(name string) string {
	if strings.Contains(name, " ") || startsWithUpper(name) {
		return name
	}
	return "/" + name
}

func describe(cfg command.Config) string {
	desc := cfg.Description
	if desc == "" {
		desc = "No description"
	}
	var tags []string
	if len(cfg.Aliases) > 0 {
		tags = append(tags, "aliases: "+strings.Join(cfg.Aliases, ", "))
	}
	if cfg.OwnerOnly {
		tags = append(tags, "owner only")
	}
	if cfg.Channel != command.ChannelAny {
		tags = append(tags, string(cfg.Channel)+" only")
	}
	if len(tags) > 0 {
		desc += " (" + strings.Join(tags, "; ") + ")"
	}
	return desc
}

func startsWithUpper(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}
