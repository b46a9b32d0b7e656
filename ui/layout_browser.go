package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"fmgo/client"
	"fmgo/schema"
)

type (
	// LayoutBrowser lists the database's layouts; selecting one shows
	// its field metadata.
	LayoutBrowser struct {
		server  *client.Server
		layouts []string
		cursor  int
		fields  []string
		err     error
	}

	layoutNamesMsg struct {
		names []string
		err   error
	}

	layoutFieldsMsg struct {
		fields []string
		err    error
	}
)

func CreateLayoutBrowser(server *client.Server) LayoutBrowser {
	return LayoutBrowser{
		server: server,
		cursor: 0,
	}
}

func (b LayoutBrowser) Init() tea.Cmd {
	return func() tea.Msg {
		names, err := b.server.LayoutNames()
		return layoutNamesMsg{names: names, err: err}
	}
}

func (b LayoutBrowser) loadFields(name string) tea.Cmd {
	return func() tea.Msg {
		layout, err := b.server.Layout(name)
		if err != nil {
			return layoutFieldsMsg{err: err}
		}
		fields := lo.Map(
			layout.Fields(),
			func(f *schema.Field, _ int) string {
				return fmt.Sprintf("%s (%s)", f.Name, f.Result)
			},
		)
		return layoutFieldsMsg{fields: fields}
	}
}

func (b LayoutBrowser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case layoutNamesMsg:
		b.layouts = msg.names
		b.err = msg.err
		return b, nil
	case layoutFieldsMsg:
		b.fields = msg.fields
		b.err = msg.err
		return b, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return b, tea.Quit
		case "up", "k":
			if b.cursor > 0 {
				b.cursor -= 1
				b.fields = nil
			}
		case "down", "j":
			if b.cursor < len(b.layouts)-1 {
				b.cursor += 1
				b.fields = nil
			}
		case "enter":
			if len(b.layouts) > 0 {
				return b, b.loadFields(b.layouts[b.cursor])
			}
		}
	}
	return b, nil
}

func (b LayoutBrowser) View() string {
	output := "FMGO\n\n"
	output += "Database: " + b.server.Database() + "\n\n"

	if b.err != nil {
		output += "Error: " + b.err.Error() + "\n"
		output += "\nPress q to quit.\n"
		return output
	}
	if len(b.layouts) == 0 {
		output += "Loading layouts...\n"
		return output
	}

	for i, name := range b.layouts {
		marker := "  "
		if i == b.cursor {
			marker = "> "
		}
		output += marker + name + "\n"
	}

	if len(b.fields) > 0 {
		output += "\nFields of " + b.layouts[b.cursor] + ":\n"
		for _, field := range b.fields {
			output += "  " + field + "\n"
		}
	}

	output += "\nUp/down to move, enter to inspect, q to quit.\n"
	return output
}
