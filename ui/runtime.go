package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"fmgo/client"
)

func Start(server *client.Server) {
	browser := CreateLayoutBrowser(server)
	if err := tea.NewProgram(browser).Start(); err != nil {
		panic(err)
	}
}
