package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/mossy-p/call-signaling/internal/chat"
)

var (
	primary   = lipgloss.Color("#22d3ee")
	secondary = lipgloss.Color("#7C3AED")
	danger    = lipgloss.Color("#EF4444")
	muted     = lipgloss.Color("#6B7280")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primary)
	selfStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(secondary)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(danger)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB")).Background(primary).Padding(0, 1)
)

func printTitle(s string) {
	fmt.Println(titleStyle.Render(s))
}

func printInfo(s string) {
	fmt.Println(mutedStyle.Render(s))
}

func printStatus(state string) {
	fmt.Println(statusStyle.Render("call " + state))
}

func printError(s string) {
	fmt.Println(errorStyle.Render("error: " + s))
}

func printChat(e chat.Entry) {
	who := peerStyle.Render(shortID(e.SenderID))
	if e.Self {
		who = selfStyle.Render("you")
	}
	fmt.Printf("%s %s %s\n", mutedStyle.Render(e.ReceivedAt.Format("15:04:05")), who, e.Content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
