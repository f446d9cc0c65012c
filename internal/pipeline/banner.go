package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Diagnostic block styles. Each stage prints a delimited block naming
// its inputs and outputs before acting, so "nothing to do" reads
// differently from "something broke".
var (
	blockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	errTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	kvKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// block renders one diagnostic block to stderr. lines are key/value
// pairs already formatted by the caller.
func block(title string, failed bool, lines ...string) {
	style := titleStyle
	if failed {
		style = errTitleStyle
	}
	body := style.Render(title)
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}
	fmt.Fprintln(os.Stderr, blockStyle.Render(body))
}

// kv formats a single diagnostic line.
func kv(key string, value any) string {
	return kvKeyStyle.Render(key+":") + " " + fmt.Sprint(value)
}
