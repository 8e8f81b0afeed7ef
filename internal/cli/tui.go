package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/autotrackr/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive dashboard",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{tui: true})
	if err != nil {
		return err
	}
	defer a.Close()

	p := tea.NewProgram(tui.NewApp(a.service, a.store), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
