package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tleino/xin/internal/config"
	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/ui"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report what the X server offers to xin",
	Long: `Connect to the display and check the extensions and queries xin relies on:
XTEST for fake input, XKEYBOARD for layout switching, the pointer, the
input focus and the sentinel key used to wait for keymap reloads.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := display.Open(config.Get().Display.Name)
		if err != nil {
			return err
		}
		defer x.Close()

		report := x.Probe()
		if doctorJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			writeReport(cmd.OutOrStdout(), report)
		}

		if !report.OK() {
			return fmt.Errorf("display %s is missing capabilities", report.Display)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(doctorCmd)
}

// writeReport renders the capability report as a table
func writeReport(w io.Writer, report display.Report) {
	var output strings.Builder

	// Header
	output.WriteString(ui.FormatHeader("DISPLAY", fmt.Sprintf("%s (%s)", report.Display, report.Vendor)))
	output.WriteString("\n\n")

	rows := [][]string{}
	for _, c := range report.Capabilities {
		detail := c.Detail
		if !c.OK {
			detail = ui.WarningStyle.Render(detail)
		}
		rows = append(rows, []string{ui.FormatCheck(c.OK), c.Name, detail})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.TableHeaderStyle
			case col == 1: // Capability column
				return ui.TableNameStyle
			default:
				return ui.TableCellStyle
			}
		}).
		Headers("", "CAPABILITY", "DETAIL").
		Rows(rows...)

	output.WriteString(t.Render())
	output.WriteString("\n")

	if !report.OK() {
		output.WriteString("\n")
		output.WriteString(ui.FormatControl("xin -s", "works without XTEST"))
		output.WriteString("\n")
	}

	fmt.Fprint(w, output.String())
}
