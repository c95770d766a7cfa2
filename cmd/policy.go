package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"valorbot/pkg/intent"
	"valorbot/pkg/toolpolicy"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show which tools each intent may use",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		policy := toolpolicy.Default()
		if err := policy.Validate(); err != nil {
			return err
		}
		return renderPolicyTable(cmd.OutOrStdout(), policy)
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
}

func renderPolicyTable(out io.Writer, policy *toolpolicy.Table) error {
	rows := make([][]string, 0, len(intent.Intents()))
	for _, i := range intent.Intents() {
		resolved := policy.Resolve(intent.Classification{Intent: i})
		rows = append(rows, []string{
			intent.DefaultSymbol(i) + " " + i.String(),
			joinOrDash(resolved.Allowed),
			joinOrDash(resolved.Priority),
			joinOrDash(resolved.Restricted),
			maxCountLabel(resolved.MaxCount),
		})
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("INTENT", "ALLOWED", "PRIORITY", "RESTRICTED", "MAX").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	_, err := fmt.Fprintln(out, t.Render())
	return err
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func maxCountLabel(n int) string {
	if n <= 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
