package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for factorygrid.

Bash:
  $ source <(factorygrid completion bash)

Zsh (with compinit enabled):
  $ factorygrid completion zsh > "${fpath[1]}/_factorygrid"

Fish:
  $ factorygrid completion fish > ~/.config/fish/completions/factorygrid.fish

PowerShell:
  PS> factorygrid completion powershell | Out-String | Invoke-Expression

Format flags (--format) complete to the supported artifact formats.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// completeFormats completes a comma-separated list of artifact formats,
// offering only those not yet listed. With no arguments all formats are
// offered.
func completeFormats(allowed ...string) cobra.CompletionFunc {
	if len(allowed) == 0 {
		for f := range pipeline.ValidFormats {
			allowed = append(allowed, f)
		}
		slices.Sort(allowed)
	}
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		var done []string
		prefix := ""
		if i := strings.LastIndexByte(toComplete, ','); i >= 0 {
			prefix = toComplete[:i+1]
			done = parseFormats(toComplete[:i])
		}

		var out []cobra.Completion
		for _, f := range allowed {
			if !slices.Contains(done, f) {
				out = append(out, prefix+f)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
	}
}
