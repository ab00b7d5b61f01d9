package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/pipeline"
)

// completionCommand prints shell completion scripts.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Print a shell completion script",
		Long: `Print a completion script for bash, zsh, fish or powershell.

Besides subcommands and flags, the script completes --format with the
output formats, --from with the input formats and input arguments with
morphology files (swc, asc, dat, xml, ...).

Bash:
  $ source <(morphkit completion bash)
  $ morphkit completion bash > /etc/bash_completion.d/morphkit

Zsh:
  $ morphkit completion zsh > "${fpath[1]}/_morphkit"

Fish:
  $ morphkit completion fish > ~/.config/fish/completions/morphkit.fish

PowerShell:
  PS> morphkit completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}

	return cmd
}

// morphologyExts lists the file extensions offered for input arguments.
// Neurolucida writes upper-case extensions, so both cases are listed.
func morphologyExts() []string {
	var exts []string
	for _, f := range pipeline.Names(pipeline.ValidFormats) {
		if f == format.Streamlines {
			continue
		}
		exts = append(exts, f, strings.ToUpper(f))
	}
	return exts
}

// completeInputs completes the first n positional arguments with morphology
// files. n < 0 completes every argument.
func completeInputs(n int) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if n >= 0 && len(args) >= n {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return morphologyExts(), cobra.ShellCompDirectiveFilterFileExt
	}
}
