package cmd

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/connectchat/internal/present"
)

func useLine(cmd *cobra.Command) string {
	name := cmd.CommandPath()
	if !cmd.HasParent() && present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		name = present.MakeGradientText(present.StdoutStyles().AppName, name)
	}
	args := "[OPTIONS]"
	if cmd.HasAvailableSubCommands() {
		args = "<COMMAND> [OPTIONS]"
	}
	if use, _, ok := strings.Cut(cmd.Use, " "); ok && use != "" {
		args = "[OPTIONS] " + strings.TrimPrefix(cmd.Use, use+" ")
	}
	return fmt.Sprintf("%s %s", name, present.StdoutStyles().CliArgs.Render(args))
}

func printFlag(out *strings.Builder, styles present.Styles, f *flag.Flag) {
	if f.Hidden {
		return
	}
	if f.Shorthand == "" {
		fmt.Fprintf(out, "  %-44s %s\n",
			styles.Flag.Render("--"+f.Name),
			styles.FlagDesc.Render(f.Usage),
		)
		return
	}
	fmt.Fprintf(out, "  %s%s %-40s %s\n",
		styles.Flag.Render("-"+f.Shorthand),
		styles.FlagComma,
		styles.Flag.Render("--"+f.Name),
		styles.FlagDesc.Render(f.Usage),
	)
}

func usageFunc(cmd *cobra.Command) error {
	styles := present.StdoutStyles()

	var out strings.Builder
	fmt.Fprintf(&out, "Usage:\n  %s\n\n", useLine(cmd))

	if cmd.HasAvailableSubCommands() {
		out.WriteString("Commands:\n")
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			fmt.Fprintf(&out, "  %-24s %s\n", styles.Flag.Render(sub.Name()), styles.FlagDesc.Render(sub.Short))
		}
		out.WriteString("\n")
	}

	if cmd.HasAvailableFlags() {
		out.WriteString("Options:\n")
		cmd.LocalFlags().VisitAll(func(f *flag.Flag) { printFlag(&out, styles, f) })
		cmd.InheritedFlags().VisitAll(func(f *flag.Flag) { printFlag(&out, styles, f) })
	}

	if cmd.HasExample() {
		if code, ok := examples[cmd.Example]; ok {
			fmt.Fprintf(&out, "\nExample:\n  %s\n  %s\n",
				styles.Comment.Render("# "+cmd.Example),
				cheapHighlighting(styles, code),
			)
		}
	}

	_, err := fmt.Fprint(cmd.OutOrStdout(), out.String())
	return err //nolint:wrapcheck
}
