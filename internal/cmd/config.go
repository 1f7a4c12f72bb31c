package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/connectchat/internal/config"
	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/present"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		RunE: func(*cobra.Command, []string) error {
			// settings stay editable when they fail to parse.
			return rt.editSettings()
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open settings in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return rt.editSettings()
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			return showSettings(os.Stdout, rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := resetSettings(rt.cfg.SettingsPath); err != nil {
				return err
			}
			rt.stderrf("\nSettings restored to defaults!\n\n  %s %s\n\n",
				present.StderrStyles().Comment.Render("Your old settings have been saved to:"),
				present.StderrStyles().Link.Render(rt.cfg.SettingsPath+".bak"),
			)
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:       "dirs [config|cache]",
		Short:     "Print config and cache directories",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"config", "cache"},
		RunE: func(_ *cobra.Command, args []string) error {
			printDirs(os.Stdout, &rt.cfg, args)
			return nil
		},
	})

	return configCmd
}

func (rt *runtime) editSettings() error {
	if err := config.WriteConfigFile(rt.cfg.SettingsPath); err != nil {
		return errs.Wrap(err, "Could not write your settings file.")
	}

	c, err := editor.Cmd(filepath.Base(os.Args[0]), rt.cfg.SettingsPath)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not edit your settings file."}
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Error{Err: err, Reason: fmt.Sprintf(
			"Missing %s.",
			present.StderrStyles().InlineCode.Render("$EDITOR"),
		)}
	}

	rt.stderrf("Wrote config file to: %s\n", rt.cfg.SettingsPath)
	return nil
}

// showSettings prints cfg as YAML with API keys masked.
func showSettings(w io.Writer, cfg config.Config) error {
	apis := make(config.APIs, len(cfg.APIs))
	for i, api := range cfg.APIs {
		if api.APIKey != "" {
			api.APIKey = "********"
		}
		apis[i] = api
	}
	cfg.APIs = apis

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) //nolint:mnd
	if err := enc.Encode(cfg.Settings); err != nil {
		return errs.Wrap(err, "Could not print your settings.")
	}
	if err := enc.Close(); err != nil {
		return errs.Wrap(err, "Could not print your settings.")
	}
	return nil
}

// resetSettings backs the settings file up to path.bak and writes the
// defaults in its place.
func resetSettings(path string) error {
	inputFile, err := os.Open(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Couldn't open config file."}
	}
	defer inputFile.Close() //nolint:errcheck

	outputFile, err := os.Create(path + ".bak")
	if err != nil {
		return errs.Error{Err: err, Reason: "Couldn't backup config file."}
	}
	defer outputFile.Close() //nolint:errcheck

	if _, err := io.Copy(outputFile, inputFile); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't write config file."}
	}
	if err := os.Remove(path); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't remove config file."}
	}
	if err := config.WriteConfigFile(path); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't write new config file."}
	}
	return nil
}

func printDirs(w io.Writer, cfg *config.Config, args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			fmt.Fprintln(w, filepath.Dir(cfg.SettingsPath))
			return
		case "cache":
			fmt.Fprintln(w, cfg.CachePath)
			return
		}
	}

	fmt.Fprintf(w, "Configuration: %s\n", filepath.Dir(cfg.SettingsPath))
	//nolint:mnd
	fmt.Fprintf(w, "%*sCache: %s\n", 8, " ", cfg.CachePath)
}
