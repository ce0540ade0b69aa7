package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zulandar/airminal/internal/api"
	"github.com/zulandar/airminal/internal/settings"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Runtime settings commands",
		Long:  "Reads and changes the runtime settings held by the running daemon.",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigImportCmd())
	cmd.AddCommand(newConfigToggleCmd(true))
	cmd.AddCommand(newConfigToggleCmd(false))
	cmd.AddCommand(newConfigSetEndpointCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the settings as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := api.NewClient(addr, nil).Config(cmdContext(cmd))
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

func newConfigImportCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the settings with a JSON document",
		Long:  "Saves the JSON document in <file> as the new settings. Fields the document leaves out take their default values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if err := api.NewClient(addr, nil).SaveConfig(cmdContext(cmd), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings imported from %s\n", args[0])
			return nil
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

func newConfigToggleCmd(enable bool) *cobra.Command {
	var addr string
	verb, short := "disable", "Turn off the agent, or one platform"
	if enable {
		verb, short = "enable", "Turn on the agent, or one platform"
	}

	cmd := &cobra.Command{
		Use:   verb + " [platform]",
		Short: short,
		Long:  fmt.Sprintf("Without an argument, switches the master toggle. With a platform (%s), switches that platform only.", strings.Join(settings.PlatformIDs, ", ")),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := ""
			if len(args) == 1 {
				platform = args[0]
			}
			return runConfigToggle(cmd, api.NewClient(addr, nil), platform, enable)
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

func runConfigToggle(cmd *cobra.Command, c *api.Client, platform string, enable bool) error {
	if platform != "" && !slices.Contains(settings.PlatformIDs, platform) {
		return fmt.Errorf("unknown platform %q", platform)
	}
	ctx := cmdContext(cmd)
	cfg, err := c.Config(ctx)
	if err != nil {
		return err
	}
	name := "Agent"
	if platform == "" {
		cfg.Enabled = enable
	} else {
		p := cfg.Platforms[platform]
		p.Enabled = enable
		cfg.Platforms[platform] = p
		name = platform
	}
	if err := saveConfig(cmd, c, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, onOff(enable))
	return nil
}

func newConfigSetEndpointCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "set-endpoint <url>",
		Short: "Set the agent endpoint URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api.NewClient(addr, nil)
			cfg, err := c.Config(cmdContext(cmd))
			if err != nil {
				return err
			}
			cfg.AgentEndpoint = strings.TrimSpace(args[0])
			if err := saveConfig(cmd, c, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent endpoint set to %s\n", cfg.AgentEndpoint)
			return nil
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

// saveConfig sends the whole of cfg; a save replaces the stored settings.
func saveConfig(cmd *cobra.Command, c *api.Client, cfg settings.GlobalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return c.SaveConfig(cmdContext(cmd), data)
}
