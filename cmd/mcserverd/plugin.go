package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage an instance's installed plugins",
}

func init() {
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginInstallCmd)
	pluginCmd.AddCommand(pluginUninstallCmd)
	pluginCmd.AddCommand(pluginToggleCmd)
	pluginCmd.AddCommand(pluginCheckUpdatesCmd)

	pluginInstallCmd.Flags().String("provider", "Hangar", "Modrinth|CurseForge|Spiget|Hangar")
	pluginInstallCmd.Flags().String("version-id", "", "Specific version ID (defaults to the provider's newest matching version)")
	pluginInstallCmd.Flags().String("mc-version", "", "Minecraft version to resolve against")
	pluginInstallCmd.Flags().String("loader", "", "Loader name to resolve against")

	pluginCheckUpdatesCmd.Flags().String("mc-version", "", "Minecraft version to check against")
	pluginCheckUpdatesCmd.Flags().String("loader", "", "Loader name to check against")

	pluginUninstallCmd.Flags().Bool("delete-config", false, "Also delete the plugin's config directory, if any")
}

var pluginListCmd = &cobra.Command{
	Use:   "list [instance-id]",
	Short: "List installed plugins",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		plugins, err := a.orch.ListInstalledPlugins(args[0])
		if err != nil {
			return err
		}
		for _, p := range plugins {
			enabled := "enabled"
			if !p.Enabled {
				enabled = "disabled"
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", p.Filename, p.Name, p.Version, enabled)
		}
		return nil
	},
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install [instance-id] [project-id]",
	Short: "Install a plugin from a catalogue project ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		providerName, _ := cmd.Flags().GetString("provider")
		versionID, _ := cmd.Flags().GetString("version-id")
		mcVersion, _ := cmd.Flags().GetString("mc-version")
		loaderName, _ := cmd.Flags().GetString("loader")

		filename, err := a.orch.InstallPlugin(context.Background(), args[0], providerName, args[1], versionID, mcVersion, loaderName)
		if err != nil {
			return err
		}
		fmt.Printf("installed %s\n", filename)
		return nil
	},
}

var pluginUninstallCmd = &cobra.Command{
	Use:   "uninstall [instance-id] [filename]",
	Short: "Remove an installed plugin file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		deleteConfig, _ := cmd.Flags().GetBool("delete-config")
		return a.orch.UninstallPlugin(args[0], args[1], deleteConfig)
	},
}

var pluginToggleCmd = &cobra.Command{
	Use:   "toggle [instance-id] [filename] [on|off]",
	Short: "Enable or disable an installed plugin without uninstalling it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.TogglePlugin(args[0], args[1], args[2] == "on")
	},
}

var pluginCheckUpdatesCmd = &cobra.Command{
	Use:   "check-updates [instance-id]",
	Short: "List installed plugins with a newer version available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		mcVersion, _ := cmd.Flags().GetString("mc-version")
		loaderName, _ := cmd.Flags().GetString("loader")

		candidates, err := a.orch.CheckForPluginUpdates(context.Background(), args[0], mcVersion, loaderName)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			fmt.Printf("%s: %s -> %s\n", c.Filename, c.CurrentVersionID, c.LatestVersionID)
		}
		return nil
	},
}
