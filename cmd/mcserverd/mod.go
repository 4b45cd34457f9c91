package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var modCmd = &cobra.Command{
	Use:   "mod",
	Short: "Manage an instance's installed mods",
}

func init() {
	modCmd.AddCommand(modListCmd)
	modCmd.AddCommand(modInstallCmd)
	modCmd.AddCommand(modUninstallCmd)
	modCmd.AddCommand(modToggleCmd)
	modCmd.AddCommand(modCheckUpdatesCmd)

	modInstallCmd.Flags().String("provider", "Modrinth", "Modrinth|CurseForge|Spiget|Hangar")
	modInstallCmd.Flags().String("version-id", "", "Specific version ID (defaults to the provider's newest matching version)")
	modInstallCmd.Flags().String("mc-version", "", "Minecraft version to resolve against")
	modInstallCmd.Flags().String("loader", "", "Loader name to resolve against")

	modCheckUpdatesCmd.Flags().String("mc-version", "", "Minecraft version to check against")
	modCheckUpdatesCmd.Flags().String("loader", "", "Loader name to check against")

	modUninstallCmd.Flags().Bool("delete-config", false, "Also delete the mod's config directory, if any")
}

var modListCmd = &cobra.Command{
	Use:   "list [instance-id]",
	Short: "List installed mods",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		mods, err := a.orch.ListInstalledMods(args[0])
		if err != nil {
			return err
		}
		for _, m := range mods {
			enabled := "enabled"
			if !m.Enabled {
				enabled = "disabled"
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", m.Filename, m.Name, m.Version, enabled)
		}
		return nil
	},
}

var modInstallCmd = &cobra.Command{
	Use:   "install [instance-id] [project-id]",
	Short: "Install a mod from a catalogue project ID",
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

		filename, err := a.orch.InstallMod(context.Background(), args[0], providerName, args[1], versionID, mcVersion, loaderName)
		if err != nil {
			return err
		}
		fmt.Printf("installed %s\n", filename)
		return nil
	},
}

var modUninstallCmd = &cobra.Command{
	Use:   "uninstall [instance-id] [filename]",
	Short: "Remove an installed mod file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		deleteConfig, _ := cmd.Flags().GetBool("delete-config")
		return a.orch.UninstallMod(args[0], args[1], deleteConfig)
	},
}

var modToggleCmd = &cobra.Command{
	Use:   "toggle [instance-id] [filename] [on|off]",
	Short: "Enable or disable an installed mod without uninstalling it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.ToggleMod(args[0], args[1], args[2] == "on")
	},
}

var modCheckUpdatesCmd = &cobra.Command{
	Use:   "check-updates [instance-id]",
	Short: "List installed mods with a newer version available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		mcVersion, _ := cmd.Flags().GetString("mc-version")
		loaderName, _ := cmd.Flags().GetString("loader")

		candidates, err := a.orch.CheckForModUpdates(context.Background(), args[0], mcVersion, loaderName)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			fmt.Printf("%s: %s -> %s\n", c.Filename, c.CurrentVersionID, c.LatestVersionID)
		}
		return nil
	},
}
