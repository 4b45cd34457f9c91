package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage server instances",
}

func init() {
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceCreateCmd)
	instanceCmd.AddCommand(instanceDeleteCmd)
	instanceCmd.AddCommand(instanceCloneCmd)
	instanceCmd.AddCommand(instanceStartCmd)
	instanceCmd.AddCommand(instanceStopCmd)
	instanceCmd.AddCommand(instancePrepareCmd)
	instanceCmd.AddCommand(instanceSendCmd)
	instanceCmd.AddCommand(instanceStatusCmd)

	instanceCreateCmd.Flags().String("mc-version", "", "Minecraft version (required)")
	instanceCreateCmd.Flags().String("loader", "", "vanilla|paper|purpur|fabric|forge|neoforge|velocity|bungeecord|bedrock")
	instanceCreateCmd.Flags().String("loader-version", "", "Loader-specific version, if applicable")
	instanceCreateCmd.MarkFlagRequired("mc-version")
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every managed instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		instances, err := a.orch.ListInstances()
		if err != nil {
			return err
		}
		for _, inst := range instances {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n", inst.ID, inst.Name, inst.MCVersion, inst.Loader, a.orch.Status(inst.ID))
		}
		return nil
	},
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		mcVersion, _ := cmd.Flags().GetString("mc-version")
		loaderName, _ := cmd.Flags().GetString("loader")
		loaderVersion, _ := cmd.Flags().GetString("loader-version")

		inst, err := a.orch.CreateInstanceFull(args[0], mcVersion, types.LoaderKind(strings.ToLower(loaderName)), loaderVersion)
		if err != nil {
			return err
		}
		fmt.Printf("created instance %s (%s)\n", inst.ID, inst.Path)
		return nil
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Stop (if running) and delete an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.DeleteInstance(context.Background(), args[0])
	},
}

var instanceCloneCmd = &cobra.Command{
	Use:   "clone [id] [new-name]",
	Short: "Clone an instance's directory and settings under a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		clone, err := a.orch.CloneInstance(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("cloned into instance %s (%s)\n", clone.ID, clone.Path)
		return nil
	},
}

var instanceStartCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Prepare (if needed) and start an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.StartServer(context.Background(), args[0])
	},
}

var instanceStopCmd = &cobra.Command{
	Use:   "stop [id]",
	Short: "Gracefully stop an instance, forcing a kill past its stop timeout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.StopServer(context.Background(), args[0])
	},
}

var instancePrepareCmd = &cobra.Command{
	Use:   "prepare [id]",
	Short: "Materialize an instance's binary without starting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		_, err = a.orch.PrepareServer(context.Background(), args[0])
		return err
	},
}

var instanceSendCmd = &cobra.Command{
	Use:   "send [id] [command...]",
	Short: "Send a console command to a running instance",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return a.orch.SendCommand(args[0], strings.Join(args[1:], " "))
	},
}

var instanceStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show an instance's lifecycle status, resource usage, and online players",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		id := args[0]
		fmt.Printf("status: %s\n", a.orch.GetStatus(id))
		if usage, ok := a.orch.GetUsage(id); ok {
			fmt.Printf("cpu: %.1f%%  memory: %d bytes\n", usage.CPUPercent, usage.MemoryRSS)
		}
		players := a.orch.GetOnlinePlayers(id)
		fmt.Printf("players online: %d %v\n", len(players), players)
		return nil
	},
}
