package main

import (
	"fmt"
	"os"

	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// instanceSpec is a declarative description of one instance: read once from
// a YAML manifest, diffed against the live registry by name, created or
// updated accordingly.
type instanceSpec struct {
	Name          string `yaml:"name"`
	MCVersion     string `yaml:"mc_version"`
	Loader        string `yaml:"loader"`
	LoaderVersion string `yaml:"loader_version"`
	Settings      struct {
		MemoryValue     int    `yaml:"memory_value"`
		MemoryUnit      string `yaml:"memory_unit"`
		Port            int    `yaml:"port"`
		JavaPath        string `yaml:"java_path"`
		CrashHandling   string `yaml:"crash_handling"`
		Autostart       bool   `yaml:"autostart"`
		StopTimeoutSecs int    `yaml:"stop_timeout_secs"`
	} `yaml:"settings"`
}

var instanceApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update an instance from a YAML spec",
	Long: `Apply an instance definition from a YAML file.

Example:
  mcserverd instance apply -f survival.yaml

survival.yaml:
  name: survival
  mc_version: "1.20.4"
  loader: paper
  settings:
    memory_value: 6
    memory_unit: "G"
    autostart: true`,
	RunE: runInstanceApply,
}

func init() {
	instanceApplyCmd.Flags().StringP("file", "f", "", "YAML instance spec to apply (required)")
	instanceApplyCmd.MarkFlagRequired("file")
	instanceCmd.AddCommand(instanceApplyCmd)
}

func runInstanceApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}

	var spec instanceSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	if spec.Name == "" {
		return fmt.Errorf("spec is missing required field \"name\"")
	}

	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	existing, err := a.reg.GetByName(spec.Name)
	settings := settingsFromSpec(spec)

	if err != nil {
		inst, err := a.orch.CreateInstanceFull(spec.Name, spec.MCVersion, types.LoaderKind(spec.Loader), spec.LoaderVersion)
		if err != nil {
			return fmt.Errorf("creating instance %s: %w", spec.Name, err)
		}
		if err := a.orch.UpdateSettings(inst.ID, spec.Name, settings); err != nil {
			return fmt.Errorf("applying settings to %s: %w", spec.Name, err)
		}
		fmt.Printf("created instance %s (%s)\n", inst.ID, inst.Path)
		return nil
	}

	if err := a.orch.UpdateSettings(existing.ID, spec.Name, settings); err != nil {
		return fmt.Errorf("updating settings for %s: %w", spec.Name, err)
	}
	fmt.Printf("updated instance %s\n", existing.ID)
	return nil
}

func settingsFromSpec(spec instanceSpec) *types.InstanceSettings {
	settings := types.DefaultInstanceSettings()
	if spec.Settings.MemoryValue > 0 {
		settings.MemoryValue = spec.Settings.MemoryValue
	}
	if spec.Settings.MemoryUnit != "" {
		settings.MemoryUnit = types.MemoryUnit(spec.Settings.MemoryUnit)
	}
	if spec.Settings.Port > 0 {
		settings.Port = spec.Settings.Port
	}
	if spec.Settings.JavaPath != "" {
		settings.JavaPath = spec.Settings.JavaPath
	}
	if spec.Settings.CrashHandling != "" {
		settings.CrashHandling = types.CrashHandling(spec.Settings.CrashHandling)
	}
	if spec.Settings.StopTimeoutSecs > 0 {
		settings.StopTimeoutSecs = spec.Settings.StopTimeoutSecs
	}
	settings.Autostart = spec.Settings.Autostart
	return settings
}
