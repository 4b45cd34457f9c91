package orchestrator

import (
	"context"
	"fmt"

	"github.com/mcserverd/mcserverd/pkg/content"
	"github.com/mcserverd/mcserverd/pkg/types"
)

func (o *Orchestrator) installerFor(id string, kind content.Kind) (*content.Installer, error) {
	inst, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return content.New(inst.Path, kind), nil
}

func (o *Orchestrator) versionsFor(ctx context.Context, providerName types.ProviderName, projectID, mcVersion, loaderName string) ([]types.ProjectVersion, error) {
	p, ok := o.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", providerName)
	}
	return p.GetVersions(ctx, projectID, mcVersion, loaderName)
}

// ListInstalledMods returns the installed-mod sidecar state for id.
func (o *Orchestrator) ListInstalledMods(id string) ([]types.InstalledMod, error) {
	inst, err := o.installerFor(id, content.KindMod)
	if err != nil {
		return nil, err
	}
	return inst.ListInstalled()
}

// ListInstalledPlugins returns the installed-plugin sidecar state for id.
func (o *Orchestrator) ListInstalledPlugins(id string) ([]types.InstalledMod, error) {
	inst, err := o.installerFor(id, content.KindPlugin)
	if err != nil {
		return nil, err
	}
	return inst.ListInstalled()
}

// InstallMod downloads and installs a mod version into instance id.
func (o *Orchestrator) InstallMod(ctx context.Context, id, providerName, projectID, versionID, mcVersion, loaderName string) (string, error) {
	return o.installContent(ctx, id, content.KindMod, providerName, projectID, versionID, mcVersion, loaderName)
}

// InstallPlugin downloads and installs a plugin version into instance id.
func (o *Orchestrator) InstallPlugin(ctx context.Context, id, providerName, projectID, versionID, mcVersion, loaderName string) (string, error) {
	return o.installContent(ctx, id, content.KindPlugin, providerName, projectID, versionID, mcVersion, loaderName)
}

func (o *Orchestrator) installContent(ctx context.Context, id string, kind content.Kind, providerName, projectID, versionID, mcVersion, loaderName string) (string, error) {
	pn := types.ProviderName(providerName)
	versions, err := o.versionsFor(ctx, pn, projectID, mcVersion, loaderName)
	if err != nil {
		return "", err
	}
	inst, err := o.installerFor(id, kind)
	if err != nil {
		return "", err
	}
	return inst.Install(ctx, o.downloader, projectID, versionID, versions, pn)
}

// UpdateMod replaces an installed mod's file with a newer version.
func (o *Orchestrator) UpdateMod(ctx context.Context, id, oldFilename, providerName, projectID, versionID, mcVersion, loaderName string) (string, error) {
	return o.updateContent(ctx, id, content.KindMod, oldFilename, providerName, projectID, versionID, mcVersion, loaderName)
}

// UpdatePlugin replaces an installed plugin's file with a newer version.
func (o *Orchestrator) UpdatePlugin(ctx context.Context, id, oldFilename, providerName, projectID, versionID, mcVersion, loaderName string) (string, error) {
	return o.updateContent(ctx, id, content.KindPlugin, oldFilename, providerName, projectID, versionID, mcVersion, loaderName)
}

func (o *Orchestrator) updateContent(ctx context.Context, id string, kind content.Kind, oldFilename, providerName, projectID, versionID, mcVersion, loaderName string) (string, error) {
	pn := types.ProviderName(providerName)
	versions, err := o.versionsFor(ctx, pn, projectID, mcVersion, loaderName)
	if err != nil {
		return "", err
	}
	inst, err := o.installerFor(id, kind)
	if err != nil {
		return "", err
	}
	return inst.Update(ctx, o.downloader, oldFilename, projectID, versionID, versions, pn)
}

// UninstallMod removes a mod file (and optionally its config) from id.
func (o *Orchestrator) UninstallMod(id, filename string, deleteConfig bool) error {
	inst, err := o.installerFor(id, content.KindMod)
	if err != nil {
		return err
	}
	return inst.Uninstall(filename, deleteConfig)
}

// UninstallPlugin removes a plugin file (and optionally its config) from id.
func (o *Orchestrator) UninstallPlugin(id, filename string, deleteConfig bool) error {
	inst, err := o.installerFor(id, content.KindPlugin)
	if err != nil {
		return err
	}
	return inst.Uninstall(filename, deleteConfig)
}

// ToggleMod enables or disables a mod file by renaming its extension.
func (o *Orchestrator) ToggleMod(id, filename string, enable bool) error {
	return o.toggle(id, content.KindMod, filename, enable)
}

// TogglePlugin enables or disables a plugin file by renaming its extension.
func (o *Orchestrator) TogglePlugin(id, filename string, enable bool) error {
	return o.toggle(id, content.KindPlugin, filename, enable)
}

func (o *Orchestrator) toggle(id string, kind content.Kind, filename string, enable bool) error {
	inst, err := o.installerFor(id, kind)
	if err != nil {
		return err
	}
	if enable {
		return inst.Enable(filename)
	}
	return inst.Disable(filename)
}

// CheckForModUpdates reports which installed mods have a newer version
// available from their original provider.
func (o *Orchestrator) CheckForModUpdates(ctx context.Context, id, mcVersion, loaderName string) ([]content.UpdateCandidate, error) {
	inst, err := o.installerFor(id, content.KindMod)
	if err != nil {
		return nil, err
	}
	return inst.CheckForUpdates(ctx, o.providers, mcVersion, loaderName)
}

// CheckForPluginUpdates reports which installed plugins have a newer
// version available from their original provider.
func (o *Orchestrator) CheckForPluginUpdates(ctx context.Context, id, mcVersion, loaderName string) ([]content.UpdateCandidate, error) {
	inst, err := o.installerFor(id, content.KindPlugin)
	if err != nil {
		return nil, err
	}
	return inst.CheckForUpdates(ctx, o.providers, mcVersion, loaderName)
}
