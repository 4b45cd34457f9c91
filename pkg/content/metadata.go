package content

import (
	"archive/zip"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/pelletier/go-toml/v2"
)

// metadataProbeOrder is the fixed lookup order for every supported loader's
// JAR metadata descriptor.
var metadataProbeOrder = []string{
	"fabric.mod.json",
	"quilt.mod.json",
	"META-INF/neoforge.mods.toml",
	"META-INF/mods.toml",
	"mcmod.info",
}

// parsedMeta is the intermediate shape produced by each format-specific
// parser, before IconPath is resolved to a base64 payload and the result
// is folded into types.InstalledMod.
type parsedMeta struct {
	Name        string
	Version     string
	Description string
	Authors     []string
	IconPath    string
}

// ListInstalled returns one InstalledMod per active or disabled file in
// the content directory, extracting JAR metadata and memoizing it in the
// sidecar keyed by mtime.
func (i *Installer) ListInstalled() ([]types.InstalledMod, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	sc, err := i.load()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(i.contentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []types.InstalledMod
	dirty := false

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".json") || strings.HasSuffix(e.Name(), ".bak") {
			continue
		}

		enabled := !strings.HasSuffix(e.Name(), ".disabled")
		baseName := strings.TrimSuffix(e.Name(), ".disabled")

		info, err := e.Info()
		if err != nil {
			continue
		}
		mtime := info.ModTime().Unix()

		var mod types.InstalledMod
		if cached, ok := sc.Entries[baseName]; ok && cached.LastModified == mtime {
			mod = cached.Metadata
		} else {
			mod = extractMetadata(filepath.Join(i.contentDir, e.Name()))
			if mod.Filename == "" {
				mod.Filename = baseName
			}
			sc.Entries[baseName] = cacheEntry{LastModified: mtime, Metadata: mod}
			dirty = true
		}

		mod.Filename = baseName
		mod.Enabled = enabled
		if src, ok := sc.Sources[baseName]; ok {
			mod.Source = &types.ModSource{
				ProjectID: src.ProjectID, Provider: src.Provider, CurrentVersionID: src.CurrentVersionID,
			}
		}
		out = append(out, mod)
	}

	if dirty {
		if err := i.save(sc); err != nil {
			return out, err
		}
	}
	return out, nil
}

// extractMetadata opens jarPath as a zip and tries each known descriptor in
// metadataProbeOrder, returning the first one it can parse.
func extractMetadata(jarPath string) types.InstalledMod {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return types.InstalledMod{}
	}
	defer zr.Close()

	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}

	for _, candidate := range metadataProbeOrder {
		f, ok := byName[candidate]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		var meta parsedMeta
		var parseErr error
		switch candidate {
		case "fabric.mod.json", "quilt.mod.json":
			meta, parseErr = parseFabricLike(data)
		case "META-INF/neoforge.mods.toml", "META-INF/mods.toml":
			meta, parseErr = parseModsToml(data)
		case "mcmod.info":
			meta, parseErr = parseMcmodInfo(data)
		}
		if parseErr != nil {
			continue
		}

		var iconB64 string
		if meta.IconPath != "" {
			iconB64 = loadIconBase64(byName, meta.IconPath)
		}
		return types.InstalledMod{
			Name: meta.Name, Version: meta.Version, Description: meta.Description,
			Authors: meta.Authors, IconBase64: iconB64,
		}
	}
	return types.InstalledMod{}
}

type fabricModJSON struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Icon        string            `json:"icon"`
	Authors     []json.RawMessage `json:"authors"`
}

func parseFabricLike(data []byte) (parsedMeta, error) {
	var raw fabricModJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return parsedMeta{}, err
	}

	authors := make([]string, 0, len(raw.Authors))
	for _, a := range raw.Authors {
		var name string
		if err := json.Unmarshal(a, &name); err == nil {
			authors = append(authors, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(a, &obj); err == nil && obj.Name != "" {
			authors = append(authors, obj.Name)
		}
	}

	name := raw.Name
	if name == "" {
		name = raw.ID
	}
	return parsedMeta{
		Name: name, Version: raw.Version, Description: raw.Description,
		Authors: authors, IconPath: raw.Icon,
	}, nil
}

type modsToml struct {
	Mods []struct {
		ModID       string `toml:"modId"`
		Version     string `toml:"version"`
		DisplayName string `toml:"displayName"`
		Description string `toml:"description"`
		Authors     string `toml:"authors"`
		LogoFile    string `toml:"logoFile"`
	} `toml:"mods"`
}

func parseModsToml(data []byte) (parsedMeta, error) {
	var raw modsToml
	if err := toml.Unmarshal(data, &raw); err != nil {
		return parsedMeta{}, err
	}
	if len(raw.Mods) == 0 {
		return parsedMeta{}, errUnsupportedFormat
	}
	m := raw.Mods[0]
	name := m.DisplayName
	if name == "" {
		name = m.ModID
	}
	var authors []string
	if m.Authors != "" {
		authors = strings.Split(m.Authors, ",")
		for i := range authors {
			authors[i] = strings.TrimSpace(authors[i])
		}
	}
	return parsedMeta{
		Name: name, Version: m.Version, Description: m.Description,
		Authors: authors, IconPath: m.LogoFile,
	}, nil
}

var mcmodNamePattern = regexp.MustCompile(`"name"\s*:\s*"([^"]*)"`)
var mcmodVersionPattern = regexp.MustCompile(`"version"\s*:\s*"([^"]*)"`)
var mcmodDescPattern = regexp.MustCompile(`"description"\s*:\s*"([^"]*)"`)

// parseMcmodInfo handles the legacy Forge 1.7-1.12 mcmod.info format,
// which is a JSON array (sometimes with a BOM or trailing commas older
// tooling tolerated) — parsed leniently via regex rather than strict JSON.
func parseMcmodInfo(data []byte) (parsedMeta, error) {
	text := string(data)
	name := firstMatch(mcmodNamePattern, text)
	if name == "" {
		return parsedMeta{}, errUnsupportedFormat
	}
	return parsedMeta{
		Name:        name,
		Version:     firstMatch(mcmodVersionPattern, text),
		Description: firstMatch(mcmodDescPattern, text),
	}, nil
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func loadIconBase64(byName map[string]*zip.File, iconPath string) string {
	f, ok := byName[strings.TrimPrefix(iconPath, "/")]
	if !ok {
		return ""
	}
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

type unsupportedFormatError string

func (e unsupportedFormatError) Error() string { return string(e) }

const errUnsupportedFormat = unsupportedFormatError("unsupported metadata format")
