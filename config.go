package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"
)

// Config holds the settings that describe the tool and where its releases
// are published.
type Config struct {
	Tool     ToolSpec     `yaml:"tool"`
	Registry RegistrySpec `yaml:"registry"`
}

// ToolSpec identifies the installed tool and its source repository.
type ToolSpec struct {
	Name  string `yaml:"name"`
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// RegistrySpec describes the release registry. URLs are templates rendered
// with tplData.
type RegistrySpec struct {
	LatestURL         string `yaml:"latestUrl"`
	DownloadURL       string `yaml:"downloadUrl"`
	TagJSONPath       string `yaml:"tagJsonPath"`
	AssetNameJSONPath string `yaml:"assetNameJsonPath"`
	AssetURLJSONPath  string `yaml:"assetUrlJsonPath"`
}

// DefaultConfig returns the configuration for seal-runtime/seal on GitHub.
func DefaultConfig() Config {
	return Config{
		Tool: ToolSpec{
			Name:  "seal",
			Owner: "seal-runtime",
			Repo:  "seal",
		},
		Registry: RegistrySpec{
			LatestURL:         "https://api.github.com/repos/{{ .Owner }}/{{ .Repo }}/releases/latest",
			DownloadURL:       "https://github.com/{{ .Owner }}/{{ .Repo }}/releases/download/{{ .Version }}/{{ .FileName }}",
			TagJSONPath:       "$.tag_name",
			AssetNameJSONPath: "$.assets[*].name",
			AssetURLJSONPath:  "$.assets[*].browser_download_url",
		},
	}
}

// LoadConfig reads the configuration from a reader into `cfg`. Settings
// missing from the input keep their defaults.
func LoadConfig(r io.Reader, cfg *Config) error {
	*cfg = DefaultConfig()
	if r == nil {
		return nil
	}

	var raw Config
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	cfg.merge(raw)
	return nil
}

// LoadConfigFile reads the configuration from a file into `cfg`. An empty
// name yields the defaults.
func LoadConfigFile(name string, cfg *Config) error {
	if name == "" {
		return LoadConfig(nil, cfg)
	}
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()
	return LoadConfig(file, cfg)
}

func (c *Config) merge(o Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Tool.Name, o.Tool.Name)
	set(&c.Tool.Owner, o.Tool.Owner)
	set(&c.Tool.Repo, o.Tool.Repo)
	set(&c.Registry.LatestURL, o.Registry.LatestURL)
	set(&c.Registry.DownloadURL, o.Registry.DownloadURL)
	set(&c.Registry.TagJSONPath, o.Registry.TagJSONPath)
	set(&c.Registry.AssetNameJSONPath, o.Registry.AssetNameJSONPath)
	set(&c.Registry.AssetURLJSONPath, o.Registry.AssetURLJSONPath)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"tool.name", c.Tool.Name},
		{"tool.owner", c.Tool.Owner},
		{"tool.repo", c.Tool.Repo},
		{"registry.latestUrl", c.Registry.LatestURL},
		{"registry.downloadUrl", c.Registry.DownloadURL},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

type tplData struct {
	Tool     string
	Owner    string
	Repo     string
	Version  string
	FileName string
	Platform Platform
	Arch     string
}

func renderTemplate(tmpl string, data tplData) (string, error) {
	tpl := template.New("")

	tpl = tpl.Funcs(template.FuncMap{
		"trimPrefix": func(prefix string, s string) string {
			return strings.TrimPrefix(s, prefix)
		},
	})

	tpl, err := tpl.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var w bytes.Buffer
	if err := tpl.Execute(&w, data); err != nil {
		return "", err
	}

	return w.String(), nil
}
