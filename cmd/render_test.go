package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/config"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

func TestRenderConfig_YAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderConfig(&out, provision.New(provision.DefaultEnvironment()), formatYAML))

	assert.Contains(t, out.String(), "    graphics_type: none\n")
	assert.Contains(t, out.String(), "  - path: bootstrap.sh\n    privileged: true\n")

	var decoded provision.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, []provision.ProviderName{provision.PROVIDER_LIBVIRT, provision.PROVIDER_VIRTUALBOX}, decoded.ProviderNames())

	machine, err := decoded.Resolve(provision.PROVIDER_LIBVIRT)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nfs_udp": false}, machine.SyncedFolders[0].Options)
}

func TestRenderConfig_JSON(t *testing.T) {
	env := provision.DefaultEnvironment()
	env.VirtualBox = provision.Resources{MemoryMiB: 1024, CPUs: 1}

	var out bytes.Buffer
	require.NoError(t, renderConfig(&out, provision.New(env), formatJSON))

	var decoded struct {
		VM struct {
			Providers []struct {
				Name       string         `json:"name"`
				VirtualBox map[string]any `json:"virtualbox"`
			} `json:"providers"`
		} `json:"vm"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.VM.Providers, 2)
	assert.Equal(t, "virtualbox", decoded.VM.Providers[1].Name)
	assert.Equal(t, float64(1024), decoded.VM.Providers[1].VirtualBox["memory_mib"])
	assert.Equal(t, false, decoded.VM.Providers[1].VirtualBox["gui"])
}

func TestRenderConfig_UnknownFormat(t *testing.T) {
	err := renderConfig(io.Discard, provision.New(provision.DefaultEnvironment()), "hcl")
	assert.EqualError(t, err, `unsupported format "hcl" (valid: vagrantfile, yaml, json)`)
}

func TestRunRender_File(t *testing.T) {
	t.Setenv("SSGBERK_SHOW_VM", "1")
	cfg, err := config.Load()
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "Vagrantfile")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, runRender(cfg, log, formatVagrantfile, output))

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(content), "    vb.gui = true\n")
	assert.NotContains(t, string(content), "graphics_type")
}
