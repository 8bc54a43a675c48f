package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/config"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/vagrantfile"
	"sigs.k8s.io/yaml"
)

const (
	formatVagrantfile = "vagrantfile"
	formatYAML        = "yaml"
	formatJSON        = "json"
)

func renderConfig(w io.Writer, cfg *provision.Config, format string) error {
	switch format {
	case formatVagrantfile:
		renderer, err := vagrantfile.NewRenderer()
		if err != nil {
			return err
		}
		return renderer.Render(w, cfg)

	case formatYAML:
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("unable to marshal configuration: %w", err)
		}
		_, err = w.Write(out)
		return err

	case formatJSON:
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("unable to marshal configuration: %w", err)
		}
		_, err = w.Write(append(out, '\n'))
		return err

	default:
		return fmt.Errorf("unsupported format %q (valid: vagrantfile, yaml, json)", format)
	}
}

// runRender writes the configuration to output, "-" meaning stdout.
func runRender(cfg *config.Config, log *slog.Logger, format, output string) error {
	var buf bytes.Buffer
	if err := renderConfig(&buf, provision.New(cfg.Environment()), format); err != nil {
		return err
	}

	if output == "" || output == "-" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}

	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", output, err)
	}

	log.Info("configuration written",
		slog.String("path", output),
		slog.String("format", format),
		slog.Bool("show_vm", cfg.ShowVM),
	)
	return nil
}
