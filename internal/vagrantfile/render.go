// Package vagrantfile renders a provision.Config as a Vagrantfile.
package vagrantfile

import (
	"embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/templator"
)

const templateName = "vagrantfile"

//go:embed templates/Vagrantfile.tpl
var templates embed.FS

var rubyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`#`, `\#`,
	"\n", `\n`,
	"\t", `\t`,
)

// Renderer writes Vagrantfiles.
type Renderer struct {
	engine *templator.Engine
}

func NewRenderer() (*Renderer, error) {
	engine := templator.NewEngine(template.FuncMap{
		"ruby":         rubyString,
		"rubyArray":    rubyArray,
		"syncedFolder": syncedFolderArgs,
		"providerVar":  providerVar,
	})

	if err := engine.LoadTemplate(templateName, templates, "templates/Vagrantfile.tpl"); err != nil {
		return nil, err
	}

	return &Renderer{engine: engine}, nil
}

func (r *Renderer) Render(w io.Writer, cfg *provision.Config) error {
	return r.engine.Render(templateName, w, cfg)
}

func (r *Renderer) RenderToBytes(cfg *provision.Config) ([]byte, error) {
	return r.engine.RenderToBytes(templateName, cfg)
}

func rubyString(s string) string {
	return `"` + rubyEscaper.Replace(s) + `"`
}

// rubyArray renders a VBoxManage style argument list; the VM id placeholder
// becomes the :id symbol Vagrant substitutes.
func rubyArray(items []string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		if item == provision.VMIDPlaceholder {
			parts[i] = item
			continue
		}
		parts[i] = rubyString(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func rubyValue(v any) string {
	switch value := v.(type) {
	case string:
		return rubyString(value)
	case bool, int, int64, uint, uint64, float64:
		return fmt.Sprint(value)
	case nil:
		return "nil"
	default:
		return rubyString(fmt.Sprint(value))
	}
}

func syncedFolderArgs(folder provision.SyncedFolder) string {
	args := []string{rubyString(folder.HostPath), rubyString(folder.GuestPath)}
	if folder.Type != provision.SYNCED_FOLDER_DEFAULT {
		args = append(args, "type: "+rubyString(string(folder.Type)))
	}

	keys := make([]string, 0, len(folder.Options))
	for key := range folder.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		args = append(args, fmt.Sprintf("%s: %s", key, rubyValue(folder.Options[key])))
	}

	return strings.Join(args, ", ")
}

func providerVar(p *provision.Provider) string {
	switch p.Name {
	case provision.PROVIDER_LIBVIRT:
		return "virt"
	case provision.PROVIDER_VIRTUALBOX:
		return "vb"
	default:
		return "provider"
	}
}
