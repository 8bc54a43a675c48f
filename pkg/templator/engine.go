package templator

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"text/template"
)

type Engine struct {
	funcs     template.FuncMap
	templates map[string]*template.Template
}

func NewEngine(funcs template.FuncMap) *Engine {
	return &Engine{
		funcs:     funcs,
		templates: make(map[string]*template.Template),
	}
}

// LoadTemplate parses file from fsys and registers it under name.
func (e *Engine) LoadTemplate(name string, fsys fs.FS, file string) error {
	tmpl, err := template.New(path.Base(file)).Funcs(e.funcs).ParseFS(fsys, file)
	if err != nil {
		return fmt.Errorf("failed to load template %s from %s: %w", name, file, err)
	}
	e.templates[name] = tmpl
	return nil
}

func (e *Engine) HasTemplate(name string) bool {
	_, exists := e.templates[name]
	return exists
}

func (e *Engine) Render(name string, w io.Writer, data any) error {
	tmpl, exists := e.templates[name]
	if !exists {
		return fmt.Errorf("template %s not found", name)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render template %s: %w", name, err)
	}

	return nil
}

func (e *Engine) RenderToBytes(name string, data any) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{})
	if err := e.Render(name, buf, data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
