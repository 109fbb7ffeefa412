package gateway

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
)

//go:embed ui/*.html
var uiFS embed.FS

const (
	pageLogin       = "login.html"
	pageUnavailable = "unavailable.html"
	pageError       = "error.html"
)

type TemplateManager struct {
	templates map[string]*template.Template
	log       logrus.FieldLogger
}

func NewTemplateManager(log logrus.FieldLogger) (*TemplateManager, error) {
	tmpls, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	return &TemplateManager{templates: tmpls, log: log}, nil
}

func loadTemplates() (map[string]*template.Template, error) {
	tmpls := make(map[string]*template.Template)

	layoutContent, err := uiFS.ReadFile("ui/layout.html")
	if err != nil {
		return nil, err
	}

	baseTmpl, err := template.New("layout").Parse(string(layoutContent))
	if err != nil {
		return nil, err
	}

	for _, page := range []string{pageLogin, pageUnavailable, pageError} {
		pageContent, err := uiFS.ReadFile("ui/" + page)
		if err != nil {
			return nil, err
		}

		pageTmpl, err := baseTmpl.Clone()
		if err != nil {
			return nil, err
		}

		if _, err := pageTmpl.Parse(string(pageContent)); err != nil {
			return nil, err
		}

		tmpls[page] = pageTmpl
	}

	return tmpls, nil
}

// Render executes the page into a buffer first so a template failure never
// leaves a half-written response behind.
func (tm *TemplateManager) Render(w http.ResponseWriter, status int, name string, data map[string]interface{}) {
	tmpl, ok := tm.templates[name]
	if !ok {
		tm.log.Errorf("Template %s not found", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		tm.log.WithError(err).Errorf("Error executing template %s", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
