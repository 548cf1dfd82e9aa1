package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"hookdeploy/pkg/fileutil"
)

// Template names
const (
	StatusPage     = "status-page"
	SystemdService = "systemd-service"
)

//go:embed files/*.template
var builtin embed.FS

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the search paths for templates
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "hookdeploy", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// Templates are loaded from the filesystem in the following order:
// 1. ./templates/<name>.template
// 2. ./config/templates/<name>.template
// 3. /etc/hookdeploy/templates/<name>.template
// and fall back to the copy compiled into the binary.
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	if path := TemplateSource(name); path != Embedded {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("files/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("template file not found: %s: %w", name, err)
	}
	return string(content), nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution.
//
// Example:
//
//	data := TemplateData{
//	    "USER": "ubuntu",
//	    "WORKING_DIR": "/home/ubuntu/catty-app",
//	}
//	rendered, err := Render(SystemdService, data)
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := tmplContent
	for key, value := range data {
		placeholder := fmt.Sprintf("{{%s}}", key)
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}

	return rendered, nil
}

// RenderHTML renders a template with html/template, escaping data for HTML.
func RenderHTML(templateName string, data interface{}) ([]byte, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(templateName).Parse(tmplContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.Bytes(), nil
}

// StatusPageData is the snapshot shown on the status page.
type StatusPageData struct {
	Status      string
	Time        string
	WebhookPort int
	AppPort     int
	AppURL      string
}

// RenderStatusPage renders the HTML status page.
func RenderStatusPage(data StatusPageData) ([]byte, error) {
	return RenderHTML(StatusPage, data)
}

// ServiceUnit describes the systemd unit for the application.
type ServiceUnit struct {
	Description string
	User        string
	WorkingDir  string
	ExecStart   string
	LogFile     string
}

// RenderSystemdService renders the systemd service template.
func RenderSystemdService(unit ServiceUnit) (string, error) {
	return Render(SystemdService, TemplateData{
		"DESCRIPTION": unit.Description,
		"USER":        unit.User,
		"WORKING_DIR": unit.WorkingDir,
		"EXEC_START":  unit.ExecStart,
		"LOG_FILE":    unit.LogFile,
	})
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		StatusPage,
		SystemdService,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	return slices.Contains(ListTemplates(), name)
}

// Embedded is reported by TemplateSource when no override file exists.
const Embedded = "embedded"

// TemplateSource returns the override file GetTemplate would read for name,
// or Embedded when the compiled-in copy is used.
func TemplateSource(name string) string {
	for _, path := range GetTemplatePaths(name) {
		if fileutil.FileExists(path) {
			return path
		}
	}
	return Embedded
}
