package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Template names
const (
	Config         = "config"
	DotEnv         = "env"
	SystemdService = "systemd-service"
)

//go:embed defaults/*.template
var defaults embed.FS

var placeholderPattern = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the override search paths for a template
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "leadboard", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// An override file is used when one exists, in this order:
// 1. ./templates/<name>.template
// 2. ./config/templates/<name>.template
// 3. /etc/leadboard/templates/<name>.template
// Otherwise the built-in template is returned.
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := defaults.ReadFile("defaults/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("built-in template missing: %s: %w", name, err)
	}
	return string(content), nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution. A placeholder
// without a value is an error.
//
// Example:
//
//	rendered, err := Render(DotEnv, TemplateData{
//	    "SUPABASE_URL": "https://abc.supabase.co",
//	})
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(tmplContent, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		value, ok := data[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: no value for %s", templateName, strings.Join(missing, ", "))
	}
	return rendered, nil
}

// RenderConfig renders a starter leadboard.yaml.
func RenderConfig(host string, port int, backendKind, sqlitePath string) (string, error) {
	return Render(Config, TemplateData{
		"HOST":         host,
		"PORT":         strconv.Itoa(port),
		"BACKEND_KIND": backendKind,
		"SQLITE_PATH":  sqlitePath,
	})
}

// RenderDotEnv renders a .env file with empty key slots.
func RenderDotEnv(supabaseURL string) (string, error) {
	return Render(DotEnv, TemplateData{
		"SUPABASE_URL": supabaseURL,
	})
}

// RenderSystemdService renders the systemd service template.
func RenderSystemdService(user, workingDir, binary, configPath string) (string, error) {
	return Render(SystemdService, TemplateData{
		"USER":        user,
		"WORKING_DIR": workingDir,
		"BINARY":      binary,
		"CONFIG_PATH": configPath,
	})
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		Config,
		DotEnv,
		SystemdService,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	validNames := map[string]bool{
		Config:         true,
		DotEnv:         true,
		SystemdService: true,
	}
	return validNames[name]
}
