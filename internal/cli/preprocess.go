package cli

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"
)

// TemplateContext is the data available to schedule file templates.
// ENV holds the environment after .env is loaded; the dates are
// YYYY-MM-DD in local time.
type TemplateContext struct {
	ENV    map[string]string
	Today  string
	Monday string
	Sunday string
}

var missingKeyRegex = regexp.MustCompile(`map has no entry for key "(.*?)"`)

// PreprocessYAML expands {{ .ENV.VAR }} placeholders and the week helpers
// {{ .Today }}, {{ .Monday }} and {{ .Sunday }}.
func PreprocessYAML(inputRaw []byte) ([]byte, error) {
	return preprocessAt(inputRaw, time.Now())
}

func preprocessAt(inputRaw []byte, now time.Time) ([]byte, error) {
	if !bytes.Contains(inputRaw, []byte("{{")) {
		return inputRaw, nil
	}
	loadDotEnv()

	envMap := map[string]string{}
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			envMap[k] = v
		}
	}
	monday, sunday := weekOf(now)
	ctx := TemplateContext{
		ENV:    envMap,
		Today:  now.Format(dateLayout),
		Monday: monday.Format(dateLayout),
		Sunday: sunday.Format(dateLayout),
	}

	tmpl, err := template.New("yaml").Option("missingkey=error").Parse(string(inputRaw))
	if err != nil {
		return nil, fmt.Errorf("template error: %w", err)
	}

	var output bytes.Buffer
	if err := tmpl.Execute(&output, ctx); err != nil {
		matches := missingKeyRegex.FindStringSubmatch(err.Error())
		if len(matches) == 2 {
			return nil, fmt.Errorf("missing environment variable: %s (set it in your shell or .env file)", matches[1])
		}
		return nil, fmt.Errorf("template error: %w", err)
	}

	return output.Bytes(), nil
}
