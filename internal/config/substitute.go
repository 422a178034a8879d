package config

import (
	"os"
	"regexp"
	"strings"

	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/sysprop"
)

var placeholderPattern = regexp.MustCompile(`\$\{(env|sys):([^}]*)\}`)

// Substitute replaces ${env:NAME} with the environment variable NAME and
// ${sys:NAME} with the process property NAME. A missing or empty value is
// a resolution error naming the placeholder.
func Substitute(text string, props *sysprop.Properties) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		groups := placeholderPattern.FindStringSubmatch(match)
		source, name := groups[1], strings.TrimSpace(groups[2])

		var value string
		switch source {
		case "env":
			value = os.Getenv(name)
		case "sys":
			value, _ = props.Get(name)
		}
		if name == "" || value == "" {
			firstErr = dserrors.Resolution("substitute placeholders", "no value for "+match, nil)
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
