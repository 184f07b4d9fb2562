// Package security scrubs secret values out of log output. Model API
// keys and secret suite inputs routinely end up interpolated into
// prompts and error messages, so redaction happens at the log router
// rather than at each call site.
package security

import (
	"sort"
	"strings"

	"github.com/deskstep/deskstep/pkg/core"
)

type Redactor struct {
	Secrets []string
}

// NewRedactor collects secret values from the suite's secret-marked
// inputs and from the resolved provider API keys.
func NewRedactor(inputs []core.Input, varCtx core.VarContext, providers ...core.ProviderConfig) *Redactor {
	var secretValues []string
	for _, input := range inputs {
		if input.Secret {
			if val, ok := varCtx[input.Name]; ok && val != "" {
				secretValues = append(secretValues, val)
			}
		}
	}
	for _, p := range providers {
		if p.APIKey != "" {
			secretValues = append(secretValues, p.APIKey)
		}
	}
	return &Redactor{
		Secrets: secretValues,
	}
}

func (r *Redactor) Redact(s string) string {
	if r == nil || len(r.Secrets) == 0 {
		return s
	}

	// Sort secrets by length in descending order so longer secrets are
	// replaced before their substrings.
	secrets := make([]string, len(r.Secrets))
	copy(secrets, r.Secrets)
	sort.Slice(secrets, func(i, j int) bool {
		return len(secrets[i]) > len(secrets[j])
	})

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "********")
	}
	return s
}
