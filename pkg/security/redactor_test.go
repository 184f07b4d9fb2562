package security_test

import (
	"testing"

	"github.com/deskstep/deskstep/pkg/core"
	"github.com/deskstep/deskstep/pkg/security"
	"github.com/stretchr/testify/assert"
)

func TestRedactor_Redact(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		secrets []string
	}{
		{
			name:    "exact match",
			input:   "The password is supersecret",
			want:    "The password is ********",
			secrets: []string{"supersecret"},
		},
		{
			name:    "multiple occurrences",
			input:   "API key: abcdef is being used. Backup key: abcdef should be stored.",
			want:    "API key: ******** is being used. Backup key: ******** should be stored.",
			secrets: []string{"abcdef"},
		},
		{
			name:    "substring of another word",
			input:   "The keyboard has keys for typing. The key is important.",
			want:    "The ********board has ********s for typing. The ******** is important.",
			secrets: []string{"key"},
		},
		{
			name:    "multiple secrets",
			input:   "Password: pass123, API Key: key456",
			want:    "Password: ********, API Key: ********",
			secrets: []string{"pass123", "key456"},
		},
		{
			name:    "empty secret is skipped",
			input:   "Empty: , Valid: valid",
			want:    "Empty: , Valid: ********",
			secrets: []string{"", "valid"},
		},
		{
			name:    "no secrets returns original string",
			input:   "Original string",
			want:    "Original string",
			secrets: nil,
		},
		{
			name:    "overlapping secrets, longest wins",
			input:   "This contains supersecret and secret values",
			want:    "This contains ******** and ******** values",
			secrets: []string{"secret", "supersecret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &security.Redactor{
				Secrets: tt.secrets,
			}
			got := r.Redact(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedactor_NilReceiver(t *testing.T) {
	var r *security.Redactor
	assert.Equal(t, "unchanged", r.Redact("unchanged"))
}

func TestNewRedactor(t *testing.T) {
	tests := []struct {
		name        string
		inputs      []core.Input
		varCtx      core.VarContext
		providers   []core.ProviderConfig
		wantSecrets []string
	}{
		{
			name: "collect secret input values",
			inputs: []core.Input{
				{Name: "vm_password", Secret: true},
				{Name: "vm_user", Secret: false},
			},
			varCtx: core.VarContext{
				"vm_password": "pass123",
				"vm_user":     "user1",
			},
			wantSecrets: []string{"pass123"},
		},
		{
			name: "provider api keys are secrets",
			inputs: []core.Input{
				{Name: "token", Secret: true},
			},
			varCtx: core.VarContext{
				"token": "tok789",
			},
			providers: []core.ProviderConfig{
				{Name: "claude", APIKey: "sk-ant-xyz"},
				{Name: "local", APIKey: ""},
			},
			wantSecrets: []string{"tok789", "sk-ant-xyz"},
		},
		{
			name: "missing values in context are excluded",
			inputs: []core.Input{
				{Name: "password", Secret: true},
				{Name: "missing_secret", Secret: true},
			},
			varCtx: core.VarContext{
				"password": "pass123",
			},
			wantSecrets: []string{"pass123"},
		},
		{
			name:        "empty inputs result in empty secrets",
			inputs:      []core.Input{},
			varCtx:      core.VarContext{},
			wantSecrets: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := security.NewRedactor(tt.inputs, tt.varCtx, tt.providers...)
			assert.ElementsMatch(t, tt.wantSecrets, r.Secrets)
		})
	}
}
