package core

import (
	"fmt"
	"log"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// VarContext holds resolved input variables from the varfile.
type VarContext map[string]string

// varRegex is a package-level compiled regular expression for matching {{ varName }} placeholders.
var varRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9\._-]+)\s*\}\}`)

var envRegex = regexp.MustCompile(`^\s*\{\{\s*env\.([A-Za-z0-9_]+)\s*}}\s*$`)

// ResolveVarfile loads a YAML varfile, parses it, and resolves special
// values ({{ env.NAME }} lookups against the process environment).
func ResolveVarfile(path string) (VarContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading varfile %q: %w", path, err)
	}

	var rawVars map[string]string
	if err := yaml.Unmarshal(data, &rawVars); err != nil {
		return nil, fmt.Errorf("parsing varfile YAML from %q: %w", path, err)
	}

	resolvedCtx := make(VarContext, len(rawVars))
	for key, val := range rawVars {
		if match := envRegex.FindStringSubmatch(val); match != nil {
			envKey := match[1]
			envVal, exists := os.LookupEnv(envKey)
			if !exists {
				log.Printf("warning: environment variable %q not found for varfile key %q", envKey, key)
			}
			resolvedCtx[key] = envVal
		} else {
			resolvedCtx[key] = val
		}
	}
	return resolvedCtx, nil
}

// ResolveStringWithContext is the core template resolution engine.
func ResolveStringWithContext(input string, globals VarContext) (string, error) {
	var firstErr error
	output := varRegex.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match // Stop processing if an error has occurred
		}

		key := varRegex.FindStringSubmatch(match)[1]
		val, found := globals[key]
		if !found {
			// {{ env.NAME }} placeholders may appear inline in suite
			// fields as well as in the varfile.
			if m := envRegex.FindStringSubmatch(match); m != nil {
				if envVal, ok := os.LookupEnv(m[1]); ok {
					return envVal
				}
			}
			firstErr = fmt.Errorf("undefined variable: %s", key)
			return match
		}
		return val
	})

	if firstErr != nil {
		return "", firstErr
	}
	return output, nil
}

// ResolveProviderVariables resolves templated fields of a provider
// definition (api_key, base_url, model).
func ResolveProviderVariables(p *ProviderConfig, globals VarContext) (*ProviderConfig, error) {
	resolved := *p
	var err error

	resolved.APIKey, err = ResolveStringWithContext(p.APIKey, globals)
	if err != nil {
		return nil, fmt.Errorf("resolving api_key for provider %q: %w", p.Name, err)
	}
	resolved.BaseURL, err = ResolveStringWithContext(p.BaseURL, globals)
	if err != nil {
		return nil, fmt.Errorf("resolving base_url for provider %q: %w", p.Name, err)
	}
	resolved.Model, err = ResolveStringWithContext(p.Model, globals)
	if err != nil {
		return nil, fmt.Errorf("resolving model for provider %q: %w", p.Name, err)
	}
	return &resolved, nil
}

// ResolveTaskVariables takes a single task and resolves all its
// templated fields using the global context.
func ResolveTaskVariables(task *Task, globals VarContext) (*Task, error) {
	// Deep copy the task to avoid modifying the original suite definition.
	var resolved Task
	b, _ := yaml.Marshal(task)
	if err := yaml.Unmarshal(b, &resolved); err != nil {
		return nil, fmt.Errorf("deep copying task for resolution: %w", err)
	}

	var err error
	resolved.Instruction, err = ResolveStringWithContext(resolved.Instruction, globals)
	if err != nil {
		return nil, fmt.Errorf("resolving instruction for task %q: %w", task.ID, err)
	}
	resolved.DemoFile, err = ResolveStringWithContext(resolved.DemoFile, globals)
	if err != nil {
		return nil, fmt.Errorf("resolving demo_file for task %q: %w", task.ID, err)
	}

	for i, cfg := range resolved.Setup {
		resolvedCfg, err := resolveValue(cfg, globals)
		if err != nil {
			return nil, fmt.Errorf("resolving setup[%d] for task %q: %w", i, task.ID, err)
		}
		resolved.Setup[i] = resolvedCfg.(map[string]any)
	}

	return &resolved, nil
}

// resolveValue recursively resolves variables in nested setup configs.
func resolveValue(value any, globals VarContext) (any, error) {
	switch v := value.(type) {
	case string:
		return ResolveStringWithContext(v, globals)
	case map[string]any:
		resolvedMap := make(map[string]any, len(v))
		for key, val := range v {
			resolvedVal, err := resolveValue(val, globals)
			if err != nil {
				return nil, fmt.Errorf("resolving map key %q: %w", key, err)
			}
			resolvedMap[key] = resolvedVal
		}
		return resolvedMap, nil
	case []any:
		resolvedSlice := make([]any, len(v))
		for i, item := range v {
			resolvedItem, err := resolveValue(item, globals)
			if err != nil {
				return nil, fmt.Errorf("resolving slice item at index %d: %w", i, err)
			}
			resolvedSlice[i] = resolvedItem
		}
		return resolvedSlice, nil
	default:
		// For other types (int, bool, etc.), return as is
		return v, nil
	}
}
