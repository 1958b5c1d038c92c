package config

import (
	"os"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/statusflow/statusflow/pkg/errors"
)

const (
	// RuntimePropertiesEnv points at the property group document a
	// managed execution host writes before starting the process. Its
	// presence is what distinguishes managed from local execution.
	RuntimePropertiesEnv = "STATUSFLOW_RUNTIME_PROPERTIES"

	// DefaultRuntimePropertiesPath is used when the managed host sets
	// the env var to an empty value.
	DefaultRuntimePropertiesPath = "/etc/statusflow/application_properties.json"

	// PropertyGroupName is the group the managed host must provide.
	// Resolution fails fatally when the document lacks it.
	PropertyGroupName = "ApplicationProperties"
)

// Provider resolves the process parameter set from one configuration
// source. Exactly one provider is selected at startup; business logic
// never branches on the execution environment again after that.
type Provider interface {
	// Name identifies the provider in startup logs.
	Name() string
	// Resolve produces the immutable parameter set. Resolution errors
	// are fatal startup errors, never retried.
	Resolve() (*Params, error)
}

// DetectProvider selects the configuration provider for this process:
// the runtime property group when running under a managed host
// (signalled by RuntimePropertiesEnv), process arguments otherwise.
func DetectProvider(args []string) Provider {
	if path, ok := os.LookupEnv(RuntimePropertiesEnv); ok {
		if path == "" {
			path = DefaultRuntimePropertiesPath
		}
		return &RuntimeProvider{Path: path, Group: PropertyGroupName}
	}
	return &ArgsProvider{Args: args}
}

// ArgsProvider resolves parameters from key=value process arguments,
// for local/manual execution.
type ArgsProvider struct {
	Args []string
}

// Name implements Provider.
func (p *ArgsProvider) Name() string { return "args" }

// Resolve parses key=value tokens. Tokens without '=' or with an empty
// key are skipped; when a key repeats, the last occurrence wins.
func (p *ArgsProvider) Resolve() (*Params, error) {
	values := make(map[string]string, len(p.Args))
	for _, arg := range p.Args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			continue
		}
		values[key] = value
	}
	return NewParams(values), nil
}

// RuntimeProvider resolves parameters from the property group document
// a managed execution host injects. The document maps group names to
// flat key/value groups:
//
//	{"ApplicationProperties": {"kinesis.region": "eu-west-1"}}
type RuntimeProvider struct {
	Path  string
	Group string
}

// Name implements Provider.
func (p *RuntimeProvider) Name() string { return "runtime" }

// Resolve reads and parses the property group document. A missing
// document, invalid JSON, or an absent group is a fatal configuration
// error; the pipeline must not start without its property group.
func (p *RuntimeProvider) Resolve() (*Params, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			"failed to read runtime properties document").WithDetail("path", p.Path)
	}

	var groups map[string]map[string]string
	if err := gojson.Unmarshal(data, &groups); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			"failed to parse runtime properties document").WithDetail("path", p.Path)
	}

	group, ok := groups[p.Group]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"unable to load %s group from runtime properties", p.Group).WithDetail("path", p.Path)
	}

	return NewParams(group), nil
}
