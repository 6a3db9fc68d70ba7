package policy

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed default.rego
var defaultPolicyRaw string

// loadQuery prepares the facts query from all Rego files in policyDir.
// When the directory has no .rego files (or is empty string), the
// embedded default policy is used instead.
func loadQuery(ctx context.Context, policyDir string) (*rego.PreparedEvalQuery, error) {
	var modules []func(*rego.Rego)

	if policyDir != "" {
		files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to glob policy files")
		}

		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to read policy file", goerr.Value("path", file))
			}
			modules = append(modules, rego.Module(file, string(data)))
		}
	}

	if len(modules) == 0 {
		modules = append(modules, rego.Module("default.rego", defaultPolicyRaw))
	}

	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query("data.facts"))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare facts query")
	}

	return &prepared, nil
}
