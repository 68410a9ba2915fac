package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aqwatch/aqwatch/pkg/workflow"
)

// LoadAuthorizer builds a static authorizer from a JSON grants file mapping
// actors to the tokens they hold. An empty path yields an authorizer that
// grants nothing.
func LoadAuthorizer(path string) (workflow.Authorizer, error) {
	authorizer := workflow.NewStaticAuthorizer()

	if path == "" {
		return authorizer, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grants file: %w", err)
	}

	var grants map[string][]string

	err = json.Unmarshal(data, &grants)
	if err != nil {
		return nil, fmt.Errorf("failed to parse grants file: %w", err)
	}

	for actor, tokens := range grants {
		for _, token := range tokens {
			authorizer.Allow(actor, token)
		}
	}

	return authorizer, nil
}
