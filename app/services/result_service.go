package services

import (
	"bytes"
	"context"
	"fmt"

	"provision-svc/app/clients"
	"provision-svc/app/domains"

	"gopkg.in/yaml.v3"
)

// Data types served for a script result
const (
	DataTypeCombined = "combined"
	DataTypeStdout   = "stdout"
	DataTypeStderr   = "stderr"
	DataTypeResult   = "result"
)

// NodeResult is a script result together with the purpose of its script set
type NodeResult struct {
	ResultType domains.ResultType
	Result     domains.ScriptResult
	Parsed     map[string]interface{}
	ParseError string
}

// ResultService serves stored events and script results to operators
type ResultService struct {
	storage clients.StorageAdapter
}

// NewResultService creates a new result service
func NewResultService(storage clients.StorageAdapter) *ResultService {
	return &ResultService{storage: storage}
}

// ListNodes returns every node
func (s *ResultService) ListNodes(ctx context.Context) ([]domains.Node, error) {
	return s.storage.ListNodes(ctx)
}

// ListEvents returns the audit events of a node, oldest first
func (s *ResultService) ListEvents(ctx context.Context, nodeID string) ([]domains.Event, error) {
	if _, err := s.getNode(ctx, nodeID); err != nil {
		return nil, err
	}
	return s.storage.ListEvents(ctx, nodeID)
}

// ListResults returns the results of the node's current script sets.
// An empty resultType selects every purpose.
func (s *ResultService) ListResults(ctx context.Context, nodeID string, resultType domains.ResultType) ([]NodeResult, error) {
	node, err := s.getNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	types := []domains.ResultType{
		domains.ResultTypeCommissioning,
		domains.ResultTypeTesting,
		domains.ResultTypeInstallation,
	}
	if resultType != "" {
		if !validResultType(resultType) {
			return nil, domains.NewValidationError("unknown result type: %s", resultType)
		}
		types = []domains.ResultType{resultType}
	}

	var out []NodeResult
	for _, rt := range types {
		setID := node.CurrentScriptSetID(rt)
		if setID == nil {
			continue
		}
		results, err := s.storage.ListScriptResults(ctx, *setID)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s results: %w", rt, err)
		}
		for _, r := range results {
			nr := NodeResult{ResultType: rt, Result: r}
			if len(r.Result) > 0 {
				parsed, err := ParseScriptResult(r.Result)
				if err != nil {
					nr.ParseError = err.Error()
				} else {
					nr.Parsed = parsed
				}
			}
			out = append(out, nr)
		}
	}
	return out, nil
}

// GetResultData returns one stream of a script result
func (s *ResultService) GetResultData(ctx context.Context, id int64, dataType string) ([]byte, error) {
	if dataType == "" {
		dataType = DataTypeCombined
	}
	result, err := s.storage.GetScriptResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get script result: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %d", domains.ErrResultNotFound, id)
	}

	var data []byte
	switch dataType {
	case DataTypeCombined:
		data = result.Output
	case DataTypeStdout:
		data = result.Stdout
	case DataTypeStderr:
		data = result.Stderr
	case DataTypeResult:
		data = result.Result
	default:
		return nil, domains.NewValidationError("unknown data type: %s", dataType)
	}
	return bytes.TrimSpace(data), nil
}

// ParseScriptResult decodes the YAML document a script writes to its result file
func ParseScriptResult(data []byte) (map[string]interface{}, error) {
	parsed := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("invalid result yaml: %w", err)
	}
	return parsed, nil
}

func (s *ResultService) getNode(ctx context.Context, nodeID string) (*domains.Node, error) {
	node, err := s.storage.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: %s", domains.ErrNodeNotFound, nodeID)
	}
	return node, nil
}

func validResultType(rt domains.ResultType) bool {
	switch rt {
	case domains.ResultTypeCommissioning, domains.ResultTypeTesting, domains.ResultTypeInstallation:
		return true
	}
	return false
}
