package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/567-labs/instructor-go/pkg/instructor"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
	openai "github.com/sashabaranov/go-openai"
)

// ToolName is the single function exposed to the model
const ToolName = "build_redbiom_command"

// BuildArgs are the arguments of a build_redbiom_command call
type BuildArgs struct {
	Family  string                 `json:"family" jsonschema:"description=Command family,enum=search,enum=fetch,enum=summarize,enum=select"`
	Action  string                 `json:"action" jsonschema:"description=Action within the family (for example samples or sample-metadata),minLength=1"`
	Params  map[string]interface{} `json:"params,omitempty" jsonschema:"description=Flag values keyed by flag name without dashes plus positional lists such as samples or features or the query string"`
	Execute bool                   `json:"execute,omitempty" jsonschema:"description=Run the command and return its output instead of only building it"`
}

func (a BuildArgs) build() (command.BuiltCommand, error) {
	return command.Build(strings.TrimSpace(a.Family), strings.TrimSpace(a.Action), command.ParameterSet(a.Params))
}

// schemaParameters returns the JSON schema of T's fields as a plain map
func schemaParameters[T any]() (map[string]interface{}, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	schema, err := instructor.NewSchema(t)
	if err != nil {
		return nil, err
	}
	for _, fn := range schema.Functions {
		if fn.Name != t.Name() {
			continue
		}
		raw, err := json.Marshal(fn.Parameters)
		if err != nil {
			return nil, err
		}
		var params map[string]interface{}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		return params, nil
	}
	return nil, fmt.Errorf("schema definition %q not found", t.Name())
}

// Tool returns the OpenAI tool definition for build_redbiom_command
func Tool() (openai.Tool, error) {
	params, err := schemaParameters[BuildArgs]()
	if err != nil {
		return openai.Tool{}, fmt.Errorf("building tool schema: %w", err)
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        ToolName,
			Description: toolDescription(),
			Parameters:  params,
		},
	}, nil
}

func toolDescription() string {
	var b strings.Builder
	b.WriteString("Build a validated redbiom command from an operation and its parameters. Operations:\n")
	ops := grammar.All()
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Key() < ops[j].Key() })
	for _, op := range ops {
		fmt.Fprintf(&b, "- %s\n", op.Usage())
	}
	return b.String()
}

func parseArgs(raw string) (BuildArgs, error) {
	var args BuildArgs
	if strings.TrimSpace(raw) == "" {
		return args, fmt.Errorf("missing arguments")
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args.Family == "" || args.Action == "" {
		return args, fmt.Errorf("family and action are required")
	}
	return args, nil
}
