package fintools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"finlit-rag/internal/llmservice"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrToolRounds  = errors.New("model kept calling tools")
)

const (
	maxToolRounds   = 4
	defaultMaxFound = 3
)

// Tool is a calculator or lookup taking a JSON object as input and
// returning a JSON object.
type Tool struct {
	name        string
	description string
	parameters  map[string]any
	call        func(ctx context.Context, input []byte) (any, error)
}

var _ tools.Tool = Tool{}

func (t Tool) Name() string        { return t.name }
func (t Tool) Description() string { return t.description }

func (t Tool) Call(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		input = "{}"
	}
	v, err := t.call(ctx, []byte(input))
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", t.name, err)
	}
	return string(b), nil
}

// Definition describes the tool for function calling.
func (t Tool) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.name,
			Description: t.description,
			Parameters:  t.parameters,
		},
	}
}

func decodeInto(input []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// Toolbox is the fixed set of tools offered to the model and the web UI.
type Toolbox struct {
	tools  []Tool
	byName map[string]Tool
}

// NewToolbox registers the calculators, plus the knowledge search tools when
// searcher is not nil.
func NewToolbox(searcher Searcher) *Toolbox {
	list := []Tool{
		{
			name:        "calculate_compound_interest",
			description: "Calculate compound interest for savings or investment in RM, with an optional monthly contribution.",
			parameters: object([]string{"principal", "annual_rate", "years"}, map[string]any{
				"principal":            prop("number", "Initial amount in RM"),
				"annual_rate":          prop("number", "Annual interest rate as a percentage, e.g. 5 for 5%"),
				"years":                prop("integer", "Number of years"),
				"monthly_contribution": prop("number", "Optional monthly addition in RM"),
			}),
			call: func(_ context.Context, input []byte) (any, error) {
				var in CompoundInput
				if err := decodeInto(input, &in); err != nil {
					return nil, err
				}
				return CompoundInterest(in)
			},
		},
		{
			name:        "calculate_50_30_20_budget",
			description: "Split a monthly income into needs, wants and savings using the 50/30/20 rule.",
			parameters: object([]string{"monthly_income"}, map[string]any{
				"monthly_income": prop("number", "Monthly income in RM"),
			}),
			call: func(_ context.Context, input []byte) (any, error) {
				var in struct {
					MonthlyIncome float64 `json:"monthly_income"`
				}
				if err := decodeInto(input, &in); err != nil {
					return nil, err
				}
				return Budget503020(in.MonthlyIncome)
			},
		},
		{
			name:        "get_emergency_fund_target",
			description: "Recommend an emergency fund size from monthly expenses and job stability.",
			parameters: object([]string{"monthly_expenses"}, map[string]any{
				"monthly_expenses": prop("number", "Total monthly expenses in RM"),
				"risk_level":       map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}, "description": "Job stability, high for freelance or unstable income"},
			}),
			call: func(_ context.Context, input []byte) (any, error) {
				var in struct {
					MonthlyExpenses float64 `json:"monthly_expenses"`
					RiskLevel       string  `json:"risk_level"`
				}
				if err := decodeInto(input, &in); err != nil {
					return nil, err
				}
				return EmergencyFundTarget(in.MonthlyExpenses, in.RiskLevel)
			},
		},
		{
			name:        "check_debt_ratio",
			description: "Assess debt health from the debt-to-income ratio.",
			parameters: object([]string{"monthly_income", "total_monthly_debt_payments"}, map[string]any{
				"monthly_income":              prop("number", "Gross monthly income in RM"),
				"total_monthly_debt_payments": prop("number", "Total monthly payments for all debts in RM"),
			}),
			call: func(_ context.Context, input []byte) (any, error) {
				var in struct {
					MonthlyIncome float64 `json:"monthly_income"`
					DebtPayments  float64 `json:"total_monthly_debt_payments"`
				}
				if err := decodeInto(input, &in); err != nil {
					return nil, err
				}
				return DebtRatio(in.MonthlyIncome, in.DebtPayments)
			},
		},
		{
			name:        "get_malaysian_context",
			description: "Malaysian financial institutions and terms: EPF, LHDN, AKPK, PTPTN and more.",
			parameters:  object([]string{}, map[string]any{}),
			call: func(context.Context, []byte) (any, error) {
				return map[string]string{"context": MalaysianContext}, nil
			},
		},
	}

	if searcher != nil {
		list = append(list,
			Tool{
				name:        "search_financial_knowledge",
				description: "Search the verified financial knowledge base. Returns exact content and sources.",
				parameters: object([]string{"query"}, map[string]any{
					"query":       prop("string", "What to look up"),
					"max_results": prop("integer", "Number of results, 1 to 5"),
				}),
				call: func(ctx context.Context, input []byte) (any, error) {
					in := struct {
						Query      string `json:"query"`
						MaxResults int    `json:"max_results"`
					}{MaxResults: defaultMaxFound}
					if err := decodeInto(input, &in); err != nil {
						return nil, err
					}
					if strings.TrimSpace(in.Query) == "" {
						return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
					}
					return SearchKnowledge(ctx, searcher, in.Query, in.MaxResults), nil
				},
			},
			Tool{
				name:        "search_by_category",
				description: "Search the knowledge base within one category.",
				parameters: object([]string{"category"}, map[string]any{
					"category": map[string]any{"type": "string", "enum": Categories()},
					"query":    prop("string", "Optional extra search terms"),
				}),
				call: func(ctx context.Context, input []byte) (any, error) {
					var in struct {
						Category string `json:"category"`
						Query    string `json:"query"`
					}
					if err := decodeInto(input, &in); err != nil {
						return nil, err
					}
					if strings.TrimSpace(in.Category) == "" {
						return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
					}
					return SearchByCategory(ctx, searcher, in.Category, in.Query), nil
				},
			},
		)
	}

	b := &Toolbox{tools: list, byName: make(map[string]Tool, len(list))}
	for _, t := range list {
		b.byName[t.name] = t
	}
	return b
}

// Tools returns the tools as langchaingo tools, in registration order.
func (b *Toolbox) Tools() []tools.Tool {
	out := make([]tools.Tool, len(b.tools))
	for i, t := range b.tools {
		out[i] = t
	}
	return out
}

func (b *Toolbox) Names() []string {
	out := make([]string, len(b.tools))
	for i, t := range b.tools {
		out[i] = t.name
	}
	return out
}

func (b *Toolbox) Definitions() []llms.Tool {
	out := make([]llms.Tool, len(b.tools))
	for i, t := range b.tools {
		out[i] = t.Definition()
	}
	return out
}

func (b *Toolbox) Call(ctx context.Context, name, input string) (string, error) {
	t, ok := b.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Call(ctx, input)
}

// Converse answers question with model, running any tool calls it makes and
// feeding the results back, until the model replies without calling a tool.
func (b *Toolbox) Converse(ctx context.Context, model llms.Model, system, question string, options ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}
	defs := b.Definitions()

	for round := 0; round < maxToolRounds; round++ {
		resp, err := llmservice.GenerateContent(ctx, model, defs, messages, options...)
		if err != nil {
			return "", err
		}
		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		call := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			call.Parts = append(call.Parts, tc)
		}
		messages = append(messages, call)

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			name := tc.FunctionCall.Name
			log.Debug().Str("tool", name).Str("args", tc.FunctionCall.Arguments).Msg("Tool call")
			content, err := b.Call(ctx, name, tc.FunctionCall.Arguments)
			if err != nil {
				log.Warn().Err(err).Str("tool", name).Msg("Tool call failed")
				content = toolError(err)
			}
			messages = append(messages, llms.MessageContent{
				Role:  llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{ToolCallID: tc.ID, Name: name, Content: content}},
			})
		}
	}
	return "", ErrToolRounds
}

func toolError(err error) string {
	b, _ := json.Marshal(map[string]any{"success": false, "error": err.Error()})
	return string(b)
}
