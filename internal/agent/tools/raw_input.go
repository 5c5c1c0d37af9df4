package tools

import (
	"context"
	_ "embed"
	"strconv"
	"strings"

	"charm.land/fantasy"
	"github.com/CaptainPhantasy/gibberish/internal/gate"
)

const RawInputToolName = "raw_input"

//go:embed raw_input.md
var rawInputDescription string

type RawInputParams struct {
	Str   string  `json:"str" description:"Escaped bytes spec (supports \\n, \\r, \\t, \\xNN, \\\\)"`
	Float float64 `json:"float" description:"Seconds to wait before capturing the terminal snapshot"`
}

// Executor runs a tool call under the injection gate.
type Executor interface {
	ExecuteToolCall(ctx context.Context, call gate.ToolCall) (string, error)
}

func NewRawInputTool(exec Executor) fantasy.AgentTool {
	return fantasy.NewAgentTool(
		RawInputToolName,
		strings.TrimSpace(rawInputDescription),
		func(ctx context.Context, params RawInputParams, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
			out, err := runRawInput(ctx, exec, params)
			if err != nil {
				if ctx.Err() != nil {
					return fantasy.ToolResponse{}, err
				}
				return fantasy.NewTextErrorResponse(err.Error()), nil
			}
			return fantasy.NewTextResponse(out), nil
		},
	)
}

func runRawInput(ctx context.Context, exec Executor, params RawInputParams) (string, error) {
	if err := gate.ValidateWait(params.Float); err != nil {
		return "", err
	}
	b, err := gate.DecodeInput(params.Str)
	if err != nil {
		return "", err
	}
	return exec.ExecuteToolCall(ctx, gate.ToolCall{
		Name:   RawInputToolName,
		Spec:   strconv.Quote(params.Str),
		Params: params,
		Bytes:  b,
		Wait:   params.Float,
	})
}
