package engine

import (
	"github.com/hupe1980/captain/model"
	"github.com/hupe1980/captain/tool"
)

// Agent is a named model plus its tools. Instruction may contain
// text/template markers rendered per call with {{.AgentName}},
// {{.Workspace}} and {{.SubAgents}}.
type Agent struct {
	Name        string
	Description string
	Instruction string
	Model       model.Model
	Tools       []tool.Tool
}
