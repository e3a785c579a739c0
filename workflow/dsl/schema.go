package dsl

// WorkflowDSL 工作流文档顶层结构
type WorkflowDSL struct {
	// Version 文档版本，可选
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	// Name 工作流名称
	Name string `yaml:"name" json:"name"`
	// Description 工作流描述
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Variables 运行输入变量定义
	Variables map[string]VariableDef `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Units 单元定义，按声明顺序
	Units []UnitDef `yaml:"units" json:"units"`

	// Orchestration 唯一的编排块
	Orchestration *OrchestrationDef `yaml:"orchestration" json:"orchestration"`

	// Metadata 元数据
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// VariableDef 变量定义
type VariableDef struct {
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`               // string, int, float, bool, list, map
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`         // 默认值
	Description string `yaml:"description,omitempty" json:"description,omitempty"` // 描述
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`       // 是否必填
}

// UnitDef 单元定义。哪些字段生效取决于 Kind。
type UnitDef struct {
	Name        string   `yaml:"name" json:"name"`
	Kind        string   `yaml:"kind" json:"kind"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	OutputKey   string   `yaml:"output_key,omitempty" json:"output_key,omitempty"`
	InputKeys   []string `yaml:"input_keys,omitempty" json:"input_keys,omitempty"`

	// llm
	Model          string         `yaml:"model,omitempty" json:"model,omitempty"`
	Instruction    string         `yaml:"instruction,omitempty" json:"instruction,omitempty"`
	Tools          []string       `yaml:"tools,omitempty" json:"tools,omitempty"`
	Planner        string         `yaml:"planner,omitempty" json:"planner,omitempty"`
	GenerateConfig map[string]any `yaml:"generate_config,omitempty" json:"generate_config,omitempty"`

	// function / tool
	Function string         `yaml:"function,omitempty" json:"function,omitempty"`
	Tool     string         `yaml:"tool,omitempty" json:"tool,omitempty"`
	Params   map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// expression
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// sequential / parallel / loop
	Children      []string `yaml:"children,omitempty" json:"children,omitempty"`
	MaxIterations *int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// OrchestrationDef 编排定义
type OrchestrationDef struct {
	Strategy string `yaml:"strategy" json:"strategy"` // sequential, parallel, loop, dag, react, llm_routed

	// sequential / parallel / loop
	Members       []string `yaml:"members,omitempty" json:"members,omitempty"`
	MaxIterations *int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// dag
	Nodes []NodeDef `yaml:"nodes,omitempty" json:"nodes,omitempty"`

	// react
	Unit    string `yaml:"unit,omitempty" json:"unit,omitempty"`
	Planner string `yaml:"planner,omitempty" json:"planner,omitempty"`

	// llm_routed
	Router     string   `yaml:"router,omitempty" json:"router,omitempty"`
	Candidates []string `yaml:"candidates,omitempty" json:"candidates,omitempty"`
}

// NodeDef dag 节点定义
type NodeDef struct {
	Unit      string   `yaml:"unit" json:"unit"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}
