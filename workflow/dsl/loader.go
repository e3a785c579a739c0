package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load 解析工作流文档。以 '{' 开头的内容按 JSON 解析，其余按 YAML 解析；
// 两种格式都拒绝未知字段。
func Load(data []byte) (*WorkflowDSL, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty workflow document")
	}

	var doc WorkflowDSL
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		return &doc, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(trimmed))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &doc, nil
}

// LoadFile 从文件加载工作流文档
func LoadFile(path string) (*WorkflowDSL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	doc, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
