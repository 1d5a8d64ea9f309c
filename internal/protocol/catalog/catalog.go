package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Catalog 命令码 -> 可读名称，用于日志字段与指标标签
type Catalog struct {
	Commands map[int32]string `yaml:"commands"`
}

// New 从映射创建目录
func New(commands map[int32]string) *Catalog {
	c := &Catalog{Commands: make(map[int32]string, len(commands))}
	for k, v := range commands {
		c.Commands[k] = v
	}
	return c
}

// Load 从 YAML 文件加载目录
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command catalog: %w", err)
	}
	return Parse(b)
}

// Parse 解析 YAML 内容
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal command catalog: %w", err)
	}
	if c.Commands == nil {
		c.Commands = make(map[int32]string)
	}
	for cmd, name := range c.Commands {
		if name == "" {
			return nil, fmt.Errorf("command catalog: empty name for %d", cmd)
		}
	}
	return &c, nil
}

// Name 返回命令名称，未登记时为 cmd_<n>
func (c *Catalog) Name(cmd int32) string {
	if c != nil {
		if n, ok := c.Commands[cmd]; ok {
			return n
		}
	}
	return "cmd_" + strconv.FormatInt(int64(cmd), 10)
}

// Lookup 返回登记的名称
func (c *Catalog) Lookup(cmd int32) (string, bool) {
	if c == nil {
		return "", false
	}
	n, ok := c.Commands[cmd]
	return n, ok
}

// Merge 用 other 覆盖/补充当前目录，返回新目录
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := New(nil)
	if c != nil {
		for k, v := range c.Commands {
			out.Commands[k] = v
		}
	}
	if other != nil {
		for k, v := range other.Commands {
			out.Commands[k] = v
		}
	}
	return out
}

// Codes 已登记命令码（升序）
func (c *Catalog) Codes() []int32 {
	if c == nil {
		return nil
	}
	codes := make([]int32, 0, len(c.Commands))
	for k := range c.Commands {
		codes = append(codes, k)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
