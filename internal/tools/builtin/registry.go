// Package builtin assembles the built-in tool registry for a workspace.
package builtin

import (
	"log/slog"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/editing"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/execution"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/filesystem"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/reasoning"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/search"
)

// Set selects tool groups.
type Set struct {
	Filesystem bool `yaml:"filesystem"`
	Editing    bool `yaml:"editing"`
	Search     bool `yaml:"search"`
	Execution  bool `yaml:"execution"`
	Meta       bool `yaml:"meta"`
}

// AllTools enables every group.
func AllTools() Set {
	return Set{Filesystem: true, Editing: true, Search: true, Execution: true, Meta: true}
}

// Options configures NewRegistry. Runner nil disables execution tools and
// makes grep search in process; Searcher nil omits codebase_search.
type Options struct {
	Root     string
	Runner   sandbox.Runner
	Searcher search.Searcher
	Logger   *slog.Logger
	Set      Set
}

// NewRegistry builds the built-in tools for opts.Root.
func NewRegistry(opts Options) tools.Registry {
	reg := make(tools.Registry)
	root, set := opts.Root, opts.Set

	if set.Filesystem {
		reg.Register(filesystem.NewReadFileTool(root, nil))
		reg.Register(filesystem.NewListFilesTool(root, nil))
		reg.Register(filesystem.NewWriteFileTool(root, nil))
		reg.Register(filesystem.NewDeleteFileTool(root, nil))
	}
	if set.Editing {
		reg.Register(editing.NewEditFileTool(root))
	}
	if set.Search {
		reg.Register(search.NewGrepTool(root, opts.Runner))
		if opts.Searcher != nil {
			reg.Register(search.NewCodebaseSearchTool(opts.Searcher))
		}
	}
	if set.Execution && opts.Runner != nil {
		reg.Register(execution.NewRunCommandTool(root, opts.Runner))
		reg.Register(execution.NewRunBuildTool(root, opts.Runner))
		reg.Register(execution.NewRunTestsTool(root, opts.Runner))
	}
	if set.Meta {
		reg.Register(reasoning.NewThinkTool(opts.Logger))
	}
	return reg
}
