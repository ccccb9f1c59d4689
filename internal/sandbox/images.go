package sandbox

import (
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

// ImageFor returns the container image for a project type. cfg.Image wins.
func ImageFor(pt workspace.ProjectType, cfg Config) string {
	if cfg.Image != "" {
		return cfg.Image
	}
	switch pt {
	case workspace.ProjectTypeGo:
		return "golang:alpine"
	case workspace.ProjectTypeNode:
		return "node:alpine"
	case workspace.ProjectTypePython:
		return "python:alpine"
	case workspace.ProjectTypeRust:
		return "rust:alpine"
	default:
		return "alpine:latest"
	}
}
