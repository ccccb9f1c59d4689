package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/analyzer"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/retrieval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

var (
	topNFlag   int
	searchFlag string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [prompt...]",
	Short: "Show the workspace structure and the files a prompt points at",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&topNFlag, "top", "n", 5, "number of recommended files")
	analyzeCmd.Flags().StringVar(&searchFlag, "search", "", "also run a full-text search over the workspace")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(repoFlag)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(root)
	if err != nil {
		return err
	}
	az := analyzer.New(root, analyzer.WithLimits(cfg.Engine.Analyzer), analyzer.WithLogger(logger))
	st, err := az.Structure()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pt := workspace.DetectProjectType(root)
	fmt.Fprintf(out, "Root: %s\n", root)
	fmt.Fprintf(out, "Project: %s\n", pt)
	for _, c := range []struct {
		name string
		cmd  workspace.Command
	}{
		{"build", workspace.BuildCommand(pt)},
		{"test", workspace.TestCommand(pt)},
		{"typecheck", workspace.TypeCheckCommand(pt)},
	} {
		if !c.cmd.IsZero() {
			fmt.Fprintf(out, "  %-9s %s\n", c.name, c.cmd)
		}
	}

	files := st.Files()
	fmt.Fprintf(out, "Entries: %d (%d files)", len(st.Entries), len(files))
	if st.Truncated {
		fmt.Fprint(out, ", truncated")
	}
	fmt.Fprintln(out)

	byExt := map[string]int{}
	for _, f := range files {
		byExt[f.Ext]++
	}
	exts := make([]string, 0, len(byExt))
	for e := range byExt {
		exts = append(exts, e)
	}
	sort.Slice(exts, func(i, j int) bool { return byExt[exts[i]] > byExt[exts[j]] })
	for i, e := range exts {
		if i == 8 {
			break
		}
		name := e
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(out, "  %-8s %d\n", name, byExt[e])
	}

	if prompt := strings.Join(args, " "); prompt != "" {
		recs, err := az.Recommend(prompt, topNFlag)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Recommended:")
		for _, r := range recs {
			fmt.Fprintf(out, "  %s\n", r)
		}
	}

	if searchFlag != "" {
		idx := retrieval.New(az, cfg.Retrieval.Options, logger)
		defer idx.Close()
		hits, err := idx.Search(cmd.Context(), searchFlag, topNFlag)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Search:")
		for _, h := range hits {
			fmt.Fprintf(out, "  %s:%d-%d (%.2f)\n", h.Path, h.StartLine, h.EndLine, h.Score)
		}
	}
	return nil
}
