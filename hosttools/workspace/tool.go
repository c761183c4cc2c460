package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/ggoodman/mcp-bridge-go/mcpservice"
)

// ToolName is the name the asset list tool registers under.
const ToolName = "get_asset_list"

const defaultMaxCount = 100

// Args are the arguments of get_asset_list.
type Args struct {
	Path     string `json:"path,omitempty" jsonschema:"description=Directory to search under relative to the workspace root (default: the root)"`
	Filter   string `json:"filter,omitempty" jsonschema:"description=Space separated terms. 't:<type>' matches the asset type and any other term must appear in the file name. Case insensitive."`
	MaxCount *int   `json:"maxCount,omitempty" jsonschema:"description=Maximum number of assets to return (default: 100),default=100"`
}

// Result is returned by get_asset_list. TotalCount counts every match before
// MaxCount is applied.
type Result struct {
	TotalCount int         `json:"totalCount"`
	Assets     []AssetItem `json:"assets"`
}

// NewTool returns the get_asset_list tool backed by idx.
func NewTool(idx *Index) mcpservice.Tool {
	return mcpservice.NewTool(ToolName, func(ctx context.Context, args Args) (any, error) {
		return Query(ctx, idx, args)
	}, mcpservice.WithDescription(
		"Get a list of files in the workspace under a specified path. "+
			"Supports filter terms such as 't:GoTest' or 't:GoSource handler'. "+
			"Returns file paths, names, types and sizes.",
	))
}

// Query lists the assets of idx matching args.
func Query(ctx context.Context, idx *Index, args Args) (*Result, error) {
	dir, err := cleanDir(args.Path)
	if err != nil {
		return nil, err
	}
	maxCount := defaultMaxCount
	if args.MaxCount != nil {
		maxCount = *args.MaxCount
	}
	if maxCount < 0 {
		return nil, fmt.Errorf("maxCount must not be negative, got %d", maxCount)
	}

	all, err := idx.Assets(ctx)
	if err != nil {
		return nil, err
	}
	match := parseFilter(args.Filter)

	res := &Result{Assets: []AssetItem{}}
	for _, a := range all {
		if dir != "." && a.Path != dir && !strings.HasPrefix(a.Path, dir+"/") {
			continue
		}
		if !match(a) {
			continue
		}
		res.TotalCount++
		if len(res.Assets) < maxCount {
			res.Assets = append(res.Assets, a)
		}
	}
	return res, nil
}

// cleanDir normalizes p to a slash separated path within the root.
func cleanDir(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ".", nil
	}
	p = path.Clean(p)
	if !fs.ValidPath(p) {
		return "", fmt.Errorf("path %q must be relative and stay within the workspace", p)
	}
	return p, nil
}

func parseFilter(filter string) func(AssetItem) bool {
	var types, terms []string
	for _, f := range strings.Fields(strings.ToLower(filter)) {
		if t, ok := strings.CutPrefix(f, "t:"); ok {
			types = append(types, t)
			continue
		}
		terms = append(terms, f)
	}
	return func(a AssetItem) bool {
		if len(types) > 0 {
			typ := strings.ToLower(a.Type)
			found := false
			for _, t := range types {
				if typ == t {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		name := strings.ToLower(path.Base(a.Path))
		for _, t := range terms {
			if !strings.Contains(name, t) {
				return false
			}
		}
		return true
	}
}
