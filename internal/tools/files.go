package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OrganizeFunc runs the multi-step organization loop for a directory.
// Wired from main to break the dependency cycle with the orchestrator.
type OrganizeFunc func(ctx context.Context, path string) string

// tempExtensions are removed by the clean action.
var tempExtensions = map[string]bool{
	".tmp":   true,
	".cache": true,
	".log":   true,
	".bak":   true,
}

// scanEntryLimit caps the listing so a huge directory does not blow up
// the prompt.
const scanEntryLimit = 50

// organizeTimeout budgets the organize action for a full round loop of
// model calls plus shell commands, not a single command.
const organizeTimeout = 10 * time.Minute

type fileEntry struct {
	Name     string `json:"name"`
	SizeKB   int64  `json:"size_kb"`
	Ext      string `json:"ext,omitempty"`
	IsDir    bool   `json:"is_dir,omitempty"`
	Modified string `json:"modified"`
}

// RegisterManageFiles adds the file-management tool: scan a directory,
// clean temporary files, or hand the directory to the organization
// loop.
func (r *Registry) RegisterManageFiles(organize OrganizeFunc) {
	r.Register(&Tool{
		Name:        "manage_files",
		Description: "文件管理：scan 查看目录内容，clean 清理临时文件，organize 智能整理文件。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{"organize", "scan", "clean"},
					"description": "要执行的操作",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "目标目录，默认为桌面",
				},
			},
			"required": []string{"action"},
		},
		Timeout: organizeTimeout,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			in, err := DecodeFileArgs(args)
			if err != nil {
				return "", err
			}

			switch in.Action {
			case "scan":
				return ScanDirectory(in.Path)
			case "clean":
				return cleanTempFiles(in.Path)
			case "organize":
				if organize == nil {
					return "", fmt.Errorf("organize is not available")
				}
				return organize(ctx, in.Path), nil
			}
			return "", fmt.Errorf("unsupported action %q", in.Action)
		},
	})
}

// RegisterScanDirectory adds the standalone inspection tool used by the
// organization loop's restricted toolset.
func (r *Registry) RegisterScanDirectory() {
	r.Register(&Tool{
		Name:        "scan_directory",
		Description: "查看目录中的文件列表，包括文件名、大小、类型和修改时间。",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "要查看的目录路径",
				},
			},
			"required": []string{"path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := ExpandHome(stringArg(args, "path"))
			if path == "" {
				return "", fmt.Errorf("path is required")
			}
			return ScanDirectory(path)
		},
	})
}

// ScanDirectory lists a directory's entries as a JSON document the
// model can reason about.
func ScanDirectory(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("读取目录失败: %w", err)
	}

	var files []fileEntry
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if len(files) >= scanEntryLimit {
			break
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{
			Name:     entry.Name(),
			SizeKB:   info.Size() / 1024,
			Ext:      strings.ToLower(filepath.Ext(entry.Name())),
			IsDir:    entry.IsDir(),
			Modified: info.ModTime().Format(time.DateOnly),
		})
	}

	if len(files) == 0 {
		return fmt.Sprintf("📁 %s 目录是空的", path), nil
	}

	listing, err := json.MarshalIndent(files, "", "  ")
	if err != nil {
		return "", fmt.Errorf("编码目录列表失败: %w", err)
	}
	return fmt.Sprintf("📁 %s 中有 %d 个项目:\n%s", path, len(files), listing), nil
}

// cleanTempFiles removes files with temporary extensions plus macOS
// .DS_Store droppings.
func cleanTempFiles(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("读取目录失败: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name != ".DS_Store" && !tempExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if err := os.Remove(filepath.Join(path, name)); err != nil {
			continue
		}
		removed = append(removed, name)
	}

	if len(removed) == 0 {
		return fmt.Sprintf("✨ %s 很干净，没有需要清理的临时文件", path), nil
	}
	return fmt.Sprintf("🧹 已清理 %d 个临时文件: %s", len(removed), strings.Join(removed, ", ")), nil
}
