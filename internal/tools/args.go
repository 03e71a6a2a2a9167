package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The model's argument payloads arrive as untyped maps. Each tool
// decodes its map into a typed struct right at the boundary, applying
// defaults and enum validation before any work happens.

// AppControlArgs are the arguments for control_application.
type AppControlArgs struct {
	TaskDescription string
	TargetApp       string
}

// DecodeAppControlArgs validates control_application arguments.
func DecodeAppControlArgs(args map[string]any) (AppControlArgs, error) {
	out := AppControlArgs{
		TaskDescription: stringArg(args, "task_description"),
		TargetApp:       stringArg(args, "target_app"),
	}
	if out.TaskDescription == "" {
		return out, fmt.Errorf("task_description is required")
	}
	return out, nil
}

// FileArgs are the arguments for manage_files.
type FileArgs struct {
	Action string
	Path   string
}

// DecodeFileArgs validates manage_files arguments, defaulting the path
// to the desktop.
func DecodeFileArgs(args map[string]any) (FileArgs, error) {
	out := FileArgs{
		Action: stringArg(args, "action"),
		Path:   stringArg(args, "path"),
	}
	switch out.Action {
	case "organize", "scan", "clean":
	case "":
		return out, fmt.Errorf("action is required")
	default:
		return out, fmt.Errorf("unsupported action %q", out.Action)
	}
	if out.Path == "" {
		out.Path = "~/Desktop"
	}
	out.Path = ExpandHome(out.Path)
	return out, nil
}

// PythonArgs are the arguments for execute_python.
type PythonArgs struct {
	Task string
	Code string
}

// DecodePythonArgs validates execute_python arguments.
func DecodePythonArgs(args map[string]any) (PythonArgs, error) {
	out := PythonArgs{
		Task: stringArg(args, "task"),
		Code: stringArg(args, "code"),
	}
	if out.Task == "" && out.Code == "" {
		return out, fmt.Errorf("task is required")
	}
	return out, nil
}

// MailArgs are the arguments for gmail_operation.
type MailArgs struct {
	Action    string
	Count     int
	ToEmail   string
	Subject   string
	Body      string
	Recipient string
	Purpose   string
}

// DecodeMailArgs validates gmail_operation arguments, defaulting the
// read count to 3.
func DecodeMailArgs(args map[string]any) (MailArgs, error) {
	out := MailArgs{
		Action:    stringArg(args, "action"),
		Count:     intArg(args, "count"),
		ToEmail:   stringArg(args, "to_email"),
		Subject:   stringArg(args, "subject"),
		Body:      stringArg(args, "body"),
		Recipient: stringArg(args, "recipient"),
		Purpose:   stringArg(args, "purpose"),
	}
	switch out.Action {
	case "read", "read_unread", "send", "compose":
	case "":
		return out, fmt.Errorf("action is required")
	default:
		return out, fmt.Errorf("unsupported action %q", out.Action)
	}
	if out.Count <= 0 {
		out.Count = 3
	}
	if out.Action == "send" && (out.ToEmail == "" || out.Subject == "") {
		return out, fmt.Errorf("send requires to_email and subject")
	}
	if out.Action == "compose" && out.Recipient == "" {
		return out, fmt.Errorf("compose requires recipient")
	}
	return out, nil
}

// ExpandHome resolves a leading ~ against the current user's home
// directory. Paths without the prefix pass through unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
