package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// scriptSuffixes are argument extensions treated as interpreter scripts.
var scriptSuffixes = []string{".py", ".sh"}

// CheckDetectorCommand reports whether a command-mode detector can start.
// The executable must resolve on PATH and, when argv names an interpreter
// script such as "python3 scripts/yolo_detect.py", the script must exist.
func CheckDetectorCommand(argv []string) Status {
	status := Status{
		Name:        "Detector",
		Description: "Object detection for image enrichment",
	}
	if len(argv) == 0 {
		status.Detail = "command not configured"
		return status
	}
	status = checkBinary(Requirement{Name: status.Name, Command: argv[0], Description: status.Description})
	if !status.Available {
		return status
	}
	for _, arg := range argv[1:] {
		if !isScript(arg) {
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("script %q not found", arg)
			return status
		}
		if info.IsDir() {
			status.Available = false
			status.Detail = fmt.Sprintf("script %q is a directory", arg)
			return status
		}
		status.Command = strings.Join([]string{argv[0], filepath.Clean(arg)}, " ")
	}
	return status
}

func isScript(arg string) bool {
	if strings.HasPrefix(arg, "-") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(arg))
	for _, suffix := range scriptSuffixes {
		if ext == suffix {
			return true
		}
	}
	return false
}
