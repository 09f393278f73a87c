package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"medwarehouse/internal/config"
	"medwarehouse/internal/deps"
)

// Pinger is the warehouse reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least required bytes
// available to unprivileged users.
func CheckFreeSpace(name, path string, required uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	detail := fmt.Sprintf("%s free", humanBytes(free))
	if free < required {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, humanBytes(required))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckWarehouse pings the warehouse with a short deadline.
func CheckWarehouse(ctx context.Context, db Pinger) Result {
	const name = "Warehouse"
	if db == nil {
		return Result{Name: name, Detail: "not opened"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%v)", db.Driver(), err)}
	}
	return Result{Name: name, Passed: true, Detail: db.Driver() + " reachable"}
}

// CheckDetector verifies the configured detector: the command resolves on
// PATH, or the HTTP endpoint answers.
func CheckDetector(ctx context.Context, cfg config.Detector) Result {
	const name = "Detector"
	switch cfg.Mode {
	case "http":
		return CheckEndpoint(ctx, name, cfg.URL)
	default:
		status := deps.CheckDetectorCommand(cfg.Command)
		if !status.Available {
			return Result{Name: name, Detail: status.Detail}
		}
		return Result{Name: name, Passed: true, Detail: status.Command}
	}
}

// CheckEndpoint treats any non-5xx answer as reachable; detectors typically
// reject GET on their POST route.
func CheckEndpoint(ctx context.Context, name, rawURL string) Result {
	base := strings.TrimSpace(rawURL)
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("endpoint error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDbt verifies the dbt binary and project directory.
func CheckDbt(cfg config.Transform) Result {
	const name = "dbt"
	status := deps.CheckBinaries([]deps.Requirement{{Name: name, Command: cfg.DbtBinary}})[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	if info, err := os.Stat(cfg.DbtProjectDir); err != nil || !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("project dir %s missing", cfg.DbtProjectDir)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.DbtBinary}
}

// CheckTelegram verifies MTProto credentials and an authorized session file.
func CheckTelegram(cfg config.Telegram) Result {
	const name = "Telegram"
	if cfg.APIID == 0 || strings.TrimSpace(cfg.APIHash) == "" {
		return Result{Name: name, Detail: "api_id/api_hash missing"}
	}
	if _, err := os.Stat(cfg.SessionPath); err != nil {
		return Result{Name: name, Detail: "no session; run medwh telegram login"}
	}
	return Result{Name: name, Passed: true, Detail: "credentials and session present"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
