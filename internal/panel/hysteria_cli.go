package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	DefaultCLIPath   = "/etc/hysteria/core/cli.py"
	DefaultCLIPython = "python3"

	uriWarning = "Warning: IP4 or IP6 is not set in configs.env. Fetching from ip.gs...\n"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// HysteriaCLI implements Provisioner by shelling out to the Hysteria2 panel CLI.
type HysteriaCLI struct {
	python  string
	cliPath string
	runner  Runner
}

func NewHysteriaCLI(python, cliPath string, runner Runner) *HysteriaCLI {
	if python == "" {
		python = DefaultCLIPython
	}
	if cliPath == "" {
		cliPath = DefaultCLIPath
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &HysteriaCLI{python: python, cliPath: cliPath, runner: runner}
}

func (h *HysteriaCLI) PanelType() string {
	return "hysteria_cli"
}

func (h *HysteriaCLI) run(ctx context.Context, args ...string) (string, error) {
	out, err := h.runner.Run(ctx, h.python, append([]string{h.cliPath}, args...)...)
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return "", fmt.Errorf("%s: %w: %s", args[0], err, text)
		}
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	return text, nil
}

func (h *HysteriaCLI) AddUser(ctx context.Context, req CreateUserRequest) (*ProvisionResult, error) {
	if req.Username == "" || req.TrafficGB <= 0 || req.ExpirationDays <= 0 {
		return nil, fmt.Errorf("hysteria add-user: invalid request %+v", req)
	}
	out, err := h.run(ctx, "add-user",
		"-u", req.Username,
		"-t", strconv.Itoa(req.TrafficGB),
		"-e", strconv.Itoa(req.ExpirationDays),
	)
	if err != nil {
		return nil, err
	}
	return &ProvisionResult{
		Username:       req.Username,
		TrafficGB:      req.TrafficGB,
		ExpirationDays: req.ExpirationDays,
		Output:         out,
	}, nil
}

func (h *HysteriaCLI) UserURI(ctx context.Context, username string, ipVersion int) (string, error) {
	out, err := h.run(ctx, "show-user-uri", "-u", username, "-ip", strconv.Itoa(ipVersion))
	if err != nil {
		return "", err
	}
	uri := CleanURI(out)
	if uri == "" {
		return "", fmt.Errorf("show-user-uri %s: %w", username, ErrUserNotFound)
	}
	return uri, nil
}

func (h *HysteriaCLI) ListUsers(ctx context.Context) (map[string]PanelUser, error) {
	out, err := h.run(ctx, "list-users")
	if err != nil {
		return nil, err
	}
	users := map[string]PanelUser{}
	if out == "" {
		return users, nil
	}
	if err := json.Unmarshal([]byte(out), &users); err != nil {
		return nil, fmt.Errorf("list-users parse error: %w", err)
	}
	for name, u := range users {
		u.Username = name
		users[name] = u
	}
	return users, nil
}

// CleanURI strips the CLI's IP detection warning and the "IPv4:"/"IPv6:" label.
func CleanURI(out string) string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, uriWarning, "")
	out = strings.ReplaceAll(out, strings.TrimSuffix(uriWarning, "\n"), "")

	var kept bytes.Buffer
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "IPv4:" || line == "IPv6:" {
			continue
		}
		if kept.Len() > 0 {
			kept.WriteByte('\n')
		}
		kept.WriteString(line)
	}
	return kept.String()
}
