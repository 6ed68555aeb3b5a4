// Package service installs and removes the speaker switch as a system
// service (systemd on Linux, the service control manager on Windows).
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// Service identity.
const (
	Name        = "speakerswitch"
	DisplayName = "ZuidWest FM Speaker Switch"
	Description = "Switches studio speakers on and off based on audio activity"
)

// Errors returned by Install and Uninstall.
var (
	ErrServiceUnsupported = errors.New("service installation is not supported on this platform")
	ErrNotPrivileged      = errors.New("service installation requires root or administrator privileges")
)

// Options describe the service to install.
type Options struct {
	Executable string // absolute path; empty = current executable
	ConfigPath string // passed as --config
}

// resolve fills in the executable path and makes paths absolute.
func (o Options) resolve() (Options, error) {
	if o.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return o, util.WrapError("get executable path", err)
		}
		o.Executable = exe
	}
	exe, err := filepath.Abs(o.Executable)
	if err != nil {
		return o, util.WrapError("resolve executable path", err)
	}
	o.Executable = exe

	if o.ConfigPath != "" {
		cfg, err := filepath.Abs(o.ConfigPath)
		if err != nil {
			return o, util.WrapError("resolve config path", err)
		}
		o.ConfigPath = cfg
	}
	return o, nil
}

// commandLine is the argument list the service manager starts.
func (o Options) commandLine() []string {
	args := []string{o.Executable, "run"}
	if o.ConfigPath != "" {
		args = append(args, "--config", o.ConfigPath)
	}
	return args
}

// runner executes an external command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := util.ExtractLastError(string(out))
		if msg == "" {
			return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return out, nil
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{.Description}}
Wants=network-online.target
After=network-online.target sound.target

[Service]
Type=simple
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=5
{{- if .WorkingDirectory}}
WorkingDirectory={{.WorkingDirectory}}
{{- end}}

[Install]
WantedBy=multi-user.target
`))

// renderUnit returns the systemd unit file for o.
func renderUnit(o Options) (string, error) {
	quoted := make([]string, 0, len(o.commandLine()))
	for _, a := range o.commandLine() {
		quoted = append(quoted, systemdQuote(a))
	}

	data := map[string]string{
		"Description": Description,
		"ExecStart":   strings.Join(quoted, " "),
	}
	if o.ConfigPath != "" {
		data["WorkingDirectory"] = filepath.Dir(o.ConfigPath)
	}

	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, data)
	if err != nil {
		return "", util.WrapError("render unit file", err)
	}
	return buf.String(), nil
}

// systemdQuote quotes an ExecStart argument when it contains spaces.
func systemdQuote(s string) string {
	if !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// scCreateArgs returns the sc.exe arguments that register the service.
func scCreateArgs(o Options) []string {
	parts := o.commandLine()
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = `"` + p + `"`
		}
	}
	return []string{
		"create", Name,
		"binPath=", strings.Join(parts, " "),
		"start=", "auto",
		"DisplayName=", DisplayName,
	}
}
