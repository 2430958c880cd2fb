// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Health checks for the local setup and the backend.
//
// Command: doctor
// Aliases: diag, status
//
// Checks performed:
//  1. Config Valid     - the configuration passes validation
//  2. Data Writable    - the data directory accepts files
//  3. Backend          - GET /health answers
//  4. Identity         - the identity provider is configured or discoverable
//  5. Session          - a signed-in session is stored
//  6. API Key          - which Gemini key requests use
//
// Exit codes: 0 when nothing failed, 1 otherwise.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arkiv-tui/internal/api"
)

const doctorTimeout = 10 * time.Second

var (
	checkPassStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	checkWarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	checkFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	fixStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true).PaddingLeft(2)
)

// CheckStatus is the outcome of one health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the styled status marker.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return checkPassStyle.Render("[OK]")
	case CheckWarn:
		return checkWarnStyle.Render("[!!]")
	default:
		return checkFailStyle.Render("[FAIL]")
	}
}

// HealthCheck is a single check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"`
}

// Render formats the check with its suggested fix.
func (c *HealthCheck) Render() string {
	out := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		out += "\n" + fixStyle.Render("-> "+c.Fix)
	}
	return out
}

type doctorCheck struct {
	HealthCheck
	State string `json:"status"`
}

type doctorSummary struct {
	Passed  int  `json:"passed"`
	Warned  int  `json:"warned"`
	Failed  int  `json:"failed"`
	Healthy bool `json:"healthy"`
}

// HandleDoctor runs every check and fails when any of them failed.
func HandleDoctor(ctx context.Context, r *Runtime, args Args) error {
	checks := r.runChecks(ctx)

	var sum doctorSummary
	out := make([]doctorCheck, 0, len(checks))
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			sum.Passed++
		case CheckWarn:
			sum.Warned++
		case CheckFail:
			sum.Failed++
		}
		out = append(out, doctorCheck{HealthCheck: *c, State: c.Status.String()})
	}
	sum.Healthy = sum.Failed == 0

	err := r.emit("doctor", map[string]any{"checks": out, "summary": sum}, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render("Arkiv Doctor"))
		fmt.Fprintln(w, RenderSeparator(41))
		fmt.Fprintln(w)
		for _, c := range checks {
			fmt.Fprintln(w, c.Render())
		}
		fmt.Fprintln(w)
		parts := []string{fmt.Sprintf("%d passed", sum.Passed)}
		if sum.Warned > 0 {
			parts = append(parts, checkWarnStyle.Render(fmt.Sprintf("%d warning", sum.Warned)))
		}
		if sum.Failed > 0 {
			parts = append(parts, checkFailStyle.Render(fmt.Sprintf("%d failed", sum.Failed)))
		}
		fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, ", ")))
	})
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d health check(s) failed", sum.Failed)
	}
	return nil
}

func (r *Runtime) runChecks(ctx context.Context) []*HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	checks := []*HealthCheck{
		r.checkConfig(),
		r.checkDataDir(),
		r.checkBackend(ctx),
		r.checkIdentity(ctx),
	}
	session := r.checkSession(ctx)
	checks = append(checks, session)
	if session.Status == CheckPass {
		checks = append(checks, r.checkKeys(ctx))
	}
	return checks
}

func (r *Runtime) checkConfig() *HealthCheck {
	c := &HealthCheck{Name: "config"}
	if err := r.Config.Validate(); err != nil {
		c.Status = CheckFail
		c.Message = "Config invalid: " + err.Error()
		c.Fix = "arkiv config reset"
		return c
	}
	c.Message = "Config valid (" + r.ConfigPath + ")"
	return c
}

func (r *Runtime) checkDataDir() *HealthCheck {
	c := &HealthCheck{Name: "data_dir"}
	dir, err := r.Config.DataDir()
	if err == nil {
		err = os.MkdirAll(dir, 0700)
	}
	if err == nil {
		var f *os.File
		if f, err = os.CreateTemp(dir, ".doctor-*"); err == nil {
			name := f.Name()
			f.Close()
			os.Remove(name)
		}
	}
	if err != nil {
		c.Status = CheckFail
		c.Message = "Data directory not writable: " + err.Error()
		c.Fix = "Set storage.data_dir to a writable folder"
		return c
	}
	c.Message = "Data directory writable (" + dir + ")"
	return c
}

func (r *Runtime) checkBackend(ctx context.Context) *HealthCheck {
	c := &HealthCheck{Name: "backend"}
	start := time.Now()
	h, err := r.API.Health(ctx)
	if err != nil {
		c.Status = CheckFail
		c.Message = "Backend unreachable at " + r.Config.API.BaseURL + ": " + api.Detail(err, api.MsgRequestFailed)
		c.Fix = "arkiv config set api.base_url URL"
		return c
	}
	status := h.Status
	if status == "" {
		status = "ok"
	}
	c.Message = fmt.Sprintf("Backend %s at %s (%d ms)", status, r.Config.API.BaseURL, time.Since(start).Milliseconds())
	return c
}

func (r *Runtime) checkIdentity(ctx context.Context) *HealthCheck {
	c := &HealthCheck{Name: "identity"}
	if err := r.Connect(ctx); err != nil {
		c.Status = CheckFail
		c.Message = "Identity provider unavailable: " + api.Detail(err, "not configured")
		c.Fix = "arkiv config set identity.url URL"
		return c
	}
	c.Message = "Identity provider configured"
	return c
}

func (r *Runtime) checkSession(ctx context.Context) *HealthCheck {
	c := &HealthCheck{Name: "session"}
	if r.Session == nil {
		c.Status = CheckWarn
		c.Message = "Session not checked"
		return c
	}
	if err := r.Restore(ctx); err != nil {
		c.Status = CheckWarn
		c.Message = "Session could not be restored: " + api.Detail(err, "unknown error")
		c.Fix = "arkiv login"
		return c
	}
	u := r.Session.User()
	if u == nil {
		c.Status = CheckWarn
		c.Message = "Not signed in"
		c.Fix = "arkiv login"
		return c
	}
	c.Message = "Signed in as " + u.Email
	return c
}

func (r *Runtime) checkKeys(ctx context.Context) *HealthCheck {
	c := &HealthCheck{Name: "api_key"}
	st, err := r.Keys.State(ctx)
	if err != nil {
		c.Status = CheckWarn
		c.Message = "Stored keys unreadable: " + err.Error()
		return c
	}
	if i := st.ActiveIndex(); i >= 0 {
		c.Message = fmt.Sprintf("Using Gemini Key %d (%s)", i+1, st.Keys[i].Masked())
		return c
	}
	c.Message = "Using the default key"
	return c
}
