// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Sign-in, sign-up and password recovery commands.
//
// Interactive commands drive the same authflow.Machine as the terminal UI,
// so validation and form transitions match. Companion commands (verify,
// reset-password) finish a flow started in an earlier invocation.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/identity"
)

// userInfo is the --json shape of the signed-in user.
type userInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	NewEmail  string `json:"new_email,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (r *Runtime) currentUserInfo() userInfo {
	u := r.Session.User()
	if u == nil {
		return userInfo{}
	}
	info := userInfo{ID: u.ID, Email: u.Email, Name: u.DisplayName(), NewEmail: u.NewEmail}
	if exp := r.Session.Expiry(); !exp.IsZero() {
		info.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	return info
}

func (r *Runtime) signedIn(command string) error {
	info := r.currentUserInfo()
	return r.success(command, "Signed in as "+info.Email, info)
}

// argOrPrompt returns positional i, prompting with label when it is absent.
func (r *Runtime) argOrPrompt(p *ArgParser, i int, label string) (string, error) {
	if v := strings.TrimSpace(p.Positional(i)); v != "" {
		return v, nil
	}
	return r.Prompt.Line(label)
}

func (r *Runtime) newPassword() (string, string, error) {
	pw, err := r.Prompt.Secret("New password: ")
	if err != nil {
		return "", "", err
	}
	confirm, err := r.Prompt.Secret("Confirm password: ")
	if err != nil {
		return "", "", err
	}
	return pw, confirm, nil
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// HandleLogin signs in. The passwordless build emails a code and reads it
// back instead of asking for a password.
func HandleLogin(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	if err := r.Restore(ctx); err != nil {
		return err
	}
	email, err := r.argOrPrompt(p, 0, "Email: ")
	if err != nil {
		return err
	}

	m := authflow.New(r.Session, r.Variant)
	if r.Variant == authflow.VariantPasswordless {
		if err := m.Submit(ctx, authflow.Form{Email: email}); err != nil {
			return err
		}
		r.info(authflow.MsgMagicLinkSent)
		code, err := r.Prompt.Line("Code: ")
		if err != nil {
			return err
		}
		if err := m.Submit(ctx, authflow.Form{Code: code}); err != nil {
			return err
		}
		return r.signedIn("login")
	}

	password, err := r.Prompt.Secret("Password: ")
	if err != nil {
		return err
	}
	if err := m.Submit(ctx, authflow.Form{Email: email, Password: password}); err != nil {
		return err
	}
	return r.signedIn("login")
}

// HandleLogout signs out and discards the stored session.
func HandleLogout(ctx context.Context, r *Runtime, args Args) error {
	if _, err := r.RequireUser(ctx); err != nil {
		return err
	}
	if err := r.Session.SignOut(ctx); err != nil {
		return err
	}
	return r.success("logout", "Signed out", nil)
}

// HandleWhoami prints the signed-in user.
func HandleWhoami(ctx context.Context, r *Runtime, args Args) error {
	if _, err := r.RequireUser(ctx); err != nil {
		return err
	}
	info := r.currentUserInfo()
	return r.emit("whoami", info, func(w io.Writer) {
		fmt.Fprintln(w, RenderField("Name", info.Name))
		fmt.Fprintln(w, RenderField("Email", info.Email))
		if info.NewEmail != "" {
			fmt.Fprintln(w, RenderField("Pending email", info.NewEmail+" (check your inbox)"))
		}
		fmt.Fprintln(w, RenderField("User ID", info.ID))
		if exp := r.Session.Expiry(); !exp.IsZero() {
			fmt.Fprintln(w, RenderField("Session expires", exp.Local().Format("2006-01-02 15:04")))
		}
	})
}

// =============================================================================
// SIGN UP / VERIFY
// =============================================================================

// HandleSignup creates an account. When the provider requires email
// confirmation an interactive run asks for the code right away.
func HandleSignup(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	if r.Variant == authflow.VariantPasswordless {
		return &UsageError{
			Message: "this build creates accounts on first sign-in",
			Hint:    "Run 'arkiv login EMAIL'.",
		}
	}
	if err := r.Restore(ctx); err != nil {
		return err
	}
	email, err := r.argOrPrompt(p, 0, "Email: ")
	if err != nil {
		return err
	}
	pw, confirm, err := r.newPassword()
	if err != nil {
		return err
	}

	m := authflow.New(r.Session, r.Variant)
	if err := m.SwitchTo(authflow.ModeSignup); err != nil {
		return err
	}
	form := authflow.Form{Email: email, Password: pw, Confirm: confirm, Name: p.Flag("name")}
	if err := m.Submit(ctx, form); err != nil {
		return err
	}
	if m.Mode() != authflow.ModeVerify {
		return r.signedIn("signup")
	}

	if r.Options.JSON || !r.Prompt.Interactive() {
		return r.success("signup", fmt.Sprintf("Check %s for a 6-digit code, then run: arkiv verify %s CODE", email, email),
			map[string]any{"email": email, "needs_confirmation": true})
	}
	r.info("We sent a 6-digit code to %s", email)
	code, err := r.Prompt.Line("Code: ")
	if err != nil {
		return err
	}
	if err := m.Submit(ctx, authflow.Form{Code: code}); err != nil {
		return err
	}
	return r.signedIn("signup")
}

var otpTypes = map[string]identity.OTPType{
	"signup":       identity.OTPSignup,
	"email":        identity.OTPEmail,
	"magiclink":    identity.OTPMagicLink,
	"recovery":     identity.OTPRecovery,
	"email_change": identity.OTPEmailChange,
}

// HandleVerify confirms an emailed code, or resends it with --resend.
func HandleVerify(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "resend")
	typ, ok := otpTypes[strings.ToLower(p.FlagOrDefault("type", "signup"))]
	if !ok {
		return &UsageError{
			Message: fmt.Sprintf("unknown code type %q", p.Flag("type")),
			Hint:    "Valid types: signup, email, magiclink, recovery, email_change",
		}
	}
	email := p.Positional(0)
	if email == "" {
		return ErrMissingArgument("EMAIL", "arkiv verify EMAIL CODE [--type TYPE]")
	}
	if err := r.Restore(ctx); err != nil {
		return err
	}

	if p.BoolFlag("resend") {
		if err := r.Session.ResendOTP(ctx, email, typ); err != nil {
			return err
		}
		return r.success("verify", authflow.MsgCodeResent, nil)
	}

	code, err := authflow.ValidateCode(p.Positional(1))
	if err != nil {
		return err
	}
	if err := r.Session.VerifyOTP(ctx, email, code, typ); err != nil {
		return err
	}
	return r.signedIn("verify")
}

// HandleMagicLink emails a one-time sign-in code.
func HandleMagicLink(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	email := p.Positional(0)
	if email == "" {
		return ErrMissingArgument("EMAIL", "arkiv magic-link EMAIL")
	}
	if err := r.Restore(ctx); err != nil {
		return err
	}
	if err := r.Session.SendMagicLink(ctx, email); err != nil {
		return err
	}
	r.info("Then run: arkiv verify %s CODE --type email", email)
	return r.success("magic-link", authflow.MsgMagicLinkSent, map[string]string{"email": email})
}

// =============================================================================
// PASSWORD RECOVERY
// =============================================================================

// HandleForgot emails a reset code. An interactive run continues straight
// into choosing the new password.
func HandleForgot(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	if r.Variant == authflow.VariantPasswordless {
		return &UsageError{Message: "this build has no passwords", Hint: "Run 'arkiv login EMAIL'."}
	}
	if err := r.Restore(ctx); err != nil {
		return err
	}
	email, err := r.argOrPrompt(p, 0, "Email: ")
	if err != nil {
		return err
	}

	m := authflow.New(r.Session, r.Variant)
	if err := m.SwitchTo(authflow.ModeForgot); err != nil {
		return err
	}
	if err := m.Submit(ctx, authflow.Form{Email: email}); err != nil {
		return err
	}

	if r.Options.JSON || !r.Prompt.Interactive() {
		return r.success("forgot", fmt.Sprintf("Check %s for a reset code, then run: arkiv reset-password %s CODE", email, email),
			map[string]string{"email": email})
	}
	r.info("Enter the code sent to %s and choose a new password.", email)
	code, err := r.Prompt.Line("Code: ")
	if err != nil {
		return err
	}
	pw, confirm, err := r.newPassword()
	if err != nil {
		return err
	}
	if err := m.Submit(ctx, authflow.Form{Code: code, Password: pw, Confirm: confirm}); err != nil {
		return err
	}
	return r.success("forgot", authflow.MsgResetComplete, nil)
}

// HandleResetPassword sets a new password with a code from "arkiv forgot".
// The recovery code signs the user in; they are signed out again afterwards.
func HandleResetPassword(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw)
	email := p.Positional(0)
	if email == "" {
		return ErrMissingArgument("EMAIL", "arkiv reset-password EMAIL CODE")
	}
	raw, err := r.argOrPrompt(p, 1, "Code: ")
	if err != nil {
		return err
	}
	code, err := authflow.ValidateCode(raw)
	if err != nil {
		return err
	}
	pw, confirm, err := r.newPassword()
	if err != nil {
		return err
	}
	if err := authflow.ValidatePasswords(pw, confirm); err != nil {
		return err
	}
	if err := r.Restore(ctx); err != nil {
		return err
	}

	s := r.Session
	s.SetPasswordResetInProgress(true)
	defer s.SetPasswordResetInProgress(false)
	if err := s.VerifyOTP(ctx, email, code, identity.OTPRecovery); err != nil {
		return err
	}
	if err := s.UpdatePassword(ctx, pw); err != nil {
		return err
	}
	if err := s.SignOut(ctx); err != nil {
		return err
	}
	return r.success("reset-password", authflow.MsgResetComplete, nil)
}

// =============================================================================
// OAUTH
// =============================================================================

// HandleOAuth prints the provider sign-in URL and completes the sign-in
// from the URL the browser is redirected to. With --url-only it only
// prints the link.
func HandleOAuth(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "url-only")
	provider := p.Positional(0)
	if provider == "" {
		provider = r.Config.Identity.OAuthProvider
	}
	if err := r.Restore(ctx); err != nil {
		return err
	}
	link := r.Session.OAuthURL(provider)

	if p.BoolFlag("url-only") {
		return r.emit("oauth", map[string]string{"provider": provider, "url": link}, func(w io.Writer) {
			fmt.Fprintln(w, link)
		})
	}

	fmt.Fprintln(r.Err, "Open this link, sign in, then paste the URL your browser ends on:")
	fmt.Fprintln(r.Err, link)
	if r.Clipboard != nil && r.Clipboard(link) == nil {
		r.info("(link copied to clipboard)")
	}
	redirect, err := r.Prompt.Line("Redirect URL: ")
	if err != nil {
		return err
	}
	if err := r.Session.CompleteOAuth(ctx, redirect); err != nil {
		return err
	}
	return r.signedIn("oauth")
}
