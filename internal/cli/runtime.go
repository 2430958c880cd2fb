// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - The services every command runs against.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/config"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/identity"
	"github.com/jeranaias/arkiv-tui/internal/keys"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/logging"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/secrets"
	"github.com/jeranaias/arkiv-tui/internal/session"
)

// =============================================================================
// RUNTIME
// =============================================================================

// Runtime holds the configuration, local store and remote clients shared by
// the commands. The identity side is connected lazily so that commands such
// as "config" work without a reachable backend.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Options    Options
	Log        zerolog.Logger

	Store   localstore.Store
	API     *api.Client
	Keys    *keys.Manager
	Stats   *chat.StatsTracker
	Variant authflow.Variant

	// Session is nil until Connect succeeds.
	Session *session.Provider

	// Clipboard writes text to the system clipboard.
	Clipboard func(text string) error

	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Prompt *Prompter

	idp          session.Identity
	sealer       *secrets.Sealer
	connectOnce  sync.Once
	connectErr   error
	restoreOnce  sync.Once
	restoreErr   error
	statsStarted bool
	closers      []io.Closer
}

// RuntimeOption configures NewRuntime.
type RuntimeOption func(*Runtime)

// WithIdentity replaces the identity provider client.
func WithIdentity(idp session.Identity) RuntimeOption {
	return func(r *Runtime) { r.idp = idp }
}

// WithIO replaces stdin, stdout and stderr.
func WithIO(in io.Reader, out, errw io.Writer) RuntimeOption {
	return func(r *Runtime) { r.In, r.Out, r.Err = in, out, errw }
}

// WithClipboard sets the clipboard writer.
func WithClipboard(fn func(text string) error) RuntimeOption {
	return func(r *Runtime) { r.Clipboard = fn }
}

// WithRuntimeLogger sets the logger handed to every component.
func WithRuntimeLogger(l zerolog.Logger) RuntimeOption {
	return func(r *Runtime) { r.Log = l }
}

// WithVariant selects the sign-in flow.
func WithVariant(v authflow.Variant) RuntimeOption {
	return func(r *Runtime) { r.Variant = v }
}

// withSealer is applied by Bootstrap when stored keys are encrypted.
func withSealer(s *secrets.Sealer) RuntimeOption {
	return func(r *Runtime) { r.sealer = s }
}

// NewRuntime wires the API client and key manager over kv.
func NewRuntime(cfg *config.Config, kv localstore.Store, opts Options, ro ...RuntimeOption) *Runtime {
	r := &Runtime{
		Config:  cfg,
		Options: opts,
		Log:     zerolog.Nop(),
		Store:   kv,
		Variant: authflow.DefaultVariant,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
	for _, opt := range ro {
		opt(r)
	}
	r.Prompt = NewPrompter(r.In, r.Err)

	r.API = api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.Timeout()),
		api.WithUploadTimeout(cfg.UploadTimeout()),
		api.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst),
		api.WithLogger(r.Log),
		api.WithTokenSource(api.TokenSourceFunc(r.accessToken)),
		api.WithKeySource(api.KeySourceFunc(r.activeKey)),
	)

	keyOpts := []keys.Option{keys.WithLogger(r.Log)}
	if r.sealer != nil {
		keyOpts = append(keyOpts, keys.WithSealer(r.sealer))
	}
	r.Keys = keys.NewManager(kv, r.API, keyOpts...)
	r.Stats = chat.NewStatsTracker(r.API, chat.WithStatsLogger(r.Log))
	return r
}

func (r *Runtime) accessToken(ctx context.Context) (string, error) {
	if r.Session == nil {
		return "", api.ErrUnauthenticated
	}
	return r.Session.AccessToken(ctx)
}

func (r *Runtime) activeKey(ctx context.Context) (string, error) {
	return r.Keys.ActiveKey(ctx)
}

// Connect builds the identity client and session provider. When the
// identity URL or anon key is not configured it is fetched from the
// backend's /config endpoint.
func (r *Runtime) Connect(ctx context.Context) error {
	r.connectOnce.Do(func() {
		idp := r.idp
		if idp == nil {
			client, err := r.identityClient(ctx)
			if err != nil {
				r.connectErr = err
				return
			}
			idp = client
		}
		r.Session = session.NewProvider(idp, r.Store,
			session.WithAccountService(r.API),
			session.WithRedirectURL(r.Config.Identity.RedirectURL),
			session.WithLogger(r.Log),
		)
	})
	return r.connectErr
}

func (r *Runtime) identityClient(ctx context.Context) (*identity.Client, error) {
	idc := r.Config.Identity
	if idc.URL == "" || idc.AnonKey == "" {
		remote, err := r.API.GetConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", api.MsgConfigFailed, err)
		}
		if idc.URL == "" {
			idc.URL = remote.IdentityURL
		}
		if idc.AnonKey == "" {
			idc.AnonKey = remote.IdentityAnonKey
		}
	}
	if idc.URL == "" || idc.AnonKey == "" {
		return nil, &ConfigError{Err: identity.ErrNotConfigured}
	}
	return identity.NewClient(idc.URL, idc.AnonKey, identity.WithLogger(r.Log)), nil
}

// Restore connects and restores the persisted session.
func (r *Runtime) Restore(ctx context.Context) error {
	if err := r.Connect(ctx); err != nil {
		return err
	}
	r.restoreOnce.Do(func() { r.restoreErr = r.Session.Init(ctx) })
	return r.restoreErr
}

// RequireUser restores the session and returns the signed-in user.
func (r *Runtime) RequireUser(ctx context.Context) (*model.User, error) {
	if err := r.Restore(ctx); err != nil {
		return nil, err
	}
	u := r.Session.User()
	if u == nil {
		return nil, ErrNotSignedIn
	}
	return u, nil
}

// OpenChat opens the signed-in user's chat store and starts stats syncing.
// The caller closes the store.
func (r *Runtime) OpenChat(ctx context.Context) (*chat.Store, error) {
	u, err := r.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	index := history.New(r.Store, u.ID, history.WithLogger(r.Log))
	store, err := chat.NewStore(ctx, r.API, index, r.Store,
		chat.WithStats(r.Stats),
		chat.WithLogger(r.Log),
	)
	if err != nil {
		return nil, err
	}
	if !r.statsStarted {
		r.Stats.Start(context.WithoutCancel(ctx))
		r.statsStarted = true
	}
	return store, nil
}

// History returns the signed-in user's chat index.
func (r *Runtime) History(ctx context.Context) (*history.Index, error) {
	u, err := r.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return history.New(r.Store, u.ID, history.WithLogger(r.Log)), nil
}

// Close flushes pending stats and releases the store and log file.
func (r *Runtime) Close() error {
	r.Stats.Close()
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// AddCloser registers c to be closed by Close.
func (r *Runtime) AddCloser(c io.Closer) {
	r.closers = append(r.closers, c)
}

// quiet reports whether progress messages are suppressed.
func (r *Runtime) quiet() bool {
	return r.Options.Quiet || r.Options.JSON
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

// Bootstrap loads the configuration, sets up logging and opens the local
// database.
func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, path, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty}
	if opts.Verbose {
		logOpts.Level = "debug"
		logOpts.Pretty = true
		logOpts.Console = os.Stderr
	} else if logPath, err := cfg.LogPath(); err == nil {
		logOpts.File = logPath
	}
	logger, logCloser, err := logging.Setup(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		logger = zerolog.Nop()
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		_ = logCloser.Close()
		return nil, &ConfigError{Err: err}
	}
	kv, err := localstore.OpenSQLite(dbPath)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	ro := []RuntimeOption{WithRuntimeLogger(logger), WithClipboard(clipboard.WriteAll)}
	if cfg.Storage.EncryptKeys {
		keyPath, err := cfg.MasterKeyPath()
		if err != nil {
			_ = kv.Close()
			_ = logCloser.Close()
			return nil, &ConfigError{Err: err}
		}
		sealer, err := secrets.LoadOrCreate(keyPath)
		if err != nil {
			_ = kv.Close()
			_ = logCloser.Close()
			return nil, fmt.Errorf("load key-sealing secret: %w", err)
		}
		ro = append(ro, withSealer(sealer))
	}

	r := NewRuntime(cfg, kv, opts, ro...)
	r.ConfigPath = path
	r.AddCloser(logCloser)
	r.AddCloser(kv)
	logger.Debug().Str("db", dbPath).Str("api", cfg.API.BaseURL).Msg("runtime ready")
	return r, nil
}

// LoadConfig loads the file at path, or the default config file when path
// is empty, and returns the config with the path "config set" writes to.
func LoadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, "", &ConfigError{Err: err}
		}
		return cfg, path, nil
	}

	cfg, err := config.Load()
	if cfg == nil {
		return nil, "", &ConfigError{Err: err}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	def, perr := config.ConfigPathTOML()
	if perr != nil {
		return nil, "", &ConfigError{Err: perr}
	}
	return cfg, def, nil
}
