// Package cli is the hrportal command line client. Every invocation is a
// fresh process: it rehydrates the persisted session, runs one command
// against the API and exits.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hrportal/internal/domain/access"
	"hrportal/internal/platform/logging"
	"hrportal/internal/portal/apiclient"
	"hrportal/internal/portal/guard"
	"hrportal/internal/portal/session"
)

const (
	StorageFile  = "file"
	StorageRedis = "redis"

	envPrefix      = "HRPORTAL"
	defaultProfile = "default"
)

var ErrNotSignedIn = errors.New("not signed in, run `hrportal login` first")

type Config struct {
	APIURL      string
	Storage     string
	StoragePath string
	RedisAddr   string
	Profile     string
	LogFormat   string
	LogLevel    string
}

func loadConfig(v *viper.Viper) (Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hrportal")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "hrportal"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		APIURL:      strings.TrimSpace(v.GetString("api-url")),
		Storage:     strings.ToLower(v.GetString("storage")),
		StoragePath: v.GetString("storage-path"),
		RedisAddr:   v.GetString("redis-addr"),
		Profile:     v.GetString("profile"),
		LogFormat:   v.GetString("log-format"),
		LogLevel:    v.GetString("log-level"),
	}
	if cfg.Profile == "" {
		cfg.Profile = defaultProfile
	}
	if cfg.APIURL == "" {
		return Config{}, errors.New("api-url is required")
	}

	switch cfg.Storage {
	case StorageFile:
		if cfg.StoragePath == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return Config{}, fmt.Errorf("resolve storage path: %w", err)
			}
			cfg.StoragePath = filepath.Join(dir, "hrportal", cfg.Profile, "session.json")
		}
	case StorageRedis:
		if cfg.RedisAddr == "" {
			return Config{}, errors.New("redis-addr is required for redis storage")
		}
	default:
		return Config{}, fmt.Errorf("unknown storage %q (want file or redis)", cfg.Storage)
	}
	return cfg, nil
}

// portal is the client-side core assembled for one invocation.
type portal struct {
	cfg     Config
	logger  *slog.Logger
	storage session.Storage
	client  *apiclient.Client
	store   *session.Store
	guard   *guard.Guard
	closers []func() error
}

func openPortal(ctx context.Context, cfg Config, logOut io.Writer) (*portal, error) {
	if err := access.ValidateMenu(access.Menu(), access.Routes()); err != nil {
		return nil, err
	}

	p := &portal{cfg: cfg, logger: logging.New(logOut, cfg.LogFormat, cfg.LogLevel)}
	switch cfg.Storage {
	case StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		p.closers = append(p.closers, rdb.Close)
		p.storage = session.NewRedisStorage(rdb, "hrportal:"+cfg.Profile)
	default:
		p.storage = session.NewFileStorage(cfg.StoragePath)
	}

	p.client = apiclient.New(cfg.APIURL,
		apiclient.WithLogger(p.logger),
		apiclient.WithTokenSource(func() string { return p.store.Token() }),
	)
	p.store = session.NewStore(p.storage, p.client, session.WithLogger(p.logger))
	p.store.BindUnauthorized(p.client)
	p.guard = guard.New(p.store, access.Routes())

	p.store.Initialize(ctx)
	return p, nil
}

func (p *portal) Close() error {
	var errs []error
	for _, fn := range p.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// explain turns transport errors into something a person at a terminal can
// act on.
func (p *portal) explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apiclient.ErrSessionInvalid):
		return errors.New("session expired, sign in again")
	case apiclient.IsNetwork(err):
		return fmt.Errorf("cannot reach %s: %w", p.cfg.APIURL, err)
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("server refused (%d %s): %s", apiErr.Status, apiErr.Code, apiErr.Message)
	}
	return err
}

func (p *portal) requireSession() error {
	if !p.store.State().Authenticated() {
		return ErrNotSignedIn
	}
	return nil
}

type app struct {
	v *viper.Viper
}

type portalFunc func(cmd *cobra.Command, args []string, p *portal) error

// run opens the portal for the duration of one command.
func (a *app) run(fn portalFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(a.v)
		if err != nil {
			return err
		}
		p, err := openPortal(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				p.logger.Warn("close portal", "err", err)
			}
		}()
		return fn(cmd, args, p)
	}
}

// NewRootCommand builds the command tree. Settings resolve from flags, then
// HRPORTAL_* environment variables, then the optional config file.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	a := &app{v: v}

	root := &cobra.Command{
		Use:           "hrportal",
		Short:         "HR portal client",
		Long:          `Sign in to the HR portal, inspect what your role can open and manage your profile.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/hrportal/hrportal.yaml)")
	flags.String("api-url", "http://localhost:8080", "portal API base URL")
	flags.String("storage", StorageFile, "session storage backend: file or redis")
	flags.String("storage-path", "", "session file (default $XDG_CONFIG_HOME/hrportal/<profile>/session.json)")
	flags.String("redis-addr", "", "redis address for redis storage")
	flags.String("profile", defaultProfile, "session profile name")
	flags.String("log-format", "text", "log format: json or text")
	flags.String("log-level", "warn", "log level")
	_ = v.BindPFlags(flags)

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newMenuCmd(a),
		newOpenCmd(a),
		newRoutesCmd(),
		newAccessMatrixCmd(a),
		newPasswordResetCmd(a),
		newAuditCmd(a),
	)
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hrportal:", err)
		os.Exit(1)
	}
}
