package cli

import (
	"fmt"
	"strings"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/config"
	"github.com/driveindex/drive-index/internal/pathcodec"
	"github.com/driveindex/drive-index/internal/prefs"
)

// session bundles what most commands need: the merged configuration, the
// persisted client state and an API client that reads cached passwords from it.
type session struct {
	cfg    *config.Config
	prefs  *prefs.Store
	client *api.Client
}

// loadConfig reads the config file and applies environment and flag
// overrides, in that order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithEnv()
	cfg.MergeWithFlags(baseURLFlag, driveFlag)
	return cfg, nil
}

// openSession loads configuration, opens the state store and creates an API
// client. This is the standard way to talk to the worker in CLI commands.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w (run 'drive-index config init' or pass --url)", err)
	}

	store, err := prefs.Open(stateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open client state: %w", err)
	}

	client, err := api.NewClient(cfg,
		api.WithCredentialStore(store),
		api.WithLogger(GetLogger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return &session{cfg: cfg, prefs: store, client: client}, nil
}

// resolveLocation turns a command argument into a folder location. Arguments
// with a "/<drive>:" prefix are decoded as pathnames; anything else is a path
// on defaultDrive. Human-typed segments are component-encoded.
func resolveLocation(arg string, defaultDrive int) pathcodec.Location {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return pathcodec.Root(defaultDrive)
	}
	if i := strings.Index(arg, "?"); i >= 0 {
		arg = arg[:i]
	}

	var loc pathcodec.Location
	if pathcodec.HasDrive(arg) {
		loc = pathcodec.Decode(arg)
	} else {
		loc = pathcodec.Location{Drive: defaultDrive, Path: arg}
	}
	loc.Path = pathcodec.EncodePath(loc.Path)
	return loc.Folder()
}

// resolveFile splits a file argument into its folder location and name.
func resolveFile(arg string, defaultDrive int) (pathcodec.Location, string, error) {
	arg = strings.TrimSpace(arg)
	if !pathcodec.HasDrive(arg) {
		if !strings.HasPrefix(arg, "/") {
			arg = "/" + arg
		}
		arg = pathcodec.Encode(defaultDrive, arg)
	}

	loc, name := pathcodec.SplitFile(arg)
	if name == "" {
		return pathcodec.Location{}, "", fmt.Errorf("%q does not name a file", arg)
	}
	loc.Path = pathcodec.EncodePath(loc.Path)
	return loc, name, nil
}
