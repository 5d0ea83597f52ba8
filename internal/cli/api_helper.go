package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/config"
	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/logging"
	"github.com/tgdrive/tgdrive/internal/services"
	"github.com/tgdrive/tgdrive/internal/state"
	"github.com/tgdrive/tgdrive/internal/transfer"
)

// loadConfig reads the config file and merges flags, the token file and the
// environment into it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(tokenFlag, apiBaseURL, proxyMode, proxyHost, proxyPort)
	if !verbose {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// This is the standard way to get an API client in CLI commands.
func getAPIClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg, GetLogger().Named("api"))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, nil
}

// session bundles the state and services one command invocation works with.
type session struct {
	cfg       *config.Config
	client    *api.Client
	bus       *events.EventBus
	state     *state.AppState
	sync      *services.ContentSyncService
	files     *services.FileService
	transfers *services.TransferService
}

func newSession() (*session, error) {
	client, err := getAPIClient()
	if err != nil {
		return nil, err
	}
	cfg := client.GetConfig()
	log := GetLogger()

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	appState := state.NewAppState(bus)
	sync := services.NewContentSyncService(client, appState, bus, log.Named("sync"))

	return &session{
		cfg:    cfg,
		client: client,
		bus:    bus,
		state:  appState,
		sync:   sync,
		files:  services.NewFileService(client, sync, bus, log.Named("files")),
		transfers: services.NewTransferService(client, sync, bus, log.Named("transfers"), services.TransferServiceConfig{
			Coordinator: transfer.Options{
				Yield:        cfg.QueueYield,
				DismissDelay: cfg.DismissDelay,
				Background:   cfg.BackgroundUploads,
			},
		}),
	}, nil
}

// Close stops the upload worker and the event bus.
func (s *session) Close() {
	s.transfers.Close()
	s.bus.Close()
	GetLogger().Debug().Int64("api_calls", s.client.TotalCalls()).Msg("Session closed")
}

// userError rewrites err for display. Server detail is shown as-is.
func userError(err error) string {
	switch api.Classify(err) {
	case api.KindUnauthorized:
		return "not signed in or session expired: run 'tgdrive login'"
	case api.KindNetwork:
		return fmt.Sprintf("%v (is the server at the configured api_url reachable?)", err)
	case api.KindHTTPStatus:
		var statusErr *api.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.Detail != "" {
			return statusErr.Detail
		}
	}
	return err.Error()
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", what, s)
	}
	return id, nil
}

func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a, what)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
