package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"swellvoice/internal/config"
	"swellvoice/internal/join"
	"swellvoice/internal/lcu"
	"swellvoice/internal/logger"
	"swellvoice/internal/match"
	"swellvoice/internal/metrics"
	"swellvoice/internal/presence"
	"swellvoice/internal/store"
	"swellvoice/internal/voice"
	"swellvoice/internal/voice/bridge"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App struct
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	log    *zap.Logger

	store      *store.Store
	liveClient *lcu.LiveClient
	lcuClient  *lcu.Client
	wsClient   *lcu.WebSocketClient
	phases     lcu.PhaseFilter
	machine    *presence.Machine
	tracker    *presence.Tracker
	joiner     *join.Client
	bridge     *bridge.Bridge
	pipeline   *voice.Pipeline
	metricsSrv *metrics.Server
	stopPoll   chan struct{}
	identity   string

	// emit sends an event to the frontend; replaced in tests
	emit func(event string, payload any)

	// serializes voice joins started from the UI and from settings changes
	joinMu sync.Mutex
}

// NewApp wires every component. Nothing runs until startup.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	identity, err := st.Identity()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	a := &App{
		cfg:        cfg,
		log:        log,
		store:      st,
		identity:   identity,
		liveClient: lcu.NewLiveClient(cfg.LiveClient.BaseURL, cfg.LiveClient.Timeout, log.Named("liveclient")),
		lcuClient:  lcu.NewClient(cfg.LCU.LockfilePath),
		wsClient:   lcu.NewWebSocketClient(log.Named("lcu")),
		joiner: join.NewClient(join.Config{
			WakeTimeout: cfg.Backend.WakeTimeout,
			JoinTimeout: cfg.Backend.JoinTimeout,
			Policy:      policyFromConfig(cfg.Backend.MaxAttempts),
		}, log.Named("join")),
		stopPoll: make(chan struct{}),
	}
	a.emit = func(string, any) {}

	a.machine = presence.NewMachine(presence.Options{
		GraceWindow: cfg.Presence.GraceWindow,
		Resolver:    match.NewResolver(cfg.Presence.RoomPrefix),
		Store:       st,
		Log:         log.Named("presence"),
	})
	a.tracker = presence.NewTracker(a.liveClient, a.machine, cfg.LiveClient.PollInterval, a.onPresence, log.Named("tracker"))

	a.bridge = bridge.New(func(event string, payload any) { a.emit(event, payload) }, cfg.Media.CallTimeout, log.Named("media"))
	a.pipeline = voice.NewPipeline(bridge.NewEngine(a.bridge), a.loadSettings(), log.Named("voice"), a.onVoiceState)
	a.bridge.SetHandler(a.pipeline.HandleEvent)

	if cfg.Metrics.Enabled {
		a.metricsSrv = metrics.NewServer(cfg.Metrics.Addr)
	}
	return a, nil
}

func policyFromConfig(maxAttempts int) join.RetryPolicy {
	p := join.DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	return p
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.emit = func(event string, payload any) {
		runtime.EventsEmit(a.ctx, event, payload)
	}

	if a.metricsSrv != nil {
		a.metricsSrv.Start(func(err error) {
			a.log.Warn("metrics endpoint stopped", zap.Error(err))
		})
	}

	a.wsClient.SetPhaseHandler(a.onGameflowPhase)
	a.RegisterPushToTalkHook()

	go a.bridge.Run(a.ctx)
	a.tracker.Start(a.ctx)

	if a.cfg.LCU.Enabled {
		go a.pollForLeagueClient()
	}

	a.log.Info("started", zap.String("identity", a.identity), zap.String("backend", a.cfg.Backend.URL))
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	close(a.stopPoll)

	// voice first so the session is released while the webview still answers
	a.pipeline.Leave()
	a.tracker.Stop()
	a.wsClient.Disconnect()
	a.lcuClient.Disconnect()
	if a.cancel != nil {
		a.cancel()
	}

	var g errgroup.Group
	if a.metricsSrv != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return a.metricsSrv.Shutdown(ctx)
		})
	}
	g.Go(a.store.Close)
	if err := g.Wait(); err != nil {
		a.log.Warn("shutdown", zap.Error(err))
	}
	logger.Sync()
}
