package lcu

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"swellvoice/internal/logger"
	"swellvoice/internal/match"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLiveClientURL is the in-game API exposed by the game client
const DefaultLiveClientURL = "https://127.0.0.1:2999/liveclientdata"

// LiveClientPlayer represents a player from the live client API
type LiveClientPlayer struct {
	ChampionName    string `json:"championName"`
	IsBot           bool   `json:"isBot"`
	Position        string `json:"position"`
	RawChampionName string `json:"rawChampionName"`
	RiotID          string `json:"riotId"`
	RiotIDGameName  string `json:"riotIdGameName"`
	RiotIDTagLine   string `json:"riotIdTagLine"`
	SkinID          int    `json:"skinID"`
	SummonerName    string `json:"summonerName"`
	Team            string `json:"team"`
}

// LiveClientActivePlayer is the local player's own entry
type LiveClientActivePlayer struct {
	RiotID         string `json:"riotId"`
	RiotIDGameName string `json:"riotIdGameName"`
	RiotIDTagLine  string `json:"riotIdTagLine"`
	SummonerName   string `json:"summonerName"`
	Team           string `json:"team"`
}

// LiveClientGameData holds match-wide fields. GameID is absent on most builds.
type LiveClientGameData struct {
	GameID   json.Number `json:"gameId"`
	GameMode string      `json:"gameMode"`
	GameTime float64     `json:"gameTime"`
	MapName  string      `json:"mapName"`
}

// AllGameData is the /allgamedata payload
type AllGameData struct {
	ActivePlayer LiveClientActivePlayer `json:"activePlayer"`
	AllPlayers   []LiveClientPlayer     `json:"allPlayers"`
	GameData     LiveClientGameData     `json:"gameData"`
}

// LiveClientEvent is one entry of /eventdata
type LiveClientEvent struct {
	EventID   int     `json:"EventID"`
	EventName string  `json:"EventName"`
	EventTime float64 `json:"EventTime"`
}

// EventData is the /eventdata payload
type EventData struct {
	Events []LiveClientEvent `json:"Events"`
}

// LiveClient polls the live client API (localhost:2999)
type LiveClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewLiveClient creates a new live client. Certificate checks are off because
// the game serves a self-signed certificate on loopback.
func NewLiveClient(baseURL string, timeout time.Duration, log *zap.Logger) *LiveClient {
	if baseURL == "" {
		baseURL = DefaultLiveClientURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &LiveClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		log: logger.OrNop(log),
	}
}

// Observe fetches the snapshot and event log concurrently. It never returns an
// error: an unreachable game is reported on the observation.
func (c *LiveClient) Observe(ctx context.Context) match.Observation {
	var (
		all       AllGameData
		events    EventData
		eventsErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		return c.getJSON(ctx, "/allgamedata", &all)
	})
	g.Go(func() error {
		// the event log is optional, the snapshot alone still derives a room
		eventsErr = c.getJSON(ctx, "/eventdata", &events)
		return nil
	})
	if err := g.Wait(); err != nil {
		return match.Observation{Err: fmt.Errorf("live client not available: %w", err)}
	}
	if eventsErr != nil {
		c.log.Warn("event log unavailable", zap.Error(eventsErr))
	}

	return match.Observation{Snapshot: ToSnapshot(&all, &events)}
}

func (c *LiveClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
