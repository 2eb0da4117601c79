// Package match turns a live client snapshot into a stable room identity.
package match

import (
	"fmt"
	"strings"
	"time"
)

// Team is the side of the map a player is on
type Team string

const (
	TeamUnknown Team = ""
	TeamOrder   Team = "ORDER"
	TeamChaos   Team = "CHAOS"
)

// ParseTeam normalizes the live client's team field
func ParseTeam(raw string) Team {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(TeamOrder):
		return TeamOrder
	case string(TeamChaos):
		return TeamChaos
	default:
		return TeamUnknown
	}
}

// EventName classifies match events
type EventName string

const (
	EventMatchStart EventName = "MatchStart"
	EventMatchEnd   EventName = "MatchEnd"
	EventOther      EventName = "Other"
)

// EventSource tells where an event was observed
type EventSource string

const (
	SourceLiveClient EventSource = "liveclient"
	SourceLCU        EventSource = "lcu"
)

// Event is one entry of the match event log
type Event struct {
	Name EventName
	// Key identifies the event across polls; empty means never de-duplicated
	Key    string
	Time   time.Duration
	Source EventSource
}

// PlayerInfo is one player as seen by the local source
type PlayerInfo struct {
	DisplayName  string
	CharacterID  string
	ChampionName string
	SkinIndex    int
	Team         Team
}

// Snapshot is a single poll of the local source
type Snapshot struct {
	Team         Team
	MatchID      string
	IdentityName string
	Players      []PlayerInfo
	Events       []Event
	Mode         string
	Map          string
	GameTime     time.Duration
}

// Observation is the outcome of one poll; Err set means the source was unavailable
type Observation struct {
	Snapshot *Snapshot
	Err      error
}

// OK reports whether the source answered
func (o Observation) OK() bool {
	return o.Err == nil && o.Snapshot != nil
}

// RosterEntry is a teammate as shown in the voice room
type RosterEntry struct {
	Name         string `json:"name"`
	CharacterID  string `json:"characterId"`
	ChampionName string `json:"championName"`
	SkinIndex    int    `json:"skinIndex"`
	TileURL      string `json:"tileUrl"`
}

// RoomIdentity is everything a client needs to join its team's room
type RoomIdentity struct {
	RoomName     string        `json:"roomName"`
	MatchKey     string        `json:"matchKey"`
	Team         Team          `json:"team"`
	IdentityName string        `json:"identityName"`
	Roster       []RosterEntry `json:"roster"`
}

// Names returns the roster display names in order
func (r RoomIdentity) Names() []string {
	names := make([]string, 0, len(r.Roster))
	for _, e := range r.Roster {
		names = append(names, e.Name)
	}
	return names
}

const tileURLFormat = "https://ddragon.leagueoflegends.com/cdn/img/champion/tiles/%s_%d.jpg"

// TileURL returns the Data Dragon tile for a character and skin
func TileURL(characterID string, skin int) string {
	if characterID == "" {
		return ""
	}
	if skin < 0 {
		skin = 0
	}
	return fmt.Sprintf(tileURLFormat, characterID, skin)
}
