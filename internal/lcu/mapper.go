package lcu

import (
	"strconv"
	"strings"
	"time"

	"swellvoice/internal/match"
)

const rawChampionPrefix = "game_character_displayname_"

// ToSnapshot maps the raw payloads onto the resolver's snapshot
func ToSnapshot(all *AllGameData, events *EventData) *match.Snapshot {
	snap := &match.Snapshot{
		MatchID:  strings.TrimSpace(all.GameData.GameID.String()),
		Mode:     all.GameData.GameMode,
		Map:      all.GameData.MapName,
		GameTime: seconds(all.GameData.GameTime),
	}
	if snap.MatchID == "0" {
		snap.MatchID = ""
	}

	for _, p := range all.AllPlayers {
		snap.Players = append(snap.Players, match.PlayerInfo{
			DisplayName:  DisplayName(p.RiotID, p.RiotIDGameName, p.RiotIDTagLine, p.SummonerName),
			CharacterID:  CharacterID(p.RawChampionName, p.ChampionName),
			ChampionName: p.ChampionName,
			SkinIndex:    max(p.SkinID, 0),
			Team:         match.ParseTeam(p.Team),
		})
	}

	snap.Team = myTeam(all)
	snap.IdentityName = DisplayName(all.ActivePlayer.RiotID, all.ActivePlayer.RiotIDGameName,
		all.ActivePlayer.RiotIDTagLine, all.ActivePlayer.SummonerName)

	if events != nil {
		for _, ev := range events.Events {
			snap.Events = append(snap.Events, ToEvent(ev))
		}
	}
	return snap
}

// myTeam finds the active player in the roster by name; when that fails the
// active player's own team field is used. There is no positional guess.
func myTeam(all *AllGameData) match.Team {
	me := all.ActivePlayer
	candidates := []string{
		me.RiotID,
		DisplayName("", me.RiotIDGameName, me.RiotIDTagLine, ""),
		me.SummonerName,
	}

	for _, p := range all.AllPlayers {
		names := []string{
			p.RiotID,
			DisplayName("", p.RiotIDGameName, p.RiotIDTagLine, ""),
			p.SummonerName,
		}
		for _, want := range candidates {
			if want == "" {
				continue
			}
			for _, have := range names {
				if have != "" && strings.EqualFold(want, have) {
					return match.ParseTeam(p.Team)
				}
			}
		}
	}
	return match.ParseTeam(me.Team)
}

// DisplayName picks the best identifier: riot id, then gameName#tag, then summoner name
func DisplayName(riotID, gameName, tagLine, summonerName string) string {
	if riotID != "" {
		return riotID
	}
	if gameName != "" && tagLine != "" {
		return gameName + "#" + tagLine
	}
	return summonerName
}

// CharacterID returns the Data Dragon id ("MonkeyKing" for Wukong)
func CharacterID(rawChampionName, championName string) string {
	if id, ok := strings.CutPrefix(rawChampionName, rawChampionPrefix); ok && id != "" {
		return id
	}
	return strings.NewReplacer("'", "", " ", "", ".", "").Replace(championName)
}

// ToEvent classifies a live client event
func ToEvent(ev LiveClientEvent) match.Event {
	name := match.EventOther
	switch ev.EventName {
	case "GameStart":
		name = match.EventMatchStart
	case "GameEnd":
		name = match.EventMatchEnd
	}
	return match.Event{
		Name:   name,
		Key:    ev.EventName + "#" + strconv.Itoa(ev.EventID),
		Time:   seconds(ev.EventTime),
		Source: match.SourceLiveClient,
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
