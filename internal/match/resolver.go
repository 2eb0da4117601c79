package match

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	signaturePrefix = "sig-"
	signatureLength = 12
	signatureSep    = "|"
	fallbackPrefix  = "local-"
)

// Resolver derives match keys and room names
type Resolver struct {
	prefix string
}

// NewResolver creates a resolver; prefix is the first segment of every room name
func NewResolver(prefix string) *Resolver {
	if prefix == "" {
		prefix = "lolvoice"
	}
	return &Resolver{prefix: prefix}
}

// Resolve picks the match key: server id, then fallback id, then roster signature.
// ok=false means the key is not derivable yet.
func (r *Resolver) Resolve(snap *Snapshot, fallbackID string) (string, bool) {
	if snap == nil {
		return "", false
	}
	if snap.MatchID != "" {
		return snap.MatchID, true
	}
	if fallbackID != "" {
		return fallbackID, true
	}
	if snap.Team == TeamUnknown {
		return "", false
	}
	sig := RosterSignature(snap.Players, snap.Team)
	if sig == "" {
		return "", false
	}
	return signaturePrefix + sig, true
}

// RoomName is a pure function of match key and team
func (r *Resolver) RoomName(matchKey string, team Team) string {
	return fmt.Sprintf("%s-%s-%s", r.prefix, matchKey, team)
}

// Derive builds the room identity, or ok=false when team or key is missing
func (r *Resolver) Derive(snap *Snapshot, fallbackID string) (RoomIdentity, bool) {
	if snap == nil || snap.Team == TeamUnknown {
		return RoomIdentity{}, false
	}
	key, ok := r.Resolve(snap, fallbackID)
	if !ok {
		return RoomIdentity{}, false
	}

	roster := make([]RosterEntry, 0, 5)
	for _, p := range snap.Players {
		if p.Team != snap.Team {
			continue
		}
		roster = append(roster, RosterEntry{
			Name:         p.DisplayName,
			CharacterID:  p.CharacterID,
			ChampionName: p.ChampionName,
			SkinIndex:    p.SkinIndex,
			TileURL:      TileURL(p.CharacterID, p.SkinIndex),
		})
	}

	return RoomIdentity{
		RoomName:     r.RoomName(key, snap.Team),
		MatchKey:     key,
		Team:         snap.Team,
		IdentityName: snap.IdentityName,
		Roster:       roster,
	}, true
}

// RosterSignature hashes the sorted, lower-cased names of one team.
// Empty when the team has no named players.
func RosterSignature(players []PlayerInfo, team Team) string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		if p.Team != team {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(p.DisplayName))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	sum := sha1.Sum([]byte(strings.Join(names, signatureSep)))
	return hex.EncodeToString(sum[:])[:signatureLength]
}

// NewFallbackID mints a fallback match id seeded by the given time
func NewFallbackID(now time.Time) string {
	return fallbackPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// FallbackTime returns the time a fallback id was minted
func FallbackTime(id string) (time.Time, bool) {
	ms, ok := strings.CutPrefix(id, fallbackPrefix)
	if !ok {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n), true
}
