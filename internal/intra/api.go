package intra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/campuswatch/campuswatch/internal/cache"
)

// Per-operation cache lifetimes. Presence data goes stale fast; catalog
// data barely moves.
const (
	peerTTL     = 2 * time.Minute
	peersTTL    = time.Hour
	locationTTL = 5 * time.Minute
	eventsTTL   = 5 * time.Minute
	catalogTTL  = 24 * time.Hour
)

// CampusesKey is the cache key for the campus catalog. The catalog-sync
// job invalidates it before refetching.
var CampusesKey = cache.Key("intra.campuses")

func decode[T any](raw json.RawMessage, endpoint string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("intra: decode %s: %w", endpoint, err)
	}
	return v, nil
}

// fetch requests an endpoint and decodes the body into T.
func fetch[T any](ctx context.Context, c *Client, endpoint string, params url.Values) (T, error) {
	raw, err := c.Request(ctx, endpoint, params)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](raw, endpoint)
}

// GetMe returns the profile bound to a personal access token. Never
// cached and never rotated across credentials.
func (c *Client) GetMe(ctx context.Context, personalToken string) (*Peer, error) {
	raw, err := c.RequestWithToken(ctx, "me", personalToken, nil)
	if err != nil {
		return nil, err
	}
	return decode[*Peer](raw, "me")
}

// GetPeer returns a single peer profile by login.
func (c *Client) GetPeer(ctx context.Context, login string) (*Peer, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("intra.peer", login), peerTTL,
		func(ctx context.Context) (*Peer, error) {
			return fetch[*Peer](ctx, c, "users/"+url.PathEscape(login), nil)
		})
}

// GetPeers returns profiles for several logins at once.
func (c *Client) GetPeers(ctx context.Context, logins []string) ([]Peer, error) {
	joined := strings.Join(logins, ",")
	return cache.Fetch(ctx, c.cache, cache.Key("intra.peers", joined), peersTTL,
		func(ctx context.Context) ([]Peer, error) {
			return fetch[[]Peer](ctx, c, "users", url.Values{"filter[login]": {joined}})
		})
}

// GetPeerCoalitions returns the peer's coalition memberships.
func (c *Client) GetPeerCoalitions(ctx context.Context, login string) ([]CoalitionUser, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("intra.peer_coalitions", login), peersTTL,
		func(ctx context.Context) ([]CoalitionUser, error) {
			return fetch[[]CoalitionUser](ctx, c, "users/"+url.PathEscape(login)+"/coalitions_users", nil)
		})
}

// GetCoalition returns one coalition by ID.
func (c *Client) GetCoalition(ctx context.Context, id int) (*Coalition, error) {
	return fetch[*Coalition](ctx, c, "coalitions/"+strconv.Itoa(id), nil)
}

// GetPeerLocations returns the peer's most recent workstation sessions.
func (c *Client) GetPeerLocations(ctx context.Context, login string) ([]Location, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("intra.peer_locations", login), locationTTL,
		func(ctx context.Context) ([]Location, error) {
			return fetch[[]Location](ctx, c, "users/"+url.PathEscape(login)+"/locations",
				url.Values{"per_page": {"50"}})
		})
}

// GetPeerFeedbacks returns evaluations the peer performed as corrector.
func (c *Client) GetPeerFeedbacks(ctx context.Context, login string) ([]Feedback, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("intra.peer_feedbacks", login), peersTTL,
		func(ctx context.Context) ([]Feedback, error) {
			return fetch[[]Feedback](ctx, c, "users/"+url.PathEscape(login)+"/scale_teams/as_corrector",
				url.Values{"per_page": {"50"}})
		})
}

// GetLocationHistory returns recent sessions on a given workstation host.
func (c *Client) GetLocationHistory(ctx context.Context, host string) ([]Location, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("intra.host_history", host), locationTTL,
		func(ctx context.Context) ([]Location, error) {
			return fetch[[]Location](ctx, c, "locations",
				url.Values{"filter[host]": {host}, "per_page": {"10"}})
		})
}

// GetCampus returns one campus by ID.
func (c *Client) GetCampus(ctx context.Context, id int) (*Campus, error) {
	return fetch[*Campus](ctx, c, "campus/"+strconv.Itoa(id), nil)
}

// GetCampuses returns the full campus catalog.
func (c *Client) GetCampuses(ctx context.Context) ([]Campus, error) {
	return cache.Fetch(ctx, c.cache, CampusesKey, catalogTTL,
		func(ctx context.Context) ([]Campus, error) {
			return fetch[[]Campus](ctx, c, "campus", url.Values{"per_page": {"100"}})
		})
}

// GetCursuses returns the list of study tracks.
func (c *Client) GetCursuses(ctx context.Context) ([]Cursus, error) {
	return fetch[[]Cursus](ctx, c, "cursus", url.Values{"per_page": {"100"}})
}

// GetProject returns one project by ID.
func (c *Client) GetProject(ctx context.Context, id int) (*Project, error) {
	return fetch[*Project](ctx, c, "projects/"+strconv.Itoa(id), nil)
}

// GetEvents returns upcoming events for a campus/cursus pair.
func (c *Client) GetEvents(ctx context.Context, campusID, cursusID int) ([]Event, error) {
	endpoint := fmt.Sprintf("campus/%d/cursus/%d/events", campusID, cursusID)
	return cache.Fetch(ctx, c.cache, cache.Key("intra.events", campusID, cursusID), eventsTTL,
		func(ctx context.Context) ([]Event, error) {
			return fetch[[]Event](ctx, c, endpoint, url.Values{"filter[future]": {"true"}})
		})
}

// GetExams returns upcoming exams for a campus/cursus pair, folded into
// the event shape. The exams endpoint has no future filter, so past and
// duplicate entries are dropped here.
func (c *Client) GetExams(ctx context.Context, campusID, cursusID int) ([]Event, error) {
	endpoint := fmt.Sprintf("campus/%d/cursus/%d/exams", campusID, cursusID)
	return cache.Fetch(ctx, c.cache, cache.Key("intra.exams", campusID, cursusID), eventsTTL,
		func(ctx context.Context) ([]Event, error) {
			exams, err := fetch[[]Exam](ctx, c, endpoint, nil)
			if err != nil {
				return nil, err
			}
			now := time.Now().UTC()
			seen := make(map[int]bool, len(exams))
			var events []Event
			for _, exam := range exams {
				if !exam.BeginAt.After(now) || seen[exam.ID] {
					continue
				}
				seen[exam.ID] = true
				events = append(events, exam.AsEvent())
			}
			return events, nil
		})
}
