package apifootball

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

// Client wraps the API-Football REST endpoints used by the fallback poller
// and the engine's periodic loops. Requests are rate-limited to conserve
// the daily API quota.
type Client struct {
	baseURL    string
	apiKey     string
	apiHost    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL, apiKey, apiHost string) *Client {
	if baseURL == "" {
		baseURL = "https://api-football-v1.p.rapidapi.com/v3"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		apiHost: apiHost,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// ~1 request every 2s, short bursts allowed
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

type fixturesResponse struct {
	Response []fixtureEntry `json:"response"`
}

type fixtureEntry struct {
	Fixture struct {
		ID     int `json:"id"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

// LiveFixtures returns all fixtures currently in play.
func (c *Client) LiveFixtures(ctx context.Context) ([]events.FixtureSnapshot, error) {
	var out fixturesResponse
	if err := c.fetchJSON(ctx, "/fixtures", url.Values{"live": {"all"}}, &out); err != nil {
		return nil, fmt.Errorf("live fixtures: %w", err)
	}

	snapshots := make([]events.FixtureSnapshot, 0, len(out.Response))
	for _, e := range out.Response {
		elapsed := 0
		if e.Fixture.Status.Elapsed != nil {
			elapsed = *e.Fixture.Status.Elapsed
		}
		snapshots = append(snapshots, events.FixtureSnapshot{
			FixtureID:  e.Fixture.ID,
			LeagueID:   e.League.ID,
			LeagueName: e.League.Name,
			HomeTeam:   e.Teams.Home.Name,
			AwayTeam:   e.Teams.Away.Name,
			HomeScore:  intOrZero(e.Goals.Home),
			AwayScore:  intOrZero(e.Goals.Away),
			Elapsed:    elapsed,
			Status:     e.Fixture.Status.Short,
		})
	}
	return snapshots, nil
}

type oddsResponse struct {
	Response []struct {
		Bookmakers []struct {
			Bets []struct {
				Name   string `json:"name"`
				Values []struct {
					Value string `json:"value"`
					Odd   string `json:"odd"`
				} `json:"values"`
			} `json:"bets"`
		} `json:"bookmakers"`
	} `json:"response"`
}

// PreMatchOdds returns decimal 1X2 odds for a fixture, keyed "home",
// "draw", "away". Empty map when no bookmaker covers the fixture.
func (c *Client) PreMatchOdds(ctx context.Context, fixtureID int) (map[string]float64, error) {
	var out oddsResponse
	params := url.Values{"fixture": {strconv.Itoa(fixtureID)}}
	if err := c.fetchJSON(ctx, "/odds", params, &out); err != nil {
		return nil, fmt.Errorf("pre-match odds fixture=%d: %w", fixtureID, err)
	}

	odds := make(map[string]float64)
	for _, r := range out.Response {
		for _, bm := range r.Bookmakers {
			for _, bet := range bm.Bets {
				if bet.Name != "Match Winner" {
					continue
				}
				for _, v := range bet.Values {
					odd, err := strconv.ParseFloat(v.Odd, 64)
					if err != nil {
						continue
					}
					switch v.Value {
					case "Home", "1":
						odds["home"] = odd
					case "Draw", "X":
						odds["draw"] = odd
					case "Away", "2":
						odds["away"] = odd
					}
				}
				if len(odds) > 0 {
					return odds, nil
				}
			}
		}
	}
	return odds, nil
}

func (c *Client) fetchJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-rapidapi-key", c.apiKey)
		req.Header.Set("x-rapidapi-host", c.apiHost)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	telemetry.Debugf("apifootball: GET %s -> %d (%s)", path, resp.StatusCode, time.Since(start))
	return nil
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
