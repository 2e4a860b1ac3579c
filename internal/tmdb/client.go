// Package tmdb is a minimal client for The Movie Database API covering
// title search, image listings, and original-size image downloads.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sydlexius/mediarr/internal/media"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultImageURL = "https://image.tmdb.org/t/p/original"
)

// ErrNotFound is returned for 404 responses, including unknown title ids.
var ErrNotFound = errors.New("tmdb: not found")

// SearchResult is one title candidate from a search.
type SearchResult struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Year      int    `json:"year,omitempty"`
	Overview  string `json:"overview,omitempty"`
	VoteCount int    `json:"vote_count"`
}

// Image describes one artwork candidate.
type Image struct {
	FilePath    string  `json:"file_path"`
	Language    string  `json:"language,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	VoteAverage float64 `json:"vote_average"`
}

// Images groups a title's artwork candidates by type.
type Images struct {
	Posters   []Image `json:"posters"`
	Backdrops []Image `json:"backdrops"`
	Logos     []Image `json:"logos"`
}

// ByType returns the candidate list for an artwork type.
func (im Images) ByType(t media.Type) []Image {
	switch t {
	case media.TypeBackdrop:
		return im.Backdrops
	case media.TypeLogo:
		return im.Logos
	default:
		return im.Posters
	}
}

// Client talks to the TMDb v3 API. Requests are rate limited client-side.
type Client struct {
	baseURL  string
	imageURL string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

// WithImageBaseURL overrides the image CDN endpoint, for tests.
func WithImageBaseURL(u string) Option {
	return func(c *Client) { c.imageURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRateLimit overrides the client-side request rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient creates a TMDb client.
func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		imageURL: defaultImageURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(4), 8),
		logger:   logger.With(slog.String("component", "tmdb")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search finds title candidates for a display title, optionally
// constrained by release year.
func (c *Client) Search(ctx context.Context, kind media.Kind, title string, year int) ([]SearchResult, error) {
	q := url.Values{"query": {title}}
	var path string
	if kind == media.KindTV {
		path = "/search/tv"
		if year > 0 {
			q.Set("first_air_date_year", strconv.Itoa(year))
		}
	} else {
		path = "/search/movie"
		if year > 0 {
			q.Set("year", strconv.Itoa(year))
		}
	}

	var raw struct {
		Results []struct {
			ID           int    `json:"id"`
			Title        string `json:"title"`
			Name         string `json:"name"`
			ReleaseDate  string `json:"release_date"`
			FirstAirDate string `json:"first_air_date"`
			Overview     string `json:"overview"`
			VoteCount    int    `json:"vote_count"`
		} `json:"results"`
	}
	if err := c.get(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(raw.Results))
	for _, r := range raw.Results {
		sr := SearchResult{ID: r.ID, Title: r.Title, Overview: r.Overview, VoteCount: r.VoteCount}
		if sr.Title == "" {
			sr.Title = r.Name
		}
		sr.Year = yearOf(r.ReleaseDate)
		if sr.Year == 0 {
			sr.Year = yearOf(r.FirstAirDate)
		}
		out = append(out, sr)
	}
	return out, nil
}

// Details fetches one title by id.
func (c *Client) Details(ctx context.Context, kind media.Kind, tmdbID int) (*SearchResult, error) {
	path := fmt.Sprintf("/movie/%d", tmdbID)
	if kind == media.KindTV {
		path = fmt.Sprintf("/tv/%d", tmdbID)
	}

	var raw struct {
		ID           int    `json:"id"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		ReleaseDate  string `json:"release_date"`
		FirstAirDate string `json:"first_air_date"`
		Overview     string `json:"overview"`
		VoteCount    int    `json:"vote_count"`
	}
	if err := c.get(ctx, path, nil, &raw); err != nil {
		return nil, err
	}

	out := &SearchResult{ID: raw.ID, Title: raw.Title, Overview: raw.Overview, VoteCount: raw.VoteCount}
	if out.Title == "" {
		out.Title = raw.Name
	}
	out.Year = yearOf(raw.ReleaseDate)
	if out.Year == 0 {
		out.Year = yearOf(raw.FirstAirDate)
	}
	return out, nil
}

// Images lists a title's artwork candidates. English and language-neutral
// images are requested; TMDb sorts each list by vote average.
func (c *Client) Images(ctx context.Context, kind media.Kind, tmdbID int) (Images, error) {
	path := fmt.Sprintf("/movie/%d/images", tmdbID)
	if kind == media.KindTV {
		path = fmt.Sprintf("/tv/%d/images", tmdbID)
	}
	q := url.Values{"include_image_language": {"en,null"}}

	var raw struct {
		Posters   []rawImage `json:"posters"`
		Backdrops []rawImage `json:"backdrops"`
		Logos     []rawImage `json:"logos"`
	}
	if err := c.get(ctx, path, q, &raw); err != nil {
		return Images{}, err
	}
	return Images{
		Posters:   convertImages(raw.Posters),
		Backdrops: convertImages(raw.Backdrops),
		Logos:     convertImages(raw.Logos),
	}, nil
}

// Download fetches the original-size image at a TMDb file path.
func (c *Client) Download(ctx context.Context, filePath string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.imageURL+filePath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type rawImage struct {
	FilePath    string  `json:"file_path"`
	ISO639      *string `json:"iso_639_1"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	VoteAverage float64 `json:"vote_average"`
}

func convertImages(raw []rawImage) []Image {
	out := make([]Image, 0, len(raw))
	for _, r := range raw {
		img := Image{
			FilePath:    r.FilePath,
			Width:       r.Width,
			Height:      r.Height,
			VoteAverage: r.VoteAverage,
		}
		if r.ISO639 != nil {
			img.Language = *r.ISO639
		}
		out = append(out, img)
	}
	return out
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("tmdb: invalid api key (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tmdb: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding tmdb response: %w", err)
	}
	return nil
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
