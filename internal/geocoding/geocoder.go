package geocoding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	cacheFileName  = "geocode_cache.json"
)

// ErrNotFound is returned when the service knows no place by that name.
var ErrNotFound = errors.New("no geocoding results")

// Geocoder resolves Athens neighborhood names to a representative point
// through a Nominatim compatible search endpoint. Answers are cached on disk.
type Geocoder struct {
	logger    *logrus.Logger
	baseURL   string
	cacheDir  string
	cache     map[string][]float64
	cacheLock sync.RWMutex
	client    *http.Client

	// Nominatim allows one request per second
	throttle    time.Duration
	requestLock sync.Mutex
	lastRequest time.Time
}

func NewGeocoder(logger *logrus.Logger, baseURL, cacheDir string) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
	}

	g := &Geocoder{
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		cache:    make(map[string][]float64),
		client:   &http.Client{Timeout: 10 * time.Second},
		throttle: time.Second,
	}
	g.loadCache()
	return g
}

func (g *Geocoder) cacheFile() string {
	return filepath.Join(g.cacheDir, cacheFileName)
}

func (g *Geocoder) loadCache() {
	if g.cacheDir == "" {
		return
	}
	data, err := os.ReadFile(g.cacheFile())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.WithError(err).Warn("Could not load geocode cache")
		}
		return
	}
	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.WithError(err).Error("Failed to parse geocode cache")
		return
	}
	g.logger.Infof("Loaded %d cached neighborhoods", len(g.cache))
}

func (g *Geocoder) saveCache() error {
	if g.cacheDir == "" {
		return nil
	}
	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal geocode cache: %w", err)
	}
	if err := os.WriteFile(g.cacheFile(), data, 0644); err != nil {
		return fmt.Errorf("failed to save geocode cache: %w", err)
	}
	return nil
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func cacheKey(neighborhood string) string {
	return strings.ToLower(strings.TrimSpace(neighborhood))
}

func (g *Geocoder) wait() {
	g.requestLock.Lock()
	defer g.requestLock.Unlock()
	if d := g.throttle - time.Since(g.lastRequest); d > 0 {
		time.Sleep(d)
	}
	g.lastRequest = time.Now()
}

// LocateNeighborhood returns the lon/lat point of an Athens neighborhood.
func (g *Geocoder) LocateNeighborhood(neighborhood string) (orb.Point, error) {
	key := cacheKey(neighborhood)
	if key == "" {
		return orb.Point{}, fmt.Errorf("%w: empty neighborhood", ErrNotFound)
	}

	g.cacheLock.RLock()
	coords, ok := g.cache[key]
	g.cacheLock.RUnlock()
	if ok {
		if len(coords) != 2 {
			return orb.Point{}, fmt.Errorf("invalid cached coordinates for %q", neighborhood)
		}
		return orb.Point{coords[1], coords[0]}, nil
	}

	query := fmt.Sprintf("%s, Athens, Greece", strings.TrimSpace(neighborhood))
	g.logger.WithField("query", query).Debug("Geocoding neighborhood")
	g.wait()

	params := url.Values{
		"q":            []string{query},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"gr"},
	}
	req, err := http.NewRequest(http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "athens-energy-blocks/1.0")
	req.Header.Set("Accept-Language", "el-GR,el;q=0.9,en;q=0.8")

	resp, err := g.client.Do(req)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("geocoding request failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return orb.Point{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result) == 0 {
		return orb.Point{}, fmt.Errorf("%w for %q", ErrNotFound, query)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to parse longitude: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"neighborhood": neighborhood,
		"latitude":     lat,
		"longitude":    lon,
	}).Info("Geocoded neighborhood")

	g.cacheLock.Lock()
	g.cache[key] = []float64{lat, lon}
	g.cacheLock.Unlock()

	if err := g.saveCache(); err != nil {
		g.logger.WithError(err).Warn("Geocode cache not persisted")
	}
	return orb.Point{lon, lat}, nil
}
