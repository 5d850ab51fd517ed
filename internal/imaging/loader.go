package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// maxRemoteBytes caps downloads from http(s) locators.
const maxRemoteBytes = 64 << 20

// Source is a resolved image locator: the raw bytes as fetched and the
// decoded image. The raw bytes are what gets uploaded for analysis.
type Source struct {
	Locator  string
	Filename string
	Format   string
	Data     []byte
	Image    image.Image
}

// Loader resolves opaque image locators and caches the decoded result.
//
// Supported locators:
//   - filesystem paths and file:// URLs
//   - data: URIs with base64 payloads (data:image/png;base64,...)
//   - http:// and https:// URLs
//
// Loader is safe for concurrent use by multiple goroutines.
type Loader struct {
	mu      sync.RWMutex
	sources map[string]*Source
	client  *http.Client
}

// NewLoader creates a loader with an empty cache. A nil client selects
// http.DefaultClient for remote locators.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		sources: make(map[string]*Source),
		client:  client,
	}
}

// Load returns the cached source for locator or fetches and decodes it.
//
// Decoding honours EXIF orientation so the displayed image matches what a
// browser would show.
func (l *Loader) Load(ctx context.Context, locator string) (*Source, error) {
	l.mu.RLock()
	if src, ok := l.sources[locator]; ok {
		l.mu.RUnlock()
		return src, nil
	}
	l.mu.RUnlock()

	data, filename, err := l.fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	src := &Source{
		Locator:  locator,
		Filename: filename,
		Format:   format,
		Data:     data,
		Image:    img,
	}

	l.mu.Lock()
	l.sources[locator] = src
	l.mu.Unlock()

	return src, nil
}

// Clear removes all cached sources.
func (l *Loader) Clear() {
	l.mu.Lock()
	l.sources = make(map[string]*Source)
	l.mu.Unlock()
}

// Evict removes a specific locator from the cache.
func (l *Loader) Evict(locator string) {
	l.mu.Lock()
	delete(l.sources, locator)
	l.mu.Unlock()
}

// Cached reports whether locator is in the cache.
func (l *Loader) Cached(locator string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sources[locator]
	return ok
}

func (l *Loader) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	switch {
	case locator == "":
		return nil, "", fmt.Errorf("empty image locator")
	case strings.HasPrefix(locator, "data:"):
		data, err := decodeDataURI(locator)
		if err != nil {
			return nil, "", err
		}
		return data, "upload", nil
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return l.fetchRemote(ctx, locator)
	case strings.HasPrefix(locator, "file://"):
		u, err := url.Parse(locator)
		if err != nil {
			return nil, "", fmt.Errorf("invalid file URL: %w", err)
		}
		return readFile(u.Path)
	default:
		return readFile(locator)
	}
}

func (l *Loader) fetchRemote(ctx context.Context, locator string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxRemoteBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxRemoteBytes)
	}

	name := path.Base(req.URL.Path)
	if name == "/" || name == "." {
		name = "remote"
	}
	return data, name, nil
}

func readFile(p string) ([]byte, string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	return data, filepath.Base(p), nil
}

// decodeDataURI extracts the payload of a base64 data URI.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URI must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, nil
}

// ImageInfo contains metadata about a loaded image.
type ImageInfo struct {
	Locator  string `json:"locator"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	HasAlpha bool   `json:"has_alpha"`
	Bytes    int    `json:"bytes"`
}

// Info summarizes a source without exposing its pixels.
func (s *Source) Info() ImageInfo {
	bounds := s.Image.Bounds()

	hasAlpha := false
	switch s.Image.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
	}

	return ImageInfo{
		Locator:  s.Locator,
		Filename: s.Filename,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Format:   s.Format,
		HasAlpha: hasAlpha,
		Bytes:    len(s.Data),
	}
}
