package services

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// PathRewrite replaces a thumbnail marker. Pattern is matched against each
// escaped path segment on its own, so it should be anchored with ^ and $.
type PathRewrite struct {
	Pattern *regexp.Regexp
	Replace string
}

// SourceProfile is the per-marketplace rewrite table. Rewrites only run on
// URLs served from the profile's CDN host or its subdomains, and every
// rewrite must be a fixed point of itself.
type SourceProfile struct {
	CDNHost       string
	PathRewrites  []PathRewrite
	QueryRewrites map[string]string
}

var defaultSourceProfiles = map[models.Source]SourceProfile{
	// s-l64.jpg, s-l140.jpg, s-l300.webp ... -> s-l1600
	models.SourceEbay: {
		CDNHost: "ebayimg.com",
		PathRewrites: []PathRewrite{
			{regexp.MustCompile(`(?i)^s-l\d+\.(jpe?g|png|gif|webp)$`), "s-l1600.$1"},
		},
	},
	// Cloudinary transformation segments and sizing query parameters
	models.SourceMercari: {
		CDNHost: "mercdn.net",
		PathRewrites: []PathRewrite{
			{regexp.MustCompile(`^c_fill,.+$`), "c_fit,f_auto,fl_progressive:steep,h_1600,q_95,w_1600"},
			{regexp.MustCompile(`^w_\d+,h_\d+$`), "w_1600,h_1600"},
			{regexp.MustCompile(`^q_\d+$`), "q_95"},
		},
		QueryRewrites: map[string]string{
			"w": "1600", "width": "1600",
			"h": "1600", "height": "1600",
			"q": "95", "quality": "95",
		},
	},
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// URLCanonicalizer rewrites thumbnail URLs to their highest-resolution form
// and rejects inline, spoofed or non-image links.
type URLCanonicalizer struct {
	profiles map[models.Source]SourceProfile
}

// NewURLCanonicalizer uses the built-in marketplace profiles.
func NewURLCanonicalizer() *URLCanonicalizer {
	return &URLCanonicalizer{profiles: defaultSourceProfiles}
}

// NewURLCanonicalizerWithProfiles is used to extend the rewrite table with
// additional marketplaces.
func NewURLCanonicalizerWithProfiles(profiles map[models.Source]SourceProfile) *URLCanonicalizer {
	return &URLCanonicalizer{profiles: profiles}
}

// Canonicalize validates rawURL and rewrites it for source. Rejections wrap
// models.ErrURLRejected. The result is stable under repeated application.
func (c *URLCanonicalizer) Canonicalize(source models.Source, rawURL string) (string, error) {
	u, err := c.validate(rawURL)
	if err != nil {
		return "", err
	}

	profile, ok := c.profiles[models.NormalizeSource(string(source))]
	if !ok || !hostWithin(u.Hostname(), profile.CDNHost) {
		return u.String(), nil
	}

	escaped := u.EscapedPath()
	rewritten := rewriteSegments(escaped, profile.PathRewrites)
	if rewritten != escaped {
		decoded, err := url.PathUnescape(rewritten)
		if err != nil {
			return "", fmt.Errorf("%w: rewritten path %q: %v", models.ErrURLRejected, rewritten, err)
		}
		u.Path = decoded
		u.RawPath = rewritten
	}

	if len(profile.QueryRewrites) > 0 && u.RawQuery != "" {
		q := u.Query()
		changed := false
		for key, value := range profile.QueryRewrites {
			if q.Has(key) {
				q.Set(key, value)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	return u.String(), nil
}

// CanonicalizeAll canonicalizes urls in order, dropping rejected entries and
// repeats that collapse to the same canonical URL.
func (c *URLCanonicalizer) CanonicalizeAll(source models.Source, urls []string) ([]string, []error) {
	out := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	var rejected []error
	for _, raw := range urls {
		canonical, err := c.Canonicalize(source, raw)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out, rejected
}

func (c *URLCanonicalizer) validate(rawURL string) (*url.URL, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", models.ErrURLRejected)
	}
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		return nil, fmt.Errorf("%w: inline data url", models.ErrURLRejected)
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrURLRejected, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", models.ErrURLRejected, u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials in url", models.ErrURLRejected)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", models.ErrURLRejected)
	}
	u.Host = strings.ToLower(u.Host)

	for _, p := range c.profiles {
		if hostWithin(host, p.CDNHost) {
			return u, nil
		}
	}

	// A known CDN name anywhere else in the host or path is a spoof
	lowerPath := strings.ToLower(u.Path)
	for _, p := range c.profiles {
		label := strings.SplitN(p.CDNHost, ".", 2)[0]
		if strings.Contains(host, label) || strings.Contains(lowerPath, p.CDNHost) {
			return nil, fmt.Errorf("%w: look-alike host %q", models.ErrURLRejected, host)
		}
	}

	if !imageExtensions[strings.ToLower(path.Ext(u.Path))] {
		return nil, fmt.Errorf("%w: no image extension on %q", models.ErrURLRejected, host)
	}
	return u, nil
}

// rewriteSegments applies the first matching rewrite to each path segment.
func rewriteSegments(escapedPath string, rewrites []PathRewrite) string {
	if len(rewrites) == 0 {
		return escapedPath
	}
	segments := strings.Split(escapedPath, "/")
	for i, seg := range segments {
		for _, rw := range rewrites {
			if rw.Pattern.MatchString(seg) {
				segments[i] = rw.Pattern.ReplaceAllString(seg, rw.Replace)
				break
			}
		}
	}
	return strings.Join(segments, "/")
}

// hostWithin reports whether host equals domain or is a proper subdomain of it.
func hostWithin(host, domain string) bool {
	if domain == "" {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}
