// Package device maps device names to the viewport a capture is rendered with.
package device

import "sort"

const (
	// Desktop is the fallback profile for unknown or empty device types.
	Desktop = "desktop"
	// Custom takes its dimensions from the request.
	Custom = "custom"

	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// Profile is a viewport plus mobile emulation flag.
type Profile struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mobile bool   `json:"isMobile"`
}

var profiles = map[string]Profile{
	"desktop":           {Width: 1920, Height: 1080},
	"macbook-pro":       {Width: 1728, Height: 1117},
	"macbook-air":       {Width: 1440, Height: 900},
	"laptop":            {Width: 1366, Height: 768},
	"ipad-pro":          {Width: 1024, Height: 1366, Mobile: true},
	"ipad-mini":         {Width: 768, Height: 1024, Mobile: true},
	"samsung-tab":       {Width: 800, Height: 1280, Mobile: true},
	"iphone-14-pro-max": {Width: 430, Height: 932, Mobile: true},
	"iphone-14":         {Width: 390, Height: 844, Mobile: true},
	"iphone-se":         {Width: 375, Height: 667, Mobile: true},
	"samsung-s22":       {Width: 360, Height: 780, Mobile: true},
	"pixel-7":           {Width: 412, Height: 915, Mobile: true},
	"generic-android":   {Width: 360, Height: 640, Mobile: true},
	"macos-light":       {Width: 1440, Height: 900},
	"macos-dark":        {Width: 1440, Height: 900},
	"win-11":            {Width: 1920, Height: 1080},
	"iphone-15-pro":     {Width: 393, Height: 852, Mobile: true},
	"iphone-13-mini":    {Width: 375, Height: 812, Mobile: true},
	"samsung-s23-ultra": {Width: 384, Height: 854, Mobile: true},
	"pixel-7-pro":       {Width: 412, Height: 892, Mobile: true},
}

// Lookup returns the named profile and whether it exists.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, false
	}
	p.Name = name
	return p, true
}

// Resolve picks the viewport for a request. Custom dimensions that are not
// positive fall back to 1920x1080 independently of each other.
func Resolve(deviceType string, customWidth, customHeight int) Profile {
	if deviceType == Custom {
		p := Profile{Name: Custom, Width: customWidth, Height: customHeight}
		if p.Width <= 0 {
			p.Width = DefaultWidth
		}
		if p.Height <= 0 {
			p.Height = DefaultHeight
		}
		return p
	}
	if p, ok := Lookup(deviceType); ok {
		return p
	}
	p, _ := Lookup(Desktop)
	return p
}

// All returns every built-in profile ordered by name.
func All() []Profile {
	out := make([]Profile, 0, len(profiles))
	for name := range profiles {
		p, _ := Lookup(name)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
