package capture

import "sort"

// presets are named capture modes selectable with -preset. Each one adjusts
// DefaultConfig.
var presets = map[string]func(*Config){
	"default": func(*Config) {},
	"qvga": func(c *Config) {
		c.Width, c.Height = 320, 240
	},
	// Most USB webcams only offer YUYV at 720p.
	"720p": func(c *Config) {
		c.Width, c.Height = 1280, 720
		c.PixelFormat = "yuyv"
	},
	// 15 fps is what a software Canny keeps up with at this size.
	"1080p": func(c *Config) {
		c.Width, c.Height = 1920, 1080
		c.Framerate = 15
		c.PixelFormat = "nv12"
	},
	"ir": func(c *Config) {
		c.PixelFormat = "gray8"
	},
}

// LookupPreset returns the named preset applied to DefaultConfig.
func LookupPreset(name string) (Config, bool) {
	apply, ok := presets[name]
	if !ok {
		return Config{}, false
	}
	cfg := DefaultConfig()
	apply(&cfg)
	return cfg, true
}

// PresetNames lists the presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
