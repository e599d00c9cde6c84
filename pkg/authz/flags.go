package authz

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeShadow   Mode = "shadow"
	ModeEnforce  Mode = "enforce"
)

// FlagProvider resolves the enforcement mode for a guarded object.
type FlagProvider interface {
	ModeFor(object string) Mode
}

type staticFlags Mode

func (s staticFlags) ModeFor(string) Mode { return Mode(s) }

// flagsFile is the on-disk shape of authz_flags.yaml:
//
//	mode: shadow
//	objects:
//	  assignment.rules: enforce
type flagsFile struct {
	Mode    string            `yaml:"mode"`
	Objects map[string]string `yaml:"objects"`
}

// FileFlagProvider re-reads its YAML file whenever the modification time changes.
// A missing or unreadable file keeps the last good flags.
type FileFlagProvider struct {
	path     string
	fallback Mode

	mu      sync.Mutex
	modTime time.Time
	mode    Mode
	objects map[string]Mode
}

func NewFileFlagProvider(path string, fallback Mode) *FileFlagProvider {
	fallback = ParseMode(string(fallback))
	return &FileFlagProvider{path: path, fallback: fallback, mode: fallback}
}

func (p *FileFlagProvider) ModeFor(object string) Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh()
	if m, ok := p.objects[strings.ToLower(object)]; ok {
		return m
	}
	return p.mode
}

func (p *FileFlagProvider) refresh() {
	info, err := os.Stat(p.path)
	if err != nil || info.ModTime().Equal(p.modTime) {
		return
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return
	}
	var f flagsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		p.mode, p.objects = p.fallback, nil
		p.modTime = info.ModTime()
		return
	}
	p.mode = ParseMode(f.Mode)
	p.objects = make(map[string]Mode, len(f.Objects))
	for obj, m := range f.Objects {
		p.objects[strings.ToLower(strings.TrimSpace(obj))] = ParseMode(m)
	}
	p.modTime = info.ModTime()
}

// ParseMode maps unknown values to ModeShadow.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDisabled:
		return ModeDisabled
	case ModeEnforce:
		return ModeEnforce
	default:
		return ModeShadow
	}
}
