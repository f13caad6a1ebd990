// Package profile loads machine timing profiles from YAML.
//
// A profile names the clock domains and their dividers, the stall
// constants, the bus regions, the interrupt priority, the display timing
// and the timer clock of one machine. Built-in profiles cover the Game Boy
// Advance and the Sega Genesis; others can be loaded from disk.
package profile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valerio/go-tempo/tempo"
	"github.com/valerio/go-tempo/tempo/bus"
	"github.com/valerio/go-tempo/tempo/clock"
	"github.com/valerio/go-tempo/tempo/irq"
	"github.com/valerio/go-tempo/tempo/lcd"
)

// ErrInvalid is wrapped by every error about a malformed profile.
var ErrInvalid = errors.New("invalid profile")

//go:embed profiles/*.yaml
var builtin embed.FS

// DefaultName is the profile used when none is given.
const DefaultName = "gba"

// Profile is the YAML document.
type Profile struct {
	Name     string `yaml:"name"`
	MasterHz uint64 `yaml:"master_hz"`

	Clock  Clock  `yaml:"clock"`
	Bus    Bus    `yaml:"bus"`
	IRQ    IRQ    `yaml:"irq"`
	LCD    LCD    `yaml:"lcd"`
	Timers Timers `yaml:"timers"`
}

type Domain struct {
	Name    string `yaml:"name"`
	Divider uint64 `yaml:"divider"`
}

type Clock struct {
	Domains              []Domain `yaml:"domains"`
	RefreshInterval      uint64   `yaml:"refresh_interval"`
	RefreshStall         uint64   `yaml:"refresh_stall"`
	GrantPrimaryStall    uint64   `yaml:"grant_primary_stall"`
	GrantSecondaryStall  uint64   `yaml:"grant_secondary_stall"`
	SecondaryAccessStall uint64   `yaml:"secondary_access_stall"`
	MaxStallMaster       uint64   `yaml:"max_stall_master"`
}

type Region struct {
	Name  string `yaml:"name"`
	Start uint32 `yaml:"start"`
	End   uint32 `yaml:"end"`
	// DataBus is in bits: 8, 16 or 32.
	DataBus  int    `yaml:"data_bus"`
	Slot     string `yaml:"slot"`
	N        uint64 `yaml:"n"`
	S        uint64 `yaml:"s"`
	OneBeat  bool   `yaml:"one_beat"`
	Prefetch bool   `yaml:"prefetch"`
}

type Bus struct {
	WaitControl uint16   `yaml:"wait_control"`
	Regions     []Region `yaml:"regions"`
}

type IRQ struct {
	Width        int   `yaml:"width"`
	Priority     []int `yaml:"priority,omitempty"`
	MasterEnable bool  `yaml:"master_enable"`
}

type LCDSources struct {
	VBlank   int `yaml:"vblank"`
	HBlank   int `yaml:"hblank"`
	VCounter int `yaml:"vcounter"`
}

type LCD struct {
	LineCycles   uint64     `yaml:"line_cycles"`
	HBlankStart  uint64     `yaml:"hblank_start"`
	VisibleLines uint16     `yaml:"visible_lines"`
	TotalLines   uint16     `yaml:"total_lines"`
	Sources      LCDSources `yaml:"sources"`
}

type Timers struct {
	Divider     uint64 `yaml:"divider"`
	FirstSource int    `yaml:"first_source"`
}

// Names lists the built-in profiles.
func Names() []string {
	entries, err := builtin.ReadDir("profiles")
	if err != nil {
		panic("profile: " + err.Error())
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}

// Builtin returns the built-in profile called name.
func Builtin(name string) (Profile, error) {
	data, err := builtin.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: no built-in profile %q (have %s)", ErrInvalid, name, strings.Join(Names(), ", "))
	}
	return Parse(data)
}

// Default returns the built-in Game Boy Advance profile.
func Default() Profile {
	p, err := Builtin(DefaultName)
	if err != nil {
		panic("profile: " + err.Error())
	}
	return p
}

// Load reads and validates a profile file.
func Load(filename string) (Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", filename, err)
	}
	slog.Info("Loaded profile", "name", p.Name, "file", filename, "domains", len(p.Clock.Domains))
	return p, nil
}

// Parse decodes and validates a YAML profile. Unknown keys are rejected.
func Parse(data []byte) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Marshal encodes p back to YAML.
func (p Profile) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks everything tempo.New would otherwise panic on.
func (p Profile) Validate() error {
	if p.MasterHz == 0 {
		return invalid("master_hz must be set")
	}

	if n := len(p.Clock.Domains); n == 0 || n > clock.MaxDomains {
		return invalid("need 1 to %d clock domains, got %d", clock.MaxDomains, n)
	}
	seen := map[string]bool{}
	for _, d := range p.Clock.Domains {
		switch {
		case d.Name == "":
			return invalid("clock domain without a name")
		case seen[d.Name]:
			return invalid("clock domain %q declared twice", d.Name)
		case d.Divider == 0:
			return invalid("clock domain %q has a zero divider", d.Name)
		}
		seen[d.Name] = true
	}

	regions, err := p.regions()
	if err != nil {
		return err
	}
	if err := bus.ValidateRegions(regions); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	width := p.IRQ.Width
	if width < 1 || width > irq.MaxSources {
		return invalid("irq width %d outside 1 to %d", width, irq.MaxSources)
	}
	if n := len(p.IRQ.Priority); n > 0 {
		sorted := slices.Sorted(slices.Values(p.IRQ.Priority))
		for i, s := range sorted {
			if s != i || n != width {
				return invalid("irq priority must list every source from 0 to %d exactly once", width-1)
			}
		}
	}
	source := func(what string, s int) error {
		if s < 0 || s >= width {
			return invalid("%s interrupt %d outside a %d source register", what, s, width)
		}
		return nil
	}

	if err := p.timing().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, check := range []struct {
		what string
		s    int
	}{
		{"vblank", p.LCD.Sources.VBlank},
		{"hblank", p.LCD.Sources.HBlank},
		{"vcounter", p.LCD.Sources.VCounter},
		{"timer 0", p.Timers.FirstSource},
		{"timer 3", p.Timers.FirstSource + 3},
	} {
		if err := source(check.what, check.s); err != nil {
			return err
		}
	}

	if p.Timers.Divider == 0 {
		return invalid("timers need a non-zero divider")
	}
	return nil
}

func (p Profile) regions() ([]bus.Region, error) {
	widths := map[int]bus.Width{8: bus.Byte, 16: bus.Halfword, 32: bus.Word}

	regions := make([]bus.Region, 0, len(p.Bus.Regions))
	for _, r := range p.Bus.Regions {
		width, ok := widths[r.DataBus]
		if !ok {
			return nil, invalid("region %s: data bus must be 8, 16 or 32 bits, got %d", r.Name, r.DataBus)
		}
		slot := bus.Fixed
		if r.Slot != "" {
			if slot, ok = bus.ParseWaitSlot(r.Slot); !ok {
				return nil, invalid("region %s: unknown wait slot %q", r.Name, r.Slot)
			}
		}
		regions = append(regions, bus.Region{
			Name:     r.Name,
			Start:    r.Start,
			End:      r.End,
			DataBus:  width,
			Slot:     slot,
			N:        r.N,
			S:        r.S,
			OneBeat:  r.OneBeat,
			Prefetch: r.Prefetch,
		})
	}
	return regions, nil
}

func (p Profile) timing() lcd.Timing {
	return lcd.Timing{
		LineCycles:   p.LCD.LineCycles,
		HBlankStart:  p.LCD.HBlankStart,
		VisibleLines: p.LCD.VisibleLines,
		TotalLines:   p.LCD.TotalLines,
	}
}

// Config converts a validated profile into a System configuration.
func (p Profile) Config() tempo.Config {
	regions, err := p.regions()
	if err != nil {
		panic("profile: Config on an invalid profile: " + err.Error())
	}

	domains := make([]clock.DomainConfig, len(p.Clock.Domains))
	for i, d := range p.Clock.Domains {
		domains[i] = clock.DomainConfig{Name: d.Name, Divider: d.Divider}
	}

	var priority []irq.Source
	for _, s := range p.IRQ.Priority {
		priority = append(priority, irq.Source(s))
	}

	return tempo.Config{
		Clock: clock.Config{
			Domains:              domains,
			RefreshInterval:      p.Clock.RefreshInterval,
			RefreshStall:         p.Clock.RefreshStall,
			GrantPrimaryStall:    p.Clock.GrantPrimaryStall,
			GrantSecondaryStall:  p.Clock.GrantSecondaryStall,
			SecondaryAccessStall: p.Clock.SecondaryAccessStall,
			MaxStallMaster:       p.Clock.MaxStallMaster,
		},
		Regions:     regions,
		WaitControl: p.Bus.WaitControl,
		IRQWidth:    p.IRQ.Width,
		IRQPriority: priority,
		IRQMaster:   p.IRQ.MasterEnable,
		LCD:         p.timing(),
		LCDSources: lcd.Sources{
			VBlank:   irq.Source(p.LCD.Sources.VBlank),
			HBlank:   irq.Source(p.LCD.Sources.HBlank),
			VCounter: irq.Source(p.LCD.Sources.VCounter),
		},
		TimerDivider: p.Timers.Divider,
		TimerSource:  irq.Source(p.Timers.FirstSource),
	}
}
