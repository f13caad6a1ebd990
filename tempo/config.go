package tempo

import (
	"log/slog"

	"github.com/valerio/go-tempo/tempo/bus"
	"github.com/valerio/go-tempo/tempo/clock"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/irq"
	"github.com/valerio/go-tempo/tempo/lcd"
)

// Config is everything a System needs to know about the machine it times.
type Config struct {
	Clock clock.Config

	Regions     []bus.Region
	WaitControl uint16

	IRQWidth    int
	IRQPriority []irq.Source // empty: lowest bit wins
	IRQMaster   bool

	LCD        lcd.Timing
	LCDSources lcd.Sources

	// TimerDivider is master cycles per timer tick, TimerSource the
	// interrupt of timer 0 (the others follow it).
	TimerDivider uint64
	TimerSource  irq.Source
}

// GBAClockHz is the Game Boy Advance master clock.
const GBAClockHz = 1 << 24

// GBAConfig returns a Game Boy Advance: one CPU on the master clock, no
// refresh or bus grant stalls, 14 interrupt sources.
func GBAConfig() Config {
	return Config{
		Clock: clock.Config{
			Domains: []clock.DomainConfig{{Name: "arm7", Divider: 1}},
		},
		Regions:      bus.GBARegions(),
		IRQWidth:     14,
		LCD:          lcd.GBA(),
		LCDSources:   lcd.GBASources(),
		TimerDivider: 1,
		TimerSource:  irq.GBATimer0,
	}
}

// Option customizes a System at construction.
type Option func(*System)

// WithCPU attaches the primary CPU.
func WithCPU(cpu CPU) Option {
	return func(s *System) { s.cpu = cpu }
}

// WithSecondary attaches the chip clocked by the named domain. An unknown
// name panics.
func WithSecondary(domain string, chip Secondary) Option {
	return func(s *System) { s.SetSecondary(domain, chip) }
}

// WithROM attaches the cartridge the prefetch unit reads from.
func WithROM(rom bus.ROM) Option {
	return func(s *System) { s.bus.AttachROM(rom) }
}

// WithHandler replaces the handler of kind.
func WithHandler(kind events.Kind, h EventHandler) Option {
	return func(s *System) { s.Handle(kind, h) }
}

// WithLogger sets the logger used for dispatch traces. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) { s.logger = logger }
}
