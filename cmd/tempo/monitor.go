package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/valerio/go-tempo/tempo"
	"github.com/valerio/go-tempo/tempo/debug"
	"github.com/valerio/go-tempo/tempo/timing"
)

// monitor runs the system one frame per tick and shows its snapshot.
//
//	space  pause / resume
//	n      advance one frame while paused
//	q, Esc quit
type monitor struct {
	screen      tcell.Screen
	sys         *tempo.System
	frameCycles uint64
	limiter     *timing.TickerLimiter

	keys    chan rune
	done    chan struct{}
	paused  bool
	running bool
}

func newMonitor(sys *tempo.System, frameCycles uint64, frame time.Duration) (*monitor, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}
	return newMonitorOn(screen, sys, frameCycles, frame)
}

func newMonitorOn(screen tcell.Screen, sys *tempo.System, frameCycles uint64, frame time.Duration) (*monitor, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	return &monitor{
		screen:      screen,
		sys:         sys,
		frameCycles: frameCycles,
		// a terminal can't keep up with 60 redraws a second
		limiter: timing.NewTickerLimiter(max(frame, 50*time.Millisecond)),
		keys:    make(chan rune, 8),
		done:    make(chan struct{}),
		running: true,
	}, nil
}

func (m *monitor) Run() error {
	defer func() {
		close(m.done)
		m.limiter.Stop()
		m.screen.Fini()
		slog.Info("Monitor closed")
	}()

	m.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	m.screen.Clear()

	go m.handleInput()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	m.render()
	for m.running {
		select {
		case <-m.limiter.C():
			if !m.paused {
				m.runFrame()
			}
			m.render()
		case key := <-m.keys:
			switch key {
			case ' ':
				m.paused = !m.paused
			case 'n':
				if m.paused {
					m.runFrame()
				}
			case 'q':
				m.running = false
			}
			m.render()
		case <-signals:
			slog.Info("Received signal to stop")
			m.running = false
		}
	}
	return nil
}

func (m *monitor) runFrame() {
	m.sys.RunUntil(m.sys.Cycles() + m.frameCycles)
}

// handleInput forwards key presses to the run loop, which owns the System.
func (m *monitor) handleInput() {
	for {
		switch ev := m.screen.PollEvent().(type) {
		case nil:
			// screen finalized
			return
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				if !m.send('q') {
					return
				}
			case tcell.KeyRune:
				if !m.send(ev.Rune()) {
					return
				}
			}
		case *tcell.EventResize:
			m.screen.Sync()
		}
	}
}

// send hands a key to the run loop. It reports false once the loop has
// exited and nobody will read the key.
func (m *monitor) send(key rune) bool {
	select {
	case m.keys <- key:
		return true
	case <-m.done:
		return false
	}
}

func (m *monitor) render() {
	m.screen.Clear()

	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	text := tcell.StyleDefault.Foreground(tcell.ColorWhite)

	header := "tempo monitor  [space] pause  [n] next frame  [q] quit"
	if m.paused {
		header += "  PAUSED"
	}
	drawString(m.screen, 0, 0, header, title)

	for y, line := range debug.Take(m.sys).Lines() {
		drawString(m.screen, 0, y+2, line, text)
	}
	m.screen.Show()
}

func drawString(s tcell.Screen, x, y int, str string, style tcell.Style) {
	for i, r := range []rune(str) {
		s.SetContent(x+i, y, r, nil, style)
	}
}
