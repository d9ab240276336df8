package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
	"swingspin/bowler/internal/session"
)

const (
	renderInterval = 16 * time.Millisecond // ~60 FPS
	// axisHold keeps an arrow key "held" until terminal key repeat stops.
	axisHold   = 150 * time.Millisecond
	meterWidth = 41
	fieldWidth = 41

	fieldMinX = -2.0
	fieldMaxX = 2.0
	fieldMinZ = -6.5
	fieldMaxZ = 14.0
)

const helpLine = "space bowl  w swing  p spin  a/s/d left/straight/right  t side  arrows marker  r reset  q quit"

var (
	styleText   = tcell.StyleDefault
	styleDim    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleBall   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleMarker = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)
	styleStumps = tcell.StyleDefault.Foreground(tcell.ColorOlive)

	tierStyles = map[meter.Tier]tcell.Style{
		meter.Poor:    tcell.StyleDefault.Foreground(tcell.ColorRed),
		meter.Fair:    tcell.StyleDefault.Foreground(tcell.ColorYellow),
		meter.Good:    tcell.StyleDefault.Foreground(tcell.ColorGreen),
		meter.Perfect: tcell.StyleDefault.Foreground(tcell.ColorBlue),
	}

	runeCommands = map[rune]session.Command{
		' ': session.CmdBowl,
		'w': session.CmdSwing,
		'p': session.CmdSpin,
		'a': session.CmdLeft,
		's': session.CmdStraight,
		'd': session.CmdRight,
		't': session.CmdToggleSide,
		'r': session.CmdReset,
	}
)

// controller is the part of the session the terminal drives.
type controller interface {
	Queue(cmd session.Command)
	SetAxes(horizontal, vertical float64)
	Snapshot() session.Snapshot
}

// terminal is the input and display collaborator of one session.
type terminal struct {
	screen tcell.Screen
	game   controller
	now    func() time.Time

	axisH  float64
	axisV  float64
	axisAt time.Time
}

func newTerminal(screen tcell.Screen, game controller) *terminal {
	return &terminal{screen: screen, game: game, now: time.Now}
}

// run renders and routes input until the player quits or ctx ends.
func (t *terminal) run(ctx context.Context) {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	t.draw()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !t.handleEvent(ev) {
				return
			}
		case <-ticker.C:
			t.releaseAxes()
			t.draw()
		}
	}
}

// handleEvent returns false when the player asked to quit.
func (t *terminal) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return t.handleKey(ev)
	case *tcell.EventResize:
		t.screen.Sync()
	}
	return true
}

func (t *terminal) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyLeft:
		t.hold(-1, 0)
	case tcell.KeyRight:
		t.hold(1, 0)
	case tcell.KeyUp:
		t.hold(0, 1)
	case tcell.KeyDown:
		t.hold(0, -1)
	case tcell.KeyRune:
		r := unicode.ToLower(ev.Rune())
		if r == 'q' {
			return false
		}
		if cmd, ok := runeCommands[r]; ok {
			t.game.Queue(cmd)
		}
	}
	return true
}

// hold sets the marker axes. Terminals report presses only, so the axes are
// released by releaseAxes once repeats stop arriving.
func (t *terminal) hold(h, v float64) {
	t.axisH, t.axisV = h, v
	t.axisAt = t.now()
	t.game.SetAxes(h, v)
}

func (t *terminal) releaseAxes() {
	if t.axisH == 0 && t.axisV == 0 {
		return
	}
	if t.now().Sub(t.axisAt) > axisHold {
		t.axisH, t.axisV = 0, 0
		t.game.SetAxes(0, 0)
	}
}

func (t *terminal) draw() {
	snap := t.game.Snapshot()
	t.screen.Clear()
	_, height := t.screen.Size()

	t.text(0, 0, fmt.Sprintf("Bowler %s  deliveries %d  balls %d/%d", snap.SessionID, snap.Deliveries, snap.Pool.InUse, snap.Pool.Size), styleText)
	t.text(0, 1, fmt.Sprintf("%s   %s   Side: %s   %s", snap.ModeText, snap.DirText, snap.Side, strings.ToUpper(snap.State)), styleText)
	t.drawMeter(0, 2, snap)
	t.text(0, 3, lastLine(snap), styleDim)

	const fieldTop = 5
	t.drawField(0, fieldTop, height-fieldTop-1, snap)
	t.text(0, height-1, helpLine, styleDim)
	t.screen.Show()
}

// drawMeter paints the zone bands with the phase cursor on top.
func (t *terminal) drawMeter(x, y int, snap session.Snapshot) {
	t.screen.SetContent(x, y, '[', nil, styleText)
	cursor := int(math.Round(snap.Phase * (meterWidth - 1)))
	for i := 0; i < meterWidth; i++ {
		phase := float64(i) / (meterWidth - 1)
		style := tierStyles[snap.Zones.Classify(phase)]
		r := '='
		if i == cursor {
			r = '|'
			style = style.Reverse(true)
		}
		t.screen.SetContent(x+1+i, y, r, nil, style)
	}
	t.screen.SetContent(x+1+meterWidth, y, ']', nil, styleText)
	if !snap.MeterRunning {
		t.text(x+meterWidth+3, y, "stopped", styleDim)
	}
}

// drawField projects the pitch top-down with the far end at the top.
func (t *terminal) drawField(x0, y0, rows int, snap session.Snapshot) {
	if rows < 3 {
		return
	}
	project := func(p physics.Vec3) (int, int, bool) {
		col := int(math.Round((p.X - fieldMinX) / (fieldMaxX - fieldMinX) * (fieldWidth - 1)))
		row := int(math.Round((fieldMaxZ - p.Z) / (fieldMaxZ - fieldMinZ) * float64(rows-1)))
		if col < 0 || col >= fieldWidth || row < 0 || row >= rows {
			return 0, 0, false
		}
		return x0 + col, y0 + row, true
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < fieldWidth; col++ {
			t.screen.SetContent(x0+col, y0+row, '.', nil, styleDim)
		}
	}
	stumps := physics.Vec3{X: 0, Z: (session.Stumps.Min.Z + session.Stumps.Max.Z) / 2}
	if x, y, ok := project(stumps); ok {
		t.screen.SetContent(x, y, '#', nil, styleStumps)
	}
	if x, y, ok := project(snap.Marker); ok {
		t.screen.SetContent(x, y, 'X', nil, styleMarker)
	}
	for _, b := range snap.Balls {
		if !b.Active {
			continue
		}
		if x, y, ok := project(b.Position); ok {
			t.screen.SetContent(x, y, 'o', nil, styleBall)
		}
	}
}

func lastLine(snap session.Snapshot) string {
	if snap.Last == nil {
		return "no delivery yet"
	}
	line := fmt.Sprintf("#%d %s %s %s (phase %.2f)", snap.Last.ID, snap.Last.Mode, snap.Last.Direction, snap.Last.Accuracy, snap.Last.Phase)
	if snap.LastLanding != nil && snap.LastLanding.DeliveryID == snap.Last.ID {
		miss := snap.LastLanding.Point.Sub(snap.Last.Target).HorizontalLength()
		line += fmt.Sprintf("  pitched %.2fm from marker", miss)
	}
	return line
}

func (t *terminal) text(x, y int, s string, style tcell.Style) {
	for i, r := range []rune(s) {
		t.screen.SetContent(x+i, y, r, nil, style)
	}
}
