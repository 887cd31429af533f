// Package view draws a vertical slice of a running world into a terminal.
package view

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl32"

	"voxelsim/internal/engine"
	"voxelsim/internal/water"
)

const (
	glyphSolid     = '█'
	glyphDeepWater = '≈'
	glyphWater     = '~'
	glyphListener  = '@'
	glyphDebris    = '*'
)

var (
	styleStatus   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	styleWater    = tcell.StyleDefault.Foreground(tcell.ColorDodgerBlue)
	styleListener = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleRock     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleDebris   = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// Action is what the caller should do after a key press.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionRelisten
	ActionPlace
	ActionCarve
)

// Renderer draws the XY plane at depth z. Screen columns map to x, rows to y
// with the bottom map row at originY. The last screen row is a status line.
type Renderer struct {
	screen  tcell.Screen
	originX int
	originY int
	z       int
}

func NewRenderer(screen tcell.Screen, originX, originY, z int) *Renderer {
	return &Renderer{screen: screen, originX: originX, originY: originY, z: z}
}

func (r *Renderer) Origin() (x, y, z int) {
	return r.originX, r.originY, r.z
}

// Pan moves the view by whole cells.
func (r *Renderer) Pan(dx, dy, dz int) {
	r.originX += dx
	r.originY += dy
	r.z += dz
}

// Center returns the world cell under the middle of the map area.
func (r *Renderer) Center() (x, y, z int) {
	width, height := r.screen.Size()
	rows := height - 1
	return r.originX + width/2, r.originY + rows/2, r.z
}

// Draw renders one frame of w and shows it.
func (r *Renderer) Draw(w *engine.World) {
	r.screen.Clear()
	width, height := r.screen.Size()
	rows := height - 1
	if rows < 1 || width < 1 {
		r.screen.Show()
		return
	}

	cfg := w.Config()
	threshold := cfg.Structure.DensityThreshold
	listener := cfg.Acoustics.Listener
	density := w.Density()
	essence := w.Essence()
	sim := w.Water()

	for sy := 0; sy < rows; sy++ {
		y := r.originY + rows - 1 - sy
		for sx := 0; sx < width; sx++ {
			x := r.originX + sx
			switch {
			case x == listener.X && y == listener.Y && r.z == listener.Z:
				r.screen.SetContent(sx, sy, glyphListener, nil, styleListener)
			case density.Get(x, y, r.z) >= threshold:
				r.screen.SetContent(sx, sy, glyphSolid, nil, materialStyle(essence.Get(x, y, r.z)))
			default:
				level := sim.Level(x, y, r.z)
				switch {
				case level >= 0.5:
					r.screen.SetContent(sx, sy, glyphDeepWater, nil, styleWater)
				case level > water.MinWaterLevel:
					r.screen.SetContent(sx, sy, glyphWater, nil, styleWater)
				}
			}
		}
	}

	// debris reported since the last flush
	for _, d := range w.PendingDebris() {
		if d.Z != r.z {
			continue
		}
		sx := d.X - r.originX
		sy := r.originY + rows - 1 - d.Y
		if sx < 0 || sx >= width || sy < 0 || sy >= rows {
			continue
		}
		r.screen.SetContent(sx, sy, glyphDebris, nil, styleDebris)
	}

	r.drawStatus(w, width, height-1)
	r.screen.Show()
}

func (r *Renderer) drawStatus(w *engine.World, width, row int) {
	stats := w.LastStats()
	line := fmt.Sprintf(" z=%d frame=%d water=%.2f debris=%d %s decay=%.2fs wet=%.2f",
		r.z, stats.Frame, stats.WaterTotal, stats.DebrisQueued, stats.Weather.Kind,
		stats.Reverb.DecayTime, stats.Reverb.WetMix)
	col := 0
	for _, ch := range line {
		if col >= width {
			break
		}
		r.screen.SetContent(col, row, ch, nil, styleStatus)
		col++
	}
	for ; col < width; col++ {
		r.screen.SetContent(col, row, ' ', nil, styleStatus)
	}
}

func materialStyle(c mgl32.Vec4) tcell.Style {
	if c == (mgl32.Vec4{}) {
		return styleRock
	}
	return tcell.StyleDefault.Foreground(tcell.NewRGBColor(channel(c[0]), channel(c[1]), channel(c[2])))
}

func channel(v float32) int32 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return int32(v * 255)
}

// HandleKey applies navigation keys and reports anything the caller must act on.
func (r *Renderer) HandleKey(ev *tcell.EventKey) Action {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return ActionQuit
	case tcell.KeyLeft:
		r.Pan(-1, 0, 0)
	case tcell.KeyRight:
		r.Pan(1, 0, 0)
	case tcell.KeyUp:
		r.Pan(0, 1, 0)
	case tcell.KeyDown:
		r.Pan(0, -1, 0)
	case tcell.KeyPgUp:
		r.Pan(0, 0, 1)
	case tcell.KeyPgDn:
		r.Pan(0, 0, -1)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return ActionQuit
		case 'l':
			return ActionRelisten
		case 'p':
			return ActionPlace
		case 'c':
			return ActionCarve
		}
	}
	return ActionNone
}
