package input

import "github.com/tleino/xin/internal/display"

// pointerState is the reconstructed absolute pointer position.
type pointerState struct {
	pos   display.Point
	valid bool
}

func (p *pointerState) reset(pos display.Point) {
	p.pos = pos
	p.valid = true
}

// moved returns the position after subtracting the delta, clamped to the
// closed range [0, size] on each axis.
func (p *pointerState) moved(dx, dy int, size display.Size) display.Point {
	return display.Point{
		X: clamp(int64(p.pos.X)-int64(dx), size.Width),
		Y: clamp(int64(p.pos.Y)-int64(dy), size.Height),
	}
}

func clamp(v int64, limit int) int {
	if v < 0 {
		return 0
	}
	if v >= int64(limit) {
		return limit
	}
	return int(v)
}
