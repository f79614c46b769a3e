package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/san-kum/restshape/internal/sim"
)

type Point struct{ X, Y float64 }

// SweepPoints maps a sweep onto (displacement, component) pairs. component
// 0..2 selects a force axis, 3..5 a torque axis.
func SweepPoints(points []sim.SweepPoint, component int) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		y := 0.0
		switch {
		case component >= 0 && component < 3:
			y = p.Force[component]
		case component >= 3 && component < 6:
			y = p.Torque[component-3]
		}
		out[i] = Point{X: p.Value, Y: y}
	}
	return out
}

// CurveToSVG draws points as a polyline with zero axes. It returns "" for
// fewer than two points.
func CurveToSVG(points []Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	px := func(x float64) float64 { return (x - minX) / rangeX * float64(width) }
	py := func(y float64) float64 { return float64(height) - (y-minY)/rangeY*float64(height) }

	var sb strings.Builder

	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	if minX <= 0 && maxX >= 0 {
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="0" x2="%.1f" y2="%d" stroke="#444466"/>
`, px(0), px(0), height)
	}
	if minY <= 0 && maxY >= 0 {
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#444466"/>
`, py(0), width, py(0))
	}

	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, strokeColor)
	for i, p := range points {
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", px(p.X), py(p.Y))
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", px(p.X), py(p.Y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

func WriteSVG(path string, svg string) error {
	if svg == "" {
		return fmt.Errorf("nothing to draw")
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
