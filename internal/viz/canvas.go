package viz

import (
	"math"
	"strings"

	"github.com/san-kum/remdrive/internal/structure"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the sub-pixel (x, y). The canvas is (Width*2) x (Height*4)
// sub-pixels.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawStructure plots the x-y projection of every atom in s. Periodic
// structures are scaled to their cell and outlined; others to the bounding
// box of their atoms.
func (c *Canvas) DrawStructure(s structure.Structure) {
	n := s.NAtoms()
	if n == 0 {
		return
	}

	w, h := c.Width*2-1, c.Height*4-1
	var x0, y0, xspan, yspan float64
	if s.Cell.Periodic() && s.Cell[0] > 0 && s.Cell[1] > 0 {
		xspan, yspan = s.Cell[0], s.Cell[1]
		c.DrawLine(0, 0, w, 0)
		c.DrawLine(w, 0, w, h)
		c.DrawLine(w, h, 0, h)
		c.DrawLine(0, h, 0, 0)
	} else {
		x0, y0 = s.Positions[0], s.Positions[1]
		x1, y1 := x0, y0
		for i := 1; i < n; i++ {
			x, y := s.Positions[3*i], s.Positions[3*i+1]
			x0, x1 = min(x0, x), max(x1, x)
			y0, y1 = min(y0, y), max(y1, y)
		}
		// pad so atoms on the edge stay visible
		xspan, yspan = (x1-x0)*1.2+1, (y1-y0)*1.2+1
		x0 -= (xspan - (x1 - x0)) / 2
		y0 -= (yspan - (y1 - y0)) / 2
	}

	for i := 0; i < n; i++ {
		x, y := s.Positions[3*i]-x0, s.Positions[3*i+1]-y0
		if s.Cell.Periodic() {
			x, y = wrap(x, xspan), wrap(y, yspan)
		}
		px := int(x / xspan * float64(w))
		py := h - int(y/yspan*float64(h))
		c.Set(px, py)
		c.Set(px+1, py)
		c.Set(px, py+1)
		c.Set(px+1, py+1)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func wrap(v, l float64) float64 {
	if l <= 0 {
		return v
	}
	v = math.Mod(v, l)
	if v < 0 {
		v += l
	}
	return v
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
