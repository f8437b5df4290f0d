package structure

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The comment line of a frame carries key=value pairs:
//
//	label=T1 cell=10,10,10
//
// Atom lines are "species x y z" with an optional "vx vy vz".

// Encode writes s as one XYZ frame.
func Encode(w io.Writer, s Structure) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", s.NAtoms())

	comment := make([]string, 0, 2)
	if s.Label != "" {
		comment = append(comment, "label="+s.Label)
	}
	comment = append(comment, fmt.Sprintf("cell=%s,%s,%s",
		formatFloat(s.Cell[0]), formatFloat(s.Cell[1]), formatFloat(s.Cell[2])))
	fmt.Fprintln(bw, strings.Join(comment, " "))

	withVel := len(s.Velocities) == len(s.Positions)
	for i, sp := range s.Species {
		p := s.Positions[3*i : 3*i+3]
		fmt.Fprintf(bw, "%-2s %14.8f %14.8f %14.8f", sp, p[0], p[1], p[2])
		if withVel {
			v := s.Velocities[3*i : 3*i+3]
			fmt.Fprintf(bw, " %14.8f %14.8f %14.8f", v[0], v[1], v[2])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// EncodeAll writes every structure as consecutive frames.
func EncodeAll(w io.Writer, frames []Structure) error {
	for _, s := range frames {
		if err := Encode(w, s); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a single frame. Leading blank lines are skipped so frames
// embedded in markup can be indented freely.
func Decode(r io.Reader) (Structure, error) {
	frames, err := DecodeAll(r)
	if err != nil {
		return Structure{}, err
	}
	if len(frames) == 0 {
		return Structure{}, fmt.Errorf("%w: empty xyz input", ErrMalformed)
	}
	return frames[0], nil
}

// DecodeAll reads every frame in r.
func DecodeAll(r io.Reader) ([]Structure, error) {
	sc := bufio.NewScanner(r)
	var frames []Structure
	line := 0

	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		line++
		return sc.Text(), true
	}

	for {
		header, ok := next()
		for ok && strings.TrimSpace(header) == "" {
			header, ok = next()
		}
		if !ok {
			break
		}

		n, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: line %d: invalid atom count %q", ErrMalformed, line, strings.TrimSpace(header))
		}

		comment, ok := next()
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing comment line", ErrMalformed, line)
		}

		s := Structure{
			Species:   make([]string, 0, n),
			Positions: make([]float64, 0, 3*n),
		}
		if err := parseComment(&s, comment); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		for i := 0; i < n; i++ {
			text, ok := next()
			if !ok {
				return nil, fmt.Errorf("%w: expected %d atoms, got %d", ErrMalformed, n, i)
			}
			if err := parseAtom(&s, text); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if len(s.Velocities) != 0 && len(s.Velocities) != len(s.Positions) {
			return nil, fmt.Errorf("%w: velocities given for some atoms only", ErrMalformed)
		}
		frames = append(frames, s)
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

func parseComment(s *Structure, comment string) error {
	for _, field := range strings.Fields(comment) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "label":
			s.Label = value
		case "cell":
			parts := strings.Split(value, ",")
			if len(parts) != 3 {
				return fmt.Errorf("%w: cell needs three lengths, got %q", ErrMalformed, value)
			}
			for i, p := range parts {
				v, err := strconv.ParseFloat(p, 64)
				if err != nil {
					return fmt.Errorf("%w: cell: %v", ErrMalformed, err)
				}
				s.Cell[i] = v
			}
		}
	}
	return nil
}

func parseAtom(s *Structure, text string) error {
	fields := strings.Fields(text)
	if len(fields) != 4 && len(fields) != 7 {
		return fmt.Errorf("%w: atom line needs 4 or 7 fields, got %d", ErrMalformed, len(fields))
	}
	vals := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		vals[i] = v
	}
	s.Species = append(s.Species, fields[0])
	s.Positions = append(s.Positions, vals[:3]...)
	if len(vals) == 6 {
		s.Velocities = append(s.Velocities, vals[3:]...)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
