package dataset

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Array is a dense row-major tensor. The first dimension indexes time steps.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray validates that data holds exactly the number of elements shape describes.
func NewArray(shape []int, data []float64) (*Array, error) {
	if n := numElements(shape); n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Array{Shape: append([]int(nil), shape...), Data: data}, nil
}

// FromRows builds a 2-D array from equally sized rows.
func FromRows(rows [][]float64) (*Array, error) {
	if len(rows) == 0 {
		return &Array{Shape: []int{0, 0}}, nil
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), width)
		}
		data = append(data, r...)
	}
	return &Array{Shape: []int{len(rows), width}, Data: data}, nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Rows returns the size of the leading dimension.
func (a *Array) Rows() int {
	if len(a.Shape) == 0 {
		return 1
	}
	return a.Shape[0]
}

// RowLen returns the number of elements in one row.
func (a *Array) RowLen() int {
	if len(a.Shape) <= 1 {
		return 1
	}
	return numElements(a.Shape[1:])
}

// Row returns a view of row i.
func (a *Array) Row(i int) []float64 {
	n := a.RowLen()
	return a.Data[i*n : (i+1)*n]
}

// Min returns the smallest element, +Inf for an empty array.
func (a *Array) Min() float64 {
	m := math.Inf(1)
	for _, v := range a.Data {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest element, -Inf for an empty array.
func (a *Array) Max() float64 {
	m := math.Inf(-1)
	for _, v := range a.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// Clone returns a deep copy of a.
func (a *Array) Clone() *Array {
	return &Array{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data)}
}

// PadLast returns a copy of a with the final row repeated n more times.
func (a *Array) PadLast(n int) *Array {
	out := a.Clone()
	if n <= 0 || a.Rows() == 0 || len(a.Shape) == 0 {
		return out
	}
	last := a.Row(a.Rows() - 1)
	for range n {
		out.Data = append(out.Data, last...)
	}
	out.Shape[0] += n
	return out
}

// ShapeString formats a shape like a Python tuple: (10, 7) or (10,).
func ShapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Append adds rows to a, which must have matching row length. An empty
// array, including the zero value, takes its width from the first row.
func (a *Array) Append(rows ...[]float64) error {
	if len(a.Shape) == 0 && len(a.Data) == 0 && len(rows) > 0 {
		a.Shape = []int{0, len(rows[0])}
	}
	if len(a.Shape) == 0 {
		return fmt.Errorf("append to scalar")
	}
	if a.Shape[0] == 0 && len(a.Shape) == 2 && len(rows) > 0 {
		a.Shape[1] = len(rows[0])
	}
	n := a.RowLen()
	for i, r := range rows {
		if len(r) != n {
			return fmt.Errorf("row %d has %d elements, want %d", i, len(r), n)
		}
		a.Data = append(a.Data, r...)
		a.Shape[0]++
	}
	return nil
}
