package tensor

import "fmt"

// Tensor is a simple n-D array backed by a flat []float64.
// Layout is row-major: the last axis varies fastest. Volumes use
// [D, H, W]; batched network tensors use [B, C, D, H, W].
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zeroed Tensor of the given shape.
func New(shape ...int) *Tensor {
	// Compute total size
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromData wraps an existing slice in a tensor of the given shape.
// The slice is used directly, not copied.
func FromData(shape []int, data []float64) (*Tensor, error) {
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, total, len(data))
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// NumElements returns the number of elements implied by the shape.
func (t *Tensor) NumElements() int {
	total := 1
	for _, d := range t.Shape {
		total *= d
	}
	return total
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		Data:  make([]float64, len(t.Data)),
		Shape: append([]int(nil), t.Shape...),
	}
	copy(out.Data, t.Data)
	return out
}

// Reshape returns a view over the same data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, len(t.Data), shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// Zero resets every element to 0 in place.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Fill sets every element to v in place.
func (t *Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// MinMax returns the smallest and largest element.
func (t *Tensor) MinMax() (min, max float64) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	min, max = t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	// Element-wise add
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// AddInto accumulates b into a in place (same shape).
func AddInto(a, b *Tensor) error {
	if !SameShape(a, b) {
		return fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	for i := range a.Data {
		a.Data[i] += b.Data[i]
	}
	return nil
}

// Sub returns a-b (same shape), or error if shapes differ.
func Sub(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out, nil
}

// Scale returns a*s.
func Scale(a *Tensor, s float64) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] * s
	}
	return out
}

// MatMul returns a×b (2-D only), or error if dims mismatch.
func MatMul(a, b *Tensor) (*Tensor, error) {
	// Only 2-D tensors
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2-D tensors, got %v and %v", a.Shape, b.Shape)
	}
	r, k := a.Shape[0], a.Shape[1]
	k2, c := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions must match: %d vs %d", k, k2)
	}
	out := New(r, c)
	// Compute C = A×B
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum := 0.0
			for t := 0; t < k; t++ {
				sum += a.Data[i*k+t] * b.Data[t*c+j]
			}
			out.Data[i*c+j] = sum
		}
	}
	return out, nil
}

// Stack combines n tensors of identical shape into one tensor with a new
// leading axis of length n.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("Stack requires at least one tensor")
	}
	for _, t := range ts[1:] {
		if !SameShape(ts[0], t) {
			return nil, fmt.Errorf("Stack shape mismatch: %v vs %v", ts[0].Shape, t.Shape)
		}
	}
	shape := append([]int{len(ts)}, ts[0].Shape...)
	out := New(shape...)
	n := ts[0].NumElements()
	for i, t := range ts {
		copy(out.Data[i*n:(i+1)*n], t.Data)
	}
	return out, nil
}

// Concat joins a and b along the given axis. All other dims must match.
func Concat(axis int, a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("Concat rank mismatch: %v vs %v", a.Shape, b.Shape)
	}
	if axis < 0 || axis >= len(a.Shape) {
		return nil, fmt.Errorf("Concat axis %d out of range for rank %d", axis, len(a.Shape))
	}
	for i := range a.Shape {
		if i != axis && a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("Concat shape mismatch on axis %d: %v vs %v", i, a.Shape, b.Shape)
		}
	}
	shape := append([]int(nil), a.Shape...)
	shape[axis] += b.Shape[axis]
	out := New(shape...)

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= a.Shape[i]
	}
	aBlock := len(a.Data) / outer
	bBlock := len(b.Data) / outer
	for o := 0; o < outer; o++ {
		dst := out.Data[o*(aBlock+bBlock):]
		copy(dst[:aBlock], a.Data[o*aBlock:(o+1)*aBlock])
		copy(dst[aBlock:aBlock+bBlock], b.Data[o*bBlock:(o+1)*bBlock])
	}
	return out, nil
}

// SplitAt is the inverse of Concat: it splits t along axis into a part of
// length at and the remainder.
func SplitAt(axis, at int, t *Tensor) (*Tensor, *Tensor, error) {
	if axis < 0 || axis >= len(t.Shape) {
		return nil, nil, fmt.Errorf("SplitAt axis %d out of range for rank %d", axis, len(t.Shape))
	}
	if at <= 0 || at >= t.Shape[axis] {
		return nil, nil, fmt.Errorf("SplitAt position %d out of range for axis length %d", at, t.Shape[axis])
	}
	aShape := append([]int(nil), t.Shape...)
	bShape := append([]int(nil), t.Shape...)
	aShape[axis] = at
	bShape[axis] = t.Shape[axis] - at
	a := New(aShape...)
	b := New(bShape...)

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= t.Shape[i]
	}
	aBlock := len(a.Data) / outer
	bBlock := len(b.Data) / outer
	for o := 0; o < outer; o++ {
		src := t.Data[o*(aBlock+bBlock):]
		copy(a.Data[o*aBlock:(o+1)*aBlock], src[:aBlock])
		copy(b.Data[o*bBlock:(o+1)*bBlock], src[aBlock:aBlock+bBlock])
	}
	return a, b, nil
}

// ReluPlain applies ReLU to each element in a, returns new Tensor.
func ReluPlain(a *Tensor) *Tensor {
	out := New(a.Shape...)
	for i, v := range a.Data {
		if v > 0 {
			out.Data[i] = v
		} else {
			out.Data[i] = 0
		}
	}
	return out
}

// index computes the flat offset for a set of indices.
func (t *Tensor) index(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.index("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.index("Set", indices)] = value
}
