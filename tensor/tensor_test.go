package tensor

import "testing"

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	if len(t1.Data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(t1.Data))
	}
	if len(t1.Shape) != 2 || t1.Shape[0] != 2 || t1.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", t1.Shape)
	}
}

func TestFromData(t *testing.T) {
	tr, err := FromData([]int{2, 2}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if tr.At(1, 0) != 3 {
		t.Errorf("At(1,0) = %f, want 3", tr.At(1, 0))
	}
	if _, err := FromData([]int{2, 2}, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for wrong element count")
	}
}

func TestAdd(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3}, Shape: []int{3}}
	b := &Tensor{Data: []float64{4, 5, 6}, Shape: []int{3}}
	c, err := Add(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{5, 7, 9}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestSubScale(t *testing.T) {
	a := &Tensor{Data: []float64{4, 6}, Shape: []int{2}}
	b := &Tensor{Data: []float64{1, 2}, Shape: []int{2}}
	c, err := Sub(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if c.Data[0] != 3 || c.Data[1] != 4 {
		t.Errorf("Sub got %v", c.Data)
	}
	s := Scale(a, 0.5)
	if s.Data[0] != 2 || s.Data[1] != 3 {
		t.Errorf("Scale got %v", s.Data)
	}
}

func TestMatMul(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3, 4}, Shape: []int{2, 2}}
	b := &Tensor{Data: []float64{5, 6, 7, 8}, Shape: []int{2, 2}}
	c, err := MatMul(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{19, 22, 43, 50}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestReluPlain(t *testing.T) {
	a := &Tensor{Data: []float64{-1, 0, 3}, Shape: []int{3}}
	c := ReluPlain(a)
	want := []float64{0, 0, 3}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestCloneIndependent(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2}, Shape: []int{2}}
	b := a.Clone()
	b.Data[0] = 9
	if a.Data[0] != 1 {
		t.Error("Clone shares backing data")
	}
}

func TestReshapeSharesData(t *testing.T) {
	a := New(2, 3)
	v, err := a.Reshape(3, 2)
	if err != nil {
		t.Fatal(err)
	}
	v.Data[0] = 7
	if a.Data[0] != 7 {
		t.Error("Reshape should share backing data")
	}
	if _, err := a.Reshape(4, 2); err == nil {
		t.Error("expected error for incompatible reshape")
	}
}

func TestMinMax(t *testing.T) {
	a := &Tensor{Data: []float64{3, -1, 7, 0}, Shape: []int{4}}
	min, max := a.MinMax()
	if min != -1 || max != 7 {
		t.Errorf("MinMax got (%f, %f), want (-1, 7)", min, max)
	}
}

func TestStack(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2}, Shape: []int{2}}
	b := &Tensor{Data: []float64{3, 4}, Shape: []int{2}}
	s, err := Stack([]*Tensor{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Shape) != 2 || s.Shape[0] != 2 || s.Shape[1] != 2 {
		t.Fatalf("unexpected shape: %v", s.Shape)
	}
	want := []float64{1, 2, 3, 4}
	for i := range want {
		if s.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, s.Data[i], want[i])
		}
	}
}

func TestConcatSplitRoundtrip(t *testing.T) {
	// [1,2,2,2] and [1,1,2,2] concatenated on the channel axis.
	a := New(1, 2, 2, 2)
	b := New(1, 1, 2, 2)
	for i := range a.Data {
		a.Data[i] = float64(i + 1)
	}
	for i := range b.Data {
		b.Data[i] = float64(100 + i)
	}
	c, err := Concat(1, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if c.Shape[1] != 3 {
		t.Fatalf("concat channel dim = %d, want 3", c.Shape[1])
	}
	if c.At(0, 2, 0, 0) != 100 {
		t.Errorf("second tensor block misplaced: got %f", c.At(0, 2, 0, 0))
	}
	a2, b2, err := SplitAt(1, 2, c)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Data {
		if a2.Data[i] != a.Data[i] {
			t.Fatalf("split part a differs at %d", i)
		}
	}
	for i := range b.Data {
		if b2.Data[i] != b.Data[i] {
			t.Fatalf("split part b differs at %d", i)
		}
	}
}

func TestConcatBatched(t *testing.T) {
	// Two batch items: channel blocks must interleave per item.
	a := New(2, 1, 1, 1, 2)
	b := New(2, 1, 1, 1, 2)
	copy(a.Data, []float64{1, 2, 3, 4})
	copy(b.Data, []float64{5, 6, 7, 8})
	c, err := Concat(1, a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 2, 5, 6, 3, 4, 7, 8}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Fatalf("at %d, got %f, want %f (data %v)", i, c.Data[i], want[i], c.Data)
		}
	}
}

func TestAtSetBounds(t *testing.T) {
	a := New(2, 3)
	a.Set(5, 1, 2)
	if a.At(1, 2) != 5 {
		t.Errorf("At(1,2) = %f, want 5", a.At(1, 2))
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-bounds index")
		}
	}()
	a.At(2, 0)
}
