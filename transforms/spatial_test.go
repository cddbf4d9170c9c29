package transforms

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AmeerHamza111/MONAI/tensor"
)

func sequentialVolume(shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = float64(i)
	}
	return t
}

func TestRandSpatialCropKeepsPairAligned(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vol := sequentialVolume(1, 6, 6, 6)
	s := Sample{Image: vol, Mask: vol.Clone()}
	out, err := RandSpatialCrop{Size: [3]int{4, 4, 4}}.Apply(rng, s)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 4, 4, 4}, out.Image.Shape); diff != "" {
		t.Fatalf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(out.Image.Data, out.Mask.Data); diff != "" {
		t.Errorf("image and mask saw different offsets (-image +mask):\n%s", diff)
	}
}

func TestRandSpatialCropFullSizeIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	vol := sequentialVolume(2, 3, 3, 3)
	out, err := RandSpatialCrop{Size: [3]int{3, 3, 3}}.Apply(rng, Sample{Image: vol, Mask: vol.Clone()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vol.Data, out.Image.Data); diff != "" {
		t.Errorf("full-size crop changed the volume (-want +got):\n%s", diff)
	}
}

func TestRandSpatialCropRejectsOversize(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	vol := tensor.New(1, 3, 3, 3)
	if _, err := (RandSpatialCrop{Size: [3]int{4, 3, 3}}).Apply(rng, Sample{Image: vol, Mask: vol.Clone()}); err == nil {
		t.Error("expected error for crop larger than volume")
	}
}

func TestCenterSpatialCrop(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	vol := sequentialVolume(1, 4, 4, 4)
	out, err := CenterSpatialCrop{Size: [3]int{2, 2, 2}}.Apply(rng, Sample{Image: vol, Mask: vol.Clone()})
	if err != nil {
		t.Fatal(err)
	}
	// Offset (4-2)/2 = 1 on every axis; first voxel is (1,1,1).
	want := vol.Data[(1*4+1)*4+1]
	if out.Image.Data[0] != want {
		t.Errorf("first cropped voxel = %g, want %g", out.Image.Data[0], want)
	}
	if diff := cmp.Diff([]int{1, 2, 2, 2}, out.Image.Shape); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
}

func TestRandFlip(t *testing.T) {
	vol := sequentialVolume(1, 1, 1, 3)
	always := RandFlip{Axis: 2, Prob: 1}
	out, err := always.Apply(rand.New(rand.NewSource(7)), Sample{Image: vol, Mask: vol.Clone()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{2, 1, 0}, out.Image.Data); diff != "" {
		t.Errorf("flipped image (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(out.Image.Data, out.Mask.Data); diff != "" {
		t.Errorf("mask flipped differently (-image +mask):\n%s", diff)
	}

	never := RandFlip{Axis: 2, Prob: 0}
	out, err = never.Apply(rand.New(rand.NewSource(8)), Sample{Image: vol, Mask: vol.Clone()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(vol.Data, out.Image.Data); diff != "" {
		t.Errorf("zero-probability flip changed the volume (-want +got):\n%s", diff)
	}
}

func TestRandFlipAxes(t *testing.T) {
	vol := sequentialVolume(1, 2, 2, 2)
	for axis, wantFirst := range map[int]float64{0: 4, 1: 2, 2: 1} {
		out, err := RandFlip{Axis: axis, Prob: 1}.Apply(rand.New(rand.NewSource(9)), Sample{Image: vol, Mask: vol.Clone()})
		if err != nil {
			t.Fatal(err)
		}
		if out.Image.Data[0] != wantFirst {
			t.Errorf("axis %d: first voxel = %g, want %g", axis, out.Image.Data[0], wantFirst)
		}
	}
}

func TestSpatialRejectsMismatchedPair(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	s := Sample{Image: tensor.New(1, 4, 4, 4), Mask: tensor.New(1, 3, 4, 4)}
	if _, err := (RandSpatialCrop{Size: [3]int{2, 2, 2}}).Apply(rng, s); err == nil {
		t.Error("expected error for mismatched image and mask dims")
	}
	if _, err := (RandFlip{Axis: 0, Prob: 1}).Apply(rng, s); err == nil {
		t.Error("expected error for mismatched image and mask dims")
	}
}
