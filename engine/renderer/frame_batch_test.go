package renderer

import (
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFrameBatchGroupsMeshInstances(t *testing.T) {
	f := newFrameBatch()
	f.addMeshInstances(3, instancesAt(2))
	f.addMeshInstances(1, instancesAt(1))
	f.addMeshInstances(3, instancesAt(4))

	live := f.liveMeshes()
	if len(live) != 2 {
		t.Fatalf("%d mesh batches, want 2", len(live))
	}
	if live[0].handle != 3 || len(live[0].instances) != 6 {
		t.Errorf("batch 0 = handle %d with %d instances", live[0].handle, len(live[0].instances))
	}
	if live[1].handle != 1 || len(live[1].instances) != 1 {
		t.Errorf("batch 1 = handle %d with %d instances", live[1].handle, len(live[1].instances))
	}
}

func TestFrameBatchResetKeepsStorage(t *testing.T) {
	f := newFrameBatch()
	f.addMeshInstances(1, instancesAt(8))
	f.addScreenQuads(1, make([]ScreenQuad, 5))
	f.addSun(1, SunNoise{}, mgl32.Vec3{}, 1)
	f.addPointLight(PointLight{Radius: 1})
	instCap := cap(f.meshes[0].instances)
	quadCap := cap(f.quads[0].quads)

	f.reset()
	if len(f.liveMeshes()) != 0 || len(f.liveQuads()) != 0 || len(f.liveSuns()) != 0 || len(f.pointLights) != 0 {
		t.Fatal("reset left live entries")
	}

	f.addMeshInstances(2, instancesAt(3))
	f.addScreenQuads(4, make([]ScreenQuad, 2))
	if cap(f.meshes[0].instances) != instCap {
		t.Error("instance storage reallocated after reset")
	}
	if cap(f.quads[0].quads) != quadCap {
		t.Error("quad storage reallocated after reset")
	}
	if live := f.liveMeshes(); len(live) != 1 || live[0].handle != 2 || len(live[0].instances) != 3 {
		t.Errorf("reused mesh batch = %+v", live)
	}
}

func TestFrameBatchQuadRuns(t *testing.T) {
	f := newFrameBatch()
	for _, page := range []TextureHandle{1, 1, 2, 1, 1} {
		f.addScreenQuads(page, make([]ScreenQuad, 1))
	}

	live := f.liveQuads()
	want := []struct {
		page TextureHandle
		n    int
	}{{1, 2}, {2, 1}, {1, 2}}
	if len(live) != len(want) {
		t.Fatalf("%d quad batches, want %d", len(live), len(want))
	}
	for i, w := range want {
		if live[i].texture != w.page || len(live[i].quads) != w.n {
			t.Errorf("batch %d = page %d with %d quads, want page %d with %d", i, live[i].texture, len(live[i].quads), w.page, w.n)
		}
	}
}

func TestFrameBatchSFXConsumedOnce(t *testing.T) {
	f := newFrameBatch()
	f.addSFX(SFXEmissive, 1, 2, color.RGBA{A: 255}, fxTriangles(3))
	f.addSFX(SFXDiffuse, 1, 2, color.RGBA{A: 255}, fxTriangles(1))
	f.addSFX(SFXEmissive, 2, 2, color.RGBA{A: 255}, fxTriangles(2))

	if got := f.consumeSFX(SFXEmissive); len(got) != 2 || len(got[1].triangles) != 2 {
		t.Fatalf("emissive batches = %+v", got)
	}
	if got := f.consumeSFX(SFXEmissive); len(got) != 0 {
		t.Errorf("second consume returned %d batches", len(got))
	}
	if got := f.consumeSFX(SFXDiffuse); len(got) != 1 {
		t.Errorf("diffuse batches = %d, want 1", len(got))
	}
}

func TestFrameBatchCopiesInput(t *testing.T) {
	f := newFrameBatch()
	tris := fxTriangles(1)
	f.addSFX(SFXEmissive, 1, 1, color.RGBA{}, tris)
	tris[0].Vert[1].X = 42

	if got := f.consumeSFX(SFXEmissive)[0].triangles[0].Vert[1].X; got != 1 {
		t.Errorf("stored triangle changed with caller slice: x = %v", got)
	}
}
