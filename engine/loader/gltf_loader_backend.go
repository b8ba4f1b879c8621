package loader

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct {
	log     *slog.Logger
	options *importOptions
}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// Every triangle primitive of every mesh in the document is merged into one indexed triangle list;
// the first primitive with a material supplies the textures.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Parameters:
//   - log: destination for skipped-primitive warnings
//   - options: the loader's vertex conventions, read at import time
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend(log *slog.Logger, options *importOptions) gltfLoaderBackend {
	return &gltfLoaderBackendImpl{log: log, options: options}
}

func (b *gltfLoaderBackendImpl) Load(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return b.importDocument(doc, filepath.Base(path), filepath.Dir(path))
}

func (b *gltfLoaderBackendImpl) LoadReader(name string, r io.Reader) (*Mesh, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	return b.importDocument(doc, name, "")
}

// importDocument merges the document's triangle primitives into one mesh.
func (b *gltfLoaderBackendImpl) importDocument(doc *gltf.Document, name, dir string) (*Mesh, error) {
	geometry := &renderer.MeshGeometry{Topology: renderer.TopologyTriangleList}
	var material *gltf.Material
	hasNormals, hasTangents := true, true

	for mi, m := range doc.Meshes {
		for pi, prim := range m.Primitives {
			res, err := b.appendPrimitive(doc, prim, geometry)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			if !res.used {
				continue
			}
			hasNormals = hasNormals && res.normals
			hasTangents = hasTangents && res.tangents
			if material == nil && prim.Material != nil && *prim.Material < len(doc.Materials) {
				material = doc.Materials[*prim.Material]
			}
		}
	}

	if len(geometry.Indices) < 3 {
		return nil, fmt.Errorf("%w: %s has no triangles", renderer.ErrInvalidSource, name)
	}
	if b.options.flipWinding {
		flipWinding(geometry.Indices)
	}
	if !hasNormals {
		computeNormals(geometry.Vertices, geometry.Indices)
	}
	if !hasTangents {
		computeTangents(geometry.Vertices, geometry.Indices)
	}

	images := &gltfImages{doc: doc, dir: dir}
	return NewMesh(name, geometry, images.diffuseSpecular(material), images.normalsEmissive(material)), nil
}

// primitiveResult reports which attributes an appended primitive carried.
type primitiveResult struct {
	used     bool
	normals  bool
	tangents bool
}

// appendPrimitive reads one primitive's vertex attributes and indices and appends them to geometry.
// Non-triangle primitives and primitives without positions are skipped.
func (b *gltfLoaderBackendImpl) appendPrimitive(doc *gltf.Document, prim *gltf.Primitive, geometry *renderer.MeshGeometry) (primitiveResult, error) {
	switch prim.Mode {
	case gltf.PrimitiveTriangles, gltf.PrimitiveTriangleStrip, gltf.PrimitiveTriangleFan:
	default:
		b.log.Warn("loader: skipping non-triangle primitive", "mode", prim.Mode)
		return primitiveResult{}, nil
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return primitiveResult{}, nil
	}
	positions, err := modeler.ReadPosition(doc, accessor(doc, posIdx), nil)
	if err != nil {
		return primitiveResult{}, fmt.Errorf("read positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if normals, err = modeler.ReadNormal(doc, accessor(doc, idx), nil); err != nil {
			return primitiveResult{}, fmt.Errorf("read normals: %w", err)
		}
	}
	var tangents [][4]float32
	if idx, ok := prim.Attributes[gltf.TANGENT]; ok {
		if tangents, err = modeler.ReadTangent(doc, accessor(doc, idx), nil); err != nil {
			return primitiveResult{}, fmt.Errorf("read tangents: %w", err)
		}
	}
	var uvs [][2]float32
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, accessor(doc, idx), nil); err != nil {
			return primitiveResult{}, fmt.Errorf("read uvs: %w", err)
		}
	}

	base := uint32(len(geometry.Vertices))
	for i, p := range positions {
		v := renderer.MeshVertex{Position: p}
		if i < len(normals) {
			v.Normal = normals[i]
		}
		if i < len(tangents) {
			v.Tangent = [3]float32{tangents[i][0], tangents[i][1], tangents[i][2]}
		}
		if i < len(uvs) {
			v.UV = uvs[i]
			if b.options.flipV {
				v.UV[1] = 1 - v.UV[1]
			}
		}
		geometry.Vertices = append(geometry.Vertices, v)
	}

	var local []uint32
	if prim.Indices != nil {
		if local, err = modeler.ReadIndices(doc, accessor(doc, *prim.Indices), nil); err != nil {
			return primitiveResult{}, fmt.Errorf("read indices: %w", err)
		}
	} else {
		local = make([]uint32, len(positions))
		for i := range local {
			local[i] = uint32(i)
		}
	}
	for _, idx := range local {
		if int(idx) >= len(positions) {
			return primitiveResult{}, fmt.Errorf("%w: index %d out of range for %d vertices", renderer.ErrInvalidSource, idx, len(positions))
		}
	}

	switch prim.Mode {
	case gltf.PrimitiveTriangleStrip:
		local = stripToList(local)
	case gltf.PrimitiveTriangleFan:
		local = fanToList(local)
	default:
		local = local[:len(local)/3*3]
	}
	for _, idx := range local {
		geometry.Indices = append(geometry.Indices, base+idx)
	}

	return primitiveResult{
		used:     true,
		normals:  len(normals) == len(positions),
		tangents: len(tangents) == len(positions),
	}, nil
}

// accessor returns the accessor at idx. Out-of-range indices yield an empty accessor that reads no data.
func accessor(doc *gltf.Document, idx int) *gltf.Accessor {
	if idx < 0 || idx >= len(doc.Accessors) {
		return &gltf.Accessor{}
	}
	return doc.Accessors[idx]
}

// gltfImages resolves and decodes the images a material references.
type gltfImages struct {
	doc *gltf.Document
	dir string
}

// textureImage decodes the image behind texture index idx.
func (g *gltfImages) textureImage(idx int) (*image.RGBA, error) {
	if idx < 0 || idx >= len(g.doc.Textures) {
		return nil, fmt.Errorf("texture index %d out of range", idx)
	}
	tex := g.doc.Textures[idx]
	if tex.Source == nil || *tex.Source < 0 || *tex.Source >= len(g.doc.Images) {
		return nil, fmt.Errorf("texture %d has no image", idx)
	}
	data, err := g.imageData(g.doc.Images[*tex.Source])
	if err != nil {
		return nil, err
	}
	t, err := DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &image.RGBA{Pix: t.Data, Stride: int(t.Width) * 4, Rect: image.Rect(0, 0, int(t.Width), int(t.Height))}, nil
}

// imageData returns the encoded bytes of img from a buffer view, a data URI or a sibling file.
func (g *gltfImages) imageData(img *gltf.Image) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		if *img.BufferView < 0 || *img.BufferView >= len(g.doc.BufferViews) {
			return nil, fmt.Errorf("bufferView index %d out of range", *img.BufferView)
		}
		bv := g.doc.BufferViews[*img.BufferView]
		if bv.Buffer < 0 || bv.Buffer >= len(g.doc.Buffers) {
			return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
		}
		buf := g.doc.Buffers[bv.Buffer].Data
		end := bv.ByteOffset + bv.ByteLength
		if end > len(buf) {
			return nil, fmt.Errorf("bufferView exceeds buffer bounds: offset=%d length=%d bufSize=%d", bv.ByteOffset, bv.ByteLength, len(buf))
		}
		return buf[bv.ByteOffset:end], nil
	case img.IsEmbeddedResource():
		return img.MarshalData()
	case img.URI != "" && g.dir != "":
		return os.ReadFile(filepath.Join(g.dir, img.URI))
	default:
		return nil, fmt.Errorf("image %q cannot be resolved", img.Name)
	}
}

// diffuseSpecular builds the diffuse texture with specular intensity in alpha.
// Specular is derived from roughness: the inverted green channel of the metallic-roughness
// texture, or the roughness factor when there is none.
func (g *gltfImages) diffuseSpecular(mat *gltf.Material) renderer.PixelSource {
	if mat == nil {
		return nil
	}
	return renderer.PixelSourceFunc(func() (*common.TextureStagingData, error) {
		pbr := mat.PBRMetallicRoughness
		if pbr == nil {
			pbr = &gltf.PBRMetallicRoughness{}
		}

		var base *image.RGBA
		if pbr.BaseColorTexture != nil {
			img, err := g.textureImage(pbr.BaseColorTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("base colour: %w", err)
			}
			base = img
		} else {
			f := pbr.BaseColorFactorOrDefault()
			base = solidImage(1, 1, color.RGBA{R: unorm8(float32(f[0])), G: unorm8(float32(f[1])), B: unorm8(float32(f[2])), A: 0xFF})
		}

		out := image.NewRGBA(base.Rect)
		copy(out.Pix, base.Pix)
		spec := unorm8(1 - float32(pbr.RoughnessFactorOrDefault()))
		if pbr.MetallicRoughnessTexture != nil {
			mr, err := g.textureImage(pbr.MetallicRoughnessTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("metallic roughness: %w", err)
			}
			mr = resizeRGBA(mr, base.Rect.Dx(), base.Rect.Dy())
			for i := 3; i < len(out.Pix); i += 4 {
				out.Pix[i] = 0xFF - mr.Pix[i-2]
			}
		} else {
			for i := 3; i < len(out.Pix); i += 4 {
				out.Pix[i] = spec
			}
		}
		return stagingFromRGBA(out), nil
	})
}

// normalsEmissive builds the normal texture with the emissive mask in blue. Returns nil when the
// material has neither a normal nor an emissive texture.
func (g *gltfImages) normalsEmissive(mat *gltf.Material) renderer.PixelSource {
	if mat == nil || (mat.NormalTexture == nil || mat.NormalTexture.Index == nil) && mat.EmissiveTexture == nil {
		return nil
	}
	return renderer.PixelSourceFunc(func() (*common.TextureStagingData, error) {
		var normal, emissive *image.RGBA
		if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
			img, err := g.textureImage(*mat.NormalTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("normal map: %w", err)
			}
			normal = img
		}
		if mat.EmissiveTexture != nil {
			img, err := g.textureImage(mat.EmissiveTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("emissive map: %w", err)
			}
			emissive = img
		}
		return composeNormalsEmissive(normal, emissive), nil
	})
}

// composeNormalsEmissive keeps the normal's red and green channels and stores the brightest emissive
// channel in blue. Alpha, the second emissive mask, is cleared. Either input may be nil.
func composeNormalsEmissive(normal, emissive *image.RGBA) *common.TextureStagingData {
	switch {
	case normal == nil:
		normal = solidImage(emissive.Rect.Dx(), emissive.Rect.Dy(), color.RGBA{R: 0x80, G: 0x80})
	case emissive != nil:
		emissive = resizeRGBA(emissive, normal.Rect.Dx(), normal.Rect.Dy())
	}

	out := image.NewRGBA(normal.Rect)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i+0] = normal.Pix[i+0]
		out.Pix[i+1] = normal.Pix[i+1]
		if emissive != nil {
			out.Pix[i+2] = max(emissive.Pix[i+0], emissive.Pix[i+1], emissive.Pix[i+2])
		}
	}
	return stagingFromRGBA(out)
}

// unorm8 maps [0, 1] to a byte.
func unorm8(v float32) uint8 {
	return uint8(common.Clamp(v, 0, 1)*255 + 0.5)
}
