package data

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Vertex is a 2d point in pixel coordinates, x growing right and y
// growing down.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring is a closed sequence of vertices. The edge from the last vertex
// back to the first is implicit.
type Ring []Vertex

// Polygon is an outer ring plus optional holes. Holes must wind opposite
// to the outer ring so they cut coverage under the non-zero fill rule.
type Polygon struct {
	Outer Ring   `json:"outer"`
	Holes []Ring `json:"holes,omitempty"`
}

// Annotation couples a raster with the polygons drawn over it, in pixel
// coordinates of that raster.
type Annotation struct {
	Image    string    `json:"image"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Polygons []Polygon `json:"polygons"`
}

// LoadAnnotation reads an annotation sidecar file.
func LoadAnnotation(path string) (*Annotation, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a Annotation
	if err := json.Unmarshal(buf, &a); err != nil {
		return nil, fmt.Errorf("parsing %v: %w", path, err)
	}

	return &a, nil
}

// Save writes the annotation as an indented sidecar file.
func (a *Annotation) Save(path string) error {
	buf, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0644)
}

// Bounds returns the axis-aligned bounding box over the outer ring.
func (p Polygon) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, v := range p.Outer {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}

	return minX, minY, maxX, maxY
}

// Translate returns the polygon shifted by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	return p.mapVertices(func(v Vertex) Vertex {
		return Vertex{X: v.X + dx, Y: v.Y + dy}
	})
}

// Scale returns the polygon scaled by f around the origin.
func (p Polygon) Scale(f float64) Polygon {
	return p.mapVertices(func(v Vertex) Vertex {
		return Vertex{X: v.X * f, Y: v.Y * f}
	})
}

// FlipH returns the polygon mirrored across the vertical center line of a
// w pixel wide raster.
func (p Polygon) FlipH(w float64) Polygon {
	return p.mapVertices(func(v Vertex) Vertex {
		return Vertex{X: w - v.X, Y: v.Y}
	})
}

// FlipV returns the polygon mirrored across the horizontal center line of
// an h pixel tall raster.
func (p Polygon) FlipV(h float64) Polygon {
	return p.mapVertices(func(v Vertex) Vertex {
		return Vertex{X: v.X, Y: h - v.Y}
	})
}

func (p Polygon) mapVertices(f func(Vertex) Vertex) Polygon {
	out := Polygon{Outer: mapRing(p.Outer, f)}
	for _, h := range p.Holes {
		out.Holes = append(out.Holes, mapRing(h, f))
	}

	return out
}

func mapRing(r Ring, f func(Vertex) Vertex) Ring {
	out := make(Ring, len(r))
	for i, v := range r {
		out[i] = f(v)
	}

	return out
}

// ClipRect clips the polygon to the rectangle spanning (x0, y0) to
// (x1, y1) with Sutherland-Hodgman clipping, ring by ring. Holes clipped
// away entirely are dropped; ok is false when the outer ring vanishes.
func (p Polygon) ClipRect(x0, y0, x1, y1 float64) (clipped Polygon, ok bool) {
	outer := clipRing(p.Outer, x0, y0, x1, y1)
	if len(outer) < 3 {
		return Polygon{}, false
	}

	clipped = Polygon{Outer: outer}
	for _, h := range p.Holes {
		if ch := clipRing(h, x0, y0, x1, y1); len(ch) >= 3 {
			clipped.Holes = append(clipped.Holes, ch)
		}
	}

	return clipped, true
}

func clipRing(r Ring, x0, y0, x1, y1 float64) Ring {
	r = clipEdge(r, func(v Vertex) bool { return v.X >= x0 }, func(a, b Vertex) Vertex { return intersectX(a, b, x0) })
	r = clipEdge(r, func(v Vertex) bool { return v.X <= x1 }, func(a, b Vertex) Vertex { return intersectX(a, b, x1) })
	r = clipEdge(r, func(v Vertex) bool { return v.Y >= y0 }, func(a, b Vertex) Vertex { return intersectY(a, b, y0) })
	r = clipEdge(r, func(v Vertex) bool { return v.Y <= y1 }, func(a, b Vertex) Vertex { return intersectY(a, b, y1) })

	return r
}

// clipEdge clips a ring against one half plane. intersect is only called
// on edges that straddle the boundary, so its denominator never vanishes.
func clipEdge(r Ring, inside func(Vertex) bool, intersect func(a, b Vertex) Vertex) Ring {
	if len(r) == 0 {
		return nil
	}

	var out Ring
	prev := r[len(r)-1]
	prevIn := inside(prev)
	for _, cur := range r {
		curIn := inside(cur)
		switch {
		case curIn && prevIn:
			out = append(out, cur)
		case curIn && !prevIn:
			out = append(out, intersect(prev, cur), cur)
		case !curIn && prevIn:
			out = append(out, intersect(prev, cur))
		}
		prev, prevIn = cur, curIn
	}

	return out
}

func intersectX(a, b Vertex, x float64) Vertex {
	t := (x - a.X) / (b.X - a.X)

	return Vertex{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

func intersectY(a, b Vertex, y float64) Vertex {
	t := (y - a.Y) / (b.Y - a.Y)

	return Vertex{X: a.X + t*(b.X-a.X), Y: y}
}
