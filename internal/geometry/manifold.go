package geometry

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/bizmatters/tour-orchestrator/internal/errs"
)

// Manifold names a parametric family of 3-D points
type Manifold string

const (
	MobiusBand  Manifold = "mobius-band"
	Sphere      Manifold = "sphere"
	Torus       Manifold = "torus"
	TrefoilKnot Manifold = "trefoil-knot"
	Helix       Manifold = "helix"
	Plane       Manifold = "plane"
)

const (
	mobiusRadius = 2.0
	sphereRadius = 1.0
	torusA       = 2.0
	torusC       = 1.0
	helixRadius  = 2.0
)

var manifoldNames = map[string]Manifold{
	"mobius-band":  MobiusBand,
	"möbius-band":  MobiusBand,
	"moebius-band": MobiusBand,
	"mobius":       MobiusBand,
	"moebius":      MobiusBand,
	"sphere":       Sphere,
	"torus":        Torus,
	"trefoil-knot": TrefoilKnot,
	"trefoil":      TrefoilKnot,
	"tree_foil":    TrefoilKnot,
	"helix":        Helix,
	"plane":        Plane,
}

// ParseManifold resolves a manifold name or alias, case-insensitively
func ParseManifold(name string) (Manifold, error) {
	m, ok := manifoldNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", errs.Validation("geometry.parse_manifold", "unknown manifold %q", name)
	}
	return m, nil
}

// Manifolds lists the canonical manifold names
func Manifolds() []Manifold {
	seen := make(map[Manifold]bool)
	var out []Manifold
	for _, m := range manifoldNames {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Generator samples points uniformly in parameter space. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator seeded from the runtime's random source
func NewGenerator() *Generator {
	return NewSeededGenerator(rand.Uint64(), rand.Uint64())
}

// NewSeededGenerator returns a deterministic generator
func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Generate samples n independent 3-D points on the manifold
func (g *Generator) Generate(kind Manifold, n int) (PointSet, error) {
	if n < 1 || n > MaxPoints {
		return PointSet{}, errs.Validation("geometry.generate", "count %d out of range [1, %d]", n, MaxPoints)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		p, err := g.sample(kind)
		if err != nil {
			return PointSet{}, err
		}
		points = append(points, p)
	}
	return PointSet{points: points, dim: 3}, nil
}

// uniform draws from [lo, hi)
func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) sample(kind Manifold) (Point, error) {
	switch kind {
	case MobiusBand:
		return mobiusPoint(mobiusRadius, g.uniform(-1, 1), g.uniform(0, 2*math.Pi)), nil
	case Sphere:
		return spherePoint(sphereRadius, g.uniform(0, 2*math.Pi), g.uniform(0, math.Pi)), nil
	case Torus:
		u := g.uniform(0, 2*math.Pi)
		v := g.uniform(0, 2*math.Pi)
		return torusPoint(torusA, torusC, u, v), nil
	case TrefoilKnot:
		return trefoilPoint(g.uniform(0, 2*math.Pi)), nil
	case Helix:
		return helixPoint(g.uniform(0, 2*math.Pi), helixRadius), nil
	case Plane:
		return point3(g.uniform(-1, 1), g.uniform(-1, 1), 0), nil
	default:
		return Point{}, errs.Validation("geometry.sample", "unknown manifold %q", kind)
	}
}

func mobiusPoint(radius, s, theta float64) Point {
	r := radius + s*math.Cos(theta/2)
	return point3(r*math.Cos(theta), r*math.Sin(theta), s*math.Sin(theta/2))
}

func spherePoint(rho, theta, phi float64) Point {
	return point3(
		rho*math.Cos(theta)*math.Sin(phi),
		rho*math.Sin(theta)*math.Sin(phi),
		rho*math.Cos(phi),
	)
}

// torusPoint keeps z tied to u rather than v. Existing clients render this
// surface, so it stays as is.
func torusPoint(a, c, u, v float64) Point {
	r := c * a * math.Cos(v)
	return point3(r*math.Cos(u), r*math.Sin(u), a*math.Sin(u))
}

func trefoilPoint(u float64) Point {
	return point3(
		math.Sin(u)+2*math.Sin(2*u),
		math.Cos(u)-2*math.Cos(2*u),
		-math.Sin(3*u),
	)
}

func helixPoint(u, radius float64) Point {
	return point3(radius*math.Cos(u), radius*math.Sin(u), u)
}
