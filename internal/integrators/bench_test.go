package integrators

import (
	"testing"

	"github.com/golang/geo/r3"

	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
)

func benchArm(b *testing.B) (*rbd.MultiBody, *rbd.Config, []float64) {
	mb, err := rbd.SerialArm(rbd.ArmSpec{
		Name:       "bench",
		Axes:       []r3.Vector{{Z: 1}, {Y: 1}, {Y: 1}, {X: 1}, {Y: 1}, {X: 1}},
		LinkLength: 0.3,
		LinkMass:   1,
		FreeBase:   true,
	})
	if err != nil {
		b.Fatal(err)
	}
	alphaD := make([]float64, mb.NrDof())
	for i := range alphaD {
		alphaD[i] = 0.1 * float64(i)
	}
	return mb, rbd.NewConfig(mb), alphaD
}

func benchmarkStep(b *testing.B, integ sim.Integrator) {
	mb, cfg, alphaD := benchArm(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := integ.Step(mb, cfg, alphaD, 1e-4); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEuler(b *testing.B)        { benchmarkStep(b, NewEuler()) }
func BenchmarkSemiImplicit(b *testing.B) { benchmarkStep(b, NewSemiImplicit()) }
func BenchmarkTaylor(b *testing.B)       { benchmarkStep(b, NewTaylor()) }
