package crml_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/crmlgpu/internal/crml"
	"github.com/san-kum/crmlgpu/internal/device"
	"github.com/san-kum/crmlgpu/internal/forcefield"
)

var _ = Describe("Memory", func() {
	var (
		dev    *device.Device
		coeffs *forcefield.Coefficients
		sys    *system
		m      *crml.Memory[float32, float64]
	)

	BeforeEach(func() {
		dev = newDevice(0, 0)
		coeffs = mustDerive(testTypes(), testSettings())
		sys = lattice(3, 3.4, 3, 7)
		m = crml.New[float32, float64](nil)
	})

	AfterEach(func() {
		m.Clear()
		Expect(dev.Used()).To(BeZero())
		Expect(dev.Close()).To(Succeed())
	})

	Context("Init", func() {
		It("selects the shared-types kernel for few arithmetic types and a wide block", func() {
			Expect(coeffs.MixArithmetic).To(BeTrue())
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			Expect(m.Allocated()).To(BeTrue())
			Expect(m.SharedTypes()).To(BeTrue())
			Expect(m.Path()).To(Equal(crml.PathFast))
			Expect(m.BlockSize()).To(Equal(device.DefaultBlockSize))
		})

		It("falls back to the full table below the block threshold", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 32)))).To(Succeed())
			Expect(m.SharedTypes()).To(BeFalse())
			Expect(m.Path()).To(Equal(crml.PathGeneric))
		})

		It("falls back to the full table for geometric mixing", func() {
			s := testSettings()
			s.Mixing = forcefield.MixGeometric
			geo := mustDerive(testTypes(), s)
			Expect(geo.MixArithmetic).To(BeFalse())

			Expect(m.Init(dev, geo.Params(sizes(sys, 0)))).To(Succeed())
			Expect(m.Path()).To(Equal(crml.PathGeneric))
		})

		It("writes the device banner to the screen", func() {
			var screen bytes.Buffer
			sz := sizes(sys, 0)
			sz.Screen = &screen
			Expect(m.Init(dev, coeffs.Params(sz))).To(Succeed())
			Expect(screen.String()).To(ContainSubstring(crml.PairName))
		})

		It("rejects a second Init and keeps the first", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			used := dev.Used()

			err := m.Init(dev, coeffs.Params(sizes(sys, 32)))
			Expect(err).To(MatchError(crml.ErrAlreadyInitialized))
			Expect(dev.Used()).To(Equal(used))
			Expect(m.Path()).To(Equal(crml.PathFast))
		})

		It("rejects malformed coefficient tables without allocating", func() {
			p := coeffs.Params(sizes(sys, 0))
			p.LJ3 = p.LJ3[:1]
			Expect(m.Init(dev, p)).To(MatchError(crml.ErrBadParams))
			Expect(m.Allocated()).To(BeFalse())
			Expect(dev.Used()).To(BeZero())
		})

		It("refuses more types than the shared table holds", func() {
			many := make([]forcefield.Type, crml.MaxBioSharedTypes+1)
			for i := range many {
				many[i] = forcefield.Type{Epsilon: 0.1, Sigma: 3}
			}
			big := mustDerive(many, testSettings())

			err := m.Init(dev, big.Params(sizes(sys, 0)))
			Expect(err).To(MatchError(crml.ErrSharedTypesCapacity))
			Expect(m.Allocated()).To(BeFalse())
			Expect(dev.Used()).To(BeZero())

			Expect(m.Init(dev, big.Params(sizes(sys, 32)))).To(Succeed())
			Expect(m.Types()).To(Equal(crml.MaxBioSharedTypes + 1))
		})

		It("leaves nothing allocated when a table does not fit", func() {
			small := newDevice(256<<10, 0)
			defer small.Close()

			many := make([]forcefield.Type, 300)
			for i := range many {
				many[i] = forcefield.Type{Epsilon: 0.1, Sigma: 3}
			}
			big := mustDerive(many, testSettings())

			err := m.Init(small, big.Params(sizes(sys, 32)))
			Expect(err).To(MatchError(device.ErrOutOfMemory))
			Expect(m.Allocated()).To(BeFalse())
			Expect(small.Used()).To(BeZero())
		})
	})

	Context("MaxBytes", func() {
		It("is the size of the three coefficient tables", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			n := int64(coeffs.Types)
			want := n*n*16 + crml.MaxBioSharedTypes*8 + 8*4
			Expect(m.MaxBytes()).To(Equal(want))
		})

		It("reports per-atom and host usage of the base layer", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			Expect(m.BytesPerAtom(64)).To(Equal(m.BytesPerAtomAtomic(64)))
			Expect(m.HostMemoryUsage()).To(BeNumerically(">", m.HostMemoryUsageAtomic()))
		})
	})

	Context("Clear", func() {
		It("releases all device memory", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			Expect(dev.Used()).To(BeNumerically(">", m.MaxBytes()))
			m.Clear()
			Expect(m.Allocated()).To(BeFalse())
			Expect(m.MaxBytes()).To(BeZero())
			Expect(dev.Used()).To(BeZero())
		})

		It("is a no-op when repeated or never initialized", func() {
			m.Clear()
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			m.Clear()
			m.Clear()
			Expect(dev.Used()).To(BeZero())
		})

		It("allows a fresh Init with a different path", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			m.Clear()
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 32)))).To(Succeed())
			Expect(m.Path()).To(Equal(crml.PathGeneric))
		})

		It("waits for a queued launch", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			_, err := compute(dev, m, coeffs, sys, false, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Loop(true, true)).To(Succeed())
			m.Clear()
			Expect(dev.Synchronize()).To(Succeed())
		})
	})

	Context("Loop", func() {
		It("fails before Init", func() {
			Expect(m.Loop(true, true)).To(MatchError(crml.ErrNotInitialized))
		})

		It("launches nothing without local atoms", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			Expect(m.Atom.SetInum(0)).To(Succeed())
			Expect(m.Loop(true, true)).To(Succeed())
			Expect(dev.Synchronize()).To(Succeed())

			n, err := testutil.GatherAndCount(dev.Registry(), "crml_kernel_launches_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			Expect(m.TimePair.Count()).To(BeZero())
		})

		It("launches exactly the cached kernel once per step", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 32)))).To(Succeed())
			for step := 0; step < 3; step++ {
				_, err := compute(dev, m, coeffs, sys, true, false)
				Expect(err).NotTo(HaveOccurred())
			}

			mfs, err := dev.Registry().Gather()
			Expect(err).NotTo(HaveOccurred())
			launches := map[string]float64{}
			for _, mf := range mfs {
				if mf.GetName() != "crml_kernel_launches_total" {
					continue
				}
				for _, metric := range mf.GetMetric() {
					for _, l := range metric.GetLabel() {
						if l.GetName() == "kernel" {
							launches[l.GetValue()] = metric.GetCounter().GetValue()
						}
					}
				}
			}
			Expect(launches).To(Equal(map[string]float64{"kernel_pair": 3}))
			Expect(m.TimePair.Count()).To(Equal(3))
		})

		It("rejects a neighbor table older than the atoms", func() {
			Expect(m.Init(dev, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			Expect(m.Atom.SetInum(sys.nlocal)).To(Succeed())
			Expect(m.Loop(false, false)).To(MatchError(crml.ErrStaleNeighbors))
		})

		It("surfaces an oversized grid as a launch error", func() {
			tiny := device.DefaultProperties()
			tiny.MaxGridSize = 1
			tiny.BlockSize = 16
			small, err := device.New(tiny)
			Expect(err).NotTo(HaveOccurred())
			defer small.Close()

			Expect(m.Init(small, coeffs.Params(sizes(sys, 0)))).To(Succeed())
			_, err = compute(small, m, coeffs, sys, false, false)
			var launchErr *device.LaunchError
			Expect(err).To(BeAssignableToTypeOf(launchErr))
			Expect(err).To(MatchError(device.ErrInvalidLaunch))
			Expect(small.Synchronize()).To(Succeed())
			Expect(m.TimePair.Count()).To(BeZero())
			m.Clear()
			Expect(small.Used()).To(BeZero())
		})
	})
})
