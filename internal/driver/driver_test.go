package driver_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/remdrive/internal/config"
	"github.com/san-kum/remdrive/internal/driver"
	"github.com/san-kum/remdrive/internal/engine"
	"github.com/san-kum/remdrive/internal/metrics"
	"github.com/san-kum/remdrive/internal/permute"
	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/structure"
)

const fakeConfig = "<simulation>fake</simulation>"

func writeConfig(text string) string {
	path := filepath.Join(GinkgoT().TempDir(), config.DefaultInput)
	Expect(os.WriteFile(path, []byte(text), 0o644)).To(Succeed())
	return path
}

func potentialLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, "potential now ") {
			lines = append(lines, l)
		}
	}
	return lines
}

var _ = Describe("Driver", func() {
	var (
		out  *bytes.Buffer
		fake *fakeSession
		path string
		got  string
	)

	construct := func(text string) (session.Session, error) {
		got = text
		return fake, nil
	}

	BeforeEach(func() {
		out = &bytes.Buffer{}
		fake = newFakeSession("T020", "T027", "T036", "T048")
		path = writeConfig(fakeConfig)
		got = ""
	})

	Context("with a valid configuration", func() {
		It("prints the banner and two potential lines", func() {
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out, Shuffler: fixedPerm{3, 2, 1, 0}})
			_, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(out.String()).To(Equal(
				"Running with XML input:\n\n " + fakeConfig + "\n" +
					"potential now -1.25\n" +
					"potential now -1.0\n"))
		})

		It("hands the file text to the constructor unchanged", func() {
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out})
			_, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(fakeConfig))
		})

		It("advances ten steps per round and reorders between rounds", func() {
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out, Shuffler: fixedPerm{1, 0, 3, 2}})
			res, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(fake.advanced).To(Equal([]int{10, 10}))
			Expect(fake.calls[:6]).To(Equal([]string{"advance", "property", "structures", "set", "advance", "property"}))
			Expect(fake.labels()).To(Equal([]string{"T027", "T020", "T048", "T036"}))
			Expect(res.Permutations).To(Equal([][]int{{1, 0, 3, 2}}))
		})

		It("records checkpoints with cumulative steps", func() {
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out, Rounds: 3, Steps: 5})
			res, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Checkpoints).To(HaveLen(3))
			Expect(res.Checkpoints[2].Round).To(Equal(2))
			Expect(res.Checkpoints[2].Step).To(Equal(15))
			Expect(res.Permutations).To(HaveLen(2))
			for _, cp := range res.Checkpoints {
				Expect(cp.Finite()).To(BeTrue())
				Expect(cp.Property).To(Equal("potential"))
			}
		})

		It("keeps the run when the final snapshot fails", func() {
			fake.getErr = errors.New("boom")
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out, Rounds: 1})
			res, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(potentialLines(out.String())).To(HaveLen(1))
			Expect(res.Checkpoints).To(HaveLen(1))
			Expect(res.Structures).To(BeNil())
		})

		It("keeps quiet when asked", func() {
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out, Quiet: true})
			_, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).NotTo(ContainSubstring("Running with XML input"))
			Expect(potentialLines(out.String())).To(HaveLen(2))
		})

		It("notifies observers and metrics", func() {
			rec := metrics.NewRecorder()
			d := driver.New(construct, driver.Options{
				ConfigPath: path,
				Out:        out,
				Observer:   rec,
				Metrics:    metrics.DefaultMetrics(),
			})
			res, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Values()).To(Equal([]float64{-1.25, -1.0}))
			Expect(rec.Permutations).To(HaveLen(1))
			Expect(res.Metrics).To(HaveKeyWithValue("mean", -1.125))
			Expect(res.Structures).To(HaveLen(4))
		})
	})

	Context("when the configuration file is missing", func() {
		It("fails at load and prints nothing", func() {
			d := driver.New(construct, driver.Options{ConfigPath: filepath.Join(GinkgoT().TempDir(), "absent.xml"), Out: out})
			_, err := d.Run(context.Background())

			var se *driver.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(driver.StageLoad))
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
			Expect(out.Len()).To(BeZero())
			Expect(fake.calls).To(BeEmpty())
		})
	})

	Context("when the file is not UTF-8", func() {
		It("fails at load", func() {
			bad := writeConfig("<simulation>\xff\xfe</simulation>")
			d := driver.New(construct, driver.Options{ConfigPath: bad, Out: out})
			_, err := d.Run(context.Background())
			Expect(err).To(MatchError(ContainSubstring("not valid UTF-8")))
			Expect(out.Len()).To(BeZero())
		})
	})

	Context("when construction fails", func() {
		It("reports the construct stage after the banner", func() {
			failing := func(string) (session.Session, error) { return nil, session.ErrInvalidConfig }
			d := driver.New(failing, driver.Options{ConfigPath: path, Out: out})
			_, err := d.Run(context.Background())

			Expect(err).To(MatchError(session.ErrInvalidConfig))
			var se *driver.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(driver.StageConstruct))
			Expect(out.String()).To(HavePrefix("Running with XML input:"))
			Expect(potentialLines(out.String())).To(BeEmpty())
		})
	})

	Context("when the property is unknown", func() {
		It("stops before printing any potential line", func() {
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out, Property: "entropy"})
			_, err := d.Run(context.Background())

			Expect(err).To(MatchError(session.ErrUnknownProperty))
			Expect(err.Error()).To(HavePrefix("query (round 0)"))
			Expect(out.String()).NotTo(ContainSubstring(" now "))
		})
	})

	Context("when the second advance fails", func() {
		It("keeps the first line only", func() {
			calls := 0
			wrapped := func(string) (session.Session, error) {
				return &failAfter{fakeSession: fake, n: 1, calls: &calls}, nil
			}
			d := driver.New(wrapped, driver.Options{ConfigPath: path, Out: out})
			_, err := d.Run(context.Background())

			Expect(err).To(MatchError(session.ErrIntegration))
			Expect(potentialLines(out.String())).To(Equal([]string{"potential now -1.25"}))
		})
	})

	Context("when the structures cannot be written back", func() {
		It("reports the set stage", func() {
			fake.setErr = session.ErrShapeMismatch
			d := driver.New(construct, driver.Options{ConfigPath: path, Out: out})
			_, err := d.Run(context.Background())

			var se *driver.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(driver.StageSet))
			Expect(errors.Is(err, session.ErrShapeMismatch)).To(BeTrue())
			Expect(potentialLines(out.String())).To(HaveLen(1))
		})
	})

	Describe("Reorder", func() {
		It("preserves the multiset of structures", func() {
			before, _ := fake.Structures()
			perm, err := driver.Reorder(fake, permute.New(42))
			Expect(err).NotTo(HaveOccurred())
			Expect(permute.IsPermutation(perm)).To(BeTrue())

			after, _ := fake.Structures()
			Expect(after).To(HaveLen(len(before)))
			for i, p := range perm {
				Expect(structure.Equal(after[i], before[p])).To(BeTrue())
			}
		})

		It("reports read failures", func() {
			fake.getErr = errors.New("boom")
			_, err := driver.Reorder(fake, permute.New(1))
			var se *driver.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(driver.StageGet))
		})
	})

	Describe("with the reference engine", func() {
		var text string

		BeforeEach(func() {
			var ok bool
			text, ok = config.GetPreset("remd_direct")
			Expect(ok).To(BeTrue())
			path = writeConfig(text)
		})

		It("runs the default sequence end to end", func() {
			d := driver.New(engine.Constructor(engine.WithSeed(7)), driver.Options{ConfigPath: path, Out: out, Shuffler: permute.New(3)})
			res, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(out.String()).To(HavePrefix("Running with XML input:\n\n " + text))
			Expect(potentialLines(out.String())).To(HaveLen(2))
			Expect(res.Checkpoints).To(HaveLen(2))
			for _, cp := range res.Checkpoints {
				Expect(cp.Finite()).To(BeTrue())
			}
			Expect(res.Structures).To(HaveLen(4))
		})

		It("is reproducible with fixed seeds", func() {
			run := func() []metrics.Checkpoint {
				d := driver.New(engine.Constructor(engine.WithSeed(11)), driver.Options{
					ConfigPath: path,
					Out:        &bytes.Buffer{},
					Shuffler:   permute.New(5),
				})
				res, err := d.Run(context.Background())
				Expect(err).NotTo(HaveOccurred())
				return res.Checkpoints
			}
			Expect(run()).To(Equal(run()))
		})
	})
})

// failAfter fails every Advance after the first n.
type failAfter struct {
	*fakeSession
	n     int
	calls *int
}

func (f *failAfter) Advance(ctx context.Context, steps int) error {
	*f.calls++
	if *f.calls > f.n {
		return session.ErrIntegration
	}
	return f.fakeSession.Advance(ctx, steps)
}
