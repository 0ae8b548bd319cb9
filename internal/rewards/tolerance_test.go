package rewards

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestToleranceShapes(t *testing.T) {
	Convey("Given a tolerance window [1.0, 2.0] with margin 0.5", t, func() {
		lo, hi, margin, vAtMargin := 1.0, 2.0, 0.5, 0.1

		Convey("A value inside the window scores 1.0", func() {
			So(tolerance(1.5, lo, hi, margin, vAtMargin, "linear"), ShouldEqual, 1.0)
		})

		Convey("A value exactly at the margin distance scores value_at_margin", func() {
			v := tolerance(hi+margin, lo, hi, margin, vAtMargin, "linear")
			So(v, ShouldAlmostEqual, vAtMargin, 1e-9)
		})

		Convey("A value beyond the margin scores zero", func() {
			So(tolerance(hi+margin+0.01, lo, hi, margin, vAtMargin, "linear"), ShouldEqual, 0.0)
		})

		Convey("Linear and quadratic shapes agree at the bound and at the margin", func() {
			atBound := tolerance(hi, lo, hi, margin, vAtMargin, "linear")
			atBoundQuad := tolerance(hi, lo, hi, margin, vAtMargin, "quadratic")
			So(atBound, ShouldEqual, 1.0)
			So(atBoundQuad, ShouldEqual, 1.0)

			atMargin := tolerance(hi+margin, lo, hi, margin, vAtMargin, "linear")
			atMarginQuad := tolerance(hi+margin, lo, hi, margin, vAtMargin, "quadratic")
			So(atMargin, ShouldAlmostEqual, vAtMargin, 1e-9)
			So(atMarginQuad, ShouldAlmostEqual, vAtMargin, 1e-9)
		})
	})
}
