package options

import (
	"testing"

	"github.com/merizodb/merizo-driver/common/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestToolOptionsParsing(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("With a full set of tool options", t, func() {

		opts := New("testtool", "<options>", EnabledOptions{
			Auth: true, Connection: true, Namespace: true,
		})

		Convey("connection and auth flags should parse into place", func() {
			extra, err := opts.ParseArgs([]string{
				"-h", "h1,h2", "--port", "27018",
				"-u", "ann", "-p", "secret", "-d", "files",
				"--poolSize", "3", "--timeout", "2.5", "-vv",
				"put", "report.pdf",
			})
			So(err, ShouldBeNil)
			So(extra, ShouldResemble, []string{"put", "report.pdf"})

			So(opts.Host, ShouldEqual, "h1,h2")
			So(opts.Port, ShouldEqual, "27018")
			So(opts.Username, ShouldEqual, "ann")
			So(opts.Password, ShouldEqual, "secret")
			So(opts.DB, ShouldEqual, "files")
			So(opts.PoolSize, ShouldEqual, 3)
			So(opts.Timeout, ShouldEqual, 2.5)
			So(opts.Level(), ShouldEqual, 2)
		})

		Convey("defaults should hold when flags are omitted", func() {
			_, err := opts.ParseArgs([]string{"list"})
			So(err, ShouldBeNil)
			So(opts.PoolSize, ShouldEqual, 1)
			So(opts.Timeout, ShouldEqual, 5.0)
			So(opts.SlaveOK, ShouldBeFalse)
			So(opts.IsQuiet(), ShouldBeFalse)
		})

		Convey("the authentication database should fall back to --db", func() {
			_, err := opts.ParseArgs([]string{"-d", "files"})
			So(err, ShouldBeNil)
			So(opts.GetAuthenticationDatabase(), ShouldEqual, "files")

			_, err = opts.ParseArgs([]string{"--authenticationDatabase", "admin"})
			So(err, ShouldBeNil)
			So(opts.GetAuthenticationDatabase(), ShouldEqual, "admin")
		})
	})
}
