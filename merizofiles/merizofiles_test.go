package merizofiles

import (
	"testing"

	commonOpts "github.com/merizodb/merizo-driver/common/options"
	"github.com/merizodb/merizo-driver/common/testutil"
	"github.com/merizodb/merizo-driver/merizofiles/options"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/mgo.v2/bson"
)

func TestValidateCommand(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("When validating a merizofiles command line", t, func() {

		Convey("no command at all should fail", func() {
			_, err := ValidateCommand([]string{})
			So(err, ShouldNotBeNil)
		})

		Convey("an unknown command should fail", func() {
			_, err := ValidateCommand([]string{"dump"})
			So(err, ShouldNotBeNil)
		})

		Convey("too many arguments should fail", func() {
			_, err := ValidateCommand([]string{"list", "a", "b"})
			So(err, ShouldNotBeNil)
		})

		Convey("list should take an optional prefix", func() {
			name, err := ValidateCommand([]string{"list"})
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "")

			name, err = ValidateCommand([]string{"list", "report"})
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "report")
		})

		Convey("the other commands should require a non-empty filename", func() {
			for _, cmd := range []string{Search, Put, Get, Delete} {
				_, err := ValidateCommand([]string{cmd})
				So(err, ShouldNotBeNil)
				_, err = ValidateCommand([]string{cmd, ""})
				So(err, ShouldNotBeNil)

				name, err := ValidateCommand([]string{cmd, "report.pdf"})
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "report.pdf")
			}
		})
	})
}

func TestQueries(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("When building filename selectors", t, func() {

		Convey("an empty list prefix should match everything", func() {
			So(listQuery(""), ShouldResemble, bson.M{})
		})

		Convey("a list prefix should anchor and escape the regex", func() {
			So(listQuery("a.b"), ShouldResemble,
				bson.M{"filename": bson.M{"$regex": `^a\.b`}})
		})

		Convey("search should match anywhere, escaped", func() {
			So(searchQuery("a+b"), ShouldResemble,
				bson.M{"filename": bson.M{"$regex": `a\+b`}})
		})
	})
}

func TestGetLocalFileName(t *testing.T) {

	testutil.VerifyTestType(t, "unit")

	Convey("The local filename should default to the grid filename", t, func() {

		mf := &MerizoFiles{
			ToolOptions:    &commonOpts.ToolOptions{},
			StorageOptions: &options.StorageOptions{},
			FileName:       "report.pdf",
		}
		So(mf.getLocalFileName(), ShouldEqual, "report.pdf")

		mf.StorageOptions.LocalFileName = "local.pdf"
		So(mf.getLocalFileName(), ShouldEqual, "local.pdf")
	})
}
