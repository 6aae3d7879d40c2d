package cmd

import (
	"bytes"
	"flag"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/urfave/cli/v2"

	"github.com/edgeforge/nodeforge/pkg/provision"
)

var _ = Describe("runGraph", func() {
	var app *cli.App
	var out *bytes.Buffer
	var in *strings.Reader

	newContext := func() *cli.Context {
		set := flag.NewFlagSet("test", 0)
		set.Bool("dry-run", true, "")
		set.Bool("yes", false, "")
		return cli.NewContext(app, set, nil)
	}

	BeforeEach(func() {
		out = &bytes.Buffer{}
		in = strings.NewReader("")
		app = cli.NewApp()
		app.Reader = in
		app.Writer = out
	})

	It("hands the app streams to the workflow state", func() {
		c := newContext()
		s := provision.NewState()
		Expect(runGraph(c, s, s.RegisterNodeReset)).To(Succeed())
		Expect(s.In).To(BeIdenticalTo(in))
		Expect(s.Out).To(BeIdenticalTo(out))
	})

	It("keeps the state defaults when the app has no streams", func() {
		app.Reader = nil
		app.Writer = nil
		c := newContext()
		s := provision.NewState()
		defIn, defOut := s.In, s.Out
		Expect(runGraph(c, s, s.RegisterNodeReset)).To(Succeed())
		Expect(s.In).To(BeIdenticalTo(defIn))
		Expect(s.Out).To(BeIdenticalTo(defOut))
	})
})
