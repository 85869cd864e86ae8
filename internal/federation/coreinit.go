package federation

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// CoreInit is the parsed core init string, e.g. "--federates=2 --broker=127.0.0.1:23500".
type CoreInit struct {
	Federates int
	Broker    string
	Name      string
	LogLevel  string
}

func ParseCoreInit(s string) (CoreInit, error) {
	var ci CoreInit
	fs := pflag.NewFlagSet("coreinit", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&ci.Federates, "federates", 1, "number of federates the core waits for")
	fs.StringVar(&ci.Broker, "broker", "", "broker address")
	fs.StringVar(&ci.Name, "name", "", "core name")
	fs.StringVar(&ci.LogLevel, "loglevel", "", "core log level")
	if err := fs.Parse(strings.Fields(s)); err != nil {
		return CoreInit{}, fmt.Errorf("parse core init %q: %w", s, err)
	}
	if fs.NArg() > 0 {
		return CoreInit{}, fmt.Errorf("parse core init %q: unexpected arguments %v", s, fs.Args())
	}
	if ci.Federates < 1 {
		return CoreInit{}, fmt.Errorf("parse core init %q: federates must be at least 1", s)
	}
	return ci, nil
}

func (ci CoreInit) String() string {
	parts := []string{fmt.Sprintf("--federates=%d", ci.Federates)}
	if ci.Broker != "" {
		parts = append(parts, "--broker="+ci.Broker)
	}
	if ci.Name != "" {
		parts = append(parts, "--name="+ci.Name)
	}
	if ci.LogLevel != "" {
		parts = append(parts, "--loglevel="+ci.LogLevel)
	}
	return strings.Join(parts, " ")
}
