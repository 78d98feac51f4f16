package config

import (
	"flag"
	"os"
	"strings"
)

// filterArgs keeps only the listed flags (with their values) from args so
// that each parsing stage ignores flags owned by the others.
// Both "-f value" and "-f=value" forms are recognised.
func filterArgs(args []string, known []string) []string {
	allowed := make(map[string]bool, len(known))
	for _, f := range known {
		allowed[f] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if allowed[name] {
				out = append(out, arg)
			}
			continue
		}

		if !allowed[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// stringFlag extracts the value of a single string flag given under any of names.
func stringFlag(names ...string) string {
	var value string

	fs := flag.NewFlagSet("single", flag.ContinueOnError)
	for _, n := range names {
		fs.StringVar(&value, strings.TrimLeft(n, "-"), "", "")
	}
	_ = fs.Parse(filterArgs(os.Args[1:], names))

	return value
}
