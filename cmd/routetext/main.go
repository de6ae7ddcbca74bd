// Command routetext routes one piece of text and prints the decision as JSON.
//
//	routetext -config configs "Explain the trade-offs between microservices and monoliths"
//	echo "hello" | routetext -max-cost 0.001
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/routing"
	"github.com/af-corp/costrouter/internal/types"
)

const (
	exitOK = iota
	exitError
	exitNoModel
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("routetext", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config", "configs", "path to configuration directory")
	maxCost := fs.Float64("max-cost", -1, "cost ceiling in USD (negative = none)")
	quality := fs.String("quality", "", "required quality tier: economy, standard, premium")
	complexity := fs.String("complexity", "", "skip classification: simple, moderate, complex")
	department := fs.String("department", "", "department attribution")
	project := fs.String("project", "", "project attribution")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "error: read stdin: %v\n", err)
			return exitError
		}
		text = string(data)
	}

	var opts []routing.Option
	if *maxCost >= 0 {
		opts = append(opts, routing.WithMaxCost(*maxCost))
	}
	if *quality != "" {
		t, ok := types.ParseTier(*quality)
		if !ok {
			fmt.Fprintf(stderr, "error: unknown quality tier %q\n", *quality)
			return exitError
		}
		opts = append(opts, routing.WithRequiredQuality(t))
	}
	if *complexity != "" {
		c, ok := types.ParseComplexity(*complexity)
		if !ok {
			fmt.Fprintf(stderr, "error: unknown complexity %q\n", *complexity)
			return exitError
		}
		opts = append(opts, routing.WithComplexity(c))
	}
	if *department != "" {
		opts = append(opts, routing.WithDepartment(*department))
	}
	if *project != "" {
		opts = append(opts, routing.WithProject(*project))
	}

	rc, err := config.LoadRouting(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	engine, err := routing.FromConfig(rc)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	decision, err := engine.RouteText(text, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if errors.Is(err, routing.ErrNoSuitableModel) {
			return exitNoModel
		}
		return exitError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}
