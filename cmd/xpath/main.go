// Command xpath evaluates XPath expressions against XML documents from the
// command line.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/xpathkit/xpath-go/dom"
	"github.com/xpathkit/xpath-go/xpath"
)

func main() {
	app := &cli.App{
		Name:  "xpath",
		Usage: "evaluate XPath expressions against XML documents",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Commands: []*cli.Command{
			evalCommand(),
			parseCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("xpath failed", "error", err)
		os.Exit(1)
	}
}

func languageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "lang",
			Aliases: []string{"l"},
			Value:   "3.1",
			Usage:   "XPath version: 1.0, 2.0, 3.0 or 3.1",
		},
		&cli.BoolFlag{
			Name:  "compat",
			Usage: "enable XPath 1.0 compatibility coercion",
		},
		&cli.BoolFlag{
			Name:  "no-strict",
			Usage: "accept constructs from newer XPath versions",
		},
	}
}

func evalCommand() *cli.Command {
	return &cli.Command{
		Name:      "eval",
		Usage:     "evaluate an expression, optionally against an XML input",
		ArgsUsage: "EXPRESSION",
		Flags: append(languageFlags(),
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "XML file to use as the context item (- for stdin)",
			},
			&cli.BoolFlag{
				Name:  "strict-atomization",
				Usage: "fail on atomizing element-only content",
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "bind a variable as name=value (string typed)",
			},
		),
		Action: runEval,
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse an expression and print its normalized form",
		ArgsUsage: "EXPRESSION",
		Flags:     languageFlags(),
		Action: func(c *cli.Context) error {
			expr, err := compile(c)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, expr.String())
			return nil
		},
	}
}

func compile(c *cli.Context) (*xpath.Expression, error) {
	source := c.Args().First()
	if source == "" {
		return nil, cli.Exit("no expression given", 2)
	}
	return xpath.Parse(source, xpath.Options{
		Version: c.String("lang"),
		Lenient: c.Bool("no-strict"),
	})
}

func runEval(c *cli.Context) error {
	expr, err := compile(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	if c.Bool("compat") {
		ctx = xpath.WithCompatibilityMode(ctx, true)
	}
	if c.Bool("strict-atomization") {
		ctx = xpath.WithStrictAtomization(ctx, true)
	}
	for _, kv := range c.StringSlice("var") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return cli.Exit(fmt.Sprintf("malformed --var %q, want name=value", kv), 2)
		}
		ctx = xpath.WithVariable(ctx, name, xpath.Sequence{xpath.String(value)})
	}

	var item xpath.Item
	if in := c.String("input"); in != "" {
		node, err := readDocument(in)
		if err != nil {
			return err
		}
		item = node
	}

	result, err := expr.Evaluate(ctx, item)
	if err != nil {
		return err
	}
	for _, it := range result {
		fmt.Fprintln(c.App.Writer, it.String())
	}
	return nil
}

func readDocument(path string) (xpath.Node, error) {
	if path == "-" {
		return dom.Parse(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return dom.Parse(f)
}
