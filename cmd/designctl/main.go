// Command designctl validates serialized documents and manages archived
// revisions.
//
//	designctl validate -file plan.json
//	designctl import -file plan.json -doc kitchen [-label text]
//	designctl inspect -doc kitchen [-rev N]
//	designctl revisions -doc kitchen
//
// The archive and logging come from DESIGNCORE_* variables or -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"designcore/internal/config"
	"designcore/internal/core"
	"designcore/pkg/codec"
	"designcore/pkg/domain"
)

var exitFunc = os.Exit

const usage = "usage: designctl <validate|import|inspect|revisions> [flags]"

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet("designctl "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML configuration file")
	file := fs.String("file", "", "serialized document")
	docID := fs.String("doc", "", "archived document id")
	rev := fs.Int("rev", 0, "revision (latest when 0)")
	label := fs.String("label", "", "revision label")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	var err error
	switch cmd {
	case "validate":
		err = validate(*file, stdout)
	case "import", "inspect", "revisions":
		err = withService(*cfgPath, stderr, func(ctx context.Context, svc *core.Service) error {
			switch cmd {
			case "import":
				return importFile(ctx, svc, *file, *docID, *label, stdout)
			case "inspect":
				return inspect(ctx, svc, *docID, *rev, stdout)
			default:
				return revisions(ctx, svc, *docID, stdout)
			}
		})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s\n", cmd, usage)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "designctl %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func withService(cfgPath string, logs io.Writer, fn func(context.Context, *core.Service) error) (err error) {
	cfg, err := config.LoadWith(os.LookupEnv, cfgPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, err := core.FromConfig(ctx, cfg, logs, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()
	return fn(ctx, svc)
}

func readPayload(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("-file is required")
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied input file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func validate(path string, out io.Writer) error {
	data, err := readPayload(path)
	if err != nil {
		return err
	}
	p, err := codec.Unmarshal(data)
	if err != nil {
		return err
	}
	reg := domain.NewRegistry()
	if err := domain.RegisterBuiltins(reg); err != nil {
		return err
	}
	doc, report, err := codec.LoadDocument(p, reg, codec.LoadConfig{})
	if err != nil {
		return err
	}
	printReport(out, report)
	summarize(out, doc)
	if !report.OK() {
		return fmt.Errorf("%d load errors", len(report.Errors))
	}
	return nil
}

func importFile(ctx context.Context, svc *core.Service, path, docID, label string, out io.Writer) error {
	if docID == "" {
		return errors.New("-doc is required")
	}
	data, err := readPayload(path)
	if err != nil {
		return err
	}
	snap, report, err := svc.Import(ctx, docID, data, label)
	if err != nil {
		return err
	}
	printReport(out, report)
	_, _ = fmt.Fprintf(out, "saved %s revision %d (%d bytes, %s)\n", snap.DocumentID, snap.Revision, snap.Size, snap.Checksum[:12])
	return nil
}

func inspect(ctx context.Context, svc *core.Service, docID string, rev int, out io.Writer) error {
	if docID == "" {
		return errors.New("-doc is required")
	}
	report, err := svc.Open(ctx, docID, rev)
	if err != nil {
		return err
	}
	printReport(out, report)
	summarize(out, svc.Document())
	return nil
}

func revisions(ctx context.Context, svc *core.Service, docID string, out io.Writer) error {
	if docID == "" {
		return errors.New("-doc is required")
	}
	if _, err := svc.Open(ctx, docID, 0); err != nil {
		return err
	}
	revs, err := svc.Revisions(ctx)
	if err != nil {
		return err
	}
	for _, r := range revs {
		_, _ = fmt.Fprintf(out, "%4d  %s  %8d  %s\n", r.Revision, r.CreatedAt.Format("2006-01-02T15:04:05Z"), r.Size, r.Label)
	}
	return nil
}

func printReport(out io.Writer, report *codec.LoadReport) {
	_, _ = fmt.Fprintf(out, "entities: %d\nassociations: %d\n", report.Entities, report.Associations)
	for _, e := range report.Errors {
		_, _ = fmt.Fprintf(out, "error: %v\n", e)
	}
}

func summarize(out io.Writer, doc *domain.Document) {
	counts := make(map[string]int)
	for _, e := range doc.Entities() {
		counts[e.TypeTag()]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		_, _ = fmt.Fprintf(out, "  %-28s %d\n", t, counts[t])
	}
	if invalid := doc.Associations().Invalid(); len(invalid) > 0 {
		_, _ = fmt.Fprintf(out, "invalid associations: %d\n", len(invalid))
	}
}
