package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/capture"
	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/core"
	"example.com/n2kgate/internal/manifest"
	"example.com/n2kgate/internal/n2k"
	"example.com/n2kgate/internal/pipeline"
	"example.com/n2kgate/internal/report"
	"example.com/n2kgate/internal/ring"
	"example.com/n2kgate/internal/window"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// cli carries the streams of one invocation so commands can be driven from
// tests.
type cli struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := cli{in: os.Stdin, out: os.Stdout, err: os.Stderr}
	if err := c.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func (c cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "decode-id":
		return c.decodeIDCmd(args)
	case "inspect":
		return c.inspectCmd(args)
	case "import":
		return c.importCmd(ctx, args)
	case "export":
		return c.exportCmd(ctx, args)
	case "report":
		return c.reportCmd(args)
	case "manifest":
		return c.manifestCmd(args)
	case "to-pcap":
		return c.toPcapCmd(args)
	case "version":
		fmt.Fprintf(c.out, "n2kctl %s (built %s)\n", version, buildDate)
		return nil
	default:
		usage(c.out)
		return errors.Newf("unknown command %q", cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `n2kctl %s (built %s) <command> [options]

Commands:
  decode-id <id>...   split 29-bit identifiers into priority, PGN, source and destination
  inspect   --line "<ts> <id> <len> <octets>" | --id <id> --data "<octets>" [--table <pgns.yaml>]
  import    --in <log|pcap> [--start N --size N | --interactive] [--capacity N] [--show N] [--summary <json>] [--progress]
  export    --in <log> --out <csv> [--start N --size N | --interactive] [--summary <json>] [--pdf <pdf>] [--lang fr|en] [--progress]
  report    --summary <json> --pdf <pdf> [--lang fr|en]
  manifest  --inputs <comma-separated> --out <manifest.json> [--sign --key <key.pem> --cert <cert.pem> [--jws <file>]]
            --verify <manifest.json> [--cert <cert.pem> [--jws <file>]]
  to-pcap   --in <log> --out <pcap>
  version
`, version, buildDate)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func loadTable(path string) (*n2k.Table, error) {
	if path == "" {
		return n2k.DefaultTable(), nil
	}
	return n2k.LoadTable(path)
}

func (c cli) decodeIDCmd(args []string) error {
	fs := newFlagSet("decode-id", c.err)
	tablePath := fs.String("table", "", "PGN table override (yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one identifier required")
	}
	table, err := loadTable(*tablePath)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPGN\tPriority\tSource\tDestination\tName")
	for _, arg := range fs.Args() {
		id, err := canlog.ParseID(arg)
		if err != nil {
			return err
		}
		addr := n2k.DecodeID(id)
		name := "-"
		if entry, ok := table.Lookup(addr.PGN); ok {
			name = entry.Name
		}
		fmt.Fprintf(tw, "%08X\t%d\t%d\t%d\t%d\t%s\n", id, addr.PGN, addr.Priority, addr.Source, addr.Destination, name)
	}
	return tw.Flush()
}

func (c cli) inspectCmd(args []string) error {
	fs := newFlagSet("inspect", c.err)
	lineText := fs.String("line", "", "one frame log line")
	idText := fs.String("id", "", "hexadecimal identifier")
	dataText := fs.String("data", "", "space separated hex octets")
	tablePath := fs.String("table", "", "PGN table override (yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var rec canlog.Record
	switch {
	case *lineText != "":
		line, err := canlog.ParseLine(1, *lineText)
		if err != nil {
			return err
		}
		if rec, err = line.Record(); err != nil {
			return err
		}
	case *idText != "":
		octets := strings.Fields(*dataText)
		line := canlog.Line{Number: 1, IDText: *idText, Declared: len(octets), Octets: octets}
		id, err := canlog.ParseID(*idText)
		if err != nil {
			return err
		}
		line.ID = id
		if rec, err = line.Record(); err != nil {
			return err
		}
	default:
		return errors.New("required: --line or --id")
	}
	table, err := loadTable(*tablePath)
	if err != nil {
		return err
	}
	in, err := core.Inspect(table, 0, rec)
	fmt.Fprintf(c.out, "%s\n%s\n", rec, in.Address)
	if err != nil {
		fmt.Fprintf(c.out, "decode unavailable: %v\n", err)
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", in.Interpretation.Name, in.Interpretation.Table)
	for _, f := range in.Interpretation.Fields {
		fmt.Fprintf(tw, "  %s\t%s\n", f.Name, f.Value)
	}
	return tw.Flush()
}

// windowFlags registers the window selection flags shared by import and
// export.
type windowFlags struct {
	start       *int
	size        *int
	interactive *bool
}

func addWindowFlags(fs *flag.FlagSet, defaultSize int) windowFlags {
	return windowFlags{
		start:       fs.Int("start", 0, "first line (zero-based)"),
		size:        fs.Int("size", defaultSize, "number of lines"),
		interactive: fs.Bool("interactive", false, "choose the window with p/n/v/q prompts"),
	}
}

// resolve returns the chosen window. ok is false when the user cancelled
// the interactive selection.
func (c cli) resolve(ctx context.Context, wf windowFlags, title string) (window.Window, bool, error) {
	w, err := window.New(*wf.start, *wf.size)
	if err != nil {
		return w, false, err
	}
	if !*wf.interactive {
		return w, true, nil
	}
	return window.Drive(ctx, w, window.NewTerminal(title, c.in, c.out))
}

func (c cli) startProgress(enabled bool, m *common.Metrics) func() {
	if !enabled {
		return func() {}
	}
	return common.StartProgressPrinter(c.err, m, 500*time.Millisecond)
}

func (c cli) importCmd(ctx context.Context, args []string) error {
	fs := newFlagSet("import", c.err)
	in := fs.String("in", "", "frame log or capture file")
	wf := addWindowFlags(fs, window.DefaultImportSize)
	capacity := fs.Int("capacity", ring.DefaultCapacity, "buffer capacity")
	show := fs.Int("show", 10, "rows to print after the import")
	summaryPath := fs.String("summary", "", "write the run summary as JSON")
	progress := fs.Bool("progress", false, "display progress updates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	w, ok, err := c.resolve(ctx, wf, "Import")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "import cancelled")
		return nil
	}
	cr, err := core.New(core.Options{Capacity: *capacity})
	if err != nil {
		return err
	}
	m := common.NewMetrics()
	stop := c.startProgress(*progress, m)
	stats, err := cr.RunImport(ctx, *in, w, m)
	stop()
	if err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %d inserted, %d skipped\n", w, stats.Inserted, stats.Skipped)
	if stats.PastEnd {
		fmt.Fprintln(c.out, "window starts past the end of the input")
	}
	if *show > 0 {
		if err := printRows(c.out, cr, *show); err != nil {
			return err
		}
	}
	if *summaryPath != "" {
		sum := report.FromImport(*in, w, stats, m.Snapshot().Duration)
		sum.Cancelled = ctx.Err() != nil
		if err := report.SaveJSON(sum, *summaryPath); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Wrote", *summaryPath)
	}
	return nil
}

// printRows renders the last limit visible rows with the model's headers.
func printRows(out io.Writer, cr *core.Core, limit int) error {
	n := cr.Len()
	if n == 0 {
		return nil
	}
	start := n - limit
	if start < 0 {
		start = 0
	}
	recs, err := cr.Rows(start, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\t%s\n", strings.Join(ring.Headers, "\t"))
	src := ring.Slice(recs)
	for i := range recs {
		cells := make([]string, len(ring.Headers))
		for col := range cells {
			if cells[col], err = ring.Cell(src, i, col); err != nil {
				return err
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", ring.Header(start+i, true), strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func (c cli) exportCmd(ctx context.Context, args []string) error {
	fs := newFlagSet("export", c.err)
	in := fs.String("in", "", "frame log")
	out := fs.String("out", "", "CSV output")
	wf := addWindowFlags(fs, window.DefaultExportSize)
	tablePath := fs.String("table", "", "PGN table override (yaml)")
	summaryPath := fs.String("summary", "", "write the run summary as JSON")
	pdfPath := fs.String("pdf", "", "write the run summary as PDF")
	langFlag := fs.String("lang", "", "summary language (fr, en); defaults to LANG")
	progress := fs.Bool("progress", false, "display progress updates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("required: --in and --out")
	}
	if capture.IsCapturePath(*in) {
		return errors.Newf("%s: export reads frame logs only; convert captures with import", *in)
	}
	lang, err := report.ParseLanguage(firstNonEmpty(*langFlag, os.Getenv("LANG")))
	if err != nil && *langFlag != "" {
		return err
	}
	table, err := loadTable(*tablePath)
	if err != nil {
		return err
	}
	w, ok, err := c.resolve(ctx, wf, "Export")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "export cancelled")
		return nil
	}
	m := common.NewMetrics()
	stop := c.startProgress(*progress, m)
	stats, err := pipeline.ExportFile(ctx, *in, w, *out, pipeline.Options{Table: table, Metrics: m})
	stop()
	cancelled := ctx.Err() != nil
	if err != nil && !cancelled {
		return err
	}
	fmt.Fprintf(c.out, "%s: %d rows (%d with N/A), %d skipped in %s\n",
		w, stats.Rows, stats.Placeholders, stats.Skipped, stats.Duration.Round(time.Millisecond))
	fmt.Fprintln(c.out, "Wrote", *out)

	sum := report.FromExport(*in, w, stats)
	sum.Cancelled = cancelled
	if *summaryPath != "" {
		if err := report.SaveJSON(sum, *summaryPath); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Wrote", *summaryPath)
	}
	if *pdfPath != "" {
		if err := report.SavePDF(sum, lang, *pdfPath); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Wrote", *pdfPath)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c cli) reportCmd(args []string) error {
	fs := newFlagSet("report", c.err)
	summaryPath := fs.String("summary", "", "summary.json written by import or export")
	pdfPath := fs.String("pdf", "", "output PDF")
	langFlag := fs.String("lang", "fr", "report language (fr, en)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *summaryPath == "" || *pdfPath == "" {
		return errors.New("required: --summary and --pdf")
	}
	lang, err := report.ParseLanguage(*langFlag)
	if err != nil {
		return err
	}
	sum, err := report.LoadJSON(*summaryPath)
	if err != nil {
		return err
	}
	if err := report.SavePDF(sum, lang, *pdfPath); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Wrote PDF:", *pdfPath)
	return nil
}

func (c cli) manifestCmd(args []string) error {
	fs := newFlagSet("manifest", c.err)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	verify := fs.String("verify", "", "manifest to check against the files it lists")
	sign := fs.Bool("sign", false, "sign the manifest (detached JWS)")
	keyPath := fs.String("key", "", "PEM RSA private key for --sign")
	certPath := fs.String("cert", "", "PEM signer certificate for --sign or --verify")
	jwsPath := fs.String("jws", "", "detached signature (defaults to the manifest path with .jws)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verify != "" {
		return c.verifyManifest(*verify, *jwsPath, *certPath)
	}
	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return errors.New("required: --inputs")
	}
	m, err := manifest.Build(paths)
	if err != nil {
		return err
	}
	if !*sign {
		if err := manifest.Save(m, *out); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Wrote", *out)
		return nil
	}
	if *keyPath == "" || *certPath == "" {
		return errors.New("--sign requires --key and --cert")
	}
	keyPEM, err := os.ReadFile(*keyPath)
	if err != nil {
		return errors.Wrap(err, "read key")
	}
	certPEM, err := os.ReadFile(*certPath)
	if err != nil {
		return errors.Wrap(err, "read cert")
	}
	sigPath := firstNonEmpty(*jwsPath, jwsPathFor(*out))
	payload, jws, err := manifest.Sign(m, keyPEM, certPEM, sigPath)
	if err != nil {
		return err
	}
	jwsBytes, err := json.MarshalIndent(jws, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode jws")
	}
	if err := os.WriteFile(*out, payload, 0o644); err != nil {
		return errors.Wrap(err, "write manifest")
	}
	if err := os.WriteFile(sigPath, jwsBytes, 0o644); err != nil {
		return errors.Wrap(err, "write jws")
	}
	fmt.Fprintln(c.out, "Wrote", *out)
	fmt.Fprintln(c.out, "Wrote signature", sigPath)
	return nil
}

func jwsPathFor(manifestPath string) string {
	return strings.TrimSuffix(manifestPath, filepath.Ext(manifestPath)) + ".jws"
}

// verifyManifest re-hashes the listed files and, when a certificate is
// given, checks the detached signature too.
func (c cli) verifyManifest(path, jwsPath, certPath string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if certPath != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read manifest")
		}
		certPEM, err := os.ReadFile(certPath)
		if err != nil {
			return errors.Wrap(err, "read cert")
		}
		jwsBytes, err := os.ReadFile(firstNonEmpty(jwsPath, jwsPathFor(path)))
		if err != nil {
			return errors.Wrap(err, "read jws")
		}
		var jws manifest.JWS
		if err := json.Unmarshal(jwsBytes, &jws); err != nil {
			return errors.Wrap(err, "parse jws")
		}
		if err := manifest.VerifySignature(payload, jws, certPEM); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Signature OK")
	}
	mismatched, err := manifest.Verify(m)
	if err != nil {
		return err
	}
	if len(mismatched) > 0 {
		for _, p := range mismatched {
			fmt.Fprintln(c.out, "MISMATCH", p)
		}
		return errors.Newf("%d file(s) differ from the manifest", len(mismatched))
	}
	fmt.Fprintf(c.out, "OK %d file(s)\n", len(m.Items))
	return nil
}

// toPcapCmd converts a frame log into a SocketCAN capture. Unparseable lines
// are skipped; a line without a numeric timestamp is stamped with its index.
func (c cli) toPcapCmd(args []string) error {
	fs := newFlagSet("to-pcap", c.err)
	in := fs.String("in", "", "frame log")
	out := fs.String("out", "", "pcap output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("required: --in and --out")
	}
	src, rd, err := pipeline.OpenLog(*in)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}
	dst, err := os.Create(*out)
	if err != nil {
		return errors.Wrapf(err, "create %s", *out)
	}
	defer dst.Close()
	pw, err := capture.NewWriter(dst)
	if err != nil {
		return err
	}
	written, skipped := 0, 0
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, canlog.ErrEmptyLine) {
			continue
		}
		if canlog.IsRecordError(err) {
			skipped++
			continue
		}
		if err != nil {
			return err
		}
		if err := pw.WriteFrame(logTime(rec.Timestamp, rd.Number()), rec); err != nil {
			return err
		}
		written++
	}
	fmt.Fprintf(c.out, "Wrote %s: %d frame(s), %d line(s) skipped\n", *out, written, skipped)
	return dst.Close()
}

// logTime reads a "seconds[.fraction]" timestamp.
func logTime(ts string, fallback int) time.Time {
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Unix(int64(fallback), 0).UTC()
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).Round(time.Microsecond).UTC()
}
