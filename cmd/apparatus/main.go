// Command apparatus is the CLI for the Juniper critical-apparatus
// pipeline. It provides commands for normalizing transcriptions, emitting
// alignment-engine token lists, validating and resegmenting collations,
// and labeling finished apparatus documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperApparatus/core/collation"
	apperrors "github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/hebrew"
	"github.com/FocuswithJustin/JuniperApparatus/core/labeler"
	"github.com/FocuswithJustin/JuniperApparatus/core/normalizer"
	"github.com/FocuswithJustin/JuniperApparatus/core/segmenter"
	"github.com/FocuswithJustin/JuniperApparatus/core/token"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
	"github.com/FocuswithJustin/JuniperApparatus/internal/logging"
)

const version = "0.2.0"

// CLI defines the command-line interface for apparatus.
var CLI struct {
	// Global flags
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log output format"`

	// Command groups (noun-first organization)
	Normalize NormalizeCmd   `cmd:"" help:"Normalize a transcription file"`
	Segment   SegmentCmd     `cmd:"" help:"Segment or desegment a normalized document body"`
	Tokens    TokensCmd      `cmd:"" help:"Emit alignment-engine token lists for witness files"`
	Collate   CollateCmd     `cmd:"" help:"Run the external alignment engine over witness files"`
	Collation CollationGroup `cmd:"" help:"Collation document operations (validate, update, project)"`
	Label     LabelCmd       `cmd:"" help:"Add type and citation labels to a collation"`
	Cite      CiteGroup      `cmd:"" help:"Citation label operations"`
	Version   VersionCmd     `cmd:"" help:"Print version information"`
}

// CollationGroup contains collation document operations.
type CollationGroup struct {
	Validate  ValidateCmd  `cmd:"" help:"Validate resegmentation consistency"`
	Update    UpdateCmd    `cmd:"" help:"Correct apparatus boundaries to segment granularity"`
	Witnesses WitnessesCmd `cmd:"" help:"List the witnesses of a collation document"`
	Lemma     LemmaCmd     `cmd:"" help:"Extract the lemma projection"`
	Witness   WitnessCmd   `cmd:"" help:"Extract one witness's projection"`
}

// CiteGroup contains citation label operations.
type CiteGroup struct {
	Parse CiteParseCmd `cmd:"" help:"Parse a citation label into its components"`
}

// normalizationFlags are the flags shared by every command that
// normalizes transcription text.
type normalizationFlags struct {
	IgnoreAccents     []string `name:"ignore-accents" enum:"cantillation,pointing,extraordinaire" help:"Accent classes to strip"`
	IgnorePunctuation []string `name:"ignore-punctuation" help:"Punctuation texts to drop"`
	ReadingType       string   `name:"reading-type" help:"Preferred reading type to collapse alternatives to (e.g. ketiv)"`
	IgnoreTags        []string `name:"ignore-tags" help:"Element tags to drop"`
}

func (f *normalizationFlags) accentClasses() ([]hebrew.AccentClass, error) {
	classes := make([]hebrew.AccentClass, 0, len(f.IgnoreAccents))
	for _, name := range f.IgnoreAccents {
		class, err := hebrew.ParseAccentClass(name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, nil
}

func (f *normalizationFlags) config() (normalizer.Config, error) {
	classes, err := f.accentClasses()
	if err != nil {
		return normalizer.Config{}, err
	}
	return normalizer.Config{
		IgnoredAccents:       classes,
		IgnoredPunctuation:   f.IgnorePunctuation,
		PreferredReadingType: f.ReadingType,
		IgnoredTags:          f.IgnoreTags,
	}, nil
}

// NormalizeCmd normalizes a transcription file.
type NormalizeCmd struct {
	normalizationFlags
	Input string `arg:"" help:"Transcription file" type:"existingfile"`
	Out   string `help:"Output path (stdout when omitted)" type:"path"`
}

func (c *NormalizeCmd) Run(ctx context.Context) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	n, err := normalizer.New(cfg)
	if err != nil {
		return err
	}
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	started := time.Now()
	out, err := n.Document(doc)
	if err != nil {
		return err
	}
	logging.PipelineStage("normalize", c.Input, time.Since(started))
	return writeDocument(out, c.Out)
}

// SegmentCmd segments or desegments a normalized document body.
type SegmentCmd struct {
	Input      string   `arg:"" help:"Normalized document file" type:"existingfile"`
	Out        string   `help:"Output path (stdout when omitted)" type:"path"`
	IgnoreTags []string `name:"ignore-tags" help:"Element tags treated as ignorable"`
	Undo       bool     `help:"Desegment instead of segmenting"`
}

func (c *SegmentCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	seg := segmenter.New(c.IgnoreTags)
	started := time.Now()
	var out *xml.Document
	if c.Undo {
		out, err = seg.Desegment(doc)
	} else {
		out, err = seg.Segment(doc)
	}
	if err != nil {
		return err
	}
	stage := "segment"
	if c.Undo {
		stage = "desegment"
	}
	logging.PipelineStage(stage, c.Input, time.Since(started))
	return writeDocument(out, c.Out)
}

// collatorFlags are the flags shared by commands that ingest witness
// transcriptions.
type collatorFlags struct {
	Level         string   `default:"verse" enum:"book,chapter,verse" help:"Division level tokens are grouped at"`
	IgnoreAccents []string `name:"ignore-accents" enum:"cantillation,pointing,extraordinaire" help:"Accent classes stripped from formatted tokens"`
	IgnoreTags    []string `name:"ignore-tags" help:"Element tags dropped during normalization"`
}

func (f *collatorFlags) collator() (*collation.Collator, error) {
	classes := make([]hebrew.AccentClass, 0, len(f.IgnoreAccents))
	for _, name := range f.IgnoreAccents {
		class, err := hebrew.ParseAccentClass(name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return collation.NewCollator(collation.Config{
		Level:          f.Level,
		IgnoredAccents: classes,
		IgnoredTags:    f.IgnoreTags,
	}), nil
}

func (f *collatorFlags) ingest(ctx context.Context, inputs []string) (*collation.Collator, error) {
	collator, err := f.collator()
	if err != nil {
		return nil, err
	}
	docs := make([]*xml.Document, len(inputs))
	for i, input := range inputs {
		if docs[i], err = readDocument(input); err != nil {
			return nil, err
		}
	}
	started := time.Now()
	if err := collator.ReadAll(ctx, docs); err != nil {
		return nil, err
	}
	logging.PipelineStage("ingest", strings.Join(inputs, ","), time.Since(started),
		"witnesses", len(collator.Witnesses()))
	return collator, nil
}

// TokensCmd emits alignment-engine token lists for witness files.
type TokensCmd struct {
	collatorFlags
	Inputs   []string `arg:"" help:"Witness transcription files" type:"existingfile"`
	Division string   `help:"Division to emit (lists divisions when omitted)"`
	Out      string   `help:"Output path; .xz suffix enables compression (stdout when omitted)" type:"path"`
}

func (c *TokensCmd) Run(ctx context.Context) error {
	collator, err := c.ingest(ctx, c.Inputs)
	if err != nil {
		return err
	}
	if c.Division == "" {
		divisions, err := collator.Divisions()
		if err != nil {
			return err
		}
		for _, division := range divisions {
			fmt.Println(division)
		}
		return nil
	}
	tokens := collator.Division(c.Division)
	if len(tokens.Witnesses) == 0 {
		return fmt.Errorf("no witness is extant at division %q", c.Division)
	}
	if c.Out == "" {
		return token.Write(os.Stdout, tokens, false)
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", c.Out, err)
	}
	if err := token.Write(f, tokens, token.IsCompressedName(c.Out)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CollateCmd runs the external alignment engine over witness files and
// merges its output into the lemma witness.
type CollateCmd struct {
	collatorFlags
	Inputs []string `arg:"" help:"Witness transcription files (first is the lemma)" type:"existingfile"`
	Engine string   `required:"" help:"Alignment engine executable" type:"existingfile"`
	Out    string   `help:"Output path (stdout when omitted)" type:"path"`
}

func (c *CollateCmd) Run(ctx context.Context) error {
	collator, err := c.ingest(ctx, c.Inputs)
	if err != nil {
		return err
	}
	started := time.Now()
	collated, err := collator.Collate(ctx, &execEngine{path: c.Engine})
	if err != nil {
		return err
	}
	logging.PipelineStage("collate", c.Engine, time.Since(started))
	augmented, err := collator.AugmentLemma(collated)
	if err != nil {
		return err
	}
	return writeDocument(augmented, c.Out)
}

// execEngine invokes the external alignment engine as a subprocess:
// interchange JSON on stdin, apparatus fragment on stdout.
type execEngine struct {
	path string
}

func (e *execEngine) Align(ctx context.Context, c *token.Collation) (string, error) {
	input, err := token.Encode(c)
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, e.path)
	cmd.Stdin = strings.NewReader(string(input))
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("alignment engine %s: %w", e.path, err)
	}
	return string(out), nil
}

// ValidateCmd validates resegmentation consistency. Any mismatch is
// reported per apparatus and exits non-zero.
type ValidateCmd struct {
	Input string `arg:"" help:"Collation document" type:"existingfile"`
}

func (c *ValidateCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	editor := collation.NewEditor()
	err = editor.Validate(doc)
	var reseg *apperrors.ResegmentationError
	if apperrors.As(err, &reseg) {
		for _, mismatch := range reseg.Mismatches {
			fmt.Fprintln(os.Stderr, mismatch.String())
		}
		logging.ValidationFailure(c.Input, len(reseg.Mismatches))
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: resegmentation is consistent\n", c.Input)
	return nil
}

// UpdateCmd validates a collation and corrects its apparatus boundaries.
type UpdateCmd struct {
	Input string `arg:"" help:"Collation document" type:"existingfile"`
	Out   string `help:"Output path (stdout when omitted)" type:"path"`
}

func (c *UpdateCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	editor := collation.NewEditor()
	if err := editor.Validate(doc); err != nil {
		var reseg *apperrors.ResegmentationError
		if apperrors.As(err, &reseg) {
			logging.ValidationFailure(c.Input, len(reseg.Mismatches))
		}
		return err
	}
	started := time.Now()
	out, err := editor.UpdateBoundaries(doc)
	if err != nil {
		return err
	}
	logging.PipelineStage("update-boundaries", c.Input, time.Since(started))
	return writeDocument(out, c.Out)
}

// WitnessesCmd lists the witnesses of a collation document.
type WitnessesCmd struct {
	Input string `arg:"" help:"Collation document" type:"existingfile"`
}

func (c *WitnessesCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	witnesses, err := collation.NewEditor().Witnesses(doc)
	if err != nil {
		return err
	}
	for _, wit := range witnesses {
		fmt.Println(wit)
	}
	return nil
}

// LemmaCmd extracts the lemma projection of a collation document.
type LemmaCmd struct {
	Input string `arg:"" help:"Collation document" type:"existingfile"`
	Out   string `help:"Output path (stdout when omitted)" type:"path"`
}

func (c *LemmaCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	out, err := collation.NewEditor().LemmaDocument(doc)
	if err != nil {
		return err
	}
	return writeDocument(out, c.Out)
}

// WitnessCmd extracts one witness's projection of a collation document.
type WitnessCmd struct {
	Input string `arg:"" help:"Collation document" type:"existingfile"`
	ID    string `required:"" help:"Witness siglum"`
	Out   string `help:"Output path (stdout when omitted)" type:"path"`
}

func (c *WitnessCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	out, err := collation.NewEditor().WitnessDocument(doc, c.ID)
	if err != nil {
		return err
	}
	return writeDocument(out, c.Out)
}

// LabelCmd adds type and citation labels to a validated collation.
type LabelCmd struct {
	Input string `arg:"" help:"Collation document" type:"existingfile"`
	Out   string `help:"Output path (stdout when omitted)" type:"path"`
}

func (c *LabelCmd) Run(ctx context.Context) error {
	doc, err := readDocument(c.Input)
	if err != nil {
		return err
	}
	started := time.Now()
	out, err := labeler.New().Label(doc)
	if err != nil {
		return err
	}
	logging.PipelineStage("label", c.Input, time.Since(started))
	return writeDocument(out, c.Out)
}

// CiteParseCmd parses a citation label into its components.
type CiteParseCmd struct {
	Label string `arg:"" help:"Citation label (e.g. B04K21V2U6-U8)"`
}

func (c *CiteParseCmd) Run(ctx context.Context) error {
	cite, err := labeler.ParseCitation(c.Label)
	if err != nil {
		return err
	}
	for _, component := range cite.Start {
		fmt.Printf("%s\t%s\n", component.Level, component.Index)
	}
	if cite.IsRange() {
		fmt.Println("-")
		for _, component := range cite.End {
			fmt.Printf("%s\t%s\n", component.Level, component.Index)
		}
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Printf("apparatus %s\n", version)
	return nil
}

// readDocument parses one XML file into a document tree.
func readDocument(path string) (*xml.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// writeDocument serializes a document to out, or stdout when out is empty.
func writeDocument(doc *xml.Document, out string) error {
	data := doc.Serialize()
	if out == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}

func main() {
	runCtx := logging.WithRunID(context.Background(), uuid.New().String())
	ctx := kong.Parse(&CLI,
		kong.Name("apparatus"),
		kong.Description("Juniper Apparatus - critical apparatus pipeline for multi-witness transcriptions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(runCtx, (*context.Context)(nil)),
	)

	level := logging.LevelInfo
	switch CLI.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
