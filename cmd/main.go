package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"speech-manifests/internal/combine"
	"speech-manifests/internal/config"
	"speech-manifests/internal/db"
	"speech-manifests/internal/manifest"
	"speech-manifests/internal/noise"
	"speech-manifests/internal/objectstore"
	"speech-manifests/internal/scanner"
	"speech-manifests/internal/service"
)

// Globals is bound into every command's Run.
type Globals struct {
	ctx   context.Context
	cfg   *config.Config
	quiet bool
}

type CLI struct {
	Env   string `default:".env" help:"Path to .env file"`
	Quiet bool   `short:"q" help:"Hide progress bars"`

	Generate GenerateCmd `cmd:"" help:"Build a manifest from a source corpus"`
	Mix      MixCmd      `cmd:"" help:"Derive a noisy dataset from clean manifests"`
	Combine  CombineCmd  `cmd:"" help:"Combine per-pair score tables into one CSV"`
	Score    ScoreCmd    `cmd:"" help:"Score system hypotheses against a manifest"`
	Catalog  CatalogCmd  `cmd:"" help:"Mirror manifests into MariaDB"`
	Publish  PublishCmd  `cmd:"" help:"Upload manifests and their audio to MinIO"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("manifests"),
		kong.Description("Speech benchmark manifest tooling"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Env)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = kctx.Run(&Globals{ctx: ctx, cfg: cfg, quiet: cli.Quiet})
	kctx.FatalIfErrorf(err)
}

// OutputFlags are shared by the commands that write manifests.
type OutputFlags struct {
	Output    string `short:"o" help:"Manifest path (default <MANIFEST_DIR>/<dataset>/<src>-<tgt>.jsonl)"`
	Mode      string `default:"overwrite" enum:"overwrite,append-dedupe" help:"overwrite or append-dedupe"`
	PathStyle string `default:"rooted" enum:"rooted,relative" help:"src_audio form: /<dataset>/... or <dataset>/..."`
}

func (o OutputFlags) parse() (manifest.Mode, manifest.PathStyle, error) {
	mode, err := manifest.ParseMode(o.Mode)
	if err != nil {
		return mode, 0, err
	}
	style, err := manifest.ParsePathStyle(o.PathStyle)
	return mode, style, err
}

func defaultOutput(manifestDir, dataset, src, tgt string) string {
	name := src
	if tgt != "" {
		name = src + "-" + tgt
	}
	return filepath.Join(manifestDir, dataset, name+".jsonl")
}

type GenerateCmd struct {
	LibriSpeech LibriSpeechCmd `cmd:"" name:"librispeech" help:"LibriSpeech / LibriStutter layout"`
	Kaldi       KaldiCmd       `cmd:"" help:"Kaldi text + wav.scp layout (CS-Dialogue)"`
	WavDir      WavDirCmd      `cmd:"" name:"wavdir" help:"Directory of untranscribed WAVs (UClass2)"`
	CommonVoice CommonVoiceCmd `cmd:"" name:"commonvoice" help:"Seeded sample of a CommonVoice language (CoVoST2)"`
	WMT         WMTCmd         `cmd:"" name:"wmt" help:"Speech documents of a WMT test-set XML"`
	MCIF        MCIFCmd        `cmd:"" name:"mcif" help:"TRANS samples of an MCIF reference XML"`
}

type GenerateFlags struct {
	OutputFlags `embed:""`

	Overwrite bool `help:"Re-copy audio that is already staged"`
	Limit     int  `help:"Stop after this many records"`
}

func (f GenerateFlags) run(g *Globals, src scanner.Source, tgt string) error {
	dataRoot, err := g.cfg.RequireDataRoot()
	if err != nil {
		return err
	}
	mode, style, err := f.parse()
	if err != nil {
		return err
	}

	out := f.Output
	if out == "" {
		out = defaultOutput(g.cfg.Data.ManifestDir, src.DatasetID(), src.Lang(), tgt)
	}

	_, err = service.NewGenerator(service.GenerateOptions{
		DataRoot:  dataRoot,
		Output:    out,
		Mode:      mode,
		PathStyle: style,
		Overwrite: f.Overwrite,
		Limit:     f.Limit,
		Quiet:     g.quiet,
	}).Run(g.ctx, src)
	return err
}

type LibriSpeechCmd struct {
	Root    string `arg:"" type:"existingdir" help:"Corpus root"`
	Dataset string `default:"librispeech"`
	Lang    string `default:"en"`
	Context string `default:"short"`
	Stutter bool   `help:"Strip [STUTTER] tags and record their positions"`

	GenerateFlags `embed:""`
}

func (c *LibriSpeechCmd) Run(g *Globals) error {
	src := &scanner.LibriSpeech{
		Root:     c.Root,
		Dataset:  c.Dataset,
		Language: c.Lang,
		Context:  c.Context,
		Stutter:  c.Stutter,
	}
	return c.run(g, src, c.Lang)
}

type KaldiCmd struct {
	Dir        string   `arg:"" type:"existingdir" help:"Directory holding text and wav.scp"`
	AudioRoot  string   `help:"Base for relative wav.scp paths"`
	ScriptDir  string   `help:"Directory of tab-separated script files"`
	Script     string   `default:"<MIX>" help:"Script tag to keep when --script-dir is set"`
	Dataset    string   `default:"cs-dialogue"`
	SrcLang    string   `default:"zh"`
	TgtLang    string   `default:"en" help:"Target language, empty for transcription only"`
	CodeSwitch []string `default:"en,zh" help:"Languages mixed in the corpus"`
	Context    string   `default:"short"`

	GenerateFlags `embed:""`
}

func (c *KaldiCmd) source() *scanner.Kaldi {
	return &scanner.Kaldi{
		Dir:        c.Dir,
		AudioRoot:  c.AudioRoot,
		ScriptDir:  c.ScriptDir,
		Script:     c.Script,
		Dataset:    c.Dataset,
		SrcLang:    c.SrcLang,
		TgtLang:    c.TgtLang,
		CodeSwitch: c.CodeSwitch,
		Context:    c.Context,
	}
}

func (c *KaldiCmd) Run(g *Globals) error {
	return c.run(g, c.source(), c.TgtLang)
}

type WavDirCmd struct {
	Root     string `arg:"" type:"existingdir" help:"Directory of WAV files"`
	Dataset  string `default:"uclass2"`
	SrcLang  string `default:"en"`
	TgtLang  string `help:"Target language, empty for none"`
	IDWidth  int    `default:"6" help:"Zero padding of generated ids"`
	KeepName bool   `help:"Stage files under their original names"`

	GenerateFlags `embed:""`
}

func (c *WavDirCmd) Run(g *Globals) error {
	src := &scanner.WavDir{
		Root:     c.Root,
		Dataset:  c.Dataset,
		SrcLang:  c.SrcLang,
		TgtLang:  c.TgtLang,
		IDWidth:  c.IDWidth,
		KeepName: c.KeepName,
	}
	return c.run(g, src, c.TgtLang)
}

type CommonVoiceCmd struct {
	Dir        string   `arg:"" type:"existingdir" help:"CommonVoice language directory with <split>.tsv and clips/"`
	Splits     []string `default:"train,dev,test,invalidated,other,validated" help:"Split TSVs to pool, missing ones are skipped"`
	SampleSize int      `default:"2500" help:"Number of clips to draw"`
	Seed       uint64   `default:"42" help:"Sampling seed"`
	Dataset    string   `default:"covost2"`
	SrcLang    string   `default:"uk"`
	TgtLang    string   `default:"en"`
	Context    string   `default:"short"`

	GenerateFlags `embed:""`
}

func (c *CommonVoiceCmd) Run(g *Globals) error {
	src := &scanner.CommonVoice{
		Dir:        c.Dir,
		Splits:     c.Splits,
		SampleSize: c.SampleSize,
		Seed:       c.Seed,
		Dataset:    c.Dataset,
		SrcLang:    c.SrcLang,
		TgtLang:    c.TgtLang,
		Context:    c.Context,
	}
	return c.run(g, src, c.TgtLang)
}

type WMTCmd struct {
	XML      string `arg:"" type:"existingfile" help:"wmttest<year>.<src>-<tgt>.all.xml"`
	AudioDir string `required:"" type:"existingdir" help:"Directory of <doc id>.wav files"`
	Dataset  string `default:"wmt24"`
	SrcLang  string `default:"en"`
	TgtLang  string `required:""`
	Domain   string `default:"speech"`

	GenerateFlags `embed:""`
}

func (c *WMTCmd) Run(g *Globals) error {
	src := &scanner.WMT{
		XML:      c.XML,
		AudioDir: c.AudioDir,
		Dataset:  c.Dataset,
		SrcLang:  c.SrcLang,
		TgtLang:  c.TgtLang,
		Domain:   c.Domain,
	}
	return c.run(g, src, c.TgtLang)
}

type MCIFCmd struct {
	XML      string `arg:"" type:"existingfile" help:"MCIF reference XML"`
	AudioDir string `required:"" type:"existingdir" help:"Base directory of audio_path entries"`
	Form     string `default:"short" enum:"short,long"`
	Dataset  string `default:"mcif_v1.0"`
	SrcLang  string `default:"en"`
	TgtLang  string `required:""`

	GenerateFlags `embed:""`
}

func (c *MCIFCmd) Run(g *Globals) error {
	src := &scanner.MCIF{
		XML:      c.XML,
		AudioDir: c.AudioDir,
		Form:     c.Form,
		Dataset:  c.Dataset,
		SrcLang:  c.SrcLang,
		TgtLang:  c.TgtLang,
	}
	return c.run(g, src, c.TgtLang)
}

type MixCmd struct {
	Input     string   `arg:"" type:"existingdir" help:"Directory of clean *.jsonl manifests"`
	NoiseDir  []string `required:"" type:"existingdir" help:"Noise clip directories (repeatable)"`
	Balanced  bool     `help:"Sample every noise directory down to the smallest one"`
	NoiseType string   `default:"ambient" enum:"ambient,babble"`
	SNR       string   `default:"0" help:"Fixed dB or lo:hi range"`
	Dataset   string   `help:"Output dataset id (default noisy_fleurs_<noise type>)"`
	Seed      uint64   `help:"Random seed, 0 uses MIX_SEED"`
	Mode      string   `default:"overwrite" enum:"overwrite,append-dedupe"`
	PathStyle string   `default:"rooted" enum:"rooted,relative"`
}

func (c *MixCmd) Run(g *Globals) error {
	dataRoot, err := g.cfg.RequireDataRoot()
	if err != nil {
		return err
	}
	snr, err := noise.ParseSNR(c.SNR)
	if err != nil {
		return err
	}
	mode, style, err := OutputFlags{Mode: c.Mode, PathStyle: c.PathStyle}.parse()
	if err != nil {
		return err
	}

	seed := c.Seed
	if seed == 0 {
		seed = g.cfg.Mix.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	pool, err := noise.Collect(c.NoiseDir, c.Balanced, rng)
	if err != nil {
		return err
	}
	log.Printf("✓ %d noise clips (seed %d)", pool.Len(), seed)

	m := service.NewNoisyMixer(service.NoisyOptions{
		DataRoot:    dataRoot,
		InputDir:    c.Input,
		ManifestDir: g.cfg.Data.ManifestDir,
		NoiseType:   c.NoiseType,
		DatasetID:   c.Dataset,
		SNR:         snr,
		Mode:        mode,
		PathStyle:   style,
		Quiet:       g.quiet,
	}, pool, rng)

	st, err := m.Run(g.ctx)
	if err != nil {
		return err
	}
	log.Printf("✓ %s: processed=%d skipped=%d errors=%d", m.DatasetID(), st.Processed, st.Skipped, st.Errors)
	return nil
}

type CombineCmd struct {
	Files  []string `arg:"" type:"existingfile" help:"scores_<src>_<tgt>.csv tables"`
	Order  string   `type:"existingfile" help:"YAML file with curated system, metric and language pair order"`
	Output string   `short:"o" default:"-" help:"Output CSV, - for stdout"`
}

func (c *CombineCmd) Run(g *Globals) error {
	order, err := combine.LoadOrder(c.Order)
	if err != nil {
		return err
	}
	pivot, err := combine.Files(c.Files, order)
	if err != nil {
		return err
	}

	if c.Output == "-" {
		return pivot.WriteCSV(os.Stdout)
	}

	if err := os.MkdirAll(filepath.Dir(c.Output), 0755); err != nil {
		return err
	}
	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pivot.WriteCSV(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("✓ combined %d tables: %d systems, %d pairs -> %s",
		len(c.Files), len(pivot.Systems), len(pivot.Pairs), c.Output)
	return nil
}

type ScoreCmd struct {
	Manifest  string            `arg:"" type:"existingfile"`
	Hyp       map[string]string `required:"" help:"system=hypotheses.jsonl (repeatable)"`
	OutputDir string            `default:"." help:"Directory for scores_<src>_<tgt>.csv"`
	UseSource bool              `help:"Score against src_ref instead of tgt_ref"`
}

func (c *ScoreCmd) Run(g *Globals) error {
	_, _, err := service.NewScorer(service.ScoreOptions{
		Manifest:   c.Manifest,
		Hypotheses: c.Hyp,
		OutputDir:  c.OutputDir,
		UseSource:  c.UseSource,
	}).Run(g.ctx)
	return err
}

type CatalogCmd struct {
	Manifests []string `arg:"" optional:"" type:"existingfile"`
	Limit     int      `help:"Catalog at most this many records"`
	Workers   int      `help:"Worker count (default CATALOG_WORKERS)"`
	Stats     bool     `help:"Print per-dataset totals afterwards"`
}

func (c *CatalogCmd) Run(g *Globals) error {
	dataRoot, err := g.cfg.RequireDataRoot()
	if err != nil {
		return err
	}

	database, err := db.New(
		g.cfg.Database.Host,
		g.cfg.Database.Port,
		g.cfg.Database.User,
		g.cfg.Database.Password,
		g.cfg.Database.Name,
	)
	if err != nil {
		return fmt.Errorf("DB error: %w", err)
	}
	defer database.Close()
	log.Println("✓ Connected to MariaDB")

	if err := database.CreateTable(); err != nil {
		return err
	}

	if len(c.Manifests) > 0 {
		cat := service.NewCatalog(database, dataRoot, g.cfg.Workers.Catalog)
		cat.SetQuiet(g.quiet)
		if _, err := cat.Run(g.ctx, c.Manifests, c.Limit, c.Workers); err != nil {
			return err
		}
	}

	if !c.Stats {
		return nil
	}
	stats, err := database.Stats()
	if err != nil {
		return err
	}
	for _, s := range stats {
		log.Printf("  %-28s samples=%d audio=%d hours=%.2f snr=%.1f noisy=%.0f%%",
			s.DatasetID, s.Samples, s.WithAudio, s.TotalHours, s.AvgSNRWada, s.NoisyShare*100)
	}
	return nil
}

type PublishCmd struct {
	Manifests []string `arg:"" type:"existingfile"`
	Prefix    string   `default:"benchmarks" help:"Object name prefix"`
}

func (c *PublishCmd) Run(g *Globals) error {
	dataRoot, err := g.cfg.RequireDataRoot()
	if err != nil {
		return err
	}

	store, err := objectstore.New(g.cfg.Storage)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(g.ctx); err != nil {
		return err
	}
	log.Printf("✓ MinIO bucket %s ready", store.BucketName)

	for _, m := range c.Manifests {
		p := service.NewPublisher(store, dataRoot, c.Prefix, g.quiet)
		if _, err := p.Publish(g.ctx, m); err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
	}
	return nil
}
