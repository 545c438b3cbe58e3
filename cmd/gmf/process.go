package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/dudk/gmf"
	"github.com/dudk/gmf/audio"
	"github.com/dudk/gmf/element"
	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/info"
	"github.com/dudk/gmf/log"
	"github.com/dudk/gmf/task"
)

// pipelineConfig describes a pipeline in a yaml file. Flags override
// values of the file.
type pipelineConfig struct {
	Name     string            `yaml:"name"`
	In       string            `yaml:"in"`
	Out      string            `yaml:"out"`
	Source   string            `yaml:"source"`
	Sink     string            `yaml:"sink"`
	Elements []string          `yaml:"elements"`
	Params   map[string]string `yaml:"params"`
}

type processCommand struct {
	file     string
	in       string
	out      string
	source   string
	sink     string
	elements []string
	params   []string
	timeout  time.Duration
}

func newProcessCmd() *cobra.Command {
	c := &processCommand{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a file through a pipeline",
		Long: `Process reads the in file, passes it through the listed elements and
writes the result to the out file.

Element parameters are set with --set element.param=value, e.g.
  gmf process --in a.wav --out b.wav --el rate_cvt --set rate_cvt.rate=16000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			return c.run(cmd, cfg)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&c.file, "file", "f", "", "yaml pipeline description")
	fs.StringVar(&c.in, "in", "", "input file (required)")
	fs.StringVar(&c.out, "out", "", "output file (required)")
	fs.StringVar(&c.source, "source", "", "in endpoint name (default wav_reader)")
	fs.StringVar(&c.sink, "sink", "", "out endpoint name (default wav_writer)")
	fs.StringSliceVar(&c.elements, "el", nil, "elements in processing order (default copier)")
	fs.StringArrayVar(&c.params, "set", nil, "element parameter as element.param=value")
	fs.DurationVar(&c.timeout, "timeout", 0, "stop processing after timeout")
	return cmd
}

// config merges yaml file with flags.
func (c *processCommand) config() (pipelineConfig, error) {
	var cfg pipelineConfig
	if c.file != "" {
		data, err := os.ReadFile(c.file)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", c.file, err)
		}
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.In, c.in)
	override(&cfg.Out, c.out)
	override(&cfg.Source, c.source)
	override(&cfg.Sink, c.sink)
	if len(c.elements) > 0 {
		cfg.Elements = c.elements
	}
	for _, p := range c.params {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return cfg, fmt.Errorf("invalid parameter %q, expected element.param=value", p)
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[name] = value
	}
	if cfg.Source == "" {
		cfg.Source = gmf.WavReaderName
	}
	if cfg.Sink == "" {
		cfg.Sink = gmf.WavWriterName
	}
	if len(cfg.Elements) == 0 {
		cfg.Elements = []string{audio.CopierName}
	}
	var missing []string
	if cfg.In == "" {
		missing = append(missing, "--in")
	}
	if cfg.Out == "" {
		missing = append(missing, "--out")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func (c *processCommand) run(cmd *cobra.Command, cfg pipelineConfig) error {
	pool, err := defaultPool()
	if err != nil {
		return err
	}
	options := []gmf.Option{gmf.WithLogger(log.GetLogger())}
	if cfg.Name != "" {
		options = append(options, gmf.WithName(cfg.Name))
	}
	p, err := pool.NewPipeline(cfg.Source, cfg.Elements, cfg.Sink, options...)
	if err != nil {
		return err
	}
	defer p.Destroy()
	if err := setParams(p, cfg.Params); err != nil {
		return err
	}
	t, err := task.New(task.WithName(p.Name()))
	if err != nil {
		return err
	}
	defer t.Close()
	if err := p.BindTask(t); err != nil {
		return err
	}
	if err := p.SetInURI(cfg.In); err != nil {
		return err
	}
	if err := p.SetOutURI(cfg.Out); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	done := make(chan event.State, 1)
	p.SetEvent(func(pkt event.Packet) error {
		switch pkt.Type {
		case event.ReportInfo:
			if s, ok := pkt.Payload.(info.Sound); ok {
				fmt.Fprintf(out, "%-14s %s\n", pkt.From, s)
			}
		case event.ChangeState:
			if pkt.State().Terminal() {
				done <- pkt.State()
			}
		}
		return nil
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := p.Run(ctx); err != nil {
		return err
	}
	var state event.State
	select {
	case state = <-done:
	case <-ctx.Done():
		if err := p.Stop(context.Background()); err != nil {
			return err
		}
		state = <-done
	}
	fmt.Fprintf(out, "%s %s in %v\n", p.Name(), state, time.Since(start).Round(time.Millisecond))
	switch state {
	case event.Error:
		return p.Err()
	case event.Stopped:
		return errors.New("processing interrupted")
	}
	return nil
}

// setParams applies element.param=value pairs.
func setParams(p *gmf.Pipeline, params map[string]string) error {
	for key, value := range params {
		name, param, ok := strings.Cut(key, ".")
		if !ok {
			return fmt.Errorf("invalid parameter %q, expected element.param", key)
		}
		el, err := p.Element(name)
		if err != nil {
			return err
		}
		s, ok := el.(element.ParamSetter)
		if !ok {
			return fmt.Errorf("%w: %s has no parameters", element.ErrUnknownParam, name)
		}
		if err := s.SetParam(param, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}
