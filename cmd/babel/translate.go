package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/babel/internal/translate"
)

func translateCmd() *cli.Command {
	var (
		inputPath  string
		outputPath string
		jsonOut    bool
		withScores bool
	)

	return &cli.Command{
		Name:  "translate",
		Usage: "Translate sentences from a file or stdin, one per line",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "input file (default stdin)",
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output file (default stdout)",
				Destination: &outputPath,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit a JSON array instead of plain lines",
				Destination: &jsonOut,
			},
			&cli.BoolFlag{
				Name:        "scores",
				Usage:       "prefix each line with its normalized score",
				Destination: &withScores,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())
			log := newLogger()
			if vocabPath == "" {
				return fmt.Errorf("--vocab is required (or set vocab in %s)", configPath())
			}

			tr, err := buildTranslator(log)
			if err != nil {
				return err
			}
			sources, err := readSources(inputPath)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return nil
			}

			log.Info("translating", "sentences", len(sources), "beam", beamWidth)
			translations, err := tr.Translate(ctx, sources)
			if err != nil {
				return err
			}

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeTranslations(out, sources, translations, jsonOut, withScores)
		},
	}
}

// readSources reads one sentence per line, dropping blank lines.
func readSources(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var sources []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			sources = append(sources, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return sources, nil
}

func writeTranslations(w io.Writer, sources []string, translations []translate.Translation, jsonOut, withScores bool) error {
	if jsonOut {
		type entry struct {
			Source string  `json:"source"`
			Text   string  `json:"text"`
			Score  float32 `json:"score"`
		}
		entries := make([]entry, len(translations))
		for i, tl := range translations {
			entries[i] = entry{Source: sources[i], Text: tl.Text, Score: tl.Score}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, tl := range translations {
		var err error
		if withScores {
			_, err = fmt.Fprintf(w, "%.4f\t%s\n", tl.Score, tl.Text)
		} else {
			_, err = fmt.Fprintln(w, tl.Text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
