package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/babel/internal/decode"
	"github.com/samcharles93/babel/internal/logger"
	"github.com/samcharles93/babel/internal/model"
	"github.com/samcharles93/babel/internal/tokenizer"
	"github.com/samcharles93/babel/internal/translate"
)

// Shared flag destinations for the translate and serve commands.
var (
	vocabPath   string
	weightsPath string
	seed        int64
	beamWidth   int64
	alpha       float64
	maxLen      int64
	batchSize   int64
	workers     int64
	logLevel    string
	logFormat   string
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to vocabulary JSON file",
			Destination: &vocabPath,
		},
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "path to model weights JSON (omit for a seeded model)",
			Destination: &weightsPath,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for the generated model when --weights is omitted",
			Value:       1,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "beam",
			Aliases:     []string{"beam-width", "b"},
			Usage:       "beam width",
			Value:       translate.DefaultBeamWidth,
			Destination: &beamWidth,
		},
		&cli.Float64Flag{
			Name:        "alpha",
			Usage:       "length normalization exponent",
			Value:       decode.DefaultAlpha,
			Destination: &alpha,
		},
		&cli.Int64Flag{
			Name:        "max-len",
			Aliases:     []string{"max_len"},
			Usage:       "max decode length in tokens",
			Value:       translate.DefaultMaxLen,
			Destination: &maxLen,
		},
		&cli.Int64Flag{
			Name:        "batch-size",
			Aliases:     []string{"batch_size"},
			Usage:       "sentences per decode batch",
			Value:       translate.DefaultBatchSize,
			Destination: &batchSize,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "concurrent decode batches",
			Value:       1,
			Destination: &workers,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Text(os.Stderr, level)
}

// buildTranslator assembles the tokenizer/model/pipeline from the
// shared flags.
func buildTranslator(log logger.Logger) (*translate.Translator, error) {
	tok, err := tokenizer.Load(vocabPath)
	if err != nil {
		return nil, err
	}

	var scorer model.Scorer
	if weightsPath != "" {
		scorer, err = model.Load(weightsPath)
	} else {
		log.Debug("no weights given, generating a seeded model", "seed", seed)
		scorer, err = model.NewSeeded(tok.VocabSize(), seed)
	}
	if err != nil {
		return nil, err
	}

	return translate.New(scorer, tok, translate.Options{
		BatchSize:    int(batchSize),
		BeamWidth:    int(beamWidth),
		Alpha:        alpha,
		MaxDecodeLen: int(maxLen),
		Workers:      int(workers),
	}, log)
}
