package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"golang.org/x/time/rate"

	"rekorcheck/internal/config"
	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/infra/rekor"
)

const (
	exitOK           = 0
	exitError        = 1
	exitInvalidProof = 2
	exitMismatch     = 3
)

const defaultCheckpointFile = "checkpoint.json"

type cli struct {
	name           string
	stdout         io.Writer
	stderr         io.Writer
	cfg            config.Config
	rekorURL       string
	checkpointFile string
	logger         *slog.Logger
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{name: "rekorcheck", stdout: stdout, stderr: stderr, cfg: config.FromEnv()}
	if len(args) > 0 && args[0] != "" {
		c.name = filepath.Base(args[0])
	}
	if len(args) < 2 {
		c.usage()
		return exitError
	}

	fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var debug bool
	fs.StringVar(&c.rekorURL, "rekor-url", c.cfg.RekorURL, "rekor base url")
	fs.StringVar(&c.checkpointFile, "checkpoint-file", c.cfg.CheckpointFile, "checkpoint store file (default "+defaultCheckpointFile+")")
	fs.BoolVar(&debug, "debug", false, "enable debug logging")
	fs.Usage = c.usage
	if err := fs.Parse(args[1:]); err != nil {
		return exitError
	}
	if c.checkpointFile == "" {
		c.checkpointFile = defaultCheckpointFile
	}
	level := c.cfg.SlogLevel()
	if debug {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	rest := fs.Args()
	if len(rest) == 0 {
		c.usage()
		return exitError
	}
	switch rest[0] {
	case "checkpoint":
		return c.runCheckpoint(rest[1:])
	case "inclusion":
		return c.runInclusion(rest[1:])
	case "consistency":
		return c.runConsistency(rest[1:])
	case "verify-proof":
		if len(rest) >= 2 {
			switch rest[1] {
			case "inclusion":
				return c.runVerifyInclusionProof(rest[2:])
			case "consistency":
				return c.runVerifyConsistencyProof(rest[2:])
			}
		}
	}

	c.usage()
	return exitError
}

func (c *cli) usage() {
	fmt.Fprintf(c.stderr, "usage:\n")
	fmt.Fprintf(c.stderr, "  %s [--rekor-url <url>] [--checkpoint-file <file>] [--debug] <command>\n\n", c.name)
	fmt.Fprintf(c.stderr, "  %s checkpoint [--out <file>] [--save]\n", c.name)
	fmt.Fprintf(c.stderr, "  %s inclusion --log-index <n> --artifact <file>\n", c.name)
	fmt.Fprintf(c.stderr, "  %s consistency (--tree-id <id> --tree-size <n> --root-hash <hex> | --from-store)\n", c.name)
	fmt.Fprintf(c.stderr, "  %s verify-proof inclusion (--leaf-hash <hex>|--entry-body <file>) --log-index <n> --tree-size <n> --root-hash <hex> [--hashes <hex,...>]\n", c.name)
	fmt.Fprintf(c.stderr, "  %s verify-proof consistency --first-size <n> --last-size <n> --first-root <hex> --last-root <hex> [--hashes <hex,...>]\n", c.name)
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) newClient() (*rekor.Client, error) {
	var limiter *rate.Limiter
	if c.cfg.RekorRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.RekorRequestsPerSecond), max(c.cfg.RekorBurst, 1))
	}
	return rekor.NewClient(c.rekorURL, &http.Client{Timeout: c.cfg.RekorTimeout()}, limiter, c.logger)
}

// fail reports err and maps it to the process exit code.
func (c *cli) fail(action string, err error) int {
	fmt.Fprintf(c.stderr, "%s: %v\n", action, err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, merkle.ErrRootMismatch),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrCertificateInvalid),
		errors.Is(err, domain.ErrArtifactHashMismatch),
		errors.Is(err, domain.ErrCheckpointMismatch),
		errors.Is(err, domain.ErrEntryMismatch):
		return exitMismatch
	case errors.Is(err, merkle.ErrInvalidProof), errors.Is(err, domain.ErrProofMissing):
		return exitInvalidProof
	default:
		return exitError
	}
}
