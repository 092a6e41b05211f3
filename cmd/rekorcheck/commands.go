package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/cachemem"
	"rekorcheck/internal/infra/checkpointfile"
	"rekorcheck/internal/infra/crypto"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/infra/rekor"
	"rekorcheck/internal/usecase"
)

type checkpointOutput struct {
	Origin         string    `json:"origin,omitempty"`
	TreeID         string    `json:"tree_id"`
	TreeSize       uint64    `json:"tree_size"`
	RootHash       string    `json:"root_hash"`
	SignedTreeHead string    `json:"signed_tree_head,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

func (c *cli) runCheckpoint(args []string) int {
	fs := c.newFlagSet("checkpoint")
	var outPath string
	var save bool
	fs.StringVar(&outPath, "out", "", "write the checkpoint JSON to file (default stdout)")
	fs.BoolVar(&save, "save", false, "remember the checkpoint in the checkpoint file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	client, err := c.newClient()
	if err != nil {
		return c.fail("checkpoint", err)
	}
	ctx := context.Background()
	cp, err := client.GetLatestCheckpoint(ctx)
	if err != nil {
		return c.fail("fetch checkpoint", err)
	}
	if save {
		store, err := checkpointfile.New(c.checkpointFile)
		if err != nil {
			return c.fail("open checkpoint file", err)
		}
		if err := store.Save(ctx, cp); err != nil {
			return c.fail("save checkpoint", err)
		}
	}
	out := checkpointOutput{
		Origin:         cp.Origin,
		TreeID:         cp.TreeID,
		TreeSize:       cp.TreeSize,
		RootHash:       hex.EncodeToString(cp.RootHash),
		SignedTreeHead: cp.SignedNote,
		ObservedAt:     cp.ObservedAt,
	}
	if err := c.writeJSON(outPath, out); err != nil {
		return c.fail("write checkpoint", err)
	}
	return exitOK
}

func (c *cli) runInclusion(args []string) int {
	fs := c.newFlagSet("inclusion")
	var logIndex int64
	var artifactPath string
	fs.Int64Var(&logIndex, "log-index", -1, "global log index of the entry")
	fs.StringVar(&artifactPath, "artifact", "", "path to the signed artifact")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if logIndex < 0 || artifactPath == "" {
		fmt.Fprintln(c.stderr, "inclusion requires --log-index and --artifact")
		return exitError
	}

	client, err := c.newClient()
	if err != nil {
		return c.fail("inclusion", err)
	}
	cache, err := cachemem.New(c.cfg.EntryCacheSize)
	if err != nil {
		return c.fail("inclusion", err)
	}
	artifact, err := os.Open(artifactPath)
	if err != nil {
		return c.fail("open artifact", err)
	}
	defer artifact.Close()

	uc := &usecase.VerifyInclusion{
		Rekor:      client,
		Cache:      cache,
		Decoder:    rekor.Decoder{},
		Signatures: crypto.NewService(),
		Merkle:     merkle.NewService(),
		Logger:     c.logger,
	}
	receipt, err := uc.Execute(context.Background(), usecase.VerifyInclusionRequest{
		LogIndex: uint64(logIndex),
		Artifact: artifact,
	})
	if err != nil {
		return c.fail("verify inclusion", err)
	}
	if err := c.writeJSON("", receipt); err != nil {
		return c.fail("write receipt", err)
	}
	return exitOK
}

func (c *cli) runConsistency(args []string) int {
	fs := c.newFlagSet("consistency")
	var treeID, rootHex string
	var treeSize int64
	var fromStore bool
	fs.StringVar(&treeID, "tree-id", "", "tree id of the previous checkpoint")
	fs.Int64Var(&treeSize, "tree-size", -1, "tree size of the previous checkpoint")
	fs.StringVar(&rootHex, "root-hash", "", "root hash of the previous checkpoint (hex)")
	fs.BoolVar(&fromStore, "from-store", false, "use the checkpoint saved in the checkpoint file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	var prev *domain.Checkpoint
	switch {
	case fromStore:
		if treeID != "" || treeSize >= 0 || rootHex != "" {
			fmt.Fprintln(c.stderr, "consistency: --from-store cannot be combined with --tree-id, --tree-size or --root-hash")
			return exitError
		}
	case treeID == "" || treeSize < 0 || rootHex == "":
		fmt.Fprintln(c.stderr, "consistency requires --tree-id, --tree-size and --root-hash, or --from-store")
		return exitError
	default:
		root, err := hex.DecodeString(rootHex)
		if err != nil {
			fmt.Fprintf(c.stderr, "consistency: --root-hash is not hex: %v\n", err)
			return exitError
		}
		prev = &domain.Checkpoint{TreeID: treeID, TreeSize: uint64(treeSize), RootHash: root}
	}

	client, err := c.newClient()
	if err != nil {
		return c.fail("consistency", err)
	}
	store, err := checkpointfile.New(c.checkpointFile)
	if err != nil {
		return c.fail("open checkpoint file", err)
	}
	uc := &usecase.VerifyConsistency{
		Rekor:  client,
		Store:  store,
		Merkle: merkle.NewService(),
		Logger: c.logger,
	}
	receipt, err := uc.Execute(context.Background(), usecase.VerifyConsistencyRequest{Previous: prev})
	if err != nil {
		return c.fail("verify consistency", err)
	}
	if err := c.writeJSON("", receipt); err != nil {
		return c.fail("write receipt", err)
	}
	return exitOK
}

func (c *cli) runVerifyInclusionProof(args []string) int {
	fs := c.newFlagSet("verify-proof inclusion")
	var leafHex, bodyPath, rootHex, hashesCSV string
	var logIndex, treeSize uint64
	fs.StringVar(&leafHex, "leaf-hash", "", "leaf hash (hex)")
	fs.StringVar(&bodyPath, "entry-body", "", "file holding the raw entry body")
	fs.Uint64Var(&logIndex, "log-index", 0, "leaf index inside the tree")
	fs.Uint64Var(&treeSize, "tree-size", 0, "tree size")
	fs.StringVar(&rootHex, "root-hash", "", "root hash (hex)")
	fs.StringVar(&hashesCSV, "hashes", "", "comma separated audit path (hex), leaf first")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if (leafHex == "") == (bodyPath == "") {
		fmt.Fprintln(c.stderr, "verify-proof inclusion requires exactly one of --leaf-hash or --entry-body")
		return exitError
	}

	svc := merkle.NewService()
	var leaf []byte
	if bodyPath != "" {
		body, err := os.ReadFile(bodyPath)
		if err != nil {
			return c.fail("read entry body", err)
		}
		leaf = svc.ComputeLeafHash(body)
	} else {
		decoded, err := hex.DecodeString(leafHex)
		if err != nil {
			fmt.Fprintf(c.stderr, "verify-proof inclusion: --leaf-hash is not hex: %v\n", err)
			return exitError
		}
		leaf = decoded
	}
	root, path, err := decodeProofFlags(rootHex, hashesCSV)
	if err != nil {
		fmt.Fprintf(c.stderr, "verify-proof inclusion: %v\n", err)
		return exitError
	}

	if err := svc.VerifyInclusion(logIndex, treeSize, leaf, path, root); err != nil {
		return c.fail("verify inclusion proof", err)
	}
	fmt.Fprintf(c.stdout, "inclusion proof verified: leaf %x at index %d of tree size %d\n", leaf, logIndex, treeSize)
	return exitOK
}

func (c *cli) runVerifyConsistencyProof(args []string) int {
	fs := c.newFlagSet("verify-proof consistency")
	var firstRootHex, lastRootHex, hashesCSV string
	var firstSize, lastSize uint64
	fs.Uint64Var(&firstSize, "first-size", 0, "size of the older tree")
	fs.Uint64Var(&lastSize, "last-size", 0, "size of the newer tree")
	fs.StringVar(&firstRootHex, "first-root", "", "root hash of the older tree (hex)")
	fs.StringVar(&lastRootHex, "last-root", "", "root hash of the newer tree (hex)")
	fs.StringVar(&hashesCSV, "hashes", "", "comma separated consistency proof (hex)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	firstRoot, err := hex.DecodeString(firstRootHex)
	if err != nil {
		fmt.Fprintf(c.stderr, "verify-proof consistency: --first-root is not hex: %v\n", err)
		return exitError
	}
	lastRoot, path, err := decodeProofFlags(lastRootHex, hashesCSV)
	if err != nil {
		fmt.Fprintf(c.stderr, "verify-proof consistency: %v\n", err)
		return exitError
	}

	if err := merkle.NewService().VerifyConsistency(firstSize, lastSize, path, firstRoot, lastRoot); err != nil {
		return c.fail("verify consistency proof", err)
	}
	fmt.Fprintf(c.stdout, "consistency proof verified: tree size %d extends tree size %d\n", lastSize, firstSize)
	return exitOK
}

func decodeProofFlags(rootHex, hashesCSV string) ([]byte, [][]byte, error) {
	root, err := hex.DecodeString(rootHex)
	if err != nil {
		return nil, nil, fmt.Errorf("root hash is not hex: %w", err)
	}
	var path [][]byte
	for i, part := range strings.Split(hashesCSV, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := hex.DecodeString(part)
		if err != nil {
			return nil, nil, fmt.Errorf("hash %d is not hex: %w", i, err)
		}
		path = append(path, h)
	}
	return root, path, nil
}

// writeJSON prints v as indented JSON to path, or to stdout when path is
// empty.
func (c *cli) writeJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if path == "" {
		_, err := c.stdout.Write(payload)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
