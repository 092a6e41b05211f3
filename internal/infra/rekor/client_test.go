package rekor

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/rekortest"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newFakeLog(t *testing.T, entries int) (*rekortest.Log, *Client) {
	t.Helper()
	fake := rekortest.NewLog("1193050959916656506")
	fake.IndexOffset = 1000
	for i := 0; i < entries; i++ {
		fake.Append([]byte(fmt.Sprintf(`{"apiVersion":"0.0.1","kind":"hashedrekord","n":%d}`, i)))
	}
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, server.Client(), nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return fake, client
}

func TestGetLogEntryByIndex(t *testing.T) {
	fake, client := newFakeLog(t, 7)

	entry, err := client.GetLogEntryByIndex(context.Background(), 1003)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.LogIndex != 1003 {
		t.Fatalf("unexpected log index %d", entry.LogIndex)
	}
	if entry.Proof == nil {
		t.Fatal("expected inclusion proof")
	}
	if entry.Proof.LogIndex != 3 || entry.Proof.TreeSize != 7 {
		t.Fatalf("unexpected proof position %d/%d", entry.Proof.LogIndex, entry.Proof.TreeSize)
	}
	if !bytes.Equal(merkle.ComputeLeafHash(entry.Body), fake.LeafHash(1003)) {
		t.Fatal("entry body was not preserved byte for byte")
	}
	if err := merkle.VerifyInclusion(merkle.DefaultHasher, entry.Proof.LogIndex, entry.Proof.TreeSize,
		merkle.ComputeLeafHash(entry.Body), entry.Proof.Hashes, entry.Proof.RootHash); err != nil {
		t.Fatalf("served proof does not verify: %v", err)
	}
	if !strings.HasSuffix(entry.UUID, hex.EncodeToString(fake.LeafHash(1003))) {
		t.Fatalf("unexpected uuid %s", entry.UUID)
	}
	if !entry.IntegratedTime.Equal(fake.IntegratedTime) {
		t.Fatalf("unexpected integrated time %v", entry.IntegratedTime)
	}

	byUUID, err := client.GetLogEntryByUUID(context.Background(), entry.UUID)
	if err != nil {
		t.Fatalf("get entry by uuid: %v", err)
	}
	if byUUID.LogIndex != entry.LogIndex || !bytes.Equal(byUUID.Body, entry.Body) {
		t.Fatal("uuid lookup returned a different entry")
	}
}

func TestGetLogEntryNotFound(t *testing.T) {
	_, client := newFakeLog(t, 2)
	_, err := client.GetLogEntryByIndex(context.Background(), 5)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = client.GetLogEntryByUUID(context.Background(), "  ")
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestGetLatestCheckpoint(t *testing.T) {
	fake, client := newFakeLog(t, 5)
	old := rekortest.NewLog("3904496407287907110")
	old.Append([]byte("retired"))
	fake.InactiveShards = []*rekortest.Log{old}

	cp, err := client.GetLatestCheckpoint(context.Background())
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if cp.TreeID != fake.TreeID || cp.TreeSize != 5 {
		t.Fatalf("unexpected checkpoint %s/%d", cp.TreeID, cp.TreeSize)
	}
	if !bytes.Equal(cp.RootHash, fake.Root(5)) {
		t.Fatalf("unexpected root %x", cp.RootHash)
	}
	if TreeIDFromOrigin(cp.Origin) != fake.TreeID {
		t.Fatalf("unexpected origin %q", cp.Origin)
	}
	if len(cp.InactiveShards) != 1 || cp.InactiveShards[0].TreeID != old.TreeID {
		t.Fatalf("unexpected inactive shards %+v", cp.InactiveShards)
	}
	if cp.ObservedAt.IsZero() {
		t.Fatal("expected observation time")
	}
}

func TestGetLatestCheckpointRejectsMismatchedNote(t *testing.T) {
	fake := rekortest.NewLog("42")
	fake.Append([]byte("a"))
	fake.Append([]byte("b"))
	note := fake.SignedNote()

	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/api/v1/log" {
				return jsonResponse(http.StatusNotFound, `{"code":404,"message":"nope"}`), nil
			}
			body := `{"rootHash":"` + hex.EncodeToString(fake.Root(1)) + `","signedTreeHead":` + strconv.Quote(note) + `,"treeID":"42","treeSize":1}`
			return jsonResponse(http.StatusOK, body), nil
		}),
	}
	client, err := NewClient("https://rekor.example", httpClient, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GetLatestCheckpoint(context.Background())
	if !errors.Is(err, domain.ErrCheckpointMismatch) {
		t.Fatalf("expected checkpoint mismatch, got %v", err)
	}
}

func TestGetConsistencyProof(t *testing.T) {
	fake, client := newFakeLog(t, 8)

	proof, err := client.GetConsistencyProof(context.Background(), 5, 8, fake.TreeID)
	if err != nil {
		t.Fatalf("get consistency proof: %v", err)
	}
	if proof.FromSize != 5 || proof.ToSize != 8 || proof.TreeID != fake.TreeID {
		t.Fatalf("unexpected proof header %+v", proof)
	}
	if err := merkle.VerifyConsistency(merkle.DefaultHasher, 5, 8, proof.Hashes, fake.Root(5), fake.Root(8)); err != nil {
		t.Fatalf("served proof does not verify: %v", err)
	}

	_, err = client.GetConsistencyProof(context.Background(), 5, 80, fake.TreeID)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestClientRejectsMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: `<html>`, want: domain.ErrUpstream},
		{name: "bad body encoding", body: `{"u":{"body":"%%%","logIndex":1}}`, want: domain.ErrUpstream},
		{name: "negative index", body: `{"u":{"body":"","logIndex":-1}}`, want: domain.ErrUpstream},
		{name: "two entries", body: `{"u":{"body":"","logIndex":1},"v":{"body":"","logIndex":1}}`, want: domain.ErrUpstream},
		{name: "empty map", body: `{}`, want: domain.ErrNotFound},
		{name: "wrong index", body: `{"u":{"body":"","logIndex":2}}`, want: domain.ErrUpstream},
		{
			name: "bad proof hash",
			body: `{"u":{"body":"","logIndex":1,"verification":{"inclusionProof":{"hashes":["zz"],"logIndex":1,"rootHash":"` + strings.Repeat("ab", 32) + `","treeSize":2}}}}`,
			want: merkle.ErrInvalidProof,
		},
		{
			name: "short root",
			body: `{"u":{"body":"","logIndex":1,"verification":{"inclusionProof":{"hashes":[],"logIndex":1,"rootHash":"abcd","treeSize":2}}}}`,
			want: merkle.ErrInvalidProof,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			httpClient := &http.Client{
				Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
					return jsonResponse(http.StatusOK, tc.body), nil
				}),
			}
			client, err := NewClient("https://rekor.example/", httpClient, nil, nil)
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, err = client.GetLogEntryByIndex(context.Background(), 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestClientUpstreamFailures(t *testing.T) {
	var calls int
	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			if req.Header.Get("Accept") != "application/json" {
				t.Fatalf("missing accept header")
			}
			if calls == 1 {
				return jsonResponse(http.StatusServiceUnavailable, `{"code":503,"message":"overloaded"}`), nil
			}
			return nil, errors.New("connection reset")
		}),
	}
	client, err := NewClient("https://rekor.example", httpClient, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetLatestCheckpoint(context.Background())
	if !errors.Is(err, domain.ErrUpstream) || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected upstream error with message, got %v", err)
	}
	_, err = client.GetLatestCheckpoint(context.Background())
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error for transport failure, got %v", err)
	}
}

func TestClientHonoursLimiter(t *testing.T) {
	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"rootHash":"","treeID":"1","treeSize":0}`), nil
		}),
	}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	client, err := NewClient("https://rekor.example", httpClient, limiter, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GetLatestCheckpoint(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.GetLatestCheckpoint(ctx)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected limiter wait to fail, got %v", err)
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "rekor.sigstore.dev", "://bad"} {
		if _, err := NewClient(raw, nil, nil, nil); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
