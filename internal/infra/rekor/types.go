package rekor

// Wire shapes of the Rekor v1 API. Only the fields this client reads are
// declared; unknown fields are ignored.

type logEntryWire struct {
	Body           string            `json:"body"`
	IntegratedTime int64             `json:"integratedTime"`
	LogID          string            `json:"logID"`
	LogIndex       int64             `json:"logIndex"`
	Verification   *verificationWire `json:"verification,omitempty"`
}

type verificationWire struct {
	InclusionProof       *inclusionProofWire `json:"inclusionProof,omitempty"`
	SignedEntryTimestamp string              `json:"signedEntryTimestamp,omitempty"`
}

type inclusionProofWire struct {
	Checkpoint string   `json:"checkpoint"`
	Hashes     []string `json:"hashes"`
	LogIndex   int64    `json:"logIndex"`
	RootHash   string   `json:"rootHash"`
	TreeSize   int64    `json:"treeSize"`
}

type logInfoWire struct {
	InactiveShards []shardWire `json:"inactiveShards"`
	RootHash       string      `json:"rootHash"`
	SignedTreeHead string      `json:"signedTreeHead"`
	TreeID         string      `json:"treeID"`
	TreeSize       int64       `json:"treeSize"`
}

type shardWire struct {
	RootHash       string `json:"rootHash"`
	SignedTreeHead string `json:"signedTreeHead"`
	TreeID         string `json:"treeID"`
	TreeSize       int64  `json:"treeSize"`
}

type consistencyProofWire struct {
	Hashes   []string `json:"hashes"`
	RootHash string   `json:"rootHash"`
}

type errorWire struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type entryEnvelope struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
}

type hashedRekord struct {
	APIVersion string           `json:"apiVersion"`
	Kind       string           `json:"kind"`
	Spec       hashedRekordSpec `json:"spec"`
}

type hashedRekordSpec struct {
	Data      hashedRekordData      `json:"data"`
	Signature hashedRekordSignature `json:"signature"`
}

type hashedRekordData struct {
	Hash hashedRekordHash `json:"hash"`
}

type hashedRekordHash struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type hashedRekordSignature struct {
	Format    string                `json:"format,omitempty"`
	Content   string                `json:"content"`
	PublicKey hashedRekordPublicKey `json:"publicKey"`
}

type hashedRekordPublicKey struct {
	Content string `json:"content"`
}
